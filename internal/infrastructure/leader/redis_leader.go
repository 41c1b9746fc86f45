package leader

import (
	"context"
	"errors"
	"time"

	"auction-storefront/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const leaderKey = "auction_storefront_leader"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`)

// RedisLeaderElection elects one instance to run the auction sweeps. The
// leader holds a key with a TTL and refreshes it at a third of the TTL.
type RedisLeaderElection struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

func NewRedisLeaderElection(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisLeaderElection {
	return &RedisLeaderElection{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

func (r *RedisLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	result, err := r.client.SetNX(ctx, leaderKey, instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}

	if result {
		// Heartbeat outlives the caller's request context.
		go r.maintainLeadership(context.WithoutCancel(ctx), instanceID)
	}

	return result, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	currentLeader, err := r.client.Get(ctx, leaderKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	return currentLeader == instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	return releaseScript.Run(ctx, r.client, []string{leaderKey}, instanceID).Err()
}

func (r *RedisLeaderElection) refresh(ctx context.Context, instanceID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := refreshScript.Run(ctx, r.client, []string{leaderKey},
		instanceID, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

func (r *RedisLeaderElection) maintainLeadership(ctx context.Context, instanceID string) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			held, err := r.refresh(ctx, instanceID)
			if err != nil {
				r.log.Error("Failed to refresh leadership", "instance_id", instanceID, "error", err)
				return
			}
			if !held {
				r.log.Warn("Lost leadership", "instance_id", instanceID)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
