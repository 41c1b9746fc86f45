package leader

import (
	"context"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
)

// Standalone is the election of a single-process deployment: the one
// instance always leads.
type Standalone struct{}

func (Standalone) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	return true, nil
}

func (Standalone) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	return true, nil
}

func (Standalone) ReleaseLeadership(ctx context.Context, instanceID string) error {
	return nil
}

// Campaign keeps trying to take leadership until ctx is done. A failed
// attempt is retried sooner than a lost one.
func Campaign(ctx context.Context, election domain.LeaderElection, instanceID string, interval time.Duration, log logger.Logger) {
	for {
		wait := interval
		became, err := election.BecomeLeader(ctx, instanceID)
		switch {
		case err != nil:
			log.Error("Failed to attempt leadership", "error", err)
			wait = interval / 2
		case became:
			log.Info("Became auction scheduler leader", "instance_id", instanceID)
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}
