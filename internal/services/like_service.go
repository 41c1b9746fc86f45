package services

import (
	"context"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
)

type LikeResult struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"like_count"`
}

type LikeService struct {
	likes    domain.LikeRepository
	notifier *ChangeNotifier
	log      logger.Logger
}

func NewLikeService(likes domain.LikeRepository, notifier *ChangeNotifier, log logger.Logger) *LikeService {
	return &LikeService{
		likes:    likes,
		notifier: notifier,
		log:      log,
	}
}

// Like is idempotent per bidder and item; the count moves only on the first like.
func (s *LikeService) Like(ctx context.Context, itemID, bidderID string) (*LikeResult, error) {
	count, changed, err := s.likes.AddLike(ctx, itemID, bidderID)
	if err != nil {
		return nil, err
	}
	if changed {
		s.notifier.Publish(ctx, LikeChangedEvent(itemID, count))
		s.log.Debug("Item liked", "item_id", itemID, "bidder_id", bidderID, "like_count", count)
	}
	return &LikeResult{Liked: true, LikeCount: count}, nil
}

// Unlike of an item the bidder never liked is a no-op.
func (s *LikeService) Unlike(ctx context.Context, itemID, bidderID string) (*LikeResult, error) {
	count, changed, err := s.likes.RemoveLike(ctx, itemID, bidderID)
	if err != nil {
		return nil, err
	}
	if changed {
		s.notifier.Publish(ctx, LikeChangedEvent(itemID, count))
		s.log.Debug("Item unliked", "item_id", itemID, "bidder_id", bidderID, "like_count", count)
	}
	return &LikeResult{Liked: false, LikeCount: count}, nil
}

func (s *LikeService) HasLiked(ctx context.Context, itemID, bidderID string) (bool, error) {
	return s.likes.HasLiked(ctx, itemID, bidderID)
}
