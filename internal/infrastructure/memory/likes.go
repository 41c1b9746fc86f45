package memory

import (
	"context"

	"auction-storefront/internal/domain"
)

func (s *Store) AddLike(ctx context.Context, itemID, bidderID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.likeTargetLocked(itemID, bidderID)
	if err != nil {
		return 0, false, err
	}
	key := likeKey{itemID: itemID, bidderID: bidderID}
	if _, liked := s.likes[key]; liked {
		return item.LikeCount, false, nil
	}
	s.likes[key] = struct{}{}
	item.LikeCount++
	return item.LikeCount, true, nil
}

func (s *Store) RemoveLike(ctx context.Context, itemID, bidderID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.likeTargetLocked(itemID, bidderID)
	if err != nil {
		return 0, false, err
	}
	key := likeKey{itemID: itemID, bidderID: bidderID}
	if _, liked := s.likes[key]; !liked {
		return item.LikeCount, false, nil
	}
	delete(s.likes, key)
	if item.LikeCount > 0 {
		item.LikeCount--
	}
	return item.LikeCount, true, nil
}

func (s *Store) HasLiked(ctx context.Context, itemID, bidderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[itemID]; !ok {
		return false, domain.ErrItemNotFound
	}
	_, liked := s.likes[likeKey{itemID: itemID, bidderID: bidderID}]
	return liked, nil
}

func (s *Store) likeTargetLocked(itemID, bidderID string) (*domain.Item, error) {
	item, ok := s.items[itemID]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	if _, ok := s.bidders[bidderID]; !ok {
		return nil, domain.ErrBidderNotFound
	}
	return item, nil
}
