package services

import (
	"context"
	"fmt"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/shopspring/decimal"
)

type ProfileService struct {
	bidders domain.BidderRepository
	log     logger.Logger
}

func NewProfileService(bidders domain.BidderRepository, log logger.Logger) *ProfileService {
	return &ProfileService{bidders: bidders, log: log}
}

func (s *ProfileService) Get(ctx context.Context, bidderID string) (*domain.Bidder, error) {
	return s.bidders.GetBidder(ctx, bidderID)
}

func (s *ProfileService) List(ctx context.Context) ([]*domain.Bidder, error) {
	return s.bidders.ListBidders(ctx)
}

// Register creates a bidder profile with an opening balance.
func (s *ProfileService) Register(ctx context.Context, id, displayName string, balance decimal.Decimal, isAdmin bool) (*domain.Bidder, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", domain.ErrInvalidBidder)
	}
	if balance.Sign() < 0 || !domain.HasMoneyScale(balance) {
		return nil, fmt.Errorf("%w: opening balance %s must be zero or positive with at most %d decimals",
			domain.ErrInvalidBidder, balance.String(), domain.MoneyScale)
	}
	bidder := &domain.Bidder{
		ID:          id,
		DisplayName: displayName,
		Balance:     balance,
		IsAdmin:     isAdmin,
	}
	if err := s.bidders.CreateBidder(ctx, bidder); err != nil {
		return nil, err
	}
	s.log.Info("Bidder registered", "bidder_id", id)
	return bidder, nil
}
