package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"auction-storefront/internal/domain"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
)

// itemTx runs on one database transaction. Item and bidder reads lock their
// rows until commit or rollback.
type itemTx struct {
	s  *Store
	tx *sql.Tx
}

func (s *Store) WithItemTx(ctx context.Context, fn func(tx domain.ItemTx) error) error {
	tx, err := s.Database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin item tx: %w", err)
	}

	if err := fn(&itemTx{s: s, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("Failed to roll back item tx", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit item tx: %w", err)
	}
	return nil
}

func (t *itemTx) LockItem(ctx context.Context, itemID string) (*domain.Item, error) {
	return getItem(ctx, t.tx, t.s.selectItems().Suffix("FOR UPDATE"), itemID)
}

func (t *itemTx) GetBidder(ctx context.Context, bidderID string) (*domain.Bidder, error) {
	return getBidder(ctx, t.tx, t.s.SqlBuilder, bidderID, "FOR UPDATE")
}

func (s *Store) compareAndSwapQuery(expectedVersion int64, expectedPrice *decimal.Decimal, next *domain.Item) (string, []interface{}, error) {
	q := s.SqlBuilder.
		Update("items").
		SetMap(itemState(next)).
		Where(squirrel.Eq{"id": next.ID, "version": expectedVersion})
	if expectedPrice != nil {
		// Compared as DECIMAL; a bare string argument would be compared as a double.
		q = q.Where(squirrel.Expr("current_price = CAST(? AS DECIMAL(14,2))", expectedPrice.String()))
	}
	return q.ToSql()
}

func (t *itemTx) CompareAndSwapItem(ctx context.Context, expectedVersion int64, expectedPrice *decimal.Decimal, next *domain.Item) (bool, error) {
	if err := next.Validate(); err != nil {
		return false, err
	}
	query, args, err := t.s.compareAndSwapQuery(expectedVersion, expectedPrice, next)
	if err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("swap item %s: %w", next.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) adjustBalanceQuery(bidderID string, delta decimal.Decimal) (string, []interface{}, error) {
	return s.SqlBuilder.
		Update("bidders").
		Set("balance", squirrel.Expr("balance + CAST(? AS DECIMAL(14,2))", delta.String())).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": bidderID}).
		Where("balance + CAST(? AS DECIMAL(14,2)) >= 0", delta.String()).
		ToSql()
}

func (t *itemTx) AdjustBalance(ctx context.Context, bidderID string, delta decimal.Decimal) (*domain.Bidder, error) {
	query, args, err := t.s.adjustBalanceQuery(bidderID, delta)
	if err != nil {
		return nil, err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("adjust balance of %s: %w", bidderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if _, err := t.GetBidder(ctx, bidderID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: bidder %s", domain.ErrInsufficientFunds, bidderID)
	}
	return t.GetBidder(ctx, bidderID)
}

func (t *itemTx) AppendBid(ctx context.Context, bid *domain.Bid) error {
	query, args, err := t.s.insertBidQuery(bid)
	if err != nil {
		return err
	}
	return appendBid(ctx, t.tx, query, args, bid.ID)
}
