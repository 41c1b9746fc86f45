package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auction-storefront/internal/domain"

	"github.com/Masterminds/squirrel"
)

var bidderColumns = []string{"id", "display_name", "balance", "is_admin", "version"}

func scanBidder(row rowScanner) (*domain.Bidder, error) {
	var b domain.Bidder
	if err := row.Scan(&b.ID, &b.DisplayName, &b.Balance, &b.IsAdmin, &b.Version); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) CreateBidder(ctx context.Context, bidder *domain.Bidder) error {
	if bidder.ID == "" {
		return fmt.Errorf("bidder id is required")
	}
	query, args, err := s.SqlBuilder.
		Insert("bidders").
		Columns(bidderColumns...).
		Values(bidder.ID, bidder.DisplayName, bidder.Balance, bidder.IsAdmin, bidder.Version).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.Database.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateBidder, bidder.ID)
		}
		return fmt.Errorf("insert bidder: %w", err)
	}
	return nil
}

func getBidder(ctx context.Context, q execer, builder squirrel.StatementBuilderType, bidderID string, suffix string) (*domain.Bidder, error) {
	sel := builder.Select(bidderColumns...).From("bidders").Where(squirrel.Eq{"id": bidderID})
	if suffix != "" {
		sel = sel.Suffix(suffix)
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}
	b, err := scanBidder(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBidderNotFound
		}
		return nil, fmt.Errorf("get bidder %s: %w", bidderID, err)
	}
	return b, nil
}

func (s *Store) GetBidder(ctx context.Context, bidderID string) (*domain.Bidder, error) {
	return getBidder(ctx, s.Database, s.SqlBuilder, bidderID, "")
}

func (s *Store) ListBidders(ctx context.Context) ([]*domain.Bidder, error) {
	query, args, err := s.SqlBuilder.Select(bidderColumns...).From("bidders").OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.Database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bidders: %w", err)
	}
	defer rows.Close()

	var bidders []*domain.Bidder
	for rows.Next() {
		b, err := scanBidder(rows)
		if err != nil {
			return nil, err
		}
		bidders = append(bidders, b)
	}
	return bidders, rows.Err()
}
