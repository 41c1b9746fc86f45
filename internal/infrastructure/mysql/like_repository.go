package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-storefront/internal/domain"

	"github.com/Masterminds/squirrel"
)

func (s *Store) AddLike(ctx context.Context, itemID, bidderID string) (int64, bool, error) {
	insert, args, err := s.SqlBuilder.
		Insert("likes").
		Options("IGNORE").
		Columns("item_id", "bidder_id", "created_at").
		Values(itemID, bidderID, time.Now().UTC()).
		ToSql()
	if err != nil {
		return 0, false, err
	}
	return s.toggleLike(ctx, itemID, bidderID, insert, args, "like_count + 1")
}

func (s *Store) RemoveLike(ctx context.Context, itemID, bidderID string) (int64, bool, error) {
	del, args, err := s.SqlBuilder.
		Delete("likes").
		Where(squirrel.Eq{"item_id": itemID, "bidder_id": bidderID}).
		ToSql()
	if err != nil {
		return 0, false, err
	}
	return s.toggleLike(ctx, itemID, bidderID, del, args, "GREATEST(like_count - 1, 0)")
}

// toggleLike runs the like row change and moves the item's counter in the
// same transaction, only when a row actually changed. The item version is
// left alone.
func (s *Store) toggleLike(ctx context.Context, itemID, bidderID, stmt string, args []interface{}, counter string) (int64, bool, error) {
	tx, err := s.Database.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	if err := s.checkLikeTarget(ctx, tx, itemID, bidderID); err != nil {
		return 0, false, err
	}

	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, false, fmt.Errorf("change like: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}

	changed := affected > 0
	if changed {
		update, uargs, err := s.SqlBuilder.
			Update("items").
			Set("like_count", squirrel.Expr(counter)).
			Where(squirrel.Eq{"id": itemID}).
			ToSql()
		if err != nil {
			return 0, false, err
		}
		if _, err := tx.ExecContext(ctx, update, uargs...); err != nil {
			return 0, false, fmt.Errorf("update like count: %w", err)
		}
	}

	count, err := s.likeCount(ctx, tx, itemID)
	if err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return count, changed, nil
}

func (s *Store) checkLikeTarget(ctx context.Context, q execer, itemID, bidderID string) error {
	if _, err := s.likeCount(ctx, q, itemID); err != nil {
		return err
	}
	_, err := getBidder(ctx, q, s.SqlBuilder, bidderID, "")
	return err
}

func (s *Store) likeCount(ctx context.Context, q execer, itemID string) (int64, error) {
	query, args, err := s.SqlBuilder.Select("like_count").From("items").Where(squirrel.Eq{"id": itemID}).ToSql()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrItemNotFound
		}
		return 0, fmt.Errorf("get like count: %w", err)
	}
	return count, nil
}

func (s *Store) HasLiked(ctx context.Context, itemID, bidderID string) (bool, error) {
	if _, err := s.likeCount(ctx, s.Database, itemID); err != nil {
		return false, err
	}
	query, args, err := s.SqlBuilder.
		Select("COUNT(*)").
		From("likes").
		Where(squirrel.Eq{"item_id": itemID, "bidder_id": bidderID}).
		ToSql()
	if err != nil {
		return false, err
	}
	var n int
	if err := s.Database.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("has liked: %w", err)
	}
	return n > 0, nil
}
