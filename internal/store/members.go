package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-bookstore/internal/database"
	"github.com/safar/go-bookstore/internal/models"
)

func CreateMemberProfile(ctx context.Context, q Querier, userID int64) (*models.MemberProfile, error) {
	profile := &models.MemberProfile{}

	err := q.QueryRowContext(ctx,
		`INSERT INTO member_profiles (user_id, total_orders, created_at, updated_at)
		 VALUES ($1, 0, NOW(), NOW())
		 RETURNING id, user_id, total_orders, created_at, updated_at`,
		userID).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.TotalOrders,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create member profile: %w", err)
	}

	return profile, nil
}

// GetMemberProfileByUserID loads the profile of a user. With forUpdate the
// row stays locked until the surrounding transaction ends, which serializes
// concurrent checkouts of the same member.
func GetMemberProfileByUserID(ctx context.Context, q Querier, userID int64, forUpdate bool) (*models.MemberProfile, error) {
	query := `
		SELECT id, user_id, total_orders, created_at, updated_at
		FROM member_profiles
		WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	profile := &models.MemberProfile{}
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.TotalOrders,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrMemberProfileNotFound
		}
		return nil, fmt.Errorf("get member profile: %w", err)
	}

	return profile, nil
}

func IncrementTotalOrders(ctx context.Context, tx *sql.Tx, memberProfileID int64) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE member_profiles
		 SET total_orders = total_orders + 1,
		     updated_at = NOW()
		 WHERE id = $1`,
		memberProfileID)
	if err != nil {
		return fmt.Errorf("increment total orders: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrMemberProfileNotFound
	}

	return nil
}

func SetTotalOrders(ctx context.Context, q Querier, memberProfileID int64, totalOrders int) error {
	_, err := q.ExecContext(ctx,
		`UPDATE member_profiles SET total_orders = $1, updated_at = NOW() WHERE id = $2`,
		totalOrders, memberProfileID)
	if err != nil {
		return fmt.Errorf("set total orders: %w", err)
	}
	return nil
}
