package store

import (
	"context"
	"fmt"

	"github.com/safar/go-bookstore/internal/database"
	"github.com/safar/go-bookstore/internal/models"
)

const reviewUniqueConstraint = "reviews_member_book_key"

func CreateReview(ctx context.Context, q Querier, memberProfileID, bookID int64, rating int, comment string) (*models.Review, error) {
	review := &models.Review{}

	err := q.QueryRowContext(ctx,
		`INSERT INTO reviews (member_profile_id, book_id, rating, comment, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING id, member_profile_id, book_id, rating, comment, created_at`,
		memberProfileID, bookID, rating, comment).Scan(
		&review.ID,
		&review.MemberProfileID,
		&review.BookID,
		&review.Rating,
		&review.Comment,
		&review.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, reviewUniqueConstraint) {
			return nil, database.ErrReviewExists
		}
		return nil, fmt.Errorf("create review: %w", err)
	}

	return review, nil
}

func ListReviewsForBook(ctx context.Context, q Querier, bookID int64) ([]models.Review, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, member_profile_id, book_id, rating, comment, created_at
		 FROM reviews
		 WHERE book_id = $1
		 ORDER BY created_at DESC, id DESC`,
		bookID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		var review models.Review
		err := rows.Scan(
			&review.ID,
			&review.MemberProfileID,
			&review.BookID,
			&review.Rating,
			&review.Comment,
			&review.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, review)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return reviews, nil
}
