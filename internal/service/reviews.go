package service

import (
	"context"
	"database/sql"
	"errors"
	"unicode/utf8"

	"github.com/safar/go-bookstore/internal/access"
	"github.com/safar/go-bookstore/internal/apperr"
	"github.com/safar/go-bookstore/internal/database"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/store"
	"go.opentelemetry.io/otel/attribute"
)

const MaxCommentLength = 2000

type ReviewService struct {
	db *sql.DB
}

func NewReviewService(db *sql.DB) *ReviewService {
	return &ReviewService{db: db}
}

// CreateReview records a rating for a book the caller has picked up.
func (s *ReviewService) CreateReview(ctx context.Context, caller access.Caller, bookID int64, rating int, comment string) (*models.Review, error) {
	ctx, span := startSpan(ctx, "ReviewService.CreateReview", caller, attribute.Int64("book.id", bookID))

	review, err := s.createReview(ctx, caller, bookID, rating, comment)
	if err = finish(ctx, span, "create_review", caller, err); err != nil {
		return nil, err
	}
	return review, nil
}

func (s *ReviewService) createReview(ctx context.Context, caller access.Caller, bookID int64, rating int, comment string) (*models.Review, error) {
	if err := access.Require(caller.Role, access.WriteReview); err != nil {
		return nil, err
	}
	if rating < 1 || rating > 5 {
		return nil, apperr.Invalid("rating must be between 1 and 5")
	}
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return nil, apperr.Invalid("comment must be at most %d characters", MaxCommentLength)
	}

	if _, err := store.GetBook(ctx, s.db, bookID); err != nil {
		if errors.Is(err, database.ErrBookNotFound) {
			return nil, apperr.NotFound("book %d not found", bookID)
		}
		return nil, err
	}

	profile, err := memberProfile(ctx, s.db, caller.UserID, false)
	if err != nil {
		return nil, err
	}

	purchased, err := store.HasCollectedPurchase(ctx, s.db, profile.ID, bookID)
	if err != nil {
		return nil, err
	}
	if !purchased {
		return nil, apperr.Forbidden("purchase required to review")
	}

	review, err := store.CreateReview(ctx, s.db, profile.ID, bookID, rating, comment)
	if errors.Is(err, database.ErrReviewExists) {
		return nil, apperr.InvalidState("book already reviewed")
	}
	return review, err
}

func (s *ReviewService) ListReviews(ctx context.Context, bookID int64) ([]models.Review, error) {
	ctx, span := startSpan(ctx, "ReviewService.ListReviews", access.Caller{}, attribute.Int64("book.id", bookID))

	reviews, err := s.listReviews(ctx, bookID)
	if err = finish(ctx, span, "list_reviews", access.Caller{}, err); err != nil {
		return nil, err
	}
	return reviews, nil
}

func (s *ReviewService) listReviews(ctx context.Context, bookID int64) ([]models.Review, error) {
	if _, err := store.GetBook(ctx, s.db, bookID); err != nil {
		if errors.Is(err, database.ErrBookNotFound) {
			return nil, apperr.NotFound("book %d not found", bookID)
		}
		return nil, err
	}
	return store.ListReviewsForBook(ctx, s.db, bookID)
}
