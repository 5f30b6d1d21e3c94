// Package service implements the bookstore's business operations on top of
// the SQL store. Every exported operation starts with a capability check and
// returns either a value or an *apperr.Error.
package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/safar/go-bookstore/internal/access"
	"github.com/safar/go-bookstore/internal/apperr"
	"github.com/safar/go-bookstore/internal/database"
	"github.com/safar/go-bookstore/internal/metrics"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/safar/go-bookstore/internal/service"

var tracer = otel.Tracer(tracerName)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func startSpan(ctx context.Context, name string, caller access.Caller, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.Int64("caller.id", caller.UserID),
		attribute.String("caller.role", string(caller.Role)),
	)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish records the outcome on the span and normalizes err. Business
// failures pass through unchanged; anything else is logged with context and
// replaced by an unexpected error.
func finish(ctx context.Context, span trace.Span, op string, caller access.Caller, err error) error {
	defer span.End()

	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind != apperr.KindUnexpected {
		metrics.Rejections.WithLabelValues(op, appErr.Kind.String()).Inc()
		span.SetAttributes(attribute.String("error.kind", appErr.Kind.String()))
		return appErr
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	zerolog.Ctx(ctx).Error().
		Err(err).
		Str("operation", op).
		Int64("caller_id", caller.UserID).
		Str("caller_role", string(caller.Role)).
		Msg("unexpected failure")

	if appErr != nil {
		return appErr
	}
	return apperr.Unexpected(op, err)
}

// memberProfile resolves the caller's member profile, mapping absence to a
// NotFound business error.
func memberProfile(ctx context.Context, q store.Querier, userID int64, forUpdate bool) (*models.MemberProfile, error) {
	profile, err := store.GetMemberProfileByUserID(ctx, q, userID, forUpdate)
	if errors.Is(err, database.ErrMemberProfileNotFound) {
		return nil, apperr.NotFound("member profile missing")
	}
	return profile, err
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}
	return page, pageSize
}
