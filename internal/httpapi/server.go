// Package httpapi exposes the bookstore services over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/safar/go-bookstore/internal/access"
	"github.com/safar/go-bookstore/internal/logging"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/service"
	"github.com/safar/go-bookstore/internal/store"
)

type Orders interface {
	CreateOrder(ctx context.Context, caller access.Caller, note string) (*models.Order, error)
	CancelOrder(ctx context.Context, caller access.Caller, orderID int64) (*models.Order, error)
	ProcessOrder(ctx context.Context, caller access.Caller, req service.ProcessRequest) (*models.Order, error)
	GetOrder(ctx context.Context, caller access.Caller, orderID int64) (*models.Order, error)
	ListOwnOrders(ctx context.Context, caller access.Caller, cursor string, limit int) (*store.CursorPage, error)
	ListAllOrders(ctx context.Context, caller access.Caller, processed *bool, page, pageSize int) (*store.OffsetPage, error)
}

type Carts interface {
	GetCart(ctx context.Context, caller access.Caller) (*service.Cart, error)
	AddToCart(ctx context.Context, caller access.Caller, bookID int64, quantity int) (*models.CartItem, error)
	UpdateCartItem(ctx context.Context, caller access.Caller, itemID int64, quantity int) (*models.CartItem, error)
	RemoveFromCart(ctx context.Context, caller access.Caller, itemID int64) error
	ClearCart(ctx context.Context, caller access.Caller) (int64, error)
}

type Catalog interface {
	ListBooks(ctx context.Context, page, pageSize int) (*store.OffsetPage, error)
	GetBook(ctx context.Context, bookID int64) (*models.Book, error)
	CreateBook(ctx context.Context, caller access.Caller, b service.NewBook) (*models.Book, error)
	Restock(ctx context.Context, caller access.Caller, bookID int64, delta int) (*models.Book, error)
}

type Reviews interface {
	CreateReview(ctx context.Context, caller access.Caller, bookID int64, rating int, comment string) (*models.Review, error)
	ListReviews(ctx context.Context, bookID int64) ([]models.Review, error)
}

type Config struct {
	Orders  Orders
	Carts   Carts
	Catalog Catalog
	Reviews Reviews
	Policy  access.Policy
	// Feed serves the activity feed websocket.
	Feed http.Handler
	// Ping reports whether the database is reachable.
	Ping   func(ctx context.Context) error
	Logger zerolog.Logger
}

type Server struct {
	orders  Orders
	carts   Carts
	catalog Catalog
	reviews Reviews
	policy  access.Policy
	ping    func(ctx context.Context) error
	mux     *http.ServeMux
	handler http.Handler
}

func NewServer(cfg Config) *Server {
	s := &Server{
		orders:  cfg.Orders,
		carts:   cfg.Carts,
		catalog: cfg.Catalog,
		reviews: cfg.Reviews,
		policy:  cfg.Policy,
		ping:    cfg.Ping,
		mux:     http.NewServeMux(),
	}

	s.route("GET /healthz", http.HandlerFunc(s.handleHealth))
	s.mux.Handle("GET /metrics", promhttp.Handler())
	if cfg.Feed != nil {
		s.route("GET /api/feed", cfg.Feed)
	}

	s.route("GET /api/Book", http.HandlerFunc(s.handleListBooks))
	s.route("POST /api/Book", s.authenticated(s.handleCreateBook))
	s.route("GET /api/Book/{id}", http.HandlerFunc(s.handleGetBook))
	s.route("POST /api/Book/{id}/stock", s.authenticated(s.handleRestock))
	s.route("GET /api/Book/{id}/reviews", http.HandlerFunc(s.handleListReviews))
	s.route("POST /api/Review", s.authenticated(s.handleCreateReview))

	s.route("GET /api/Cart", s.authenticated(s.handleGetCart))
	s.route("POST /api/Cart", s.authenticated(s.handleAddToCart))
	s.route("DELETE /api/Cart", s.authenticated(s.handleClearCart))
	s.route("PUT /api/Cart/{itemId}", s.authenticated(s.handleUpdateCartItem))
	s.route("DELETE /api/Cart/{itemId}", s.authenticated(s.handleRemoveFromCart))

	s.route("POST /api/Order", s.authenticated(s.handleCreateOrder))
	s.route("GET /api/Order", s.authenticated(s.handleListOwnOrders))
	s.route("GET /api/Order/all", s.authenticated(s.handleListAllOrders))
	s.route("POST /api/Order/process", s.authenticated(s.handleProcessOrder))
	s.route("GET /api/Order/{id}", s.authenticated(s.handleGetOrder))
	s.route("POST /api/Order/{id}/cancel", s.authenticated(s.handleCancelOrder))

	s.handler = withTracing(logging.Middleware(cfg.Logger)(withRecovery(s.mux)))
	return s
}

func (s *Server) route(pattern string, h http.Handler) {
	s.mux.Handle(pattern, instrument(pattern, h))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.ping(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("health check failed")
		respondMessage(w, r, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, r, http.StatusOK, "status", "ok")
}
