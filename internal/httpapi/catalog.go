package httpapi

import (
	"net/http"

	"github.com/safar/go-bookstore/internal/access"
	"github.com/safar/go-bookstore/internal/service"
)

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	page, err := s.catalog.ListBooks(r.Context(), queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "books", page)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	book, err := s.catalog.GetBook(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "book", book)
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, caller access.Caller) {
	var req service.NewBook
	if err := decodeBody(r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	book, err := s.catalog.CreateBook(r.Context(), caller, req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "book", book)
}

func (s *Server) handleRestock(w http.ResponseWriter, r *http.Request, caller access.Caller) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeBody(r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	book, err := s.catalog.Restock(r.Context(), caller, id, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "book", book)
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	reviews, err := s.reviews.ListReviews(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "reviews", reviews)
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request, caller access.Caller) {
	var req struct {
		BookID  int64  `json:"bookId"`
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := decodeBody(r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	review, err := s.reviews.CreateReview(r.Context(), caller, req.BookID, req.Rating, req.Comment)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "review", review)
}
