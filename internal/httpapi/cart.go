package httpapi

import (
	"net/http"

	"github.com/safar/go-bookstore/internal/access"
)

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request, caller access.Caller) {
	cart, err := s.carts.GetCart(r.Context(), caller)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "cart", cart)
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request, caller access.Caller) {
	var req struct {
		BookID   int64 `json:"bookId"`
		Quantity int   `json:"quantity"`
	}
	if err := decodeBody(r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	item, err := s.carts.AddToCart(r.Context(), caller, req.BookID, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "item", item)
}

func (s *Server) handleUpdateCartItem(w http.ResponseWriter, r *http.Request, caller access.Caller) {
	id, err := pathID(r, "itemId")
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

	item, err := s.carts.UpdateCartItem(r.Context(), caller, id, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "item", item)
}

func (s *Server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request, caller access.Caller) {
	id, err := pathID(r, "itemId")
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.carts.RemoveFromCart(r.Context(), caller, id); err != nil {
		respondError(w, r, err)
		return
	}

	respondMessage(w, r, http.StatusOK, "item removed")
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request, caller access.Caller) {
	removed, err := s.carts.ClearCart(r.Context(), caller)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "removed", removed)
}
