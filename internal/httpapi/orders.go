package httpapi

import (
	"net/http"
	"strconv"

	"github.com/safar/go-bookstore/internal/access"
	"github.com/safar/go-bookstore/internal/apperr"
	"github.com/safar/go-bookstore/internal/service"
)

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request, caller access.Caller) {
	var req struct {
		Note string `json:"note"`
	}
	if err := decodeBody(r, &req, true); err != nil {
		respondError(w, r, err)
		return
	}

	order, err := s.orders.CreateOrder(r.Context(), caller, req.Note)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "order", order)
}

func (s *Server) handleListOwnOrders(w http.ResponseWriter, r *http.Request, caller access.Caller) {
	page, err := s.orders.ListOwnOrders(r.Context(), caller, r.URL.Query().Get("cursor"), queryInt(r, "limit"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "orders", page)
}

func (s *Server) handleListAllOrders(w http.ResponseWriter, r *http.Request, caller access.Caller) {
	var processed *bool
	if raw := r.URL.Query().Get("processed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, r, apperr.Invalid("processed must be true or false"))
			return
		}
		processed = &v
	}

	page, err := s.orders.ListAllOrders(r.Context(), caller, processed, queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "orders", page)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request, caller access.Caller) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	order, err := s.orders.GetOrder(r.Context(), caller, id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "order", order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request, caller access.Caller) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	order, err := s.orders.CancelOrder(r.Context(), caller, id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "order", order)
}

func (s *Server) handleProcessOrder(w http.ResponseWriter, r *http.Request, caller access.Caller) {
	var req struct {
		ClaimCode    string `json:"claimCode"`
		MembershipID int64  `json:"membershipId"`
		AutoAccept   bool   `json:"autoAccept"`
	}
	if err := decodeBody(r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	order, err := s.orders.ProcessOrder(r.Context(), caller, service.ProcessRequest{
		ClaimCode:    req.ClaimCode,
		MembershipID: req.MembershipID,
		AutoAccept:   req.AutoAccept,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, "order", order)
}
