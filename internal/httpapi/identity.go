package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/safar/go-bookstore/internal/access"
	"github.com/safar/go-bookstore/internal/apperr"
)

// UserIDHeader carries the authenticated user id, set by the session layer
// in front of this service.
const UserIDHeader = "X-User-ID"

type callerHandler func(w http.ResponseWriter, r *http.Request, caller access.Caller)

// authenticated resolves the caller from the request before running h.
// Missing or unknown identities are rejected with 401.
func (s *Server) authenticated(h callerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if raw == "" {
			respondError(w, r, apperr.Unauthenticated("authentication required"))
			return
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID < 1 {
			respondError(w, r, apperr.Unauthenticated("authentication required"))
			return
		}

		role, err := s.policy.RoleOf(r.Context(), userID)
		if err != nil {
			respondError(w, r, err)
			return
		}

		h(w, r, access.Caller{UserID: userID, Role: role})
	}
}
