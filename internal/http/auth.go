package http

import (
	"context"
	"net/http"
	"strings"

	"finassist/internal/core"
	"finassist/internal/log"
)

type userContextKey struct{}

// UserFromContext returns the user resolved by requireUser.
func UserFromContext(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(core.User)
	return u, ok
}

// requestUserID reads user_id from the query string, then from the JSON body.
// The body is left readable for the handler.
func requestUserID(r *http.Request) (string, error) {
	if id := strings.TrimSpace(r.URL.Query().Get("user_id")); id != "" {
		return id, nil
	}
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	body, err := ReadRequestBody(r)
	if err != nil {
		return "", err
	}
	return body.Get("user_id"), nil
}

// requireUser resolves the caller before running next. Knowing a valid
// identifier is all it takes.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requestUserID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		user, err := s.ledger.Authenticate(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey{}, user)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, user.ID))
		next(w, r.WithContext(ctx))
	}
}
