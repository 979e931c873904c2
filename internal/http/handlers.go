package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"finassist/internal/log"
)

const banner = "Financial Assistant backend is running!"

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(banner))
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports 503 when the store does not answer.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]string{"backend": "ok"}
	if s.pinger == nil {
		checks["backend"] = "not_configured"
	} else if err := s.pinger.Ping(ctx); err != nil {
		checks["backend"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
	}
	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// credentials are taken verbatim: usernames are case-sensitive and passwords
// are compared as stored.
func credentials(r *http.Request) (string, string, error) {
	body, err := ReadRequestBody(r)
	if err != nil {
		return "", "", err
	}
	username, _ := body.Lookup("username")
	password, _ := body.Lookup("password")
	if username == "" || password == "" {
		return "", "", errMissingCredentials
	}
	return username, password, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	username, password, err := credentials(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.ledger.Register(r.Context(), username, password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "User registered",
		log.FieldOperation, log.OpRegister,
		log.FieldUserID, user.ID,
		log.FieldUsername, user.Username)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	username, password, err := credentials(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.ledger.Login(r.Context(), username, password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleTransactions serves GET (list) and POST (create) on /transactions.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		txs, err := s.ledger.ListTransactions(r.Context(), user.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, txs)
	case http.MethodPost:
		body, err := ReadRequestBody(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		tx, err := s.ledger.CreateTransaction(r.Context(), user.ID, body.TransactionInput())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

// handleTransaction serves GET, PUT and DELETE on /transactions/{id}.
func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	txID := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		tx, err := s.ledger.GetTransaction(r.Context(), user.ID, txID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	case http.MethodPut:
		body, err := ReadRequestBody(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		tx, err := s.ledger.UpdateTransaction(r.Context(), user.ID, txID, body.TransactionPatch())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	case http.MethodDelete:
		if err := s.ledger.DeleteTransaction(r.Context(), user.ID, txID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: msgTransactionDeleted})
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	summary, err := s.ledger.Summary(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
