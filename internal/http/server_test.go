package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"finassist/internal/log"
	"finassist/internal/middleware/ratelimit"
	"finassist/internal/services"
	"finassist/internal/store/memory"
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

func newTestServer(t *testing.T, mutate func(*Options)) *Server {
	t.Helper()
	st := memory.New()
	logger := log.New(log.Config{Output: io.Discard})
	opts := Options{
		Addr:     ":0",
		Ledger:   services.NewLedgerService(st, st, services.WithLogger(logger)),
		Pinger:   st,
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	body := decode[ErrorResponse](t, rr)
	if body.Error != kind {
		t.Fatalf("expected error kind %q, got %+v", kind, body)
	}
	if body.Message == "" {
		t.Fatalf("expected a message, got %+v", body)
	}
}

func register(t *testing.T, srv *Server, username string) string {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/register", `{"username":"`+username+`","password":"pw"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", username, rr.Code, rr.Body.String())
	}
	return decode[map[string]string](t, rr)["userId"]
}

func createTx(t *testing.T, srv *Server, userID, kind, amount string) map[string]any {
	t.Helper()
	body := `{"user_id":"` + userID + `","kind":"` + kind + `","amount":` + amount + `,"description":"d","date":"2025-06-28"}`
	rr := do(t, srv, http.MethodPost, "/transactions", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	return decode[map[string]any](t, rr)
}

func TestIndexHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/", "/api/"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK || rr.Body.String() != banner {
			t.Fatalf("%s: %d %q", path, rr.Code, rr.Body.String())
		}
	}
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	rr := do(t, srv, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "finassist_api_http_requests_total") {
		t.Fatalf("request counter missing from metrics output")
	}

	expectError(t, do(t, srv, http.MethodGet, "/nope", ""), http.StatusNotFound, "NotFound")
}

func TestReadyzReportsBackendFailure(t *testing.T) {
	srv := newTestServer(t, func(o *Options) { o.Pinger = failingPinger{} })
	rr := do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "database is locked") {
		t.Fatalf("expected failure detail, got %s", rr.Body.String())
	}
}

func TestSecurityAndTraceHeaders(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := do(t, srv, http.MethodGet, "/healthz", "")
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id")
	}
}

func TestRegisterAndLogin(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(t, srv, http.MethodPost, "/register", `{"username":"alice","password":"secret"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rr.Code, rr.Body.String())
	}
	created := decode[map[string]string](t, rr)
	if created["userId"] == "" || created["username"] != "alice" {
		t.Fatalf("unexpected register body: %v", created)
	}
	if strings.Contains(rr.Body.String(), "secret") {
		t.Fatalf("password leaked: %s", rr.Body.String())
	}

	expectError(t, do(t, srv, http.MethodPost, "/register", `{"username":"alice","password":"other"}`), http.StatusConflict, "DuplicateUsername")
	expectError(t, do(t, srv, http.MethodPost, "/register", `{"username":"bob"}`), http.StatusBadRequest, "MissingField")
	expectError(t, do(t, srv, http.MethodPost, "/register", `{not json`), http.StatusBadRequest, "BadRequest")

	rr = do(t, srv, http.MethodPost, "/login", `{"username":"alice","password":"secret"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rr.Code, rr.Body.String())
	}
	if got := decode[map[string]string](t, rr)["userId"]; got != created["userId"] {
		t.Fatalf("login returned %q, want %q", got, created["userId"])
	}

	expectError(t, do(t, srv, http.MethodPost, "/login", `{"username":"alice","password":"Secret"}`), http.StatusUnauthorized, "InvalidCredentials")
	expectError(t, do(t, srv, http.MethodPost, "/login", `{"username":"Alice","password":"secret"}`), http.StatusUnauthorized, "InvalidCredentials")
	expectError(t, do(t, srv, http.MethodPost, "/login", ""), http.StatusBadRequest, "MissingField")
}

func TestTransactionsRequireUser(t *testing.T) {
	srv := newTestServer(t, nil)
	expectError(t, do(t, srv, http.MethodGet, "/transactions", ""), http.StatusUnauthorized, "MissingIdentifier")
	expectError(t, do(t, srv, http.MethodGet, "/transactions?user_id=ghost", ""), http.StatusUnauthorized, "UnknownIdentifier")
	expectError(t, do(t, srv, http.MethodPost, "/transactions", `{"kind":"income"}`), http.StatusUnauthorized, "MissingIdentifier")
	expectError(t, do(t, srv, http.MethodGet, "/summary", ""), http.StatusUnauthorized, "MissingIdentifier")
}

func TestTransactionLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	uid := register(t, srv, "alice")

	rr := do(t, srv, http.MethodGet, "/transactions?user_id="+uid, "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %d %s", rr.Code, rr.Body.String())
	}

	// legacy "type" key and string amount
	rr = do(t, srv, http.MethodPost, "/transactions",
		`{"user_id":"`+uid+`","type":"income","amount":"100.50","description":"salary","date":"2025-06-01"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	created := decode[map[string]any](t, rr)
	id, _ := created["id"].(string)
	if id == "" || created["kind"] != "income" || created["amount"] != 100.5 || created["userId"] != uid {
		t.Fatalf("unexpected created transaction: %v", created)
	}

	rr = do(t, srv, http.MethodGet, "/transactions/"+id+"?user_id="+uid, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rr.Code, rr.Body.String())
	}
	if got := decode[map[string]any](t, rr); got["description"] != "salary" || got["date"] != "2025-06-01" {
		t.Fatalf("get returned %v", got)
	}

	rr = do(t, srv, http.MethodPut, "/transactions/"+id, `{"user_id":"`+uid+`","description":"bonus"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rr.Code, rr.Body.String())
	}
	updated := decode[map[string]any](t, rr)
	if updated["description"] != "bonus" || updated["amount"] != 100.5 || updated["kind"] != "income" || updated["id"] != id {
		t.Fatalf("partial update changed other fields: %v", updated)
	}

	rr = do(t, srv, http.MethodDelete, "/transactions/"+id+"?user_id="+uid, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rr.Code, rr.Body.String())
	}
	if decode[MessageResponse](t, rr).Message != "Transaction deleted successfully." {
		t.Fatalf("unexpected delete body: %s", rr.Body.String())
	}

	expectError(t, do(t, srv, http.MethodGet, "/transactions/"+id+"?user_id="+uid, ""), http.StatusNotFound, "NotFound")
	expectError(t, do(t, srv, http.MethodDelete, "/transactions/"+id+"?user_id="+uid, ""), http.StatusNotFound, "NotFound")
	expectError(t, do(t, srv, http.MethodPut, "/transactions/"+id+"?user_id="+uid, `{"amount":1}`), http.StatusNotFound, "NotFound")
}

func TestCreateValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	uid := register(t, srv, "alice")

	rr := do(t, srv, http.MethodPost, "/transactions", `{"user_id":"`+uid+`","kind":"income","description":"d","date":"2025-01-01"}`)
	expectError(t, rr, http.StatusBadRequest, "MissingField")
	if !strings.Contains(decode[ErrorResponse](t, rr).Message, "amount") {
		t.Fatalf("message should name the field: %s", rr.Body.String())
	}

	expectError(t, do(t, srv, http.MethodPost, "/transactions",
		`{"user_id":"`+uid+`","kind":"income","amount":"ten","description":"d","date":"2025-01-01"}`),
		http.StatusBadRequest, "InvalidAmount")
	for _, amount := range []string{`"1e50000000"`, `1e50000000`, `"-1E-99999999"`} {
		done := make(chan *httptest.ResponseRecorder, 1)
		go func() {
			done <- do(t, srv, http.MethodPost, "/transactions",
				`{"user_id":"`+uid+`","kind":"income","amount":`+amount+`,"description":"d","date":"2025-01-01"}`)
		}()
		select {
		case rr := <-done:
			expectError(t, rr, http.StatusBadRequest, "InvalidAmount")
		case <-time.After(5 * time.Second):
			t.Fatalf("create with amount %s did not finish", amount)
		}
	}
	expectError(t, do(t, srv, http.MethodPost, "/transactions?user_id="+uid, `[1,2`), http.StatusBadRequest, "BadRequest")

	rr = do(t, srv, http.MethodGet, "/transactions?user_id="+uid, "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("rejected creates must not be stored: %s", rr.Body.String())
	}
}

func TestSummary(t *testing.T) {
	srv := newTestServer(t, nil)
	uid := register(t, srv, "alice")
	createTx(t, srv, uid, "income", "100")
	createTx(t, srv, uid, "expense", "40")

	rr := do(t, srv, http.MethodGet, "/api/summary?user_id="+uid, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("summary: %d %s", rr.Code, rr.Body.String())
	}
	got := decode[map[string]any](t, rr)
	if got["totalIncome"] != 100.0 || got["totalExpenses"] != 40.0 || got["netBalance"] != 60.0 || got["currency"] != "USD" {
		t.Fatalf("unexpected summary: %v", got)
	}
}

func TestTransactionFieldsStoredAsSent(t *testing.T) {
	srv := newTestServer(t, nil)
	uid := register(t, srv, "alice")

	rr := do(t, srv, http.MethodPost, "/transactions",
		`{"user_id":"`+uid+`","kind":" income","amount":100,"description":"  two  spaces\t","date":"2025-01-01"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	got := decode[map[string]any](t, rr)
	if got["kind"] != " income" || got["description"] != "  two  spaces\t" {
		t.Fatalf("fields altered: %v", got)
	}

	rr = do(t, srv, http.MethodGet, "/summary?user_id="+uid, "")
	if sum := decode[map[string]any](t, rr); sum["totalIncome"] != 0.0 {
		t.Fatalf("unrecognized kind must not count as income: %v", sum)
	}
}

func TestCrossUserIsolation(t *testing.T) {
	srv := newTestServer(t, nil)
	alice := register(t, srv, "alice")
	bob := register(t, srv, "bob")
	tx := createTx(t, srv, alice, "expense", "12.5")
	id := tx["id"].(string)

	rr := do(t, srv, http.MethodGet, "/transactions?user_id="+bob, "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("bob sees alice's ledger: %s", rr.Body.String())
	}
	expectError(t, do(t, srv, http.MethodGet, "/transactions/"+id+"?user_id="+bob, ""), http.StatusNotFound, "NotFound")
	expectError(t, do(t, srv, http.MethodPut, "/transactions/"+id, `{"user_id":"`+bob+`","amount":1}`), http.StatusNotFound, "NotFound")
	expectError(t, do(t, srv, http.MethodDelete, "/transactions/"+id+"?user_id="+bob, ""), http.StatusNotFound, "NotFound")

	rr = do(t, srv, http.MethodGet, "/transactions/"+id+"?user_id="+alice, "")
	if rr.Code != http.StatusOK || decode[map[string]any](t, rr)["amount"] != 12.5 {
		t.Fatalf("alice's transaction changed: %s", rr.Body.String())
	}
}

func TestQueryIdentifierWinsOverBody(t *testing.T) {
	srv := newTestServer(t, nil)
	alice := register(t, srv, "alice")
	bob := register(t, srv, "bob")

	rr := do(t, srv, http.MethodPost, "/transactions?user_id="+alice,
		`{"user_id":"`+bob+`","kind":"income","amount":1,"description":"d","date":"2025-01-01"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	if owner := decode[map[string]any](t, rr)["userId"]; owner != alice {
		t.Fatalf("expected owner %s, got %v", alice, owner)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := do(t, srv, http.MethodPatch, "/transactions", "")
	expectError(t, rr, http.StatusMethodNotAllowed, "MethodNotAllowed")
	if rr.Header().Get("Allow") != "GET, POST" {
		t.Fatalf("Allow = %q", rr.Header().Get("Allow"))
	}
	rr = do(t, srv, http.MethodGet, "/register", "")
	expectError(t, rr, http.StatusMethodNotAllowed, "MethodNotAllowed")
	if rr.Header().Get("Allow") != "POST" {
		t.Fatalf("Allow = %q", rr.Header().Get("Allow"))
	}
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{RequestsPerMinute: 2, CleanupInterval: time.Minute})
	srv := newTestServer(t, func(o *Options) { o.Limiter = limiter })

	for i := 0; i < 2; i++ {
		rr := do(t, srv, http.MethodPost, "/login", `{"username":"x","password":"y"}`)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rr.Code)
		}
	}
	rr := do(t, srv, http.MethodPost, "/register", `{"username":"x","password":"y"}`)
	expectError(t, rr, http.StatusTooManyRequests, "RateLimited")
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}

	// ledger routes are not throttled
	rr = do(t, srv, http.MethodGet, "/transactions", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("ledger route should not be limited, got %d", rr.Code)
	}
}

func TestNewServerRequiresLedger(t *testing.T) {
	if _, err := NewServer(Options{}); err == nil {
		t.Fatal("expected error without a ledger")
	}
}
