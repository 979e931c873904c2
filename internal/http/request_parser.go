package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"finassist/internal/core"
)

const maxBodyBytes = 1 << 20

// ErrMalformedBody is returned for bodies that are not a JSON object.
var ErrMalformedBody = errors.New("malformed request body")

// RequestBody is a JSON object body read once. The request body is restored
// so the next reader sees the same bytes.
type RequestBody struct {
	raw    []byte
	fields map[string]any
}

// ReadRequestBody reads and decodes r's body. An empty body yields no fields.
func ReadRequestBody(r *http.Request) (*RequestBody, error) {
	b := &RequestBody{fields: map[string]any{}}
	if r.Body == nil {
		return b, nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if len(raw) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body too large", ErrMalformedBody)
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	b.raw = raw

	if len(bytes.TrimSpace(raw)) == 0 {
		return b, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&b.fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if b.fields == nil {
		b.fields = map[string]any{}
	}
	return b, nil
}

// Lookup returns the value of key as text. Null counts as absent.
func (b *RequestBody) Lookup(key string) (string, bool) {
	val, ok := b.fields[key]
	if !ok || val == nil {
		return "", false
	}
	return stringValue(val), true
}

// Get returns the sanitized value of key, or "". Use it for identifiers.
func (b *RequestBody) Get(key string) string {
	v, _ := b.Lookup(key)
	return sanitizeInput(v)
}

// optional returns the first present key among keys, exactly as sent.
func (b *RequestBody) optional(keys ...string) *string {
	for _, k := range keys {
		if v, ok := b.Lookup(k); ok {
			return &v
		}
	}
	return nil
}

// TransactionInput maps the body onto a create request. "type" is accepted
// as an alias of "kind".
func (b *RequestBody) TransactionInput() core.TransactionInput {
	return core.TransactionInput{
		Kind:        b.optional("kind", "type"),
		Amount:      b.optional("amount"),
		Description: b.optional("description"),
		Date:        b.optional("date"),
	}
}

func (b *RequestBody) TransactionPatch() core.TransactionPatch {
	return core.TransactionPatch{
		Kind:        b.optional("kind", "type"),
		Amount:      b.optional("amount"),
		Description: b.optional("description"),
		Date:        b.optional("date"),
	}
}

// Raw returns the body bytes.
func (b *RequestBody) Raw() []byte {
	return b.raw
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// allowMethods reports whether r uses one of methods and otherwise writes a
// 405 with the Allow header.
func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, r, errMethodNotAllowed)
	return false
}
