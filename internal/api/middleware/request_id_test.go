package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/observability"
)

func runRequestID(t *testing.T, clientID string) (string, *httptest.ResponseRecorder) {
	t.Helper()

	var ctxID string
	handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctxID = observability.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	if clientID != "" {
		req.Header.Set(requestIDHeader, clientID)
	}
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	return ctxID, rec
}

func TestRequestID_PropagatesClientID(t *testing.T) {
	ctxID, rec := runRequestID(t, "client-req-42")

	if ctxID != "client-req-42" {
		t.Errorf("context id = %q, want client-req-42", ctxID)
	}
	if got := rec.Header().Get(requestIDHeader); got != "client-req-42" {
		t.Errorf("response header = %q, want client-req-42", got)
	}
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	ctxID, rec := runRequestID(t, "")

	if ctxID == "" {
		t.Fatal("no request id in context")
	}
	if _, err := uuid.Parse(ctxID); err != nil {
		t.Errorf("generated id %q is not a uuid: %v", ctxID, err)
	}
	if got := rec.Header().Get(requestIDHeader); got != ctxID {
		t.Errorf("response header = %q, want %q", got, ctxID)
	}
}

func TestRequestID_ReplacesOversizedID(t *testing.T) {
	oversized := strings.Repeat("x", maxRequestIDLen+1)
	ctxID, _ := runRequestID(t, oversized)

	if ctxID == oversized {
		t.Fatal("oversized client id was propagated")
	}
	if _, err := uuid.Parse(ctxID); err != nil {
		t.Errorf("replacement id %q is not a uuid: %v", ctxID, err)
	}
}
