package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewWebhookDisabled(t *testing.T) {
	t.Parallel()

	if NewWebhook(false, "http://example", nil) != nil {
		t.Fatal("disabled alerts should yield nil")
	}
	if NewWebhook(true, "", nil) != nil {
		t.Fatal("missing url should yield nil")
	}

	var w *Webhook
	if err := w.Critical(context.Background(), "sync", errors.New("x")); err != nil {
		t.Fatalf("nil webhook should be a no-op, got %v", err)
	}
}

func TestCriticalPostsPayload(t *testing.T) {
	t.Parallel()

	got := make(chan Payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- p
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(true, srv.URL, nil)
	w.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	if err := w.Critical(context.Background(), "sync", errors.New("discover: REQUEST_DENIED")); err != nil {
		t.Fatalf("Critical: %v", err)
	}
	p := <-got
	if p.Level != "critical" || p.Context != "sync" || p.Message != "discover: REQUEST_DENIED" {
		t.Fatalf("unexpected payload %+v", p)
	}
	if p.Timestamp != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected timestamp %s", p.Timestamp)
	}
}

func TestSendReportsHTTPFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(true, srv.URL, nil)
	if err := w.Send(context.Background(), Payload{Level: "critical"}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
