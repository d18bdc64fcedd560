package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/driftpad/driftpad/pkg/protocol"
)

func TestEventsDeliversStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		data, _ := json.Marshal(protocol.FileEvent{
			Type:      "update",
			ProjectID: "p1",
			FileID:    "f1",
			Path:      "/main.go",
		})
		fmt.Fprintf(w, "event: update\ndata: %s\n\n", data)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := testClient(srv.URL)
	ch := c.Events(ctx, "p1")

	select {
	case ev := <-ch:
		if ev.Type != "update" || ev.FileID != "f1" {
			t.Errorf("event = %+v, want update f1", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case _, open := <-ch:
		if open {
			t.Error("channel still open after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestEventsStopsOnRejectedSubscription(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(protocol.ErrorResponse{
			Error: "invalid token",
			Code:  http.StatusUnauthorized,
		})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := testClient(srv.URL)
	ch := c.Events(ctx, "p1")

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("expected closed channel, got event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after server rejection")
	}

	// One dial, no redial: a refused subscription must not be retried.
	time.Sleep(100 * time.Millisecond)
	if n := requests.Load(); n != 1 {
		t.Errorf("server saw %d requests, want 1", n)
	}
}

func TestEventsBacksOffOnServerError(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := testClient(srv.URL)
	ch := c.Events(ctx, "p1")

	// The first dial fails; the second waits out the 1s backoff, so a short
	// window must see exactly one request and the channel must stay open.
	time.Sleep(300 * time.Millisecond)
	if n := requests.Load(); n != 1 {
		t.Errorf("server saw %d requests in 300ms, want 1 (backoff not applied)", n)
	}
	select {
	case _, open := <-ch:
		if !open {
			t.Error("channel closed on retryable server error")
		}
	default:
	}
}
