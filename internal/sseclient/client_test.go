package sseclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/stockroom/api-go/internal/events"
	"github.com/example/stockroom/api-go/internal/obs"
)

func newTestClient(url string) *Client {
	c := New(url)
	c.Backoff = 10 * time.Millisecond
	c.Logger = obs.Discard()
	return c
}

func TestStreamParsesMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"CONNECTED\"}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "data: {\"type\":\"STOCK_UPDATE\",\n")
		fmt.Fprint(w, "data: \"payload\":{\"stock\":5}}\n\n")
		fmt.Fprint(w, "data: garbage\n\n")
		fmt.Fprint(w, "data: {\"type\":\"PRODUCT_UPDATE\"}\n\n")
	}))
	defer srv.Close()

	var got []events.Event
	err := newTestClient(srv.URL).Stream(context.Background(), func(ev events.Event) {
		got = append(got, ev)
	})
	assert.ErrorIs(t, err, ErrStreamClosed)

	require.Len(t, got, 3)
	assert.Equal(t, events.Connected, got[0].Type)
	assert.Equal(t, events.StockUpdate, got[1].Type)
	assert.EqualValues(t, 5, got[1].Payload["stock"])
	assert.Equal(t, events.ProductUpdate, got[2].Type)
}

func TestStreamRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Stream(context.Background(), func(events.Event) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestRunReconnectsAfterDisconnect(t *testing.T) {
	var connections atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		connections.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"CONNECTED\"}\n\n")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu        sync.Mutex
		connected int
	)
	done := make(chan error, 1)
	go func() {
		done <- newTestClient(srv.URL).Run(ctx, func(ev events.Event) {
			mu.Lock()
			defer mu.Unlock()
			if ev.Type == events.Connected {
				connected++
			}
		})
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connected >= 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop")
	}
	assert.GreaterOrEqual(t, connections.Load(), int32(3))
}

func TestRunStopsDuringBackoff(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1/events-stream")
	c.Backoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	require.NoError(t, c.Run(ctx, func(events.Event) {}))
	assert.Less(t, time.Since(start), time.Second)
}
