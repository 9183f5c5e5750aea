package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/example/stockroom/api-go/internal/events"
)

// handleEventsStream holds a server-sent event stream open until the client
// goes away. Every connection is a fresh subscriber with no resume cursor.
func (s Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	sink, err := events.NewSSEWriter(w)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	b := events.NewBroadcaster(s.Channel, s.PollInterval)
	b.Metrics = s.Metrics
	b.Logger = s.logger()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if s.Streams != nil {
		stop := context.AfterFunc(s.Streams, cancel)
		defer stop()
	}

	err = b.Serve(ctx, sink)
	switch {
	case err == nil, events.IsSinkError(err):
		return
	case !sink.Started():
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("event stream unavailable: %w", err))
	default:
		s.logger().Warn("event stream ended", "subscriber", b.ID, "error", err)
	}
}
