package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/example/stockroom/api-go/internal/metrics"
	"github.com/example/stockroom/api-go/internal/obs"
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Sink receives serialized events for one viewer.
type Sink interface {
	Send(data []byte) error
}

// Broadcaster streams channel entries to a single viewer. It is used once:
// CONNECTING until the CONNECTED greeting is written, OPEN while polling,
// CLOSED after cancellation or a failed write. A reconnecting client gets a
// new Broadcaster starting at the channel head.
type Broadcaster struct {
	ID       string
	Channel  Channel
	Interval time.Duration
	Metrics  *metrics.Collector
	Logger   *slog.Logger

	state atomic.Int32
}

func NewBroadcaster(ch Channel, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = time.Second
	}
	return &Broadcaster{
		ID:       uuid.NewString(),
		Channel:  ch,
		Interval: interval,
	}
}

func (b *Broadcaster) State() State { return State(b.state.Load()) }

type sinkError struct{ err error }

func (e *sinkError) Error() string { return "write to subscriber: " + e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

// Serve runs until ctx is cancelled (nil error) or the sink fails (the
// write error). An error reading the channel head before the stream opens
// is returned as is, with nothing written to the sink.
func (b *Broadcaster) Serve(ctx context.Context, sink Sink) error {
	b.state.Store(int32(StateConnecting))
	defer b.state.Store(int32(StateClosed))

	cursor, err := b.Channel.Head(ctx)
	if err != nil {
		return fmt.Errorf("read channel head: %w", err)
	}

	greeting, _ := json.Marshal(Event{Type: Connected, Timestamp: time.Now().UnixMilli()})
	if err := sink.Send(greeting); err != nil {
		return &sinkError{err: err}
	}
	b.state.Store(int32(StateOpen))
	b.Metrics.BroadcasterOpened()
	defer b.Metrics.BroadcasterClosed()
	b.logger().Debug("event stream open", "subscriber", b.ID, "cursor", cursor)

	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.logger().Debug("event stream closed", "subscriber", b.ID)
			return nil
		case <-ticker.C:
			cursor, err = b.drain(ctx, sink, cursor)
			if err != nil {
				b.logger().Info("event stream aborted", "subscriber", b.ID, "error", err)
				return err
			}
		}
	}
}

// drain forwards every entry after cursor and returns the new cursor. Only
// sink failures are returned; channel read failures are retried next tick.
func (b *Broadcaster) drain(ctx context.Context, sink Sink, cursor int64) (int64, error) {
	entries, err := b.Channel.After(ctx, cursor)
	if err != nil {
		if ctx.Err() == nil {
			b.logger().Warn("event channel read failed", "subscriber", b.ID, "error", err)
		}
		return cursor, nil
	}
	for _, e := range entries {
		cursor = e.Seq
		if _, err := Decode(e.Body); err != nil {
			b.Metrics.EventMalformed()
			b.logger().Warn("skipping malformed event", "subscriber", b.ID, "seq", e.Seq, "error", err)
			continue
		}
		if err := sink.Send(e.Body); err != nil {
			return cursor, &sinkError{err: err}
		}
		b.Metrics.EventForwarded()
	}
	return cursor, nil
}

// IsSinkError reports whether err came from writing to the subscriber.
func IsSinkError(err error) bool {
	var se *sinkError
	return errors.As(err, &se)
}

func (b *Broadcaster) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return obs.Logger
}
