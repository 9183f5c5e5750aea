package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/stockroom/api-go/internal/obs"
	"github.com/example/stockroom/api-go/internal/store"
)

// Entry is one raw channel item; Seq only grows.
type Entry struct {
	Seq  int64
	Body []byte
}

// Channel is the shared append-only log that publishers write and
// broadcasters read. Readers keep their own cursor; reading never removes
// anything.
type Channel interface {
	Append(ctx context.Context, body []byte) (int64, error)
	After(ctx context.Context, cursor int64) ([]Entry, error)
	Head(ctx context.Context) (int64, error)
}

// LogStore is the subset of store.DB backing SQLChannel.
type LogStore interface {
	AppendEvent(ctx context.Context, topic string, body []byte, olderThan time.Time, maxEntries int) (int64, error)
	EventsAfter(ctx context.Context, topic string, cursor int64, limit int) ([]store.EventRow, error)
	EventHead(ctx context.Context, topic string) (int64, error)
	TrimEvents(ctx context.Context, topic string, olderThan time.Time) (int64, error)
}

// SQLChannel keeps one topic in the events table. Entries older than
// Retention are trimmed on every append and by RunJanitor, so an idle
// channel empties itself.
type SQLChannel struct {
	Store      LogStore
	Topic      string
	Retention  time.Duration
	MaxEntries int
	ReadLimit  int
	Logger     *slog.Logger
}

func NewSQLChannel(s LogStore, topic string, retention time.Duration, maxEntries int) *SQLChannel {
	return &SQLChannel{
		Store:      s,
		Topic:      topic,
		Retention:  retention,
		MaxEntries: maxEntries,
	}
}

func (c *SQLChannel) Append(ctx context.Context, body []byte) (int64, error) {
	return c.Store.AppendEvent(ctx, c.Topic, body, c.cutoff(), c.MaxEntries)
}

func (c *SQLChannel) After(ctx context.Context, cursor int64) ([]Entry, error) {
	rows, err := c.Store.EventsAfter(ctx, c.Topic, cursor, c.ReadLimit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{Seq: r.Seq, Body: r.Body})
	}
	return out, nil
}

func (c *SQLChannel) Head(ctx context.Context) (int64, error) {
	return c.Store.EventHead(ctx, c.Topic)
}

// RunJanitor trims expired entries every interval until ctx is done.
func (c *SQLChannel) RunJanitor(ctx context.Context, interval time.Duration) {
	if c.Retention <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Store.TrimEvents(ctx, c.Topic, c.cutoff())
			if err != nil {
				if ctx.Err() == nil {
					c.logger().Warn("event channel trim failed", "topic", c.Topic, "error", err)
				}
				continue
			}
			if n > 0 {
				c.logger().Debug("event channel trimmed", "topic", c.Topic, "removed", n)
			}
		}
	}
}

func (c *SQLChannel) cutoff() time.Time {
	if c.Retention <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-c.Retention)
}

func (c *SQLChannel) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return obs.Logger
}
