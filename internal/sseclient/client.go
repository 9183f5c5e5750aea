// Package sseclient follows the server's event stream and reconnects after a
// fixed backoff whenever the connection drops. Each reconnect is a new
// subscription; events published while disconnected are not recovered.
package sseclient

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/stockroom/api-go/internal/events"
	"github.com/example/stockroom/api-go/internal/obs"
)

const DefaultBackoff = 3 * time.Second

var ErrStreamClosed = errors.New("event stream closed by server")

type Handler func(events.Event)

type Client struct {
	URL     string
	HTTP    *http.Client
	Backoff time.Duration
	Logger  *slog.Logger
}

func New(url string) *Client {
	return &Client{URL: url, HTTP: &http.Client{}, Backoff: DefaultBackoff}
}

// Run delivers events to h until ctx is cancelled.
func (c *Client) Run(ctx context.Context, h Handler) error {
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	for {
		err := c.Stream(ctx, h)
		if ctx.Err() != nil {
			return nil
		}
		c.logger().Warn("event stream disconnected", "url", c.URL, "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

// Stream runs one connection to completion. It always returns a non-nil
// error describing why the stream ended.
func (c *Client) Stream(ctx context.Context, h Handler) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	var data [][]byte
	for scanner.Scan() {
		line := scanner.Bytes()
		switch {
		case len(line) == 0:
			if len(data) > 0 {
				c.dispatch(bytes.Join(data, []byte("\n")), h)
				data = data[:0]
			}
		case line[0] == ':':
			// comment / keepalive
		case bytes.HasPrefix(line, []byte("data:")):
			v := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
			data = append(data, append([]byte(nil), v...))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return ErrStreamClosed
}

func (c *Client) dispatch(raw []byte, h Handler) {
	ev, err := events.Decode(raw)
	if err != nil {
		c.logger().Warn("skipping malformed stream message", "error", err)
		return
	}
	h(ev)
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return obs.Logger
}
