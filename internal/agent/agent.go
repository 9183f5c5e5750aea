// Package agent is the printer-side consumer of the print queue. It polls
// the server, claims one job per request and spools the rendered label for
// the printer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/time/rate"

	"github.com/example/stockroom/api-go/internal/model"
	"github.com/example/stockroom/api-go/internal/obs"
)

// Spool receives rendered labels.
type Spool interface {
	Put(relPath string, r io.Reader) (string, error)
}

type Agent struct {
	ServerURL string
	Client    *http.Client
	Interval  time.Duration
	Limiter   *rate.Limiter
	Spool     Spool
	Encoding  encoding.Encoding
	Logger    *slog.Logger
}

// New builds an agent claiming at most claimsPerSecond jobs.
func New(serverURL string, spool Spool, interval time.Duration, claimsPerSecond float64) *Agent {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	limit := rate.Inf
	if claimsPerSecond > 0 {
		limit = rate.Limit(claimsPerSecond)
	}
	return &Agent{
		ServerURL: strings.TrimRight(serverURL, "/"),
		Client:    &http.Client{Timeout: 10 * time.Second},
		Interval:  interval,
		Limiter:   rate.NewLimiter(limit, 1),
		Spool:     spool,
	}
}

// Run claims jobs until ctx is cancelled. While jobs keep coming it claims
// back to back, paced by the limiter; an empty queue or an error waits one
// interval.
func (a *Agent) Run(ctx context.Context) error {
	a.logger().Info("printer agent started", "server", a.ServerURL, "interval", a.Interval)
	for {
		printed, err := a.ClaimOnce(ctx)
		if ctx.Err() != nil {
			a.logger().Info("printer agent stopped")
			return nil
		}
		if err != nil {
			a.logger().Warn("print claim failed", "error", err)
		}
		if printed {
			continue
		}
		select {
		case <-ctx.Done():
			a.logger().Info("printer agent stopped")
			return nil
		case <-time.After(a.Interval):
		}
	}
}

// ClaimOnce claims and spools at most one job, reporting whether it did.
func (a *Agent) ClaimOnce(ctx context.Context) (bool, error) {
	if a.Limiter != nil {
		if err := a.Limiter.Wait(ctx); err != nil {
			return false, err
		}
	}
	job, err := a.claim(ctx)
	if err != nil || job == nil {
		return false, err
	}

	name := fmt.Sprintf("labels/%d-%s.zpl", job.CreatedAt.UnixMilli(), job.ID)
	// The server has already deleted the job; a spool failure loses this label.
	if _, err := a.Spool.Put(name, Encode(RenderLabel(*job), a.Encoding)); err != nil {
		return true, fmt.Errorf("spool job %s: %w", job.ID, err)
	}
	a.logger().Info("label spooled", "job_id", job.ID, "sku", job.SKU, "barcode", job.Barcode, "file", name)
	return true, nil
}

func (a *Agent) claim(ctx context.Context) (*model.EnrichedPrintJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.ServerURL+"/print-queue", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("claim: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		Job *model.EnrichedPrintJob `json:"job"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode claim: %w", err)
	}
	return out.Job, nil
}

func (a *Agent) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return obs.Logger
}
