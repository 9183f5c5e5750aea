// Package printqueue hands label print jobs to printer agents one at a time.
//
// A job is removed from the store in the same statement that selects it, so
// no two agents ever print the same label. An agent that crashes after the
// claim loses that label; the queue prefers a missing label over a duplicate.
package printqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/stockroom/api-go/internal/metrics"
	"github.com/example/stockroom/api-go/internal/model"
	"github.com/example/stockroom/api-go/internal/obs"
)

const DefaultMaxCopies = 100

// Store is the persistence the queue needs.
type Store interface {
	EnqueuePrintJobs(ctx context.Context, productID string, copies int) ([]model.PrintJob, error)
	ClaimOldestPrintJob(ctx context.Context) (model.PrintJob, error)
	CountPrintJobs(ctx context.Context) (int, error)
	GetProductBySKU(ctx context.Context, sku string) (model.Product, error)
	GetProductByID(ctx context.Context, id string) (model.Product, error)
}

type Service struct {
	Store     Store
	MaxCopies int
	Metrics   *metrics.Collector
	Logger    *slog.Logger
}

func New(store Store, maxCopies int) *Service {
	return &Service{Store: store, MaxCopies: maxCopies}
}

// ClampCopies bounds copies to [1, max].
func ClampCopies(copies, max int) int {
	if max < 1 {
		max = DefaultMaxCopies
	}
	if copies < 1 {
		return 1
	}
	if copies > max {
		return max
	}
	return copies
}

// Enqueue creates one job per copy for productID, which may be a SKU or a
// product id.
func (s *Service) Enqueue(ctx context.Context, productID string, copies int) ([]model.PrintJob, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("%w: productId is required", model.ErrInvalidInput)
	}
	copies = ClampCopies(copies, s.MaxCopies)
	jobs, err := s.Store.EnqueuePrintJobs(ctx, productID, copies)
	if err != nil {
		return nil, fmt.Errorf("enqueue print jobs: %w", err)
	}
	s.Metrics.PrintJobsEnqueued(len(jobs))
	s.logger().Info("print jobs enqueued", "product_id", productID, "copies", len(jobs))
	return jobs, nil
}

// ClaimNext removes the oldest job and returns it with label fields
// resolved. An empty queue returns (nil, nil).
func (s *Service) ClaimNext(ctx context.Context) (*model.EnrichedPrintJob, error) {
	job, err := s.Store.ClaimOldestPrintJob(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.Metrics.PrintClaimEmpty()
			return nil, nil
		}
		return nil, fmt.Errorf("claim print job: %w", err)
	}
	s.Metrics.PrintJobClaimed()

	product, found := s.lookup(ctx, job.ProductID)
	enriched := Enrich(job, product, found)
	s.logger().Info("print job claimed",
		"job_id", job.ID,
		"product_id", job.ProductID,
		"resolved", found,
	)
	return &enriched, nil
}

// Pending reports how many jobs are waiting.
func (s *Service) Pending(ctx context.Context) (int, error) {
	return s.Store.CountPrintJobs(ctx)
}

// lookup resolves key by SKU first, then by primary key. The job is already
// gone from the store, so lookup failures only degrade the label.
func (s *Service) lookup(ctx context.Context, key string) (model.Product, bool) {
	p, err := s.Store.GetProductBySKU(ctx, key)
	if err == nil {
		return p, true
	}
	if !errors.Is(err, model.ErrNotFound) {
		s.logger().Warn("product lookup by sku failed", "key", key, "error", err)
	}
	p, err = s.Store.GetProductByID(ctx, key)
	if err == nil {
		return p, true
	}
	if !errors.Is(err, model.ErrNotFound) {
		s.logger().Warn("product lookup by id failed", "key", key, "error", err)
	}
	return model.Product{}, false
}

// Enrich fills the label fields: barcode falls back to the SKU and then to
// the raw product reference, SKU falls back to the reference, and name falls
// back to the resolved SKU so every label carries a human-readable line.
func Enrich(job model.PrintJob, p model.Product, found bool) model.EnrichedPrintJob {
	out := model.EnrichedPrintJob{
		ID:        job.ID,
		ProductID: job.ProductID,
		CreatedAt: job.CreatedAt,
		Barcode:   job.ProductID,
		SKU:       job.ProductID,
		Name:      job.ProductID,
	}
	if !found {
		return out
	}
	out.SKU = firstNonEmpty(p.SKU, job.ProductID)
	out.Barcode = firstNonEmpty(p.Barcode, p.SKU, job.ProductID)
	out.Name = firstNonEmpty(p.Name, out.SKU)
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return obs.Logger
}
