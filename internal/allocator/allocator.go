// Package allocator hands out the next value for product fields that are
// numbered in order: barcode, photo index and numeric SKU.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/example/stockroom/api-go/internal/metrics"
	"github.com/example/stockroom/api-go/internal/model"
	"github.com/example/stockroom/api-go/internal/obs"
)

// Store is the persistence the allocator needs.
type Store interface {
	FieldValues(ctx context.Context, field model.SequentialField) ([]string, error)
	BumpSequence(ctx context.Context, name string, floor int64) (int64, error)
}

// Allocator returns values strictly greater than every persisted value of a
// field. The persisted maximum only seeds a store-side counter; the counter
// itself is advanced atomically, so two concurrent creators never receive
// the same value even before either one has written its product.
type Allocator struct {
	Store   Store
	Seeds   map[model.SequentialField]int64
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

func New(store Store, seeds map[model.SequentialField]int64) *Allocator {
	return &Allocator{Store: store, Seeds: seeds}
}

func (a *Allocator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return obs.Logger
}

// Next returns the next value for field as a decimal string. The caller
// persists it as part of its own write.
func (a *Allocator) Next(ctx context.Context, field model.SequentialField) (string, error) {
	if !field.Valid() {
		return "", fmt.Errorf("%w: %q", model.ErrUnknownField, field)
	}
	values, err := a.Store.FieldValues(ctx, field)
	if err != nil {
		a.Metrics.Allocation(string(field), "error")
		return "", fmt.Errorf("scan %s: %w", field, err)
	}

	seed := a.seed(field)
	maxSeen, found, err := a.maxNumeric(field, values)
	if err != nil {
		a.Metrics.Allocation(string(field), "error")
		return "", err
	}
	floor := seed
	outcome := "seed"
	if found && maxSeen+1 > floor {
		floor = maxSeen + 1
		outcome = "ok"
	}

	next, err := a.Store.BumpSequence(ctx, sequenceName(field), floor)
	if err != nil {
		a.Metrics.Allocation(string(field), "error")
		return "", fmt.Errorf("bump %s sequence: %w", field, err)
	}
	a.Metrics.Allocation(string(field), outcome)
	return strconv.FormatInt(next, 10), nil
}

func (a *Allocator) seed(field model.SequentialField) int64 {
	if v, ok := a.Seeds[field]; ok && v > 0 {
		return v
	}
	return 1
}

// maxNumeric skips values that do not parse as integers; they cannot collide
// with a decimal allocation. A numeric value at or beyond the int64 range
// leaves no larger value to hand out and fails with model.ErrExhausted.
func (a *Allocator) maxNumeric(field model.SequentialField, values []string) (int64, bool, error) {
	var (
		maxSeen int64
		found   bool
	)
	for _, raw := range values {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if (err == nil || errors.Is(err, strconv.ErrRange)) && n == math.MaxInt64 {
			return 0, false, fmt.Errorf("%w: %s value %q", model.ErrExhausted, field, raw)
		}
		if err != nil {
			a.logger().Warn("skipping non-numeric sequential value", "field", field, "value", raw)
			continue
		}
		if !found || n > maxSeen {
			maxSeen = n
			found = true
		}
	}
	return maxSeen, found, nil
}

func sequenceName(field model.SequentialField) string {
	return "product." + string(field)
}
