package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/stockroom/api-go/internal/metrics"
	"github.com/example/stockroom/api-go/internal/model"
	"github.com/example/stockroom/api-go/internal/obs"
)

const defaultPublishTimeout = 2 * time.Second

// Publisher appends events for mutation handlers. Publish never fails the
// caller: a lost notification only leaves viewers stale until they refresh.
type Publisher struct {
	Channel  Channel
	MaxBytes int
	Timeout  time.Duration
	Metrics  *metrics.Collector
	Logger   *slog.Logger

	now func() time.Time
}

func NewPublisher(ch Channel, maxBytes int) *Publisher {
	return &Publisher{Channel: ch, MaxBytes: maxBytes}
}

// Publish stamps, encodes and appends ev. It detaches from ctx cancellation
// so a client hanging up right after a successful write still gets its
// notification out, bounded by Timeout.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = p.clock().UnixMilli()
	}
	body, err := Encode(ev, p.MaxBytes)
	if err != nil {
		p.Metrics.EventPublishFailed()
		p.logger().Warn("event dropped", "type", ev.Type, "error", err)
		return
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	seq, err := p.Channel.Append(ctx, body)
	if err != nil {
		p.Metrics.EventPublishFailed()
		p.logger().Warn("event publish failed", "type", ev.Type, "error", err)
		return
	}
	p.Metrics.EventPublished(string(ev.Type))
	p.logger().Debug("event published", "type", ev.Type, "seq", seq)
}

func (p *Publisher) StockUpdated(ctx context.Context, product model.Product) {
	p.Publish(ctx, Event{Type: StockUpdate, Payload: map[string]any{
		"id":    product.ID,
		"sku":   product.SKU,
		"stock": product.Stock,
	}})
}

func (p *Publisher) ProductCreated(ctx context.Context, product model.Product) {
	p.Publish(ctx, Event{Type: ProductCreated, Payload: productPayload(product)})
}

func (p *Publisher) ProductUpdated(ctx context.Context, product model.Product) {
	p.Publish(ctx, Event{Type: ProductUpdate, Payload: productPayload(product)})
}

func productPayload(p model.Product) map[string]any {
	return map[string]any{
		"id":      p.ID,
		"sku":     p.SKU,
		"barcode": p.Barcode,
		"name":    p.Name,
		"photoId": p.PhotoID,
		"stock":   p.Stock,
	}
}

func (p *Publisher) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

func (p *Publisher) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return obs.Logger
}
