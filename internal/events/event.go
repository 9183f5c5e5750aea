// Package events carries stock and product notifications from mutation
// handlers to every connected viewer.
//
// Publishers append encoded events to a shared Channel. Each viewer
// connection runs its own Broadcaster holding a private cursor into that
// channel, so subscribers never consume each other's backlog. Delivery is
// at-most-once and best-effort: nothing is replayed across reconnects.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Type string

const (
	StockUpdate    Type = "STOCK_UPDATE"
	ProductCreated Type = "PRODUCT_CREATED"
	ProductUpdate  Type = "PRODUCT_UPDATE"
	Connected      Type = "CONNECTED"
)

func (t Type) Valid() bool {
	switch t {
	case StockUpdate, ProductCreated, ProductUpdate, Connected:
		return true
	}
	return false
}

var (
	ErrEventTooLarge = errors.New("encoded event exceeds size limit")
	ErrMalformed     = errors.New("malformed event")
)

// Event is immutable once published. Timestamp is Unix milliseconds.
type Event struct {
	Type      Type           `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
}

// Encode serializes ev, refusing results longer than maxBytes. A
// non-positive maxBytes disables the bound.
func Encode(ev Event, maxBytes int) ([]byte, error) {
	if !ev.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, ev.Type)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrEventTooLarge, len(data), maxBytes)
	}
	return data, nil
}

// Decode parses one channel entry. Entries without a known type are
// malformed.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !ev.Type.Valid() {
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, ev.Type)
	}
	return ev, nil
}
