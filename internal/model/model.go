package model

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnknownField = errors.New("unknown sequential field")
	ErrConflict     = errors.New("already exists")
	// ErrExhausted means a sequential field has no representable next value.
	ErrExhausted = errors.New("sequential field exhausted")
)

// Product is the slice of the catalog record this service reads and writes.
// The catalog owns the full schema; only the keys used for lookup, label
// printing and sequential allocation live here.
type Product struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	Barcode   string    `json:"barcode,omitempty"`
	Name      string    `json:"name"`
	PhotoID   string    `json:"photoId,omitempty"`
	Stock     int64     `json:"stock"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProductPatch is used for partial updates.
type ProductPatch struct {
	SKU     *string
	Barcode *string
	Name    *string
	PhotoID *string
}

// PrintJob is one physical label waiting in the queue.
//
// - ProductID may hold either a SKU or a product primary key.
// - Seq is the store's insertion order and defines FIFO claim order.
type PrintJob struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"-"`
	ProductID string    `json:"productId"`
	CreatedAt time.Time `json:"createdAt"`
}

// EnrichedPrintJob is a claimed job with the label fields resolved.
type EnrichedPrintJob struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	CreatedAt time.Time `json:"createdAt"`
	Barcode   string    `json:"barcode"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
}

// SequentialField names a string-encoded integer column assigned in order.
type SequentialField string

const (
	FieldBarcode SequentialField = "barcode"
	FieldPhotoID SequentialField = "photoId"
	FieldSKU     SequentialField = "sku"
)

func (f SequentialField) Valid() bool {
	switch f {
	case FieldBarcode, FieldPhotoID, FieldSKU:
		return true
	}
	return false
}
