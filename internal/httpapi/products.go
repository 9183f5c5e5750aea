package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/stockroom/api-go/internal/model"
)

type createProductRequest struct {
	ID          string  `json:"id"`
	SKU         string  `json:"sku"`
	Barcode     string  `json:"barcode"`
	Name        string  `json:"name"`
	PhotoID     string  `json:"photoId"`
	Stock       flexInt `json:"stock"`
	PrintLabels flexInt `json:"printLabels"`
}

type updateProductRequest struct {
	SKU     *string `json:"sku"`
	Barcode *string `json:"barcode"`
	Name    *string `json:"name"`
	PhotoID *string `json:"photoId"`
}

type stockRequest struct {
	Stock flexInt `json:"stock"`
	Delta flexInt `json:"delta"`
}

func (s Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.writeFailure(w, r, fmt.Errorf("%w: name is required", model.ErrInvalidInput))
		return
	}

	now := time.Now().UTC()
	p := model.Product{
		ID:        strings.TrimSpace(req.ID),
		SKU:       strings.TrimSpace(req.SKU),
		Barcode:   strings.TrimSpace(req.Barcode),
		Name:      name,
		PhotoID:   strings.TrimSpace(req.PhotoID),
		Stock:     req.Stock.Value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	var err error
	if p.SKU, err = s.allocateIfEmpty(ctx, p.SKU, model.FieldSKU); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if p.Barcode, err = s.allocateIfEmpty(ctx, p.Barcode, model.FieldBarcode); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if p.PhotoID, err = s.allocateIfEmpty(ctx, p.PhotoID, model.FieldPhotoID); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	// The unique indexes on id and sku decide conflicts.
	if err := s.Products.CreateProduct(ctx, p); err != nil {
		s.writeFailure(w, r, fmt.Errorf("create product: %w", err))
		return
	}
	s.Publisher.ProductCreated(ctx, p)

	resp := map[string]any{"product": p}
	if req.PrintLabels.Value > 0 {
		jobs, err := s.PrintQueue.Enqueue(ctx, p.SKU, clampInt(req.PrintLabels.Value))
		if err != nil {
			s.logger().Warn("label enqueue after create failed", "product_id", p.ID, "error", err)
		} else {
			resp["jobs"] = jobs
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s Server) allocateIfEmpty(ctx context.Context, current string, field model.SequentialField) (string, error) {
	if current != "" {
		return current, nil
	}
	v, err := s.Allocator.Next(ctx, field)
	if err != nil {
		return "", fmt.Errorf("allocate %s: %w", field, err)
	}
	return v, nil
}

func (s Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", raw))
			return
		}
		if value > 500 {
			value = 500
		}
		limit = value
	}
	products, err := s.Products.ListProducts(r.Context(), limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

// handleGetProduct resolves the key as a SKU first, then as a primary key.
func (s Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")
	p, err := s.Products.GetProductBySKU(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		p, err = s.Products.GetProductByID(ctx, key)
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		s.writeFailure(w, r, fmt.Errorf("%w: name cannot be empty", model.ErrInvalidInput))
		return
	}
	if req.SKU != nil && strings.TrimSpace(*req.SKU) == "" {
		s.writeFailure(w, r, fmt.Errorf("%w: sku cannot be empty", model.ErrInvalidInput))
		return
	}
	p, err := s.Products.UpdateProduct(ctx, chi.URLParam(r, "id"), model.ProductPatch{
		SKU:     req.SKU,
		Barcode: req.Barcode,
		Name:    req.Name,
		PhotoID: req.PhotoID,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.Publisher.ProductUpdated(ctx, p)
	writeJSON(w, http.StatusOK, p)
}

// handleSetStock takes either an absolute {"stock": n} or a relative
// {"delta": n}.
func (s Server) handleSetStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")

	var (
		p   model.Product
		err error
	)
	switch {
	case req.Stock.Set && req.Delta.Set:
		err = fmt.Errorf("%w: send either stock or delta, not both", model.ErrInvalidInput)
	case req.Stock.Set:
		if req.Stock.Value < 0 {
			err = fmt.Errorf("%w: stock must be >= 0", model.ErrInvalidInput)
			break
		}
		p, err = s.Products.SetStock(ctx, id, req.Stock.Value)
	case req.Delta.Set:
		p, err = s.Products.AdjustStock(ctx, id, req.Delta.Value)
	default:
		err = fmt.Errorf("%w: stock or delta is required", model.ErrInvalidInput)
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.Publisher.StockUpdated(ctx, p)
	writeJSON(w, http.StatusOK, p)
}
