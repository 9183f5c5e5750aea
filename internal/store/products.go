package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/stockroom/api-go/internal/model"
)

const productColumns = `id, sku, barcode, name, photo_id, stock, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (model.Product, error) {
	var (
		p                    model.Product
		barcode, photoID     sql.NullString
		createdMs, updatedMs int64
	)
	if err := row.Scan(&p.ID, &p.SKU, &barcode, &p.Name, &photoID, &p.Stock, &createdMs, &updatedMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Product{}, model.ErrNotFound
		}
		return model.Product{}, err
	}
	p.Barcode = barcode.String
	p.PhotoID = photoID.String
	p.CreatedAt = time.UnixMilli(createdMs).UTC()
	p.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return p, nil
}

func (s *DB) CreateProduct(ctx context.Context, p model.Product) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO products (`+productColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID,
		p.SKU,
		emptyAsNull(p.Barcode),
		p.Name,
		emptyAsNull(p.PhotoID),
		p.Stock,
		p.CreatedAt.UnixMilli(),
		p.UpdatedAt.UnixMilli(),
	)
	return conflictOr(err, fmt.Sprintf("product id %s or sku %s", p.ID, p.SKU))
}

func (s *DB) GetProductByID(ctx context.Context, id string) (model.Product, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	return scanProduct(row)
}

func (s *DB) GetProductBySKU(ctx context.Context, sku string) (model.Product, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT `+productColumns+` FROM products WHERE sku = ?`), sku)
	return scanProduct(row)
}

func (s *DB) ListProducts(ctx context.Context, limit int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT `+productColumns+` FROM products ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *DB) UpdateProduct(ctx context.Context, id string, patch model.ProductPatch) (model.Product, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`UPDATE products
         SET updated_at = ?,
             sku = COALESCE(?, sku),
             barcode = COALESCE(?, barcode),
             name = COALESCE(?, name),
             photo_id = COALESCE(?, photo_id)
         WHERE id = ?
         RETURNING `+productColumns),
		time.Now().UnixMilli(),
		nullableString(patch.SKU),
		nullableString(patch.Barcode),
		nullableString(patch.Name),
		nullableString(patch.PhotoID),
		id,
	)
	p, err := scanProduct(row)
	if err != nil {
		return model.Product{}, conflictOr(err, "sku already used by another product")
	}
	return p, nil
}

func (s *DB) SetStock(ctx context.Context, id string, stock int64) (model.Product, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`UPDATE products SET stock = ?, updated_at = ? WHERE id = ? RETURNING `+productColumns),
		stock, time.Now().UnixMilli(), id,
	)
	return scanProduct(row)
}

// AdjustStock applies delta in a single statement so concurrent adjustments
// never overwrite each other. A delta that would take stock below zero is
// refused with model.ErrInvalidInput and changes nothing.
func (s *DB) AdjustStock(ctx context.Context, id string, delta int64) (model.Product, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`UPDATE products SET stock = stock + ?, updated_at = ?
         WHERE id = ? AND stock + ? >= 0
         RETURNING `+productColumns),
		delta, time.Now().UnixMilli(), id, delta,
	)
	p, err := scanProduct(row)
	if !errors.Is(err, model.ErrNotFound) {
		return p, err
	}
	current, err := s.GetProductByID(ctx, id)
	if err != nil {
		return model.Product{}, err
	}
	return model.Product{}, fmt.Errorf("%w: stock %d cannot go below zero by %d", model.ErrInvalidInput, current.Stock, delta)
}

func fieldColumn(field model.SequentialField) (string, error) {
	switch field {
	case model.FieldBarcode:
		return "barcode", nil
	case model.FieldPhotoID:
		return "photo_id", nil
	case model.FieldSKU:
		return "sku", nil
	}
	return "", fmt.Errorf("%w: %q", model.ErrUnknownField, field)
}

// FieldValues returns every non-empty persisted value of a sequential field.
func (s *DB) FieldValues(ctx context.Context, field model.SequentialField) ([]string, error) {
	col, err := fieldColumn(field)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+col+` FROM products WHERE `+col+` IS NOT NULL AND `+col+` <> ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func emptyAsNull(v string) any {
	if v == "" {
		return nil
	}
	return v
}
