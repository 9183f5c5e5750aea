package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/stockroom/api-go/internal/model"
)

// EnqueuePrintJobs inserts one row per copy inside a single transaction so a
// request either queues every label or none of them.
func (s *DB) EnqueuePrintJobs(ctx context.Context, productID string, copies int) ([]model.PrintJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(
		`INSERT INTO print_jobs (id, product_id, created_at) VALUES (?, ?, ?) RETURNING seq`))
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	jobs := make([]model.PrintJob, 0, copies)
	for i := 0; i < copies; i++ {
		job := model.PrintJob{
			ID:        uuid.NewString(),
			ProductID: productID,
			CreatedAt: now,
		}
		if err := stmt.QueryRowContext(ctx, job.ID, job.ProductID, job.CreatedAt.UnixMilli()).Scan(&job.Seq); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimOldestPrintJob removes the oldest job and returns it in one statement.
// Two concurrent claimers can never receive the same row. An empty queue
// yields model.ErrNotFound.
func (s *DB) ClaimOldestPrintJob(ctx context.Context) (model.PrintJob, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM print_jobs
         WHERE seq = (SELECT seq FROM print_jobs ORDER BY seq ASC LIMIT 1`+s.dialect.claimLock+`)
         RETURNING seq, id, product_id, created_at`)
	var (
		job       model.PrintJob
		createdMs int64
	)
	if err := row.Scan(&job.Seq, &job.ID, &job.ProductID, &createdMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PrintJob{}, model.ErrNotFound
		}
		return model.PrintJob{}, err
	}
	job.CreatedAt = time.UnixMilli(createdMs).UTC()
	return job, nil
}

func (s *DB) CountPrintJobs(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM print_jobs`).Scan(&n)
	return n, err
}

func (s *DB) ListPrintJobs(ctx context.Context, limit int) ([]model.PrintJob, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT seq, id, product_id, created_at FROM print_jobs ORDER BY seq ASC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PrintJob
	for rows.Next() {
		var (
			job       model.PrintJob
			createdMs int64
		)
		if err := rows.Scan(&job.Seq, &job.ID, &job.ProductID, &createdMs); err != nil {
			return nil, err
		}
		job.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, job)
	}
	return out, rows.Err()
}
