package printqueue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/stockroom/api-go/internal/model"
	"github.com/example/stockroom/api-go/internal/obs"
	"github.com/example/stockroom/api-go/internal/printqueue"
	"github.com/example/stockroom/api-go/internal/store"
	"github.com/example/stockroom/api-go/internal/store/storetest"
)

func newService(t *testing.T) (*printqueue.Service, *store.DB) {
	t.Helper()
	db := storetest.Open(t)
	svc := printqueue.New(db, printqueue.DefaultMaxCopies)
	svc.Logger = obs.Discard()
	return svc, db
}

func seedProduct(t *testing.T, db *store.DB, p model.Product) {
	t.Helper()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	require.NoError(t, db.CreateProduct(context.Background(), p))
}

func TestClampCopies(t *testing.T) {
	cases := []struct {
		copies, max, want int
	}{
		{0, 100, 1},
		{-5, 100, 1},
		{1, 100, 1},
		{3, 100, 3},
		{100, 100, 100},
		{5000, 100, 100},
		{5000, 0, printqueue.DefaultMaxCopies},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, printqueue.ClampCopies(tc.copies, tc.max), "copies=%d max=%d", tc.copies, tc.max)
	}
}

func TestEnqueueThenClaimInOrder(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)
	seedProduct(t, db, model.Product{ID: "p-1", SKU: "SKU123", Barcode: "1000001", Name: "Widget"})

	jobs, err := svc.Enqueue(ctx, "SKU123", 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	pending, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, pending)

	for i := 0; i < 3; i++ {
		job, err := svc.ClaimNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, jobs[i].ID, job.ID)
		assert.Equal(t, "1000001", job.Barcode)
		assert.Equal(t, "SKU123", job.SKU)
		assert.Equal(t, "Widget", job.Name)
	}

	job, err := svc.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestEnqueueRejectsBlankProduct(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Enqueue(context.Background(), "   ", 1)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestEnqueueClampsCopies(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	svc.MaxCopies = 4

	jobs, err := svc.Enqueue(ctx, "SKU-1", 50)
	require.NoError(t, err)
	assert.Len(t, jobs, 4)

	jobs, err = svc.Enqueue(ctx, "SKU-1", 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestClaimResolvesByPrimaryKey(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)
	seedProduct(t, db, model.Product{ID: "p-9", SKU: "SKU-9", Name: "Gadget"})

	_, err := svc.Enqueue(ctx, "p-9", 1)
	require.NoError(t, err)

	job, err := svc.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "p-9", job.ProductID)
	assert.Equal(t, "SKU-9", job.SKU)
	assert.Equal(t, "SKU-9", job.Barcode, "barcode falls back to sku")
	assert.Equal(t, "Gadget", job.Name)
}

func TestClaimUnknownProductUsesReference(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.Enqueue(ctx, "ghost", 1)
	require.NoError(t, err)

	job, err := svc.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "ghost", job.Barcode)
	assert.Equal(t, "ghost", job.SKU)
	assert.Equal(t, "ghost", job.Name)
}

func TestClaimEmptyQueueRepeatedly(t *testing.T) {
	svc, _ := newService(t)
	for i := 0; i < 3; i++ {
		job, err := svc.ClaimNext(context.Background())
		require.NoError(t, err)
		assert.Nil(t, job)
	}
}

type failingStore struct{ printqueue.Store }

func (failingStore) ClaimOldestPrintJob(context.Context) (model.PrintJob, error) {
	return model.PrintJob{}, errors.New("disk on fire")
}

func TestClaimSurfacesStoreFailure(t *testing.T) {
	svc := printqueue.New(failingStore{}, 10)
	svc.Logger = obs.Discard()
	job, err := svc.ClaimNext(context.Background())
	require.Error(t, err)
	assert.Nil(t, job)
	assert.NotErrorIs(t, err, model.ErrNotFound)
}

func TestEnrich(t *testing.T) {
	created := time.UnixMilli(1700000000000).UTC()
	job := model.PrintJob{ID: "j-1", ProductID: "ref", CreatedAt: created}

	got := printqueue.Enrich(job, model.Product{}, false)
	assert.Equal(t, model.EnrichedPrintJob{ID: "j-1", ProductID: "ref", CreatedAt: created, Barcode: "ref", SKU: "ref", Name: "ref"}, got)

	got = printqueue.Enrich(job, model.Product{SKU: "S", Barcode: "B", Name: "N"}, true)
	assert.Equal(t, "B", got.Barcode)
	assert.Equal(t, "S", got.SKU)
	assert.Equal(t, "N", got.Name)

	got = printqueue.Enrich(job, model.Product{Name: "N"}, true)
	assert.Equal(t, "ref", got.Barcode)
	assert.Equal(t, "ref", got.SKU)

	got = printqueue.Enrich(job, model.Product{SKU: "S"}, true)
	assert.Equal(t, "S", got.Name, "name falls back to the resolved sku")
}
