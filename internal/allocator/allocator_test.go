package allocator_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/stockroom/api-go/internal/allocator"
	"github.com/example/stockroom/api-go/internal/model"
	"github.com/example/stockroom/api-go/internal/obs"
	"github.com/example/stockroom/api-go/internal/store"
	"github.com/example/stockroom/api-go/internal/store/storetest"
)

var seeds = map[model.SequentialField]int64{
	model.FieldBarcode: 1000001,
	model.FieldPhotoID: 1,
	model.FieldSKU:     10001,
}

func newAllocator(db *store.DB) *allocator.Allocator {
	a := allocator.New(db, seeds)
	a.Logger = obs.Discard()
	return a
}

func insert(t *testing.T, db *store.DB, id, sku, barcode string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, db.CreateProduct(context.Background(), model.Product{
		ID: id, SKU: sku, Barcode: barcode, Name: id, CreatedAt: now, UpdatedAt: now,
	}))
}

func TestNextReturnsSeedOnEmptyStore(t *testing.T) {
	a := newAllocator(storetest.Open(t))
	v, err := a.Next(context.Background(), model.FieldBarcode)
	require.NoError(t, err)
	assert.Equal(t, "1000001", v)
}

func TestNextExceedsPersistedMax(t *testing.T) {
	db := storetest.Open(t)
	insert(t, db, "a", "s-a", "2000005")
	insert(t, db, "b", "s-b", "2000009")
	insert(t, db, "c", "s-c", "999")

	v, err := newAllocator(db).Next(context.Background(), model.FieldBarcode)
	require.NoError(t, err)
	assert.Equal(t, "2000010", v)
}

func TestNextSkipsNonNumericValues(t *testing.T) {
	db := storetest.Open(t)
	insert(t, db, "a", "ABC-1", "")
	insert(t, db, "b", "not-a-number", "")

	v, err := newAllocator(db).Next(context.Background(), model.FieldSKU)
	require.NoError(t, err)
	assert.Equal(t, "10001", v, "only non-numeric values: fall back to the seed")

	insert(t, db, "c", "10500", "")
	v, err = newAllocator(db).Next(context.Background(), model.FieldSKU)
	require.NoError(t, err)
	assert.Equal(t, "10501", v)
}

func TestNextIsMonotonicWhenPersisted(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t)
	a := newAllocator(db)

	var prev int64
	for i := 0; i < 10; i++ {
		v, err := a.Next(ctx, model.FieldBarcode)
		require.NoError(t, err)
		n, err := strconv.ParseInt(v, 10, 64)
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
		insert(t, db, "p"+v, "sku"+v, v)
	}
}

func TestNextUnpersistedCallsStillDistinct(t *testing.T) {
	ctx := context.Background()
	a := newAllocator(storetest.Open(t))

	first, err := a.Next(ctx, model.FieldPhotoID)
	require.NoError(t, err)
	second, err := a.Next(ctx, model.FieldPhotoID)
	require.NoError(t, err)
	assert.Equal(t, "1", first)
	assert.Equal(t, "2", second)
}

func TestNextConcurrentCreatorsNeverCollide(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t)
	insert(t, db, "seed", "s", "5000")
	a := newAllocator(db)

	const n = 25
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := a.Next(ctx, model.FieldBarcode)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[v], "duplicate allocation %s", v)
			seen[v] = true
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestNextUnknownField(t *testing.T) {
	_, err := newAllocator(storetest.Open(t)).Next(context.Background(), model.SequentialField("price"))
	assert.ErrorIs(t, err, model.ErrUnknownField)
}

type failingStore struct{}

func (failingStore) FieldValues(context.Context, model.SequentialField) ([]string, error) {
	return nil, errors.New("store down")
}

func (failingStore) BumpSequence(context.Context, string, int64) (int64, error) {
	return 0, errors.New("store down")
}

func TestNextSurfacesStoreFailure(t *testing.T) {
	a := allocator.New(failingStore{}, seeds)
	_, err := a.Next(context.Background(), model.FieldBarcode)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
}

func TestNextFailsWhenFieldIsExhausted(t *testing.T) {
	cases := map[string]string{
		"max int64":      "9223372036854775807",
		"beyond int64":   "123456789012345678901234",
		"padded max int": " 9223372036854775807 ",
	}
	for name, barcode := range cases {
		t.Run(name, func(t *testing.T) {
			db := storetest.Open(t)
			insert(t, db, "a", "s-a", barcode)

			v, err := newAllocator(db).Next(context.Background(), model.FieldBarcode)
			assert.ErrorIs(t, err, model.ErrExhausted)
			assert.Empty(t, v)
		})
	}
}

func TestNextSkipsHugeNegativeValues(t *testing.T) {
	db := storetest.Open(t)
	insert(t, db, "a", "s-a", "-99999999999999999999")

	v, err := newAllocator(db).Next(context.Background(), model.FieldBarcode)
	require.NoError(t, err)
	assert.Equal(t, "1000001", v)
}
