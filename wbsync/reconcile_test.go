package wbsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stocks_sync/models"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeStore struct {
	batches [][]models.StockRow
	failOn  int // 1-based batch index to fail on; 0 = never
}

func (s *fakeStore) UpsertBatch(ctx context.Context, rows []models.StockRow) (int64, error) {
	s.batches = append(s.batches, rows)
	if s.failOn > 0 && len(s.batches) == s.failOn {
		return 0, fmt.Errorf("deadlock found when trying to get lock")
	}
	return int64(len(rows)), nil
}

func makeRows(n int) []models.StockRow {
	rows := make([]models.StockRow, n)
	for i := range rows {
		rows[i] = models.StockRow{
			NmId:          int64(100 + i),
			Barcode:       fmt.Sprintf("bc-%d", i),
			TechSize:      "0",
			WarehouseName: "Коледино",
			Quantity:      i,
			SyncedAt:      time.Now(),
		}
	}
	return rows
}

func TestReconcileBatchCountAndSizes(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cases := []struct {
		rows      int
		batchSize int
		batches   int
	}{
		{2500, 1000, 3},
		{1000, 1000, 1},
		{1, 1000, 1},
		{999, 100, 10},
	}
	for _, tc := range cases {
		store := &fakeStore{}
		applied, err := Reconcile(context.Background(), store, makeRows(tc.rows), tc.batchSize, logger)
		if err != nil {
			t.Fatalf("Reconcile(%d rows): %v", tc.rows, err)
		}
		if applied != tc.rows {
			t.Fatalf("Reconcile(%d rows) applied %d", tc.rows, applied)
		}
		if len(store.batches) != tc.batches {
			t.Fatalf("Reconcile(%d rows, size %d): %d batches, want %d",
				tc.rows, tc.batchSize, len(store.batches), tc.batches)
		}
		total := 0
		for i, b := range store.batches {
			if len(b) > tc.batchSize {
				t.Fatalf("batch %d oversized: %d > %d", i, len(b), tc.batchSize)
			}
			total += len(b)
		}
		if total != tc.rows {
			t.Fatalf("batch sizes sum to %d, want %d", total, tc.rows)
		}
	}
}

func TestReconcileEmptyInputIsNoop(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := &fakeStore{}
	applied, err := Reconcile(context.Background(), store, nil, 1000, logger)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if applied != 0 || len(store.batches) != 0 {
		t.Fatalf("empty input must not touch the store: applied=%d batches=%d", applied, len(store.batches))
	}
}

func TestReconcileAbortsOnStoreError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := &fakeStore{failOn: 2}
	applied, err := Reconcile(context.Background(), store, makeRows(2500), 1000, logger)

	var storeErr *StoreUpsertError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreUpsertError, got %v", err)
	}
	if len(store.batches) != 2 {
		t.Fatalf("remaining batches must not be attempted, got %d", len(store.batches))
	}
	if applied != 1000 || storeErr.Applied != 1000 {
		t.Fatalf("applied count mismatch: returned=%d recorded=%d", applied, storeErr.Applied)
	}
	if storeErr.Batch != 2 || storeErr.Total != 2500 {
		t.Fatalf("unexpected error detail: %+v", storeErr)
	}
	if !IsFatal(err) {
		t.Fatal("store failure must be fatal")
	}
}

func TestChunkRowsBoundaries(t *testing.T) {
	if got := chunkRows(makeRows(0), 10); got != nil {
		t.Fatalf("expected no chunks for empty input, got %d", len(got))
	}
	chunks := chunkRows(makeRows(10), 0)
	if len(chunks) != 10 {
		t.Fatalf("non-positive size must degrade to 1, got %d chunks", len(chunks))
	}
}
