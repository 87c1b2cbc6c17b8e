package wbsync

import (
	"context"

	"bitbucket.org/mmdatafocus/stocks_sync/models"
	"github.com/sirupsen/logrus"
)

func chunkRows(rows []models.StockRow, size int) [][]models.StockRow {
	if size <= 0 {
		size = 1
	}
	var chunks [][]models.StockRow
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

// Reconcile writes rows to the store in fixed-size batches. The first store
// failure aborts the loop; the error reports how many rows had already been
// applied so the caller can surface partial progress.
func Reconcile(ctx context.Context, store StockStore, rows []models.StockRow, batchSize int, logger *logrus.Logger) (int, error) {
	if len(rows) == 0 {
		logger.Info("nothing to upsert")
		return 0, nil
	}

	applied := 0
	chunks := chunkRows(rows, batchSize)
	for i, batch := range chunks {
		if _, err := store.UpsertBatch(ctx, batch); err != nil {
			return applied, &StoreUpsertError{
				Batch:   i + 1,
				Applied: applied,
				Total:   len(rows),
				Err:     err,
			}
		}
		applied += len(batch)
		logger.WithFields(logrus.Fields{
			"batch":    i + 1,
			"batches":  len(chunks),
			"progress": applied,
			"total":    len(rows),
		}).Info("upserted batch")
	}

	return applied, nil
}
