package wbsync

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stocks_sync/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockStore persists one batch of stock rows. The implementation must be
// idempotent on the natural key so re-running a sync converges.
type StockStore interface {
	UpsertBatch(ctx context.Context, rows []models.StockRow) (int64, error)
}

type gormStockStore struct {
	db    *gorm.DB
	table string
}

// NewStockStore returns the MySQL-backed store writing to table.
func NewStockStore(db *gorm.DB, table string) StockStore {
	if table == "" {
		table = models.DefaultStocksTable
	}
	return &gormStockStore{db: db, table: table}
}

const (
	mysqlErrDeadlock    = 1213
	mysqlErrLockTimeout = 1205
)

func isRetryableMySQLError(err error) bool {
	var myErr *mysqlDriver.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == mysqlErrDeadlock || myErr.Number == mysqlErrLockTimeout
}

func (s *gormStockStore) UpsertBatch(ctx context.Context, rows []models.StockRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	conflictCols := make([]clause.Column, 0, len(models.StockNaturalKeyColumns))
	for _, col := range models.StockNaturalKeyColumns {
		conflictCols = append(conflictCols, clause.Column{Name: col})
	}

	// Large multi-row upserts can deadlock against a concurrent run; a
	// single retry after a short pause clears the common case.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		tx := s.db.WithContext(ctx).Table(s.table).Clauses(clause.OnConflict{
			Columns:   conflictCols,
			DoUpdates: clause.AssignmentColumns(models.StockUpsertColumns),
		}).Create(&rows)
		if tx.Error == nil {
			return tx.RowsAffected, nil
		}
		lastErr = tx.Error
		if !isRetryableMySQLError(tx.Error) {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	return 0, lastErr
}
