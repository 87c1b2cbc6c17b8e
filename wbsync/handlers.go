package wbsync

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/stocks_sync/config"
	"bitbucket.org/mmdatafocus/stocks_sync/models"
	"bitbucket.org/mmdatafocus/stocks_sync/utils"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func toRunResponse(run models.StocksSyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:           run.ID,
		Mode:         run.Mode,
		Status:       run.Status,
		TriggeredBy:  run.TriggeredBy,
		StartedAt:    formatTime(run.StartedAt),
		FinishedAt:   formatTime(run.FinishedAt),
		DurationMs:   run.DurationMs,
		RowsFetched:  run.RowsFetched,
		RowsUpserted: run.RowsUpserted,
		RowsDropped:  run.RowsDropped,
		WarningCount: run.WarningCount,
		ErrorMessage: run.ErrorMessage,
	}
}

// StatusHandler reports the latest run per mode plus overall row count.
func StatusHandler(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		var last models.StocksSyncRun
		err := db.Order("id DESC").Take(&last).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var rowCount int64
		if err := db.Table(cfg.StocksTable).Count(&rowCount).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := gin.H{"mode": cfg.Mode, "rowCount": rowCount}
		if last.ID != 0 {
			resp["lastRun"] = toRunResponse(last)
		}
		c.JSON(http.StatusOK, resp)
	}
}

// TriggerSyncHandler queues a run. With a pubsub topic configured the run is
// handed to the background worker; otherwise it executes inline. The syncer
// is resolved per request; nil means the service is still connecting.
func TriggerSyncHandler(cfg Config, syncer func() *Syncer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerSyncRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		if err := validate.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}

		ctx := utils.SetTriggeredByInContext(c.Request.Context(), models.SyncTriggeredManual)
		mode := req.Mode
		if mode == "" {
			mode = cfg.Mode
		}

		if cfg.SyncTopic != "" {
			gdb := config.GetDB()
			if gdb == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is starting"})
				return
			}
			db := gdb.WithContext(ctx)
			run := models.StocksSyncRun{
				Mode:        mode,
				Status:      models.SyncRunStatusQueued,
				TriggeredBy: models.SyncTriggeredManual,
			}
			if err := db.Create(&run).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if err := PublishSyncRun(ctx, cfg, run.ID, models.SyncTriggeredManual); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"runId": run.ID, "status": run.Status})
			return
		}

		s := syncer()
		if s == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is starting"})
			return
		}
		run, err := s.Run(ctx, models.SyncTriggeredManual, mode)
		if err != nil {
			status := http.StatusInternalServerError
			if IsFatal(err) {
				status = http.StatusBadGateway
			}
			// run is nil when the record itself could not be created.
			resp := gin.H{"error": err.Error()}
			if run != nil {
				resp["runId"] = run.ID
			}
			c.JSON(status, resp)
			return
		}
		c.JSON(http.StatusOK, toRunResponse(*run))
	}
}

// SyncHistoryHandler lists recent runs, newest first.
func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 || limit > 500 {
			limit = 50
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var runs []models.StocksSyncRun
		if err := db.Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, toRunResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

// SyncRunDetailHandler returns one run with its advisory error records.
func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var run models.StocksSyncRun
		if err := db.Where("id = ?", id).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var errRecords []models.StocksSyncError
		if err := db.Where("sync_run_id = ?", run.ID).Order("id ASC").Find(&errRecords).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		detail := SyncRunDetailResponse{SyncRunResponse: toRunResponse(run)}
		for _, rec := range errRecords {
			detail.Errors = append(detail.Errors, SyncErrorResponse{
				ID:        rec.ID,
				NmId:      rec.NmId,
				ErrorCode: rec.ErrorCode,
				Message:   rec.Message,
			})
		}
		c.JSON(http.StatusOK, detail)
	}
}

// ExportStocksHandler streams the current stocks table as an xlsx workbook.
func ExportStocksHandler(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		var rows []models.StockRow
		if err := db.Table(cfg.StocksTable).
			Order("nm_id ASC, barcode ASC, warehouse_name ASC").
			Find(&rows).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		f := excelize.NewFile()
		defer f.Close()
		sheet := "Stocks"
		f.SetSheetName(f.GetSheetName(0), sheet)

		headers := []string{
			"nm_id", "barcode", "tech_size", "warehouse_name",
			"quantity", "in_way_to_client", "in_way_from_client", "quantity_full",
			"supplier_article", "brand", "subject", "category",
			"price", "discount", "source", "synced_at",
		}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			f.SetCellValue(sheet, cell, h)
		}

		for i, row := range rows {
			values := []any{
				row.NmId, row.Barcode, row.TechSize, row.WarehouseName,
				row.Quantity, row.InWayToClient, row.InWayFromClient, row.QuantityFull,
				row.SupplierArticle, row.Brand, row.Subject, row.Category,
				row.Price.String(), row.Discount.String(), row.Source,
				row.SyncedAt.UTC().Format(time.RFC3339),
			}
			for j, v := range values {
				cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
				f.SetCellValue(sheet, cell, v)
			}
		}

		filename := fmt.Sprintf("stocks_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := f.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "wbsync", "ExportStocksHandler", "writing workbook", nil, err)
		}
	}
}
