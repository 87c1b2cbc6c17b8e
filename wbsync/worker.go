package wbsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stocks_sync/config"
	"bitbucket.org/mmdatafocus/stocks_sync/models"
	"bitbucket.org/mmdatafocus/stocks_sync/utils"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const syncLockKey = "stocks-sync:run"

// Syncer owns one end-to-end pipeline execution: acquire the payload from WB
// (report or feed), flatten it, reconcile the stocks table and keep the run
// bookkeeping current.
type Syncer struct {
	cfg    Config
	db     *gorm.DB
	store  StockStore
	client *wbClient
	logger *logrus.Logger
	locker *redislock.Client
	tracer trace.Tracer
}

func NewSyncer(cfg Config, db *gorm.DB, logger *logrus.Logger, locker *redislock.Client) *Syncer {
	return &Syncer{
		cfg:    cfg,
		db:     db,
		store:  NewStockStore(db, cfg.StocksTable),
		client: newWBClient(cfg, logger),
		logger: logger,
		locker: locker,
		tracer: otel.Tracer("stocks-sync"),
	}
}

// Run creates a sync-run record and executes it. mode overrides the
// configured default when non-empty; triggeredBy is recorded verbatim.
func (s *Syncer) Run(ctx context.Context, triggeredBy, mode string) (*models.StocksSyncRun, error) {
	if mode == "" {
		mode = s.cfg.Mode
	}
	if triggeredBy == "" {
		triggeredBy, _ = utils.GetTriggeredByFromContext(ctx)
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	run := &models.StocksSyncRun{
		Mode:          mode,
		Status:        models.SyncRunStatusQueued,
		TriggeredBy:   triggeredBy,
		CorrelationId: correlationId,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}

	err := s.Execute(ctx, run)
	return run, err
}

// ProcessRun loads a previously queued run (pubsub delivery) and executes it.
// Runs already in a terminal state are skipped.
func (s *Syncer) ProcessRun(ctx context.Context, runId uint) error {
	var run models.StocksSyncRun
	if err := s.db.WithContext(ctx).Where("id = ?", runId).Take(&run).Error; err != nil {
		return err
	}
	if run.Status == models.SyncRunStatusSuccess || run.Status == models.SyncRunStatusFailed {
		return nil
	}
	return s.Execute(ctx, &run)
}

// Execute runs the pipeline for an existing run record and persists the
// outcome. The returned error, if any, is also written to the record.
func (s *Syncer) Execute(ctx context.Context, run *models.StocksSyncRun) error {
	ctx, span := s.tracer.Start(ctx, "stocks-sync.run",
		trace.WithAttributes(
			attribute.Int64("sync.run_id", int64(run.ID)),
			attribute.String("sync.mode", run.Mode),
		))
	defer span.End()

	if s.cfg.LockEnabled && s.locker != nil {
		lock, err := s.locker.Obtain(ctx, syncLockKey, s.cfg.PollTimeout+time.Minute, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				return s.finishFailed(ctx, run, fmt.Errorf("another sync run holds the lock"))
			}
			return s.finishFailed(ctx, run, err)
		}
		defer lock.Release(context.WithoutCancel(ctx))
	}

	now := time.Now()
	run.Status = models.SyncRunStatusRunning
	run.StartedAt = &now
	if err := s.db.WithContext(ctx).Save(run).Error; err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":       run.ID,
		"mode":         run.Mode,
		"triggered_by": run.TriggeredBy,
	}).Info("stocks sync started")

	result, err := s.acquire(ctx, run)
	if err != nil {
		return s.finishFailed(ctx, run, err)
	}

	run.RowsFetched = len(result.Rows)
	run.RowsDropped = result.Dropped.Total
	run.WarningCount = len(result.Mismatches)

	applied, err := Reconcile(ctx, s.store, result.Rows, s.cfg.BatchSize, s.logger)
	run.RowsUpserted = applied
	if err != nil {
		s.recordAdvisories(ctx, run, result)
		return s.finishFailed(ctx, run, err)
	}

	s.recordAdvisories(ctx, run, result)
	return s.finishSuccess(ctx, run, result)
}

// acquire fetches and flattens the payload for the run's mode.
func (s *Syncer) acquire(ctx context.Context, run *models.StocksSyncRun) (FlattenResult, error) {
	now := time.Now()

	switch run.Mode {
	case models.SyncModeFeed:
		dateFrom := FeedSince(s.cfg, now)
		s.logger.WithFields(logrus.Fields{"run_id": run.ID, "date_from": dateFrom}).
			Info("fetching stocks feed")
		rows, err := s.client.FetchFeed(ctx, s.cfg, dateFrom)
		if err != nil {
			return FlattenResult{}, err
		}
		return NormalizeFeed(rows, models.SyncModeFeed, now), nil

	default:
		taskId, err := s.client.CreateReportTask(ctx, s.cfg)
		if err != nil {
			return FlattenResult{}, err
		}
		run.TaskId = taskId
		if err := s.db.WithContext(ctx).Model(run).Update("task_id", taskId).Error; err != nil {
			return FlattenResult{}, err
		}

		if err := newPoller(s.client, s.cfg).await(ctx, s.cfg, taskId); err != nil {
			return FlattenResult{}, err
		}

		items, err := s.client.DownloadReport(ctx, s.cfg, taskId)
		if err != nil {
			return FlattenResult{}, err
		}
		return Flatten(items, FlattenOptions{
			EmitTotalsRow: s.cfg.EmitTotalsRow,
			Source:        models.SyncModeReport,
			Now:           now,
		}), nil
	}
}

// recordAdvisories writes mismatch and drop diagnostics as error records.
// These never fail the run; a write error here is only logged.
func (s *Syncer) recordAdvisories(ctx context.Context, run *models.StocksSyncRun, result FlattenResult) {
	var records []models.StocksSyncError

	for _, m := range result.Mismatches {
		payload, _ := json.Marshal(m)
		records = append(records, models.StocksSyncError{
			SyncRunId:   run.ID,
			NmId:        m.NmId,
			ErrorCode:   "rollup_mismatch",
			Message:     fmt.Sprintf("vendor rollup %d disagrees with warehouse sum %d", m.Reported, m.Derived),
			PayloadJSON: payload,
		})
	}

	if result.Dropped.Total > 0 {
		payload, _ := json.Marshal(result.Dropped)
		records = append(records, models.StocksSyncError{
			SyncRunId:   run.ID,
			ErrorCode:   "rows_dropped",
			Message:     fmt.Sprintf("%d rows dropped for missing identity fields", result.Dropped.Total),
			PayloadJSON: payload,
		})
	}

	if len(records) == 0 {
		return
	}
	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		config.LogError(s.logger, "wbsync", "recordAdvisories", "persisting diagnostics", run.ID, err)
	}
}

func (s *Syncer) finishSuccess(ctx context.Context, run *models.StocksSyncRun, result FlattenResult) error {
	s.finalize(ctx, run, models.SyncRunStatusSuccess, "", &result)
	s.logger.WithFields(logrus.Fields{
		"run_id":   run.ID,
		"fetched":  run.RowsFetched,
		"upserted": run.RowsUpserted,
		"dropped":  run.RowsDropped,
		"warnings": run.WarningCount,
	}).Info("stocks sync finished")
	return nil
}

func (s *Syncer) finishFailed(ctx context.Context, run *models.StocksSyncRun, cause error) error {
	s.finalize(ctx, run, models.SyncRunStatusFailed, cause.Error(), nil)
	config.LogError(s.logger, "wbsync", "Execute", "sync run failed", run.ID, cause)
	return cause
}

func (s *Syncer) finalize(ctx context.Context, run *models.StocksSyncRun, status, errMsg string, result *FlattenResult) {
	now := time.Now()
	run.Status = status
	run.ErrorMessage = errMsg
	run.FinishedAt = &now
	if run.StartedAt != nil {
		run.DurationMs = now.Sub(*run.StartedAt).Milliseconds()
	}
	if result != nil {
		stats, err := json.Marshal(map[string]any{
			"dropped":    result.Dropped,
			"mismatches": len(result.Mismatches),
		})
		if err == nil {
			run.StatsJSON = stats
		}
	}
	if err := s.db.WithContext(ctx).Save(run).Error; err != nil {
		config.LogError(s.logger, "wbsync", "finalize", "persisting run outcome", run.ID, err)
	}
}
