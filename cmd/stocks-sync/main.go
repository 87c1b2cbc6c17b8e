package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bitbucket.org/mmdatafocus/stocks_sync/config"
	"bitbucket.org/mmdatafocus/stocks_sync/models"
	"bitbucket.org/mmdatafocus/stocks_sync/wbsync"
	"github.com/bsm/redislock"
)

func main() {
	mode := flag.String("mode", "", "Optional: sync mode (report/feed). Defaults to SYNC_MODE.")
	flag.Parse()

	logger := config.GetLogger()

	cfg, err := wbsync.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	var locker *redislock.Client
	if cfg.LockEnabled {
		config.ConnectRedisWithRetry()
		locker = config.GetRedisLock()
	}

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncer := wbsync.NewSyncer(cfg, db, logger, locker)
	run, err := syncer.Run(ctx, models.SyncTriggeredCron, strings.TrimSpace(*mode))
	if err != nil {
		if run != nil {
			fmt.Fprintf(os.Stderr, "sync run %d failed: %v\n", run.ID, err)
		} else {
			fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("sync run %d done: fetched=%d upserted=%d dropped=%d warnings=%d\n",
		run.ID, run.RowsFetched, run.RowsUpserted, run.RowsDropped, run.WarningCount)
}
