package models

import (
	"log"

	"bitbucket.org/mmdatafocus/stocks_sync/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&StockRow{},
		&StocksSyncRun{}, &StocksSyncError{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
