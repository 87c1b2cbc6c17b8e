package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockRow is one row of the current-state stocks table. One row per
// (nm_id, barcode, tech_size, warehouse_name); an upsert overwrites all
// non-key columns. No history is kept here.
type StockRow struct {
	ID uint `gorm:"primary_key" json:"id"`

	// Composite natural key.
	NmId          int64  `gorm:"uniqueIndex:idx_stock_natural_key,priority:1;not null" json:"nm_id"`
	Barcode       string `gorm:"uniqueIndex:idx_stock_natural_key,priority:2;size:64;not null" json:"barcode"`
	TechSize      string `gorm:"uniqueIndex:idx_stock_natural_key,priority:3;size:32;not null" json:"tech_size"`
	WarehouseName string `gorm:"uniqueIndex:idx_stock_natural_key,priority:4;size:128;not null" json:"warehouse_name"`

	Quantity        int `gorm:"not null" json:"quantity"`
	InWayToClient   int `gorm:"not null" json:"in_way_to_client"`
	InWayFromClient int `gorm:"not null" json:"in_way_from_client"`
	QuantityFull    int `gorm:"not null" json:"quantity_full"`

	// Item-level descriptive fields duplicated onto every row for query convenience.
	SupplierArticle string          `gorm:"size:128" json:"supplier_article"`
	Brand           string          `gorm:"size:128" json:"brand"`
	Subject         string          `gorm:"size:128" json:"subject"`
	Category        string          `gorm:"size:128" json:"category"`
	Volume          float64         `json:"volume"`
	Price           decimal.Decimal `gorm:"type:decimal(20,6)" json:"price"`
	Discount        decimal.Decimal `gorm:"type:decimal(20,6)" json:"discount"`
	IsSupply        *bool           `json:"is_supply"`
	IsRealization   *bool           `json:"is_realization"`
	SCCode          string          `gorm:"size:64" json:"sc_code"`

	// Provenance.
	Source       string     `gorm:"size:32;not null" json:"source"`
	LastChangeTs *time.Time `json:"last_change_ts"`
	SyncedAt     time.Time  `gorm:"not null" json:"synced_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultStocksTable is used unless STOCKS_TABLE overrides it.
const DefaultStocksTable = "wb_stocks_current"

func (StockRow) TableName() string { return DefaultStocksTable }

// StockNaturalKeyColumns is the conflict target of the reconciling upsert.
var StockNaturalKeyColumns = []string{"nm_id", "barcode", "tech_size", "warehouse_name"}

// StockUpsertColumns are the non-key columns overwritten on conflict.
var StockUpsertColumns = []string{
	"quantity", "in_way_to_client", "in_way_from_client", "quantity_full",
	"supplier_article", "brand", "subject", "category", "volume",
	"price", "discount", "is_supply", "is_realization", "sc_code",
	"source", "last_change_ts", "synced_at", "updated_at",
}
