package wbsync

import (
	"time"

	"bitbucket.org/mmdatafocus/stocks_sync/models"
	"bitbucket.org/mmdatafocus/stocks_sync/utils"
)

// FlattenOptions parameterizes the report-to-rows transform.
type FlattenOptions struct {
	EmitTotalsRow bool
	Source        string
	Now           time.Time
}

// DroppedCounts tallies rows rejected for missing identity fields.
type DroppedCounts struct {
	Total            int
	MissingNmId      int
	MissingBarcode   int
	MissingWarehouse int
}

// RollupMismatch records a diagnostic disagreement between the vendor's
// warehouse rollup and the sum of its real warehouse quantities. Advisory
// only; the affected rows are still stored.
type RollupMismatch struct {
	NmId     int64
	Barcode  string
	TechSize string
	Reported int
	Derived  int
}

// FlattenResult is the outcome of flattening one downloaded report.
type FlattenResult struct {
	Rows       []models.StockRow
	Dropped    DroppedCounts
	Mismatches []RollupMismatch
}

// Flatten turns nested report items into one stock row per warehouse entry.
// In-transit pseudo-warehouses keep their rows but stay out of the real-stock
// sum; the vendor rollup is suppressed unless the totals row is enabled.
func Flatten(items []ReportItem, opts FlattenOptions) FlattenResult {
	res := FlattenResult{}

	for _, item := range items {
		// First pass: split pseudo-warehouses from real ones.
		var (
			inToClient   int
			inFromClient int
			rollupQty    int
			rollupFull   int
			rollupSeen   bool
			realSum      int
			fullSum      int
			fullSeen     bool
			real         []ReportWarehouse
			transit      []ReportWarehouse
		)
		for _, wh := range item.Warehouses {
			switch classifyWarehouse(wh.WarehouseName) {
			case warehouseInTransitToClient:
				inToClient += intOrZero(wh.Quantity)
				transit = append(transit, wh)
			case warehouseInTransitFromClient:
				inFromClient += intOrZero(wh.Quantity)
				transit = append(transit, wh)
			case warehouseRollup:
				rollupQty += intOrZero(wh.Quantity)
				rollupFull += intOrZero(wh.QuantityFull)
				rollupSeen = true
			default:
				if wh.WarehouseName == "" {
					res.Dropped.Total++
					res.Dropped.MissingWarehouse++
					continue
				}
				realSum += intOrZero(wh.Quantity)
				if wh.QuantityFull != nil {
					fullSum += *wh.QuantityFull
					fullSeen = true
				}
				real = append(real, wh)
			}
		}

		if item.NmId == 0 || item.Barcode == "" {
			kept := len(real) + len(transit)
			if item.NmId == 0 {
				res.Dropped.MissingNmId += kept
			}
			if item.Barcode == "" {
				res.Dropped.MissingBarcode += kept
			}
			res.Dropped.Total += kept
			continue
		}

		if rollupSeen && rollupQty != realSum {
			res.Mismatches = append(res.Mismatches, RollupMismatch{
				NmId:     item.NmId,
				Barcode:  item.Barcode,
				TechSize: item.TechSize,
				Reported: rollupQty,
				Derived:  realSum,
			})
		}

		// Second pass: emit rows with the item-level sums attached.
		volume := utils.DereferencePtr(item.Volume)
		emit := func(wh ReportWarehouse, full int) {
			res.Rows = append(res.Rows, models.StockRow{
				NmId:            item.NmId,
				Barcode:         item.Barcode,
				TechSize:        item.TechSize,
				WarehouseName:   wh.WarehouseName,
				Quantity:        intOrZero(wh.Quantity),
				InWayToClient:   inToClient,
				InWayFromClient: inFromClient,
				QuantityFull:    full,
				SupplierArticle: item.VendorCode,
				Brand:           item.Brand,
				Subject:         item.SubjectName,
				Volume:          volume,
				Source:          opts.Source,
				SyncedAt:        opts.Now,
			})
		}
		for _, wh := range real {
			qty := intOrZero(wh.Quantity)
			full := qty + inToClient + inFromClient
			if wh.QuantityFull != nil {
				full = *wh.QuantityFull
			}
			emit(wh, full)
		}
		// In-transit entries keep their own rows; they simply never count
		// toward the real-warehouse sum.
		for _, wh := range transit {
			full := intOrZero(wh.Quantity)
			if wh.QuantityFull != nil {
				full = *wh.QuantityFull
			}
			emit(wh, full)
		}

		if opts.EmitTotalsRow && len(real) > 0 {
			full := realSum + inToClient + inFromClient
			if fullSeen {
				full = fullSum
			} else if rollupSeen && rollupFull > 0 {
				full = rollupFull
			}
			res.Rows = append(res.Rows, models.StockRow{
				NmId:            item.NmId,
				Barcode:         item.Barcode,
				TechSize:        item.TechSize,
				WarehouseName:   warehouseTotalRollup,
				Quantity:        realSum,
				InWayToClient:   inToClient,
				InWayFromClient: inFromClient,
				QuantityFull:    full,
				SupplierArticle: item.VendorCode,
				Brand:           item.Brand,
				Subject:         item.SubjectName,
				Volume:          volume,
				Source:          opts.Source,
				SyncedAt:        opts.Now,
			})
		}
	}

	return res
}
