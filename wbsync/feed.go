package wbsync

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocks_sync/models"
	"github.com/shopspring/decimal"
)

const feedPath = "/api/v1/supplier/stocks"

// FeedSince computes the dateFrom parameter of the incremental feed:
// the fixed epoch for a full resync, otherwise now minus the lookback
// window. WB expects RFC3339 without sub-second precision.
func FeedSince(cfg Config, now time.Time) string {
	if cfg.FullSync {
		return fullSyncEpoch
	}
	return now.Add(-time.Duration(cfg.LookbackMinutes) * time.Minute).
		UTC().Format("2006-01-02T15:04:05")
}

// FetchFeed pulls the synchronous supplier-stocks feed. Backoff here is
// capped at 30s; the feed endpoint rate-limits aggressively.
func (c *wbClient) FetchFeed(ctx context.Context, cfg Config, dateFrom string) ([]FeedRow, error) {
	resp, err := c.do(ctx, apiRequest{
		method:   "GET",
		url:      cfg.FeedBaseURL + feedPath + "?dateFrom=" + dateFrom,
		retries:  cfg.MaxRetries,
		capDelay: 30 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	var rows []FeedRow
	if err := json.Unmarshal(resp, &rows); err != nil {
		return nil, &InvalidReportShapeError{Detail: err.Error()}
	}
	return rows, nil
}

// NormalizeFeed maps feed rows onto the stocks table shape, dropping rows
// missing any identity field and tallying the reason per field.
func NormalizeFeed(rows []FeedRow, source string, now time.Time) FlattenResult {
	res := FlattenResult{}

	for _, r := range rows {
		missing := false
		if r.NmId == 0 {
			res.Dropped.MissingNmId++
			missing = true
		}
		if r.Barcode == "" {
			res.Dropped.MissingBarcode++
			missing = true
		}
		if r.WarehouseName == "" {
			res.Dropped.MissingWarehouse++
			missing = true
		}
		if missing {
			res.Dropped.Total++
			continue
		}

		qty := intOrZero(r.Quantity)
		full := qty + intOrZero(r.InWayToClient) + intOrZero(r.InWayFromClient)
		if r.QuantityFull != nil {
			full = *r.QuantityFull
		}

		row := models.StockRow{
			NmId:            r.NmId,
			Barcode:         r.Barcode,
			TechSize:        r.TechSize,
			WarehouseName:   r.WarehouseName,
			Quantity:        qty,
			InWayToClient:   intOrZero(r.InWayToClient),
			InWayFromClient: intOrZero(r.InWayFromClient),
			QuantityFull:    full,
			SupplierArticle: r.SupplierArticle,
			Brand:           r.Brand,
			Subject:         r.Subject,
			Category:        r.Category,
			Price:           decimalOrZero(r.Price),
			Discount:        decimalOrZero(r.Discount),
			IsSupply:        r.IsSupply,
			IsRealization:   r.IsRealization,
			SCCode:          r.SCCode,
			Source:          source,
			SyncedAt:        now,
		}
		if ts, err := parseFeedTime(r.LastChangeDate); err == nil {
			row.LastChangeTs = &ts
		}
		res.Rows = append(res.Rows, row)
	}

	return res
}

func decimalOrZero(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseFeedTime accepts the timestamp variants WB has shipped over time.
func parseFeedTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
