package wbsync

import (
	"testing"
	"time"
)

func intp(v int) *int { return &v }

func sampleItem() ReportItem {
	return ReportItem{
		Brand:       "Acme",
		SubjectName: "Socks",
		VendorCode:  "SKU-1",
		NmId:        101,
		Barcode:     "2000000000017",
		TechSize:    "42",
		Warehouses: []ReportWarehouse{
			{WarehouseName: "Коледино", Quantity: intp(5)},
			{WarehouseName: "Казань", Quantity: intp(7)},
			{WarehouseName: "В пути до получателей", Quantity: intp(3)},
			{WarehouseName: "В пути возвраты на склад WB", Quantity: intp(2)},
			{WarehouseName: "Всего находится на складах", Quantity: intp(12)},
		},
	}
}

func TestFlattenEmitsOneRowPerWarehouseEntry(t *testing.T) {
	res := Flatten([]ReportItem{sampleItem()}, FlattenOptions{Source: "report", Now: time.Now()})

	// Two real warehouses plus two in-transit entries; the vendor rollup is
	// suppressed with the totals flag off.
	if len(res.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(res.Rows))
	}
	for _, row := range res.Rows {
		if row.NmId != 101 || row.Barcode != "2000000000017" || row.TechSize != "42" {
			t.Fatalf("identity fields not carried onto row: %+v", row)
		}
		if row.InWayToClient != 3 || row.InWayFromClient != 2 {
			t.Fatalf("in-transit sums not attached to row: %+v", row)
		}
	}
	if res.Rows[0].WarehouseName != "Коледино" || res.Rows[0].Quantity != 5 {
		t.Fatalf("unexpected first row: %+v", res.Rows[0])
	}
	if res.Rows[1].WarehouseName != "Казань" || res.Rows[1].Quantity != 7 {
		t.Fatalf("unexpected second row: %+v", res.Rows[1])
	}
	if res.Rows[2].WarehouseName != "В пути до получателей" || res.Rows[2].Quantity != 3 {
		t.Fatalf("in-transit row missing: %+v", res.Rows[2])
	}
	if res.Rows[3].WarehouseName != "В пути возвраты на склад WB" || res.Rows[3].Quantity != 2 {
		t.Fatalf("returns row missing: %+v", res.Rows[3])
	}
}

func TestFlattenSuppressesVendorRollupRow(t *testing.T) {
	res := Flatten([]ReportItem{sampleItem()}, FlattenOptions{Source: "report", Now: time.Now()})

	for _, row := range res.Rows {
		if row.WarehouseName == warehouseTotalRollup {
			t.Fatalf("rollup emitted as a row with totals off: %+v", row)
		}
	}
}

func TestFlattenQuantityFullDerivedWhenVendorAbsent(t *testing.T) {
	res := Flatten([]ReportItem{sampleItem()}, FlattenOptions{Source: "report", Now: time.Now()})

	// No vendor quantityFull on the rows, so full = qty + in-transit sums.
	if res.Rows[0].QuantityFull != 5+3+2 {
		t.Fatalf("expected derived full 10, got %d", res.Rows[0].QuantityFull)
	}

	item := sampleItem()
	item.Warehouses[0].QuantityFull = intp(99)
	res = Flatten([]ReportItem{item}, FlattenOptions{Source: "report", Now: time.Now()})
	if res.Rows[0].QuantityFull != 99 {
		t.Fatalf("vendor-supplied full must win, got %d", res.Rows[0].QuantityFull)
	}
}

func TestFlattenRollupMismatchIsAdvisoryOnly(t *testing.T) {
	item := sampleItem()
	// Vendor rollup says 12; real sum is also 12. No mismatch.
	res := Flatten([]ReportItem{item}, FlattenOptions{Source: "report", Now: time.Now()})
	if len(res.Mismatches) != 0 {
		t.Fatalf("unexpected mismatch: %+v", res.Mismatches)
	}

	item.Warehouses[4].Quantity = intp(20)
	res = Flatten([]ReportItem{item}, FlattenOptions{Source: "report", Now: time.Now()})
	if len(res.Mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %d", len(res.Mismatches))
	}
	m := res.Mismatches[0]
	if m.Reported != 20 || m.Derived != 12 || m.NmId != 101 {
		t.Fatalf("unexpected mismatch record: %+v", m)
	}
	// Rows are still produced despite the disagreement.
	if len(res.Rows) != 4 {
		t.Fatalf("mismatch must not drop rows, got %d", len(res.Rows))
	}
}

func TestFlattenDropsRowsMissingIdentityFields(t *testing.T) {
	noNm := sampleItem()
	noNm.NmId = 0
	noBarcode := sampleItem()
	noBarcode.Barcode = ""
	blankWarehouse := sampleItem()
	blankWarehouse.Warehouses = append(blankWarehouse.Warehouses,
		ReportWarehouse{WarehouseName: "", Quantity: intp(4)})

	res := Flatten([]ReportItem{noNm, noBarcode, blankWarehouse}, FlattenOptions{Source: "report", Now: time.Now()})

	if res.Dropped.MissingNmId != 4 {
		t.Fatalf("expected 4 rows dropped for nm_id, got %d", res.Dropped.MissingNmId)
	}
	if res.Dropped.MissingBarcode != 4 {
		t.Fatalf("expected 4 rows dropped for barcode, got %d", res.Dropped.MissingBarcode)
	}
	if res.Dropped.MissingWarehouse != 1 {
		t.Fatalf("expected 1 row dropped for warehouse name, got %d", res.Dropped.MissingWarehouse)
	}
	if res.Dropped.Total != 9 {
		t.Fatalf("expected 9 total dropped, got %d", res.Dropped.Total)
	}
	// The well-formed item still yields its rows.
	if len(res.Rows) != 4 {
		t.Fatalf("expected 4 surviving rows, got %d", len(res.Rows))
	}
}

func TestFlattenTotalsRowBehindFlag(t *testing.T) {
	res := Flatten([]ReportItem{sampleItem()}, FlattenOptions{Source: "report", Now: time.Now()})
	for _, row := range res.Rows {
		if row.WarehouseName == warehouseTotalRollup {
			t.Fatalf("totals row emitted with flag off")
		}
	}

	res = Flatten([]ReportItem{sampleItem()}, FlattenOptions{
		EmitTotalsRow: true,
		Source:        "report",
		Now:           time.Now(),
	})
	if len(res.Rows) != 5 {
		t.Fatalf("expected 5 rows with totals, got %d", len(res.Rows))
	}
	totals := res.Rows[4]
	if totals.WarehouseName != warehouseTotalRollup {
		t.Fatalf("last row is not the totals row: %+v", totals)
	}
	if totals.Quantity != 12 {
		t.Fatalf("totals quantity must be the real-warehouse sum, got %d", totals.Quantity)
	}
	if totals.QuantityFull != 12+3+2 {
		t.Fatalf("totals full must include in-transit, got %d", totals.QuantityFull)
	}
}

func TestFlattenMissingTechSizeKept(t *testing.T) {
	item := sampleItem()
	item.TechSize = ""
	res := Flatten([]ReportItem{item}, FlattenOptions{Source: "report", Now: time.Now()})
	if len(res.Rows) != 4 || res.Dropped.Total != 0 {
		t.Fatalf("empty tech size must not drop rows: rows=%d dropped=%d", len(res.Rows), res.Dropped.Total)
	}
}

func TestFlattenIsDeterministic(t *testing.T) {
	items := []ReportItem{sampleItem(), sampleItem()}
	items[1].NmId = 202
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	opts := FlattenOptions{Source: "report", Now: now}

	first := Flatten(items, opts)
	second := Flatten(items, opts)
	if len(first.Rows) != len(second.Rows) {
		t.Fatalf("row counts differ: %d vs %d", len(first.Rows), len(second.Rows))
	}
	for i := range first.Rows {
		if first.Rows[i] != second.Rows[i] {
			t.Fatalf("row %d differs between runs", i)
		}
	}
}

func TestClassifyWarehouse(t *testing.T) {
	cases := []struct {
		name string
		want warehouseKind
	}{
		{"Коледино", warehouseReal},
		{"В пути до получателей", warehouseInTransitToClient},
		{"В пути до клиента", warehouseInTransitToClient},
		{"В пути возвраты на склад WB", warehouseInTransitFromClient},
		{"В пути возврат", warehouseInTransitFromClient},
		{"Всего находится на складах", warehouseRollup},
	}
	for _, tc := range cases {
		if got := classifyWarehouse(tc.name); got != tc.want {
			t.Fatalf("classifyWarehouse(%q) = %d, want %d", tc.name, got, tc.want)
		}
	}
}
