package wbsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFeedSince(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cfg := testConfig("http://example.test")
	cfg.LookbackMinutes = 31
	if got := FeedSince(cfg, now); got != "2026-03-10T11:29:00" {
		t.Fatalf("lookback dateFrom = %q", got)
	}

	cfg.FullSync = true
	if got := FeedSince(cfg, now); got != "2019-06-20T00:00:00" {
		t.Fatalf("full sync dateFrom = %q", got)
	}
}

func TestFetchFeedPassesDateFrom(t *testing.T) {
	var gotDateFrom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDateFrom = r.URL.Query().Get("dateFrom")
		fmt.Fprint(w, `[{"nmId":101,"barcode":"b1","warehouseName":"Коледино","quantity":5,"Price":"199.9","Discount":"10"}]`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	rows, err := c.FetchFeed(context.Background(), testConfig(srv.URL), "2026-03-10T11:29:00")
	if err != nil {
		t.Fatalf("FetchFeed: %v", err)
	}
	if gotDateFrom != "2026-03-10T11:29:00" {
		t.Fatalf("dateFrom not forwarded: %q", gotDateFrom)
	}
	if len(rows) != 1 || rows[0].NmId != 101 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestNormalizeFeedMapsFields(t *testing.T) {
	payload := `[{
		"lastChangeDate":"2026-03-10T11:05:00",
		"warehouseName":"Казань",
		"supplierArticle":"SKU-1",
		"nmId":101,
		"barcode":"2000000000017",
		"quantity":5,
		"inWayToClient":3,
		"inWayFromClient":2,
		"category":"Одежда",
		"subject":"Носки",
		"brand":"Acme",
		"techSize":"42",
		"Price":199.9,
		"Discount":10,
		"isSupply":true,
		"SCCode":"SC1"
	}]`
	var rows []FeedRow
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	res := NormalizeFeed(rows, "feed", now)
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	row := res.Rows[0]
	if row.NmId != 101 || row.Barcode != "2000000000017" || row.WarehouseName != "Казань" || row.TechSize != "42" {
		t.Fatalf("identity fields wrong: %+v", row)
	}
	if row.Quantity != 5 || row.InWayToClient != 3 || row.InWayFromClient != 2 {
		t.Fatalf("quantities wrong: %+v", row)
	}
	// quantityFull absent in the payload, so it is derived.
	if row.QuantityFull != 10 {
		t.Fatalf("expected derived full 10, got %d", row.QuantityFull)
	}
	if row.Price.String() != "199.9" || row.Discount.String() != "10" {
		t.Fatalf("decimal fields wrong: price=%s discount=%s", row.Price, row.Discount)
	}
	if row.IsSupply == nil || !*row.IsSupply || row.IsRealization != nil {
		t.Fatalf("tri-state booleans wrong: %+v", row)
	}
	if row.LastChangeTs == nil || !row.LastChangeTs.Equal(time.Date(2026, 3, 10, 11, 5, 0, 0, time.UTC)) {
		t.Fatalf("lastChangeDate not parsed: %+v", row.LastChangeTs)
	}
	if row.Source != "feed" || !row.SyncedAt.Equal(now) {
		t.Fatalf("provenance wrong: %+v", row)
	}
}

func TestNormalizeFeedDropsRowsMissingIdentity(t *testing.T) {
	rows := []FeedRow{
		{NmId: 0, Barcode: "b", WarehouseName: "w"},
		{NmId: 1, Barcode: "", WarehouseName: "w"},
		{NmId: 1, Barcode: "b", WarehouseName: ""},
		{NmId: 0, Barcode: "", WarehouseName: ""},
		{NmId: 1, Barcode: "b", WarehouseName: "w"},
	}
	res := NormalizeFeed(rows, "feed", time.Now())
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 surviving row, got %d", len(res.Rows))
	}
	if res.Dropped.Total != 4 {
		t.Fatalf("expected 4 dropped, got %d", res.Dropped.Total)
	}
	if res.Dropped.MissingNmId != 2 || res.Dropped.MissingBarcode != 2 || res.Dropped.MissingWarehouse != 2 {
		t.Fatalf("per-field tallies wrong: %+v", res.Dropped)
	}
}

func TestParseFeedTimeVariants(t *testing.T) {
	for _, s := range []string{
		"2026-03-10T11:05:00Z",
		"2026-03-10T11:05:00+03:00",
		"2026-03-10T11:05:00",
		"2026-03-10 11:05:00",
	} {
		if _, err := parseFeedTime(s); err != nil {
			t.Fatalf("parseFeedTime(%q): %v", s, err)
		}
	}
	if _, err := parseFeedTime("not-a-time"); err == nil {
		t.Fatal("expected an error for garbage input")
	}
}
