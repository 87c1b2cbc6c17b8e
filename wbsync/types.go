package wbsync

import (
	"encoding/json"
	"strings"
)

// WB labels pseudo-warehouses with fixed Russian names. They are structurally
// distinguished from real warehouses by name only.
const (
	warehouseTotalRollup = "Всего находится на складах"

	inTransitToClientPrefix   = "В пути до"
	inTransitFromClientPrefix = "В пути возврат"
)

type warehouseKind int

const (
	warehouseReal warehouseKind = iota
	warehouseInTransitToClient
	warehouseInTransitFromClient
	warehouseRollup
)

func classifyWarehouse(name string) warehouseKind {
	switch {
	case name == warehouseTotalRollup:
		return warehouseRollup
	case strings.HasPrefix(name, inTransitToClientPrefix):
		return warehouseInTransitToClient
	case strings.HasPrefix(name, inTransitFromClientPrefix):
		return warehouseInTransitFromClient
	default:
		return warehouseReal
	}
}

// ReportWarehouse is one warehouse entry of a remains-report item. Quantity
// defaults to 0 when absent; QuantityFull is vendor-supplied or derived.
type ReportWarehouse struct {
	WarehouseName string `json:"warehouseName"`
	Quantity      *int   `json:"quantity"`
	QuantityFull  *int   `json:"quantityFull"`
}

// ReportItem is one catalog entry of the downloaded remains report.
type ReportItem struct {
	Brand       string            `json:"brand"`
	SubjectName string            `json:"subjectName"`
	VendorCode  string            `json:"vendorCode"`
	NmId        int64             `json:"nmId"`
	Barcode     string            `json:"barcode"`
	TechSize    string            `json:"techSize"`
	Volume      *float64          `json:"volume"`
	Warehouses  []ReportWarehouse `json:"warehouses"`
}

// FeedRow is one row of the synchronous supplier-stocks feed.
type FeedRow struct {
	LastChangeDate  string      `json:"lastChangeDate"`
	WarehouseName   string      `json:"warehouseName"`
	SupplierArticle string      `json:"supplierArticle"`
	NmId            int64       `json:"nmId"`
	Barcode         string      `json:"barcode"`
	Quantity        *int        `json:"quantity"`
	InWayToClient   *int        `json:"inWayToClient"`
	InWayFromClient *int        `json:"inWayFromClient"`
	QuantityFull    *int        `json:"quantityFull"`
	Category        string      `json:"category"`
	Subject         string      `json:"subject"`
	Brand           string      `json:"brand"`
	TechSize        string      `json:"techSize"`
	Price           json.Number `json:"Price"`
	Discount        json.Number `json:"Discount"`
	IsSupply        *bool       `json:"isSupply"`
	IsRealization   *bool       `json:"isRealization"`
	SCCode          string      `json:"SCCode"`
}

type taskCreatedResponse struct {
	Data struct {
		TaskId string `json:"taskId"`
	} `json:"data"`
}

type taskStatusResponse struct {
	Data struct {
		Id     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

type SyncPubSubPayload struct {
	RunId       uint   `json:"run_id"`
	Mode        string `json:"mode"`
	TriggeredBy string `json:"triggered_by"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type TriggerSyncRequest struct {
	Mode string `json:"mode" validate:"omitempty,oneof=report feed"`
}

type SyncRunResponse struct {
	ID           uint    `json:"id"`
	Mode         string  `json:"mode"`
	Status       string  `json:"status"`
	TriggeredBy  string  `json:"triggeredBy"`
	StartedAt    *string `json:"startedAt"`
	FinishedAt   *string `json:"finishedAt"`
	DurationMs   int64   `json:"durationMs"`
	RowsFetched  int     `json:"rowsFetched"`
	RowsUpserted int     `json:"rowsUpserted"`
	RowsDropped  int     `json:"rowsDropped"`
	WarningCount int     `json:"warningCount"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncErrorResponse struct {
	ID        uint   `json:"id"`
	NmId      int64  `json:"nmId"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
