package report

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrExportNotFound = errors.New("report export not found")
	ErrExportNotReady = errors.New("report export not ready")
)

// Row is one goods record flattened for reporting.
type Row struct {
	Number          string          `json:"number"`
	CreatedAt       time.Time       `json:"created_at"`
	Branch          string          `json:"branch"`
	Sender          string          `json:"sender"`
	Recipient       string          `json:"recipient"`
	Weight          decimal.Decimal `json:"weight"`
	LineCount       int             `json:"line_count"`
	ProductCount    int             `json:"product_count"`
	BenefitKind     string          `json:"benefit_kind"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	CashbackPercent decimal.Decimal `json:"cashback_percent"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	MarkupPercent   decimal.Decimal `json:"markup_percent"`
	Total           decimal.Decimal `json:"total"`
}

// ExportStatus is the lifecycle state of an asynchronous export.
type ExportStatus string

const (
	ExportPending ExportStatus = "pending"
	ExportReady   ExportStatus = "ready"
	ExportFailed  ExportStatus = "failed"
)

// Export tracks an asynchronous export.
type Export struct {
	ID          string       `json:"id"`
	Status      ExportStatus `json:"status"`
	Query       string       `json:"query,omitempty"`
	RequestedBy string       `json:"requested_by,omitempty"`
	Rows        int          `json:"rows"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}
