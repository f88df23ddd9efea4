package tariff

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/cargo-backoffice/internal/pricing"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

var (
	// ErrNotFound is returned when a tariff row does not exist.
	ErrNotFound = errors.New("tariff not found")
	// ErrUnknownReference is returned when a branch or product type does not exist.
	ErrUnknownReference = errors.New("unknown branch or product type")
)

// Tariff is a stored per-kilogram price for a product type shipped to a branch.
type Tariff struct {
	ID            int64           `json:"id"`
	BranchID      int64           `json:"branch_id"`
	ProductTypeID int64           `json:"product_type_id"`
	Price         decimal.Decimal `json:"price"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// UpsertInput sets the price for one (branch, product type) pair.
type UpsertInput struct {
	BranchID      int64           `json:"branch_id" validate:"required,gt=0"`
	ProductTypeID int64           `json:"product_type_id" validate:"required,gt=0"`
	Price         decimal.Decimal `json:"price" validate:"nonnegative"`
}

// Columns is the filter and sort allowlist for tariff listings.
var Columns = query.Columns{
	"id":              "t.id",
	"branch_id":       "t.branch_id",
	"product_type_id": "t.product_type_id",
	"price":           "t.price",
	"updated_at":      "t.updated_at",
}

func toPricing(rows []Tariff) []pricing.Tariff {
	out := make([]pricing.Tariff, 0, len(rows))
	for _, r := range rows {
		out = append(out, pricing.Tariff{BranchID: r.BranchID, ProductTypeID: r.ProductTypeID, Price: r.Price})
	}
	return out
}
