package goods

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/cargo-backoffice/internal/pricing"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

var (
	ErrNotFound            = errors.New("goods record not found")
	ErrVersionConflict     = errors.New("goods record was modified concurrently")
	ErrUnknownNomenclature = errors.New("unknown nomenclature")
	ErrUnknownReference    = errors.New("unknown counterparty or branch")
)

// Record is a stored shipment with its cargo lines and merchandise.
type Record struct {
	ID            uuid.UUID             `json:"id"`
	Number        string                `json:"number"`
	SenderID      int64                 `json:"sender_id"`
	RecipientID   int64                 `json:"recipient_id"`
	BranchID      int64                 `json:"branch_id"`
	MarkupPercent decimal.Decimal       `json:"markup_percent"`
	Benefit       pricing.ActiveBenefit `json:"benefit"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	Total         decimal.Decimal       `json:"total"`
	CreatedBy     string                `json:"created_by,omitempty"`
	Version       int                   `json:"version"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	Lines         []pricing.LineItem    `json:"lines,omitempty"`
	Products      []pricing.Product     `json:"products,omitempty"`
}

// Nomenclature is the catalogue entry a merchandise line refers to.
type Nomenclature struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	Editable bool
}

// Input is the desired state of a record. On update, lines and products that
// carry an id refer to stored rows; stored rows missing from the input are
// deleted.
type Input struct {
	SenderID      int64            `json:"sender_id" validate:"required,gt=0"`
	RecipientID   int64            `json:"recipient_id" validate:"required,gt=0"`
	BranchID      int64            `json:"branch_id" validate:"required,gt=0"`
	MarkupPercent *decimal.Decimal `json:"markup_percent,omitempty" validate:"omitempty,nonnegative,scale=3"`
	Version       int              `json:"version,omitempty" validate:"gte=0"`
	Lines         []LineInput      `json:"lines" validate:"max=500,dive"`
	Products      []ProductInput   `json:"products" validate:"max=500,dive"`
}

// LineInput is one cargo line. UnitPrice is only honoured when PriceLocked is
// set; an unlocked line is always priced from the tariff table.
type LineInput struct {
	ID             *uuid.UUID       `json:"id,omitempty"`
	NomenclatureID int64            `json:"nomenclature_id" validate:"gte=0"`
	ProductTypeID  int64            `json:"product_type_id" validate:"required,gt=0"`
	Weight         decimal.Decimal  `json:"weight" validate:"nonnegative,scale=3"`
	UnitPrice      *decimal.Decimal `json:"unit_price,omitempty" validate:"omitempty,nonnegative,scale=2"`
	PriceLocked    bool             `json:"price_locked"`
}

// ProductInput is one merchandise line. Price is only honoured for editable
// nomenclature; other products take the catalogue price.
type ProductInput struct {
	ID             *uuid.UUID       `json:"id,omitempty"`
	NomenclatureID int64            `json:"nomenclature_id" validate:"required,gt=0"`
	Quantity       int64            `json:"quantity" validate:"gte=0"`
	Price          *decimal.Decimal `json:"price,omitempty" validate:"omitempty,nonnegative,scale=2"`
}

// Quote is the evaluated state of an editing session.
type Quote struct {
	pricing.Submission
	BranchID       int64                 `json:"branch_id"`
	Benefit        pricing.ActiveBenefit `json:"benefit"`
	MissingTariffs int                   `json:"missing_tariffs"`
}

// Columns are the fields clients may filter and sort goods by.
var Columns = query.Columns{
	"id":           "g.id",
	"number":       "g.number",
	"sender_id":    "g.sender_id",
	"recipient_id": "g.recipient_id",
	"branch_id":    "g.branch_id",
	"benefit_kind": "g.benefit_kind",
	"subtotal":     "g.subtotal",
	"total":        "g.total",
	"created_by":   "g.created_by",
	"created_at":   "g.created_at",
	"updated_at":   "g.updated_at",
}
