package pricing

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrLineNotFound is returned when an edit targets an unknown or removed line.
	ErrLineNotFound = errors.New("line item not found")
	// ErrProductNotFound is returned when an edit targets an unknown or removed product.
	ErrProductNotFound = errors.New("product not found")
	// ErrNegativeWeight rejects negative declared weights.
	ErrNegativeWeight = errors.New("weight must not be negative")
	// ErrNegativeQuantity rejects negative product quantities.
	ErrNegativeQuantity = errors.New("quantity must not be negative")
	// ErrProductUnavailable indicates the nomenclature is not sold at the destination branch.
	ErrProductUnavailable = errors.New("product not available for destination branch")
	// ErrProductNotEditable is returned when changing the price of a fixed-price product.
	ErrProductNotEditable = errors.New("product price is not editable")
)

// Stored precision. Weights keep grams, prices keep cents; a line sum is the
// exact product of the two and never needs rounding.
const (
	WeightPlaces int32 = 3
	PricePlaces  int32 = 2
)

func roundWeight(d decimal.Decimal) decimal.Decimal { return d.Round(WeightPlaces) }

func roundPrice(d decimal.Decimal) decimal.Decimal { return d.Round(PricePlaces) }

// Origin records where a line came from in the current editing session.
type Origin int

const (
	// OriginNew marks lines created during this session.
	OriginNew Origin = iota
	// OriginPersisted marks lines loaded from a stored record.
	OriginPersisted
)

// LineItem is one weighed unit of cargo priced per kilogram.
type LineItem struct {
	ID             uuid.UUID       `json:"id"`
	NomenclatureID int64           `json:"nomenclature_id"`
	ProductTypeID  int64           `json:"product_type_id"`
	Weight         decimal.Decimal `json:"weight"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Sum            decimal.Decimal `json:"sum"`
	PriceLocked    bool            `json:"price_locked"`
	Origin         Origin          `json:"-"`
	Updated        bool            `json:"-"`
	Deleted        bool            `json:"-"`
}

// IsNew reports whether the line was created in this session.
func (l LineItem) IsNew() bool { return l.Origin == OriginNew }

func (l *LineItem) recomputeSum() {
	l.Sum = l.Weight.Mul(l.UnitPrice)
}

// Product is a quantity-priced merchandise line sold alongside the cargo.
type Product struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	NomenclatureID int64           `json:"nomenclature_id"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int64           `json:"quantity"`
	Sum            decimal.Decimal `json:"sum"`
	Editable       bool            `json:"editable"`
	Origin         Origin          `json:"-"`
	Updated        bool            `json:"-"`
	Deleted        bool            `json:"-"`
}

// AvailableFor reports whether the product may be sold at a branch with the
// given nomenclature whitelist.
func (p Product) AvailableFor(w Whitelist) bool {
	return w.Contains(p.NomenclatureID)
}

func (p *Product) recomputeSum() {
	p.Sum = p.Price.Mul(decimal.NewFromInt(p.Quantity))
}

// Whitelist is the set of nomenclature ids sold at a branch. A nil whitelist
// means the branch has no restriction configured.
type Whitelist map[int64]struct{}

// NewWhitelist builds a whitelist from nomenclature ids.
func NewWhitelist(ids []int64) Whitelist {
	w := make(Whitelist, len(ids))
	for _, id := range ids {
		w[id] = struct{}{}
	}
	return w
}

// Contains reports membership. Nil whitelists contain everything.
func (w Whitelist) Contains(nomenclatureID int64) bool {
	if w == nil {
		return true
	}
	_, ok := w[nomenclatureID]
	return ok
}

// IDs returns the members in no particular order.
func (w Whitelist) IDs() []int64 {
	out := make([]int64, 0, len(w))
	for id := range w {
		out = append(out, id)
	}
	return out
}
