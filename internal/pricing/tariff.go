package pricing

import "github.com/shopspring/decimal"

// Tariff is the base price per kilogram for a product type shipped to a branch.
type Tariff struct {
	BranchID      int64           `json:"branch_id"`
	ProductTypeID int64           `json:"product_type_id"`
	Price         decimal.Decimal `json:"price"`
}

type tariffKey struct {
	branchID      int64
	productTypeID int64
}

// TariffTable indexes tariffs by (branch, product type). At most one entry per
// pair is kept: the first one supplied wins, so callers pass rows ordered by
// recency.
type TariffTable struct {
	prices map[tariffKey]decimal.Decimal
}

// NewTariffTable builds a lookup table from the provided entries.
func NewTariffTable(entries []Tariff) TariffTable {
	prices := make(map[tariffKey]decimal.Decimal, len(entries))
	for _, e := range entries {
		key := tariffKey{branchID: e.BranchID, productTypeID: e.ProductTypeID}
		if _, exists := prices[key]; exists {
			continue
		}
		prices[key] = e.Price
	}
	return TariffTable{prices: prices}
}

// Lookup returns the tariff for the pair or zero when none is configured.
func (t TariffTable) Lookup(branchID, productTypeID int64) decimal.Decimal {
	price, ok := t.prices[tariffKey{branchID: branchID, productTypeID: productTypeID}]
	if !ok {
		return decimal.Zero
	}
	return price
}

// Has reports whether a tariff exists for the pair.
func (t TariffTable) Has(branchID, productTypeID int64) bool {
	_, ok := t.prices[tariffKey{branchID: branchID, productTypeID: productTypeID}]
	return ok
}

// Len returns the number of authoritative entries.
func (t TariffTable) Len() int { return len(t.prices) }

// Resolver turns tariffs and the active discount into a candidate unit price.
type Resolver struct {
	Tariffs     TariffTable
	FloorAtZero bool
}

// CandidatePrice computes tariff minus discount for the pair. Negative results
// are kept unless FloorAtZero is set.
func (r Resolver) CandidatePrice(branchID, productTypeID int64, discount decimal.Decimal) decimal.Decimal {
	price := roundPrice(r.Tariffs.Lookup(branchID, productTypeID).Sub(discount))
	if r.FloorAtZero && price.IsNegative() {
		return decimal.Zero
	}
	return price
}
