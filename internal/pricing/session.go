package pricing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionConfig seeds an editing session.
type SessionConfig struct {
	Tariffs     TariffTable
	BranchID    int64
	Benefit     ActiveBenefit
	Whitelist   Whitelist
	FloorAtZero bool
	NewID       func() uuid.UUID
}

// Stats counts resolver activity during a session.
type Stats struct {
	Repriced      int
	LockedSkipped int
	MissingTariff int
}

// Session replays form edits over a shipment's lines and keeps unit prices and
// sums consistent with the tariff table, the destination branch and the active
// benefit. Locked lines are never repriced; only SetUnitPrice changes them.
//
// A Session is not safe for concurrent use.
type Session struct {
	resolver  Resolver
	branchID  int64
	benefit   ActiveBenefit
	whitelist Whitelist
	lines     []LineItem
	products  []Product
	newID     func() uuid.UUID
	stats     Stats
}

// NewSession starts an empty session for a record being created.
func NewSession(cfg SessionConfig) *Session {
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.New
	}
	return &Session{
		resolver:  Resolver{Tariffs: cfg.Tariffs, FloorAtZero: cfg.FloorAtZero},
		branchID:  cfg.BranchID,
		benefit:   cfg.Benefit,
		whitelist: cfg.Whitelist,
		newID:     newID,
	}
}

// LoadSession starts a session over a stored record. Persisted lines keep their
// stored prices until a trigger fires during the session.
func LoadSession(cfg SessionConfig, lines []LineItem, products []Product) *Session {
	s := NewSession(cfg)
	s.lines = make([]LineItem, 0, len(lines))
	for _, l := range lines {
		l.Origin = OriginPersisted
		l.Updated = false
		l.Deleted = false
		l.recomputeSum()
		s.lines = append(s.lines, l)
	}
	s.products = make([]Product, 0, len(products))
	for _, p := range products {
		p.Origin = OriginPersisted
		p.Updated = false
		p.Deleted = false
		p.recomputeSum()
		s.products = append(s.products, p)
	}
	return s
}

// Destination returns the current destination branch.
func (s *Session) Destination() int64 { return s.branchID }

// Benefit returns the active benefit.
func (s *Session) Benefit() ActiveBenefit { return s.benefit }

// Stats returns resolver counters accumulated so far.
func (s *Session) Stats() Stats { return s.stats }

// Lines returns a copy of every line, including persisted lines marked deleted.
func (s *Session) Lines() []LineItem {
	out := make([]LineItem, len(s.lines))
	copy(out, s.lines)
	return out
}

// Products returns a copy of every merchandise line.
func (s *Session) Products() []Product {
	out := make([]Product, len(s.products))
	copy(out, s.products)
	return out
}

// SetDestination switches the destination branch and reprices unlocked lines.
func (s *Session) SetDestination(branchID int64) {
	if branchID == s.branchID {
		return
	}
	s.branchID = branchID
	s.repriceAll()
}

// ReloadTariffs swaps in a fresh tariff table and reprices unlocked lines.
func (s *Session) ReloadTariffs(table TariffTable) {
	s.resolver.Tariffs = table
	s.repriceAll()
}

// SetWhitelist replaces the destination branch's nomenclature whitelist.
func (s *Session) SetWhitelist(w Whitelist) { s.whitelist = w }

// ApplyBenefit installs a newly resolved benefit. Lines are repriced only when
// the discount amount actually changes.
func (s *Session) ApplyBenefit(b ActiveBenefit) {
	changed := !b.DiscountAmount.Equal(s.benefit.DiscountAmount)
	s.benefit = b
	if changed {
		s.repriceAll()
	}
}

// SelectParties re-runs benefit selection for a new sender/recipient pair.
func (s *Session) SelectParties(senderID, recipientID int64, candidates []Candidate) ActiveBenefit {
	b := SelectBenefit(senderID, recipientID, candidates)
	s.ApplyBenefit(b)
	return b
}

// LineInput describes a line added during the session. A non-nil UnitPrice is
// treated as manual input and locks the line.
type LineInput struct {
	NomenclatureID int64
	ProductTypeID  int64
	Weight         decimal.Decimal
	UnitPrice      *decimal.Decimal
}

// AddLine appends a new line and prices it.
func (s *Session) AddLine(in LineInput) (LineItem, error) {
	if in.Weight.IsNegative() {
		return LineItem{}, ErrNegativeWeight
	}
	line := LineItem{
		ID:             s.newID(),
		NomenclatureID: in.NomenclatureID,
		ProductTypeID:  in.ProductTypeID,
		Weight:         roundWeight(in.Weight),
		UnitPrice:      decimal.Zero,
		Origin:         OriginNew,
	}
	if in.UnitPrice != nil {
		line.UnitPrice = roundPrice(*in.UnitPrice)
		line.PriceLocked = true
	} else {
		s.reprice(&line)
	}
	line.recomputeSum()
	s.lines = append(s.lines, line)
	return line, nil
}

// SetProductType changes a line's product type and reprices it unless locked.
func (s *Session) SetProductType(id uuid.UUID, productTypeID int64) error {
	line, err := s.line(id)
	if err != nil {
		return err
	}
	if line.ProductTypeID != productTypeID {
		line.ProductTypeID = productTypeID
		s.markUpdated(line)
	}
	s.reprice(line)
	line.recomputeSum()
	return nil
}

// SetNomenclature points a line at another nomenclature entry. The price does
// not depend on it, so nothing is repriced.
func (s *Session) SetNomenclature(id uuid.UUID, nomenclatureID int64) error {
	line, err := s.line(id)
	if err != nil {
		return err
	}
	if line.NomenclatureID != nomenclatureID {
		line.NomenclatureID = nomenclatureID
		s.markUpdated(line)
	}
	return nil
}

// CommitWeight applies a committed weight edit.
func (s *Session) CommitWeight(id uuid.UUID, weight decimal.Decimal) error {
	if weight.IsNegative() {
		return ErrNegativeWeight
	}
	line, err := s.line(id)
	if err != nil {
		return err
	}
	weight = roundWeight(weight)
	if !line.Weight.Equal(weight) {
		line.Weight = weight
		s.markUpdated(line)
	}
	s.reprice(line)
	line.recomputeSum()
	return nil
}

// SetUnitPrice records direct user input and locks the line against repricing.
func (s *Session) SetUnitPrice(id uuid.UUID, price decimal.Decimal) error {
	line, err := s.line(id)
	if err != nil {
		return err
	}
	price = roundPrice(price)
	if !line.UnitPrice.Equal(price) || !line.PriceLocked {
		s.markUpdated(line)
	}
	line.UnitPrice = price
	line.PriceLocked = true
	line.recomputeSum()
	return nil
}

// UnlockPrice clears the manual lock and reprices the line.
func (s *Session) UnlockPrice(id uuid.UUID) error {
	line, err := s.line(id)
	if err != nil {
		return err
	}
	if !line.PriceLocked {
		return nil
	}
	line.PriceLocked = false
	s.markUpdated(line)
	s.reprice(line)
	line.recomputeSum()
	return nil
}

// RemoveLine drops a new line or marks a persisted one for deletion.
func (s *Session) RemoveLine(id uuid.UUID) error {
	for i := range s.lines {
		if s.lines[i].ID != id || s.lines[i].Deleted {
			continue
		}
		if s.lines[i].Origin == OriginNew {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			return nil
		}
		s.lines[i].Deleted = true
		return nil
	}
	return ErrLineNotFound
}

// ProductInput describes a merchandise line added during the session.
type ProductInput struct {
	Name           string
	NomenclatureID int64
	Price          decimal.Decimal
	Quantity       int64
	Editable       bool
}

// AddProduct appends a merchandise line after checking the branch whitelist.
func (s *Session) AddProduct(in ProductInput) (Product, error) {
	if in.Quantity < 0 {
		return Product{}, ErrNegativeQuantity
	}
	p := Product{
		ID:             s.newID(),
		Name:           in.Name,
		NomenclatureID: in.NomenclatureID,
		Price:          roundPrice(in.Price),
		Quantity:       in.Quantity,
		Editable:       in.Editable,
		Origin:         OriginNew,
	}
	if !p.AvailableFor(s.whitelist) {
		return Product{}, ErrProductUnavailable
	}
	p.recomputeSum()
	s.products = append(s.products, p)
	return p, nil
}

// CheckProducts verifies that every remaining product is sold at the current
// destination. Edits that move a record to another branch call it once the
// product changes were replayed.
func (s *Session) CheckProducts() error {
	for _, p := range s.products {
		if p.Deleted || (p.Origin == OriginPersisted && p.Quantity == 0) {
			continue
		}
		if !p.AvailableFor(s.whitelist) {
			return fmt.Errorf("%s (nomenclature %d): %w", p.Name, p.NomenclatureID, ErrProductUnavailable)
		}
	}
	return nil
}

// SetProductQuantity updates a product's quantity.
func (s *Session) SetProductQuantity(id uuid.UUID, qty int64) error {
	if qty < 0 {
		return ErrNegativeQuantity
	}
	p, err := s.product(id)
	if err != nil {
		return err
	}
	if p.Quantity != qty {
		p.Quantity = qty
		if p.Origin == OriginPersisted {
			p.Updated = true
		}
	}
	p.recomputeSum()
	return nil
}

// SetProductPrice updates the price of an editable product.
func (s *Session) SetProductPrice(id uuid.UUID, price decimal.Decimal) error {
	p, err := s.product(id)
	if err != nil {
		return err
	}
	if !p.Editable {
		return ErrProductNotEditable
	}
	price = roundPrice(price)
	if !p.Price.Equal(price) {
		p.Price = price
		if p.Origin == OriginPersisted {
			p.Updated = true
		}
	}
	p.recomputeSum()
	return nil
}

// RemoveProduct drops a new product or marks a persisted one for deletion.
func (s *Session) RemoveProduct(id uuid.UUID) error {
	for i := range s.products {
		if s.products[i].ID != id || s.products[i].Deleted {
			continue
		}
		if s.products[i].Origin == OriginNew {
			s.products = append(s.products[:i], s.products[i+1:]...)
			return nil
		}
		s.products[i].Deleted = true
		return nil
	}
	return ErrProductNotFound
}

// Assemble builds the submission payload for the session's current state.
func (s *Session) Assemble(mode Mode, markupPercent decimal.Decimal) Submission {
	return Assemble(AssembleInput{
		Mode:          mode,
		Lines:         s.lines,
		Products:      s.products,
		MarkupPercent: markupPercent,
	})
}

func (s *Session) repriceAll() {
	for i := range s.lines {
		if s.lines[i].Deleted {
			continue
		}
		s.reprice(&s.lines[i])
		s.lines[i].recomputeSum()
	}
}

func (s *Session) reprice(line *LineItem) {
	if line.PriceLocked {
		s.stats.LockedSkipped++
		return
	}
	if !s.resolver.Tariffs.Has(s.branchID, line.ProductTypeID) {
		s.stats.MissingTariff++
	}
	price := s.resolver.CandidatePrice(s.branchID, line.ProductTypeID, s.benefit.DiscountAmount)
	if !price.Equal(line.UnitPrice) {
		s.markUpdated(line)
	}
	line.UnitPrice = price
	s.stats.Repriced++
}

func (s *Session) markUpdated(line *LineItem) {
	if line.Origin == OriginPersisted {
		line.Updated = true
	}
}

func (s *Session) line(id uuid.UUID) (*LineItem, error) {
	for i := range s.lines {
		if s.lines[i].ID == id && !s.lines[i].Deleted {
			return &s.lines[i], nil
		}
	}
	return nil, ErrLineNotFound
}

func (s *Session) product(id uuid.UUID) (*Product, error) {
	for i := range s.products {
		if s.products[i].ID == id && !s.products[i].Deleted {
			return &s.products[i], nil
		}
	}
	return nil, ErrProductNotFound
}
