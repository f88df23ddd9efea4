package pricing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func sampleTariffs() TariffTable {
	return NewTariffTable([]Tariff{
		{BranchID: 1, ProductTypeID: 5, Price: d("10")},
		{BranchID: 2, ProductTypeID: 5, Price: d("20")},
		{BranchID: 2, ProductTypeID: 7, Price: d("4.5")},
	})
}

func TestLockedLineSurvivesBranchChange(t *testing.T) {
	s := NewSession(SessionConfig{
		Tariffs:  sampleTariffs(),
		BranchID: 1,
		Benefit:  ActiveBenefit{Kind: BenefitDiscount, DiscountAmount: d("2")},
	})
	line, err := s.AddLine(LineInput{ProductTypeID: 5, Weight: d("3")})
	require.NoError(t, err)
	require.True(t, line.UnitPrice.Equal(d("8")))
	require.True(t, line.Sum.Equal(d("24")))

	require.NoError(t, s.SetUnitPrice(line.ID, d("8")))
	s.SetDestination(2)

	got := s.Lines()[0]
	require.True(t, got.PriceLocked)
	require.True(t, got.UnitPrice.Equal(d("8")))
	require.True(t, got.Sum.Equal(d("24")))
}

func TestBranchChangeRepricesUnlockedLines(t *testing.T) {
	s := NewSession(SessionConfig{Tariffs: sampleTariffs(), BranchID: 1})
	unlocked, err := s.AddLine(LineInput{ProductTypeID: 5, Weight: d("2")})
	require.NoError(t, err)
	locked, err := s.AddLine(LineInput{ProductTypeID: 5, Weight: d("1"), UnitPrice: dp("99")})
	require.NoError(t, err)

	s.SetDestination(2)

	lines := s.Lines()
	require.Equal(t, unlocked.ID, lines[0].ID)
	require.True(t, lines[0].UnitPrice.Equal(d("20")))
	require.True(t, lines[0].Sum.Equal(d("40")))
	require.Equal(t, locked.ID, lines[1].ID)
	require.True(t, lines[1].UnitPrice.Equal(d("99")))
	require.Equal(t, 1, s.Stats().LockedSkipped)
}

func TestMissingTariffResolvesToZero(t *testing.T) {
	s := NewSession(SessionConfig{Tariffs: sampleTariffs(), BranchID: 3})
	line, err := s.AddLine(LineInput{ProductTypeID: 5, Weight: d("12")})
	require.NoError(t, err)
	require.True(t, line.UnitPrice.IsZero())
	require.True(t, line.Sum.IsZero())
	require.Equal(t, 1, s.Stats().MissingTariff)
}

func TestNegativeCandidateIsKeptUnlessFloored(t *testing.T) {
	benefit := ActiveBenefit{Kind: BenefitDiscount, DiscountAmount: d("15")}

	s := NewSession(SessionConfig{Tariffs: sampleTariffs(), BranchID: 1, Benefit: benefit})
	line, err := s.AddLine(LineInput{ProductTypeID: 5, Weight: d("1")})
	require.NoError(t, err)
	require.True(t, line.UnitPrice.Equal(d("-5")))

	floored := NewSession(SessionConfig{Tariffs: sampleTariffs(), BranchID: 1, Benefit: benefit, FloorAtZero: true})
	line, err = floored.AddLine(LineInput{ProductTypeID: 5, Weight: d("1")})
	require.NoError(t, err)
	require.True(t, line.UnitPrice.IsZero())
}

func TestApplyBenefitRepricesOnlyWhenDiscountChanges(t *testing.T) {
	s := NewSession(SessionConfig{Tariffs: sampleTariffs(), BranchID: 2})
	line, err := s.AddLine(LineInput{ProductTypeID: 5, Weight: d("1")})
	require.NoError(t, err)
	before := s.Stats().Repriced

	s.ApplyBenefit(ActiveBenefit{Kind: BenefitCashback, CashbackPercent: d("3"), DiscountAmount: decimal.Zero})
	require.Equal(t, before, s.Stats().Repriced)

	s.ApplyBenefit(ActiveBenefit{Kind: BenefitDiscount, DiscountAmount: d("5")})
	require.Equal(t, before+1, s.Stats().Repriced)
	got := s.Lines()[0]
	require.Equal(t, line.ID, got.ID)
	require.True(t, got.UnitPrice.Equal(d("15")))
}

func TestSelectPartiesCashbackClearsDiscount(t *testing.T) {
	s := NewSession(SessionConfig{Tariffs: sampleTariffs(), BranchID: 2})
	_, err := s.AddLine(LineInput{ProductTypeID: 5, Weight: d("2")})
	require.NoError(t, err)

	candidates := []Candidate{
		{ID: 1, Kind: BenefitDiscount, CounterpartyID: 10, Value: d("4")},
	}
	b := s.SelectParties(10, 20, candidates)
	require.Equal(t, BenefitDiscount, b.Kind)
	require.True(t, s.Lines()[0].UnitPrice.Equal(d("16")))

	candidates = append(candidates, Candidate{ID: 2, Kind: BenefitCashback, CounterpartyID: 20, Value: d("5")})
	b = s.SelectParties(10, 20, candidates)
	require.Equal(t, BenefitCashback, b.Kind)
	require.Equal(t, PartyRecipient, b.Target)
	require.True(t, b.DiscountAmount.IsZero())
	require.True(t, s.Lines()[0].UnitPrice.Equal(d("20")))
}

func TestSumRecomputedForLockedLineOnWeightCommit(t *testing.T) {
	s := NewSession(SessionConfig{Tariffs: sampleTariffs(), BranchID: 1})
	line, err := s.AddLine(LineInput{ProductTypeID: 5, Weight: d("1"), UnitPrice: dp("7")})
	require.NoError(t, err)

	require.NoError(t, s.CommitWeight(line.ID, d("2.5")))
	got := s.Lines()[0]
	require.True(t, got.UnitPrice.Equal(d("7")))
	require.True(t, got.Sum.Equal(d("17.5")))

	require.ErrorIs(t, s.CommitWeight(line.ID, d("-1")), ErrNegativeWeight)
	require.ErrorIs(t, s.CommitWeight(uuid.New(), d("1")), ErrLineNotFound)
}

func TestUnlockPriceReprices(t *testing.T) {
	s := NewSession(SessionConfig{Tariffs: sampleTariffs(), BranchID: 2})
	line, err := s.AddLine(LineInput{ProductTypeID: 7, Weight: d("2"), UnitPrice: dp("1")})
	require.NoError(t, err)

	require.NoError(t, s.UnlockPrice(line.ID))
	got := s.Lines()[0]
	require.False(t, got.PriceLocked)
	require.True(t, got.UnitPrice.Equal(d("4.5")))
	require.True(t, got.Sum.Equal(d("9")))
}

func TestLoadSessionKeepsStoredPricesUntilTriggered(t *testing.T) {
	stored := []LineItem{
		{ID: uuid.New(), ProductTypeID: 5, Weight: d("2"), UnitPrice: d("11")},
		{ID: uuid.New(), ProductTypeID: 5, Weight: d("1"), UnitPrice: d("30"), PriceLocked: true},
	}
	s := LoadSession(SessionConfig{Tariffs: sampleTariffs(), BranchID: 1}, stored, nil)

	lines := s.Lines()
	require.True(t, lines[0].UnitPrice.Equal(d("11")))
	require.True(t, lines[0].Sum.Equal(d("22")))
	require.False(t, lines[0].Updated)

	s.SetDestination(2)
	lines = s.Lines()
	require.True(t, lines[0].UnitPrice.Equal(d("20")))
	require.True(t, lines[0].Updated)
	require.True(t, lines[1].UnitPrice.Equal(d("30")))
	require.False(t, lines[1].Updated)
}

func TestRemoveLine(t *testing.T) {
	persisted := LineItem{ID: uuid.New(), ProductTypeID: 5, Weight: d("1"), UnitPrice: d("10")}
	s := LoadSession(SessionConfig{Tariffs: sampleTariffs(), BranchID: 1}, []LineItem{persisted}, nil)
	added, err := s.AddLine(LineInput{ProductTypeID: 5, Weight: d("1")})
	require.NoError(t, err)

	require.NoError(t, s.RemoveLine(added.ID))
	require.NoError(t, s.RemoveLine(persisted.ID))
	require.ErrorIs(t, s.RemoveLine(persisted.ID), ErrLineNotFound)

	lines := s.Lines()
	require.Len(t, lines, 1)
	require.True(t, lines[0].Deleted)
}

func TestRepricingTwiceIsIdempotent(t *testing.T) {
	s := NewSession(SessionConfig{Tariffs: sampleTariffs(), BranchID: 2})
	_, err := s.AddLine(LineInput{ProductTypeID: 7, Weight: d("3.3")})
	require.NoError(t, err)

	s.ReloadTariffs(sampleTariffs())
	first := s.Lines()[0]
	s.ReloadTariffs(sampleTariffs())
	second := s.Lines()[0]
	require.True(t, first.Sum.Equal(second.Sum))
	require.True(t, second.Sum.Equal(second.Weight.Mul(second.UnitPrice)))
}

func TestAddProductChecksWhitelist(t *testing.T) {
	s := NewSession(SessionConfig{Tariffs: sampleTariffs(), BranchID: 1, Whitelist: NewWhitelist([]int64{100})})

	p, err := s.AddProduct(ProductInput{Name: "Box", NomenclatureID: 100, Price: d("2.5"), Quantity: 4})
	require.NoError(t, err)
	require.True(t, p.Sum.Equal(d("10")))

	_, err = s.AddProduct(ProductInput{Name: "Tape", NomenclatureID: 200, Price: d("1"), Quantity: 1})
	require.ErrorIs(t, err, ErrProductUnavailable)

	require.ErrorIs(t, s.SetProductPrice(p.ID, d("3")), ErrProductNotEditable)
	require.NoError(t, s.SetProductQuantity(p.ID, 2))
	require.True(t, s.Products()[0].Sum.Equal(d("5")))
}

func TestInputsAreKeptAtStoredPrecision(t *testing.T) {
	s := NewSession(SessionConfig{Tariffs: sampleTariffs(), BranchID: 2})
	line, err := s.AddLine(LineInput{ProductTypeID: 7, Weight: d("1.2345"), UnitPrice: dp("10.155")})
	require.NoError(t, err)
	require.True(t, line.Weight.Equal(d("1.235")))
	require.True(t, line.UnitPrice.Equal(d("10.16")))
	require.True(t, line.Sum.Equal(line.Weight.Mul(line.UnitPrice)))

	require.NoError(t, s.CommitWeight(line.ID, d("2.0004")))
	got := s.Lines()[0]
	require.True(t, got.Weight.Equal(d("2")))
	require.True(t, got.Sum.Equal(d("20.32")))

	discounted := NewSession(SessionConfig{
		Tariffs:  sampleTariffs(),
		BranchID: 2,
		Benefit:  ActiveBenefit{Kind: BenefitDiscount, DiscountAmount: d("0.333")},
	})
	line, err = discounted.AddLine(LineInput{ProductTypeID: 7, Weight: d("1")})
	require.NoError(t, err)
	require.True(t, line.UnitPrice.Equal(d("4.17")), "candidate prices are whole cents, got %s", line.UnitPrice)
}

func TestSetNomenclatureMarksPersistedLineUpdated(t *testing.T) {
	stored := LineItem{ID: uuid.New(), NomenclatureID: 1, ProductTypeID: 5, Weight: d("1"), UnitPrice: d("10")}
	s := LoadSession(SessionConfig{Tariffs: sampleTariffs(), BranchID: 1}, []LineItem{stored}, nil)

	require.NoError(t, s.SetNomenclature(stored.ID, 1))
	require.False(t, s.Lines()[0].Updated)

	require.NoError(t, s.SetNomenclature(stored.ID, 2))
	got := s.Lines()[0]
	require.Equal(t, int64(2), got.NomenclatureID)
	require.True(t, got.Updated)
	require.True(t, got.UnitPrice.Equal(d("10")))
	require.ErrorIs(t, s.SetNomenclature(uuid.New(), 3), ErrLineNotFound)
}

func TestCheckProductsAgainstNewDestination(t *testing.T) {
	box := Product{ID: uuid.New(), Name: "Box", NomenclatureID: 500, Price: d("3"), Quantity: 1}
	s := LoadSession(SessionConfig{BranchID: 1}, nil, []Product{box})
	require.NoError(t, s.CheckProducts())

	s.SetDestination(2)
	s.SetWhitelist(NewWhitelist([]int64{501}))
	require.ErrorIs(t, s.CheckProducts(), ErrProductUnavailable)

	require.NoError(t, s.RemoveProduct(box.ID))
	require.NoError(t, s.CheckProducts())
}
