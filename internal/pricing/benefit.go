package pricing

import "github.com/shopspring/decimal"

// BenefitKind distinguishes discounts from cashback.
type BenefitKind string

const (
	BenefitNone     BenefitKind = ""
	BenefitDiscount BenefitKind = "discount"
	BenefitCashback BenefitKind = "cashback"
)

// Party identifies which counterparty of a shipment a benefit targets.
type Party string

const (
	PartyNone      Party = ""
	PartySender    Party = "sender"
	PartyRecipient Party = "recipient"
)

// Candidate is a benefit record attached to a counterparty. For discounts Value
// is the amount subtracted from the tariff per kilogram; for cashback it is the
// credit percentage.
type Candidate struct {
	ID             int64           `json:"id"`
	Kind           BenefitKind     `json:"kind"`
	CounterpartyID int64           `json:"counterparty_id"`
	Value          decimal.Decimal `json:"value"`
}

// ActiveBenefit is the outcome of benefit selection for a sender/recipient pair.
type ActiveBenefit struct {
	Kind            BenefitKind     `json:"kind"`
	ID              int64           `json:"id,omitempty"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	CashbackPercent decimal.Decimal `json:"cashback_percent"`
	Target          Party           `json:"target,omitempty"`
	CounterpartyID  int64           `json:"counterparty_id,omitempty"`
}

// NoBenefit is the zero selection.
func NoBenefit() ActiveBenefit {
	return ActiveBenefit{Kind: BenefitNone, DiscountAmount: decimal.Zero, CashbackPercent: decimal.Zero}
}

// SelectBenefit picks the single active benefit for a shipment. Cashback for
// either party beats any discount and forces the discount amount to zero. The
// sender is checked before the recipient in both passes.
func SelectBenefit(senderID, recipientID int64, candidates []Candidate) ActiveBenefit {
	if c, party, ok := findCandidate(BenefitCashback, senderID, recipientID, candidates); ok {
		return ActiveBenefit{
			Kind:            BenefitCashback,
			ID:              c.ID,
			DiscountAmount:  decimal.Zero,
			CashbackPercent: c.Value,
			Target:          party,
			CounterpartyID:  c.CounterpartyID,
		}
	}
	if c, _, ok := findCandidate(BenefitDiscount, senderID, recipientID, candidates); ok {
		return ActiveBenefit{
			Kind:            BenefitDiscount,
			ID:              c.ID,
			DiscountAmount:  c.Value,
			CashbackPercent: decimal.Zero,
			CounterpartyID:  c.CounterpartyID,
		}
	}
	return NoBenefit()
}

func findCandidate(kind BenefitKind, senderID, recipientID int64, candidates []Candidate) (Candidate, Party, bool) {
	parties := []struct {
		id    int64
		party Party
	}{
		{senderID, PartySender},
		{recipientID, PartyRecipient},
	}
	for _, p := range parties {
		if p.id == 0 {
			continue
		}
		for _, c := range candidates {
			if c.Kind == kind && c.CounterpartyID == p.id {
				return c, p.party, true
			}
		}
	}
	return Candidate{}, PartyNone, false
}
