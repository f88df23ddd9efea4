package pricing

import "github.com/shopspring/decimal"

// Mode selects how a submission is annotated.
type Mode int

const (
	// ModeCreate assembles a brand new record.
	ModeCreate Mode = iota
	// ModeEdit assembles a diff against a stored record.
	ModeEdit
)

var hundred = decimal.NewFromInt(100)

// SubmittedLine is a line annotated for persistence.
type SubmittedLine struct {
	LineItem
	IsCreated bool `json:"is_created,omitempty"`
	IsUpdated bool `json:"is_updated,omitempty"`
	IsDeleted bool `json:"is_deleted,omitempty"`
}

// SubmittedProduct is a merchandise line annotated for persistence.
type SubmittedProduct struct {
	Product
	IsCreated bool `json:"is_created,omitempty"`
	IsUpdated bool `json:"is_updated,omitempty"`
	IsDeleted bool `json:"is_deleted,omitempty"`
}

// Submission aggregates the annotated lines and computed totals.
type Submission struct {
	Lines         []SubmittedLine    `json:"lines"`
	Products      []SubmittedProduct `json:"products"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	MarkupPercent decimal.Decimal    `json:"markup_percent"`
	Markup        decimal.Decimal    `json:"markup"`
	Total         decimal.Decimal    `json:"total"`
}

// AssembleInput carries everything needed to build a submission.
type AssembleInput struct {
	Mode          Mode
	Lines         []LineItem
	Products      []Product
	MarkupPercent decimal.Decimal
}

// Assemble filters and annotates lines and computes the record total: the
// subtotal of all surviving lines and products in cents, plus a uniform markup
// percentage of it, also in cents.
func Assemble(in AssembleInput) Submission {
	sub := Submission{
		Lines:         make([]SubmittedLine, 0, len(in.Lines)),
		Products:      make([]SubmittedProduct, 0, len(in.Products)),
		Subtotal:      decimal.Zero,
		MarkupPercent: in.MarkupPercent,
	}
	for _, l := range in.Lines {
		if l.Origin == OriginNew && l.Deleted {
			continue
		}
		l.recomputeSum()
		out := SubmittedLine{LineItem: l}
		if in.Mode == ModeEdit {
			switch {
			case l.Origin == OriginNew:
				out.IsCreated = true
			case l.Deleted:
				out.IsDeleted = true
			case l.Updated:
				out.IsUpdated = true
			}
		} else if l.Deleted {
			continue
		}
		sub.Lines = append(sub.Lines, out)
		if !out.IsDeleted {
			sub.Subtotal = sub.Subtotal.Add(l.Sum)
		}
	}
	for _, p := range in.Products {
		if p.Origin == OriginNew && (p.Deleted || p.Quantity == 0) {
			continue
		}
		p.recomputeSum()
		out := SubmittedProduct{Product: p}
		if in.Mode == ModeEdit {
			switch {
			case p.Origin == OriginNew:
				out.IsCreated = true
			case p.Deleted || p.Quantity == 0:
				out.IsDeleted = true
			case p.Updated:
				out.IsUpdated = true
			}
		} else if p.Deleted || p.Quantity == 0 {
			continue
		}
		sub.Products = append(sub.Products, out)
		if !out.IsDeleted {
			sub.Subtotal = sub.Subtotal.Add(p.Sum)
		}
	}
	sub.Subtotal = roundPrice(sub.Subtotal)
	sub.Markup = roundPrice(sub.Subtotal.Mul(in.MarkupPercent).Div(hundred))
	sub.Total = sub.Subtotal.Add(sub.Markup)
	return sub
}
