package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Goods"

var header = []any{
	"Number", "Created", "Branch", "Sender", "Recipient", "Weight, kg", "Lines", "Products",
	"Benefit", "Discount", "Cashback, %", "Subtotal", "Markup, %", "Total",
}

// RenderXLSX writes rows to a single-sheet workbook.
func RenderXLSX(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []any{
			r.Number,
			r.CreatedAt.UTC().Format("2006-01-02 15:04"),
			r.Branch,
			r.Sender,
			r.Recipient,
			r.Weight.InexactFloat64(),
			r.LineCount,
			r.ProductCount,
			r.BenefitKind,
			r.DiscountAmount.InexactFloat64(),
			r.CashbackPercent.InexactFloat64(),
			r.Subtotal.InexactFloat64(),
			r.MarkupPercent.InexactFloat64(),
			r.Total.InexactFloat64(),
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
