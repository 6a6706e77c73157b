package pipeline

import (
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"caseplanner/internal"
	"caseplanner/internal/planner"
)

const (
	casesSheet   = "Cases"
	plannerSheet = "Planner"
)

// ExportXLSX writes the given records to a Cases sheet and, when summary is
// not nil, the planner breakdown to a Planner sheet. Amounts are rounded to
// cents here and nowhere else.
func ExportXLSX(records []internal.CaseRecord, summary *planner.Summary, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), casesSheet); err != nil {
		return err
	}
	writeRow(f, casesSheet, 1, []any{"name", "normalized_key", "price", "roi", "key_cost", "image_url", "price_seen_at"})
	for i, rec := range records {
		seen := any("")
		if rec.PriceSeenAt != nil {
			seen = rec.PriceSeenAt.UTC().Format("2006-01-02 15:04:05")
		}
		writeRow(f, casesSheet, i+2, []any{
			rec.Name,
			rec.NormalizedKey,
			roundFloat(rec.Price),
			derefFloat(rec.ROI),
			roundFloat(rec.KeyCost),
			rec.ImageURL(),
			seen,
		})
	}

	if summary != nil {
		if _, err := f.NewSheet(plannerSheet); err != nil {
			return err
		}
		writePlanner(f, *summary)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writePlanner(f *excelize.File, s planner.Summary) {
	writeRow(f, plannerSheet, 1, []any{"name", "quantity", "price", "case_cost", "key_cost", "total", "roi_value"})
	r := 2
	for _, l := range s.Lines {
		writeRow(f, plannerSheet, r, []any{l.Name, l.Quantity, money(l.Price), money(l.CaseCost), money(l.KeyCost), money(l.Total), money(l.ROIValue)})
		r++
	}
	for _, u := range s.Unavailable {
		writeRow(f, plannerSheet, r, []any{u.Name, u.Quantity, "unavailable"})
		r++
	}

	r++
	totals := [][]any{
		{"cases_total", money(s.TotalCaseCost)},
		{"keys_total", money(s.TotalKeyCost)},
		{"total_with_keys", money(s.TotalWithKeys)},
		{"expected_return", money(s.TotalROIValue)},
		{"tax_rate", s.TaxRate.InexactFloat64()},
		{"budget", money(s.Budget)},
		{"leftover", money(s.Leftover)},
		{"keys_owned", s.KeysOwned},
		{"keys_remaining", s.KeysRemaining},
	}
	for _, row := range totals {
		writeRow(f, plannerSheet, r, row)
		r++
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func roundFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return money(decimal.NewFromFloat(*v))
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
