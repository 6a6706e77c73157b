// Package planner turns planned purchases into cost, key and ROI totals.
// Arithmetic is done in decimal and never rounded; Money rounds for display.
package planner

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"caseplanner/internal"
	"caseplanner/internal/util"
)

type Line struct {
	Record   internal.CaseRecord
	Quantity int
}

type Params struct {
	// TaxRate is a fraction: 0.1 means 10%.
	TaxRate        float64
	Budget         float64
	KeysOwned      int
	DefaultKeyCost float64
}

type LineResult struct {
	Name          string
	NormalizedKey string
	Quantity      int
	Price         decimal.Decimal
	ROI           *float64
	UnitKeyCost   decimal.Decimal
	CaseCost      decimal.Decimal
	KeyCost       decimal.Decimal
	Total         decimal.Decimal
	ROIValue      decimal.Decimal
}

// Unavailable is a planned line whose case has no known price.
type Unavailable struct {
	Name          string
	NormalizedKey string
	Quantity      int
}

type Summary struct {
	Lines       []LineResult
	Unavailable []Unavailable

	TotalCaseCost decimal.Decimal
	TotalKeyCost  decimal.Decimal
	TotalWithKeys decimal.Decimal
	TotalROIValue decimal.Decimal

	TaxRate    decimal.Decimal
	Budget     decimal.Decimal
	Leftover   decimal.Decimal
	OverBudget bool

	TotalCases    int
	KeysOwned     int
	KeysRemaining int
}

func Calculate(lines []Line, p Params) (Summary, error) {
	if p.TaxRate < 0 {
		return Summary{}, fmt.Errorf("tax rate must not be negative: %v", p.TaxRate)
	}
	if p.DefaultKeyCost < 0 {
		return Summary{}, fmt.Errorf("default key cost must not be negative: %v", p.DefaultKeyCost)
	}

	taxFactor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(p.TaxRate))
	defaultKey := decimal.NewFromFloat(p.DefaultKeyCost)

	sum := Summary{
		Lines:         make([]LineResult, 0, len(lines)),
		TaxRate:       decimal.NewFromFloat(p.TaxRate),
		Budget:        decimal.NewFromFloat(p.Budget),
		TotalCaseCost: decimal.Zero,
		TotalKeyCost:  decimal.Zero,
		TotalWithKeys: decimal.Zero,
		TotalROIValue: decimal.Zero,
		KeysOwned:     p.KeysOwned,
	}

	for _, line := range lines {
		if line.Quantity < 0 {
			return Summary{}, fmt.Errorf("negative quantity %d for %q", line.Quantity, line.Record.Name)
		}
		rec := line.Record
		if rec.Price == nil {
			sum.Unavailable = append(sum.Unavailable, Unavailable{
				Name:          rec.Name,
				NormalizedKey: rec.NormalizedKey,
				Quantity:      line.Quantity,
			})
			continue
		}

		qty := decimal.NewFromInt(int64(line.Quantity))
		price := decimal.NewFromFloat(*rec.Price)
		unitKey := defaultKey
		if rec.KeyCost != nil {
			unitKey = decimal.NewFromFloat(*rec.KeyCost)
		}

		res := LineResult{
			Name:          rec.Name,
			NormalizedKey: rec.NormalizedKey,
			Quantity:      line.Quantity,
			Price:         price,
			ROI:           rec.ROI,
			UnitKeyCost:   unitKey,
			CaseCost:      price.Mul(qty),
			KeyCost:       unitKey.Mul(taxFactor).Mul(qty),
			ROIValue:      decimal.Zero,
		}
		res.Total = res.CaseCost.Add(res.KeyCost)
		if rec.ROI != nil {
			res.ROIValue = price.Mul(decimal.NewFromFloat(*rec.ROI)).Mul(qty)
		}

		sum.Lines = append(sum.Lines, res)
		sum.TotalCaseCost = sum.TotalCaseCost.Add(res.CaseCost)
		sum.TotalKeyCost = sum.TotalKeyCost.Add(res.KeyCost)
		sum.TotalWithKeys = sum.TotalWithKeys.Add(res.Total)
		sum.TotalROIValue = sum.TotalROIValue.Add(res.ROIValue)
		sum.TotalCases += line.Quantity
	}

	sum.Leftover = sum.Budget.Sub(sum.TotalWithKeys)
	sum.OverBudget = sum.Leftover.IsNegative()
	sum.KeysRemaining = sum.KeysOwned - sum.TotalCases
	return sum, nil
}

// ResolveLines pairs stored planner lines with snapshot records. Lines whose
// case is missing or incomplete keep their name and come back without a price.
func ResolveLines(lookup func(key string) (internal.CaseRecord, bool), stored []internal.PlannerLine) []Line {
	out := make([]Line, 0, len(stored))
	for _, pl := range stored {
		key := pl.NormalizedKey
		if key == "" {
			key = util.NormalizeCaseName(pl.Name)
		}
		rec, ok := lookup(key)
		if !ok || !rec.Complete() {
			name := pl.Name
			if ok && rec.Name != "" {
				name = rec.Name
			}
			rec = internal.CaseRecord{Name: name, NormalizedKey: key}
		}
		out = append(out, Line{Record: rec, Quantity: pl.Quantity})
	}
	return out
}

// Money formats an amount with two decimals.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func MoneyPtr(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return Money(decimal.NewFromFloat(*v))
}

func Percent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return decimal.NewFromFloat(*v).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// FormatSummary renders a plain text report for the CLI.
func FormatSummary(s Summary) string {
	var b strings.Builder
	for _, l := range s.Lines {
		fmt.Fprintf(&b, "%-40s x%-4d cases %10s  keys %10s  total %10s  roi %10s\n",
			l.Name, l.Quantity, Money(l.CaseCost), Money(l.KeyCost), Money(l.Total), Money(l.ROIValue))
	}
	for _, u := range s.Unavailable {
		fmt.Fprintf(&b, "%-40s x%-4d price unavailable\n", u.Name, u.Quantity)
	}
	fmt.Fprintf(&b, "cases total:     %s\n", Money(s.TotalCaseCost))
	fmt.Fprintf(&b, "keys total:      %s (tax %s%%)\n", Money(s.TotalKeyCost), s.TaxRate.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(&b, "total with keys: %s\n", Money(s.TotalWithKeys))
	fmt.Fprintf(&b, "expected return: %s\n", Money(s.TotalROIValue))
	status := "within budget"
	if s.OverBudget {
		status = "over budget"
	}
	fmt.Fprintf(&b, "budget:          %s  leftover %s (%s)\n", Money(s.Budget), Money(s.Leftover), status)
	fmt.Fprintf(&b, "keys owned:      %d  cases planned %d  keys remaining %d\n", s.KeysOwned, s.TotalCases, s.KeysRemaining)
	return b.String()
}
