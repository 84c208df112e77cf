package pricing

import "github.com/shopspring/decimal"

// Summary aggregates the monetary components of a resolved document.
type Summary struct {
	Lines   float64 `json:"lines"`
	AddOns  float64 `json:"add_ons"`
	Charges float64 `json:"charges"`
	Total   float64 `json:"total"`
}

// Compute totals the line amounts and per-document charges of res plus any
// add-on amount priced by the caller. Sums are carried in decimal and rounded
// once.
func Compute(res Result, addOns float64) Summary {
	lines := decimal.Zero
	for _, pl := range res.Lines {
		if !pl.Resolved {
			lines = lines.Add(decimal.NewFromFloat(pl.Rate).Mul(decimal.NewFromInt(int64(pl.multiplier()))))
			continue
		}
		lines = lines.Add(decimal.NewFromFloat(pl.Amount))
	}
	charges := decimal.Zero
	for _, c := range res.DocumentCharges {
		charges = charges.Add(decimal.NewFromFloat(c.Amount))
	}
	extra := decimal.NewFromFloat(addOns)
	total := lines.Add(charges).Add(extra)
	return Summary{
		Lines:   lines.Round(ratePlaces).InexactFloat64(),
		AddOns:  extra.Round(ratePlaces).InexactFloat64(),
		Charges: charges.Round(ratePlaces).InexactFloat64(),
		Total:   total.Round(ratePlaces).InexactFloat64(),
	}
}
