package addon

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-metrature/internal/pricing"
)

var (
	// ErrInvalidAddOn is returned when an add-on definition is inconsistent.
	ErrInvalidAddOn = errors.New("invalid add-on")
	// ErrUnknownAddOn is returned when a line selects an add-on that does not exist or is disabled.
	ErrUnknownAddOn = errors.New("unknown add-on")
	// ErrNotApplicable is returned when a line selects an add-on that does not apply to its item.
	ErrNotApplicable = errors.New("add-on not applicable to item")
)

// PricingType controls how an add-on amount is derived.
type PricingType string

const (
	PricingFixed     PricingType = "FIXED"
	PricingPercent   PricingType = "PERCENT"
	PricingPerArea   PricingType = "PER_AREA"
	PricingPerLength PricingType = "PER_LENGTH"
)

// ParsePricingType accepts canonical names and the legacy catalogue labels.
func ParsePricingType(value string) (PricingType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "fixed", "fisso":
		return PricingFixed, nil
	case "percent", "percentuale":
		return PricingPercent, nil
	case "per_area", "per metro quadrato":
		return PricingPerArea, nil
	case "per_length", "per metro lineare":
		return PricingPerLength, nil
	}
	return "", fmt.Errorf("unknown add-on pricing type %q", value)
}

// UnmarshalJSON normalises legacy labels on decode.
func (p *PricingType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParsePricingType(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Target is one applicability row. AllItems excludes every other row.
type Target struct {
	AllItems  bool   `json:"all_items,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
	ItemGroup string `json:"item_group,omitempty"`
}

// AddOn is an optional extra sold with a line (lamination, eyelets, mounting).
type AddOn struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	PricingType PricingType `json:"pricing_type"`
	Price       float64     `json:"price"`
	Enabled     bool        `json:"enabled"`
	Targets     []Target    `json:"targets,omitempty"`
}

// Validate checks price bounds and applicability rows.
func (a AddOn) Validate() error {
	if a.Price <= 0 {
		return fmt.Errorf("%w: %s price must be greater than 0", ErrInvalidAddOn, a.ID)
	}
	if a.PricingType == PricingPercent && a.Price > 100 {
		return fmt.Errorf("%w: %s percent cannot exceed 100", ErrInvalidAddOn, a.ID)
	}
	all := 0
	for _, t := range a.Targets {
		if t.AllItems {
			all++
		}
	}
	if all > 1 {
		return fmt.Errorf("%w: %s has more than one all-items row", ErrInvalidAddOn, a.ID)
	}
	if all == 1 && len(a.Targets) > 1 {
		return fmt.Errorf("%w: %s mixes all-items with specific rows", ErrInvalidAddOn, a.ID)
	}
	return nil
}

// AppliesTo reports whether the add-on can be sold with itemID. No targets means every item.
func (a AddOn) AppliesTo(itemID, itemGroup string) bool {
	if !a.Enabled {
		return false
	}
	if len(a.Targets) == 0 {
		return true
	}
	for _, t := range a.Targets {
		if t.AllItems || (t.ItemID != "" && t.ItemID == itemID) || (t.ItemGroup != "" && t.ItemGroup == itemGroup) {
			return true
		}
	}
	return false
}

// Label renders the price the way catalogue listings show it.
func (a AddOn) Label() string {
	price := decimal.NewFromFloat(a.Price).StringFixed(2)
	switch a.PricingType {
	case PricingPercent:
		return fmt.Sprintf("%s (%s%%)", a.Name, decimal.NewFromFloat(a.Price).String())
	case PricingPerArea:
		return fmt.Sprintf("%s (%s/m²)", a.Name, price)
	case PricingPerLength:
		return fmt.Sprintf("%s (%s/ml)", a.Name, price)
	}
	return fmt.Sprintf("%s (%s)", a.Name, price)
}

// Amount prices the add-on for a resolved line. qty is the add-on quantity
// chosen on the line; per-area and per-length add-ons use the line's measured
// quantity when the line is sold in that unit and fall back to qty otherwise.
func (a AddOn) Amount(line pricing.PricedLine, qty float64) float64 {
	if qty <= 0 {
		qty = 1
	}
	price := decimal.NewFromFloat(a.Price)
	var amount decimal.Decimal
	switch a.PricingType {
	case PricingFixed:
		amount = price.Mul(decimal.NewFromFloat(qty))
	case PricingPercent:
		amount = decimal.NewFromFloat(lineAmount(line)).Mul(price).Div(decimal.NewFromInt(100))
	case PricingPerArea:
		amount = price.Mul(decimal.NewFromFloat(measured(line, pricing.ModeArea, qty)))
	case PricingPerLength:
		amount = price.Mul(decimal.NewFromFloat(measured(line, pricing.ModeLength, qty)))
	}
	return amount.Round(2).InexactFloat64()
}

func measured(line pricing.PricedLine, mode pricing.SellingMode, fallback float64) float64 {
	if line.Resolved && line.SellingMode == mode && line.TotalQty > 0 {
		return line.TotalQty
	}
	return fallback
}

func lineAmount(line pricing.PricedLine) float64 {
	if line.Resolved {
		return line.Amount
	}
	return line.Rate * float64(max(line.MultiplierQty, 1))
}
