package pricing

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SellingMode determines how raw dimensions become a billable quantity.
type SellingMode string

const (
	// ModeArea bills by square meters (width × height in centimeters).
	ModeArea SellingMode = "AREA"
	// ModeLength bills by linear meters (length in centimeters).
	ModeLength SellingMode = "LENGTH"
	// ModeCount bills per piece.
	ModeCount SellingMode = "COUNT"
)

// SellingModes lists every supported mode in a stable order.
var SellingModes = []SellingMode{ModeArea, ModeLength, ModeCount}

// ParseSellingMode accepts canonical names as well as the legacy catalogue labels.
func ParseSellingMode(value string) (SellingMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "area", "metro quadrato", "m2", "m²", "sqm":
		return ModeArea, nil
	case "length", "metro lineare", "ml", "linear":
		return ModeLength, nil
	case "count", "pezzo", "pz", "piece":
		return ModeCount, nil
	}
	return "", fmt.Errorf("unknown selling mode %q", value)
}

// Valid reports whether m is one of the supported modes.
func (m SellingMode) Valid() bool {
	switch m {
	case ModeArea, ModeLength, ModeCount:
		return true
	}
	return false
}

// Unit returns the short unit label used in explanations.
func (m SellingMode) Unit() string {
	switch m {
	case ModeArea:
		return "m²"
	case ModeLength:
		return "ml"
	case ModeCount:
		return "pz"
	}
	return "units"
}

// UnmarshalJSON normalises legacy labels on decode.
func (m *SellingMode) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSellingMode(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// CalculationMode selects whether a minimum applies per line or once per document.
type CalculationMode string

const (
	CalcPerLine           CalculationMode = "PER_LINE"
	CalcGlobalPerDocument CalculationMode = "GLOBAL_PER_DOCUMENT"
)

// ParseCalculationMode accepts canonical names and legacy labels. Empty means per line.
func ParseCalculationMode(value string) (CalculationMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "per_line", "per riga":
		return CalcPerLine, nil
	case "global_per_document", "globale preventivo", "global":
		return CalcGlobalPerDocument, nil
	}
	return "", fmt.Errorf("unknown calculation mode %q", value)
}

// UnmarshalJSON normalises legacy labels on decode.
func (c *CalculationMode) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseCalculationMode(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// FixedCostMode controls where a rule's fixed surcharge is charged.
type FixedCostMode string

const (
	FixedPerLine      FixedCostMode = "PER_LINE"
	FixedPerItemTotal FixedCostMode = "PER_ITEM_TOTAL"
	FixedPerDocument  FixedCostMode = "PER_DOCUMENT"
)

// ParseFixedCostMode accepts canonical names and legacy labels. Empty yields "".
func ParseFixedCostMode(value string) (FixedCostMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return "", nil
	case "per_line", "per riga":
		return FixedPerLine, nil
	case "per_item_total", "per item totale":
		return FixedPerItemTotal, nil
	case "per_document", "per preventivo":
		return FixedPerDocument, nil
	}
	return "", fmt.Errorf("unknown fixed cost mode %q", value)
}

// UnmarshalJSON normalises legacy labels on decode.
func (f *FixedCostMode) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseFixedCostMode(raw)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
