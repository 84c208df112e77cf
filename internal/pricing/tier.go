package pricing

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrTierNotFound indicates no tier, including a default, covers the quantity.
	ErrTierNotFound = errors.New("tier not found")
	// ErrTierOverlap indicates two bounded tiers of the same mode truly overlap.
	ErrTierOverlap = errors.New("tier overlap")
	// ErrInvalidTier indicates a single tier has inconsistent bounds or price.
	ErrInvalidTier = errors.New("invalid tier")
)

// PriceTier is one priced band for an item and selling mode. A nil To means unbounded.
type PriceTier struct {
	SellingMode  SellingMode `json:"selling_mode" validate:"required"`
	FromQty      float64     `json:"from_qty" validate:"gte=0"`
	ToQty        *float64    `json:"to_qty,omitempty" validate:"omitempty,gt=0"`
	PricePerUnit float64     `json:"price_per_unit" validate:"gt=0"`
	Name         string      `json:"name,omitempty"`
	IsDefault    bool        `json:"is_default,omitempty"`
}

// Contains reports whether qty falls inside the tier bounds (inclusive).
func (t PriceTier) Contains(qty float64) bool {
	if qty < t.FromQty {
		return false
	}
	return t.ToQty == nil || qty <= *t.ToQty
}

func (t PriceTier) label() string {
	if t.Name != "" {
		return t.Name
	}
	if t.ToQty == nil {
		return fmt.Sprintf("%g+ %s", t.FromQty, t.SellingMode.Unit())
	}
	return fmt.Sprintf("%g-%g %s", t.FromQty, *t.ToQty, t.SellingMode.Unit())
}

// TierMatch is the outcome of a price lookup.
type TierMatch struct {
	PricePerUnit float64
	TierName     string
	UsedDefault  bool
}

// TierTable holds the tiers of one item across selling modes.
type TierTable struct {
	byMode map[SellingMode][]PriceTier
}

// NewTierTable indexes tiers by selling mode, sorted by FromQty descending.
func NewTierTable(tiers []PriceTier) TierTable {
	byMode := make(map[SellingMode][]PriceTier)
	for _, t := range tiers {
		byMode[t.SellingMode] = append(byMode[t.SellingMode], t)
	}
	for mode := range byMode {
		list := byMode[mode]
		sort.SliceStable(list, func(i, j int) bool { return list[i].FromQty > list[j].FromQty })
	}
	return TierTable{byMode: byMode}
}

// Tiers returns the tiers configured for mode, highest FromQty first.
func (t TierTable) Tiers(mode SellingMode) []PriceTier {
	return t.byMode[mode]
}

// ResolvePrice picks the matching tier with the highest FromQty, falling back to
// the default tier of the mode.
func (t TierTable) ResolvePrice(mode SellingMode, qty float64) (TierMatch, error) {
	tiers := t.byMode[mode]
	for _, tier := range tiers {
		if tier.Contains(qty) {
			return TierMatch{PricePerUnit: tier.PricePerUnit, TierName: tier.label()}, nil
		}
	}
	for _, tier := range tiers {
		if tier.IsDefault {
			return TierMatch{PricePerUnit: tier.PricePerUnit, TierName: tier.label(), UsedDefault: true}, nil
		}
	}
	return TierMatch{}, fmt.Errorf("%w: %s %.3f", ErrTierNotFound, mode, qty)
}

// TierOverlapError describes the first overlapping pair found for a mode.
type TierOverlapError struct {
	Mode  SellingMode
	First PriceTier
	Other PriceTier
}

func (e *TierOverlapError) Error() string {
	return fmt.Sprintf("tier overlap for %s: %g-%g overlaps %g-%g",
		e.Mode, e.First.FromQty, *e.First.ToQty, e.Other.FromQty, *e.Other.ToQty)
}

// Unwrap allows errors.Is(err, ErrTierOverlap).
func (e *TierOverlapError) Unwrap() error { return ErrTierOverlap }

// ConfigWarning is a non-fatal configuration finding.
type ConfigWarning struct {
	Kind    string      `json:"kind"`
	Mode    SellingMode `json:"selling_mode,omitempty"`
	Message string      `json:"message"`
}

const (
	WarnTierGap          = "tier_gap"
	WarnNoOpenTier       = "no_open_tier"
	WarnMultipleDefaults = "multiple_defaults"
)

// ValidateTiers checks the tiers of one item. Overlaps and malformed tiers are
// hard errors; gaps and missing open-ended tiers are warnings.
func ValidateTiers(tiers []PriceTier) ([]ConfigWarning, error) {
	byMode := make(map[SellingMode][]PriceTier)
	for i, t := range tiers {
		if !t.SellingMode.Valid() {
			return nil, fmt.Errorf("%w: tier %d has unknown selling mode %q", ErrInvalidTier, i, t.SellingMode)
		}
		if t.FromQty < 0 {
			return nil, fmt.Errorf("%w: tier %d from_qty cannot be negative", ErrInvalidTier, i)
		}
		if t.ToQty != nil && *t.ToQty <= t.FromQty {
			return nil, fmt.Errorf("%w: tier %d to_qty (%g) must be greater than from_qty (%g)", ErrInvalidTier, i, *t.ToQty, t.FromQty)
		}
		if t.PricePerUnit <= 0 {
			return nil, fmt.Errorf("%w: tier %d price_per_unit must be greater than 0", ErrInvalidTier, i)
		}
		byMode[t.SellingMode] = append(byMode[t.SellingMode], t)
	}

	var warnings []ConfigWarning
	for _, mode := range SellingModes {
		list := byMode[mode]
		if len(list) == 0 {
			continue
		}
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list); j++ {
				a, b := list[i], list[j]
				if a.ToQty == nil || b.ToQty == nil {
					continue
				}
				if a.FromQty < *b.ToQty && b.FromQty < *a.ToQty {
					return nil, &TierOverlapError{Mode: mode, First: a, Other: b}
				}
			}
		}

		sorted := append([]PriceTier(nil), list...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FromQty < sorted[j].FromQty })
		open, defaults := false, 0
		for i, t := range sorted {
			if t.ToQty == nil {
				open = true
			}
			if t.IsDefault {
				defaults++
			}
			if i+1 < len(sorted) && t.ToQty != nil && sorted[i+1].FromQty > *t.ToQty {
				warnings = append(warnings, ConfigWarning{
					Kind:    WarnTierGap,
					Mode:    mode,
					Message: fmt.Sprintf("gap between %g and %g; quantities in it use the default tier", *t.ToQty, sorted[i+1].FromQty),
				})
			}
		}
		if !open && defaults == 0 {
			warnings = append(warnings, ConfigWarning{
				Kind:    WarnNoOpenTier,
				Mode:    mode,
				Message: "no unbounded or default tier; quantities above the highest bound resolve to no price",
			})
		}
		if defaults > 1 {
			warnings = append(warnings, ConfigWarning{
				Kind:    WarnMultipleDefaults,
				Mode:    mode,
				Message: fmt.Sprintf("%d tiers marked default; the one with the highest from_qty wins", defaults),
			})
		}
	}
	return warnings, nil
}
