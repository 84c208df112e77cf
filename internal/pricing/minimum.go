package pricing

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateMinimumRule indicates more than one enabled rule for the same triple.
	ErrDuplicateMinimumRule = errors.New("duplicate minimum rule")
	// ErrInvalidRule indicates a rule with negative or inconsistent values.
	ErrInvalidRule = errors.New("invalid minimum rule")
)

// MinimumRule is a minimum billable quantity policy for (item, customer group, selling mode).
type MinimumRule struct {
	ItemID          string          `json:"item_id"`
	CustomerGroup   string          `json:"customer_group" validate:"required"`
	SellingMode     SellingMode     `json:"selling_mode" validate:"required"`
	MinQty          float64         `json:"min_qty" validate:"gte=0"`
	CalculationMode CalculationMode `json:"calculation_mode"`
	FixedCost       float64         `json:"fixed_cost,omitempty" validate:"gte=0"`
	FixedCostMode   FixedCostMode   `json:"fixed_cost_mode,omitempty"`
	Enabled         bool            `json:"enabled"`
	Priority        int             `json:"priority"`
	Description     string          `json:"description,omitempty"`
	// ValidFrom and ValidTill bound the days the rule applies, both inclusive.
	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTill *time.Time `json:"valid_till,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (r MinimumRule) matches(item, group string, mode SellingMode) bool {
	return r.Enabled && r.ItemID == item && r.CustomerGroup == group && r.SellingMode == mode
}

// ActiveOn reports whether day falls inside the rule's validity window. Only
// the calendar day counts; a zero day ignores the window.
func (r MinimumRule) ActiveOn(day time.Time) bool {
	if day.IsZero() {
		return true
	}
	d := calendarDay(day)
	if r.ValidFrom != nil && d.Before(calendarDay(*r.ValidFrom)) {
		return false
	}
	if r.ValidTill != nil && d.After(calendarDay(*r.ValidTill)) {
		return false
	}
	return true
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (r MinimumRule) calcMode() CalculationMode {
	if r.CalculationMode == "" {
		return CalcPerLine
	}
	return r.CalculationMode
}

func (r MinimumRule) fixedApplies(mode FixedCostMode) bool {
	return r.FixedCost > 0 && r.FixedCostMode == mode
}

// SelectRule returns the single applicable enabled rule for the triple on day
// (zero day: any). Rules outside their validity window are skipped first; when
// stored data violates uniqueness, the highest priority wins, then the most
// recently created.
func SelectRule(rules []MinimumRule, item, group string, mode SellingMode, day time.Time) (MinimumRule, bool) {
	var (
		best  MinimumRule
		found bool
	)
	for _, r := range rules {
		if !r.matches(item, group, mode) || !r.ActiveOn(day) {
			continue
		}
		if !found || r.Priority > best.Priority || (r.Priority == best.Priority && r.CreatedAt.After(best.CreatedAt)) {
			best = r
			found = true
		}
	}
	return best, found
}

// DuplicateMinimumRuleError names the triple that has several enabled rules.
type DuplicateMinimumRuleError struct {
	ItemID        string
	CustomerGroup string
	SellingMode   SellingMode
}

func (e *DuplicateMinimumRuleError) Error() string {
	return fmt.Sprintf("duplicate minimum rule for item %s, group %s, mode %s: only one enabled rule is allowed",
		e.ItemID, e.CustomerGroup, e.SellingMode)
}

// Unwrap allows errors.Is(err, ErrDuplicateMinimumRule).
func (e *DuplicateMinimumRuleError) Unwrap() error { return ErrDuplicateMinimumRule }

type ruleKey struct {
	item  string
	group string
	mode  SellingMode
}

// ValidateRules checks value ranges and that at most one enabled rule per
// triple is in force on any day.
func ValidateRules(rules []MinimumRule) error {
	seen := make(map[ruleKey][]MinimumRule, len(rules))
	for i, r := range rules {
		if !r.SellingMode.Valid() {
			return fmt.Errorf("%w: rule %d has unknown selling mode %q", ErrInvalidRule, i, r.SellingMode)
		}
		if r.CustomerGroup == "" {
			return fmt.Errorf("%w: rule %d has no customer group", ErrInvalidRule, i)
		}
		if r.MinQty < 0 {
			return fmt.Errorf("%w: rule %d min_qty cannot be negative", ErrInvalidRule, i)
		}
		if r.FixedCost < 0 {
			return fmt.Errorf("%w: rule %d fixed_cost cannot be negative", ErrInvalidRule, i)
		}
		if r.FixedCost > 0 && r.FixedCostMode == "" {
			return fmt.Errorf("%w: rule %d fixed_cost_mode is required when fixed_cost is set", ErrInvalidRule, i)
		}
		if r.ValidFrom != nil && r.ValidTill != nil && !calendarDay(*r.ValidFrom).Before(calendarDay(*r.ValidTill)) {
			return fmt.Errorf("%w: rule %d valid_till must be after valid_from", ErrInvalidRule, i)
		}
		if !r.Enabled {
			continue
		}
		key := ruleKey{item: r.ItemID, group: r.CustomerGroup, mode: r.SellingMode}
		for _, other := range seen[key] {
			if windowsOverlap(r, other) {
				return &DuplicateMinimumRuleError{ItemID: r.ItemID, CustomerGroup: r.CustomerGroup, SellingMode: r.SellingMode}
			}
		}
		seen[key] = append(seen[key], r)
	}
	return nil
}

// windowsOverlap reports whether two rules can be in force on the same day.
// A missing bound is open.
func windowsOverlap(a, b MinimumRule) bool {
	if a.ValidTill != nil && b.ValidFrom != nil && calendarDay(*a.ValidTill).Before(calendarDay(*b.ValidFrom)) {
		return false
	}
	if b.ValidTill != nil && a.ValidFrom != nil && calendarDay(*b.ValidTill).Before(calendarDay(*a.ValidFrom)) {
		return false
	}
	return true
}
