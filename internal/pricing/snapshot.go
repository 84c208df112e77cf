package pricing

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ItemConfig is everything the resolver needs to know about one item.
type ItemConfig struct {
	ItemID   string        `json:"item_id"`
	Tiers    []PriceTier   `json:"tiers"`
	Minimums []MinimumRule `json:"minimums"`
}

// Snapshot is an immutable view of item configurations used for one resolution pass.
type Snapshot struct {
	items map[string]itemEntry
}

type itemEntry struct {
	cfg   ItemConfig
	table TierTable
}

// NewSnapshot builds a snapshot keyed by item id. Rules are attached to the
// item they belong to, so a rule's ItemID is filled in when blank.
func NewSnapshot(configs ...ItemConfig) Snapshot {
	items := make(map[string]itemEntry, len(configs))
	for _, cfg := range configs {
		rules := make([]MinimumRule, len(cfg.Minimums))
		for i, r := range cfg.Minimums {
			if r.ItemID == "" {
				r.ItemID = cfg.ItemID
			}
			rules[i] = r
		}
		cfg.Minimums = rules
		items[cfg.ItemID] = itemEntry{cfg: cfg, table: NewTierTable(cfg.Tiers)}
	}
	return Snapshot{items: items}
}

// Item returns the configuration of itemID.
func (s Snapshot) Item(itemID string) (ItemConfig, bool) {
	e, ok := s.items[itemID]
	return e.cfg, ok
}

// Validate runs configuration-time checks for every item. Any error here must
// stop resolution before it starts.
func (s Snapshot) Validate() ([]ConfigWarning, error) {
	var (
		warnings []ConfigWarning
		errs     error
	)
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := s.items[id]
		w, err := ValidateTiers(e.cfg.Tiers)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("item %s: %w", id, err))
		}
		warnings = append(warnings, w...)
		if err := ValidateRules(e.cfg.Minimums); err != nil {
			errs = errors.Join(errs, fmt.Errorf("item %s: %w", id, err))
		}
	}
	return warnings, errs
}

func (s Snapshot) table(itemID string) TierTable {
	return s.items[itemID].table
}

func (s Snapshot) rule(itemID, group string, mode SellingMode, day time.Time) (MinimumRule, bool) {
	e, ok := s.items[itemID]
	if !ok {
		return MinimumRule{}, false
	}
	return SelectRule(e.cfg.Minimums, itemID, group, mode, day)
}
