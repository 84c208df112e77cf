package itemconfig

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-metrature/internal/common"
	"github.com/noah-isme/backend-metrature/internal/lock"
	"github.com/noah-isme/backend-metrature/internal/obs"
	"github.com/noah-isme/backend-metrature/internal/pricing"
	"github.com/noah-isme/backend-metrature/internal/resilience"
)

// Locker guards concurrent configuration saves of one item.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Provider is the read-through source of item configurations and the single
// write path that keeps the cache coherent.
type Provider struct {
	store  Store
	cache  *Cache
	locker Locker
	logger zerolog.Logger
}

// ProviderConfig groups Provider dependencies.
type ProviderConfig struct {
	Store  Store
	Cache  *Cache
	Locker Locker
	Logger zerolog.Logger
}

// NewProvider constructs a Provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.Store == nil {
		return nil, errors.New("itemconfig: store is required")
	}
	return &Provider{store: cfg.Store, cache: cfg.Cache, locker: cfg.Locker, logger: cfg.Logger}, nil
}

// Get returns the configuration of itemID, from cache when possible. A miss
// is written back only if no save invalidated the item while it was loaded.
func (p *Provider) Get(ctx context.Context, itemID string) (pricing.ItemConfig, error) {
	cfg, ok, err := p.cache.Get(ctx, itemID)
	writeBack := false
	switch {
	case errors.Is(err, resilience.ErrOpenCircuit):
		obs.ObserveItemConfigCache("bypass")
	case err != nil:
		obs.ObserveItemConfigCache("error")
		p.logger.Warn().Err(err).Str("item_id", itemID).Msg("item config cache read failed")
	case ok:
		obs.ObserveItemConfigCache("hit")
		return cfg, nil
	default:
		obs.ObserveItemConfigCache("miss")
		writeBack = true
	}

	var gen int64
	if writeBack {
		if gen, err = p.cache.Generation(ctx, itemID); err != nil {
			writeBack = false
		}
	}

	cfg, err = p.store.LoadItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return cfg, common.NewAppError(common.CodeNotFound, "item not found", http.StatusNotFound, err)
		}
		return cfg, err
	}
	if !writeBack {
		return cfg, nil
	}
	stored, err := p.cache.Set(ctx, cfg, gen)
	switch {
	case err != nil && !errors.Is(err, resilience.ErrOpenCircuit):
		p.logger.Warn().Err(err).Str("item_id", itemID).Msg("item config cache write failed")
	case err == nil && !stored:
		obs.ObserveItemConfigCache("stale")
		p.logger.Debug().Str("item_id", itemID).Msg("item config changed while loading, not cached")
	}
	return cfg, nil
}

// Snapshot loads every distinct item in itemIDs into an immutable snapshot.
// Unknown items are included with an empty configuration so their lines
// surface as tier_not_found instead of failing the document.
func (p *Provider) Snapshot(ctx context.Context, itemIDs []string) (pricing.Snapshot, error) {
	seen := make(map[string]struct{}, len(itemIDs))
	configs := make([]pricing.ItemConfig, 0, len(itemIDs))
	for _, id := range itemIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		cfg, err := p.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrItemNotFound) {
				configs = append(configs, pricing.ItemConfig{ItemID: id})
				continue
			}
			return pricing.Snapshot{}, err
		}
		configs = append(configs, cfg)
	}
	return pricing.NewSnapshot(configs...), nil
}

// SaveTiers validates and stores the tiers of itemID. Overlaps are rejected;
// gaps and missing open tiers come back as warnings.
func (p *Provider) SaveTiers(ctx context.Context, itemID string, tiers []pricing.PriceTier) ([]pricing.ConfigWarning, error) {
	warnings, err := pricing.ValidateTiers(tiers)
	if err != nil {
		obs.ObserveItemConfigMutation("tiers", "rejected")
		return nil, configInvalid(err)
	}
	err = p.mutate(ctx, itemID, "tiers", func(ctx context.Context) error {
		return p.store.ReplaceTiers(ctx, itemID, tiers)
	})
	if err != nil {
		return nil, err
	}
	return warnings, nil
}

// SaveMinimums validates and stores the minimum rules of itemID.
func (p *Provider) SaveMinimums(ctx context.Context, itemID string, rules []pricing.MinimumRule) error {
	normalised := make([]pricing.MinimumRule, len(rules))
	for i, r := range rules {
		r.ItemID = itemID
		if r.CalculationMode == "" {
			r.CalculationMode = pricing.CalcPerLine
		}
		normalised[i] = r
	}
	if err := pricing.ValidateRules(normalised); err != nil {
		obs.ObserveItemConfigMutation("minimums", "rejected")
		return configInvalid(err)
	}
	return p.mutate(ctx, itemID, "minimums", func(ctx context.Context) error {
		return p.store.ReplaceMinimums(ctx, itemID, normalised)
	})
}

func (p *Provider) mutate(ctx context.Context, itemID, kind string, write func(context.Context) error) error {
	run := func(ctx context.Context) error {
		if err := write(ctx); err != nil {
			return err
		}
		return p.cache.Invalidate(ctx, itemID)
	}
	var err error
	if p.locker != nil {
		err = p.locker.WithLock(ctx, lock.ItemKey(itemID), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		obs.ObserveItemConfigMutation(kind, "error")
		p.logger.Error().Err(err).Str("item_id", itemID).Str("kind", kind).Msg("item config save failed")
		switch {
		case errors.Is(err, ErrItemNotFound):
			return common.NewAppError(common.CodeNotFound, "item not found", http.StatusNotFound, err)
		case errors.Is(err, pricing.ErrDuplicateMinimumRule):
			return configInvalid(err)
		}
		return err
	}
	obs.ObserveItemConfigMutation(kind, "ok")
	p.logger.Info().Str("item_id", itemID).Str("kind", kind).Msg("item config saved")
	return nil
}

// GroupSummary lists the enabled minimums of one customer group.
type GroupSummary struct {
	CustomerGroup string                `json:"customer_group"`
	Items         int                   `json:"items"`
	Minimums      []pricing.MinimumRule `json:"minimums"`
}

// GroupMinimums summarises the enabled rules of group.
func (p *Provider) GroupMinimums(ctx context.Context, group string) (GroupSummary, error) {
	rules, err := p.store.ListGroupMinimums(ctx, group)
	if err != nil {
		return GroupSummary{}, err
	}
	items := map[string]struct{}{}
	for _, r := range rules {
		items[r.ItemID] = struct{}{}
	}
	return GroupSummary{CustomerGroup: group, Items: len(items), Minimums: rules}, nil
}

// Violation is one item whose stored configuration fails validation.
type Violation struct {
	ItemID   string                  `json:"item_id"`
	Err      error                   `json:"-"`
	Warnings []pricing.ConfigWarning `json:"warnings,omitempty"`
}

// Audit validates every stored item and returns the ones with errors or warnings.
func (p *Provider) Audit(ctx context.Context) ([]Violation, error) {
	ids, err := p.store.ListItemIDs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	var out []Violation
	for _, id := range ids {
		cfg, err := p.store.LoadItem(ctx, id)
		if err != nil {
			return out, err
		}
		warnings, verr := pricing.NewSnapshot(cfg).Validate()
		if verr != nil || len(warnings) > 0 {
			out = append(out, Violation{ItemID: id, Err: verr, Warnings: warnings})
		}
	}
	return out, nil
}

func configInvalid(err error) error {
	app := common.NewAppError(common.CodeConfigInvalid, "pricing configuration is invalid", http.StatusUnprocessableEntity, err)
	app.Details = map[string]any{"reason": err.Error()}
	return app
}

func (v Violation) String() string {
	if v.Err != nil {
		return fmt.Sprintf("%s: %v", v.ItemID, v.Err)
	}
	return fmt.Sprintf("%s: %d warning(s)", v.ItemID, len(v.Warnings))
}
