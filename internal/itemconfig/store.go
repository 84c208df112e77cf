package itemconfig

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-metrature/internal/pricing"
)

// ErrItemNotFound is returned when the item has never been registered.
var ErrItemNotFound = errors.New("item not found")

// Store persists tiers and minimum rules.
type Store interface {
	LoadItem(ctx context.Context, itemID string) (pricing.ItemConfig, error)
	ReplaceTiers(ctx context.Context, itemID string, tiers []pricing.PriceTier) error
	ReplaceMinimums(ctx context.Context, itemID string, rules []pricing.MinimumRule) error
	ListGroupMinimums(ctx context.Context, group string) ([]pricing.MinimumRule, error)
	ListItemIDs(ctx context.Context) ([]string, error)
}

// PGStore implements Store on Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
	now  func() time.Time
}

// NewPGStore returns a PGStore backed by pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{Pool: pool, now: time.Now}
}

const (
	itemExistsSQL = `SELECT EXISTS (SELECT 1 FROM items WHERE item_id = $1)`

	selectTiersSQL = `
SELECT selling_mode, from_qty, to_qty, price_per_unit, tier_name, is_default
FROM item_pricing_tiers
WHERE item_id = $1
ORDER BY selling_mode, from_qty`

	selectMinimumsSQL = `
SELECT item_id, customer_group, selling_mode, min_qty, calculation_mode,
       fixed_cost, fixed_cost_mode, enabled, priority, description,
       valid_from, valid_till, created_at
FROM customer_group_minimums
WHERE %s
ORDER BY item_id, selling_mode, priority DESC, created_at DESC`
)

const (
	uniqueViolation    = "23505"
	exclusionViolation = "23P01"
)

var (
	tierColumns    = []string{"item_id", "selling_mode", "from_qty", "to_qty", "price_per_unit", "tier_name", "is_default"}
	minimumColumns = []string{"item_id", "customer_group", "selling_mode", "min_qty", "calculation_mode",
		"fixed_cost", "fixed_cost_mode", "enabled", "priority", "description", "valid_from", "valid_till", "created_at"}
)

// LoadItem reads the full configuration of itemID.
func (s *PGStore) LoadItem(ctx context.Context, itemID string) (pricing.ItemConfig, error) {
	var exists bool
	if err := s.Pool.QueryRow(ctx, itemExistsSQL, itemID).Scan(&exists); err != nil {
		return pricing.ItemConfig{}, fmt.Errorf("lookup item %s: %w", itemID, err)
	}
	if !exists {
		return pricing.ItemConfig{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}

	cfg := pricing.ItemConfig{ItemID: itemID}
	rows, err := s.Pool.Query(ctx, selectTiersSQL, itemID)
	if err != nil {
		return cfg, fmt.Errorf("load tiers %s: %w", itemID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t    pricing.PriceTier
			mode string
		)
		if err := rows.Scan(&mode, &t.FromQty, &t.ToQty, &t.PricePerUnit, &t.Name, &t.IsDefault); err != nil {
			return cfg, fmt.Errorf("scan tier %s: %w", itemID, err)
		}
		if t.SellingMode, err = pricing.ParseSellingMode(mode); err != nil {
			return cfg, fmt.Errorf("tier %s: %w", itemID, err)
		}
		cfg.Tiers = append(cfg.Tiers, t)
	}
	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf("load tiers %s: %w", itemID, err)
	}

	cfg.Minimums, err = s.queryMinimums(ctx, "item_id = $1", itemID)
	if err != nil {
		return cfg, fmt.Errorf("load minimums %s: %w", itemID, err)
	}
	return cfg, nil
}

// ListGroupMinimums returns the enabled rules of a customer group across items.
func (s *PGStore) ListGroupMinimums(ctx context.Context, group string) ([]pricing.MinimumRule, error) {
	rules, err := s.queryMinimums(ctx, "customer_group = $1 AND enabled", group)
	if err != nil {
		return nil, fmt.Errorf("list minimums for %s: %w", group, err)
	}
	return rules, nil
}

// ListItemIDs returns every registered item id.
func (s *PGStore) ListItemIDs(ctx context.Context) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT item_id FROM items ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PGStore) queryMinimums(ctx context.Context, where string, arg any) ([]pricing.MinimumRule, error) {
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(selectMinimumsSQL, where), arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pricing.MinimumRule
	for rows.Next() {
		var (
			r                     pricing.MinimumRule
			mode, calc, fixedMode string
		)
		if err := rows.Scan(&r.ItemID, &r.CustomerGroup, &mode, &r.MinQty, &calc,
			&r.FixedCost, &fixedMode, &r.Enabled, &r.Priority, &r.Description,
			&r.ValidFrom, &r.ValidTill, &r.CreatedAt); err != nil {
			return nil, err
		}
		if r.SellingMode, err = pricing.ParseSellingMode(mode); err != nil {
			return nil, err
		}
		if r.CalculationMode, err = pricing.ParseCalculationMode(calc); err != nil {
			return nil, err
		}
		if r.FixedCostMode, err = pricing.ParseFixedCostMode(fixedMode); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceTiers swaps the tiers of itemID in one transaction.
func (s *PGStore) ReplaceTiers(ctx context.Context, itemID string, tiers []pricing.PriceTier) error {
	rows := make([][]any, 0, len(tiers))
	for _, t := range tiers {
		rows = append(rows, []any{itemID, string(t.SellingMode), t.FromQty, t.ToQty, t.PricePerUnit, t.Name, t.IsDefault})
	}
	return s.replace(ctx, "item_pricing_tiers", tierColumns, itemID, rows)
}

// ReplaceMinimums swaps the minimum rules of itemID in one transaction. A
// second enabled rule for the same triple with an overlapping validity window
// surfaces as a duplicate-rule error.
func (s *PGStore) ReplaceMinimums(ctx context.Context, itemID string, rules []pricing.MinimumRule) error {
	now := s.now().UTC()
	rows := make([][]any, 0, len(rules))
	for _, r := range rules {
		created := r.CreatedAt
		if created.IsZero() {
			created = now
		}
		rows = append(rows, []any{itemID, r.CustomerGroup, string(r.SellingMode), r.MinQty, string(r.CalculationMode),
			r.FixedCost, string(r.FixedCostMode), r.Enabled, r.Priority, r.Description,
			r.ValidFrom, r.ValidTill, created})
	}
	err := s.replace(ctx, "customer_group_minimums", minimumColumns, itemID, rows)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == uniqueViolation || pgErr.Code == exclusionViolation) {
		return fmt.Errorf("%w: %s", pricing.ErrDuplicateMinimumRule, pgErr.Detail)
	}
	return err
}

func (s *PGStore) replace(ctx context.Context, table string, columns []string, itemID string, rows [][]any) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, itemExistsSQL, itemID).Scan(&exists); err != nil {
			return fmt.Errorf("lookup item %s: %w", itemID, err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE item_id = $1", itemID); err != nil {
			return fmt.Errorf("clear %s for %s: %w", table, itemID, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("write %s for %s: %w", table, itemID, err)
		}
		return nil
	})
}
