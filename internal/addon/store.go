package addon

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store loads add-on definitions, the item groups they target and the
// optional templates of items.
type Store interface {
	ListAddOns(ctx context.Context) ([]AddOn, error)
	ItemGroups(ctx context.Context, itemIDs []string) (map[string]string, error)
	Templates(ctx context.Context, itemIDs []string) ([]Template, error)
}

// PGStore reads add-ons from Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

// NewPGStore returns a Store backed by pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{Pool: pool}
}

const listAddOnsSQL = `
SELECT a.id, a.name, COALESCE(a.description, ''), a.pricing_type, a.price, a.enabled,
       t.all_items, t.item_id, t.item_group
FROM item_addons a
LEFT JOIN item_addon_targets t ON t.addon_id = a.id
WHERE a.enabled
ORDER BY a.id, t.id`

// ListAddOns returns every enabled add-on with its targets.
func (s *PGStore) ListAddOns(ctx context.Context) ([]AddOn, error) {
	rows, err := s.Pool.Query(ctx, listAddOnsSQL)
	if err != nil {
		return nil, fmt.Errorf("list add-ons: %w", err)
	}
	defer rows.Close()

	var (
		out   []AddOn
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			a         AddOn
			pt        string
			allItems  *bool
			itemID    *string
			itemGroup *string
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &pt, &a.Price, &a.Enabled, &allItems, &itemID, &itemGroup); err != nil {
			return nil, fmt.Errorf("scan add-on: %w", err)
		}
		i, seen := index[a.ID]
		if !seen {
			parsed, err := ParsePricingType(pt)
			if err != nil {
				return nil, fmt.Errorf("add-on %s: %w", a.ID, err)
			}
			a.PricingType = parsed
			out = append(out, a)
			i = len(out) - 1
			index[a.ID] = i
		}
		if allItems == nil {
			continue
		}
		t := Target{AllItems: *allItems}
		if itemID != nil {
			t.ItemID = *itemID
		}
		if itemGroup != nil {
			t.ItemGroup = *itemGroup
		}
		out[i].Targets = append(out[i].Targets, t)
	}
	return out, rows.Err()
}

// ItemGroups maps the given item ids to their item group. Unknown items are omitted.
func (s *PGStore) ItemGroups(ctx context.Context, itemIDs []string) (map[string]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT item_id, item_group FROM items WHERE item_id = ANY($1)`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("item groups: %w", err)
	}
	type row struct {
		ItemID    string
		ItemGroup string
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByPos[row])
	if err != nil {
		return nil, fmt.Errorf("item groups: %w", err)
	}
	out := make(map[string]string, len(list))
	for _, r := range list {
		out[r.ItemID] = r.ItemGroup
	}
	return out, nil
}

const listTemplatesSQL = `
SELECT t.id, t.name, t.item_id, t.is_default, i.addon_id, i.mandatory, i.default_selected
FROM optional_templates t
LEFT JOIN optional_template_items i ON i.template_id = t.id
WHERE t.item_id = ANY($1)
ORDER BY t.id, i.addon_id`

// Templates returns the optional templates of the given items with their add-ons.
func (s *PGStore) Templates(ctx context.Context, itemIDs []string) ([]Template, error) {
	rows, err := s.Pool.Query(ctx, listTemplatesSQL, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var (
		out   []Template
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			t                          Template
			addOnID                    *string
			mandatory, defaultSelected *bool
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.ItemID, &t.IsDefault, &addOnID, &mandatory, &defaultSelected); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		i, seen := index[t.ID]
		if !seen {
			out = append(out, t)
			i = len(out) - 1
			index[t.ID] = i
		}
		if addOnID == nil {
			continue
		}
		out[i].Items = append(out[i].Items, TemplateItem{
			AddOnID: *addOnID, Mandatory: *mandatory, DefaultSelected: *defaultSelected,
		})
	}
	return out, rows.Err()
}

// LoadCatalog reads the add-ons, item groups and templates needed to price a document.
func LoadCatalog(ctx context.Context, store Store, itemIDs []string) (Catalog, error) {
	addOns, err := store.ListAddOns(ctx)
	if err != nil {
		return Catalog{}, err
	}
	groups, err := store.ItemGroups(ctx, itemIDs)
	if err != nil {
		return Catalog{}, err
	}
	templates, err := store.Templates(ctx, itemIDs)
	if err != nil {
		return Catalog{}, err
	}
	return NewCatalog(addOns, groups, templates), nil
}
