package addon

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-metrature/internal/pricing"
)

// Selection is an add-on chosen on a document line.
type Selection struct {
	AddOnID  string  `json:"add_on_id" validate:"required"`
	Quantity float64 `json:"quantity" validate:"gte=0"`
}

// LineChoice is what a document line asks for. Template names an optional
// template; when empty the item's default template still contributes its
// mandatory add-ons. Explicit selections override template quantities.
type LineChoice struct {
	Template string
	AddOns   []Selection
}

// LineAddOn is one priced selection.
type LineAddOn struct {
	Line     int     `json:"line"`
	AddOnID  string  `json:"add_on_id"`
	Label    string  `json:"label"`
	Quantity float64 `json:"quantity"`
	Amount   float64 `json:"amount"`
	Template string  `json:"template,omitempty"`
}

// Priced groups the add-ons of a document.
type Priced struct {
	Items []LineAddOn `json:"items,omitempty"`
	Total float64     `json:"total"`
}

// Catalog is an in-memory view of enabled add-ons, their templates and the
// item groups they target. Definitions that fail validation are kept aside
// and can never be charged.
type Catalog struct {
	addOns            map[string]AddOn
	itemGroups        map[string]string
	templates         map[string]Template
	defaults          map[string]string
	rejectedAddOns    map[string]error
	rejectedTemplates map[string]error
	brokenDefaults    map[string]error
}

// NewCatalog indexes addOns and templates by id. itemGroups maps item ids to
// their group.
func NewCatalog(addOns []AddOn, itemGroups map[string]string, templates []Template) Catalog {
	c := Catalog{
		addOns:            make(map[string]AddOn, len(addOns)),
		itemGroups:        itemGroups,
		templates:         make(map[string]Template, len(templates)),
		defaults:          map[string]string{},
		rejectedAddOns:    map[string]error{},
		rejectedTemplates: map[string]error{},
		brokenDefaults:    map[string]error{},
	}
	for _, a := range addOns {
		if err := a.Validate(); err != nil {
			c.rejectedAddOns[a.ID] = err
			continue
		}
		c.addOns[a.ID] = a
	}

	sorted := append([]Template(nil), templates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, t := range sorted {
		err := t.Validate()
		if err == nil {
			err = c.checkTemplate(t)
		}
		if err != nil {
			c.rejectedTemplates[t.ID] = err
			if t.IsDefault {
				if _, ok := c.defaults[t.ItemID]; !ok {
					c.brokenDefaults[t.ItemID] = err
				}
			}
			continue
		}
		if t.IsDefault {
			if prev, ok := c.defaults[t.ItemID]; ok {
				c.rejectedTemplates[t.ID] = fmt.Errorf("%w: %s: item %s already has default template %s", ErrInvalidTemplate, t.ID, t.ItemID, prev)
				continue
			}
			if _, broken := c.brokenDefaults[t.ItemID]; broken {
				c.rejectedTemplates[t.ID] = fmt.Errorf("%w: %s: item %s already has a default template", ErrInvalidTemplate, t.ID, t.ItemID)
				continue
			}
			c.defaults[t.ItemID] = t.ID
		}
		c.templates[t.ID] = t
	}
	return c
}

func (c Catalog) checkTemplate(t Template) error {
	for _, it := range t.Items {
		if rerr, bad := c.rejectedAddOns[it.AddOnID]; bad {
			return fmt.Errorf("%w: %s: %w", ErrInvalidTemplate, t.ID, rerr)
		}
		a, ok := c.addOns[it.AddOnID]
		if !ok {
			return fmt.Errorf("%w: %s: %w: %s", ErrInvalidTemplate, t.ID, ErrUnknownAddOn, it.AddOnID)
		}
		if !a.AppliesTo(t.ItemID, c.itemGroups[t.ItemID]) {
			return fmt.Errorf("%w: %s: %w: %s on %s", ErrInvalidTemplate, t.ID, ErrNotApplicable, it.AddOnID, t.ItemID)
		}
	}
	return nil
}

// Knows reports whether itemID was resolved when the catalogue was loaded.
func (c Catalog) Knows(itemID string) bool {
	_, ok := c.itemGroups[itemID]
	return ok
}

// Rejected lists why add-ons and templates were left out of the catalogue,
// add-ons first, each ordered by id.
func (c Catalog) Rejected() []error {
	var out []error
	for _, m := range []map[string]error{c.rejectedAddOns, c.rejectedTemplates} {
		ids := make([]string, 0, len(m))
		for id := range m {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			out = append(out, m[id])
		}
	}
	return out
}

// Applicable lists the add-ons that can be sold with itemID, ordered by id.
func (c Catalog) Applicable(itemID string) []AddOn {
	var out []AddOn
	for _, a := range c.addOns {
		if a.AppliesTo(itemID, c.itemGroups[itemID]) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Templates lists the valid templates of itemID, the default first.
func (c Catalog) Templates(itemID string) []Template {
	var out []Template
	for _, t := range c.templates {
		if t.ItemID == itemID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DefaultTemplate returns the default template of itemID.
func (c Catalog) DefaultTemplate(itemID string) (Template, bool) {
	id, ok := c.defaults[itemID]
	if !ok {
		return Template{}, false
	}
	return c.templates[id], true
}

type pick struct {
	Selection
	template string
}

// picks merges a line's explicit selections with what its template preselects.
func (c Catalog) picks(itemID string, choice LineChoice) ([]pick, error) {
	var (
		tmpl          Template
		mandatoryOnly bool
	)
	switch {
	case choice.Template != "":
		if rerr, bad := c.rejectedTemplates[choice.Template]; bad {
			return nil, rerr
		}
		t, ok := c.templates[choice.Template]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, choice.Template)
		}
		if t.ItemID != itemID {
			return nil, fmt.Errorf("%w: template %s belongs to %s, not %s", ErrNotApplicable, t.ID, t.ItemID, itemID)
		}
		tmpl = t
	default:
		if err, broken := c.brokenDefaults[itemID]; broken {
			return nil, err
		}
		t, ok := c.DefaultTemplate(itemID)
		if !ok {
			break
		}
		tmpl, mandatoryOnly = t, true
	}

	out := make([]pick, 0, len(choice.AddOns)+len(tmpl.Items))
	chosen := make(map[string]struct{}, len(choice.AddOns))
	for _, sel := range choice.AddOns {
		out = append(out, pick{Selection: sel})
		chosen[sel.AddOnID] = struct{}{}
	}
	for _, id := range tmpl.preselected(mandatoryOnly) {
		if _, ok := chosen[id]; ok {
			continue
		}
		out = append(out, pick{Selection: Selection{AddOnID: id, Quantity: 1}, template: tmpl.ID})
	}
	return out, nil
}

// Apply prices the add-ons of every line. Choices are keyed by line index.
// Every unknown, invalid or inapplicable selection is reported.
func (c Catalog) Apply(res pricing.Result, choices map[int]LineChoice) (Priced, error) {
	var (
		out   Priced
		errs  error
		total = decimal.Zero
	)
	for idx := range res.Lines {
		line := res.Lines[idx]
		picks, err := c.picks(line.ItemID, choices[idx])
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("line %d: %w", idx, err))
			continue
		}
		for _, p := range picks {
			if rerr, bad := c.rejectedAddOns[p.AddOnID]; bad {
				errs = errors.Join(errs, fmt.Errorf("line %d: %w", idx, rerr))
				continue
			}
			a, ok := c.addOns[p.AddOnID]
			if !ok || !a.Enabled {
				errs = errors.Join(errs, fmt.Errorf("line %d: %w: %s", idx, ErrUnknownAddOn, p.AddOnID))
				continue
			}
			if !a.AppliesTo(line.ItemID, c.itemGroups[line.ItemID]) {
				errs = errors.Join(errs, fmt.Errorf("line %d: %w: %s on %s", idx, ErrNotApplicable, p.AddOnID, line.ItemID))
				continue
			}
			amount := a.Amount(line, p.Quantity)
			out.Items = append(out.Items, LineAddOn{
				Line: idx, AddOnID: a.ID, Label: a.Label(), Quantity: p.Quantity, Amount: amount, Template: p.template,
			})
			total = total.Add(decimal.NewFromFloat(amount))
		}
	}
	out.Total = total.Round(2).InexactFloat64()
	return out, errs
}
