package addon

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTemplate is returned when an optional template is inconsistent
	// with itself or with the add-on catalogue.
	ErrInvalidTemplate = errors.New("invalid optional template")
	// ErrUnknownTemplate is returned when a line names a template that does not exist.
	ErrUnknownTemplate = errors.New("unknown optional template")
)

// TemplateItem is one add-on offered by a template.
type TemplateItem struct {
	AddOnID         string `json:"add_on_id"`
	Mandatory       bool   `json:"mandatory"`
	DefaultSelected bool   `json:"default_selected"`
}

// Template is a named set of add-ons preselected for an item.
type Template struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	ItemID    string         `json:"item_id"`
	IsDefault bool           `json:"is_default"`
	Items     []TemplateItem `json:"items"`
}

// Validate checks the template on its own. Catalogue checks happen in NewCatalog.
func (t Template) Validate() error {
	if t.ItemID == "" {
		return fmt.Errorf("%w: %s has no item", ErrInvalidTemplate, t.ID)
	}
	if len(t.Items) == 0 {
		return fmt.Errorf("%w: %s offers no add-ons", ErrInvalidTemplate, t.ID)
	}
	seen := make(map[string]struct{}, len(t.Items))
	for _, it := range t.Items {
		if _, dup := seen[it.AddOnID]; dup {
			return fmt.Errorf("%w: %s lists %s twice", ErrInvalidTemplate, t.ID, it.AddOnID)
		}
		seen[it.AddOnID] = struct{}{}
		if it.Mandatory && !it.DefaultSelected {
			return fmt.Errorf("%w: %s: mandatory add-on %s must be selected by default", ErrInvalidTemplate, t.ID, it.AddOnID)
		}
	}
	return nil
}

// preselected returns the add-ons a line gets from the template. With
// mandatoryOnly, optional defaults are left out.
func (t Template) preselected(mandatoryOnly bool) []string {
	var out []string
	for _, it := range t.Items {
		if it.Mandatory || (!mandatoryOnly && it.DefaultSelected) {
			out = append(out, it.AddOnID)
		}
	}
	return out
}
