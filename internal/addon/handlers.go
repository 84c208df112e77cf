package addon

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-metrature/internal/common"
)

// Handler exposes the add-on catalogue of items.
type Handler struct {
	Store  Store
	Logger zerolog.Logger
}

type listedAddOn struct {
	AddOn
	Label string `json:"label"`
}

type itemAddOns struct {
	ItemID          string        `json:"item_id"`
	AddOns          []listedAddOn `json:"add_ons"`
	Templates       []Template    `json:"templates"`
	DefaultTemplate string        `json:"default_template,omitempty"`
}

// ItemAddOns handles GET /api/v1/items/{itemID}/add-ons.
func (h Handler) ItemAddOns(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	catalog, err := LoadCatalog(r.Context(), h.Store, []string{itemID})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if !catalog.Knows(itemID) {
		common.WriteError(w, common.NewAppError(common.CodeNotFound, fmt.Sprintf("item %s not found", itemID), http.StatusNotFound, nil))
		return
	}
	for _, rerr := range catalog.Rejected() {
		h.Logger.Warn().Err(rerr).Str("item_id", itemID).Msg("add-on definition rejected")
	}

	out := itemAddOns{ItemID: itemID, AddOns: []listedAddOn{}, Templates: catalog.Templates(itemID)}
	for _, a := range catalog.Applicable(itemID) {
		out.AddOns = append(out.AddOns, listedAddOn{AddOn: a, Label: a.Label()})
	}
	if out.Templates == nil {
		out.Templates = []Template{}
	}
	if def, ok := catalog.DefaultTemplate(itemID); ok {
		out.DefaultTemplate = def.ID
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}
