package itemconfig

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-metrature/internal/common"
	"github.com/noah-isme/backend-metrature/internal/pricing"
)

// Handler exposes item pricing configuration endpoints.
type Handler struct {
	provider  *Provider
	validator *common.Validator
	logger    zerolog.Logger
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Provider  *Provider
	Validator *common.Validator
	Logger    zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validator
	if v == nil {
		v = common.NewValidator()
	}
	return &Handler{provider: cfg.Provider, validator: v, logger: cfg.Logger}
}

type tiersRequest struct {
	Tiers []pricing.PriceTier `json:"tiers" validate:"dive"`
}

type minimumsRequest struct {
	Minimums []pricing.MinimumRule `json:"minimums" validate:"dive"`
}

type validationReport struct {
	Valid    bool                    `json:"valid"`
	Error    string                  `json:"error,omitempty"`
	Warnings []pricing.ConfigWarning `json:"warnings"`
}

// ItemPricing handles GET /api/v1/items/{itemID}/pricing.
func (h *Handler) ItemPricing(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.provider.Get(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cfg})
}

// PutTiers handles PUT /api/v1/admin/items/{itemID}/tiers.
func (h *Handler) PutTiers(w http.ResponseWriter, r *http.Request) {
	var req tiersRequest
	if err := h.decode(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	itemID := chi.URLParam(r, "itemID")
	warnings, err := h.provider.SaveTiers(r.Context(), itemID, req.Tiers)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.logReplaced(r, itemID, "tiers")
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"item_id":  itemID,
		"tiers":    len(req.Tiers),
		"warnings": nonNil(warnings),
	}})
}

// PutMinimums handles PUT /api/v1/admin/items/{itemID}/minimums.
func (h *Handler) PutMinimums(w http.ResponseWriter, r *http.Request) {
	var req minimumsRequest
	if err := h.decode(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	itemID := chi.URLParam(r, "itemID")
	if err := h.provider.SaveMinimums(r.Context(), itemID, req.Minimums); err != nil {
		common.WriteError(w, err)
		return
	}
	h.logReplaced(r, itemID, "minimums")
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"item_id":  itemID,
		"minimums": len(req.Minimums),
	}})
}

// ValidateTiers handles POST /api/v1/admin/tiers/validate. It never stores anything.
func (h *Handler) ValidateTiers(w http.ResponseWriter, r *http.Request) {
	var req tiersRequest
	if err := h.decode(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	warnings, err := pricing.ValidateTiers(req.Tiers)
	report := validationReport{Valid: err == nil, Warnings: nonNil(warnings)}
	if err != nil {
		report.Error = err.Error()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": report})
}

// GroupMinimums handles GET /api/v1/customer-groups/{group}/minimums.
func (h *Handler) GroupMinimums(w http.ResponseWriter, r *http.Request) {
	group := strings.TrimSpace(chi.URLParam(r, "group"))
	if group == "" {
		common.WriteError(w, common.BadRequest("customer group is required", nil, nil))
		return
	}
	summary, err := h.provider.GroupMinimums(r.Context(), group)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": summary})
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := common.DecodeJSON(r, dst); err != nil {
		return err
	}
	return h.validator.Struct(dst)
}

func (h *Handler) logReplaced(r *http.Request, itemID, kind string) {
	subject, _ := common.Subject(r.Context())
	h.logger.Info().Str("item_id", itemID).Str("kind", kind).Str("subject", subject).Msg("pricing configuration replaced")
}

func nonNil(w []pricing.ConfigWarning) []pricing.ConfigWarning {
	if w == nil {
		return []pricing.ConfigWarning{}
	}
	return w
}
