package itemconfig

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, store *memoryStore) http.Handler {
	t.Helper()
	p, _ := newTestProvider(t, store)
	h := NewHandler(HandlerConfig{Provider: p, Logger: zerolog.Nop()})
	r := chi.NewRouter()
	r.Get("/api/v1/items/{itemID}/pricing", h.ItemPricing)
	r.Put("/api/v1/admin/items/{itemID}/tiers", h.PutTiers)
	r.Put("/api/v1/admin/items/{itemID}/minimums", h.PutMinimums)
	r.Post("/api/v1/admin/tiers/validate", h.ValidateTiers)
	r.Get("/api/v1/customer-groups/{group}/minimums", h.GroupMinimums)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	return rec, payload
}

func TestItemPricingEndpoint(t *testing.T) {
	router := newTestRouter(t, newMemoryStore(panelConfig()))

	rec, payload := do(t, router, http.MethodGet, "/api/v1/items/PANEL/pricing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := payload["data"].(map[string]any)
	require.Equal(t, "PANEL", data["item_id"])
	require.Len(t, data["tiers"], 1)

	rec, payload = do(t, router, http.MethodGet, "/api/v1/items/NOPE/pricing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", payload["error"].(map[string]any)["code"])
}

func TestPutTiersEndpoint(t *testing.T) {
	store := newMemoryStore(panelConfig())
	router := newTestRouter(t, store)

	body := `{"tiers":[
		{"selling_mode":"Metro Quadrato","from_qty":0,"to_qty":1,"price_per_unit":22},
		{"selling_mode":"AREA","from_qty":1,"price_per_unit":18}
	]}`
	rec, payload := do(t, router, http.MethodPut, "/api/v1/admin/items/PANEL/tiers", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Empty(t, payload["data"].(map[string]any)["warnings"])
	require.Len(t, store.items["PANEL"].Tiers, 2)

	overlap := `{"tiers":[
		{"selling_mode":"AREA","from_qty":0,"to_qty":2,"price_per_unit":20},
		{"selling_mode":"AREA","from_qty":1,"to_qty":5,"price_per_unit":15}
	]}`
	rec, payload = do(t, router, http.MethodPut, "/api/v1/admin/items/PANEL/tiers", overlap)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "CONFIG_INVALID", payload["error"].(map[string]any)["code"])
}

func TestPutTiersValidationErrors(t *testing.T) {
	router := newTestRouter(t, newMemoryStore(panelConfig()))

	rec, payload := do(t, router, http.MethodPut, "/api/v1/admin/items/PANEL/tiers",
		`{"tiers":[{"selling_mode":"AREA","from_qty":0,"price_per_unit":0}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", payload["error"].(map[string]any)["code"])

	rec, _ = do(t, router, http.MethodPut, "/api/v1/admin/items/PANEL/tiers",
		`{"tiers":[{"selling_mode":"Litro","from_qty":0,"price_per_unit":3}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutMinimumsEndpoint(t *testing.T) {
	store := newMemoryStore(panelConfig())
	router := newTestRouter(t, store)

	body := `{"minimums":[{"customer_group":"Retail","selling_mode":"AREA","min_qty":1,
		"calculation_mode":"Per Riga","fixed_cost":5,"fixed_cost_mode":"Per Preventivo","enabled":true}]}`
	rec, _ := do(t, router, http.MethodPut, "/api/v1/admin/items/PANEL/minimums", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "PER_DOCUMENT", string(store.items["PANEL"].Minimums[0].FixedCostMode))

	dup := `{"minimums":[
		{"customer_group":"Retail","selling_mode":"AREA","min_qty":1,"enabled":true},
		{"customer_group":"Retail","selling_mode":"AREA","min_qty":2,"enabled":true}
	]}`
	rec, _ = do(t, router, http.MethodPut, "/api/v1/admin/items/PANEL/minimums", dup)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	seasons := `{"minimums":[
		{"customer_group":"Retail","selling_mode":"AREA","min_qty":1,"enabled":true,
		 "valid_from":"2025-01-01T00:00:00Z","valid_till":"2025-03-31T00:00:00Z"},
		{"customer_group":"Retail","selling_mode":"AREA","min_qty":2,"enabled":true,
		 "valid_from":"2025-04-01T00:00:00Z"}
	]}`
	rec, _ = do(t, router, http.MethodPut, "/api/v1/admin/items/PANEL/minimums", seasons)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, store.items["PANEL"].Minimums, 2)
	require.NotNil(t, store.items["PANEL"].Minimums[0].ValidTill)

	inverted := `{"minimums":[{"customer_group":"Retail","selling_mode":"AREA","min_qty":1,"enabled":true,
		"valid_from":"2025-03-31T00:00:00Z","valid_till":"2025-01-01T00:00:00Z"}]}`
	rec, payload := do(t, router, http.MethodPut, "/api/v1/admin/items/PANEL/minimums", inverted)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "CONFIG_INVALID", payload["error"].(map[string]any)["code"])
}

func TestValidateTiersEndpoint(t *testing.T) {
	router := newTestRouter(t, newMemoryStore())

	rec, payload := do(t, router, http.MethodPost, "/api/v1/admin/tiers/validate",
		`{"tiers":[{"selling_mode":"LENGTH","from_qty":0,"to_qty":2,"price_per_unit":8},
		           {"selling_mode":"LENGTH","from_qty":3,"to_qty":5,"price_per_unit":7}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	report := payload["data"].(map[string]any)
	require.Equal(t, true, report["valid"])
	require.Len(t, report["warnings"], 2)

	_, payload = do(t, router, http.MethodPost, "/api/v1/admin/tiers/validate",
		`{"tiers":[{"selling_mode":"AREA","from_qty":0,"to_qty":2,"price_per_unit":20},
		           {"selling_mode":"AREA","from_qty":1,"to_qty":5,"price_per_unit":15}]}`)
	report = payload["data"].(map[string]any)
	require.Equal(t, false, report["valid"])
	require.Contains(t, report["error"], "tier overlap")
}

func TestGroupMinimumsEndpoint(t *testing.T) {
	router := newTestRouter(t, newMemoryStore(panelConfig()))

	rec, payload := do(t, router, http.MethodGet, "/api/v1/customer-groups/Retail/minimums", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := payload["data"].(map[string]any)
	require.Equal(t, "Retail", data["customer_group"])
	require.EqualValues(t, 1, data["items"])
}

func TestSaveLogsReplacedConfiguration(t *testing.T) {
	var buf bytes.Buffer
	p, _ := newTestProvider(t, newMemoryStore(panelConfig()))
	h := NewHandler(HandlerConfig{Provider: p, Logger: zerolog.New(&buf)})
	r := chi.NewRouter()
	r.Put("/items/{itemID}/minimums", h.PutMinimums)

	rec, _ := do(t, r, http.MethodPut, "/items/PANEL/minimums",
		`{"minimums":[{"customer_group":"Retail","selling_mode":"AREA","min_qty":1,"enabled":true}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "pricing configuration replaced", entry["message"])
	require.Equal(t, "PANEL", entry["item_id"])
	require.Equal(t, "minimums", entry["kind"])
}
