package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-metrature/internal/addon"
	"github.com/noah-isme/backend-metrature/internal/common"
	"github.com/noah-isme/backend-metrature/internal/customer"
	"github.com/noah-isme/backend-metrature/internal/obs"
	"github.com/noah-isme/backend-metrature/internal/pricing"
)

func init() {
	obs.MustRegisterDomainMetrics("test", prometheus.NewRegistry())
}

type stubSnapshots struct {
	configs []pricing.ItemConfig
	err     error
	asked   []string
}

func (s *stubSnapshots) Snapshot(_ context.Context, ids []string) (pricing.Snapshot, error) {
	s.asked = ids
	if s.err != nil {
		return pricing.Snapshot{}, s.err
	}
	return pricing.NewSnapshot(s.configs...), nil
}

type stubCustomers map[string]string

func (c stubCustomers) GroupOf(_ context.Context, id string) (string, error) {
	g, ok := c[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", customer.ErrCustomerNotFound, id)
	}
	return g, nil
}

type stubAddOns struct {
	extra     []addon.AddOn
	templates []addon.Template
}

func (s stubAddOns) ListAddOns(context.Context) ([]addon.AddOn, error) {
	return append([]addon.AddOn{
		{ID: "lamination", Name: "Lamination", PricingType: addon.PricingPerArea, Price: 4, Enabled: true},
	}, s.extra...), nil
}

func (stubAddOns) ItemGroups(context.Context, []string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (s stubAddOns) Templates(context.Context, []string) ([]addon.Template, error) {
	return s.templates, nil
}

func bound(v float64) *float64 { return &v }

func panel() pricing.ItemConfig {
	return pricing.ItemConfig{
		ItemID: "PANEL",
		Tiers:  []pricing.PriceTier{{SellingMode: pricing.ModeArea, FromQty: 0, ToQty: bound(0.5), PricePerUnit: 20}},
		Minimums: []pricing.MinimumRule{{
			CustomerGroup: "Retail", SellingMode: pricing.ModeArea, MinQty: 0.5,
			CalculationMode: pricing.CalcGlobalPerDocument, FixedCost: 3, FixedCostMode: pricing.FixedPerDocument, Enabled: true,
		}},
	}
}

func newService(t *testing.T, snaps *stubSnapshots) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		Snapshots: snaps,
		Customers: stubCustomers{"CUST-1": "Retail"},
		AddOns:    stubAddOns{},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc
}

func TestPriceGlobalDocument(t *testing.T) {
	snaps := &stubSnapshots{configs: []pricing.ItemConfig{panel()}}
	svc := newService(t, snaps)
	before := testutil.ToFloat64(obs.PricingDocumentsTotal.WithLabelValues("ok"))

	resp, err := svc.Price(context.Background(), Request{
		DocumentID: "QTN-0001",
		CustomerID: "CUST-1",
		Lines: []LineRequest{
			{ItemID: "PANEL", SellingMode: pricing.ModeArea, Width: 30, Height: 40, Qty: 1,
				AddOns: []addon.Selection{{AddOnID: "lamination", Quantity: 1}}},
			{ItemID: "PANEL", SellingMode: pricing.ModeArea, Width: 30, Height: 60, Qty: 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Retail", resp.CustomerGroup)
	require.Equal(t, "QTN-0001", resp.DocumentID)
	require.Equal(t, 4.00, resp.Lines[0].ResolvedRate)
	require.Equal(t, 6.00, resp.Lines[1].ResolvedRate)
	require.Len(t, resp.DocumentCharges, 1)
	require.Equal(t, 0.48, resp.AddOns.Total)
	require.Equal(t, 13.48, resp.Summary.Total)
	require.NotEmpty(t, resp.Notes)
	require.Equal(t, []string{"PANEL", "PANEL"}, snaps.asked)
	require.Equal(t, before+1, testutil.ToFloat64(obs.PricingDocumentsTotal.WithLabelValues("ok")))
}

func TestPriceRejectsInvalidConfiguration(t *testing.T) {
	broken := panel()
	broken.Tiers = append(broken.Tiers, pricing.PriceTier{SellingMode: pricing.ModeArea, FromQty: 0.2, ToQty: bound(1), PricePerUnit: 18})
	svc := newService(t, &stubSnapshots{configs: []pricing.ItemConfig{broken}})

	_, err := svc.Price(context.Background(), Request{
		CustomerGroup: "Retail",
		Lines:         []LineRequest{{ItemID: "PANEL", SellingMode: pricing.ModeArea, Width: 30, Height: 40, Qty: 1}},
	})
	require.ErrorIs(t, err, pricing.ErrTierOverlap)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeConfigInvalid, appErr.Code)
}

func TestPriceReportsPartialDocuments(t *testing.T) {
	svc := newService(t, &stubSnapshots{configs: []pricing.ItemConfig{panel()}})
	before := testutil.ToFloat64(obs.PricingIssuesTotal.WithLabelValues(pricing.IssueInvalidDimension))

	resp, err := svc.Price(context.Background(), Request{
		CustomerGroup: "Wholesale",
		Lines: []LineRequest{
			{ItemID: "PANEL", SellingMode: pricing.ModeArea, Width: 0, Height: 40, Qty: 1, Rate: 9.5},
			{ItemID: "PANEL", SellingMode: pricing.ModeArea, Width: 30, Height: 40, Qty: 1},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.DocumentID)
	require.Len(t, resp.Issues, 1)
	require.Equal(t, 9.5, resp.Lines[0].ResolvedRate)
	require.Equal(t, 2.40, resp.Lines[1].ResolvedRate)
	require.Equal(t, 11.90, resp.Summary.Total)
	require.Equal(t, before+1, testutil.ToFloat64(obs.PricingIssuesTotal.WithLabelValues(pricing.IssueInvalidDimension)))
}

func TestPriceRequestErrors(t *testing.T) {
	svc := newService(t, &stubSnapshots{configs: []pricing.ItemConfig{panel()}})
	ctx := context.Background()
	line := LineRequest{ItemID: "PANEL", SellingMode: pricing.ModeArea, Width: 30, Height: 40, Qty: 1}

	_, err := svc.Price(ctx, Request{Lines: []LineRequest{line}})
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeValidation, appErr.Code)

	_, err = svc.Price(ctx, Request{CustomerID: "CUST-404", Lines: []LineRequest{line}})
	require.ErrorIs(t, err, customer.ErrCustomerNotFound)

	bad := line
	bad.AddOns = []addon.Selection{{AddOnID: "gold-leaf"}}
	_, err = svc.Price(ctx, Request{CustomerGroup: "Retail", Lines: []LineRequest{bad}})
	require.ErrorIs(t, err, addon.ErrUnknownAddOn)
}

func TestPriceSurfacesLoaderFailure(t *testing.T) {
	boom := errors.New("redis down")
	svc := newService(t, &stubSnapshots{err: boom})
	_, err := svc.Price(context.Background(), Request{
		CustomerGroup: "Retail",
		Lines:         []LineRequest{{ItemID: "PANEL", SellingMode: pricing.ModeCount, Qty: 1}},
	})
	require.ErrorIs(t, err, boom)
}

func TestResolveHandler(t *testing.T) {
	h := NewHandler(newService(t, &stubSnapshots{configs: []pricing.ItemConfig{panel()}}))

	body := `{"customer_group":"Retail","lines":[{"item_id":"PANEL","selling_mode":"Metro Quadrato","width":30,"height":40,"qty":1}]}`
	rec := httptest.NewRecorder()
	h.Resolve(rec, httptest.NewRequest(http.MethodPost, "/api/v1/pricing/resolve", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var payload struct {
		Data Response `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, 10.00, payload.Data.Lines[0].ResolvedRate)
	require.True(t, payload.Data.Lines[0].MinimumApplied)

	rec = httptest.NewRecorder()
	h.Resolve(rec, httptest.NewRequest(http.MethodPost, "/api/v1/pricing/resolve", strings.NewReader(`{"lines":[]}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPriceUsesTransactionDateForRuleWindows(t *testing.T) {
	from := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	till := time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)
	item := panel()
	item.Minimums = []pricing.MinimumRule{{
		CustomerGroup: "Retail", SellingMode: pricing.ModeArea, MinQty: 0.5, Enabled: true,
		ValidFrom: &from, ValidTill: &till,
	}}
	svc, err := NewService(ServiceConfig{
		Snapshots: &stubSnapshots{configs: []pricing.ItemConfig{item}},
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return time.Date(2025, time.April, 2, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	line := LineRequest{ItemID: "PANEL", SellingMode: pricing.ModeArea, Width: 30, Height: 40, Qty: 1}

	resp, err := svc.Price(context.Background(), Request{CustomerGroup: "Retail", Lines: []LineRequest{line}})
	require.NoError(t, err)
	require.Equal(t, "2025-04-02", resp.TransactionDate)
	require.Equal(t, pricing.PathStandard, resp.Lines[0].Path)

	resp, err = svc.Price(context.Background(), Request{CustomerGroup: "Retail", TransactionDate: "2025-03-31", Lines: []LineRequest{line}})
	require.NoError(t, err)
	require.Equal(t, pricing.PathPerLine, resp.Lines[0].Path)
	require.Equal(t, 10.00, resp.Lines[0].ResolvedRate)

	_, err = svc.Price(context.Background(), Request{CustomerGroup: "Retail", TransactionDate: "31/03/2025", Lines: []LineRequest{line}})
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeValidation, appErr.Code)
}

func TestPriceRejectsInvalidAddOnDefinition(t *testing.T) {
	svc, err := NewService(ServiceConfig{
		Snapshots: &stubSnapshots{configs: []pricing.ItemConfig{panel()}},
		AddOns: stubAddOns{extra: []addon.AddOn{
			{ID: "rush", Name: "Rush", PricingType: addon.PricingPercent, Price: 150, Enabled: true},
		}},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	line := LineRequest{ItemID: "PANEL", SellingMode: pricing.ModeArea, Width: 30, Height: 40, Qty: 1,
		AddOns: []addon.Selection{{AddOnID: "rush", Quantity: 1}}}

	_, err = svc.Price(context.Background(), Request{CustomerGroup: "Retail", Lines: []LineRequest{line}})
	require.ErrorIs(t, err, addon.ErrInvalidAddOn)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeConfigInvalid, appErr.Code)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
}

func TestPriceAddsMandatoryTemplateAddOns(t *testing.T) {
	svc, err := NewService(ServiceConfig{
		Snapshots: &stubSnapshots{configs: []pricing.ItemConfig{panel()}},
		AddOns: stubAddOns{templates: []addon.Template{{
			ID: "standard", ItemID: "PANEL", IsDefault: true,
			Items: []addon.TemplateItem{{AddOnID: "lamination", Mandatory: true, DefaultSelected: true}},
		}}},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	resp, err := svc.Price(context.Background(), Request{
		CustomerGroup: "Retail",
		Lines:         []LineRequest{{ItemID: "PANEL", SellingMode: pricing.ModeArea, Width: 30, Height: 40, Qty: 1}},
	})
	require.NoError(t, err)
	require.Len(t, resp.AddOns.Items, 1)
	require.Equal(t, "lamination", resp.AddOns.Items[0].AddOnID)
	require.Equal(t, "standard", resp.AddOns.Items[0].Template)
	require.Equal(t, 0.48, resp.AddOns.Total)
}
