package quote

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-metrature/internal/addon"
	"github.com/noah-isme/backend-metrature/internal/common"
	"github.com/noah-isme/backend-metrature/internal/customer"
	"github.com/noah-isme/backend-metrature/internal/obs"
	"github.com/noah-isme/backend-metrature/internal/pricing"
)

// SnapshotLoader builds configuration snapshots for a set of items.
type SnapshotLoader interface {
	Snapshot(ctx context.Context, itemIDs []string) (pricing.Snapshot, error)
}

// LineRequest is one document line as sent by the host document.
type LineRequest struct {
	ItemID      string              `json:"item_id" validate:"required"`
	SellingMode pricing.SellingMode `json:"selling_mode" validate:"required"`
	Width       float64             `json:"width,omitempty" validate:"gte=0"`
	Height      float64             `json:"height,omitempty" validate:"gte=0"`
	Length      float64             `json:"length,omitempty" validate:"gte=0"`
	Qty         int                 `json:"qty" validate:"gte=0"`
	Rate        float64             `json:"rate,omitempty" validate:"gte=0"`
	AddOns      []addon.Selection   `json:"add_ons,omitempty" validate:"dive"`
	Template    string              `json:"template,omitempty"`
}

// dateLayout is the wire format of transaction dates.
const dateLayout = "2006-01-02"

// Request asks for the pricing of one document.
type Request struct {
	DocumentID    string `json:"document_id,omitempty"`
	CustomerID    string `json:"customer_id,omitempty" validate:"required_without=CustomerGroup"`
	CustomerGroup string `json:"customer_group,omitempty"`
	// TransactionDate picks the minimum rules in force; today when empty.
	TransactionDate string        `json:"transaction_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Lines           []LineRequest `json:"lines" validate:"required,min=1,max=500,dive"`
}

// Response carries the priced document.
type Response struct {
	DocumentID      string                  `json:"document_id"`
	CustomerGroup   string                  `json:"customer_group"`
	TransactionDate string                  `json:"transaction_date"`
	Lines           []pricing.PricedLine    `json:"lines"`
	Groups          []pricing.GroupSummary  `json:"groups,omitempty"`
	Issues          []pricing.Issue         `json:"issues,omitempty"`
	DocumentCharges []pricing.FixedCharge   `json:"document_charges,omitempty"`
	AddOns          addon.Priced            `json:"add_ons"`
	Summary         pricing.Summary         `json:"summary"`
	Notes           string                  `json:"notes,omitempty"`
	Warnings        []pricing.ConfigWarning `json:"warnings,omitempty"`
}

// Service prices documents.
type Service struct {
	snapshots SnapshotLoader
	customers customer.Resolver
	addOns    addon.Store
	validator *common.Validator
	logger    zerolog.Logger
	now       func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Snapshots SnapshotLoader
	Customers customer.Resolver
	AddOns    addon.Store
	Validator *common.Validator
	Logger    zerolog.Logger
	Now       func() time.Time
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Snapshots == nil {
		return nil, errors.New("quote: snapshot loader is required")
	}
	v := cfg.Validator
	if v == nil {
		v = common.NewValidator()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		snapshots: cfg.Snapshots,
		customers: cfg.Customers,
		addOns:    cfg.AddOns,
		validator: v,
		logger:    cfg.Logger,
		now:       now,
	}, nil
}

// Price resolves every line of req. Configuration errors reject the whole
// document; line-level problems are returned as issues next to the lines that
// could be priced.
func (s *Service) Price(ctx context.Context, req Request) (Response, error) {
	ctx, span := otel.Tracer("quote.Service").Start(ctx, "QuoteService.Price")
	defer span.End()

	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("pricing.result", result),
			attribute.Int("pricing.lines", len(req.Lines)),
			attribute.Float64("pricing.duration_ms", obs.DurationMillis(time.Since(start))),
		)
		obs.ObservePricingDocument(result)
	}()

	if err := s.validator.Struct(req); err != nil {
		result = "invalid"
		return Response{}, err
	}
	docID := strings.TrimSpace(req.DocumentID)
	if docID == "" {
		docID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("document.id", docID))

	group, err := s.customerGroup(ctx, req)
	if err != nil {
		result = "invalid"
		return Response{}, err
	}

	date := s.now().UTC()
	if req.TransactionDate != "" {
		if date, err = time.Parse(dateLayout, req.TransactionDate); err != nil {
			result = "invalid"
			return Response{}, common.BadRequest("transaction_date must be YYYY-MM-DD", err, nil)
		}
	}

	doc := pricing.Document{ID: docID, Date: date, Lines: make([]pricing.DocumentLine, len(req.Lines))}
	itemIDs := make([]string, 0, len(req.Lines))
	choices := map[int]addon.LineChoice{}
	for i, l := range req.Lines {
		doc.Lines[i] = pricing.DocumentLine{
			ItemID:        l.ItemID,
			SellingMode:   l.SellingMode,
			Dimensions:    pricing.Dimensions{Width: l.Width, Height: l.Height, Length: l.Length},
			MultiplierQty: l.Qty,
			Rate:          l.Rate,
		}
		itemIDs = append(itemIDs, l.ItemID)
		if len(l.AddOns) > 0 || l.Template != "" {
			choices[i] = addon.LineChoice{Template: l.Template, AddOns: l.AddOns}
		}
	}

	snap, err := s.snapshots.Snapshot(ctx, itemIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load configuration")
		return Response{}, err
	}
	warnings, err := snap.Validate()
	if err != nil {
		result = "rejected"
		s.logger.Warn().Err(err).Str("document_id", docID).Msg("pricing configuration rejected")
		app := common.NewAppError(common.CodeConfigInvalid, "pricing configuration is invalid", http.StatusUnprocessableEntity, err)
		app.Details = map[string]any{"reason": err.Error()}
		return Response{}, app
	}

	res := pricing.Resolve(doc, group, snap)

	priced, err := s.priceAddOns(ctx, docID, res, itemIDs, choices)
	if err != nil {
		result = "invalid"
		if errors.Is(err, addon.ErrInvalidAddOn) || errors.Is(err, addon.ErrInvalidTemplate) {
			result = "rejected"
		}
		return Response{}, err
	}

	result = "ok"
	if len(res.Issues) > 0 {
		result = "partial"
	}
	record(res)
	s.logger.Info().
		Str("document_id", docID).
		Str("customer_group", group).
		Int("lines", len(res.Lines)).
		Int("groups", len(res.Groups)).
		Int("issues", len(res.Issues)).
		Msg("document priced")

	return Response{
		DocumentID:      docID,
		CustomerGroup:   group,
		TransactionDate: date.Format(dateLayout),
		Lines:           res.Lines,
		Groups:          res.Groups,
		Issues:          res.Issues,
		DocumentCharges: res.DocumentCharges,
		AddOns:          priced,
		Summary:         pricing.Compute(res, priced.Total),
		Notes:           res.Notes,
		Warnings:        warnings,
	}, nil
}

func (s *Service) customerGroup(ctx context.Context, req Request) (string, error) {
	if g := strings.TrimSpace(req.CustomerGroup); g != "" {
		return g, nil
	}
	if s.customers == nil {
		return "", common.BadRequest("customer_group is required", nil, nil)
	}
	group, err := s.customers.GroupOf(ctx, req.CustomerID)
	if errors.Is(err, customer.ErrCustomerNotFound) {
		return "", common.NewAppError(common.CodeNotFound, "customer not found", http.StatusNotFound, err)
	}
	return group, err
}

// priceAddOns prices the add-ons of every line. The catalogue is consulted
// even without explicit choices so default templates can add their mandatory
// add-ons.
func (s *Service) priceAddOns(ctx context.Context, docID string, res pricing.Result, itemIDs []string, choices map[int]addon.LineChoice) (addon.Priced, error) {
	if s.addOns == nil {
		if len(choices) > 0 {
			return addon.Priced{}, common.BadRequest("add-ons are not available", nil, nil)
		}
		return addon.Priced{}, nil
	}
	catalog, err := addon.LoadCatalog(ctx, s.addOns, itemIDs)
	if err != nil {
		return addon.Priced{}, err
	}
	for _, rerr := range catalog.Rejected() {
		s.logger.Warn().Err(rerr).Str("document_id", docID).Msg("add-on definition rejected")
	}
	priced, err := catalog.Apply(res, choices)
	switch {
	case err == nil:
		return priced, nil
	case errors.Is(err, addon.ErrInvalidAddOn), errors.Is(err, addon.ErrInvalidTemplate):
		app := common.NewAppError(common.CodeConfigInvalid, "add-on configuration is invalid", http.StatusUnprocessableEntity, err)
		app.Details = map[string]any{"reason": err.Error()}
		return addon.Priced{}, app
	default:
		return addon.Priced{}, common.BadRequest("invalid add-on selection", err, map[string]any{"reason": err.Error()})
	}
}

func record(res pricing.Result) {
	for _, l := range res.Lines {
		if !l.Resolved {
			continue
		}
		obs.ObservePricingLine(string(l.SellingMode), l.Path)
		if l.MinimumApplied {
			obs.ObserveMinimumApplied(string(l.SellingMode), l.Path)
		}
	}
	for _, is := range res.Issues {
		obs.ObservePricingIssue(is.Kind)
	}
}
