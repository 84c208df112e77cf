package pricing

import (
	"errors"
	"fmt"
	"time"
)

// DocumentLine is one line of a sales document as presented to the resolver.
type DocumentLine struct {
	ItemID        string      `json:"item_id"`
	SellingMode   SellingMode `json:"selling_mode"`
	Dimensions    Dimensions  `json:"dimensions"`
	MultiplierQty int         `json:"qty"`
	// Rate is the explicit rate set by the host document. Lines that cannot be
	// priced keep it.
	Rate float64 `json:"rate,omitempty"`
}

func (l DocumentLine) multiplier() int {
	if l.MultiplierQty < 1 {
		return 1
	}
	return l.MultiplierQty
}

// Document is the ordered list of lines of one quotation, order or invoice.
type Document struct {
	ID    string
	Lines []DocumentLine
	// Date selects the minimum rules in force. Zero ignores validity windows.
	Date time.Time
}

// Pricing paths taken by a line.
const (
	PathStandard = "standard"
	PathPerLine  = "per_line"
	PathGlobal   = "global"
)

// PricedLine is a DocumentLine with the resolver outputs. Quantities and the
// resolved rate are rounded; RawRate keeps full precision.
type PricedLine struct {
	DocumentLine
	Resolved       bool    `json:"resolved"`
	Path           string  `json:"path,omitempty"`
	UnitQty        float64 `json:"unit_qty"`
	TotalQty       float64 `json:"total_qty"`
	EffectiveQty   float64 `json:"effective_qty"`
	MinimumApplied bool    `json:"minimum_applied"`
	MinQty         float64 `json:"min_qty,omitempty"`
	TierName       string  `json:"tier_name,omitempty"`
	UnitPrice      float64 `json:"unit_price,omitempty"`
	Proportion     float64 `json:"proportion,omitempty"`
	FixedCost      float64 `json:"fixed_cost,omitempty"`
	ResolvedRate   float64 `json:"resolved_rate"`
	RawRate        float64 `json:"-"`
	Amount         float64 `json:"amount"`
	Explanation    string  `json:"explanation,omitempty"`

	lineIndex int
}

func (p PricedLine) index() int { return p.lineIndex }

// Issue kinds reported per line or group.
const (
	IssueInvalidDimension = "invalid_dimension"
	IssueTierNotFound     = "tier_not_found"
)

// Issue is a recovered per-line or per-group condition.
type Issue struct {
	Kind        string      `json:"kind"`
	Lines       []int       `json:"lines"`
	ItemID      string      `json:"item_id"`
	SellingMode SellingMode `json:"selling_mode"`
	Message     string      `json:"message"`
	Err         error       `json:"-"`
}

// GroupKey identifies a global-per-document pricing group.
type GroupKey struct {
	ItemID        string      `json:"item_id"`
	SellingMode   SellingMode `json:"selling_mode"`
	CustomerGroup string      `json:"customer_group"`
}

// GroupSummary records the redistribution of one global group, unrounded.
type GroupSummary struct {
	Key            GroupKey  `json:"key"`
	Lines          []int     `json:"lines"`
	TotalQty       float64   `json:"total_qty"`
	EffectiveQty   float64   `json:"effective_qty"`
	MinimumApplied bool      `json:"minimum_applied"`
	UnitPrice      float64   `json:"unit_price"`
	TierName       string    `json:"tier_name"`
	GroupValue     float64   `json:"group_value"`
	Proportions    []float64 `json:"proportions"`
	LineValues     []float64 `json:"line_values"`
	Resolved       bool      `json:"resolved"`
}

// FixedCharge is a per-document surcharge owed once for a rule.
type FixedCharge struct {
	ItemID        string      `json:"item_id"`
	SellingMode   SellingMode `json:"selling_mode"`
	CustomerGroup string      `json:"customer_group"`
	Amount        float64     `json:"amount"`
	Description   string      `json:"description,omitempty"`
}

// Result is the outcome of resolving one document.
type Result struct {
	Lines           []PricedLine   `json:"lines"`
	Groups          []GroupSummary `json:"groups,omitempty"`
	Issues          []Issue        `json:"issues,omitempty"`
	DocumentCharges []FixedCharge  `json:"document_charges,omitempty"`
	Notes           string         `json:"notes,omitempty"`
}

// Err joins the errors of every reported issue, or nil.
func (r Result) Err() error {
	var joined error
	for _, is := range r.Issues {
		joined = errors.Join(joined, is.Err)
	}
	return joined
}

// Resolver prices document lines against a configuration snapshot.
type Resolver struct {
	Snapshot Snapshot
}

// NewResolver constructs a Resolver bound to snap.
func NewResolver(snap Snapshot) *Resolver {
	return &Resolver{Snapshot: snap}
}

// Resolve prices doc for customerGroup against snap.
func Resolve(doc Document, customerGroup string, snap Snapshot) Result {
	return NewResolver(snap).Resolve(doc, customerGroup)
}

type measuredLine struct {
	index int
	line  DocumentLine
	qty   Quantity
}

type globalGroup struct {
	key   GroupKey
	rule  MinimumRule
	lines []measuredLine
}

// Resolve prices every line of doc for customerGroup. The input document is
// never modified. Lines or groups that fail are reported as issues and keep
// their external rate; other lines are still priced.
func (r *Resolver) Resolve(doc Document, customerGroup string) Result {
	res := Result{Lines: make([]PricedLine, len(doc.Lines))}
	for i, line := range doc.Lines {
		res.Lines[i] = PricedLine{DocumentLine: line, ResolvedRate: line.Rate, RawRate: line.Rate}
	}

	var (
		groups []*globalGroup
		byKey  = map[GroupKey]*globalGroup{}
	)
	for i, line := range doc.Lines {
		q, err := ComputeQuantity(line.SellingMode, line.Dimensions, line.MultiplierQty)
		if err != nil {
			res.Issues = append(res.Issues, Issue{
				Kind: IssueInvalidDimension, Lines: []int{i}, ItemID: line.ItemID, SellingMode: line.SellingMode,
				Message: err.Error(), Err: fmt.Errorf("line %d: %w", i, err),
			})
			continue
		}
		m := measuredLine{index: i, line: line, qty: q}
		rule, ok := r.Snapshot.rule(line.ItemID, customerGroup, line.SellingMode, doc.Date)
		switch {
		case !ok:
			r.commit(&res, r.priceStandard(m, &res))
		case rule.calcMode() == CalcGlobalPerDocument:
			key := GroupKey{ItemID: line.ItemID, SellingMode: line.SellingMode, CustomerGroup: customerGroup}
			g, exists := byKey[key]
			if !exists {
				g = &globalGroup{key: key, rule: rule}
				byKey[key] = g
				groups = append(groups, g)
			}
			g.lines = append(g.lines, m)
		default:
			r.commit(&res, r.pricePerLine(m, rule, &res))
		}
	}

	for _, g := range groups {
		summary, pending := r.priceGroup(g, &res)
		res.Groups = append(res.Groups, summary)
		if !summary.Resolved {
			continue
		}
		r.commit(&res, pending...)
		if g.rule.fixedApplies(FixedPerDocument) {
			res.DocumentCharges = append(res.DocumentCharges, FixedCharge{
				ItemID: g.key.ItemID, SellingMode: g.key.SellingMode, CustomerGroup: g.key.CustomerGroup,
				Amount: g.rule.FixedCost, Description: g.rule.Description,
			})
		}
	}
	res.Notes = documentNotes(customerGroup, res.Groups)
	return res
}

func (r *Resolver) commit(res *Result, lines ...PricedLine) {
	for _, pl := range lines {
		if !pl.Resolved {
			continue
		}
		res.Lines[pl.index()] = pl
	}
}

func (r *Resolver) tierIssue(res *Result, lines []int, itemID string, mode SellingMode, err error) {
	res.Issues = append(res.Issues, Issue{
		Kind: IssueTierNotFound, Lines: lines, ItemID: itemID, SellingMode: mode,
		Message: err.Error(), Err: fmt.Errorf("lines %v: %w", lines, err),
	})
}

func (r *Resolver) priceStandard(m measuredLine, res *Result) PricedLine {
	match, err := r.Snapshot.table(m.line.ItemID).ResolvePrice(m.line.SellingMode, m.qty.TotalQty)
	if err != nil {
		r.tierIssue(res, []int{m.index}, m.line.ItemID, m.line.SellingMode, err)
		return PricedLine{}
	}
	rate := m.qty.UnitQty * match.PricePerUnit
	pl := newPricedLine(m, PathStandard, m.qty.TotalQty, match, rate)
	pl.Explanation = explainLine(pl, explainInput{qty: m.qty})
	return pl
}

func (r *Resolver) pricePerLine(m measuredLine, rule MinimumRule, res *Result) PricedLine {
	effective := max(m.qty.TotalQty, rule.MinQty)
	match, err := r.Snapshot.table(m.line.ItemID).ResolvePrice(m.line.SellingMode, effective)
	if err != nil {
		r.tierIssue(res, []int{m.index}, m.line.ItemID, m.line.SellingMode, err)
		return PricedLine{}
	}
	rate := effective / float64(m.line.multiplier()) * match.PricePerUnit
	var fixed float64
	if rule.fixedApplies(FixedPerLine) {
		fixed = rule.FixedCost
		rate += fixed
	}
	pl := newPricedLine(m, PathPerLine, effective, match, rate)
	pl.MinimumApplied = effective > m.qty.TotalQty
	pl.MinQty = rule.MinQty
	pl.FixedCost = fixed
	pl.Explanation = explainLine(pl, explainInput{qty: m.qty, rawEffective: effective})
	return pl
}

func (r *Resolver) priceGroup(g *globalGroup, res *Result) (GroupSummary, []PricedLine) {
	summary := GroupSummary{Key: g.key}
	for _, m := range g.lines {
		summary.Lines = append(summary.Lines, m.index)
		summary.TotalQty += m.qty.TotalQty
	}
	summary.EffectiveQty = max(summary.TotalQty, g.rule.MinQty)
	summary.MinimumApplied = summary.EffectiveQty > summary.TotalQty

	match, err := r.Snapshot.table(g.key.ItemID).ResolvePrice(g.key.SellingMode, summary.EffectiveQty)
	if err != nil {
		r.tierIssue(res, summary.Lines, g.key.ItemID, g.key.SellingMode, err)
		return summary, nil
	}
	summary.UnitPrice = match.PricePerUnit
	summary.TierName = match.TierName
	summary.GroupValue = summary.EffectiveQty * match.PricePerUnit
	if g.rule.fixedApplies(FixedPerItemTotal) {
		summary.GroupValue += g.rule.FixedCost
	}

	var fixed float64
	if g.rule.fixedApplies(FixedPerLine) {
		fixed = g.rule.FixedCost
	}
	pending := make([]PricedLine, 0, len(g.lines))
	for _, m := range g.lines {
		proportion := 1 / float64(len(g.lines))
		if summary.TotalQty > 0 {
			proportion = m.qty.TotalQty / summary.TotalQty
		}
		lineValue := summary.GroupValue * proportion
		rate := lineValue/float64(m.line.multiplier()) + fixed
		summary.Proportions = append(summary.Proportions, proportion)
		summary.LineValues = append(summary.LineValues, lineValue)

		pl := newPricedLine(m, PathGlobal, summary.EffectiveQty, match, rate)
		pl.MinimumApplied = summary.MinimumApplied
		pl.MinQty = g.rule.MinQty
		pl.Proportion = proportion
		pl.FixedCost = fixed
		pl.Explanation = explainLine(pl, explainInput{
			qty: m.qty, rawEffective: summary.EffectiveQty, group: &summary, lineValue: lineValue,
		})
		pending = append(pending, pl)
	}
	summary.Resolved = true
	return summary, pending
}

func newPricedLine(m measuredLine, path string, effective float64, match TierMatch, rate float64) PricedLine {
	return PricedLine{
		DocumentLine: m.line,
		Resolved:     true,
		Path:         path,
		UnitQty:      RoundQty(m.qty.UnitQty),
		TotalQty:     RoundQty(m.qty.TotalQty),
		EffectiveQty: RoundQty(effective),
		TierName:     match.TierName,
		UnitPrice:    match.PricePerUnit,
		ResolvedRate: RoundRate(rate),
		RawRate:      rate,
		Amount:       RoundRate(rate * float64(m.line.multiplier())),
		lineIndex:    m.index,
	}
}
