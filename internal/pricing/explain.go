package pricing

import (
	"fmt"
	"strings"
)

type explainInput struct {
	qty          Quantity
	rawEffective float64
	group        *GroupSummary
	lineValue    float64
}

func explainDimensions(mode SellingMode, d Dimensions) string {
	switch mode {
	case ModeArea:
		return fmt.Sprintf("%gx%g cm", d.Width, d.Height)
	case ModeLength:
		return fmt.Sprintf("%g cm", d.Length)
	default:
		return "-"
	}
}

// explainLine builds the audit trail stored on a priced line. It is meant for
// humans and is not parsed.
func explainLine(pl PricedLine, in explainInput) string {
	unit := pl.SellingMode.Unit()
	parts := []string{
		fmt.Sprintf("mode %s (%s)", pl.SellingMode, unit),
		fmt.Sprintf("dimensions %s x%d", explainDimensions(pl.SellingMode, pl.Dimensions), pl.multiplier()),
		fmt.Sprintf("unit %s %s, total %s %s", fmtQty(in.qty.UnitQty), unit, fmtQty(in.qty.TotalQty), unit),
	}

	switch {
	case in.group != nil && pl.MinimumApplied:
		parts = append(parts, fmt.Sprintf("group minimum %s %s applied (group total %s, billed %s)",
			fmtQty(pl.MinQty), unit, fmtQty(in.group.TotalQty), fmtQty(in.group.EffectiveQty)))
	case in.group != nil:
		parts = append(parts, fmt.Sprintf("group minimum %s %s not reached (group total %s)",
			fmtQty(pl.MinQty), unit, fmtQty(in.group.TotalQty)))
	case pl.MinimumApplied:
		parts = append(parts, fmt.Sprintf("minimum %s %s applied, billed %s", fmtQty(pl.MinQty), unit, fmtQty(in.rawEffective)))
	case pl.Path == PathPerLine:
		parts = append(parts, fmt.Sprintf("minimum %s %s not reached", fmtQty(pl.MinQty), unit))
	default:
		parts = append(parts, "no minimum")
	}

	parts = append(parts, fmt.Sprintf("tier %s @ %s/%s", pl.TierName, fmtMoney(pl.UnitPrice), unit))
	if in.group != nil {
		parts = append(parts, fmt.Sprintf("share %.4f of group value %s = %s",
			pl.Proportion, fmtMoney(in.group.GroupValue), fmtMoney(in.lineValue)))
	}
	if pl.FixedCost > 0 {
		parts = append(parts, fmt.Sprintf("fixed cost %s per line", fmtMoney(pl.FixedCost)))
	}
	parts = append(parts, fmt.Sprintf("rate %s", fmtMoney(pl.RawRate)))
	return strings.Join(parts, "; ")
}

// documentNotes summarises the global minimums that raised a group's quantity.
func documentNotes(customerGroup string, groups []GroupSummary) string {
	var lines []string
	for _, g := range groups {
		if !g.Resolved || !g.MinimumApplied {
			continue
		}
		unit := g.Key.SellingMode.Unit()
		lines = append(lines, fmt.Sprintf("Minimum for %s (%s, %s): %s %s billed instead of %s %s across %d line(s).",
			g.Key.ItemID, g.Key.SellingMode, customerGroup,
			fmtQty(g.EffectiveQty), unit, fmtQty(g.TotalQty), unit, len(g.Lines)))
	}
	return strings.Join(lines, "\n")
}
