package pricing

import (
	"errors"
	"fmt"
)

// ErrInvalidDimension is returned when raw inputs cannot produce a positive quantity.
var ErrInvalidDimension = errors.New("invalid dimension")

// Dimensions holds raw measurements in centimeters. Only the fields relevant to
// the selling mode are read.
type Dimensions struct {
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Length float64 `json:"length,omitempty"`
}

// Quantity is the canonical billable quantity of one line.
type Quantity struct {
	UnitQty  float64
	TotalQty float64
	Label    string
}

// ComputeQuantity converts raw dimensions and a multiplier into billable quantity.
// A multiplier below one is treated as one.
func ComputeQuantity(mode SellingMode, dims Dimensions, multiplier int) (Quantity, error) {
	if multiplier < 1 {
		multiplier = 1
	}
	n := float64(multiplier)
	switch mode {
	case ModeArea:
		if dims.Width <= 0 || dims.Height <= 0 {
			return Quantity{}, fmt.Errorf("%w: area needs width and height > 0 (got %gx%g)", ErrInvalidDimension, dims.Width, dims.Height)
		}
		unit := dims.Width * dims.Height / 10000
		return Quantity{UnitQty: unit, TotalQty: unit * n, Label: mode.Unit()}, nil
	case ModeLength:
		if dims.Length <= 0 {
			return Quantity{}, fmt.Errorf("%w: length needs length > 0 (got %g)", ErrInvalidDimension, dims.Length)
		}
		unit := dims.Length / 100
		return Quantity{UnitQty: unit, TotalQty: unit * n, Label: mode.Unit()}, nil
	case ModeCount:
		return Quantity{UnitQty: 1, TotalQty: n, Label: mode.Unit()}, nil
	}
	return Quantity{}, fmt.Errorf("%w: unsupported selling mode %q", ErrInvalidDimension, mode)
}
