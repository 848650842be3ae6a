// Package pricing computes authoritative order amounts. Totals sent by clients
// are only ever compared against these.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/printstore/internal/domain"
)

type Table struct {
	BWPerPage         decimal.Decimal
	ColorPerPage      decimal.Decimal
	PaperMultiplier   map[string]decimal.Decimal
	DoubleSidedFactor decimal.Decimal
	HomeDeliveryFee   decimal.Decimal
}

func DefaultTable() Table {
	return Table{
		BWPerPage:    decimal.RequireFromString("2.00"),
		ColorPerPage: decimal.RequireFromString("10.00"),
		PaperMultiplier: map[string]decimal.Decimal{
			"a4":     decimal.NewFromInt(1),
			"letter": decimal.NewFromInt(1),
			"legal":  decimal.RequireFromString("1.25"),
			"a3":     decimal.NewFromInt(2),
		},
		DoubleSidedFactor: decimal.RequireFromString("0.90"),
		HomeDeliveryFee:   decimal.RequireFromString("50.00"),
	}
}

// PrintCost prices pages × copies at the colour rate, scaled by paper size
// and duplex discount, plus the delivery fee.
func (t Table) PrintCost(s domain.PrintSettings, delivery domain.DeliveryMethod) (decimal.Decimal, error) {
	var rate decimal.Decimal
	switch s.ColorMode {
	case "bw":
		rate = t.BWPerPage
	case "color":
		rate = t.ColorPerPage
	default:
		return decimal.Zero, fmt.Errorf("unknown color mode %q", s.ColorMode)
	}

	multiplier, ok := t.PaperMultiplier[s.PaperSize]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown paper size %q", s.PaperSize)
	}

	pages := decimal.NewFromInt(int64(s.PageCount) * int64(s.Copies))
	cost := pages.Mul(rate).Mul(multiplier)
	if s.Sides == "double" {
		cost = cost.Mul(t.DoubleSidedFactor)
	}

	if delivery == domain.DeliveryMethodHomeDelivery {
		cost = cost.Add(t.HomeDeliveryFee)
	}

	return cost.Round(2), nil
}

func CartTotal(items []domain.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total.Round(2)
}

// MinorUnits converts an amount to the smallest currency unit (paise, cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
