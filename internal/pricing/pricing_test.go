package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/printstore/internal/domain"
)

func TestTable_PrintCost(t *testing.T) {
	table := DefaultTable()

	cases := []struct {
		name     string
		settings domain.PrintSettings
		delivery domain.DeliveryMethod
		want     string
	}{
		{
			name:     "black and white a4 pickup",
			settings: domain.PrintSettings{PageCount: 75, Copies: 1, PaperSize: "a4", ColorMode: "bw", Sides: "single"},
			delivery: domain.DeliveryMethodPickup,
			want:     "150",
		},
		{
			name:     "color a3 with copies",
			settings: domain.PrintSettings{PageCount: 3, Copies: 2, PaperSize: "a3", ColorMode: "color", Sides: "single"},
			delivery: domain.DeliveryMethodPickup,
			want:     "120",
		},
		{
			name:     "double sided legal",
			settings: domain.PrintSettings{PageCount: 10, Copies: 1, PaperSize: "legal", ColorMode: "bw", Sides: "double"},
			delivery: domain.DeliveryMethodPickup,
			want:     "22.5",
		},
		{
			name:     "home delivery adds fee",
			settings: domain.PrintSettings{PageCount: 1, Copies: 1, PaperSize: "letter", ColorMode: "bw", Sides: "single"},
			delivery: domain.DeliveryMethodHomeDelivery,
			want:     "52",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := table.PrintCost(tc.settings, tc.delivery)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}

	t.Run("rejects unknown paper size", func(t *testing.T) {
		_, err := table.PrintCost(domain.PrintSettings{PageCount: 1, Copies: 1, PaperSize: "b5", ColorMode: "bw"}, domain.DeliveryMethodPickup)
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestCartTotal(t *testing.T) {
	items := []domain.LineItem{
		{ProductID: "p1", Price: decimal.RequireFromString("10.00"), Quantity: 2},
		{ProductID: "p2", Price: decimal.RequireFromString("5.00"), Quantity: 1},
	}

	if got := CartTotal(items); !got.Equal(decimal.RequireFromString("25.00")) {
		t.Errorf("expected 25.00, got %s", got)
	}
	if got := CartTotal(nil); !got.IsZero() {
		t.Errorf("expected zero for empty cart, got %s", got)
	}
}

func TestMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"150":    15000,
		"1.00":   100,
		"19.999": 2000,
		"0.015":  2,
	}
	for in, want := range cases {
		if got := MinorUnits(decimal.RequireFromString(in)); got != want {
			t.Errorf("MinorUnits(%s) = %d, want %d", in, got, want)
		}
	}
}
