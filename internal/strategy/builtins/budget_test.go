package builtins

import (
	"testing"

	"github.com/shopspring/decimal"

	"commander/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBudget(t *testing.T) {
	tests := []struct {
		name    string
		typ     domain.SizingType
		value   string
		bp      string
		want    string
		wantErr bool
	}{
		{"percent", domain.SizingBPPercent, "10", "10000", "1000", false},
		{"percent all", domain.SizingBPPercent, "100", "2500.50", "2500.5", false},
		{"percent zero", domain.SizingBPPercent, "0", "1000", "", true},
		{"percent over 100", domain.SizingBPPercent, "150", "1000", "", true},
		{"fixed under bp", domain.SizingFixedNotional, "500", "1000", "500", false},
		{"fixed clamped", domain.SizingFixedNotional, "5000", "1000", "1000", false},
		{"fixed negative", domain.SizingFixedNotional, "-1", "1000", "", true},
	}

	reg := Registry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := reg.Get(tt.typ)
			if !ok {
				t.Fatalf("no allocator for %s", tt.typ)
			}
			got, err := a.Budget(d(tt.value), d(tt.bp))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Budget = %s, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Budget: %v", err)
			}
			if !got.Equal(d(tt.want)) {
				t.Errorf("Budget = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRegistryHoldsBuiltins(t *testing.T) {
	names := Registry().List()
	if len(names) != 2 || names[0] != "bp_percent" || names[1] != "fixed_notional" {
		t.Errorf("List = %v, want [bp_percent fixed_notional]", names)
	}
}
