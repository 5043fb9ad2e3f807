package service

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculateCommissionScenarios(t *testing.T) {
	base := CommissionInput{
		Gross:             decimal.NewFromInt(2000),
		TDSPercent:        decimal.NewFromInt(20),
		TDSThresholdPairs: 5,
		ExtraPercent:      decimal.NewFromInt(20),
	}
	cases := []struct {
		name     string
		sequence int
		active   bool
		tax      string
		extra    string
		net      string
		blocked  bool
	}{
		{"pair_3_active", 3, true, "400", "0", "1600", false},
		{"pair_3_inactive", 3, false, "400", "0", "1600", false},
		{"pair_5_boundary", 5, false, "400", "0", "1600", false},
		{"pair_7_active", 7, true, "400", "400", "1200", false},
		{"pair_7_inactive", 7, false, "400", "400", "0", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := base
			input.Sequence = tc.sequence
			input.IsActiveBuyer = tc.active
			got := CalculateCommission(input)
			if !got.Tax.Equal(decimal.RequireFromString(tc.tax)) {
				t.Fatalf("tax mismatch: got=%s want=%s", got.Tax, tc.tax)
			}
			if !got.Extra.Equal(decimal.RequireFromString(tc.extra)) {
				t.Fatalf("extra mismatch: got=%s want=%s", got.Extra, tc.extra)
			}
			if !got.Net.Equal(decimal.RequireFromString(tc.net)) {
				t.Fatalf("net mismatch: got=%s want=%s", got.Net, tc.net)
			}
			if got.Blocked != tc.blocked {
				t.Fatalf("blocked mismatch: got=%v want=%v", got.Blocked, tc.blocked)
			}
		})
	}
}

func TestCalculateCommissionRoundsToCents(t *testing.T) {
	got := CalculateCommission(CommissionInput{
		Sequence:          1,
		Gross:             decimal.RequireFromString("333.33"),
		TDSPercent:        decimal.RequireFromString("7.5"),
		TDSThresholdPairs: 5,
		ExtraPercent:      decimal.NewFromInt(20),
	})
	// 333.33 * 7.5% = 24.99975 -> 25.00
	if !got.Tax.Equal(decimal.RequireFromString("25")) || !got.Net.Equal(decimal.RequireFromString("308.33")) {
		t.Fatalf("unexpected rounding: tax=%s net=%s", got.Tax, got.Net)
	}
	if !got.Tax.Add(got.Net).Equal(got.Gross) {
		t.Fatalf("tax + net should equal gross")
	}
}

func TestCalculateDirectCommission(t *testing.T) {
	got := CalculateDirectCommission(decimal.NewFromInt(1000), decimal.NewFromInt(20))
	if !got.Tax.Equal(decimal.NewFromInt(200)) || !got.Net.Equal(decimal.NewFromInt(800)) || got.Blocked {
		t.Fatalf("unexpected direct commission: %+v", got)
	}
}
