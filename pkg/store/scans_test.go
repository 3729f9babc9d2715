package store

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturas/models"
	"facturas/pkg/extract"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"145,99", "145.99", true},
		{"45.99", "45.99", true},
		{"1.234,56", "1234.56", true},
		{"1,234.56", "1234.56", true},
		{"1.234.567,00", "1234567", true},
		{"1.234", "1234", true},
		{"12,5", "125", true},
		{"€ 7,20", "7.2", true},
		{",50", "0.5", true},
		{"", "", false},
		{"€", "", false},
		{",.", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseAmount(tc.in)
			require.Equal(t, tc.ok, ok)
			if ok {
				assert.True(t, decimal.RequireFromString(tc.want).Equal(got), "got %s", got)
			}
		})
	}
}

func TestScanFromRecord(t *testing.T) {
	t.Parallel()
	rec := extract.Record{Date: "2023-08-05", Amount: "145,99", Vendor: "Talleres Pérez S.L.", Confidence: 0.75}
	scan := ScanFromRecord("raw text", rec)

	assert.Equal(t, models.StrategyRegex, scan.Strategy)
	assert.Equal(t, "raw text", scan.RawText)
	assert.Equal(t, "2023-08-05", scan.Date)
	assert.Equal(t, "145,99", scan.Amount)
	assert.Equal(t, "Talleres Pérez S.L.", scan.Vendor)
	assert.Empty(t, scan.Concept)
	assert.InDelta(t, 0.75, scan.Confidence, 1e-9)
	require.True(t, scan.AmountValue.Valid)
	assert.Equal(t, "145.99", scan.AmountValue.Decimal.StringFixed(2))

	empty := ScanFromRecord("", extract.Record{})
	assert.False(t, empty.AmountValue.Valid)
}
