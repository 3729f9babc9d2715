package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleOrder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"label-currency", "suffix-euro", "prefix-euro", "label-total"}, AmountRules.Names())
	assert.Equal(t, []string{"label-company", "suffix-sl", "suffix-sa"}, VendorRules.Names())
	assert.Equal(t, []string{"label-fecha", "label-date", "numeric-dmy", "numeric-ymd", "textual"}, DateRules.Names())
}

func TestAmountRules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		wantRule string
		want     string
	}{
		{"Total: 45,99€", "label-currency", "45,99"},
		{"IMPORTE 12.50 $", "label-currency", "12.50"},
		{"Café con leche 3,20 €", "suffix-euro", "3,20"},
		{"Pagado € 7.99", "prefix-euro", "7.99"},
		{"TOTAL 120,00", "label-total", "120,00"},
		{"Café 3,20 €\nTotal: 45,99€", "label-currency", "45,99"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			v, rule, ok := AmountRules.First(tc.in)
			require.True(t, ok)
			assert.Equal(t, tc.wantRule, rule)
			assert.Equal(t, tc.want, v)
		})
	}

	_, ok := FindAmount("Precio 5 euros")
	assert.False(t, ok)
}

func TestVendorRules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		wantRule string
		want     string
	}{
		{"Empresa: Talleres Pérez S.L.\nCalle Mayor 3", "label-company", "Talleres Pérez S.L."},
		{"RAZÓN SOCIAL: Frutas Hernández\nNIF B1234", "label-company", "Frutas Hernández"},
		{"Construcciones Levante SL\nFactura 12", "suffix-sl", "Construcciones Levante SL"},
		{"ACME & Hijos S.A.\nCalle Luna 1", "suffix-sa", "ACME & Hijos S.A."},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			v, rule, ok := VendorRules.First(tc.in)
			require.True(t, ok)
			assert.Equal(t, tc.wantRule, rule)
			assert.Equal(t, tc.want, v)
		})
	}

	_, ok := FindVendor("ferretería sin sufijo\n12,00 €")
	assert.False(t, ok)
}

func TestFindConcept(t *testing.T) {
	t.Parallel()

	t.Run("skips dates amounts and short lines", func(t *testing.T) {
		t.Parallel()
		got, ok := FindConcept("05/08/2023\nTotal: 45,99€\nHola\nReparación de persianas\nOtra línea larga")
		require.True(t, ok)
		assert.Equal(t, "Reparación de persianas", got)
	})

	t.Run("skips digit-only lines", func(t *testing.T) {
		t.Parallel()
		got, ok := FindConcept("123 456 789 00\nSuscripción mensual")
		require.True(t, ok)
		assert.Equal(t, "Suscripción mensual", got)
	})

	t.Run("skips labeled date lines", func(t *testing.T) {
		t.Parallel()
		got, ok := FindConcept("Fecha de emisión pendiente\nServicio de limpieza")
		require.True(t, ok)
		assert.Equal(t, "Servicio de limpieza", got)
	})

	t.Run("none qualifies", func(t *testing.T) {
		t.Parallel()
		_, ok := FindConcept("corto\n10,00 €\n01/02/2024")
		assert.False(t, ok)
	})
}
