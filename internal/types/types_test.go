package types

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in           string
		decimalComma bool
		want         Money
		ok           bool
	}{
		{"1000.00", false, 100000, true},
		{" 950.5 ", false, 95050, true},
		{"-12.34", false, -1234, true},
		{"", false, 0, false},
		{"abc", false, 0, false},
		{"1.234,56", false, 0, false},
		{"1.234,56", true, 123456, true},
		{"1234,5", true, 123450, true},
		{"NaN", false, 0, false},
		{"Inf", false, 0, false},
		{"1e16", false, 1_000_000_000_000_000_000, true},
		{"95000000000000000", false, 0, false},
		{"-95000000000000000", false, 0, false},
		{"1e300", false, 0, false},
		{"95.000.000.000.000.000,00", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q/%v", tt.in, tt.decimalComma), func(t *testing.T) {
			got, ok := ParseMoney(tt.in, tt.decimalComma)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "0.00", Money(0).String())
	assert.Equal(t, "1000.00", Money(100000).String())
	assert.Equal(t, "-0.05", Money(-5).String())
	assert.Equal(t, 12.34, Money(1234).Float())
	assert.Equal(t, "-92233720368547758.08", Money(math.MinInt64).String())
	assert.Equal(t, "92233720368547758.07", Money(math.MaxInt64).String())
}

func TestDiagnoseOutOfRangeAmounts(t *testing.T) {
	gross, ok := ParseMoney("95000000000000000", false)
	assert.False(t, ok)
	net, ok := ParseMoney("-95000000000000000", false)
	assert.False(t, ok)
	assert.Equal(t, "0.00", gross.String())
	assert.Equal(t, Clean, Diagnose(gross, net))

	assert.Equal(t, Divergent, Diagnose(MaxMoney, -MaxMoney))
}

func TestDiagnose(t *testing.T) {
	assert.Equal(t, Divergent, Diagnose(100000, 95000))
	assert.Equal(t, Clean, Diagnose(100000, 100000))
	assert.Equal(t, Clean, Diagnose(100001, 100000), "difference equal to tolerance is clean")
	assert.Equal(t, Divergent, Diagnose(100000, 100002))
	assert.Equal(t, "✅", Clean.String())
}

func TestRecordValuesFollowColumnOrder(t *testing.T) {
	r := Record{Arquivo: "a.xml", VlrBruto: 12345, Diagnostico: Divergent}
	vals := r.Values()
	assert.Len(t, vals, len(Columns))
	assert.Equal(t, "a.xml", vals[0])
	assert.Equal(t, 123.45, vals[7])
	assert.Equal(t, Divergent.String(), vals[len(vals)-1])

	strs := r.Strings()
	assert.Equal(t, "123.45", strs[7])
	assert.Equal(t, "0.00", strs[8])
}

func TestRecordSetters(t *testing.T) {
	var r Record
	assert.True(t, r.SetText(FieldTomadorRazao, "Beta SA"))
	assert.False(t, r.SetText(FieldVlrBruto, "1"))
	assert.True(t, r.SetAmount(FieldRetIRRF, 150))
	assert.False(t, r.SetAmount(FieldDescricao, 1))
	assert.Equal(t, "Beta SA", r.TomadorRazao)
	assert.Equal(t, Money(150), r.RetIRRF)
}

func TestDocumentErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("batch: %w", &DocumentError{Name: "x.xml", Err: ErrMalformedDocument})
	assert.True(t, errors.Is(err, ErrMalformedDocument))

	var de *DocumentError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, "x.xml", de.Name)
}

func TestPrependSkippedDoesNotAlias(t *testing.T) {
	backing := make([]Skip, 1, 4)
	backing[0] = Skip{Name: "lote.zip/a.pdf", Reason: ErrArchive}
	spare := backing[:2]

	table := Table{Skipped: []Skip{{Name: "b.xml", Reason: ErrMalformedDocument}}}
	table.PrependSkipped(backing)

	assert.Equal(t, []string{"lote.zip/a.pdf", "b.xml"}, []string{table.Skipped[0].Name, table.Skipped[1].Name})
	assert.Equal(t, Skip{}, spare[1])

	table.Skipped[0].Name = "changed"
	assert.Equal(t, "lote.zip/a.pdf", backing[0].Name)
}
