// =============================================================================
// NFS-e Tax Audit - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - converter (record assembly and batch aggregation)
//   - source    (archive/file collaborator)
//   - export    (XLSX, CSV and XML writers)
//   - server    (HTTP upload surface)
//
// =============================================================================

package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// =============================================================================
// RAW DOCUMENTS
// =============================================================================

// RawDocument is a named byte blob handed over by the archive/file collaborator.
// It is consumed once by the tree decoder and not retained afterwards.
type RawDocument struct {
	// Name is the source file name (entry name when recovered from an archive).
	Name string

	// Content is the undecoded document body.
	Content []byte
}

// =============================================================================
// MONEY
// =============================================================================

// Money is a monetary amount in centavos.
type Money int64

// MaxMoney bounds the magnitude of any parsed amount so that the difference
// of two amounts always fits in an int64.
const MaxMoney Money = math.MaxInt64 / 2

// MoneyFromFloat rounds f to the nearest centavo. Non-finite values and
// values beyond MaxMoney become zero.
func MoneyFromFloat(f float64) Money {
	m, _ := moneyFromFloat(f)
	return m
}

func moneyFromFloat(f float64) (Money, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	cents := math.Round(f * 100)
	if math.Abs(cents) >= float64(MaxMoney) {
		return 0, false
	}
	return Money(cents), true
}

// ParseMoney coerces text to Money.
//
// The default is permissive but lossy: anything strconv.ParseFloat rejects,
// or anything out of range, becomes 0.00 and ok is false. With decimalComma
// set, values written as "1.234,56" or "1234,56" are accepted as well.
func ParseMoney(s string, decimalComma bool) (m Money, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return moneyFromFloat(f)
	}
	if !decimalComma || !strings.Contains(s, ",") {
		return 0, false
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return moneyFromFloat(f)
}

// Float returns the amount in currency units.
func (m Money) Float() float64 {
	return float64(m) / 100
}

// String formats the amount with exactly two decimals and a dot separator.
func (m Money) String() string {
	sign := ""
	v := uint64(m)
	if m < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Abs returns the absolute amount.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// =============================================================================
// DIAGNOSTIC
// =============================================================================

// Diagnostic flags gross/net divergence on a record.
type Diagnostic int

const (
	// Clean means gross and net agree within the rounding tolerance.
	Clean Diagnostic = iota

	// Divergent means gross and net differ by more than the tolerance,
	// which usually points at withholding worth a manual review.
	Divergent
)

// DivergenceTolerance is the largest gross/net difference still considered clean.
const DivergenceTolerance Money = 1

// Diagnose compares gross and net values.
func Diagnose(gross, net Money) Diagnostic {
	if (gross - net).Abs() > DivergenceTolerance {
		return Divergent
	}
	return Clean
}

func (d Diagnostic) String() string {
	if d == Divergent {
		return "⚠️ Divergência!"
	}
	return "✅"
}
