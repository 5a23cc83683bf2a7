// =============================================================================
// NFS-e Tax Audit - Transformation Engine
// =============================================================================
//
// Post-resolution transformations for text fields. Each FieldRule may list a
// chain of transforms that runs, in order, on the resolved value before it
// is written to the record. The not-found sentinel is never transformed.
//
// TRANSFORMATION TYPES:
//   - String manipulations (trim, case, prepend, append, replace, regex)
//   - Cleanup (extract_digits, normalize_whitespace, truncate)
//   - Padding (pad_zeros_to_length)
//   - Date conversion (format_date)
//
// Regular expressions are compiled once when the Transformer is built, so a
// bad pattern fails at startup instead of per document.
//
// =============================================================================

package converter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/ginjaninja78/nfse-tax-audit/internal/rules"
)

// =============================================================================
// TRANSFORMER
// =============================================================================

// Transformer applies the transform chains of a rule set.
type Transformer struct {
	chains map[string][]compiledTransform
}

type compiledTransform struct {
	rules.Transform
	re *regexp.Regexp
}

// NewTransformer compiles the transform chains of every field in rs.
//
// RETURNS:
//   - The Transformer.
//   - An error if a transform type is unknown or a pattern does not compile.
func NewTransformer(rs *rules.RuleSet) (*Transformer, error) {
	t := &Transformer{chains: make(map[string][]compiledTransform)}
	for _, r := range rs.Fields {
		for _, tr := range r.Transforms {
			if !rules.KnownTransforms[tr.Type] {
				return nil, fmt.Errorf("field '%s': unknown transformation type: %s", r.Name, tr.Type)
			}
			ct := compiledTransform{Transform: tr}
			if tr.Type == "regex_replace" {
				re, err := regexp.Compile(tr.Find)
				if err != nil {
					return nil, fmt.Errorf("field '%s': invalid regex pattern: %w", r.Name, err)
				}
				ct.re = re
			}
			t.chains[r.Name] = append(t.chains[r.Name], ct)
		}
	}
	return t, nil
}

// Transform applies the chain configured for field. Fields without a chain
// are returned unchanged.
func (t *Transformer) Transform(field, value string) string {
	for _, ct := range t.chains[field] {
		value = ct.apply(value)
	}
	return value
}

// Apply runs a single transform outside of any rule set.
func Apply(value string, tr rules.Transform) (string, error) {
	ct := compiledTransform{Transform: tr}
	switch {
	case !rules.KnownTransforms[tr.Type]:
		return "", fmt.Errorf("unknown transformation type: %s", tr.Type)
	case tr.Type == "regex_replace":
		re, err := regexp.Compile(tr.Find)
		if err != nil {
			return "", fmt.Errorf("invalid regex pattern: %w", err)
		}
		ct.re = re
	}
	return ct.apply(value), nil
}

// =============================================================================
// TRANSFORMATION FUNCTIONS
// =============================================================================

func (ct compiledTransform) apply(value string) string {
	switch ct.Type {

	// =========================================================================
	// STRING MANIPULATIONS
	// =========================================================================

	case "trim":
		return strings.TrimSpace(value)

	case "uppercase":
		return strings.ToUpper(value)

	case "lowercase":
		return strings.ToLower(value)

	case "prepend_string":
		return ct.Value + value

	case "append_string":
		return value + ct.Value

	case "replace":
		// Example: "12.345.678/0001-90" with find "." and value "" becomes "12345678/0001-90"
		if ct.Find == "" {
			return value
		}
		return strings.ReplaceAll(value, ct.Find, ct.Value)

	case "regex_replace":
		if ct.re == nil {
			return value
		}
		return ct.re.ReplaceAllString(value, ct.Value)

	// =========================================================================
	// CLEANUP
	// =========================================================================

	case "extract_digits":
		// Example: "12.345.678/0001-90" becomes "12345678000190"
		return strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, value)

	case "normalize_whitespace":
		// Discriminacao fields often carry line breaks and tab runs.
		return strings.Join(strings.FieldsFunc(value, unicode.IsSpace), " ")

	case "truncate":
		n, err := strconv.Atoi(ct.Value)
		if err != nil || n < 0 {
			return value
		}
		runes := []rune(value)
		if len(runes) <= n {
			return value
		}
		return string(runes[:n])

	// =========================================================================
	// PADDING
	// =========================================================================

	case "pad_zeros_to_length":
		// Example: "123" with length 6 becomes "000123"
		n, err := strconv.Atoi(ct.Value)
		if err != nil || n <= 0 {
			return value
		}
		return PadLeft(value, n, '0')

	// =========================================================================
	// DATE CONVERSION
	// =========================================================================

	case "format_date":
		// VALUE FORMAT: "output" or "input|output", Go layouts.
		// Example: "2024-03-05T10:00:00-03:00" with "02/01/2006" becomes "05/03/2024"
		return formatDate(value, ct.Value)
	}
	return value
}

// dateLayouts are the emission date formats seen across NFS-e layouts.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

func formatDate(value, spec string) string {
	in, out, ok := strings.Cut(spec, "|")
	if !ok {
		in, out = "", spec
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return value
	}

	layouts := dateLayouts
	if in = strings.TrimSpace(in); in != "" {
		layouts = []string{in}
	}
	v := strings.TrimSpace(value)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(out)
		}
	}
	return value
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// PadLeft pads a string with a character on the left to reach the target
// length, counted in runes.
func PadLeft(s string, length int, padChar rune) string {
	n := len([]rune(s))
	if n >= length {
		return s
	}
	return strings.Repeat(string(padChar), length-n) + s
}
