// =============================================================================
// NFS-e Tax Audit - Rule Validation
// =============================================================================
//
// Load-time checks for a RuleSet. Errors are collected, not returned on the
// first hit, so a broken rules file reports every problem in one run.
//
// CHECKS:
//   - every resolved output column has exactly one rule, of the right kind
//   - every rule has at least one fragment
//   - party columns carry the matching role
//   - the prestador and tomador vocabularies do not overlap
//   - no role rule lists a fragment containing an opposite-role term
//   - transform types are known and their parameters parse
//   - retention value sets do not overlap
//
// =============================================================================

package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

// ValidationError describes one problem in a rule table.
type ValidationError struct {
	// Field is the rule the problem belongs to, empty for table-wide problems.
	Field string

	// Check names the violated check.
	Check string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("rules: %s: %s", e.Check, e.Message)
	}
	return fmt.Sprintf("rules: field '%s': %s: %s", e.Field, e.Check, e.Message)
}

// partyRoles pins the party columns to their role.
var partyRoles = map[string]Role{
	types.FieldPrestadorCNPJ:  RolePrestador,
	types.FieldPrestadorRazao: RolePrestador,
	types.FieldTomadorCNPJ:    RoleTomador,
	types.FieldTomadorRazao:   RoleTomador,
}

// Validate checks a rule set and returns every problem combined with multierr.
// Use multierr.Errors to list them individually.
func Validate(rs *RuleSet) error {
	var errs error
	add := func(field, check, format string, args ...any) {
		errs = multierr.Append(errs, &ValidationError{
			Field:   field,
			Check:   check,
			Message: fmt.Sprintf(format, args...),
		})
	}

	// Roles.
	prest := NormalizeTerms(rs.Roles[RolePrestador])
	toma := NormalizeTerms(rs.Roles[RoleTomador])
	if len(prest) == 0 {
		add("", "roles", "no terms for role %q", RolePrestador)
	}
	if len(toma) == 0 {
		add("", "roles", "no terms for role %q", RoleTomador)
	}
	for _, p := range prest {
		for _, t := range toma {
			if strings.Contains(p, t) || strings.Contains(t, p) {
				add("", "roles", "prestador term %q overlaps tomador term %q", p, t)
			}
		}
	}
	for role := range rs.Roles {
		if role != RolePrestador && role != RoleTomador {
			add("", "roles", "unknown role %q", role)
		}
	}

	// Fields.
	seen := make(map[string]bool)
	for i := range rs.Fields {
		r := &rs.Fields[i]
		if r.Name == "" {
			add("", "field", "rule #%d has no name", i+1)
			continue
		}
		if seen[r.Name] {
			add(r.Name, "field", "duplicate rule")
			continue
		}
		seen[r.Name] = true

		col, ok := types.ColumnByName(r.Name)
		if !ok || !col.Resolved {
			add(r.Name, "field", "not a resolvable output column")
			continue
		}
		if r.Kind != col.Kind {
			add(r.Name, "kind", "kind %q, want %q", r.Kind, col.Kind)
		}
		if want, party := partyRoles[r.Name]; party && r.Role != want {
			add(r.Name, "role", "role %q, want %q", r.Role, want)
		}
		validateRule(rs, r, add)
		validateTransforms(r, add)
	}
	for _, col := range types.Columns {
		if col.Resolved && !seen[col.Name] {
			add(col.Name, "field", "missing rule")
		}
	}

	// Retention.
	flag := &rs.Retention.Flag
	validateRule(rs, &flag.FieldRule, add)
	if len(flag.TrueValues) == 0 || len(flag.FalseValues) == 0 {
		add(flag.Name, "retention", "true_values and false_values must both be set")
	}
	overlap(flag.Name, flag.TrueValues, flag.FalseValues, add)

	code := &rs.Retention.TypeCode
	validateRule(rs, &code.FieldRule, add)
	if len(code.Withheld) == 0 || len(code.NotWithheld) == 0 {
		add(code.Name, "retention", "withheld and not_withheld must both be set")
	}
	overlap(code.Name, code.Withheld, code.NotWithheld, add)

	return errs
}

func validateRule(rs *RuleSet, r *FieldRule, add func(field, check, format string, args ...any)) {
	frags := NormalizeTerms(r.Fragments)
	if len(frags) == 0 {
		add(r.Name, "fragments", "no fragments")
	}
	switch r.Role {
	case RoleNone:
		return
	case RolePrestador, RoleTomador:
	default:
		add(r.Name, "role", "unknown role %q", r.Role)
		return
	}
	opposite := NormalizeTerms(rs.Roles[r.Role.Opposite()])
	for _, f := range frags {
		for _, o := range opposite {
			if strings.Contains(f, o) {
				add(r.Name, "role", "fragment %q contains %s term %q", f, r.Role.Opposite(), o)
			}
		}
	}
}

func validateTransforms(r *FieldRule, add func(field, check, format string, args ...any)) {
	if len(r.Transforms) > 0 && r.Kind == types.KindMoney {
		add(r.Name, "transforms", "transforms apply to text fields only")
	}
	for _, t := range r.Transforms {
		if !KnownTransforms[t.Type] {
			add(r.Name, "transforms", "unknown transform %q", t.Type)
			continue
		}
		switch t.Type {
		case "truncate", "pad_zeros_to_length":
			if n, err := strconv.Atoi(t.Value); err != nil || n < 0 {
				add(r.Name, "transforms", "%s needs a non-negative length, got %q", t.Type, t.Value)
			}
		case "regex_replace":
			if _, err := regexp.Compile(t.Find); err != nil {
				add(r.Name, "transforms", "bad pattern %q: %v", t.Find, err)
			}
		case "replace":
			if t.Find == "" {
				add(r.Name, "transforms", "replace needs find")
			}
		}
	}
}

func overlap(field string, a, b []string, add func(field, check, format string, args ...any)) {
	set := make(map[string]bool)
	for _, v := range a {
		set[NormalizeValue(v)] = true
	}
	for _, v := range b {
		if set[NormalizeValue(v)] {
			add(field, "retention", "value %q is listed on both sides", v)
		}
	}
}
