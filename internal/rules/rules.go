// =============================================================================
// NFS-e Tax Audit - Rule Tables
// =============================================================================
//
// This package holds the declarative tag-equivalence tables: one FieldRule per
// canonical output field, plus the role vocabularies, the address blocklist
// and the ISS retention flags.
//
// RULE SOURCES:
//   1. Embedded default (default_rules.yaml), used when no rules file is set
//   2. External YAML file with the same layout
//   3. XLSX rule template (see template.go)
//
// Every source goes through Validate and Compile before use, so a rule update
// that breaks the prestador/tomador disjointness fails at load time instead
// of silently assigning a supplier value to the client column.
//
// =============================================================================

package rules

import (
	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

// DefaultNotFound is the text written for unresolved text fields.
const DefaultNotFound = "NÃO ENCONTRADO"

// =============================================================================
// ROLES
// =============================================================================

// Role scopes a rule to the supplier or the client side of an invoice.
type Role string

const (
	RoleNone      Role = ""
	RolePrestador Role = "prestador"
	RoleTomador   Role = "tomador"
)

// Opposite returns the paired role, or RoleNone.
func (r Role) Opposite() Role {
	switch r {
	case RolePrestador:
		return RoleTomador
	case RoleTomador:
		return RolePrestador
	}
	return RoleNone
}

// =============================================================================
// FIELD RULES
// =============================================================================

// Transform is a post-resolution value transformation applied to text fields.
type Transform struct {
	// Type names the transformation (see KnownTransforms).
	Type string `yaml:"type"`

	// Value is the transformation parameter (length, layout, replacement).
	Value string `yaml:"value,omitempty"`

	// Find is the substring or pattern for replace and regex_replace.
	Find string `yaml:"find,omitempty"`
}

// KnownTransforms lists the transformation types the converter implements.
var KnownTransforms = map[string]bool{
	"trim":                 true,
	"uppercase":            true,
	"lowercase":            true,
	"extract_digits":       true,
	"normalize_whitespace": true,
	"truncate":             true,
	"format_date":          true,
	"replace":              true,
	"regex_replace":        true,
	"prepend_string":       true,
	"append_string":        true,
	"pad_zeros_to_length":  true,
}

// FieldRule maps one canonical field onto source key fragments.
type FieldRule struct {
	// Name is the canonical field (output column) name.
	Name string `yaml:"name"`

	// Kind selects coercion and default: text or money.
	Kind types.Kind `yaml:"kind"`

	// Role restricts the rule to supplier or client keys.
	Role Role `yaml:"role,omitempty"`

	// Fragments are matched as substrings of the normalized key, in priority order.
	Fragments []string `yaml:"fragments"`

	// Require lists terms a key must all contain.
	Require []string `yaml:"require,omitempty"`

	// Exclude lists terms a key must not contain. The address blocklist is
	// always added on top.
	Exclude []string `yaml:"exclude,omitempty"`

	// Transforms are applied, in order, to resolved text values.
	Transforms []Transform `yaml:"transforms,omitempty"`

	// Matcher holds the compiled, normalized form. It is filled by Compile.
	Matcher Matcher `yaml:"-"`
}

// Matcher is the normalized form the resolver evaluates.
type Matcher struct {
	Fragments []string
	Require   []string
	Exclude   []string

	// Own requires at least one term; Opposite forbids all of them.
	Own      []string
	Opposite []string
}

// =============================================================================
// RETENTION
// =============================================================================

// FlagRule resolves the boolean-like "ISS withheld" indicator.
type FlagRule struct {
	FieldRule   `yaml:",inline"`
	TrueValues  []string `yaml:"true_values"`
	FalseValues []string `yaml:"false_values"`
}

// CodeRule resolves the numeric "withholding type" indicator.
type CodeRule struct {
	FieldRule   `yaml:",inline"`
	Withheld    []string `yaml:"withheld"`
	NotWithheld []string `yaml:"not_withheld"`
}

// Retention groups the two retention indicators.
type Retention struct {
	Flag     FlagRule `yaml:"flag"`
	TypeCode CodeRule `yaml:"type_code"`
}

// =============================================================================
// RULE SET
// =============================================================================

// RuleSet is the complete, versioned rule table.
type RuleSet struct {
	Version          string            `yaml:"version"`
	NotFound         string            `yaml:"not_found"`
	Roles            map[Role][]string `yaml:"roles"`
	AddressBlocklist []string          `yaml:"address_blocklist"`
	Retention        Retention         `yaml:"retention"`
	Fields           []FieldRule       `yaml:"fields"`
}

// Field returns the rule for a canonical field, or nil.
func (rs *RuleSet) Field(name string) *FieldRule {
	for i := range rs.Fields {
		if rs.Fields[i].Name == name {
			return &rs.Fields[i]
		}
	}
	return nil
}

// applyDefaults fills optional settings.
func (rs *RuleSet) applyDefaults() {
	if rs.NotFound == "" {
		rs.NotFound = DefaultNotFound
	}
	if rs.Retention.Flag.Name == "" {
		rs.Retention.Flag.Name = "ISSRetido"
	}
	if rs.Retention.TypeCode.Name == "" {
		rs.Retention.TypeCode.Name = "tpRetISSQN"
	}
	rs.Retention.Flag.Kind = types.KindText
	rs.Retention.TypeCode.Kind = types.KindText
	for i := range rs.Fields {
		if rs.Fields[i].Kind == "" {
			rs.Fields[i].Kind = types.KindText
		}
	}
}

// Compile normalizes every rule into its Matcher. It must run after Validate.
func (rs *RuleSet) Compile() {
	blocklist := NormalizeTerms(rs.AddressBlocklist)
	compile := func(r *FieldRule) {
		r.Matcher = Matcher{
			Fragments: NormalizeTerms(r.Fragments),
			Require:   NormalizeTerms(r.Require),
			Exclude:   append(NormalizeTerms(r.Exclude), blocklist...),
		}
		if r.Role != RoleNone {
			r.Matcher.Own = NormalizeTerms(rs.Roles[r.Role])
			r.Matcher.Opposite = NormalizeTerms(rs.Roles[r.Role.Opposite()])
		}
	}
	for i := range rs.Fields {
		compile(&rs.Fields[i])
	}
	compile(&rs.Retention.Flag.FieldRule)
	compile(&rs.Retention.TypeCode.FieldRule)
}
