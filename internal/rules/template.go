// =============================================================================
// NFS-e Tax Audit - XLSX Rule Template
// =============================================================================
//
// Fiscal analysts maintain tag equivalences in a spreadsheet. This file reads
// and writes that spreadsheet form of a RuleSet.
//
// TEMPLATE STRUCTURE:
//
//   Sheet "Fields" (required), one row per output column:
//
//   | Column A       | Column B | Column C  | Column D            | Column E | Column F         | Column G                  |
//   |----------------|----------|-----------|---------------------|----------|------------------|---------------------------|
//   | Field          | Kind     | Role      | Fragments           | Require  | Exclude          | Transforms                |
//   | Prestador_CNPJ | text     | prestador | _cnpj_;cnpjprestador|          | intermediario    |                           |
//   | Descricao      | text     |           | _discriminacao_     |          |                  | normalize_whitespace;truncate=500 |
//
//   List cells are separated by ";". A transform is "type", "type=value" or,
//   for replace and regex_replace, "type=find=>value".
//
//   Sheet "Settings" (optional), key/value rows:
//
//   | Key                           | Value                    |
//   |-------------------------------|--------------------------|
//   | version                       | 2024.1                   |
//   | not_found                     | NÃO ENCONTRADO           |
//   | role.prestador                | prestador;_prest_;_emit_ |
//   | role.tomador                  | tomador;_toma_           |
//   | address_blocklist             | endereco;_cep_;bairro    |
//   | retention.flag.fragments      | _issretido_              |
//   | retention.flag.true_values    | true;1;sim               |
//   | retention.flag.false_values   | false;2;nao              |
//   | retention.type_code.fragments | _tpretissqn_             |
//   | retention.type_code.withheld  | 2                        |
//   | retention.type_code.not_withheld | 1                     |
//
//   Settings that are absent keep the built-in values.
//
// =============================================================================

package rules

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

const (
	FieldsSheet   = "Fields"
	SettingsSheet = "Settings"

	listSeparator = ";"
	replaceArrow  = "=>"
)

// TemplateColumns defines which columns of the Fields sheet hold which data.
// Column indices are 0-based (A=0, B=1, ...).
type TemplateColumns struct {
	FieldColumn      int
	KindColumn       int
	RoleColumn       int
	FragmentsColumn  int
	RequireColumn    int
	ExcludeColumn    int
	TransformsColumn int

	// DataStartRow is the first row holding a rule (0-based).
	DataStartRow int
}

// DefaultTemplateColumns returns the layout written by WriteTemplate.
func DefaultTemplateColumns() TemplateColumns {
	return TemplateColumns{
		FieldColumn:      0, // Column A
		KindColumn:       1, // Column B
		RoleColumn:       2, // Column C
		FragmentsColumn:  3, // Column D
		RequireColumn:    4, // Column E
		ExcludeColumn:    5, // Column F
		TransformsColumn: 6, // Column G
		DataStartRow:     1, // Row 2
	}
}

var templateHeader = []any{"Field", "Kind", "Role", "Fragments", "Require", "Exclude", "Transforms"}

// =============================================================================
// READING
// =============================================================================

// LoadTemplate reads an XLSX rule template, then validates and compiles it.
func LoadTemplate(path string) (*RuleSet, error) {
	return LoadTemplateWithConfig(path, DefaultTemplateColumns())
}

// LoadTemplateWithConfig reads an XLSX rule template with a custom layout.
//
// PARAMETERS:
//   - path: The path to the XLSX template file.
//   - columns: The column layout of the Fields sheet.
//
// RETURNS:
//   - The compiled RuleSet.
//   - An error if the file cannot be read or the rules do not validate.
func LoadTemplateWithConfig(path string, columns TemplateColumns) (*RuleSet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template file: %w", err)
	}
	defer f.Close()

	base, err := Default()
	if err != nil {
		return nil, err
	}
	rs := &RuleSet{
		Version:          base.Version,
		NotFound:         base.NotFound,
		Roles:            base.Roles,
		AddressBlocklist: base.AddressBlocklist,
		Retention:        base.Retention,
	}

	idx, err := f.GetSheetIndex(FieldsSheet)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to look up %q sheet: %w", path, FieldsSheet, err)
	}
	if idx < 0 {
		return nil, fmt.Errorf("%s: template has no %q sheet", path, FieldsSheet)
	}
	rows, err := f.GetRows(FieldsSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	for i := columns.DataStartRow; i < len(rows); i++ {
		row := rows[i]
		if isRowEmpty(row) {
			continue
		}
		rule, err := parseFieldRow(row, columns)
		if err != nil {
			return nil, fmt.Errorf("%s: error parsing row %d: %w", path, i+1, err)
		}
		rs.Fields = append(rs.Fields, rule)
	}

	idx, err = f.GetSheetIndex(SettingsSheet)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to look up %q sheet: %w", path, SettingsSheet, err)
	}
	if idx >= 0 {
		rows, err := f.GetRows(SettingsSheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
		for i, row := range rows {
			if isRowEmpty(row) || len(row) < 2 {
				continue
			}
			key := strings.ToLower(strings.TrimSpace(row[0]))
			if i == 0 && key == "key" {
				continue
			}
			if err := applySetting(rs, key, strings.TrimSpace(row[1])); err != nil {
				return nil, fmt.Errorf("%s: settings row %d: %w", path, i+1, err)
			}
		}
	}

	rs, err = finish(rs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// parseFieldRow extracts a FieldRule from a single row.
func parseFieldRow(row []string, columns TemplateColumns) (FieldRule, error) {
	getCell := func(index int) string {
		if index < len(row) {
			return strings.TrimSpace(row[index])
		}
		return ""
	}

	rule := FieldRule{
		Name:      getCell(columns.FieldColumn),
		Kind:      normalizeKind(getCell(columns.KindColumn)),
		Role:      Role(strings.ToLower(getCell(columns.RoleColumn))),
		Fragments: splitList(getCell(columns.FragmentsColumn)),
		Require:   splitList(getCell(columns.RequireColumn)),
		Exclude:   splitList(getCell(columns.ExcludeColumn)),
	}
	for _, spec := range splitList(getCell(columns.TransformsColumn)) {
		t, err := parseTransform(spec)
		if err != nil {
			return rule, err
		}
		rule.Transforms = append(rule.Transforms, t)
	}
	return rule, nil
}

func applySetting(rs *RuleSet, key, value string) error {
	switch key {
	case "version":
		rs.Version = value
	case "not_found":
		rs.NotFound = value
	case "role.prestador":
		rs.Roles = withRole(rs.Roles, RolePrestador, splitList(value))
	case "role.tomador":
		rs.Roles = withRole(rs.Roles, RoleTomador, splitList(value))
	case "address_blocklist":
		rs.AddressBlocklist = splitList(value)
	case "retention.flag.fragments":
		rs.Retention.Flag.Fragments = splitList(value)
	case "retention.flag.true_values":
		rs.Retention.Flag.TrueValues = splitList(value)
	case "retention.flag.false_values":
		rs.Retention.Flag.FalseValues = splitList(value)
	case "retention.type_code.fragments":
		rs.Retention.TypeCode.Fragments = splitList(value)
	case "retention.type_code.withheld":
		rs.Retention.TypeCode.Withheld = splitList(value)
	case "retention.type_code.not_withheld":
		rs.Retention.TypeCode.NotWithheld = splitList(value)
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func withRole(roles map[Role][]string, role Role, terms []string) map[Role][]string {
	out := make(map[Role][]string, len(roles))
	for k, v := range roles {
		out[k] = v
	}
	out[role] = terms
	return out
}

// parseTransform reads "type", "type=value" or "type=find=>value".
func parseTransform(spec string) (Transform, error) {
	name, arg, _ := strings.Cut(spec, "=")
	t := Transform{Type: strings.ToLower(strings.TrimSpace(name))}
	if t.Type == "" {
		return t, fmt.Errorf("empty transform in %q", spec)
	}
	switch t.Type {
	case "replace", "regex_replace":
		find, value, ok := strings.Cut(arg, replaceArrow)
		if !ok {
			return t, fmt.Errorf("%s needs find%svalue, got %q", t.Type, replaceArrow, arg)
		}
		t.Find, t.Value = find, value
	default:
		t.Value = strings.TrimSpace(arg)
	}
	return t, nil
}

func formatTransform(t Transform) string {
	switch {
	case t.Find != "":
		return t.Type + "=" + t.Find + replaceArrow + t.Value
	case t.Value != "":
		return t.Type + "=" + t.Value
	}
	return t.Type
}

// =============================================================================
// WRITING
// =============================================================================

// WriteTemplate saves a rule set as an XLSX template that LoadTemplate reads
// back to an equivalent rule set.
func WriteTemplate(rs *RuleSet, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), FieldsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(FieldsSheet, "A1", &templateHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, r := range rs.Fields {
		transforms := make([]string, 0, len(r.Transforms))
		for _, t := range r.Transforms {
			transforms = append(transforms, formatTransform(t))
		}
		row := []any{
			r.Name,
			string(r.Kind),
			string(r.Role),
			joinList(r.Fragments),
			joinList(r.Require),
			joinList(r.Exclude),
			joinList(transforms),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(FieldsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write rule %s: %w", r.Name, err)
		}
	}

	if _, err := f.NewSheet(SettingsSheet); err != nil {
		return fmt.Errorf("failed to add settings sheet: %w", err)
	}
	settings := [][]any{
		{"Key", "Value"},
		{"version", rs.Version},
		{"not_found", rs.NotFound},
		{"role.prestador", joinList(rs.Roles[RolePrestador])},
		{"role.tomador", joinList(rs.Roles[RoleTomador])},
		{"address_blocklist", joinList(rs.AddressBlocklist)},
		{"retention.flag.fragments", joinList(rs.Retention.Flag.Fragments)},
		{"retention.flag.true_values", joinList(rs.Retention.Flag.TrueValues)},
		{"retention.flag.false_values", joinList(rs.Retention.Flag.FalseValues)},
		{"retention.type_code.fragments", joinList(rs.Retention.TypeCode.Fragments)},
		{"retention.type_code.withheld", joinList(rs.Retention.TypeCode.Withheld)},
		{"retention.type_code.not_withheld", joinList(rs.Retention.TypeCode.NotWithheld)},
	}
	for i, row := range settings {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SettingsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write settings: %w", err)
		}
	}
	_ = f.SetColWidth(FieldsSheet, "A", "G", 24)
	_ = f.SetColWidth(SettingsSheet, "A", "B", 34)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func splitList(cell string) []string {
	var out []string
	for _, part := range strings.Split(cell, listSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinList(items []string) string {
	return strings.Join(items, listSeparator)
}

// normalizeKind accepts the spreadsheet spellings analysts tend to use.
func normalizeKind(value string) types.Kind {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "money", "decimal", "currency", "valor", "moeda":
		return types.KindMoney
	case "", "text", "string", "texto":
		return types.KindText
	}
	return types.Kind(value)
}
