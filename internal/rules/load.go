package rules

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Default returns the built-in rule table.
func Default() (*RuleSet, error) {
	rs, err := Parse(defaultRules)
	if err != nil {
		return nil, fmt.Errorf("built-in rules: %w", err)
	}
	return rs, nil
}

// Load reads a rule table from a YAML file or an XLSX template, chosen by
// extension. An empty path returns the built-in table.
func Load(path string) (*RuleSet, error) {
	if path == "" {
		return Default()
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return LoadTemplate(path)
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rules file: %w", err)
		}
		rs, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unsupported rules file extension %q (use .yaml, .yml or .xlsx)", filepath.Ext(path))
	}
}

// Parse decodes a YAML rule table, then validates and compiles it. Unknown
// keys are rejected so typos in field options do not go unnoticed.
func Parse(data []byte) (*RuleSet, error) {
	var rs RuleSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("rules file is empty")
		}
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return finish(&rs)
}

func finish(rs *RuleSet) (*RuleSet, error) {
	rs.applyDefaults()
	if err := Validate(rs); err != nil {
		return nil, err
	}
	rs.Compile()
	return rs, nil
}

// Dump writes the rule table as YAML.
func (rs *RuleSet) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rs); err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	return enc.Close()
}
