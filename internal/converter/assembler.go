package converter

import (
	"github.com/ginjaninja78/nfse-tax-audit/internal/resolver"
	"github.com/ginjaninja78/nfse-tax-audit/internal/rules"
	"github.com/ginjaninja78/nfse-tax-audit/internal/tree"
	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

// Assembler builds one audit record from one flattened document.
type Assembler struct {
	rules        *rules.RuleSet
	transformer  *Transformer
	decimalComma bool
}

// NewAssembler prepares an Assembler for a compiled rule set. With
// decimalComma set, money values such as "1.234,56" are read in Brazilian
// notation when plain parsing fails.
func NewAssembler(rs *rules.RuleSet, decimalComma bool) (*Assembler, error) {
	t, err := NewTransformer(rs)
	if err != nil {
		return nil, err
	}
	return &Assembler{rules: rs, transformer: t, decimalComma: decimalComma}, nil
}

// Assemble fills every output column. It never fails: text fields without a
// match get the not-found text, money fields without a numeric match get
// zero, and ISS retention is zeroed when the document declares it was not
// withheld.
func (a *Assembler) Assemble(name string, fm tree.FlatMap) types.Record {
	ix := resolver.NewIndex(fm)
	rec := types.Record{Arquivo: name}

	for i := range a.rules.Fields {
		r := &a.rules.Fields[i]
		switch r.Kind {
		case types.KindMoney:
			if r.Name == types.FieldRetISS && !a.issWithheld(ix) {
				rec.SetAmount(r.Name, 0)
				continue
			}
			rec.SetAmount(r.Name, a.money(ix, r))
		default:
			v, ok := ix.Resolve(r)
			if !ok {
				rec.SetText(r.Name, a.rules.NotFound)
				continue
			}
			rec.SetText(r.Name, a.transformer.Transform(r.Name, v))
		}
	}

	rec.Diagnostico = types.Diagnose(rec.VlrBruto, rec.VlrLiquido)
	return rec
}

func (a *Assembler) money(ix *resolver.Index, r *rules.FieldRule) types.Money {
	v, ok := ix.Resolve(r)
	if !ok {
		return 0
	}
	m, ok := types.ParseMoney(v, a.decimalComma)
	if !ok {
		return 0
	}
	return m
}

// issWithheld decides whether the ISS retention amount should be read.
//
// A withheld type code or a true flag means yes. Otherwise a false flag or a
// not-withheld type code means no. With neither indicator present, or with
// unrecognized values, the amount is read as-is.
func (a *Assembler) issWithheld(ix *resolver.Index) bool {
	ret := &a.rules.Retention
	flag, _ := ix.Resolve(&ret.Flag.FieldRule)
	code, _ := ix.Resolve(&ret.TypeCode.FieldRule)
	flag, code = rules.NormalizeValue(flag), rules.NormalizeValue(code)

	switch {
	case in(code, ret.TypeCode.Withheld) || in(flag, ret.Flag.TrueValues):
		return true
	case in(flag, ret.Flag.FalseValues) || in(code, ret.TypeCode.NotWithheld):
		return false
	}
	return true
}

func in(v string, set []string) bool {
	if v == "" {
		return false
	}
	for _, s := range set {
		if rules.NormalizeValue(s) == v {
			return true
		}
	}
	return false
}
