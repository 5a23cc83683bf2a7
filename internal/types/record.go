package types

// =============================================================================
// CANONICAL COLUMNS
// =============================================================================

// Canonical field names. The order of Columns is the output column contract.
const (
	FieldArquivo        = "Arquivo"
	FieldNotaNumero     = "Nota_Numero"
	FieldDataEmissao    = "Data_Emissao"
	FieldPrestadorCNPJ  = "Prestador_CNPJ"
	FieldPrestadorRazao = "Prestador_Razao"
	FieldTomadorCNPJ    = "Tomador_CNPJ"
	FieldTomadorRazao   = "Tomador_Razao"
	FieldVlrBruto       = "Vlr_Bruto"
	FieldVlrLiquido     = "Vlr_Liquido"
	FieldISSValor       = "ISS_Valor"
	FieldRetISS         = "Ret_ISS"
	FieldRetPIS         = "Ret_PIS"
	FieldRetCOFINS      = "Ret_COFINS"
	FieldRetCSLL        = "Ret_CSLL"
	FieldRetIRRF        = "Ret_IRRF"
	FieldDescricao      = "Descricao"
	FieldDiagnostico    = "Diagnostico"
)

// Kind tells exporters and the assembler how a column is typed.
type Kind string

const (
	KindText  Kind = "text"
	KindMoney Kind = "money"
)

// Column describes one output column.
type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// Resolved is false for columns the assembler fills without a rule
	// (source file name and the diagnostic).
	Resolved bool `json:"resolved"`
}

// Columns is the fixed output column contract, in order.
var Columns = []Column{
	{Name: FieldArquivo, Kind: KindText},
	{Name: FieldNotaNumero, Kind: KindText, Resolved: true},
	{Name: FieldDataEmissao, Kind: KindText, Resolved: true},
	{Name: FieldPrestadorCNPJ, Kind: KindText, Resolved: true},
	{Name: FieldPrestadorRazao, Kind: KindText, Resolved: true},
	{Name: FieldTomadorCNPJ, Kind: KindText, Resolved: true},
	{Name: FieldTomadorRazao, Kind: KindText, Resolved: true},
	{Name: FieldVlrBruto, Kind: KindMoney, Resolved: true},
	{Name: FieldVlrLiquido, Kind: KindMoney, Resolved: true},
	{Name: FieldISSValor, Kind: KindMoney, Resolved: true},
	{Name: FieldRetISS, Kind: KindMoney, Resolved: true},
	{Name: FieldRetPIS, Kind: KindMoney, Resolved: true},
	{Name: FieldRetCOFINS, Kind: KindMoney, Resolved: true},
	{Name: FieldRetCSLL, Kind: KindMoney, Resolved: true},
	{Name: FieldRetIRRF, Kind: KindMoney, Resolved: true},
	{Name: FieldDescricao, Kind: KindText, Resolved: true},
	{Name: FieldDiagnostico, Kind: KindText},
}

// ColumnByName returns the column definition and whether it exists.
func ColumnByName(name string) (Column, bool) {
	for _, c := range Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// =============================================================================
// NORMALIZED RECORD
// =============================================================================

// Record is one normalized invoice row. Text fields never hold an empty
// "unresolved" value: the assembler writes the not-found sentinel instead.
type Record struct {
	Arquivo        string
	NotaNumero     string
	DataEmissao    string
	PrestadorCNPJ  string
	PrestadorRazao string
	TomadorCNPJ    string
	TomadorRazao   string
	VlrBruto       Money
	VlrLiquido     Money
	ISSValor       Money
	RetISS         Money
	RetPIS         Money
	RetCOFINS      Money
	RetCSLL        Money
	RetIRRF        Money
	Descricao      string
	Diagnostico    Diagnostic
}

// Text returns a text column value.
func (r *Record) Text(name string) (string, bool) {
	switch name {
	case FieldArquivo:
		return r.Arquivo, true
	case FieldNotaNumero:
		return r.NotaNumero, true
	case FieldDataEmissao:
		return r.DataEmissao, true
	case FieldPrestadorCNPJ:
		return r.PrestadorCNPJ, true
	case FieldPrestadorRazao:
		return r.PrestadorRazao, true
	case FieldTomadorCNPJ:
		return r.TomadorCNPJ, true
	case FieldTomadorRazao:
		return r.TomadorRazao, true
	case FieldDescricao:
		return r.Descricao, true
	case FieldDiagnostico:
		return r.Diagnostico.String(), true
	}
	return "", false
}

// Amount returns a money column value.
func (r *Record) Amount(name string) (Money, bool) {
	switch name {
	case FieldVlrBruto:
		return r.VlrBruto, true
	case FieldVlrLiquido:
		return r.VlrLiquido, true
	case FieldISSValor:
		return r.ISSValor, true
	case FieldRetISS:
		return r.RetISS, true
	case FieldRetPIS:
		return r.RetPIS, true
	case FieldRetCOFINS:
		return r.RetCOFINS, true
	case FieldRetCSLL:
		return r.RetCSLL, true
	case FieldRetIRRF:
		return r.RetIRRF, true
	}
	return 0, false
}

// SetText assigns a text column. Unknown names are ignored and reported.
func (r *Record) SetText(name, value string) bool {
	switch name {
	case FieldArquivo:
		r.Arquivo = value
	case FieldNotaNumero:
		r.NotaNumero = value
	case FieldDataEmissao:
		r.DataEmissao = value
	case FieldPrestadorCNPJ:
		r.PrestadorCNPJ = value
	case FieldPrestadorRazao:
		r.PrestadorRazao = value
	case FieldTomadorCNPJ:
		r.TomadorCNPJ = value
	case FieldTomadorRazao:
		r.TomadorRazao = value
	case FieldDescricao:
		r.Descricao = value
	default:
		return false
	}
	return true
}

// SetAmount assigns a money column. Unknown names are ignored and reported.
func (r *Record) SetAmount(name string, value Money) bool {
	switch name {
	case FieldVlrBruto:
		r.VlrBruto = value
	case FieldVlrLiquido:
		r.VlrLiquido = value
	case FieldISSValor:
		r.ISSValor = value
	case FieldRetISS:
		r.RetISS = value
	case FieldRetPIS:
		r.RetPIS = value
	case FieldRetCOFINS:
		r.RetCOFINS = value
	case FieldRetCSLL:
		r.RetCSLL = value
	case FieldRetIRRF:
		r.RetIRRF = value
	default:
		return false
	}
	return true
}

// Values returns the record as one cell per column, in column order.
// Money columns are float64, everything else is a string.
func (r *Record) Values() []any {
	out := make([]any, 0, len(Columns))
	for _, c := range Columns {
		if c.Kind == KindMoney {
			m, _ := r.Amount(c.Name)
			out = append(out, m.Float())
			continue
		}
		s, _ := r.Text(c.Name)
		out = append(out, s)
	}
	return out
}

// Strings returns the record as display strings, in column order.
func (r *Record) Strings() []string {
	out := make([]string, 0, len(Columns))
	for _, c := range Columns {
		if c.Kind == KindMoney {
			m, _ := r.Amount(c.Name)
			out = append(out, m.String())
			continue
		}
		s, _ := r.Text(c.Name)
		out = append(out, s)
	}
	return out
}

// =============================================================================
// NORMALIZED TABLE
// =============================================================================

// Skip records an input that contributed no record.
type Skip struct {
	Name   string
	Reason error
}

// Table is the ordered batch output.
type Table struct {
	// Records holds one record per successfully parsed document, in input order.
	Records []Record

	// Skipped lists documents and archives that contributed nothing.
	Skipped []Skip
}

// Processed returns the number of records produced.
func (t *Table) Processed() int {
	return len(t.Records)
}

// SkippedCount returns the number of skipped inputs.
func (t *Table) SkippedCount() int {
	return len(t.Skipped)
}

// PrependSkipped puts skips found before parsing ahead of the table's own.
// The table gets a fresh slice; skips is never written to.
func (t *Table) PrependSkipped(skips []Skip) {
	merged := make([]Skip, 0, len(skips)+len(t.Skipped))
	merged = append(merged, skips...)
	t.Skipped = append(merged, t.Skipped...)
}
