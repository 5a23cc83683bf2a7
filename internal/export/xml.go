package export

// =============================================================================
// XML OUTPUT
// =============================================================================
//
//   <?xml version="1.0" encoding="UTF-8"?>
//   <auditoria processados="2" ignorados="1">
//     <nota n="1">
//       <Arquivo>nota1.xml</Arquivo>
//       <Nota_Numero>101</Nota_Numero>
//       ...
//       <Vlr_Bruto>1000.00</Vlr_Bruto>
//       <Diagnostico>✅</Diagnostico>
//     </nota>
//     <ignorados>
//       <arquivo motivo="malformed document">quebrada.xml</arquivo>
//     </ignorados>
//   </auditoria>
//
// =============================================================================

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/beevik/etree"

	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

// XMLOptions contains options for XML output.
type XMLOptions struct {
	// Indent is the number of spaces per nesting level. A negative value
	// writes the document on a single line.
	// Default: 2
	Indent int

	// IncludeXMLDeclaration determines whether to include the XML declaration.
	// Default: true
	IncludeXMLDeclaration bool

	// RootElement names the document element.
	// Default: "auditoria"
	RootElement string

	// RecordElement names the element written per record.
	// Default: "nota"
	RecordElement string

	// RootAttributes are additional attributes for the root element.
	// Example: {"xmlns": "http://example.com/auditoria"}
	RootAttributes map[string]string

	// IncludeSkipped appends an <ignorados> element listing skipped inputs.
	// Default: true
	IncludeSkipped bool
}

// DefaultXMLOptions returns the default XML options.
func DefaultXMLOptions() XMLOptions {
	return XMLOptions{
		Indent:                2,
		IncludeXMLDeclaration: true,
		RootElement:           "auditoria",
		RecordElement:         "nota",
		IncludeSkipped:        true,
	}
}

// WriteXML writes the table as an XML document. Every record carries one
// child per column, even when the value is the not-found sentinel.
func WriteXML(w io.Writer, t *types.Table, opts XMLOptions) error {
	def := DefaultXMLOptions()
	if opts.RootElement == "" {
		opts.RootElement = def.RootElement
	}
	if opts.RecordElement == "" {
		opts.RecordElement = def.RecordElement
	}

	doc := etree.NewDocument()
	if opts.IncludeXMLDeclaration {
		doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	}

	root := doc.CreateElement(opts.RootElement)
	keys := make([]string, 0, len(opts.RootAttributes))
	for k := range opts.RootAttributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		root.CreateAttr(k, opts.RootAttributes[k])
	}
	root.CreateAttr("processados", strconv.Itoa(t.Processed()))
	root.CreateAttr("ignorados", strconv.Itoa(t.SkippedCount()))

	for i := range t.Records {
		nota := root.CreateElement(opts.RecordElement)
		nota.CreateAttr("n", strconv.Itoa(i+1))
		for j, v := range t.Records[i].Strings() {
			nota.CreateElement(types.Columns[j].Name).SetText(v)
		}
	}

	if opts.IncludeSkipped && len(t.Skipped) > 0 {
		ign := root.CreateElement("ignorados")
		for _, sk := range t.Skipped {
			a := ign.CreateElement("arquivo")
			a.CreateAttr("motivo", reason(sk))
			a.SetText(sk.Name)
		}
	}

	if opts.Indent < 0 {
		doc.Indent(etree.NoIndent)
	} else {
		doc.Indent(opts.Indent)
	}
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xml: %w", err)
	}
	return nil
}
