// =============================================================================
// NFS-e Tax Audit - Export Writers
// =============================================================================
//
// This package writes a normalized table to the formats auditors open:
//
//   xlsx  - one "PortalServTax" sheet, pink header, money as numbers
//   csv   - header plus one line per record, configurable delimiter
//   xml   - <auditoria> root with one <nota> per record
//   json  - column list, records and skipped inputs (HTTP surface)
//
// Column order always follows types.Columns. Writers hold no state between
// calls and never look at the values beyond formatting them.
//
// =============================================================================

package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

// =============================================================================
// FORMATS
// =============================================================================

// Format names an output format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
)

// Formats lists every supported format.
var Formats = []Format{FormatXLSX, FormatCSV, FormatXML, FormatJSON}

// ParseFormat accepts a format name in any case, with or without a leading dot.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported output format %q", s)
}

// Ext returns the file extension, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXML:
		return "application/xml; charset=utf-8"
	case FormatJSON:
		return "application/json; charset=utf-8"
	}
	return "application/octet-stream"
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options groups the per-format settings.
type Options struct {
	CSV CSVOptions
	XML XMLOptions
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		CSV: DefaultCSVOptions(),
		XML: DefaultXMLOptions(),
	}
}

// Write encodes t to w in the given format.
//
// PARAMETERS:
//   - w: Destination of the encoded table.
//   - f: Output format.
//   - t: The table to write. Skipped inputs are included where the format
//     has room for them (xlsx, xml, json).
//   - opts: Per-format settings.
//
// RETURNS:
//   - An error if the format is unknown or encoding fails.
func Write(w io.Writer, f Format, t *types.Table, opts Options) error {
	switch f {
	case FormatXLSX:
		return WriteXLSX(w, t)
	case FormatCSV:
		return WriteCSV(w, t, opts.CSV)
	case FormatXML:
		return WriteXML(w, t, opts.XML)
	case FormatJSON:
		return WriteJSON(w, t)
	}
	return fmt.Errorf("unsupported output format %q", f)
}

// header returns the column names in output order.
func header() []string {
	out := make([]string, len(types.Columns))
	for i, c := range types.Columns {
		out[i] = c.Name
	}
	return out
}

// reason renders a skip reason for display.
func reason(s types.Skip) string {
	if s.Reason == nil {
		return ""
	}
	return s.Reason.Error()
}
