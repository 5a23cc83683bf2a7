package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

// CSVOptions configures CSV output.
type CSVOptions struct {
	// Delimiter separates fields. Default: ';', the separator spreadsheet
	// software expects under a pt-BR locale.
	Delimiter rune

	// BOM prefixes the output with a UTF-8 byte order mark so spreadsheet
	// software detects the encoding of accented names.
	BOM bool
}

// DefaultCSVOptions returns the default CSV options.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{Delimiter: ';'}
}

// ParseDelimiter turns a configured delimiter into a rune. "\t" and "tab"
// name the tab character.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return ';', nil
	case `\t`, "tab":
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 || r[0] == '"' || r[0] == '\r' || r[0] == '\n' {
		return 0, fmt.Errorf("invalid csv delimiter %q", s)
	}
	return r[0], nil
}

// WriteCSV writes a header line and one line per record. Money is written
// with exactly two decimals and a dot separator.
func WriteCSV(w io.Writer, t *types.Table, opts CSVOptions) error {
	if opts.BOM {
		if _, err := io.WriteString(w, "\ufeff"); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)
	if opts.Delimiter != 0 {
		cw.Comma = opts.Delimiter
	} else {
		cw.Comma = ';'
	}

	if err := cw.Write(header()); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i := range t.Records {
		if err := cw.Write(t.Records[i].Strings()); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
