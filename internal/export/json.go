package export

import (
	"encoding/json"
	"io"

	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

// Document is the JSON shape of a table.
type Document struct {
	Columns   []types.Column `json:"columns"`
	Records   []JSONRecord   `json:"records"`
	Skipped   []JSONSkip     `json:"skipped"`
	Processed int            `json:"processed"`
}

// JSONRecord maps column names to values. Money is a JSON number with two
// decimals, text is a string.
type JSONRecord map[string]any

// JSONSkip is one skipped input.
type JSONSkip struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// NewDocument converts a table to its JSON shape.
func NewDocument(t *types.Table) Document {
	doc := Document{
		Columns:   types.Columns,
		Records:   make([]JSONRecord, 0, len(t.Records)),
		Skipped:   make([]JSONSkip, 0, len(t.Skipped)),
		Processed: t.Processed(),
	}
	for i := range t.Records {
		r := &t.Records[i]
		rec := make(JSONRecord, len(types.Columns))
		for _, c := range types.Columns {
			if c.Kind == types.KindMoney {
				m, _ := r.Amount(c.Name)
				rec[c.Name] = json.Number(m.String())
				continue
			}
			s, _ := r.Text(c.Name)
			rec[c.Name] = s
		}
		doc.Records = append(doc.Records, rec)
	}
	for _, sk := range t.Skipped {
		doc.Skipped = append(doc.Skipped, JSONSkip{Name: sk.Name, Reason: reason(sk)})
	}
	return doc
}

// WriteJSON writes the table as one JSON object.
func WriteJSON(w io.Writer, t *types.Table) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(t))
}
