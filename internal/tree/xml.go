package tree

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"

	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

// FromXML decodes an XML document into a tree.
//
// The root element becomes the single child of a synthetic top-level
// element, so its tag is the first segment of every flattened key. The
// mapping follows the familiar xmltodict shape:
//   - attributes become "@name" leaves (namespace declarations are dropped)
//   - an element with only text becomes a Leaf
//   - text next to attributes or child elements becomes a "#text" leaf
//   - repeated sibling tags become a List, in document order
//   - an empty element becomes an empty Leaf
//
// Failures are classified as types.ErrEmptyDocument,
// types.ErrUnsupportedEncoding or types.ErrMalformedDocument.
func FromXML(data []byte) (Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, types.ErrEmptyDocument
	}

	var charsetErr error
	// Older municipal systems still emit ISO-8859-1 and windows-1252.
	charsetReader := func(label string, input io.Reader) (io.Reader, error) {
		r, err := charset.NewReaderLabel(label, input)
		if err != nil {
			charsetErr = err
		}
		return r, err
	}
	classify := func(err error) error {
		if charsetErr != nil {
			return fmt.Errorf("%w: %v", types.ErrUnsupportedEncoding, charsetErr)
		}
		return fmt.Errorf("%w: %v", types.ErrMalformedDocument, err)
	}

	if err := wellFormed(data, charsetReader); err != nil {
		return nil, classify(err)
	}

	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{CharsetReader: charsetReader}
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, classify(err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", types.ErrMalformedDocument)
	}

	top := &Element{}
	top.Add(root.Tag, fromElement(root))
	return top, nil
}

func fromElement(e *etree.Element) Node {
	attrs := dataAttrs(e)
	children := e.ChildElements()
	text := strings.TrimSpace(e.Text())

	if len(attrs) == 0 && len(children) == 0 {
		return Leaf(text)
	}

	el := &Element{}
	for _, a := range attrs {
		el.Add("@"+a.Key, Leaf(a.Value))
	}

	// group repeated tags, keeping first-occurrence order
	var order []string
	groups := make(map[string][]*etree.Element)
	for _, c := range children {
		if _, seen := groups[c.Tag]; !seen {
			order = append(order, c.Tag)
		}
		groups[c.Tag] = append(groups[c.Tag], c)
	}
	for _, tag := range order {
		group := groups[tag]
		if len(group) == 1 {
			el.Add(tag, fromElement(group[0]))
			continue
		}
		list := make(List, 0, len(group))
		for _, c := range group {
			list = append(list, fromElement(c))
		}
		el.Add(tag, list)
	}

	if text != "" {
		el.Add("#text", Leaf(text))
	}
	return el
}

// wellFormed runs a strict token pass so truncated documents, mismatched
// end tags and content outside the root element fail fast instead of
// producing a partial tree.
func wellFormed(data []byte, cr func(string, io.Reader) (io.Reader, error)) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = cr
	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 {
					return fmt.Errorf("second root element <%s>", t.Name.Local)
				}
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.Trim(t, " \t\r\n\ufeff")) > 0 {
				return fmt.Errorf("character data outside the root element")
			}
		}
	}
}

// dataAttrs drops xmlns declarations, which carry no invoice data.
func dataAttrs(e *etree.Element) []etree.Attr {
	var out []etree.Attr
	for _, a := range e.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			continue
		}
		out = append(out, a)
	}
	return out
}
