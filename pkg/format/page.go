package format

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Sternrassler/idmapping-client/pkg/client"
	"github.com/beevik/etree"
)

// Record is one element of a structured "results" list. From and To are
// lifted out of the object; Raw keeps the full object so search results that
// carry no from/to pair survive a merge unchanged.
type Record struct {
	From string
	To   json.RawMessage
	Raw  json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(b []byte) error {
	var aux struct {
		From json.RawMessage `json:"from"`
		To   json.RawMessage `json:"to"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.Raw = append(json.RawMessage(nil), b...)
	r.To = aux.To
	r.From = ""
	if len(aux.From) > 0 {
		var s string
		if json.Unmarshal(aux.From, &s) == nil {
			r.From = s
		} else {
			r.From = string(aux.From)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return json.Marshal(struct {
		From string          `json:"from"`
		To   json.RawMessage `json:"to,omitempty"`
	}{r.From, r.To})
}

// Page is one decoded response body. Only the fields of its Format are set.
type Page struct {
	Format Format

	// Tabular
	Lines []string

	// Structured
	Results   []Record
	FailedIDs []string

	// Hierarchical
	Document []byte
	Entries  int

	// Binary
	Blob []byte
}

// Decode turns a raw (already decompressed) body into a Page.
func Decode(f Format, data []byte) (*Page, error) {
	switch f {
	case Tabular:
		return &Page{Format: f, Lines: splitLines(data)}, nil
	case Structured:
		return decodeStructured(data)
	case Hierarchical:
		return decodeHierarchical(data)
	case Binary:
		return &Page{Format: f, Blob: data}, nil
	default:
		return nil, &client.ProtocolError{Op: "decode page", Detail: "unsupported format " + f.String()}
	}
}

// Count is the number of results carried by the page. Spreadsheet pages are
// opaque and count as zero.
func (p *Page) Count() int {
	switch p.Format {
	case Tabular:
		if len(p.Lines) == 0 {
			return 0
		}
		return len(p.Lines) - 1
	case Structured:
		return len(p.Results)
	case Hierarchical:
		return p.Entries
	default:
		return 0
	}
}

// splitLines returns the non-empty lines of a tabular page.
func splitLines(data []byte) []string {
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if l = strings.TrimSuffix(l, "\r"); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

type structuredBody struct {
	Results   *[]Record `json:"results"`
	FailedIDs []string  `json:"failedIds"`
}

func decodeStructured(data []byte) (*Page, error) {
	var body structuredBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, &client.ProtocolError{Op: "decode json page", Detail: "invalid JSON", Err: err}
	}
	if body.Results == nil && body.FailedIDs == nil {
		return nil, &client.ProtocolError{Op: "decode json page", Detail: "missing both results and failedIds"}
	}
	page := &Page{Format: Structured, FailedIDs: body.FailedIDs}
	if body.Results != nil {
		page.Results = *body.Results
	}
	return page, nil
}

func decodeHierarchical(data []byte) (*Page, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &client.ProtocolError{Op: "decode xml page", Detail: "invalid XML", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &client.ProtocolError{Op: "decode xml page", Detail: "document has no root element"}
	}
	return &Page{
		Format:   Hierarchical,
		Document: bytes.Clone(data),
		Entries:  countEntries(root),
	}, nil
}
