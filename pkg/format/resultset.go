package format

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ResultSet is the merged, format-normalized result of one pipeline. Only the
// fields of its Format are set.
type ResultSet struct {
	Format Format `json:"format"`

	// Tabular: header line first, then data lines.
	Lines []string `json:"lines,omitempty"`

	// Structured
	Records          []Record `json:"records,omitempty"`
	ServiceFailedIDs []string `json:"service_failed_ids,omitempty"`

	// Hierarchical: the merged document and its record count.
	Document []byte `json:"document,omitempty"`
	Entries  int    `json:"entries,omitempty"`

	// Binary: one blob per page, in page order.
	Blobs [][]byte `json:"blobs,omitempty"`
}

// Row is one data line of a tabular result, keyed by its first column.
type Row struct {
	From   string
	Fields []string
}

// Empty returns an empty ResultSet of format f.
func Empty(f Format) *ResultSet {
	return &ResultSet{Format: f}
}

// Len returns the number of results.
func (rs *ResultSet) Len() int {
	switch rs.Format {
	case Tabular:
		if len(rs.Lines) == 0 {
			return 0
		}
		return len(rs.Lines) - 1
	case Structured:
		return len(rs.Records)
	case Hierarchical:
		return rs.Entries
	case Binary:
		return len(rs.Blobs)
	}
	return 0
}

// Header returns the tabular header line.
func (rs *ResultSet) Header() string {
	if rs.Format != Tabular || len(rs.Lines) == 0 {
		return ""
	}
	return rs.Lines[0]
}

// Rows splits the tabular data lines into columns.
func (rs *ResultSet) Rows() []Row {
	if rs.Format != Tabular || len(rs.Lines) < 2 {
		return nil
	}
	rows := make([]Row, 0, len(rs.Lines)-1)
	for _, line := range rs.Lines[1:] {
		fields := strings.Split(line, "\t")
		rows = append(rows, Row{From: fields[0], Fields: fields})
	}
	return rows
}

// RetrievedIDs lists the source identifiers present in the results, in
// result order. ok is false for formats whose payload is opaque.
func (rs *ResultSet) RetrievedIDs() (ids []string, ok bool) {
	switch rs.Format {
	case Tabular:
		for _, row := range rs.Rows() {
			ids = append(ids, row.From)
		}
		return ids, true
	case Structured:
		for _, r := range rs.Records {
			ids = append(ids, r.From)
		}
		return ids, true
	default:
		return nil, false
	}
}

// ErrMultipart is returned by Bytes for binary results spanning several
// pages; each page is a complete spreadsheet and must be written on its own.
var ErrMultipart = errors.New("binary result spans several pages")

// Bytes renders the merged result in its wire format. A binary result renders
// only when it has a single page; use Parts otherwise.
func (rs *ResultSet) Bytes() ([]byte, error) {
	switch rs.Format {
	case Tabular:
		if len(rs.Lines) == 0 {
			return nil, nil
		}
		return []byte(strings.Join(rs.Lines, "\n") + "\n"), nil
	case Structured:
		body := struct {
			Results   []Record `json:"results"`
			FailedIDs []string `json:"failedIds,omitempty"`
		}{Results: rs.Records, FailedIDs: rs.ServiceFailedIDs}
		if body.Results == nil {
			body.Results = []Record{}
		}
		return json.Marshal(body)
	case Hierarchical:
		return rs.Document, nil
	case Binary:
		switch len(rs.Blobs) {
		case 0:
			return nil, nil
		case 1:
			return rs.Blobs[0], nil
		default:
			return nil, fmt.Errorf("%w: %d pages", ErrMultipart, len(rs.Blobs))
		}
	}
	return nil, nil
}

// Parts renders the result as independent documents: one per page for binary
// results, a single rendering otherwise.
func (rs *ResultSet) Parts() ([][]byte, error) {
	if rs.Format == Binary {
		return rs.Blobs, nil
	}
	data, err := rs.Bytes()
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

// Concat joins per-chunk results in chunk order using the page merge rules of
// their format. All sets must share f.
func Concat(f Format, sets ...*ResultSet) (*ResultSet, error) {
	acc, err := NewAccumulator(f)
	if err != nil {
		return nil, err
	}
	for _, rs := range sets {
		if rs == nil {
			continue
		}
		for _, page := range rs.pages() {
			if err := acc.Merge(page); err != nil {
				return nil, err
			}
		}
	}
	return acc.Result()
}

// pages turns a merged result back into pages so chunk results can be merged
// with the same rules as pages.
func (rs *ResultSet) pages() []*Page {
	switch rs.Format {
	case Tabular:
		return []*Page{{Format: Tabular, Lines: rs.Lines}}
	case Structured:
		return []*Page{{Format: Structured, Results: rs.Records, FailedIDs: rs.ServiceFailedIDs}}
	case Hierarchical:
		return []*Page{{Format: Hierarchical, Document: rs.Document, Entries: rs.Entries}}
	default:
		pages := make([]*Page, 0, len(rs.Blobs))
		for _, b := range rs.Blobs {
			pages = append(pages, &Page{Format: rs.Format, Blob: b})
		}
		return pages
	}
}
