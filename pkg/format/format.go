// Package format decodes and merges result pages for each wire format the
// mapping service returns.
//
// A Format is picked once per pipeline. It selects the decode and merge rules
// used for every page of that pipeline:
//
//	tsv   Tabular       text lines; continuation pages drop their header line
//	json  Structured    "results" and "failedIds" lists are concatenated
//	xml   Hierarchical  entry elements of later pages are spliced into the first
//	xlsx  Binary        opaque blobs kept in page order
package format

import (
	"github.com/Sternrassler/idmapping-client/pkg/client"
)

// Format is the closed set of result wire formats.
type Format int

const (
	// Tabular is tab separated text with a header line.
	Tabular Format = iota + 1

	// Structured is a JSON object with "results" and "failedIds".
	Structured

	// Hierarchical is an XML document.
	Hierarchical

	// Binary is an xlsx spreadsheet.
	Binary
)

var wireNames = map[Format]string{
	Tabular:      "tsv",
	Structured:   "json",
	Hierarchical: "xml",
	Binary:       "xlsx",
}

// Names lists the accepted wire names in a stable order.
func Names() []string {
	return []string{"tsv", "json", "xml", "xlsx"}
}

// Parse resolves a wire name ("tsv", "json", "xml", "xlsx").
func Parse(name string) (Format, error) {
	for f, n := range wireNames {
		if n == name {
			return f, nil
		}
	}
	return 0, &client.ValidationError{Field: "format", Value: name, Allowed: Names()}
}

// String returns the wire name sent as the "format" query parameter.
func (f Format) String() string {
	if n, ok := wireNames[f]; ok {
		return n
	}
	return "unknown"
}

// Valid reports whether f is one of the declared variants.
func (f Format) Valid() bool {
	_, ok := wireNames[f]
	return ok
}

// Reconcilable reports whether identifiers can be read back from results in
// this format. XML and spreadsheet payloads are left opaque.
func (f Format) Reconcilable() bool {
	return f == Tabular || f == Structured
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Extension is the file suffix used when writing results.
func (f Format) Extension() string {
	return "." + f.String()
}
