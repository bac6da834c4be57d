package format

import (
	"github.com/Sternrassler/idmapping-client/pkg/client"
)

// Accumulator is the running merge state of one paginated fetch. It is owned
// by a single pipeline and is not safe for concurrent use.
type Accumulator interface {
	// Merge folds one decoded page into the aggregate.
	Merge(page *Page) error

	// Result returns the merged ResultSet.
	Result() (*ResultSet, error)
}

// NewAccumulator returns the merge state for f.
func NewAccumulator(f Format) (Accumulator, error) {
	switch f {
	case Tabular:
		return &tabularAccumulator{}, nil
	case Structured:
		return &structuredAccumulator{}, nil
	case Hierarchical:
		return &hierarchicalAccumulator{}, nil
	case Binary:
		return &binaryAccumulator{}, nil
	default:
		return nil, &client.ValidationError{Field: "format", Value: f.String(), Allowed: Names()}
	}
}

func checkFormat(want Format, page *Page) error {
	if page.Format != want {
		return &client.ProtocolError{
			Op:     "merge page",
			Detail: "got " + page.Format.String() + " page in " + want.String() + " result",
		}
	}
	return nil
}

type tabularAccumulator struct {
	lines []string
}

// Merge keeps the first header line seen and drops the header of every later
// page.
func (a *tabularAccumulator) Merge(page *Page) error {
	if err := checkFormat(Tabular, page); err != nil {
		return err
	}
	if len(page.Lines) == 0 {
		return nil
	}
	if len(a.lines) == 0 {
		a.lines = append(a.lines, page.Lines...)
		return nil
	}
	a.lines = append(a.lines, page.Lines[1:]...)
	return nil
}

func (a *tabularAccumulator) Result() (*ResultSet, error) {
	return &ResultSet{Format: Tabular, Lines: a.lines}, nil
}

type structuredAccumulator struct {
	results []Record
	failed  []string
}

func (a *structuredAccumulator) Merge(page *Page) error {
	if err := checkFormat(Structured, page); err != nil {
		return err
	}
	a.results = append(a.results, page.Results...)
	a.failed = append(a.failed, page.FailedIDs...)
	return nil
}

func (a *structuredAccumulator) Result() (*ResultSet, error) {
	return &ResultSet{Format: Structured, Records: a.results, ServiceFailedIDs: a.failed}, nil
}

// hierarchicalAccumulator keeps raw pages and merges them once at the end.
type hierarchicalAccumulator struct {
	pages   [][]byte
	entries int
}

func (a *hierarchicalAccumulator) Merge(page *Page) error {
	if err := checkFormat(Hierarchical, page); err != nil {
		return err
	}
	if len(page.Document) == 0 {
		return nil
	}
	a.pages = append(a.pages, page.Document)
	a.entries += page.Entries
	return nil
}

func (a *hierarchicalAccumulator) Result() (*ResultSet, error) {
	doc, err := mergeDocuments(a.pages)
	if err != nil {
		return nil, err
	}
	return &ResultSet{Format: Hierarchical, Document: doc, Entries: a.entries}, nil
}

type binaryAccumulator struct {
	blobs [][]byte
}

func (a *binaryAccumulator) Merge(page *Page) error {
	if err := checkFormat(Binary, page); err != nil {
		return err
	}
	a.blobs = append(a.blobs, page.Blob)
	return nil
}

func (a *binaryAccumulator) Result() (*ResultSet, error) {
	return &ResultSet{Format: Binary, Blobs: a.blobs}, nil
}
