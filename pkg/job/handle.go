package job

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/idmapping-client/pkg/format"
)

// DefaultPageSize is the page size requested from the results endpoint.
const DefaultPageSize = 500

// Params are the retrieval parameters attached to a finished job.
type Params struct {
	Format         format.Format
	Fields         []string
	Compressed     bool
	PageSize       int
	IncludeIsoform bool
}

// ResultsHandle points at the results of a finished job. It is consumed
// once by a paginated fetch.
type ResultsHandle struct {
	JobID string
	URL   string
	Params
}

// PageURL returns the first page URL with format, fields, includeIsoform,
// size and compressed applied. fields is omitted when empty.
func (h ResultsHandle) PageURL() (string, error) {
	return h.withQuery(h.URL)
}

// StreamURL returns the unpaginated stream endpoint for the same results.
func (h ResultsHandle) StreamURL() (string, error) {
	return h.withQuery(strings.Replace(h.URL, "/results/", "/results/stream/", 1))
}

func (h ResultsHandle) withQuery(raw string) (string, error) {
	if !h.Format.Valid() {
		return "", fmt.Errorf("results handle for job %s has no format", h.JobID)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse results url %q: %w", raw, err)
	}

	size := h.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}

	q := u.Query()
	q.Set("format", h.Format.String())
	if len(h.Fields) > 0 {
		q.Set("fields", strings.Join(h.Fields, ","))
	}
	q.Set("includeIsoform", strconv.FormatBool(h.IncludeIsoform))
	q.Set("size", strconv.Itoa(size))
	q.Set("compressed", strconv.FormatBool(h.Compressed))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
