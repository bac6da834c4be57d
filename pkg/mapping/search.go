package mapping

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/idmapping-client/pkg/catalog"
	"github.com/Sternrassler/idmapping-client/pkg/client"
	"github.com/Sternrassler/idmapping-client/pkg/format"
	"github.com/Sternrassler/idmapping-client/pkg/job"
	"github.com/Sternrassler/idmapping-client/pkg/logging"
	"github.com/Sternrassler/idmapping-client/pkg/pagination"
	"github.com/rs/zerolog"
)

// SearchOptions are the retrieval parameters of a search.
type SearchOptions struct {
	Fields         []string
	Format         format.Format
	Compressed     bool
	IncludeIsoform bool
	PageSize       int
}

// Searcher queries the UniProtKB search endpoint with a pre-built query
// string and paginates the hits.
type Searcher struct {
	client  *client.Client
	fetcher *pagination.Fetcher
	catalog *catalog.Catalog
	logger  zerolog.Logger
}

// NewSearcher creates a searcher on top of c.
func NewSearcher(c *client.Client, opts ...Option) (*Searcher, error) {
	s, err := buildSettings(opts)
	if err != nil {
		return nil, err
	}
	return &Searcher{
		client:  c,
		fetcher: pagination.NewFetcher(c, s.fetchOpts...),
		catalog: s.catalog,
		logger:  logging.NewLogger("searcher"),
	}, nil
}

// Search runs query and returns every page of hits merged.
func (s *Searcher) Search(ctx context.Context, query string, opts SearchOptions) (*format.ResultSet, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &client.ValidationError{Field: "query", Value: query}
	}
	rawURL, f, err := s.searchURL(query, opts)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("query", query).Str("format", f.String()).Msg("Search started")
	rs, err := s.fetcher.Paginate(ctx, pagination.Request{
		URL:        rawURL,
		Format:     f,
		Compressed: opts.Compressed,
		Label:      "search",
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("query", query).Int("results", rs.Len()).Msg("Search complete")
	return rs, nil
}

func (s *Searcher) searchURL(query string, opts SearchOptions) (string, format.Format, error) {
	f := opts.Format
	if f == 0 {
		f = format.Tabular
	}
	if !f.Valid() {
		return "", 0, &client.ValidationError{Field: "format", Value: f.String(), Allowed: format.Names()}
	}
	fields, err := s.catalog.NormalizeFields(opts.Fields)
	if err != nil {
		return "", 0, err
	}
	size := opts.PageSize
	if size <= 0 {
		size = job.DefaultPageSize
	}

	q := url.Values{}
	q.Set("query", query)
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}
	q.Set("format", f.String())
	q.Set("includeIsoform", strconv.FormatBool(opts.IncludeIsoform))
	q.Set("compressed", strconv.FormatBool(opts.Compressed))
	q.Set("size", strconv.Itoa(size))

	return s.client.URL("/uniprotkb/search") + "?" + q.Encode(), f, nil
}
