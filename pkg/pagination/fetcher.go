package pagination

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/idmapping-client/pkg/client"
	"github.com/Sternrassler/idmapping-client/pkg/format"
	"github.com/Sternrassler/idmapping-client/pkg/job"
	"github.com/Sternrassler/idmapping-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for page retrieval.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idmap_pages_fetched_total",
		Help: "Total number of result pages fetched by format",
	}, []string{"format"})

	resultsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idmap_results_fetched_total",
		Help: "Total number of results received by format",
	}, []string{"format"})

	pageBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "idmap_page_bytes",
		Help:    "Size of result pages after decompression",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	}, []string{"format"})
)

// Request describes a paginated read that does not come from a job, such as
// a search query.
type Request struct {
	// URL of the first page, query parameters included.
	URL string

	Format     format.Format
	Compressed bool

	// Label identifies the fetch in logs, progress and errors.
	Label string
}

// Fetcher follows cursor links and merges pages. It keeps no state between
// calls and is safe for concurrent use.
type Fetcher struct {
	client   *client.Client
	progress ProgressSink
	logger   zerolog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithProgress sets the sink receiving per-page progress.
func WithProgress(sink ProgressSink) Option {
	return func(f *Fetcher) {
		if sink != nil {
			f.progress = sink
		}
	}
}

// NewFetcher creates a fetcher on top of c.
func NewFetcher(c *client.Client, opts ...Option) *Fetcher {
	logger := logging.NewLogger("pagination")
	f := &Fetcher{
		client:   c,
		progress: LogProgress(logger),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchedPage is one decoded page plus its pagination metadata.
type FetchedPage struct {
	Page *format.Page

	// Next is the continuation link, "" on the last page.
	Next string

	// Total is the declared result count, or -1.
	Total int
}

// FetchFirstPage requests the first page of a job's results.
func (f *Fetcher) FetchFirstPage(ctx context.Context, h job.ResultsHandle) (*FetchedPage, error) {
	first, err := h.PageURL()
	if err != nil {
		return nil, err
	}
	return f.fetchPage(ctx, handleRequest(h, first))
}

// FetchAll reads every page of a job's results and merges them.
func (f *Fetcher) FetchAll(ctx context.Context, h job.ResultsHandle) (*format.ResultSet, error) {
	first, err := h.PageURL()
	if err != nil {
		return nil, err
	}
	return f.Paginate(ctx, handleRequest(h, first))
}

// FetchStream reads a job's results from the stream endpoint in a single
// response.
func (f *Fetcher) FetchStream(ctx context.Context, h job.ResultsHandle) (*format.ResultSet, error) {
	streamURL, err := h.StreamURL()
	if err != nil {
		return nil, err
	}
	req := handleRequest(h, streamURL)

	page, err := f.fetchPage(ctx, req)
	if err != nil {
		return nil, err
	}
	acc, err := format.NewAccumulator(req.Format)
	if err != nil {
		return nil, err
	}
	if err := acc.Merge(page.Page); err != nil {
		return nil, err
	}
	f.progress.Report(Progress{
		Label:   req.Label,
		Page:    1,
		Fetched: page.Page.Count(),
		Total:   page.Total,
		Failed:  len(page.Page.FailedIDs),
	})
	return acc.Result()
}

// Paginate follows the Link chain starting at req.URL until the last page.
func (f *Fetcher) Paginate(ctx context.Context, req Request) (*format.ResultSet, error) {
	acc, err := format.NewAccumulator(req.Format)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	progress := Progress{Label: req.Label, Total: -1}
	seen := make(map[string]bool)

	for next := req.URL; next != ""; {
		if seen[next] {
			return nil, &client.ProtocolError{Op: "paginate " + req.Label, Detail: "next link repeats " + next}
		}
		seen[next] = true

		pageReq := req
		pageReq.URL = next
		page, err := f.fetchPage(ctx, pageReq)
		if err != nil {
			return nil, err
		}
		if err := acc.Merge(page.Page); err != nil {
			return nil, err
		}

		progress.Page++
		progress.Fetched += page.Page.Count()
		progress.Failed += len(page.Page.FailedIDs)
		if progress.Page == 1 {
			progress.Total = page.Total
		}
		f.progress.Report(progress)

		next = page.Next
	}

	f.logger.Debug().
		Str("label", req.Label).
		Str("format", req.Format.String()).
		Int("pages", progress.Page).
		Int("results", progress.Fetched).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return acc.Result()
}

func (f *Fetcher) fetchPage(ctx context.Context, req Request) (*FetchedPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &client.CancelledError{JobID: req.Label, Err: err}
	}

	resp, err := f.client.Get(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &client.CancelledError{JobID: req.Label, Err: ctx.Err()}
		}
		return nil, &client.ServiceError{
			StatusCode: resp.StatusCode,
			ErrorClass: client.ErrorClassNetwork,
			Message:    "read page body",
			Err:        err,
		}
	}

	// The transport already removed a gzip Content-Encoding.
	if req.Compressed && !resp.Uncompressed {
		data, err = format.Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("page of %s: %w", req.Label, err)
		}
	}

	page, err := format.Decode(req.Format, data)
	if err != nil {
		return nil, fmt.Errorf("page of %s: %w", req.Label, err)
	}

	pagesFetchedTotal.WithLabelValues(req.Format.String()).Inc()
	resultsFetchedTotal.WithLabelValues(req.Format.String()).Add(float64(page.Count()))
	pageBytes.WithLabelValues(req.Format.String()).Observe(float64(len(data)))

	return &FetchedPage{
		Page:  page,
		Next:  parseNextLink(resp.Header.Get("Link")),
		Total: parseTotal(resp.Header),
	}, nil
}

func handleRequest(h job.ResultsHandle, first string) Request {
	return Request{
		URL:        first,
		Format:     h.Format,
		Compressed: h.Compressed,
		Label:      h.JobID,
	}
}
