// Package testutil provides an in-process fake of the ID mapping service.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/Sternrassler/idmapping-client/pkg/format"
	"github.com/google/uuid"
)

// MockJob is the server-side state of one submitted job.
type MockJob struct {
	ID   string
	From string
	To   string
	IDs  []string

	// PendingPolls is the number of status polls answered with RUNNING
	// before the job finishes.
	PendingPolls int

	// Status, when set, is returned as a terminal jobStatus instead of
	// finishing the job (e.g. "ERROR").
	Status string
}

// MockService is a configurable fake of the asynchronous mapping API.
type MockService struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	jobs     map[string]*MockJob
	failures map[string][]int

	// MapID decides the mapping of one identifier. ok=false reports it as
	// failed. Defaults to mapping everything not prefixed with "BAD".
	MapID func(from, to, id string) (mapped string, ok bool)

	// PendingPolls is copied into every new job.
	PendingPolls int

	// TerminalStatus is copied into every new job.
	TerminalStatus string

	// SearchHits are the accessions returned by /uniprotkb/search.
	SearchHits []string

	// Tracking
	RequestCount     int
	SubmitCount      int
	PollCount        int
	PageCount        int
	LastResultsQuery url.Values
}

// NewMockService starts a mock mapping service.
func NewMockService() *MockService {
	m := &MockService{
		handlers: make(map[string]http.HandlerFunc),
		jobs:     make(map[string]*MockJob),
		failures: make(map[string][]int),
		MapID: func(_, _, id string) (string, bool) {
			if strings.HasPrefix(id, "BAD") {
				return "", false
			}
			return "MAPPED_" + id, true
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /idmapping/run", m.handleRun)
	mux.HandleFunc("GET /idmapping/status/{id}", m.handleStatus)
	mux.HandleFunc("GET /idmapping/details/{id}", m.handleDetails)
	mux.HandleFunc("GET /idmapping/results/{id}", m.handleResults(false))
	mux.HandleFunc("GET /idmapping/uniprotkb/results/{id}", m.handleResults(false))
	mux.HandleFunc("GET /idmapping/results/stream/{id}", m.handleResults(true))
	mux.HandleFunc("GET /idmapping/uniprotkb/results/stream/{id}", m.handleResults(true))
	mux.HandleFunc("GET /uniprotkb/search", m.handleSearch)

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.RequestCount++
		handler, custom := m.handlers[r.URL.Path]
		status := m.popFailure(r.URL.Path)
		m.mu.Unlock()

		if status != 0 {
			writeJSON(w, status, map[string]any{"url": r.URL.String(), "messages": []string{http.StatusText(status)}})
			return
		}
		if custom {
			handler(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	}))

	return m
}

// URL returns the mock server URL.
func (m *MockService) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockService) Close() {
	m.server.Close()
}

// SetHandler overrides the handler for an exact path.
func (m *MockService) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// FailNext makes the next len(statuses) requests whose path starts with
// prefix answer with the given status codes.
func (m *MockService) FailNext(prefix string, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[prefix] = append(m.failures[prefix], statuses...)
}

// popFailure must be called with m.mu held.
func (m *MockService) popFailure(path string) int {
	for prefix, queue := range m.failures {
		if len(queue) > 0 && strings.HasPrefix(path, prefix) {
			m.failures[prefix] = queue[1:]
			return queue[0]
		}
	}
	return 0
}

// Job returns a copy of a submitted job.
func (m *MockService) Job(id string) (MockJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return MockJob{}, false
	}
	return *job, true
}

// Jobs returns the number of submitted jobs.
func (m *MockService) Jobs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// Counts returns submit, poll and page request counts.
func (m *MockService) Counts() (submits, polls, pages int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.SubmitCount, m.PollCount, m.PageCount
}

// ResultsQuery returns the query of the most recent results request.
func (m *MockService) ResultsQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastResultsQuery
}

func (m *MockService) handleRun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"messages": []string{err.Error()}})
		return
	}
	from, to, ids := r.PostForm.Get("from"), r.PostForm.Get("to"), r.PostForm.Get("ids")
	if from == "" || to == "" || ids == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"messages": []string{"from, to and ids are required"}})
		return
	}

	m.mu.Lock()
	job := &MockJob{
		ID:           uuid.NewString(),
		From:         from,
		To:           to,
		IDs:          strings.Split(ids, ","),
		PendingPolls: m.PendingPolls,
		Status:       m.TerminalStatus,
	}
	m.jobs[job.ID] = job
	m.SubmitCount++
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"jobId": job.ID})
}

func (m *MockService) handleStatus(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.PollCount++
	job, ok := m.jobs[r.PathValue("id")]
	if !ok {
		m.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]any{"messages": []string{"Resource not found"}})
		return
	}
	if job.PendingPolls > 0 {
		job.PendingPolls--
		m.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"jobStatus": "RUNNING"})
		return
	}
	status := job.Status
	mapped, failed := m.resolve(job)
	m.mu.Unlock()

	if status != "" {
		writeJSON(w, http.StatusOK, map[string]string{"jobStatus": status})
		return
	}
	writeJSON(w, http.StatusOK, structuredBody(mapped, failed))
}

func (m *MockService) handleDetails(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	job, ok := m.jobs[r.PathValue("id")]
	m.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"messages": []string{"Resource not found"}})
		return
	}

	path := "/idmapping/results/"
	if strings.HasPrefix(job.To, "UniProtKB") {
		path = "/idmapping/uniprotkb/results/"
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirectURL": m.server.URL + path + job.ID})
}

func (m *MockService) handleResults(stream bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.PageCount++
		m.LastResultsQuery = r.URL.Query()
		job, ok := m.jobs[r.PathValue("id")]
		var mapped []pair
		var failed []string
		if ok {
			mapped, failed = m.resolve(job)
		}
		m.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"messages": []string{"Resource not found"}})
			return
		}
		m.writePage(w, r, mapped, failed, stream)
	}
}

func (m *MockService) handleSearch(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.PageCount++
	m.LastResultsQuery = r.URL.Query()
	hits := make([]pair, 0, len(m.SearchHits))
	for _, acc := range m.SearchHits {
		hits = append(hits, pair{to: acc})
	}
	m.mu.Unlock()

	if r.URL.Query().Get("query") == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"messages": []string{"'query' is a required parameter"}})
		return
	}
	m.writePage(w, r, hits, nil, false)
}

type pair struct {
	from string
	to   string
}

// resolve must be called with m.mu held.
func (m *MockService) resolve(job *MockJob) ([]pair, []string) {
	var mapped []pair
	var failed []string
	for _, id := range job.IDs {
		if to, ok := m.MapID(job.From, job.To, id); ok {
			mapped = append(mapped, pair{from: id, to: to})
		} else {
			failed = append(failed, id)
		}
	}
	return mapped, failed
}

// writePage renders one cursor page of results. The cursor is the offset of
// the first result on the page.
func (m *MockService) writePage(w http.ResponseWriter, r *http.Request, results []pair, failed []string, stream bool) {
	q := r.URL.Query()
	f, err := format.Parse(q.Get("format"))
	if err != nil {
		f = format.Structured
	}

	start, _ := strconv.Atoi(q.Get("cursor"))
	size, _ := strconv.Atoi(q.Get("size"))
	if size <= 0 || stream {
		size = len(results)
	}
	end := min(start+size, len(results))
	if start > end {
		start = end
	}

	pageFailed := failed
	if start > 0 {
		pageFailed = nil
	}

	if end < len(results) {
		next := *r.URL
		next.Scheme = "http"
		next.Host = r.Host
		nq := next.Query()
		nq.Set("cursor", strconv.Itoa(end))
		next.RawQuery = nq.Encode()
		w.Header().Set("Link", fmt.Sprintf("<%s>; rel=\"next\"", next.String()))
	}
	w.Header().Set("X-Total-Results", strconv.Itoa(len(results)))

	body := render(f, results[start:end], pageFailed)
	if q.Get("compressed") == "true" {
		body, err = format.Compress(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/gzip")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func render(f format.Format, results []pair, failed []string) []byte {
	switch f {
	case format.Tabular:
		var b strings.Builder
		b.WriteString("From\tTo\n")
		for _, p := range results {
			fmt.Fprintf(&b, "%s\t%s\n", p.from, p.to)
		}
		return []byte(b.String())
	case format.Hierarchical:
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
		b.WriteString(`<uniprot xmlns="http://uniprot.org/uniprot">`)
		for _, p := range results {
			fmt.Fprintf(&b, "<entry><accession>%s</accession></entry>", p.to)
		}
		b.WriteString("<copyright>mock</copyright></uniprot>")
		return []byte(b.String())
	case format.Binary:
		tos := make([]string, 0, len(results))
		for _, p := range results {
			tos = append(tos, p.to)
		}
		return []byte("PK\x03\x04" + strings.Join(tos, ","))
	default:
		b, _ := json.Marshal(structuredBody(results, failed))
		return b
	}
}

func structuredBody(results []pair, failed []string) map[string]any {
	records := make([]map[string]string, 0, len(results))
	for _, p := range results {
		if p.from == "" {
			records = append(records, map[string]string{"primaryAccession": p.to})
			continue
		}
		records = append(records, map[string]string{"from": p.from, "to": p.to})
	}
	body := map[string]any{"results": records}
	if len(failed) > 0 {
		body["failedIds"] = failed
	}
	return body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
