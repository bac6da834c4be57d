// Package job submits mapping jobs and waits for them to finish.
//
// A job moves through NEW and RUNNING while the service works on it. A status
// payload carrying "results" or "failedIds" means the job has FINISHED; any
// other declared status is terminal and reported as *client.JobError.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/idmapping-client/pkg/batch"
	"github.com/Sternrassler/idmapping-client/pkg/client"
	"github.com/Sternrassler/idmapping-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for job lifecycle.
var (
	jobsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idmap_jobs_submitted_total",
		Help: "Total number of mapping jobs submitted",
	})

	jobPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idmap_job_polls_total",
		Help: "Total number of status polls by reported state",
	}, []string{"status"})

	jobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idmap_jobs_finished_total",
		Help: "Total number of jobs leaving the poll loop by outcome",
	}, []string{"outcome"})

	jobWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "idmap_job_wait_seconds",
		Help:    "Time from first poll until a job is ready",
		Buckets: []float64{1, 3, 10, 30, 60, 180, 600},
	})
)

// DefaultPollInterval is the pause between status polls.
const DefaultPollInterval = 3 * time.Second

// State is the lifecycle state of a job.
type State string

const (
	StateNew      State = "NEW"
	StateRunning  State = "RUNNING"
	StateFinished State = "FINISHED"
	StateError    State = "ERROR"
)

// Status is the interpretation of one status poll.
type Status struct {
	State State

	// Raw is the jobStatus string as reported by the service.
	Raw string
}

// Pending reports whether the job must be polled again.
func (s Status) Pending() bool {
	return s.State == StateNew || s.State == StateRunning
}

// WaitFunc pauses between polls. It returns an error when ctx ends first.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Manager runs the job lifecycle against the mapping service. It holds no
// per-job state and is safe for concurrent use.
type Manager struct {
	client       *client.Client
	pollInterval time.Duration
	wait         WaitFunc
	logger       zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval sets the pause between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithWaitFunc replaces the sleep between polls.
func WithWaitFunc(fn WaitFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.wait = fn
		}
	}
}

// NewManager creates a job manager on top of c.
func NewManager(c *client.Client, opts ...Option) *Manager {
	m := &Manager{
		client:       c,
		pollInterval: DefaultPollInterval,
		wait:         sleep,
		logger:       logging.NewLogger("job-manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Submit creates a mapping job for ids and returns its job ID. Namespaces are
// expected to be validated by the caller.
func (m *Manager) Submit(ctx context.Context, from, to string, ids []string) (string, error) {
	if len(ids) == 0 {
		return "", &client.ValidationError{Field: "ids", Value: ""}
	}
	if len(ids) > batch.MaxChunkSize {
		return "", &client.ValidationError{
			Field:   "ids",
			Value:   strings.Join(ids[:3], ",") + ",...",
			Allowed: []string{"at most 500 identifiers per job"},
		}
	}

	form := url.Values{
		"from": {from},
		"to":   {to},
		"ids":  {strings.Join(ids, ",")},
	}
	var resp struct {
		JobID string `json:"jobId"`
	}
	if err := m.client.PostForm(ctx, m.client.URL("/idmapping/run"), form, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", &client.ProtocolError{Op: "submit job", Detail: "response has no jobId"}
	}

	jobsSubmittedTotal.Inc()
	m.logger.Info().
		Str("job_id", resp.JobID).
		Str("from", from).
		Str("to", to).
		Int("ids", len(ids)).
		Msg("Job submitted")
	return resp.JobID, nil
}

// Status polls the job once.
func (m *Manager) Status(ctx context.Context, jobID string) (Status, error) {
	var payload map[string]json.RawMessage
	if err := m.client.GetJSON(ctx, m.client.URL("/idmapping/status/"+jobID), &payload); err != nil {
		return Status{}, err
	}
	return interpretStatus(jobID, payload)
}

// interpretStatus maps a status payload onto the job state machine.
func interpretStatus(jobID string, payload map[string]json.RawMessage) (Status, error) {
	_, hasResults := payload["results"]
	_, hasFailed := payload["failedIds"]
	if hasResults || hasFailed {
		return Status{State: StateFinished, Raw: string(StateFinished)}, nil
	}

	raw, ok := payload["jobStatus"]
	if !ok {
		return Status{}, &client.ProtocolError{
			Op:     "poll job " + jobID,
			Detail: "status payload has neither jobStatus nor results/failedIds",
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return Status{}, &client.ProtocolError{Op: "poll job " + jobID, Detail: "jobStatus is not a string", Err: err}
	}

	switch State(s) {
	case StateNew, StateRunning, StateFinished:
		return Status{State: State(s), Raw: s}, nil
	default:
		return Status{State: StateError, Raw: s}, nil
	}
}

// AwaitReady polls until the job leaves NEW/RUNNING and resolves its results
// handle. Polling is unbounded; ctx is checked before every poll. A job still
// pending when ctx ends yields *client.CancelledError.
func (m *Manager) AwaitReady(ctx context.Context, jobID string, params Params) (*ResultsHandle, error) {
	start := time.Now()
	polls := 0
	for {
		if err := ctx.Err(); err != nil {
			jobsFinishedTotal.WithLabelValues("cancelled").Inc()
			return nil, &client.CancelledError{JobID: jobID, Err: err}
		}

		status, err := m.Status(ctx, jobID)
		polls++
		if err != nil {
			jobsFinishedTotal.WithLabelValues(outcomeOf(err)).Inc()
			if ctx.Err() != nil {
				return nil, &client.CancelledError{JobID: jobID, Err: ctx.Err()}
			}
			return nil, err
		}
		jobPollsTotal.WithLabelValues(string(status.State)).Inc()

		if status.Pending() {
			m.logger.Debug().
				Str("job_id", jobID).
				Str("status", status.Raw).
				Int("poll", polls).
				Dur("interval", m.pollInterval).
				Msg("Job not ready")
			if err := m.wait(ctx, m.pollInterval); err != nil {
				jobsFinishedTotal.WithLabelValues("cancelled").Inc()
				return nil, &client.CancelledError{JobID: jobID, Err: err}
			}
			continue
		}

		if status.State == StateError {
			jobsFinishedTotal.WithLabelValues("error").Inc()
			m.logger.Error().
				Str("job_id", jobID).
				Str("status", status.Raw).
				Msg("Job failed")
			return nil, &client.JobError{JobID: jobID, Status: status.Raw}
		}

		handle, err := m.Details(ctx, jobID, params)
		if err != nil {
			jobsFinishedTotal.WithLabelValues(outcomeOf(err)).Inc()
			return nil, err
		}

		jobsFinishedTotal.WithLabelValues("finished").Inc()
		jobWaitSeconds.Observe(time.Since(start).Seconds())
		m.logger.Info().
			Str("job_id", jobID).
			Int("polls", polls).
			Dur("waited", time.Since(start)).
			Msg("Job finished")
		return handle, nil
	}
}

// Details resolves the results URL of a finished job.
func (m *Manager) Details(ctx context.Context, jobID string, params Params) (*ResultsHandle, error) {
	var resp struct {
		RedirectURL string `json:"redirectURL"`
	}
	if err := m.client.GetJSON(ctx, m.client.URL("/idmapping/details/"+jobID), &resp); err != nil {
		return nil, err
	}
	if resp.RedirectURL == "" {
		return nil, &client.ProtocolError{Op: "job details " + jobID, Detail: "response has no redirectURL"}
	}
	resultsURL, err := m.client.Resolve(resp.RedirectURL)
	if err != nil {
		return nil, &client.ProtocolError{Op: "job details " + jobID, Detail: "invalid redirectURL", Err: err}
	}
	return &ResultsHandle{JobID: jobID, URL: resultsURL, Params: params}, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, client.ErrCancelled):
		return "cancelled"
	case errors.Is(err, client.ErrProtocol):
		return "protocol_error"
	case errors.Is(err, client.ErrTransient):
		return "transient_error"
	default:
		return "error"
	}
}
