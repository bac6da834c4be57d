package job

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/idmapping-client/internal/testutil"
	"github.com/Sternrassler/idmapping-client/pkg/client"
	"github.com/Sternrassler/idmapping-client/pkg/format"
)

func newTestManager(t *testing.T, mock *testutil.MockService, opts ...Option) (*Manager, *atomic.Int32) {
	t.Helper()
	cfg := client.DefaultConfig()
	cfg.BaseURL = mock.URL()
	cfg.RateLimit = 0
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = time.Millisecond
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	sleeps := &atomic.Int32{}
	opts = append([]Option{WithWaitFunc(func(ctx context.Context, d time.Duration) error {
		sleeps.Add(1)
		return ctx.Err()
	})}, opts...)
	return NewManager(c, opts...), sleeps
}

func TestInterpretStatus(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantState State
		wantRaw   string
		wantErr   error
	}{
		{"new", `{"jobStatus":"NEW"}`, StateNew, "NEW", nil},
		{"running", `{"jobStatus":"RUNNING"}`, StateRunning, "RUNNING", nil},
		{"explicit finished", `{"jobStatus":"FINISHED"}`, StateFinished, "FINISHED", nil},
		{"results key", `{"results":[]}`, StateFinished, "FINISHED", nil},
		{"failedIds key", `{"failedIds":["X"]}`, StateFinished, "FINISHED", nil},
		{"error status", `{"jobStatus":"ERROR"}`, StateError, "ERROR", nil},
		{"unknown status", `{"jobStatus":"PURGED"}`, StateError, "PURGED", nil},
		{"empty payload", `{}`, "", "", client.ErrProtocol},
		{"status not a string", `{"jobStatus":42}`, "", "", client.ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload map[string]json.RawMessage
			if err := json.Unmarshal([]byte(tt.payload), &payload); err != nil {
				t.Fatalf("bad fixture: %v", err)
			}

			got, err := interpretStatus("job-1", payload)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("interpretStatus() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("interpretStatus() error = %v", err)
			}
			if got.State != tt.wantState || got.Raw != tt.wantRaw {
				t.Errorf("interpretStatus() = %+v, want {%s %s}", got, tt.wantState, tt.wantRaw)
			}
		})
	}
}

func TestSubmit(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	m, _ := newTestManager(t, mock)

	jobID, err := m.Submit(context.Background(), "UniProtKB_AC-ID", "Ensembl", []string{"P05067", "P12345"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	job, ok := mock.Job(jobID)
	if !ok {
		t.Fatalf("job %q not registered with the service", jobID)
	}
	if job.From != "UniProtKB_AC-ID" || job.To != "Ensembl" {
		t.Errorf("namespaces = %s -> %s", job.From, job.To)
	}
	if strings.Join(job.IDs, ",") != "P05067,P12345" {
		t.Errorf("ids = %v", job.IDs)
	}
}

func TestSubmit_Validation(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	m, _ := newTestManager(t, mock)

	tooMany := make([]string, 501)
	for i := range tooMany {
		tooMany[i] = "P1"
	}

	for name, ids := range map[string][]string{"empty": nil, "over limit": tooMany} {
		t.Run(name, func(t *testing.T) {
			_, err := m.Submit(context.Background(), "A", "B", ids)
			if !errors.Is(err, client.ErrValidation) {
				t.Errorf("Submit() error = %v, want ErrValidation", err)
			}
		})
	}
	if mock.Jobs() != 0 {
		t.Errorf("service received %d jobs, want 0", mock.Jobs())
	}
}

func TestSubmit_MissingJobID(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetHandler("/idmapping/run", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	m, _ := newTestManager(t, mock)

	_, err := m.Submit(context.Background(), "A", "B", []string{"X"})
	if !errors.Is(err, client.ErrProtocol) {
		t.Errorf("Submit() error = %v, want ErrProtocol", err)
	}
}

func TestSubmit_ServerErrorExhaustsRetries(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.FailNext("/idmapping/run", 503, 503, 503, 503, 503, 503)
	m, _ := newTestManager(t, mock)

	_, err := m.Submit(context.Background(), "A", "B", []string{"X"})
	if !errors.Is(err, client.ErrTransient) {
		t.Errorf("Submit() error = %v, want ErrTransient", err)
	}
}

func TestAwaitReady_SleepsOncePerPendingPoll(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.PendingPolls = 1
	m, sleeps := newTestManager(t, mock)

	ctx := context.Background()
	jobID, err := m.Submit(ctx, "UniProtKB_AC-ID", "Ensembl", []string{"P30542"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	handle, err := m.AwaitReady(ctx, jobID, Params{Format: format.Structured})
	if err != nil {
		t.Fatalf("AwaitReady() error = %v", err)
	}

	if got := sleeps.Load(); got != 1 {
		t.Errorf("sleeps = %d, want 1", got)
	}
	if handle.JobID != jobID {
		t.Errorf("handle.JobID = %q, want %q", handle.JobID, jobID)
	}
	if !strings.HasSuffix(handle.URL, "/idmapping/results/"+jobID) {
		t.Errorf("handle.URL = %q", handle.URL)
	}
	if _, polls, _ := mock.Counts(); polls != 2 {
		t.Errorf("status polls = %d, want 2", polls)
	}
}

func TestAwaitReady_FinishedIsIdempotent(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	m, sleeps := newTestManager(t, mock)

	ctx := context.Background()
	jobID, err := m.Submit(ctx, "A", "UniProtKB", []string{"P1"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	params := Params{Format: format.Tabular, Fields: []string{"accession"}}
	first, err := m.AwaitReady(ctx, jobID, params)
	if err != nil {
		t.Fatalf("AwaitReady() error = %v", err)
	}
	second, err := m.AwaitReady(ctx, jobID, params)
	if err != nil {
		t.Fatalf("AwaitReady() second error = %v", err)
	}

	if first.URL != second.URL || first.JobID != second.JobID {
		t.Errorf("handles differ: %+v vs %+v", first, second)
	}
	if sleeps.Load() != 0 {
		t.Errorf("finished job should not sleep, slept %d times", sleeps.Load())
	}
	if !strings.Contains(first.URL, "/idmapping/uniprotkb/results/") {
		t.Errorf("UniProtKB target should resolve to the uniprotkb results path, got %q", first.URL)
	}
}

func TestAwaitReady_TerminalErrorStatus(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.TerminalStatus = "ERROR"
	m, _ := newTestManager(t, mock)

	ctx := context.Background()
	jobID, _ := m.Submit(ctx, "A", "B", []string{"X"})
	_, err := m.AwaitReady(ctx, jobID, Params{Format: format.Structured})

	var jobErr *client.JobError
	if !errors.As(err, &jobErr) {
		t.Fatalf("AwaitReady() error = %v, want *JobError", err)
	}
	if jobErr.Status != "ERROR" || jobErr.JobID != jobID {
		t.Errorf("JobError = %+v", jobErr)
	}
}

func TestAwaitReady_MalformedPayload(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetHandler("/idmapping/status/job-x", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"warnings":["something odd"]}`))
	})
	m, _ := newTestManager(t, mock)

	_, err := m.AwaitReady(context.Background(), "job-x", Params{Format: format.Structured})
	if !errors.Is(err, client.ErrProtocol) {
		t.Errorf("AwaitReady() error = %v, want ErrProtocol", err)
	}
}

func TestAwaitReady_MissingRedirect(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetHandler("/idmapping/status/job-x", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	})
	mock.SetHandler("/idmapping/details/job-x", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"from":"A"}`))
	})
	m, _ := newTestManager(t, mock)

	_, err := m.AwaitReady(context.Background(), "job-x", Params{Format: format.Structured})
	if !errors.Is(err, client.ErrProtocol) {
		t.Errorf("AwaitReady() error = %v, want ErrProtocol", err)
	}
}

func TestAwaitReady_CancelledWhilePending(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.PendingPolls = 1000

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	polls := 0
	m, _ := newTestManager(t, mock, WithWaitFunc(func(ctx context.Context, d time.Duration) error {
		polls++
		if polls == 3 {
			cancel()
		}
		return ctx.Err()
	}))

	jobID, err := m.Submit(ctx, "A", "B", []string{"X"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	_, err = m.AwaitReady(ctx, jobID, Params{Format: format.Structured})

	var cancelled *client.CancelledError
	if !errors.As(err, &cancelled) {
		t.Fatalf("AwaitReady() error = %v, want *CancelledError", err)
	}
	if cancelled.JobID != jobID {
		t.Errorf("CancelledError.JobID = %q, want %q", cancelled.JobID, jobID)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled, got %v", err)
	}
}

func TestAwaitReady_AlreadyCancelled(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	m, _ := newTestManager(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.AwaitReady(ctx, "job-1", Params{Format: format.Structured})
	if !errors.Is(err, client.ErrCancelled) {
		t.Errorf("AwaitReady() error = %v, want ErrCancelled", err)
	}
	if _, polls, _ := mock.Counts(); polls != 0 {
		t.Errorf("status polls = %d, want 0", polls)
	}
}

func TestSleep_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := sleep(ctx, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("sleep() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("sleep() ignored the context")
	}
}
