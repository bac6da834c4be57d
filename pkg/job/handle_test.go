package job

import (
	"net/url"
	"testing"

	"github.com/Sternrassler/idmapping-client/pkg/format"
)

func TestResultsHandle_PageURL(t *testing.T) {
	tests := []struct {
		name   string
		handle ResultsHandle
		want   url.Values
	}{
		{
			name: "defaults",
			handle: ResultsHandle{
				URL:    "https://rest.example.org/idmapping/results/abc",
				Params: Params{Format: format.Tabular},
			},
			want: url.Values{
				"format":         {"tsv"},
				"includeIsoform": {"false"},
				"size":           {"500"},
				"compressed":     {"false"},
			},
		},
		{
			name: "fields and compression",
			handle: ResultsHandle{
				URL: "https://rest.example.org/idmapping/uniprotkb/results/abc",
				Params: Params{
					Format:         format.Structured,
					Fields:         []string{"accession", "gene_names"},
					Compressed:     true,
					PageSize:       100,
					IncludeIsoform: true,
				},
			},
			want: url.Values{
				"format":         {"json"},
				"fields":         {"accession,gene_names"},
				"includeIsoform": {"true"},
				"size":           {"100"},
				"compressed":     {"true"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.handle.PageURL()
			if err != nil {
				t.Fatalf("PageURL() error = %v", err)
			}
			u, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("PageURL() returned unparseable url %q", raw)
			}
			got := u.Query()
			if len(got) != len(tt.want) {
				t.Errorf("query = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got.Get(k) != v[0] {
					t.Errorf("query[%s] = %q, want %q", k, got.Get(k), v[0])
				}
			}
		})
	}
}

func TestResultsHandle_StreamURL(t *testing.T) {
	h := ResultsHandle{
		URL:    "https://rest.example.org/idmapping/uniprotkb/results/abc",
		Params: Params{Format: format.Tabular},
	}

	raw, err := h.StreamURL()
	if err != nil {
		t.Fatalf("StreamURL() error = %v", err)
	}
	u, _ := url.Parse(raw)
	if u.Path != "/idmapping/uniprotkb/results/stream/abc" {
		t.Errorf("StreamURL() path = %q", u.Path)
	}
}

func TestResultsHandle_NoFormat(t *testing.T) {
	h := ResultsHandle{JobID: "abc", URL: "https://rest.example.org/idmapping/results/abc"}
	if _, err := h.PageURL(); err == nil {
		t.Error("PageURL() without a format should fail")
	}
}
