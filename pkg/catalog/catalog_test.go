package catalog

import (
	"errors"
	"testing"

	"github.com/Sternrassler/idmapping-client/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	again, err := Default()
	require.NoError(t, err)
	assert.Same(t, c, again)

	assert.True(t, c.HasNamespace("UniProtKB_AC-ID"))
	assert.True(t, c.HasNamespace("Ensembl"))
	assert.False(t, c.HasNamespace("uniprotkb_ac-id"))

	f, ok := c.Field("gene_names")
	require.True(t, ok)
	assert.Equal(t, "Gene Names", f.Label)
	assert.Equal(t, "Names & Taxonomy", f.Section)

	assert.Equal(t, "accession", c.Fields()[0].Name)
	assert.Equal(t, "UniProtKB_AC-ID", c.Namespaces()[0].Name)
}

func TestDefaultFields(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"accession", "id", "gene_names", "protein_name", "organism_name", "organism_id",
		"go_id", "go_p", "go_c", "go_f", "cc_subcellular_location", "sequence",
	}, c.DefaultFields())
}

func TestValidateNamespaces(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name      string
		from, to  string
		wantField string
	}{
		{"valid", "UniProtKB_AC-ID", "Ensembl", ""},
		{"bad from", "InvalidDB", "Ensembl", "from"},
		{"bad to", "UniProtKB_AC-ID", "InvalidDB", "to"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.ValidateNamespaces(tt.from, tt.to)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *client.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.NotEmpty(t, verr.Allowed)
			assert.True(t, errors.Is(err, client.ErrValidation))
		})
	}
}

func TestNormalizeFields(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	got, err := c.NormalizeFields([]string{"Accession", " GO_ID ", "", "organism_name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"accession", "go_id", "organism_name"}, got)

	_, err = c.NormalizeFields([]string{"accession", "invalid_field"})
	var verr *client.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "invalid_field", verr.Value)
}

func TestNormalizeFields_DefaultKeyword(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	got, err := c.NormalizeFields([]string{"Default"})
	require.NoError(t, err)
	assert.Equal(t, c.DefaultFields(), got)

	got, err = c.NormalizeFields([]string{"default", "mass"})
	require.NoError(t, err)
	assert.Len(t, got, len(c.DefaultFields())+1)
	assert.Equal(t, "mass", got[len(got)-1])
}

func TestSupportsFields(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.True(t, c.SupportsFields("UniProtKB"))
	assert.True(t, c.SupportsFields("UniProtKB-Swiss-Prot"))
	assert.False(t, c.SupportsFields("Ensembl"))
	assert.False(t, c.SupportsFields("UniProtKB_AC-ID"))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "namespaces: [unclosed"},
		{"namespaces not a map", "namespaces: [a, b]"},
		{"duplicate namespace", "namespaces:\n  A: [X]\n  B: [X]\n"},
		{"unknown default field", "default_fields: [nope]\nfields:\n  S:\n    accession: Entry\n"},
		{"unknown field target", "field_targets: [Nope]\nnamespaces:\n  A: [X]\n"},
		{"fields section is a list", "fields:\n  S: [accession]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_Minimal(t *testing.T) {
	doc := `
field_targets: [KB]
default_fields: [accession]
namespaces:
  Main: [KB, Other]
fields:
  Names:
    accession: Entry
`
	c, err := Load([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, []string{"KB", "Other"}, c.NamespaceNames())
	assert.Equal(t, "Main", c.Namespaces()[1].Category)
	assert.True(t, c.SupportsFields("KB"))
}
