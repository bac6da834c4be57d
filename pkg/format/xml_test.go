package format

import (
	"errors"
	"strings"
	"testing"

	"github.com/Sternrassler/idmapping-client/pkg/client"
	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	xmlPage1 = `<?xml version="1.0" encoding="UTF-8"?>
<uniprot xmlns="http://uniprot.org/uniprot"><entry><accession>P1</accession></entry><entry><accession>P2</accession></entry><copyright>c</copyright></uniprot>`
	xmlPage2 = `<?xml version="1.0" encoding="UTF-8"?>
<uniprot xmlns="http://uniprot.org/uniprot"><entry><accession>P3</accession></entry><copyright>c</copyright></uniprot>`
	xmlPage3 = `<?xml version="1.0" encoding="UTF-8"?>
<uniprot xmlns="http://uniprot.org/uniprot"><entry><accession>P4</accession></entry><entry><accession>P5</accession></entry><copyright>c</copyright></uniprot>`
)

func childTags(t *testing.T, doc []byte) []string {
	t.Helper()
	d := etree.NewDocument()
	require.NoError(t, d.ReadFromBytes(doc))
	var tags []string
	for _, el := range d.Root().ChildElements() {
		if acc := el.SelectElement("accession"); acc != nil {
			tags = append(tags, acc.Text())
			continue
		}
		tags = append(tags, el.Tag)
	}
	return tags
}

func TestHierarchical_SplicesEntriesInOrder(t *testing.T) {
	rs := mergeAll(t, Hierarchical, xmlPage1, xmlPage2, xmlPage3)

	assert.Equal(t, 5, rs.Len())
	assert.Equal(t, []string{"P1", "P2", "P3", "P4", "P5", "copyright"}, childTags(t, rs.Document))

	_, ok := rs.RetrievedIDs()
	assert.False(t, ok)
}

func TestHierarchical_SinglePageUntouched(t *testing.T) {
	rs := mergeAll(t, Hierarchical, xmlPage1)

	assert.Equal(t, xmlPage1, string(rs.Document))
	assert.Equal(t, 2, rs.Len())
}

func TestHierarchical_FirstPageWithoutEntries(t *testing.T) {
	empty := `<uniprot></uniprot>`
	rs := mergeAll(t, Hierarchical, empty, xmlPage2)

	tags := childTags(t, rs.Document)
	assert.Equal(t, []string{"P3"}, tags)
}

const xmlNoEntries = `<?xml version="1.0" encoding="UTF-8"?>
<uniprot xmlns="http://uniprot.org/uniprot"><copyright>c</copyright></uniprot>`

func TestHierarchical_FirstPageOnlyTrailingElement(t *testing.T) {
	page, err := Decode(Hierarchical, []byte(xmlNoEntries))
	require.NoError(t, err)
	assert.Equal(t, 0, page.Count())

	rs := mergeAll(t, Hierarchical, xmlNoEntries, xmlPage3)

	assert.Equal(t, 2, rs.Len())
	assert.Equal(t, []string{"P4", "P5", "copyright"}, childTags(t, rs.Document))
}

func TestConcat_HierarchicalFirstChunkAllFailed(t *testing.T) {
	first := mergeAll(t, Hierarchical, xmlNoEntries)
	second := mergeAll(t, Hierarchical, xmlPage3)

	rs, err := Concat(Hierarchical, first, second)
	require.NoError(t, err)

	assert.Equal(t, 2, rs.Len())
	assert.Equal(t, []string{"P4", "P5", "copyright"}, childTags(t, rs.Document))
}

func TestEntryTag(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		want   string
		wantOK bool
	}{
		{name: "entries", doc: xmlPage1, want: "entry", wantOK: true},
		{name: "only trailing element", doc: xmlNoEntries, wantOK: false},
		{name: "empty root", doc: `<uniprot/>`, wantOK: false},
		{name: "other record tag", doc: `<r><item/><item/><footer/></r>`, want: "item", wantOK: true},
		{name: "single entry", doc: `<uniprot><entry/></uniprot>`, want: "entry", wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := etree.NewDocument()
			require.NoError(t, d.ReadFromString(tt.doc))
			tag, ok := entryTag(d.Root())
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, tag)
			}
		})
	}
}

func TestHierarchical_InvalidDocument(t *testing.T) {
	_, err := Decode(Hierarchical, []byte("<uniprot><<entry/></uniprot>"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrProtocol))

	_, err = Decode(Hierarchical, []byte("   "))
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrProtocol))
}

func TestConcat_Hierarchical(t *testing.T) {
	first := mergeAll(t, Hierarchical, xmlPage1)
	second := mergeAll(t, Hierarchical, xmlPage2, xmlPage3)

	rs, err := Concat(Hierarchical, first, second)
	require.NoError(t, err)

	assert.Equal(t, 5, rs.Len())
	out, err := rs.Bytes()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(out), "<copyright>"))
}
