package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/Sternrassler/idmapping-client/pkg/format"
)

// CacheKey identifies the result of one mapping chunk.
type CacheKey struct {
	From       string
	To         string
	Format     format.Format
	Fields     []string
	Compressed bool

	// IncludeIsoform changes the result payload, so it is part of the key.
	IncludeIsoform bool

	// IDs are the identifiers of the chunk, in submission order.
	IDs []string
}

// String generates a deterministic cache key string.
// Format: idmap:from:to:format:compressed:isoform:fields:sha256(ids)
//
// Example:
//
//	idmap:UniProtKB_AC-ID:Ensembl:tsv:false:false:-:9f86d081...
//
// The identifier list is hashed so keys stay short for 500-ID chunks. Its
// order is significant because results follow submission order.
func (k CacheKey) String() string {
	fields := "-"
	if len(k.Fields) > 0 {
		fields = strings.Join(k.Fields, ",")
	}

	h := sha256.New()
	for _, id := range k.IDs {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}

	return strings.Join([]string{
		"idmap",
		k.From,
		k.To,
		k.Format.String(),
		strconv.FormatBool(k.Compressed),
		strconv.FormatBool(k.IncludeIsoform),
		fields,
		hex.EncodeToString(h.Sum(nil)),
	}, ":")
}
