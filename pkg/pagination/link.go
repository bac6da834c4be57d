package pagination

import (
	"net/http"
	"regexp"
	"strconv"
)

var nextLinkPattern = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="?next"?`)

// parseNextLink extracts the rel="next" target of a Link header. Returns ""
// when there is no next page.
func parseNextLink(header string) string {
	m := nextLinkPattern.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[1]
}

// parseTotal reads X-Total-Results. Returns -1 when absent or invalid.
func parseTotal(h http.Header) int {
	v := h.Get("X-Total-Results")
	if v == "" {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
