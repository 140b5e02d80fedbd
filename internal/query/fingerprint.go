package query

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint computes a stable hash of a filter-parameter set. Distinct
// filter combinations never collide into the same cache entry, and the
// same combination always fingerprints identically regardless of map
// iteration order or which process computes it.
func Fingerprint(filters map[string]string) string {
	if len(filters) == 0 {
		return "none"
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(filters[k])
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:16])
}
