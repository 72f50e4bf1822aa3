package services

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

// queryFingerprint generates a stable cache key for a query. Text is
// case-folded and whitespace-collapsed, scope order never changes the
// key, and the limit participates so different page sizes cache apart.
func queryFingerprint(q domain.Query) string {
	h := sha256.New()

	// Write normalised query text
	text := strings.ToLower(strings.Join(strings.Fields(q.Text), " "))
	h.Write([]byte(text))
	h.Write([]byte{0}) // separator

	// Write space filter
	h.Write([]byte(q.Filters.Space))
	h.Write([]byte{0})

	// Write scopes (sorted for order-independence, then joined with separator)
	sortedScopes := slices.Clone(q.Filters.Scopes)
	slices.Sort(sortedScopes)
	h.Write([]byte(strings.Join(sortedScopes, "\x01")))
	h.Write([]byte{0})

	// Write time range bounds
	h.Write([]byte(formatBound(q.Filters.ModifiedAfter)))
	h.Write([]byte{0})
	h.Write([]byte(formatBound(q.Filters.ModifiedBefore)))
	h.Write([]byte{0})

	// Write effective limit
	h.Write([]byte(strconv.Itoa(q.EffectiveLimit())))
	h.Write([]byte{0})

	return hex.EncodeToString(h.Sum(nil))
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
