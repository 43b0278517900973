// Package correlation produces the short keys that tie one invocation's
// log lines, trace records, and cache entries together.
package correlation

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"
)

// NewInvocationKey returns a fresh key for one scripting-host invocation,
// e.g. "inv-9f8a02c1". Short enough to read in a log line, unique enough
// for overlapping invocations.
func NewInvocationKey() string {
	id := uuid.NewString()
	return "inv-" + strings.ReplaceAll(id, "-", "")[:8]
}

// QueryKey derives a deterministic cache key for a query over one entity
// kind. The canonical string must already encode every knob that changes
// the result (predicate, limit, fields, sort) so equal queries collide and
// different queries do not.
func QueryKey(entity, canonical string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(canonical))
	return fmt.Sprintf("q:%s:%016x", normalize(entity), h.Sum64())
}

// EntityKey derives the cache key for a single entity fetched by id.
func EntityKey(entity, id string) string {
	return "e:" + normalize(entity) + ":" + normalize(id)
}

// normalize lowercases and strips the quoting and trailing punctuation that
// ids picked out of tool arguments sometimes carry.
func normalize(value string) string {
	normalized := strings.TrimSpace(strings.ToLower(value))
	normalized = strings.Trim(normalized, "\"'`")
	normalized = strings.TrimRight(normalized, ".,;:")
	return normalized
}
