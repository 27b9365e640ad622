// Package cache provides the shared response cache that deduplicates
// repeated provider calls across queries.
package cache

import (
	"context"
	"sort"
	"strings"
)

// Store is a key -> envelope cache with a fixed TTL. Entries are immutable
// once written: a write replaces the whole value, never merges.
type Store interface {
	// Get returns the stored envelope, or false when the key is absent or
	// expired. Expired entries are evicted on read, not proactively.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores the envelope wholesale under the key.
	Set(ctx context.Context, key string, value []byte)
}

// Key builds a deterministic, order-independent cache key from the semantic
// parameters of a call, scoped per domain.
func Key(domain string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(domain)
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	return b.String()
}
