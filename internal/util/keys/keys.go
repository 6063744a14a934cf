// Package keys derives the deterministic identifiers used by the cache
// and trail layers. Two logically equal requests must map to the same
// key regardless of which caller produced them, so all derivation goes
// through a single canonical form.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/docpulse/runtime-node/internal/model"
)

// separator cannot appear unescaped in any part, otherwise two
// different part lists could collide on their joined form.
const separator = "\x1f"

func digest(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte(separator))
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// QueryKey derives the cache key for an operation against a scope.
// The payload is the caller's canonical rendering of the request
// (query text, filters, limits) and is hashed, never stored.
func QueryKey(scope string, kind model.OperationKind, payload string) string {
	return digest(scope, string(kind), payload)
}

// PatternSignature derives the trail signature for an access pattern.
func PatternSignature(p model.Pattern) string {
	return digest(string(p.Kind), p.Collection, p.FilterShape)
}

// FilterShape reduces a set of filter field names to a canonical shape
// string. Values are excluded so that queries differing only in bound
// values share a trail.
func FilterShape(fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	sorted := make([]string, len(fields))
	copy(sorted, fields)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
