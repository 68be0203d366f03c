package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Suggested lifetimes per kind of upstream data.
const (
	TTLMetadata  = 5 * time.Minute
	TTLIssueList = 5 * time.Minute
	TTLDiff      = 15 * time.Minute
	TTLStats     = 30 * time.Minute
	TTLSprint    = 5 * time.Minute
	TTLAlerts    = 2 * time.Minute
)

// Key joins prefix and the non-empty parts with ":".
//
//	Key("gh", "pr", "acme/widget", "42") == "gh:pr:acme/widget:42"
func Key(prefix string, parts ...string) string {
	segments := make([]string, 0, len(parts)+1)
	segments = append(segments, prefix)
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}

	return strings.Join(segments, ":")
}

// HashParams digests a parameter map into a short, stable key segment. Maps
// are serialized with sorted keys, so the result does not depend on the
// order the parameters were built in.
func HashParams(params map[string]any) string {
	data, err := json.Marshal(params)
	if err != nil {
		// unserializable values hash their error text
		data = []byte(err.Error())
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])[:12]
}
