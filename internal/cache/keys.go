package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// ReportKey hashes the parameters of a report so equivalent requests share
// a key. A nil bound is encoded as "*".
func ReportKey(kind, scope string, start, end *time.Time) string {
	return makeKey(
		strings.ToLower(strings.TrimSpace(kind)),
		strings.ToLower(strings.TrimSpace(scope)),
		canonicalBound(start),
		canonicalBound(end),
	)
}

func canonicalBound(t *time.Time) string {
	if t == nil {
		return "*"
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func makeKey(parts ...string) string {
	joined := strings.Join(parts, "|")
	h := sha1.Sum([]byte(joined))
	return hex.EncodeToString(h[:])
}
