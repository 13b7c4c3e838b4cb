package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// GenerateETag returns a strong ETag for content: a truncated SHA-256.
func GenerateETag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:16]) + `"`
}

// ParseIfNoneMatch splits an If-None-Match header into its entity tags.
func ParseIfNoneMatch(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	if header == "*" {
		return []string{"*"}
	}

	var etags []string
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(part)
		weak := strings.HasPrefix(tag, "W/")
		raw := strings.TrimPrefix(tag, "W/")
		if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
			continue
		}
		if weak {
			raw = "W/" + raw
		}
		etags = append(etags, raw)
	}
	return etags
}

// MatchesETag reports whether etag weakly matches any of etags.
func MatchesETag(etag string, etags []string) bool {
	want := strings.TrimPrefix(etag, "W/")
	for _, e := range etags {
		if e == "*" || strings.TrimPrefix(e, "W/") == want {
			return true
		}
	}
	return false
}

// NotModified sets the ETag header and, when the request's If-None-Match
// matches it, writes 304 and reports true.
func NotModified(w http.ResponseWriter, r *http.Request, etag string) bool {
	w.Header().Set("ETag", etag)
	if MatchesETag(etag, ParseIfNoneMatch(r.Header.Get("If-None-Match"))) {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}
