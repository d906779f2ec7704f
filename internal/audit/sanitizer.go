// Package audit implements the Privacy-Compliant Audit Log (§4.7): a
// sanitizing writer in front of an append-only store. No component
// outside this package may write an AuditEvent directly.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// redactedKeys is the set of lowercased key names whose value is
// always replaced regardless of its content, because the key name
// alone signals location/PII data (§4.7 "Key-name strip").
var redactedKeys = map[string]string{
	"latitude":    "[REDACTED_COORDINATE]",
	"longitude":   "[REDACTED_COORDINATE]",
	"lat":         "[REDACTED_COORDINATE]",
	"lng":         "[REDACTED_COORDINATE]",
	"coordinates": "[REDACTED_COORDINATE]",
	"geolocation": "[REDACTED_LOCATION]",
	"location":    "[REDACTED_LOCATION]",
	"address":     "[REDACTED_ADDRESS]",
	"city":        "[REDACTED_LOCATION]",
	"state":       "[REDACTED_LOCATION]",
	"country":     "[REDACTED_LOCATION]",
	"zip":         "[REDACTED_LOCATION]",
	"postal":      "[REDACTED_LOCATION]",
	"gps":         "[REDACTED_COORDINATE]",
	"position":    "[REDACTED_COORDINATE]",
	"ip":          "[REDACTED_IP]",
	"addr":        "[REDACTED_ADDRESS]",
}

var (
	ipv4Pattern        = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`)
	ipv6Pattern        = regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`)
	phonePattern       = regexp.MustCompile(`(?:\+?\b\d{1,3}[-.\s]?)?(?:\(\d{3}\)|\b\d{3})[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	emailPattern       = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	ssnPattern         = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	panPattern         = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	coordinatePairRe   = regexp.MustCompile(`-?\d{1,3}\.\d{3,},\s*-?\d{1,3}\.\d{3,}`)
)

// sanitizeString applies the fixed regex strip rules to a single
// string value.
func sanitizeString(s string) string {
	s = coordinatePairRe.ReplaceAllString(s, "[REDACTED_COORDINATE]")
	s = ipv6Pattern.ReplaceAllString(s, "[REDACTED_IP]")
	s = ipv4Pattern.ReplaceAllString(s, "[REDACTED_IP]")
	s = emailPattern.ReplaceAllString(s, "user@domain.com")
	s = ssnPattern.ReplaceAllString(s, "[REDACTED_SSN]")
	s = panPattern.ReplaceAllString(s, "[REDACTED_PAN]")
	s = phonePattern.ReplaceAllString(s, "XXX-XXX-XXXX")
	return s
}

// containsForbiddenPattern reports whether s still matches any of the
// regexes after sanitization — used as the final hard-invariant check
// before a write is accepted.
func containsForbiddenPattern(s string) bool {
	return ipv4Pattern.MatchString(s) ||
		ipv6Pattern.MatchString(s) ||
		ssnPattern.MatchString(s) ||
		coordinatePairRe.MatchString(s) ||
		emailPattern.MatchString(s)
}

// SanitizePayload walks a JSON-like map/slice/scalar tree, applying
// both the key-name strip and the regex strip, and returns the
// cleaned tree plus whether any forbidden pattern still survives.
func SanitizePayload(payload map[string]interface{}) (map[string]interface{}, bool) {
	clean := make(map[string]interface{}, len(payload))
	violation := false

	for k, v := range payload {
		if repl, redacted := redactedKeys[strings.ToLower(k)]; redacted {
			clean[k] = repl
			continue
		}

		sv, sawViolation := sanitizeValue(v)
		clean[k] = sv
		if sawViolation {
			violation = true
		}
	}

	return clean, violation
}

func sanitizeValue(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case string:
		sanitized := sanitizeString(val)
		return sanitized, containsForbiddenPattern(sanitized)
	case map[string]interface{}:
		cleaned, violation := SanitizePayload(val)
		return cleaned, violation
	case []interface{}:
		out := make([]interface{}, len(val))
		violation := false
		for i, item := range val {
			sv, v2 := sanitizeValue(item)
			out[i] = sv
			if v2 {
				violation = true
			}
		}
		return out, violation
	default:
		return v, false
	}
}

// HashIdentifier salts and hashes a user/session identifier so the
// stored value can't be reversed to the original id (§4.7 "User
// identifiers and session identifiers are stored only as salted hashes").
func HashIdentifier(salt, id string) string {
	sum := sha256.Sum256([]byte(salt + ":" + id))
	return hex.EncodeToString(sum[:])
}
