// Package allowlist implements the routing-key allowlist matcher (spec
// §4.D): literal names, leading-wildcard "*.suffix" patterns, and
// generic "*suffix" patterns. An empty pattern list means allow-all.
package allowlist

import "strings"

// Allowed reports whether host matches any pattern in patterns. Patterns
// are evaluated in order; the first match wins. An empty or nil patterns
// list allows every host.
func Allowed(host string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, p := range patterns {
		if matches(host, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// matches implements the three pattern forms named in spec §3/§4.D.
func matches(host, pattern string) bool {
	switch {
	case strings.HasPrefix(pattern, "*."):
		suffix := pattern[1:] // keep the leading dot: ".suffix"
		base := pattern[2:]
		return host == base || strings.HasSuffix(host, suffix)

	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(host, pattern[1:])

	default:
		return host == pattern
	}
}
