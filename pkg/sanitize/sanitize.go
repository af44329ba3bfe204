// Package sanitize redacts secret-bearing values from URLs, query strings,
// argument vectors, and structured log contexts before any sink observes
// them. Every URL or argv that reaches a logger or the audit stream must pass
// through this package first.
package sanitize

import (
	"strings"
)

// Redacted is the literal substituted for sensitive values.
const Redacted = "[REDACTED]"

// baseNames is the seed set of sensitive parameter and key names, matched
// case-insensitively.
var baseNames = []string{
	"password",
	"access_password",
	"access_key",
	"access_key_id",
	"secret",
	"access_secret",
	"token",
	"access_token",
	"refresh_token",
	"auth",
	"authorization",
	"sig",
	"signature",
	"api_key",
	"apikey",
	"key",
}

// baseFlags is the seed set of CLI flags whose following value is sensitive.
// --username is PII rather than a secret but is redacted all the same.
var baseFlags = []string{
	"-p",
	"--password",
	"--access-password",
	"--access-secret",
	"-k",
	"--access-key",
	"--access-key-id",
	"--token",
	"--username",
}

// Sanitizer redacts sensitive values. The zero value is not usable; use New.
// A Sanitizer is immutable and safe for concurrent use.
type Sanitizer struct {
	names map[string]struct{}
	flags map[string]struct{}
}

// New returns a Sanitizer covering the seed name set plus any extra
// parameter names (matched case-insensitively).
func New(extraNames ...string) *Sanitizer {
	s := &Sanitizer{
		names: make(map[string]struct{}, len(baseNames)+len(extraNames)),
		flags: make(map[string]struct{}, len(baseFlags)),
	}
	for _, n := range baseNames {
		s.names[n] = struct{}{}
	}
	for _, n := range extraNames {
		s.names[strings.ToLower(n)] = struct{}{}
	}
	for _, f := range baseFlags {
		s.flags[f] = struct{}{}
	}
	return s
}

var defaultSanitizer = New()

// Default returns the process-wide Sanitizer with the seed name set.
func Default() *Sanitizer {
	return defaultSanitizer
}

// IsSensitiveName reports whether the given parameter or key name belongs to
// the sensitive set.
func (s *Sanitizer) IsSensitiveName(name string) bool {
	_, ok := s.names[strings.ToLower(name)]
	return ok
}

// QueryParams redacts the values of sensitive-named query parameters in a URL
// or bare query string. Parameter order and all other characters are
// preserved. The input is never mutated; running the result through again is
// a no-op.
func (s *Sanitizer) QueryParams(raw string) string {
	// Fast path: no sensitive name appears anywhere in the input.
	lower := strings.ToLower(raw)
	found := false
	for name := range s.names {
		if strings.Contains(lower, name) {
			found = true
			break
		}
	}
	if !found {
		return raw
	}

	prefix := ""
	query := raw
	suffix := ""
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		prefix = raw[:i+1]
		query = raw[i+1:]
	} else if !strings.ContainsRune(raw, '=') {
		// Neither a URL with a query nor a bare query string.
		return raw
	}
	if i := strings.IndexByte(query, '#'); i >= 0 {
		suffix = query[i:]
		query = query[:i]
	}

	pairs := strings.Split(query, "&")
	for i, pair := range pairs {
		eq := strings.IndexByte(pair, '=')
		if eq < 0 {
			continue
		}
		if s.IsSensitiveName(pair[:eq]) {
			pairs[i] = pair[:eq+1] + Redacted
		}
	}
	return prefix + strings.Join(pairs, "&") + suffix
}

// Argv returns a copy of argv with the values of sensitive flags replaced.
// Both the two-token form ("--password" "hunter2") and the single-token form
// ("--password=hunter2") are handled.
func (s *Sanitizer) Argv(argv []string) []string {
	out := make([]string, len(argv))
	copy(out, argv)
	for i := 0; i < len(out); i++ {
		arg := out[i]
		if eq := strings.IndexByte(arg, '='); eq > 0 && strings.HasPrefix(arg, "-") {
			if _, ok := s.flags[arg[:eq]]; ok {
				out[i] = arg[:eq+1] + Redacted
			}
			continue
		}
		if _, ok := s.flags[arg]; ok && i+1 < len(out) {
			out[i+1] = Redacted
			i++
		}
	}
	return out
}

// Map returns a deep copy of m with values under sensitive-named keys
// replaced. Nested maps and slices are sanitized recursively.
func (s *Sanitizer) Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s.IsSensitiveName(k) {
			out[k] = Redacted
			continue
		}
		out[k] = s.value(v)
	}
	return out
}

// StringMap returns a copy of m with values under sensitive-named keys
// replaced.
func (s *Sanitizer) StringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s.IsSensitiveName(k) {
			out[k] = Redacted
		} else {
			out[k] = v
		}
	}
	return out
}

func (s *Sanitizer) value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return s.Map(t)
	case map[string]string:
		return s.StringMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = s.value(e)
		}
		return out
	default:
		return v
	}
}

// QueryParams redacts using the default Sanitizer.
func QueryParams(raw string) string {
	return defaultSanitizer.QueryParams(raw)
}

// Argv redacts using the default Sanitizer.
func Argv(argv []string) []string {
	return defaultSanitizer.Argv(argv)
}

// Map redacts using the default Sanitizer.
func Map(m map[string]any) map[string]any {
	return defaultSanitizer.Map(m)
}
