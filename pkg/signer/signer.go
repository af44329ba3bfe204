// Package signer computes HMAC-SHA256 signatures over canonical request
// strings for API-key authenticated calls to the ELN API.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Signer produces request signatures using a fixed signing secret. Safe for
// concurrent use.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// New returns a Signer keyed with the account's access password. Presence of
// the secret is validated by the auth manager at startup, not here.
func New(accessPassword string) *Signer {
	return &Signer{
		secret: []byte(accessPassword),
		now:    time.Now,
	}
}

// WithClock overrides the timestamp source. For tests.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Sign computes the signature for a request. It returns the lowercase hex
// HMAC-SHA256 of the canonical string and the unix timestamp that was folded
// into it; callers attach both to the outbound request.
//
// Timestamps come from the system clock with no skew adjustment. If the
// upstream rejects a stale timestamp the request is re-signed on retry.
func (s *Signer) Sign(method, path string, params url.Values) (string, int64) {
	ts := s.now().Unix()
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonicalString(method, path, params, ts)))
	return hex.EncodeToString(mac.Sum(nil)), ts
}

// canonicalString builds the normalized signing input:
//
//	METHOD + "\n" + PATH + "\n" + k1=v1&k2=v2&...&ts=<unix_seconds>
//
// Pairs are sorted ascending by key, then by value; the timestamp pair is
// appended after sorting so it always comes last.
func canonicalString(method, path string, params url.Values, ts int64) string {
	pairs := make([]string, 0, len(params)+1)
	for k, vs := range params {
		for _, v := range vs {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)
	pairs = append(pairs, "ts="+strconv.FormatInt(ts, 10))

	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(strings.Join(pairs, "&"))
	return b.String()
}
