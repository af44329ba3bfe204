package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryParams(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "signed auth url",
			input: "https://eln.example/api/users/user_info?access_key_id=AK&sig=DEADBEEF&ts=123",
			want:  "https://eln.example/api/users/user_info?access_key_id=[REDACTED]&sig=[REDACTED]&ts=123",
		},
		{
			name:  "no sensitive params",
			input: "https://eln.example/api/pages/list?uid=U1&notebook_id=N1",
			want:  "https://eln.example/api/pages/list?uid=U1&notebook_id=N1",
		},
		{
			name:  "bare query string",
			input: "token=abc123&page_id=P1",
			want:  "token=[REDACTED]&page_id=P1",
		},
		{
			name:  "case insensitive names",
			input: "https://x.example/?Token=abc&SIG=def",
			want:  "https://x.example/?Token=[REDACTED]&SIG=[REDACTED]",
		},
		{
			name:  "order and other characters preserved",
			input: "https://x.example/p?b=2&password=s3cr3t&a=1",
			want:  "https://x.example/p?b=2&password=[REDACTED]&a=1",
		},
		{
			name:  "fragment preserved",
			input: "https://x.example/p?secret=s#frag",
			want:  "https://x.example/p?secret=[REDACTED]#frag",
		},
		{
			name:  "empty value still redacted",
			input: "https://x.example/p?api_key=&x=1",
			want:  "https://x.example/p?api_key=[REDACTED]&x=1",
		},
		{
			name:  "no query at all",
			input: "https://x.example/tokenizer",
			want:  "https://x.example/tokenizer",
		},
		{
			name:  "pair without equals untouched",
			input: "https://x.example/p?flag&sig=abc",
			want:  "https://x.example/p?flag&sig=[REDACTED]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, QueryParams(tt.input))
		})
	}
}

func TestAccessKeyNamesAreSensitive(t *testing.T) {
	t.Parallel()
	assert.True(t, Default().IsSensitiveName("access_key_id"))
	assert.True(t, Default().IsSensitiveName("Access_Key"))
	out := QueryParams("https://eln.example/api/pages/list?access_key_id=AK123&uid=U1")
	assert.NotContains(t, out, "AK123")
	assert.Contains(t, out, "uid=U1")
}

func TestQueryParamsIdempotent(t *testing.T) {
	t.Parallel()
	once := QueryParams("https://x.example/?sig=abc&ts=1&token=zzz")
	assert.Equal(t, once, QueryParams(once))
}

func TestQueryParamsRemovesSecretValues(t *testing.T) {
	t.Parallel()
	out := QueryParams("https://eln.example/api?access_key_id=AK&sig=DEADBEEF&access_password=SECRET&ts=9")
	assert.NotContains(t, out, "DEADBEEF")
	assert.NotContains(t, out, "SECRET")
	assert.Contains(t, out, "ts=9")
	assert.Equal(t, 3, strings.Count(out, Redacted))
}

func TestArgv(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "two token flags",
			input: []string{"eln-mcp", "--access-key-id", "AK", "--access-password", "hunter2"},
			want:  []string{"eln-mcp", "--access-key-id", Redacted, "--access-password", Redacted},
		},
		{
			name:  "single token flag",
			input: []string{"eln-mcp", "--password=hunter2", "--debug"},
			want:  []string{"eln-mcp", "--password=" + Redacted, "--debug"},
		},
		{
			name:  "short flags",
			input: []string{"eln-mcp", "-p", "pw", "-k", "KEY"},
			want:  []string{"eln-mcp", "-p", Redacted, "-k", Redacted},
		},
		{
			name:  "username is redacted as PII",
			input: []string{"eln-mcp", "--username", "ada@example.org"},
			want:  []string{"eln-mcp", "--username", Redacted},
		},
		{
			name:  "non-sensitive flags untouched",
			input: []string{"eln-mcp", "--api-base-url", "https://eln.example/api"},
			want:  []string{"eln-mcp", "--api-base-url", "https://eln.example/api"},
		},
		{
			name:  "trailing flag without value",
			input: []string{"eln-mcp", "--token"},
			want:  []string{"eln-mcp", "--token"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Argv(tt.input))
		})
	}
}

func TestArgvDoesNotMutateInput(t *testing.T) {
	t.Parallel()
	in := []string{"--token", "abc"}
	_ = Argv(in)
	assert.Equal(t, []string{"--token", "abc"}, in)
}

func TestMap(t *testing.T) {
	t.Parallel()
	in := map[string]any{
		"user":     "ada",
		"Password": "pw",
		"nested": map[string]any{
			"access_token": "tok",
			"depth":        2,
		},
		"list": []any{
			map[string]any{"secret": "s"},
			"plain",
		},
	}
	out := Map(in)

	assert.Equal(t, "ada", out["user"])
	assert.Equal(t, Redacted, out["Password"])
	assert.Equal(t, Redacted, out["nested"].(map[string]any)["access_token"])
	assert.Equal(t, 2, out["nested"].(map[string]any)["depth"])
	assert.Equal(t, Redacted, out["list"].([]any)[0].(map[string]any)["secret"])
	assert.Equal(t, "plain", out["list"].([]any)[1])

	// Original untouched.
	assert.Equal(t, "pw", in["Password"])
	assert.Equal(t, "tok", in["nested"].(map[string]any)["access_token"])
}

func TestNewWithExtraNames(t *testing.T) {
	t.Parallel()
	s := New("session_id")
	assert.True(t, s.IsSensitiveName("Session_ID"))
	assert.Equal(t, "a?session_id="+Redacted, s.QueryParams("a?session_id=xyz"))
	// Default sanitizer is unaffected.
	assert.False(t, Default().IsSensitiveName("session_id"))
}
