package xtream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractUpstreamCode(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`<title>example.com | 522: Connection timed out</title> error code: 522`, "522"},
		{`Error 521: Web server is down`, "521"},
		{`ERROR CODE: 1016`, "1016"},
		{`error: 1016`, "1016"},
		{`no code here`, ""},
		{`error code: 52`, ""}, // too short to be a cloudflare code
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractUpstreamCode([]byte(tt.body)), "body %q", tt.body)
	}
}

func TestBodySnippet(t *testing.T) {
	assert.Equal(t, "short", bodySnippet([]byte("  short  ")))
	assert.Equal(t, "", bodySnippet([]byte("   ")))

	long := strings.Repeat("x", 400)
	snip := bodySnippet([]byte(long))
	assert.Len(t, snip, 180)

	// Truncation must not split a multi-byte rune.
	umlauts := strings.Repeat("ü", 200)
	assert.True(t, len(bodySnippet([]byte(umlauts))) <= 180)
	for _, r := range bodySnippet([]byte(umlauts)) {
		assert.Equal(t, 'ü', r)
	}
}
