package wbi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeURIComponent(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"abcXYZ019", "abcXYZ019"},
		{"a b", "a%20b"},
		{"-_.!~*'()", "-_.!~*'()"},
		{"a+b=c&d", "a%2Bb%3Dc%26d"},
		{"/?:@#", "%2F%3F%3A%40%23"},
		{"中文", "%E4%B8%AD%E6%96%87"},
		{"😀", "%F0%9F%98%80"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EncodeURIComponent(tt.input), "EncodeURIComponent(%q)", tt.input)
	}
}

func TestCleanValue(t *testing.T) {
	assert.Equal(t, "abc", cleanValue("!a'b(c)*"))
	assert.Equal(t, "plain", cleanValue("plain"))
}

func TestKeyFromURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://i0.hdslb.com/bfs/wbi/7cd084941338484aae1ad9425b84077c.png", "7cd084941338484aae1ad9425b84077c"},
		{"https://i0.hdslb.com/bfs/wbi/4932caff0ff746eab6f01bf08b70ac45.png?v=1", "4932caff0ff746eab6f01bf08b70ac45"},
		{"4932caff0ff746eab6f01bf08b70ac45", "4932caff0ff746eab6f01bf08b70ac45"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, KeyFromURL(tt.input), "KeyFromURL(%q)", tt.input)
	}
}
