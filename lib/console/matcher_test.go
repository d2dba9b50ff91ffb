package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// feedAll feeds stream into m and returns how many bytes were consumed before
// the pattern matched, or -1 if it never did.
func feedAll(m Matcher, stream string) int {
	for i := 0; i < len(stream); i++ {
		if m.Feed(stream[i]) {
			return i + 1
		}
	}
	return -1
}

func TestNaiveMatcher_Basic(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		stream   string
		consumed int
	}{
		{"exact", "abc", "abc", 3},
		{"with prefix noise", "abc", "xxabc", 5},
		{"restart after partial", "abc", "ababc", 5},
		{"mismatched byte starts new occurrence", "# ", "## ", 3},
		{"no match", "abc", "ababab", -1},
		{"single byte", "x", "aaax", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewNaiveMatcher(tt.pattern)
			assert.Equal(t, tt.consumed, feedAll(m, tt.stream))
		})
	}
}

// After a mismatch the naive automaton only reconsiders the current byte,
// not the tail of the partial match before it. For a self-overlapping
// pattern this loses a match the prefix automaton finds.
func TestNaiveMatcher_MissesOverlap(t *testing.T) {
	naive := NewNaiveMatcher("aab")
	prefix := NewPrefixMatcher("aab")

	assert.Equal(t, -1, feedAll(naive, "aaab"))
	assert.Equal(t, 4, feedAll(prefix, "aaab"))
}

func TestPrefixMatcher_Basic(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		stream   string
		consumed int
	}{
		{"exact", "abc", "abc", 3},
		{"overlapping restarts", "abab", "aabab", 5},
		{"repeated prefix", "aaa", "aabaaa", 6},
		{"no match", "abc", "acacac", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewPrefixMatcher(tt.pattern)
			assert.Equal(t, tt.consumed, feedAll(m, tt.stream))
		})
	}
}

func TestMatcher_Reset(t *testing.T) {
	m := NewNaiveMatcher("ab")
	m.Feed('a')
	m.Reset()
	assert.False(t, m.Feed('b'), "reset should drop partial progress")
	assert.False(t, m.Feed('a'))
	assert.True(t, m.Feed('b'))
}
