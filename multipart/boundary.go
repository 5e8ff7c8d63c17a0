package multipart

// matcher locates a fixed ASCII delimiter inside a byte stream that may
// be split across arbitrarily many chunks (§4.E "Boundary search"). The
// pattern is "\n--<boundary>"; a Boyer-Moore-Horspool bad-character
// table drives the full-buffer search, and endsWith lets the parser
// carry a partial match across a chunk boundary. §4.E also names a
// startsWith(buf, n) operation ("does buf continue a pattern match of
// length n?"); the parser never needs it directly because it re-runs
// match over carry+buf on every Write rather than resuming a match from
// a remembered offset, so startsWith has no caller here and is omitted.
type matcher struct {
	pattern []byte
	skip    [256]int
}

func newMatcher(boundary string) *matcher {
	m := &matcher{pattern: append([]byte("\n--"), boundary...)}
	for i := range m.skip {
		m.skip[i] = len(m.pattern)
	}
	for i := 0; i < len(m.pattern)-1; i++ {
		m.skip[m.pattern[i]] = len(m.pattern) - 1 - i
	}
	return m
}

func (m *matcher) len() int { return len(m.pattern) }

// match returns the index of the first full occurrence of the pattern in
// buf, or -1.
func (m *matcher) match(buf []byte) int {
	n, plen := len(buf), len(m.pattern)
	if plen == 0 || n < plen {
		return -1
	}
	i := 0
	for i <= n-plen {
		j := plen - 1
		for j >= 0 && buf[i+j] == m.pattern[j] {
			j--
		}
		if j < 0 {
			return i
		}
		i += m.skip[buf[i+plen-1]]
	}
	return -1
}

// endsWith returns the length of the longest suffix of buf that is a
// prefix of the pattern, i.e. the partial match to carry into the next
// chunk.
func (m *matcher) endsWith(buf []byte) int {
	max := len(m.pattern) - 1
	if max > len(buf) {
		max = len(buf)
	}
	for l := max; l > 0; l-- {
		suffix := buf[len(buf)-l:]
		ok := true
		for i := 0; i < l; i++ {
			if suffix[i] != m.pattern[i] {
				ok = false
				break
			}
		}
		if ok {
			return l
		}
	}
	return 0
}
