package ffmpeg

import "strings"

// tailLimit caps the retained stderr tail. Encoder failures usually explain
// themselves in the last few lines; everything older is dropped.
const tailLimit = 32 * 1024

// StderrTail retains the tail of a child's stderr. Carriage-return
// terminated chunks (ffmpeg progress updates rewriting one terminal line)
// coalesce into a single entry so they cannot push real diagnostics out of
// the window.
type StderrTail struct {
	lines     []string
	lastWasCR bool
	size      int
}

// NewStderrTail returns an empty tail.
func NewStderrTail() *StderrTail {
	return &StderrTail{}
}

// AddChunk records one chunk of stderr, terminated by delim ('\r' or '\n').
func (t *StderrTail) AddChunk(line string, delim byte) {
	if t.lastWasCR && delim == '\r' && len(t.lines) > 0 {
		// Overwrite the previous progress rewrite instead of stacking them.
		t.size -= len(t.lines[len(t.lines)-1])
		t.lines[len(t.lines)-1] = line
		t.size += len(line)
	} else {
		t.lines = append(t.lines, line)
		t.size += len(line)
	}
	t.lastWasCR = delim == '\r'

	for t.size > tailLimit && len(t.lines) > 1 {
		t.size -= len(t.lines[0])
		t.lines = t.lines[1:]
	}
}

// String returns the retained tail with one line per entry.
func (t *StderrTail) String() string {
	return strings.Join(t.lines, "\n")
}

// LastLines returns up to n trailing non-empty lines joined for compact
// error messages.
func (t *StderrTail) LastLines(n int) string {
	var kept []string
	for i := len(t.lines) - 1; i >= 0 && len(kept) < n; i-- {
		if strings.TrimSpace(t.lines[i]) != "" {
			kept = append([]string{t.lines[i]}, kept...)
		}
	}
	return strings.Join(kept, " | ")
}
