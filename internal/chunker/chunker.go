package chunker

import "strings"

const (
	// DefaultTargetBytes is the hard upper bound on a chunk's byte length.
	DefaultTargetBytes = 4096
	// minBoundaryFraction bounds how early in the window a soft boundary
	// may be taken, so boundary-rich text does not degenerate into tiny
	// chunks.
	minBoundaryFraction = 2
)

// Chunker splits text into an ordered sequence of chunk texts. Splitting is
// deterministic and lossless: the concatenation of the returned chunks is
// byte-identical to the input. Paragraph breaks are preferred, then sentence
// ends; when neither occurs inside the size window the chunk is cut at the
// byte limit.
type Chunker struct {
	targetBytes int
}

func New(targetBytes int) *Chunker {
	if targetBytes <= 0 {
		targetBytes = DefaultTargetBytes
	}
	return &Chunker{targetBytes: targetBytes}
}

// Split returns the chunk texts for text. Empty input yields zero chunks.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	rest := text
	for len(rest) > c.targetBytes {
		cut := c.cutPoint(rest)
		out = append(out, rest[:cut])
		rest = rest[cut:]
	}
	if len(rest) > 0 {
		out = append(out, rest)
	}
	return out
}

// cutPoint picks the split offset for the next chunk. The search window is
// [target/minBoundaryFraction, target]; paragraph boundaries win over
// sentence boundaries, and a hard cut at target is the fallback. The cut is
// always placed after the boundary so no bytes are dropped.
func (c *Chunker) cutPoint(s string) int {
	lo := c.targetBytes / minBoundaryFraction
	hi := c.targetBytes
	window := s[lo:hi]
	if i := strings.LastIndex(window, "\n\n"); i >= 0 {
		return lo + i + len("\n\n")
	}
	if i := lastSentenceEnd(window); i >= 0 {
		return lo + i
	}
	// no boundary in the window; make sure a hard cut does not split a
	// multi-byte UTF-8 sequence
	cut := hi
	for cut > lo && isContinuationByte(s[cut]) {
		cut--
	}
	if cut == lo {
		return hi
	}
	return cut
}

// lastSentenceEnd returns the offset just past the final sentence terminator
// in s that is followed by whitespace, or -1.
func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i > 0; i-- {
		switch s[i] {
		case ' ', '\n', '\t':
			switch s[i-1] {
			case '.', '!', '?':
				return i
			}
		}
	}
	return -1
}

func isContinuationByte(b byte) bool { return b&0xC0 == 0x80 }
