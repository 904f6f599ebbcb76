package codec

import (
	"errors"
	"sort"
	"strings"

	"gravitext/internal/models"
)

// Codec turns chunk text into a compact state sequence and back. Encode must
// be exact for every input string; Decode is the inverse over anything Encode
// produced. EstimatedSize is a reporting figure only and never affects
// correctness.
type Codec interface {
	Encode(text string, nMax int) (models.EncodedState, error)
	Decode(st models.EncodedState) (string, error)
	EstimatedSize(st models.EncodedState) int
}

// ErrCorruptState reports an encoded state whose symbol sequence references
// past the dictionary bound.
var ErrCorruptState = errors.New("corrupt encoded state")

// ErrBadNMax reports an orbital bound outside [1, MaxNMax].
var ErrBadNMax = errors.New("nMax out of range")

const (
	// DefaultNMax is the orbital bound used when the caller does not pick one.
	DefaultNMax = 15
	// MaxNMax keeps the dictionary capacity within the symbol value range.
	MaxNMax = 50

	// Size estimate constants: fixed per-chunk overhead plus a fixed cost
	// per emitted symbol. Dictionary bytes are charged separately so the
	// reported ratio stays honest.
	stateOverheadBytes = 32
	bytesPerState      = 2

	// Symbol values below literalBase are literal bytes; values at or above
	// it are dictionary references.
	literalBase = 256
)

// Gravity is the dictionary-coding codec. Each chunk gets its own token
// dictionary: tokens are maximal word runs with an attached trailing space,
// or runs of other bytes. The dictionary holds up to capacity(nMax) entries
// chosen by byte savings; every remaining byte is emitted literally, so the
// construction is lossless for arbitrary input including invalid UTF-8.
//
// The dictionary travels inside the state, making decode self-contained.
type Gravity struct{}

func NewGravity() Gravity { return Gravity{} }

// capacity returns the dictionary slot budget for an orbital bound: level n
// contributes n^2 slots, so nMax=15 yields 1240.
func capacity(nMax int) int {
	total := 0
	for n := 1; n <= nMax; n++ {
		total += n * n
	}
	return total
}

func (Gravity) Encode(text string, nMax int) (models.EncodedState, error) {
	if nMax < 1 || nMax > MaxNMax {
		return models.EncodedState{}, ErrBadNMax
	}
	st := models.EncodedState{NMax: nMax}
	if text == "" {
		return st, nil
	}
	tokens := tokenize(text)
	dict := buildDict(tokens, capacity(nMax))
	slot := make(map[string]int, len(dict))
	for i, tok := range dict {
		slot[tok] = i
	}
	st.Dict = dict
	st.States = make([]uint32, 0, len(tokens))
	for _, tok := range tokens {
		if i, ok := slot[tok]; ok {
			st.States = append(st.States, uint32(literalBase+i))
			continue
		}
		for j := 0; j < len(tok); j++ {
			st.States = append(st.States, uint32(tok[j]))
		}
	}
	return st, nil
}

func (Gravity) Decode(st models.EncodedState) (string, error) {
	var b strings.Builder
	for _, s := range st.States {
		if s < literalBase {
			b.WriteByte(byte(s))
			continue
		}
		i := int(s) - literalBase
		if i >= len(st.Dict) {
			return "", ErrCorruptState
		}
		b.WriteString(st.Dict[i])
	}
	return b.String(), nil
}

func (Gravity) EstimatedSize(st models.EncodedState) int {
	n := stateOverheadBytes + bytesPerState*len(st.States)
	for _, tok := range st.Dict {
		n += len(tok) + 1
	}
	return n
}

// tokenize splits text into a lossless token sequence: word-byte runs (with
// one trailing space folded in when present) and runs of remaining bytes.
// Concatenating the tokens reproduces the input exactly.
func tokenize(text string) []string {
	var tokens []string
	i := 0
	for i < len(text) {
		j := i
		for j < len(text) && isWordByte(text[j]) {
			j++
		}
		if j > i {
			// fold a single following space into the token; adjacent
			// words then cost one symbol each
			if j < len(text) && text[j] == ' ' {
				j++
			}
			tokens = append(tokens, text[i:j])
			i = j
			continue
		}
		for j < len(text) && !isWordByte(text[j]) {
			j++
		}
		tokens = append(tokens, text[i:j])
		i = j
	}
	return tokens
}

// isWordByte treats ASCII alphanumerics and all non-ASCII bytes as word
// material, so multi-byte UTF-8 sequences stay inside one token.
func isWordByte(b byte) bool {
	return b >= 0x80 ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

// buildDict selects up to cap tokens maximizing byte savings. A dictionary
// hit costs bytesPerState instead of bytesPerState per byte, and the entry
// itself costs len+1 stored bytes, so the net saving for a token seen c
// times is c*(len-1)*bytesPerState - (len+1). Selection order is savings
// descending with first-appearance order breaking ties, which keeps Encode
// deterministic.
func buildDict(tokens []string, cap int) []string {
	type cand struct {
		tok     string
		first   int
		savings int
	}
	seen := make(map[string]*cand)
	var cands []*cand
	for i, tok := range tokens {
		if c, ok := seen[tok]; ok {
			c.savings += (len(tok) - 1) * bytesPerState
			continue
		}
		c := &cand{tok: tok, first: i, savings: (len(tok)-1)*bytesPerState - (len(tok) + 1)}
		seen[tok] = c
		cands = append(cands, c)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].savings != cands[j].savings {
			return cands[i].savings > cands[j].savings
		}
		return cands[i].first < cands[j].first
	})
	if len(cands) > cap {
		cands = cands[:cap]
	}
	dict := make([]string, 0, len(cands))
	for _, c := range cands {
		if c.savings <= 0 {
			break
		}
		dict = append(dict, c.tok)
	}
	return dict
}
