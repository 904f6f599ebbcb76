package codec

import (
	"errors"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"plain":       "The quick brown fox jumps over the lazy dog.",
		"repeated":    strings.Repeat("gravity holds the state together ", 200),
		"unicode":     "héllo wörld — ∆t × π ≈ 3.14159 日本語のテキスト",
		"emoji":       "🌍 orbit 🌍 orbit 🌍",
		"binaryish":   "\x00\x01\xff\xfe not really text \x80\x81",
		"newlines":    "line one\n\nline two\n\tline three\r\n",
		"single_rune": "ß",
		"long_word":   strings.Repeat("a", 10000),
	}
	g := NewGravity()
	for name, text := range cases {
		for _, nMax := range []int{1, 2, DefaultNMax, 30} {
			st, err := g.Encode(text, nMax)
			if err != nil {
				t.Fatalf("%s nMax=%d: Encode error: %v", name, nMax, err)
			}
			got, err := g.Decode(st)
			if err != nil {
				t.Fatalf("%s nMax=%d: Decode error: %v", name, nMax, err)
			}
			if got != text {
				t.Errorf("%s nMax=%d: round trip mismatch", name, nMax)
			}
		}
	}
}

func TestEncodeDeterministic(t *testing.T) {
	text := strings.Repeat("same input, same state sequence, every time. ", 50)
	g := NewGravity()
	a, _ := g.Encode(text, DefaultNMax)
	b, _ := g.Encode(text, DefaultNMax)
	if len(a.States) != len(b.States) || len(a.Dict) != len(b.Dict) {
		t.Fatalf("state shapes differ between runs")
	}
	for i := range a.States {
		if a.States[i] != b.States[i] {
			t.Fatalf("state %d differs between runs", i)
		}
	}
}

func TestEncodeBadNMax(t *testing.T) {
	g := NewGravity()
	for _, n := range []int{0, -1, MaxNMax + 1} {
		if _, err := g.Encode("text", n); !errors.Is(err, ErrBadNMax) {
			t.Errorf("nMax=%d: expected ErrBadNMax, got %v", n, err)
		}
	}
}

func TestDecodeCorruptState(t *testing.T) {
	g := NewGravity()
	st, err := g.Encode("a common word appears here, a common word indeed", DefaultNMax)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Dict) == 0 {
		t.Fatal("expected a non-empty dictionary")
	}
	// reference past the dictionary bound
	st.States = append(st.States, uint32(literalBase+len(st.Dict)))
	if _, err := g.Decode(st); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("expected ErrCorruptState, got %v", err)
	}
}

func TestEstimatedSizeCompressesRepetitiveText(t *testing.T) {
	// natural-looking text over a small vocabulary compresses past 1x
	words := []string{"gravity", "state", "orbit", "field", "energy", "mass", "photon", "vector"}
	var b strings.Builder
	for i := 0; i < 600; i++ {
		b.WriteString(words[i%len(words)])
		if i%12 == 11 {
			b.WriteString(". ")
		} else {
			b.WriteString(" ")
		}
	}
	text := b.String()
	g := NewGravity()
	st, err := g.Encode(text, DefaultNMax)
	if err != nil {
		t.Fatal(err)
	}
	est := g.EstimatedSize(st)
	if est <= 0 {
		t.Fatalf("estimated size must be positive, got %d", est)
	}
	if ratio := float64(len(text)) / float64(est); ratio < 1.0 {
		t.Errorf("expected compression ratio >= 1.0, got %.3f (%d -> %d bytes)", ratio, len(text), est)
	}
}

func TestEstimatedSizeIncludesDictionary(t *testing.T) {
	g := NewGravity()
	st, _ := g.Encode(strings.Repeat("dictionary entries are charged for ", 40), DefaultNMax)
	base := stateOverheadBytes + bytesPerState*len(st.States)
	if g.EstimatedSize(st) <= base {
		t.Fatal("estimate must charge for stored dictionary bytes")
	}
}

func TestHigherNMaxNeverHurtsFidelity(t *testing.T) {
	text := strings.Repeat("more orbitals mean a bigger dictionary budget only. ", 120)
	g := NewGravity()
	var prev int
	for _, nMax := range []int{1, 3, 8, DefaultNMax} {
		st, err := g.Encode(text, nMax)
		if err != nil {
			t.Fatal(err)
		}
		got, err := g.Decode(st)
		if err != nil || got != text {
			t.Fatalf("nMax=%d: fidelity lost", nMax)
		}
		est := g.EstimatedSize(st)
		if prev > 0 && est > prev {
			t.Errorf("nMax=%d: estimate grew from %d to %d on repetitive input", nMax, prev, est)
		}
		prev = est
	}
}

func TestCapacityGrowth(t *testing.T) {
	if capacity(1) != 1 {
		t.Fatalf("capacity(1) = %d", capacity(1))
	}
	if capacity(DefaultNMax) != 1240 {
		t.Fatalf("capacity(%d) = %d, want 1240", DefaultNMax, capacity(DefaultNMax))
	}
	for n := 2; n <= MaxNMax; n++ {
		if capacity(n) <= capacity(n-1) {
			t.Fatalf("capacity not monotonic at %d", n)
		}
	}
}
