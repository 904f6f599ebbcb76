package integrity

import (
	"strings"
	"testing"

	"gravitext/internal/codec"
	"gravitext/internal/models"
)

func makeChunk(t *testing.T, content string) *models.Chunk {
	t.Helper()
	g := codec.NewGravity()
	st, err := g.Encode(content, codec.DefaultNMax)
	if err != nil {
		t.Fatal(err)
	}
	return &models.Chunk{ID: "c0", Content: content, State: st, ContentHash: HashContent(content)}
}

func TestVerifyChunkFresh(t *testing.T) {
	k := NewChecker(codec.NewGravity())
	for _, content := range []string{"", "plain text", strings.Repeat("repeat me ", 100), "ünïcödé ∆"} {
		if !k.VerifyChunk(makeChunk(t, content)) {
			t.Errorf("fresh chunk failed verification: %q", content)
		}
	}
}

func TestVerifyChunkDetectsCorruption(t *testing.T) {
	k := NewChecker(codec.NewGravity())

	ch := makeChunk(t, "the same words keep appearing, the same words")
	if len(ch.State.States) == 0 {
		t.Fatal("expected a non-empty state sequence")
	}
	// flip one symbol without touching the recorded hash
	ch.State.States[0] ^= 1
	if k.VerifyChunk(ch) {
		t.Fatal("corrupted state passed verification")
	}

	ch = makeChunk(t, "another chunk with a dictionary, another chunk")
	if len(ch.State.Dict) == 0 {
		t.Fatal("expected a non-empty dictionary")
	}
	ch.State.Dict[0] = ch.State.Dict[0] + "x"
	if k.VerifyChunk(ch) {
		t.Fatal("corrupted dictionary passed verification")
	}
}

func TestVerifyChunkUndecodableState(t *testing.T) {
	k := NewChecker(codec.NewGravity())
	ch := makeChunk(t, "reference past the bound")
	ch.State.States = append(ch.State.States, 1<<20)
	if k.VerifyChunk(ch) {
		t.Fatal("undecodable state passed verification")
	}
}

func TestVerifyLibrary(t *testing.T) {
	k := NewChecker(codec.NewGravity())
	lib := &models.Library{Name: "lib"}
	for _, c := range []string{"first chunk text", "second chunk text", "third chunk text"} {
		lib.Chunks = append(lib.Chunks, makeChunk(t, c))
	}
	rep := k.VerifyLibrary(lib)
	if rep.Failed != 0 || !rep.AllVerified || rep.Percentage != 100 {
		t.Fatalf("fresh library should verify fully: %+v", rep)
	}

	lib.Chunks[1].State.States[0] ^= 1
	rep = k.VerifyLibrary(lib)
	if rep.Failed != 1 || rep.AllVerified {
		t.Fatalf("expected exactly one failure: %+v", rep)
	}
	if len(rep.FailedIDs) != 1 || rep.FailedIDs[0] != lib.Chunks[1].ID {
		t.Fatalf("unexpected failed ids: %v", rep.FailedIDs)
	}
}

func TestVerifyEmptyLibraryVacuous(t *testing.T) {
	k := NewChecker(codec.NewGravity())
	rep := k.VerifyLibrary(&models.Library{Name: "empty"})
	if !rep.AllVerified || rep.Percentage != 100 {
		t.Fatalf("empty library must verify vacuously: %+v", rep)
	}
}
