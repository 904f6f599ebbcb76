package integrity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"gravitext/internal/codec"
	"gravitext/internal/models"
)

// HashContent returns the hex digest recorded on a chunk at encode time.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Checker re-derives chunk content from its encoded state and compares the
// recomputed digest against the recorded one.
type Checker struct {
	codec codec.Codec
}

func NewChecker(c codec.Codec) *Checker { return &Checker{codec: c} }

// VerifyChunk reports whether the chunk's encoded state still decodes to the
// hashed content. The chunk is never mutated; a state that fails to decode
// counts as a verification failure, not an error.
func (k *Checker) VerifyChunk(ch *models.Chunk) bool {
	decoded, err := k.codec.Decode(ch.State)
	if err != nil {
		return false
	}
	got := HashContent(decoded)
	// full-width comparison; both digests are fixed-length hex
	return subtle.ConstantTimeCompare([]byte(got), []byte(ch.ContentHash)) == 1
}

// VerifyLibrary runs VerifyChunk over every chunk and aggregates counts.
// Zero chunks verify vacuously at 100%.
func (k *Checker) VerifyLibrary(lib *models.Library) models.IntegrityReport {
	rep := models.IntegrityReport{Library: lib.Name}
	for _, ch := range lib.Chunks {
		if k.VerifyChunk(ch) {
			rep.Verified++
		} else {
			rep.Failed++
			rep.FailedIDs = append(rep.FailedIDs, ch.ID)
		}
	}
	total := rep.Verified + rep.Failed
	if total == 0 {
		rep.Percentage = 100
	} else {
		rep.Percentage = 100 * float64(rep.Verified) / float64(total)
	}
	rep.AllVerified = rep.Failed == 0
	return rep
}
