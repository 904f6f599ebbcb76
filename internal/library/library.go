package library

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"gravitext/internal/chunker"
	"gravitext/internal/codec"
	"gravitext/internal/integrity"
	"gravitext/internal/models"
	"gravitext/internal/relevance"
)

var (
	// ErrAlreadyExists reports a create against a name already in use.
	ErrAlreadyExists = errors.New("library already exists")
	// ErrNotFound reports an operation against an absent library name.
	ErrNotFound = errors.New("library not found")
	// ErrInput reports a malformed argument (empty name/query, bad topK).
	ErrInput = errors.New("invalid input")
)

// DefaultTopK is the retrieval depth used when the caller does not pick one.
const DefaultTopK = 8

// DefaultDecodeCacheSize bounds the materialized-content LRU.
const DefaultDecodeCacheSize = 1024

// Engine implements the chunk-encoding / integrity / relevance operations
// over in-memory Library values. It owns no persistence; stores hand it
// libraries and take them back.
type Engine struct {
	codec   codec.Codec
	chunker *chunker.Chunker
	scorer  *relevance.Scorer
	checker *integrity.Checker
	decoded *lru.Cache[string, string]
}

func NewEngine(cacheSize int) *Engine {
	if cacheSize <= 0 {
		cacheSize = DefaultDecodeCacheSize
	}
	c := codec.NewGravity()
	cache, _ := lru.New[string, string](cacheSize)
	return &Engine{
		codec:   c,
		chunker: chunker.New(0),
		scorer:  relevance.NewScorer(),
		checker: integrity.NewChecker(c),
		decoded: cache,
	}
}

// CreateLibrary chunks and encodes text into a new Library value. nMax <= 0
// selects the default orbital bound. The caller is responsible for the
// name-uniqueness check against its store before saving.
func (e *Engine) CreateLibrary(name, text string, nMax int) (*models.Library, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: library name required", ErrInput)
	}
	if nMax <= 0 {
		nMax = codec.DefaultNMax
	}
	now := time.Now().UTC()
	lib := &models.Library{Name: name, NMax: nMax, CreatedAt: now, UpdatedAt: now}
	for i, part := range e.chunker.Split(text) {
		st, err := e.codec.Encode(part, nMax)
		if err != nil {
			if errors.Is(err, codec.ErrBadNMax) {
				return nil, fmt.Errorf("%w: %v", ErrInput, err)
			}
			return nil, err
		}
		lib.Chunks = append(lib.Chunks, &models.Chunk{
			ID:          uuid.NewString(),
			Index:       i,
			Content:     part,
			State:       st,
			ContentHash: integrity.HashContent(part),
			WordCount:   len(strings.Fields(part)),
			CharCount:   len([]rune(part)),
		})
	}
	e.Recompute(lib)
	return lib, nil
}

// Recompute refreshes a library's aggregate statistics from its chunks. It is
// the single place aggregates are derived; callers invoke it after any
// mutating operation instead of summing inline.
func (e *Engine) Recompute(lib *models.Library) {
	lib.ChunkCount = len(lib.Chunks)
	lib.TotalWords = 0
	lib.OriginalBytes = 0
	lib.EncodedBytes = 0
	for _, ch := range lib.Chunks {
		lib.TotalWords += ch.WordCount
		lib.OriginalBytes += int64(len(ch.Content))
		if ch.Content == "" {
			// loaded from storage without materialized content
			lib.OriginalBytes += originalLen(ch.State)
		}
		lib.EncodedBytes += int64(e.codec.EstimatedSize(ch.State))
	}
	if lib.EncodedBytes > 0 {
		lib.CompressionRatio = float64(lib.OriginalBytes) / float64(lib.EncodedBytes)
	} else {
		lib.CompressionRatio = 0
	}
}

// originalLen derives the decoded byte length from a state without decoding.
func originalLen(st models.EncodedState) int64 {
	var n int64
	for _, s := range st.States {
		if s < 256 {
			n++
		} else if i := int(s) - 256; i < len(st.Dict) {
			n += int64(len(st.Dict[i]))
		}
	}
	return n
}

// QueryLibrary scores every chunk against query and returns the top k in
// descending score order, ties broken by original chunk order.
func (e *Engine) QueryLibrary(lib *models.Library, query string, topK int) ([]models.RetrievedChunk, error) {
	return e.Retrieve([]*models.Library{lib}, query, topK)
}

// Retrieve is the pooled retrieval pipeline: all chunks from all source
// libraries compete in a single global ranking. topK <= 0 selects the
// default; a topK beyond the candidate count returns every candidate.
func (e *Engine) Retrieve(libs []*models.Library, query string, topK int) ([]models.RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query required", ErrInput)
	}
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < 0 {
		return nil, fmt.Errorf("%w: topK must be positive", ErrInput)
	}
	var pool []models.RetrievedChunk
	for _, lib := range libs {
		for _, ch := range lib.Chunks {
			content, err := e.Content(lib.Name, ch)
			if err != nil {
				return nil, err
			}
			pool = append(pool, models.RetrievedChunk{
				Library:   lib.Name,
				ChunkID:   ch.ID,
				Index:     ch.Index,
				Score:     e.scorer.Score(query, content),
				Content:   content,
				WordCount: ch.WordCount,
			})
		}
	}
	// stable: pool is built in library/chunk order, so equal scores keep
	// original positions
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Score > pool[j].Score })
	if topK < len(pool) {
		pool = pool[:topK]
	}
	return pool, nil
}

// CalculateSimilarity scores a single chunk against a query.
func (e *Engine) CalculateSimilarity(query string, ch *models.Chunk) (float64, error) {
	content, err := e.Content("", ch)
	if err != nil {
		return 0, err
	}
	return e.scorer.Score(query, content), nil
}

// VerifyChunk re-derives the chunk's content hash from its encoded state.
func (e *Engine) VerifyChunk(ch *models.Chunk) bool { return e.checker.VerifyChunk(ch) }

// VerifyLibrary verifies every chunk and aggregates counts.
func (e *Engine) VerifyLibrary(lib *models.Library) models.IntegrityReport {
	return e.checker.VerifyLibrary(lib)
}

// Content returns the chunk's canonical text, materializing it from the
// encoded state through the decode LRU when it is not already cached on the
// chunk itself.
func (e *Engine) Content(libName string, ch *models.Chunk) (string, error) {
	if ch.Content != "" {
		return ch.Content, nil
	}
	key := libName + "/" + ch.ID
	if v, ok := e.decoded.Get(key); ok {
		return v, nil
	}
	content, err := e.codec.Decode(ch.State)
	if err != nil {
		return "", err
	}
	if content != "" {
		e.decoded.Add(key, content)
	}
	return content, nil
}
