package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"gravitext/internal/library"
	"gravitext/internal/models"
)

// FileDoc is one fully loaded input file.
type FileDoc struct {
	Path    string
	Content string
}

// LoadFiles reads every path fully, in order. The first read failure aborts
// the whole load; no partial result is returned. This is deliberate: callers
// asked for a pooled ranking over all inputs, and silently dropping a source
// would skew it.
func LoadFiles(paths []string) ([]FileDoc, error) {
	docs := make([]FileDoc, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		docs = append(docs, FileDoc{Path: filepath.ToSlash(p), Content: string(b)})
	}
	return docs, nil
}

// QueryFiles loads paths, encodes each file into an ephemeral library named by
// its path, and runs one pooled retrieval across all of them: a single global
// top-k, not a per-file ranking. Nothing is saved to any store.
func QueryFiles(eng *library.Engine, paths []string, query string, topK, nMax int) ([]models.RetrievedChunk, error) {
	docs, err := LoadFiles(paths)
	if err != nil {
		return nil, err
	}
	libs := make([]*models.Library, 0, len(docs))
	for _, d := range docs {
		lib, err := eng.CreateLibrary(d.Path, d.Content, nMax)
		if err != nil {
			return nil, err
		}
		libs = append(libs, lib)
	}
	return eng.Retrieve(libs, query, topK)
}
