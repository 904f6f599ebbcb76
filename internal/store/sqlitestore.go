package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"gravitext/internal/models"
	sqlm "gravitext/internal/storage/sqlite"
)

// SQLiteStore persists libraries to a local sqlite database. Chunk content is
// not stored: only the encoded state and its hash travel to disk, and content
// is rematerialized by the engine on demand.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := (sqlm.Manager{}).UpToLatest(context.Background(), db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Exists(name string) bool {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM libraries WHERE name=?`, name).Scan(&one)
	return err == nil
}

func (s *SQLiteStore) Get(name string) (*models.Library, bool) {
	lib := &models.Library{Name: name}
	var created, updated string
	err := s.db.QueryRow(
		`SELECT nmax, chunk_count, total_words, original_bytes, encoded_bytes, created_at, updated_at FROM libraries WHERE name=?`,
		name,
	).Scan(&lib.NMax, &lib.ChunkCount, &lib.TotalWords, &lib.OriginalBytes, &lib.EncodedBytes, &created, &updated)
	if err != nil {
		return nil, false
	}
	lib.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	lib.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	if lib.EncodedBytes > 0 {
		lib.CompressionRatio = float64(lib.OriginalBytes) / float64(lib.EncodedBytes)
	}
	rows, err := s.db.Query(
		`SELECT id, ord, nmax, dict, states, content_hash, word_count, char_count FROM chunks WHERE library_name=? ORDER BY ord`,
		name,
	)
	if err != nil {
		return nil, false
	}
	defer rows.Close()
	for rows.Next() {
		ch := &models.Chunk{}
		var dictJSON, statesJSON string
		if err := rows.Scan(&ch.ID, &ch.Index, &ch.State.NMax, &dictJSON, &statesJSON, &ch.ContentHash, &ch.WordCount, &ch.CharCount); err != nil {
			return nil, false
		}
		if err := json.Unmarshal([]byte(dictJSON), &ch.State.Dict); err != nil {
			return nil, false
		}
		if err := json.Unmarshal([]byte(statesJSON), &ch.State.States); err != nil {
			return nil, false
		}
		lib.Chunks = append(lib.Chunks, ch)
	}
	if rows.Err() != nil {
		return nil, false
	}
	return lib, true
}

// Save upserts the whole library in one transaction: the row set for the name
// is replaced, never patched.
func (s *SQLiteStore) Save(lib *models.Library) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM chunks WHERE library_name=?`, lib.Name); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM libraries WHERE name=?`, lib.Name); err != nil {
		return err
	}
	_, err = tx.Exec(
		`INSERT INTO libraries(name, nmax, chunk_count, total_words, original_bytes, encoded_bytes, created_at, updated_at) VALUES(?,?,?,?,?,?,?,?)`,
		lib.Name, lib.NMax, lib.ChunkCount, lib.TotalWords, lib.OriginalBytes, lib.EncodedBytes,
		lib.CreatedAt.Format(time.RFC3339Nano), lib.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	for _, ch := range lib.Chunks {
		dictJSON, err := json.Marshal(ch.State.Dict)
		if err != nil {
			return err
		}
		statesJSON, err := json.Marshal(ch.State.States)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO chunks(id, library_name, ord, nmax, dict, states, content_hash, word_count, char_count) VALUES(?,?,?,?,?,?,?,?,?)`,
			ch.ID, lib.Name, ch.Index, ch.State.NMax, string(dictJSON), string(statesJSON), ch.ContentHash, ch.WordCount, ch.CharCount,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Delete(name string) bool {
	tx, err := s.db.Begin()
	if err != nil {
		return false
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM chunks WHERE library_name=?`, name); err != nil {
		return false
	}
	res, err := tx.Exec(`DELETE FROM libraries WHERE name=?`, name)
	if err != nil {
		return false
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return false
	}
	return n > 0
}

// List returns library summaries without chunk rows; aggregates come from the
// persisted library row.
func (s *SQLiteStore) List() []*models.Library {
	rows, err := s.db.Query(`SELECT name, nmax, chunk_count, total_words, original_bytes, encoded_bytes, created_at, updated_at FROM libraries ORDER BY name`)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []*models.Library
	for rows.Next() {
		lib := &models.Library{}
		var created, updated string
		if err := rows.Scan(&lib.Name, &lib.NMax, &lib.ChunkCount, &lib.TotalWords, &lib.OriginalBytes, &lib.EncodedBytes, &created, &updated); err != nil {
			continue
		}
		lib.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		lib.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		if lib.EncodedBytes > 0 {
			lib.CompressionRatio = float64(lib.OriginalBytes) / float64(lib.EncodedBytes)
		}
		out = append(out, lib)
	}
	return out
}

func (s *SQLiteStore) Stats() map[string]int {
	stats := map[string]int{}
	var libs, chunks int
	_ = s.db.QueryRow(`SELECT COUNT(1) FROM libraries`).Scan(&libs)
	_ = s.db.QueryRow(`SELECT COUNT(1) FROM chunks`).Scan(&chunks)
	stats["libraries"] = libs
	stats["chunks"] = chunks
	return stats
}
