package store

import "gravitext/internal/models"

// Repository is the name -> Library mapping the engine's callers persist
// through. Save is an upsert (last writer wins); Delete reports whether the
// name existed. Implementations return in-memory Library values and never
// interpret encoded state.
type Repository interface {
	Exists(name string) bool
	Get(name string) (*models.Library, bool)
	Save(lib *models.Library) error
	Delete(name string) bool
	List() []*models.Library
	Stats() map[string]int
}
