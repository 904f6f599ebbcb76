package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"gravitext/internal/codec"
	"gravitext/internal/config"
	"gravitext/internal/ingest"
	"gravitext/internal/library"
	mylog "gravitext/internal/log"
	"gravitext/internal/models"
	"gravitext/internal/store"
	"gravitext/internal/version"
)

// API serves the library engine over HTTP plus an MCP-style tool surface.
type API struct {
	store store.Repository
	eng   *library.Engine
	lg    *mylog.Logger
}

func NewAPI(s store.Repository, eng *library.Engine) *API {
	return &API{store: s, eng: eng, lg: mylog.New()}
}

func (a *API) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/version", a.handleVersion)
	mux.HandleFunc("/libraries", a.handleLibraries)
	mux.HandleFunc("/libraries/", a.handleLibraryOp)
	mux.HandleFunc("/similarity", a.handleSimilarity)
	mux.HandleFunc("/files/query", a.handleFilesQuery)
	mux.HandleFunc("/metrics", a.handleMetrics)
	// mcp tools
	mux.HandleFunc("/mcp/tools", a.handleMCPTools)
	mux.HandleFunc("/mcp/call", a.handleMCPCall)
	return mux
}

// Run starts the HTTP server. GRAVITEXT_SQLITE_PATH selects the sqlite
// repository; init failure falls back to memory with a logged warning.
func Run(addr string) error {
	lg := mylog.New()
	var st store.Repository
	if path := os.Getenv("GRAVITEXT_SQLITE_PATH"); path != "" {
		if sdb, err := store.NewSQLite(path); err == nil {
			st = sdb
		} else {
			lg.Warn("sqlite.init_failed", "error", err.Error())
			st = store.New()
		}
	} else {
		st = store.New()
	}
	eng := library.NewEngine(config.EnvInt("GRAVITEXT_DECODE_CACHE_SIZE", library.DefaultDecodeCacheSize))
	api := NewAPI(st, eng)
	lg.Info("server.start", "addr", addr, "version", version.String())
	return http.ListenAndServe(addr, logMiddleware(api.mux()))
}

// logMiddleware tags each request with an id, records metrics, and logs the
// outcome.
func logMiddleware(next http.Handler) http.Handler {
	lg := mylog.New()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		dur := time.Since(start)
		metrics.record(r.Method, normalizePath(r.URL.Path), sw.status, dur)
		lg.Debug("http.request",
			"id", reqID, "method", r.Method, "path", r.URL.Path,
			"status", sw.status, "durMs", dur.Milliseconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// normalizePath collapses variable path segments for metrics labels.
func normalizePath(p string) string {
	if strings.HasPrefix(p, "/libraries/") {
		rest := strings.TrimPrefix(p, "/libraries/")
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/libraries/:name" + rest[i:]
		}
		return "/libraries/:name"
	}
	return p
}

// Authorization: optional token via env GRAVITEXT_API_TOKEN.
// Accepts Authorization: Bearer <token> or query param ?token=...
func authorize(w http.ResponseWriter, r *http.Request) bool {
	tok := os.Getenv("GRAVITEXT_API_TOKEN")
	if tok == "" {
		return true
	}
	hdr := r.Header.Get("Authorization")
	if strings.HasPrefix(hdr, "Bearer ") && strings.TrimSpace(hdr[len("Bearer "):]) == tok {
		return true
	}
	if r.URL.Query().Get("token") == tok {
		return true
	}
	writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
	return false
}

func isReadOnly() bool { return os.Getenv("GRAVITEXT_READONLY") == "1" }

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errStr, message string) {
	writeJSON(w, status, apiError{Error: errStr, Message: message, Code: status})
}

// writeOpError maps the engine error taxonomy onto HTTP statuses.
func writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, library.ErrInput):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, library.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, library.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, codec.ErrCorruptState):
		writeError(w, http.StatusUnprocessableEntity, "corrupt_state", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.String()})
}

// createResult is the aggregate surfaced after a successful create.
type createResult struct {
	Name             string    `json:"name"`
	ChunksCreated    int       `json:"chunksCreated"`
	TotalWords       int       `json:"totalWords"`
	CompressionRatio float64   `json:"compressionRatio"`
	OriginalSize     string    `json:"originalSize"`
	EncodedSize      string    `json:"encodedSize"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (a *API) createLibrary(name, text string, nMax int) (*models.Library, error) {
	if a.store.Exists(name) {
		return nil, fmt.Errorf("%w: %s", library.ErrAlreadyExists, name)
	}
	if nMax == 0 {
		nMax = config.EnvInt("GRAVITEXT_DEFAULT_NMAX", 0)
	}
	lib, err := a.eng.CreateLibrary(name, text, nMax)
	if err != nil {
		return nil, err
	}
	if err := a.store.Save(lib); err != nil {
		return nil, err
	}
	metrics.addCreate(len(lib.Chunks))
	return lib, nil
}

func (a *API) handleLibraries(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		libs := a.store.List()
		out := make([]createResult, 0, len(libs))
		for _, lib := range libs {
			out = append(out, summarize(lib))
		}
		writeJSON(w, http.StatusOK, map[string]any{"libraries": out})
	case http.MethodPost:
		if isReadOnly() {
			writeError(w, http.StatusForbidden, "forbidden", "read-only mode")
			return
		}
		var req struct {
			Name string `json:"name"`
			Text string `json:"text"`
			NMax int    `json:"nMax"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
			return
		}
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name required")
			return
		}
		lib, err := a.createLibrary(req.Name, req.Text, req.NMax)
		if err != nil {
			writeOpError(w, err)
			return
		}
		a.lg.Info("library.created", "name", lib.Name, "chunks", lib.ChunkCount, "ratio", lib.CompressionRatio)
		writeJSON(w, http.StatusCreated, summarize(lib))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	}
}

func summarize(lib *models.Library) createResult {
	return createResult{
		Name:             lib.Name,
		ChunksCreated:    lib.ChunkCount,
		TotalWords:       lib.TotalWords,
		CompressionRatio: lib.CompressionRatio,
		OriginalSize:     humanize.Bytes(uint64(lib.OriginalBytes)),
		EncodedSize:      humanize.Bytes(uint64(lib.EncodedBytes)),
		CreatedAt:        lib.CreatedAt,
	}
}

// handleLibraryOp routes /libraries/{name}[/query|/verify].
func (a *API) handleLibraryOp(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/libraries/")
	name, op := rest, ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		name, op = rest[:i], rest[i+1:]
	}
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "library name required")
		return
	}
	switch op {
	case "":
		switch r.Method {
		case http.MethodGet:
			lib, ok := a.store.Get(name)
			if !ok {
				writeError(w, http.StatusNotFound, "not_found", "library not found")
				return
			}
			writeJSON(w, http.StatusOK, summarize(lib))
		case http.MethodDelete:
			if isReadOnly() {
				writeError(w, http.StatusForbidden, "forbidden", "read-only mode")
				return
			}
			deleted := a.store.Delete(name)
			a.lg.Info("library.deleted", "name", name, "deleted", deleted)
			writeJSON(w, http.StatusOK, map[string]any{"name": name, "deleted": deleted})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		}
	case "query":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
			return
		}
		var req struct {
			Query string `json:"query"`
			TopK  int    `json:"topK"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
			return
		}
		res, err := a.queryLibrary(name, req.Query, req.TopK)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case "verify":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
			return
		}
		rep, err := a.verifyLibrary(name)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown operation")
	}
}

// queryResult is the aggregate surfaced after a successful query.
type queryResult struct {
	Library         string                  `json:"library"`
	ChunksRetrieved int                     `json:"chunksRetrieved"`
	TotalWords      int                     `json:"totalWords"`
	Context         string                  `json:"context"`
	Chunks          []models.RetrievedChunk `json:"chunks"`
}

func (a *API) queryLibrary(name, query string, topK int) (*queryResult, error) {
	lib, ok := a.store.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", library.ErrNotFound, name)
	}
	if topK == 0 {
		topK = config.EnvInt("GRAVITEXT_DEFAULT_TOPK", 0)
	}
	chunks, err := a.eng.QueryLibrary(lib, query, topK)
	if err != nil {
		return nil, err
	}
	metrics.addQuery(len(chunks))
	res := &queryResult{Library: name, ChunksRetrieved: len(chunks), Chunks: chunks}
	for _, ch := range chunks {
		res.TotalWords += ch.WordCount
	}
	res.Context = assembleContext(chunks)
	return res, nil
}

// assembleContext renders ranked chunks as one feedable text block, with a
// positional header per chunk so downstream consumers can cite sources.
func assembleContext(chunks []models.RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, ch := range chunks {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "[%s chunk %d | score %.3f | %d words | %s]\n",
			ch.Library, ch.Index, ch.Score, ch.WordCount,
			humanize.Bytes(uint64(len(ch.Content))))
		b.WriteString(ch.Content)
	}
	return b.String()
}

func (a *API) verifyLibrary(name string) (models.IntegrityReport, error) {
	lib, ok := a.store.Get(name)
	if !ok {
		return models.IntegrityReport{}, fmt.Errorf("%w: %s", library.ErrNotFound, name)
	}
	return a.eng.VerifyLibrary(lib), nil
}

func (a *API) handleSimilarity(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var req struct {
		Library string `json:"library"`
		ChunkID string `json:"chunkID"`
		Query   string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}
	score, err := a.similarity(req.Library, req.ChunkID, req.Query)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"score": score})
}

func (a *API) similarity(libName, chunkID, query string) (float64, error) {
	if strings.TrimSpace(query) == "" {
		return 0, fmt.Errorf("%w: query required", library.ErrInput)
	}
	lib, ok := a.store.Get(libName)
	if !ok {
		return 0, fmt.Errorf("%w: %s", library.ErrNotFound, libName)
	}
	for _, ch := range lib.Chunks {
		if ch.ID == chunkID {
			return a.eng.CalculateSimilarity(query, ch)
		}
	}
	return 0, fmt.Errorf("%w: chunk %s", library.ErrNotFound, chunkID)
}

func (a *API) handleFilesQuery(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var req struct {
		Paths []string `json:"paths"`
		Query string   `json:"query"`
		TopK  int      `json:"topK"`
		NMax  int      `json:"nMax"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "paths required")
		return
	}
	res, err := a.filesQuery(req.Paths, req.Query, req.TopK, req.NMax)
	if err != nil {
		if errors.Is(err, library.ErrInput) {
			writeOpError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "load_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// filesQuery runs the multi-file pipeline: load everything, encode, one
// pooled global ranking.
func (a *API) filesQuery(paths []string, query string, topK, nMax int) (*queryResult, error) {
	if topK == 0 {
		topK = config.EnvInt("GRAVITEXT_DEFAULT_TOPK", 0)
	}
	if nMax == 0 {
		nMax = config.EnvInt("GRAVITEXT_DEFAULT_NMAX", 0)
	}
	chunks, err := ingest.QueryFiles(a.eng, paths, query, topK, nMax)
	if err != nil {
		return nil, err
	}
	metrics.addQuery(len(chunks))
	res := &queryResult{ChunksRetrieved: len(chunks), Chunks: chunks}
	for _, ch := range chunks {
		res.TotalWords += ch.WordCount
	}
	res.Context = assembleContext(chunks)
	return res, nil
}

// lightweight in-process metrics collector
type metricsCollector struct {
	mu sync.Mutex
	// counters keyed by method|path|status
	reqTotal map[string]int
	// duration sum/count keyed by method|path
	durSum   map[string]float64
	durCount map[string]int
	// domain counters
	librariesCreated int
	chunksEncoded    int
	queries          int
	chunksRetrieved  int
}

func newMetrics() *metricsCollector {
	return &metricsCollector{
		reqTotal: make(map[string]int),
		durSum:   make(map[string]float64),
		durCount: make(map[string]int),
	}
}

var metrics = newMetrics()

func (m *metricsCollector) record(method, path string, status int, dur time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%d", method, path, status)
	m.reqTotal[key]++
	dkey := method + "|" + path
	m.durSum[dkey] += dur.Seconds()
	m.durCount[dkey]++
}

func (m *metricsCollector) addCreate(chunks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.librariesCreated++
	m.chunksEncoded += chunks
}

func (m *metricsCollector) addQuery(chunks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	m.chunksRetrieved += chunks
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r) {
		return
	}
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"requests":         metrics.reqTotal,
		"librariesCreated": metrics.librariesCreated,
		"chunksEncoded":    metrics.chunksEncoded,
		"queries":          metrics.queries,
		"chunksRetrieved":  metrics.chunksRetrieved,
		"store":            a.store.Stats(),
	})
}
