package server

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
)

// Minimal MCP-like tools registry exposing the engine operations by name.
type mcpParam struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type mcpTool struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	ParamsSchema []mcpParam `json:"paramsSchema"`
}

func mcpTools() []mcpTool {
	return []mcpTool{
		{Name: "create_knowledge_library", Description: "Compress text into a named, retrievable library", ParamsSchema: []mcpParam{
			{Name: "name", Type: "string", Required: true},
			{Name: "text", Type: "string", Required: true},
			{Name: "nMax", Type: "number"},
		}},
		{Name: "query_knowledge_library", Description: "Retrieve the most relevant chunks for a query", ParamsSchema: []mcpParam{
			{Name: "name", Type: "string", Required: true},
			{Name: "query", Type: "string", Required: true},
			{Name: "topK", Type: "number"},
		}},
		{Name: "list_knowledge_libraries", Description: "List stored libraries with their stats"},
		{Name: "delete_knowledge_library", Description: "Delete a stored library by name", ParamsSchema: []mcpParam{
			{Name: "name", Type: "string", Required: true},
		}},
		{Name: "verify_integrity", Description: "Re-derive every chunk hash and report integrity", ParamsSchema: []mcpParam{
			{Name: "name", Type: "string", Required: true},
		}},
		{Name: "calculate_similarity", Description: "Score one chunk against a query", ParamsSchema: []mcpParam{
			{Name: "library", Type: "string", Required: true},
			{Name: "chunkID", Type: "string", Required: true},
			{Name: "query", Type: "string", Required: true},
		}},
		{Name: "load_files", Description: "Load files and run one pooled retrieval across all of them", ParamsSchema: []mcpParam{
			{Name: "paths", Type: "array", Required: true},
			{Name: "query", Type: "string", Required: true},
			{Name: "topK", Type: "number"},
		}},
	}
}

// allowedTools parses the csv allowlist; empty means every tool is callable.
func allowedTools() map[string]struct{} {
	v := strings.TrimSpace(os.Getenv("GRAVITEXT_MCP_ALLOWED_TOOLS"))
	if v == "" {
		return nil
	}
	set := make(map[string]struct{})
	for _, t := range strings.Split(v, ",") {
		if t = strings.TrimSpace(t); t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

func toolAllowed(name string) bool {
	set := allowedTools()
	if set == nil {
		return true
	}
	_, ok := set[name]
	return ok
}

func (a *API) handleMCPTools(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	full := mcpTools()
	tools := make([]mcpTool, 0, len(full))
	for _, t := range full {
		if toolAllowed(t.Name) {
			tools = append(tools, t)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func (a *API) handleMCPCall(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var req struct {
		Name   string         `json:"name"`
		Params map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body or missing name")
		return
	}
	if !toolAllowed(req.Name) {
		writeError(w, http.StatusForbidden, "forbidden", "tool not allowed by policy")
		return
	}
	if isReadOnly() && (req.Name == "create_knowledge_library" || req.Name == "delete_knowledge_library") {
		writeError(w, http.StatusForbidden, "forbidden", "read-only mode")
		return
	}
	p := params(req.Params)
	switch req.Name {
	case "create_knowledge_library":
		lib, err := a.createLibrary(p.str("name"), p.str("text"), p.num("nMax"))
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summarize(lib))
	case "query_knowledge_library":
		res, err := a.queryLibrary(p.str("name"), p.str("query"), p.num("topK"))
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case "list_knowledge_libraries":
		libs := a.store.List()
		out := make([]createResult, 0, len(libs))
		for _, lib := range libs {
			out = append(out, summarize(lib))
		}
		writeJSON(w, http.StatusOK, map[string]any{"libraries": out})
	case "delete_knowledge_library":
		name := p.str("name")
		deleted := name != "" && a.store.Delete(name)
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "deleted": deleted})
	case "verify_integrity":
		rep, err := a.verifyLibrary(p.str("name"))
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	case "calculate_similarity":
		score, err := a.similarity(p.str("library"), p.str("chunkID"), p.str("query"))
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"score": score})
	case "load_files":
		a.mcpLoadFiles(w, p)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown tool")
	}
}

func (a *API) mcpLoadFiles(w http.ResponseWriter, p params) {
	raw, _ := p["paths"].([]any)
	paths := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			paths = append(paths, s)
		}
	}
	if len(paths) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "paths required")
		return
	}
	res, err := a.filesQuery(paths, p.str("query"), p.num("topK"), p.num("nMax"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// params gives typed access to the loosely typed tool arguments.
type params map[string]any

func (p params) str(key string) string {
	s, _ := p[key].(string)
	return s
}

func (p params) num(key string) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
