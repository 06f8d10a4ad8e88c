package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/CTAG07/Quire/pkg/site"
)

// BuildAPI triggers builds and reports what the stores know about sources.
type BuildAPI struct {
	app     *site.App
	builder *Builder
	logger  *slog.Logger
}

// NewBuildAPI creates a new instance of the BuildAPI.
func NewBuildAPI(app *site.App, builder *Builder, logger *slog.Logger) *BuildAPI {
	return &BuildAPI{app: app, builder: builder, logger: logger}
}

// RegisterRoutes sets up the routing for the build endpoints.
func (b *BuildAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/build", b.handleBuild)
	mux.HandleFunc("/api/sources", b.handleSources)
}

// SourceInfo is a source as reported by /api/sources, with paths relative to
// their roots.
type SourceInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	Modified     time.Time `json:"modified"`
	Targets      []string  `json:"targets"`
	Dependencies []string  `json:"dependencies"`
}

type buildResponse struct {
	site.BuildResult
	Error string `json:"error,omitempty"`
}

// handleBuild runs an incremental build, or a full one with ?force=true.
func (b *BuildAPI) handleBuild(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	result, err := b.builder.Build(force)
	resp := buildResponse{BuildResult: relativeResult(b.app, result)}
	if err != nil {
		b.logger.Error("API triggered build failed", "build", result.ID, "error", err)
		resp.Error = err.Error()
		respondWithJSON(w, http.StatusInternalServerError, resp)
		return
	}
	b.logger.Info("Build triggered via API", "build", result.ID, "force", force)
	respondWithJSON(w, http.StatusOK, resp)
}

// handleSources lists every recorded source with its targets and template
// dependencies.
func (b *BuildAPI) handleSources(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()
	sources, err := b.app.Sources.ListSources(ctx)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list sources: %v", err))
		return
	}

	infos := make([]SourceInfo, 0, len(sources))
	for _, src := range sources {
		targets, err := b.app.Sources.GetTargets(ctx, src.Path)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get targets: %v", err))
			return
		}
		deps, err := b.app.Sources.GetDependencies(ctx, src.Path)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get dependencies: %v", err))
			return
		}
		infos = append(infos, SourceInfo{
			Path:         b.app.RelativePath(src.Path),
			Size:         src.Size,
			Modified:     src.Modified,
			Targets:      relativePaths(b.app, targets),
			Dependencies: relativePaths(b.app, deps),
		})
	}
	respondWithJSON(w, http.StatusOK, infos)
}

func relativeResult(app *site.App, result site.BuildResult) site.BuildResult {
	result.Processed = relativePaths(app, result.Processed)
	result.Removed = relativePaths(app, result.Removed)
	result.Failed = relativePaths(app, result.Failed)
	return result
}

func relativePaths(app *site.App, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, app.RelativePath(p))
	}
	return out
}
