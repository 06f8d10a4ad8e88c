package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CTAG07/Quire/pkg/site"
)

// ContextReader is the part of the context store the API reads from.
type ContextReader interface {
	GetContexts(ctx context.Context, name, value string) ([]site.Context, error)
	GetSourceContexts(ctx context.Context, source string) ([]site.Context, error)
	ListContextNames(ctx context.Context) ([]string, error)
}

// ContextAPI exposes the contexts published by the last build.
type ContextAPI struct {
	contexts ContextReader
	app      *site.App
	logger   *slog.Logger
}

// NewContextAPI creates a new instance of the ContextAPI.
func NewContextAPI(contexts ContextReader, app *site.App, logger *slog.Logger) *ContextAPI {
	return &ContextAPI{contexts: contexts, app: app, logger: logger}
}

// RegisterRoutes sets up the routing for /api/contexts.
func (c *ContextAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/contexts", c.handleContexts)
}

// ContextMatch is one publisher of a looked up context.
type ContextMatch struct {
	Source   string            `json:"source"`
	Contexts map[string]string `json:"contexts"`
}

// handleContexts lists the known context names when called bare, the
// sources publishing a context with ?name=&value=, or the contexts of one
// source with ?source=.
func (c *ContextAPI) handleContexts(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()
	query := r.URL.Query()

	if source := query.Get("source"); source != "" {
		found, err := c.contexts.GetSourceContexts(ctx, c.app.SourcePath(source))
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get contexts: %v", err))
			return
		}
		respondWithJSON(w, http.StatusOK, contextMap(found))
		return
	}

	if !query.Has("name") {
		names, err := c.contexts.ListContextNames(ctx)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list contexts: %v", err))
			return
		}
		respondWithJSON(w, http.StatusOK, names)
		return
	}

	name, value := query.Get("name"), query.Get("value")
	found, err := c.contexts.GetContexts(ctx, name, value)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get contexts: %v", err))
		return
	}
	matches := make([]ContextMatch, 0, len(found))
	for _, match := range found {
		all, err := c.contexts.GetSourceContexts(ctx, match.Source)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get contexts: %v", err))
			return
		}
		matches = append(matches, ContextMatch{
			Source:   c.app.RelativePath(match.Source),
			Contexts: contextMap(all),
		})
	}
	respondWithJSON(w, http.StatusOK, matches)
}

func contextMap(contexts []site.Context) map[string]string {
	out := make(map[string]string, len(contexts))
	for _, c := range contexts {
		out[c.Name] = c.Value
	}
	return out
}
