package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/CTAG07/Quire/pkg/jinja"
	"github.com/CTAG07/Quire/pkg/site"
)

// maxRenderBody caps the template size accepted by /api/render.
const maxRenderBody = 1 << 20

// RenderAPI renders ad-hoc template text against the current site, so
// editors can try a change before saving it.
type RenderAPI struct {
	app    *site.App
	logger *slog.Logger
}

// NewRenderAPI creates a new instance of the RenderAPI.
func NewRenderAPI(app *site.App, logger *slog.Logger) *RenderAPI {
	return &RenderAPI{app: app, logger: logger}
}

// RegisterRoutes sets up the routing for /api/render.
func (t *RenderAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/render", t.handleRender)
}

// handleRender renders the request body as a template. The optional ?path=
// names the source whose url, size and modified variables it sees.
func (t *RenderAPI) handleRender(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	proc, ok := t.app.Processor(jinja.Name).(*jinja.Processor)
	if !ok {
		respondWithError(w, http.StatusNotFound, "The jinja processor is not enabled")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRenderBody+1))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}
	if len(body) > maxRenderBody {
		respondWithError(w, http.StatusRequestEntityTooLarge, "Template too large")
		return
	}

	out, err := proc.RenderString(r.Context(), string(body), r.URL.Query().Get("path"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template execution failed: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(out)
}
