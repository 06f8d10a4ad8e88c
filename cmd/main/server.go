package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/CTAG07/Quire/pkg/site"
	"github.com/gorilla/handlers"
)

// Server hosts the preview of the build root and the API used by editors to
// trigger builds and inspect the stores.
type Server struct {
	config     *Config
	logger     *slog.Logger
	app        *site.App
	buildAPI   *BuildAPI
	contextAPI *ContextAPI
	renderAPI  *RenderAPI
	serverAPI  *ServerAPI
	auth       *Authenticator
	mux        *http.ServeMux
}

// NewServer wires the API handlers and the static file server into one mux.
// configPath is where configuration changes made through the API are saved.
func NewServer(config *Config, configPath string, logger *slog.Logger, app *site.App, builder *Builder, contexts ContextReader, actionChan chan string) *Server {
	server := &Server{
		config:     config,
		logger:     logger,
		app:        app,
		buildAPI:   NewBuildAPI(app, builder, logger),
		contextAPI: NewContextAPI(contexts, app, logger),
		renderAPI:  NewRenderAPI(app, logger),
		serverAPI:  NewServerAPI(config, configPath, actionChan, logger),
		auth:       NewAuthenticator(config.Server.APIKeyHash, logger),
		mux:        http.NewServeMux(),
	}

	apiMux := http.NewServeMux()
	server.buildAPI.RegisterRoutes(apiMux)
	server.contextAPI.RegisterRoutes(apiMux)
	server.renderAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	server.mux.Handle("/api/", server.auth.Authenticate(apiMux))
	server.mux.Handle("/", server.noCache(http.FileServer(http.Dir(app.BuildRoot))))
	return server
}

// Handler returns the server's handler wrapped with panic recovery and
// response compression.
func (s *Server) Handler() http.Handler {
	recoveryLog := slog.NewLogLogger(s.logger.Handler(), slog.LevelError)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLog))(handlers.CompressHandler(s.mux))
}

// noCache keeps browsers from holding on to pages that the next build rewrites.
func (s *Server) noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("Failed to encode JSON response", "error", err)
		}
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}
