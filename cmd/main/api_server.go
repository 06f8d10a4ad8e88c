package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// ServerAPI holds the handlers that control the process itself.
type ServerAPI struct {
	config     *Config
	configPath string
	actionChan chan string
	logger     *slog.Logger
	mu         sync.Mutex
}

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// NewServerAPI creates a new instance of the ServerAPI.
func NewServerAPI(config *Config, configPath string, actionChan chan string, logger *slog.Logger) *ServerAPI {
	return &ServerAPI{config: config, configPath: configPath, actionChan: actionChan, logger: logger}
}

// RegisterRoutes sets up the routing for the /api/server endpoints.
func (a *ServerAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.HandleFunc("/api/server/config", a.handleConfig)
	mux.HandleFunc("/api/server/shutdown", a.handleAction(actionShutdown))
	mux.HandleFunc("/api/server/restart", a.handleAction(actionRestart))
}

// handleVersion returns the application's build information.
func (a *ServerAPI) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	respondWithJSON(w, http.StatusOK, VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}

// handleConfig gets or updates the configuration. Keys missing from a PUT
// body keep their current values. The file is rewritten in its own format and
// the new settings apply on the next restart.
func (a *ServerAPI) handleConfig(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		respondWithJSON(w, http.StatusOK, a.config)
	case http.MethodPut:
		current, err := json.Marshal(a.config)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to copy current config: %v", err))
			return
		}
		updated := DefaultConfig()
		if err = json.Unmarshal(current, updated); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to copy current config: %v", err))
			return
		}
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		decoder.DisallowUnknownFields()
		if err = decoder.Decode(updated); err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON request body: %v", err))
			return
		}

		if err = writeConfig(a.configPath, updated); err != nil {
			a.logger.Error("Failed to save config", "path", a.configPath, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save configuration to disk: %v", err))
			return
		}
		*a.config = *updated

		a.logger.Info("Configuration updated via API, restart to apply", "path", a.configPath)
		respondWithJSON(w, http.StatusOK, a.config)
	default:
		w.Header().Set("Allow", "GET, PUT")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleAction hands a shutdown or restart to the run loop. A restart reloads
// the config file and runs an incremental build.
func (a *ServerAPI) handleAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		a.logger.Warn("Server action requested via API", "action", action)
		respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Server is going to " + action})

		go func() {
			a.actionChan <- action
		}()
	}
}
