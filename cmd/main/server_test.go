package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/Quire/pkg/site"
	"github.com/CTAG07/Quire/pkg/store"
	"github.com/google/go-cmp/cmp"
)

func setupTestServer(t *testing.T, files map[string]string) (*Server, chan string) {
	t.Helper()
	return setupTestServerWith(t, files, nil)
}

func setupTestServerWith(t *testing.T, files map[string]string, configure func(*Config)) (*Server, chan string) {
	t.Helper()
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := initDB(filepath.Join(root, "test.db"))
	if err != nil {
		t.Fatalf("initDB() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = store.SetupSchema(db); err != nil {
		t.Fatalf("SetupSchema() error = %v", err)
	}
	st, err := store.New(db)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(st.Close)

	config := DefaultConfig()
	config.Site.SourceRoot = filepath.Join(root, "source")
	config.Site.BuildRoot = filepath.Join(root, "build")
	if err = os.MkdirAll(config.Site.SourceRoot, 0755); err != nil {
		t.Fatalf("failed to create source root: %v", err)
	}
	for name, content := range files {
		path := filepath.Join(config.Site.SourceRoot, filepath.FromSlash(name))
		if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}
		if err = os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	if configure != nil {
		configure(config)
	}

	app, err := site.NewApp(logger, config.Site, st, st)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	actionChan := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	builder := NewBuilder(ctx, app, logger)
	return NewServer(config, filepath.Join(root, "quire.yaml"), logger, app, builder, st, actionChan), actionChan
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

var blogFiles = map[string]string{
	"index.html":     `{% for p in getcontexts("tag", "go") %}<a href="{{ p.url }}">{{ p.title }}</a>{% endfor %}`,
	"posts/one.html": `{% setcontext tag = "go" %}{% setcontext title = "One" %}one`,
	"style.css":      "body{}",
}

func TestServerBuildAndServe(t *testing.T) {
	s, _ := setupTestServer(t, blogFiles)

	rec := doRequest(t, s, http.MethodPost, "/api/build", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/build status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result buildResponse
	decodeJSON(t, rec, &result)
	want := []string{"index.html", "posts/one.html", "style.css"}
	if diff := cmp.Diff(want, result.Processed); diff != "" {
		t.Errorf("processed mismatch (-want +got):\n%s", diff)
	}

	rec = doRequest(t, s, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != `<a href="/posts/one.html">One</a>` {
		t.Errorf("served index = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store, no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/build?force=true", "")
	decodeJSON(t, rec, &result)
	if diff := cmp.Diff(want, result.Processed); diff != "" {
		t.Errorf("forced build processed mismatch (-want +got):\n%s", diff)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/build", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/build status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if got := rec.Header().Get("Allow"); got != http.MethodPost {
		t.Errorf("Allow = %q", got)
	}
}

func TestServerBuildFailure(t *testing.T) {
	s, _ := setupTestServer(t, map[string]string{"broken.html": "{% if %}"})

	rec := doRequest(t, s, http.MethodPost, "/api/build", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	var result buildResponse
	decodeJSON(t, rec, &result)
	if diff := cmp.Diff([]string{"broken.html"}, result.Failed); diff != "" {
		t.Errorf("failed mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(result.Error, "broken.html") {
		t.Errorf("error %q does not name the source", result.Error)
	}
}

func TestServerSources(t *testing.T) {
	s, _ := setupTestServer(t, map[string]string{
		"base.html": `<main>{% block body %}{% endblock %}</main>`,
		"page.html": `{% extends "base.html" %}{% block body %}page{% endblock %}`,
	})
	doRequest(t, s, http.MethodPost, "/api/build", "")

	rec := doRequest(t, s, http.MethodGet, "/api/sources", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var infos []SourceInfo
	decodeJSON(t, rec, &infos)
	if len(infos) != 2 {
		t.Fatalf("got %d sources, want 2", len(infos))
	}
	page := infos[1]
	if page.Path != "page.html" {
		t.Fatalf("second source = %q, want page.html", page.Path)
	}
	if diff := cmp.Diff([]string{"page.html"}, page.Targets); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"base.html"}, page.Dependencies); diff != "" {
		t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestServerContexts(t *testing.T) {
	s, _ := setupTestServer(t, blogFiles)
	doRequest(t, s, http.MethodPost, "/api/build", "")

	var names []string
	decodeJSON(t, doRequest(t, s, http.MethodGet, "/api/contexts", ""), &names)
	if diff := cmp.Diff([]string{"tag", "title"}, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	var matches []ContextMatch
	decodeJSON(t, doRequest(t, s, http.MethodGet, "/api/contexts?name=tag&value=go", ""), &matches)
	want := []ContextMatch{{
		Source:   "posts/one.html",
		Contexts: map[string]string{"tag": "go", "title": "One"},
	}}
	if diff := cmp.Diff(want, matches); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}

	matches = nil
	decodeJSON(t, doRequest(t, s, http.MethodGet, "/api/contexts?name=tag&value=rust", ""), &matches)
	if len(matches) != 0 {
		t.Errorf("expected no matches, got %v", matches)
	}

	var own map[string]string
	decodeJSON(t, doRequest(t, s, http.MethodGet, "/api/contexts?source=posts/one.html", ""), &own)
	if diff := cmp.Diff(map[string]string{"tag": "go", "title": "One"}, own); diff != "" {
		t.Errorf("source contexts mismatch (-want +got):\n%s", diff)
	}
}

func TestServerRender(t *testing.T) {
	s, _ := setupTestServer(t, blogFiles)
	doRequest(t, s, http.MethodPost, "/api/build", "")

	rec := doRequest(t, s, http.MethodPost, "/api/render?path=posts/one.html", `{{ url }}|{{ getcontexts("tag", "go")|length }}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "/posts/one.html|1" {
		t.Errorf("rendered = %q", got)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/render", "{% if %}")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid template status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestServerVersionAndActions(t *testing.T) {
	s, actionChan := setupTestServer(t, nil)

	var info VersionInfo
	decodeJSON(t, doRequest(t, s, http.MethodGet, "/api/version", ""), &info)
	if info.Version != Version || info.Commit != Commit {
		t.Errorf("version = %+v", info)
	}

	rec := doRequest(t, s, http.MethodPost, "/api/server/restart", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("restart status = %d", rec.Code)
	}
	if got := <-actionChan; got != actionRestart {
		t.Errorf("action = %q, want %q", got, actionRestart)
	}
}

func TestServerConfig(t *testing.T) {
	s, _ := setupTestServer(t, nil)

	var got Config
	decodeJSON(t, doRequest(t, s, http.MethodGet, "/api/server/config", ""), &got)
	if diff := cmp.Diff(*s.config, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	sourceRoot := s.config.Site.SourceRoot
	rec := doRequest(t, s, http.MethodPut, "/api/server/config", `{"server": {"log_level": "debug"}, "jinja": {"extensions": [".j2"]}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rec.Code, rec.Body.String())
	}
	saved, err := LoadConfig(s.serverAPI.configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if saved.Server.LogLevel != "debug" || saved.Site.SourceRoot != sourceRoot {
		t.Errorf("saved config = %+v, want debug logging and the source root kept", saved)
	}
	if diff := cmp.Diff([]string{".j2"}, saved.Jinja.Extensions); diff != "" {
		t.Errorf("extensions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(*saved, *s.config); diff != "" {
		t.Errorf("live config differs from saved (-want +got):\n%s", diff)
	}

	if rec = doRequest(t, s, http.MethodPut, "/api/server/config", `{"server": {"colour": "blue"}}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if rec = doRequest(t, s, http.MethodDelete, "/api/server/config", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestServerAuthentication(t *testing.T) {
	key, err := generateAPIKey()
	if err != nil {
		t.Fatalf("generateAPIKey() error = %v", err)
	}
	s, _ := setupTestServerWith(t, nil, func(c *Config) {
		c.Server.APIKeyHash = hashAPIKey(key)
	})

	if rec := doRequest(t, s, http.MethodGet, "/missing.html", ""); rec.Code != http.StatusNotFound {
		t.Errorf("static files must not require a key, status = %d", rec.Code)
	}

	if rec := doRequest(t, s, http.MethodGet, "/api/version", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("request without key status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	req.Header.Set(authHeader, "quire_wrong")
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("request with wrong key status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/version", nil)
	req.Header.Set(authHeader, key)
	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("request with key status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestServerHandlerCompresses(t *testing.T) {
	s, _ := setupTestServer(t, map[string]string{"big.css": strings.Repeat("body { margin: 0 }\n", 200)})
	doRequest(t, s, http.MethodPost, "/api/build", "")

	req := httptest.NewRequest(http.MethodGet, "/big.css", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", got)
	}
}
