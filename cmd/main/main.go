package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CTAG07/Quire/pkg/jinja"
	"github.com/CTAG07/Quire/pkg/site"
	"github.com/CTAG07/Quire/pkg/store"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const (
	actionShutdown = "shutdown"
	actionRestart  = "restart"
)

// jinjaConfig is refreshed from the config file on every run so restarts
// pick up edits; the registered factory reads it when an App is created.
var jinjaConfig = jinja.DefaultConfig()

func init() {
	site.Register(jinja.Name, jinja.Factory(func() jinja.Config { return jinjaConfig }))
}

func main() {
	configPath := flag.String("config", "./quire.json", "path to the JSON, YAML or TOML config file")
	serve := flag.Bool("serve", false, "serve the build root and the API after building")
	force := flag.Bool("force", false, "rebuild every source instead of only changed ones")
	watch := flag.Bool("watch", false, "rebuild when files under the source root change")
	showVersion := flag.Bool("version", false, "print version information and exit")
	newKey := flag.Bool("new-key", false, "print a new API key and the hash to put in api_key_hash, then exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("quire %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		return
	}
	if *newKey {
		key, err := generateAPIKey()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("key:  %s\nhash: %s\n", key, hashAPIKey(key))
		return
	}

	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	opts := runOptions{configPath: *configPath, serve: *serve, watch: *watch, force: *force}
	exitCode := 0
	for {
		action, err := run(opts, actionChan)
		if err != nil {
			baseLogger.Error("Quire run failed.", "error", err)
			exitCode = 1
			break
		}
		if action != actionRestart {
			break
		}
		baseLogger.Info("--- Quire Restarting ---")
		// A restart rebuilds from the recorded state.
		opts.force = false
	}
	os.Exit(exitCode)
}

type runOptions struct {
	configPath string
	serve      bool
	watch      bool
	force      bool
}

// run performs one build and, when serving or watching, keeps going until a
// shutdown or restart is requested. It returns the action that ended it.
func run(opts runOptions, actionChan chan string) (string, error) {
	config, err := LoadConfig(opts.configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	jinjaConfig = config.Jinja

	logger := newLogger(config.Server)
	logger.Info("Starting Quire", "version", Version, "config", opts.configPath)

	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		logger.Info("Closing database connection.")
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	if err = store.SetupSchema(db); err != nil {
		return "", fmt.Errorf("failed to setup store schema: %w", err)
	}
	st, err := store.New(db)
	if err != nil {
		return "", fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()
	st.SetLogger(logger)

	app, err := site.NewApp(logger, config.Site, st, st)
	if err != nil {
		return "", fmt.Errorf("failed to create site: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	builder := NewBuilder(ctx, app, logger)

	// An action arriving during the first build aborts it.
	buildDone := make(chan struct{})
	go func() {
		select {
		case action := <-actionChan:
			actionChan <- action
			cancel()
		case <-buildDone:
		}
	}()
	result, err := builder.Build(opts.force)
	close(buildDone)
	if ctx.Err() != nil {
		return <-actionChan, nil
	}
	if err != nil && !opts.serve && !opts.watch {
		return "", fmt.Errorf("build %s failed: %w", result.ID, err)
	}
	if err != nil {
		logger.Error("Build failed, keeping the previous output", "build", result.ID, "error", err)
	}
	if !opts.serve && !opts.watch {
		return actionShutdown, nil
	}

	if opts.watch {
		watcher, err := NewWatcher(app, builder, logger, config.Server.WatchDelay())
		if err != nil {
			return "", err
		}
		defer func() {
			_ = watcher.Close()
		}()
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("Watcher stopped", "error", err)
			}
		}()
	}

	var httpServer *http.Server
	if opts.serve {
		server := NewServer(config, opts.configPath, logger, app, builder, st, actionChan)
		httpServer = &http.Server{Addr: config.Server.Addr, Handler: server.Handler()}
		go func() {
			logger.Info("Starting preview server", "address", httpServer.Addr, "build_root", app.BuildRoot)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Preview server failed", "error", err)
				actionChan <- actionShutdown
			}
		}()
	}

	action := <-actionChan
	cancel()

	if httpServer != nil {
		logger.Info("Stopping preview server for " + action + "...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err = httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Preview server shutdown failed", "error", err)
		}
		logger.Info("Preview server stopped.")
	}
	return action, nil
}
