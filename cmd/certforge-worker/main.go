// Command certforge-worker runs the batch PDF certificate generator as a
// long-lived event-driven worker: it subscribes to the bus, dispatches
// accepted batches to the orchestrator, and serves a /healthz endpoint for
// process supervision.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brightleaf/certforge/internal/app"
	"github.com/brightleaf/certforge/internal/common"
)

func main() {
	configPath := os.Getenv("CERTFORGE_CONFIG")

	common.LoadVersionFromFile()

	core, err := app.New(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize worker: %v\n", err)
		os.Exit(1)
	}

	common.PrintBanner(core.Config, core.Logger)

	mux := buildMux(core)

	host := core.Config.Server.Host
	port := core.Config.Server.Port

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		core.Logger.Info().Int("port", port).Msg("starting health listener")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			core.Logger.Fatal().Err(err).Msg("health listener failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		core.Logger.Error().Err(err).Msg("health listener shutdown failed")
	}

	core.Close()
	common.PrintShutdownBanner(core.Logger)
}

// buildMux builds the worker's supervision HTTP surface: a health probe and
// a version endpoint. This is not the service's request/response API — that
// is the event plane, reached over the bus, not HTTP.
func buildMux(core *app.Core) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler(core))
	mux.HandleFunc("/version", versionHandler)
	return mux
}

func healthHandler(core *app.Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if !core.HealthCheck() {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func versionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
