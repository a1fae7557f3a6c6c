// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fawa-io/fileanalyse/pkg/config"
	"github.com/fawa-io/fileanalyse/pkg/cors"
	"github.com/fawa-io/fileanalyse/pkg/fwlog"
	"github.com/fawa-io/fileanalyse/pkg/sniff"
	"github.com/fawa-io/fileanalyse/pkg/storage"
	"github.com/fawa-io/fileanalyse/pkg/util"
	"github.com/fawa-io/fileanalyse/service/analyse"
)

func main() {
	if err := config.InitConfig(); err != nil {
		fwlog.Fatalf("Failed to initialize configuration: %v", err)
	}
	cfg := config.Get()

	fwlog.SetLevel(cfg.Level())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, err := storage.New(ctx, cfg.Storage)
	cancel()
	if err != nil {
		fwlog.Fatalf("Failed to initialize storage: %v", err)
	}
	if store == nil {
		fwlog.Info("Storage disabled, accepted files are not persisted")
	} else {
		fwlog.Infof("Storage driver %s, bucket %s", cfg.Storage.Driver, cfg.Storage.Bucket)
	}

	analyseHdr, err := analyse.New(analyse.Options{
		MaxSize:      cfg.Upload.MaxSize,
		Field:        cfg.Upload.Field,
		AllowedTypes: cfg.Upload.AllowedTypes,
		Sniffer:      sniff.New(sniff.WithWindow(cfg.Upload.SniffWindow)),
		Store:        store,
		Bucket:       cfg.Storage.Bucket,
	})
	if err != nil {
		fwlog.Fatalf("Failed to initialize file analysis: %v", err)
	}

	// Register all handlers
	mux := http.NewServeMux()
	mux.Handle("POST /api/fileanalyse", analyseHdr)
	mux.HandleFunc("GET /api/files/{id}", analyseHdr.FileInfo)
	mux.HandleFunc("GET /health", analyseHdr.Health)
	mux.Handle("GET /public/", http.StripPrefix("/public/", http.FileServer(http.Dir(cfg.PublicDir))))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(cfg.PublicDir, "index.html"))
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           cors.NewCORS(cfg.CORS.AllowedOrigins).Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fwlog.Info("Shutting down server...")

		// Set timeout for HTTP server shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fwlog.Errorf("Server shutdown error: %v", err)
		}

		if err := analyseHdr.Close(); err != nil {
			fwlog.Errorf("Error closing storage: %v", err)
		}

		fwlog.Info("Server shutdown complete")
	}()

	if cfg.CertFile != "" && cfg.KeyFile != "" && util.Exist(cfg.CertFile) && util.Exist(cfg.KeyFile) {
		fwlog.Infof("Server starting on %v (HTTPS)", srv.Addr)
		err = srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
	} else {
		if cfg.CertFile != "" || cfg.KeyFile != "" {
			fwlog.Warn("TLS certificate or key not found, falling back to HTTP")
		}
		fwlog.Infof("Server starting on %v", srv.Addr)
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		fwlog.Fatalf("Failed to start server: %v", err)
	}
	<-done
}
