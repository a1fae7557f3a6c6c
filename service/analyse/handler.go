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

package analyse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fawa-io/fileanalyse/pkg/fwlog"
	"github.com/fawa-io/fileanalyse/pkg/sniff"
	"github.com/fawa-io/fileanalyse/pkg/storage"
)

// ObjectIDHeader carries the stored object id on accepted uploads when a
// store is configured.
const ObjectIDHeader = "X-Object-Id"

// Options configures a Handler. Zero values select the defaults.
type Options struct {
	MaxSize      int64
	Field        string
	AllowedTypes []string
	Sniffer      *sniff.Sniffer

	// Store persists accepted files. Nil disables persistence.
	Store  storage.Store
	Bucket string

	PersistTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.MaxSize <= 0 {
		o.MaxSize = 1 << 20
	}
	if o.Field == "" {
		o.Field = "upfile"
	}
	if len(o.AllowedTypes) == 0 {
		o.AllowedTypes = DefaultAllowedTypes
	}
	if o.Sniffer == nil {
		o.Sniffer = sniff.New()
	}
	if o.Bucket == "" {
		o.Bucket = "uploads"
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 30 * time.Second
	}
}

// Handler serves the file analysis API.
type Handler struct {
	analyser       *Analyser
	store          storage.Store
	bucket         string
	persistTimeout time.Duration
}

// New builds a Handler from opts.
func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if !storage.ValidBucket(opts.Bucket) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidBucket, opts.Bucket)
	}
	return &Handler{
		analyser: NewAnalyser(
			NewReceiver(opts.MaxSize, opts.Field),
			NewAllowList(opts.AllowedTypes),
			opts.Sniffer,
		),
		store:          opts.Store,
		bucket:         opts.Bucket,
		persistTimeout: opts.PersistTimeout,
	}, nil
}

// FileResponse is the body of an accepted upload.
type FileResponse struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// ErrorResponse is the body of every rejection.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// FileInfoResponse describes a stored upload.
type FileInfoResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Size      int64     `json:"size"`
	Bucket    string    `json:"bucket"`
	CreatedAt time.Time `json:"createdAt"`
}

// ServeHTTP handles POST /api/fileanalyse.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	file, outcome := h.analyser.Analyse(w, r)
	if !outcome.OK() {
		h.reject(w, outcome.Err)
		return
	}

	if h.store != nil {
		id, err := h.persist(r.Context(), file)
		if err != nil {
			h.reject(w, newError(StorageUnavailable, "file storage is unavailable", err))
			return
		}
		w.Header().Set(ObjectIDHeader, id)
		fwlog.Infof("accepted %q as %s (%d bytes), stored as %s", outcome.Name, outcome.Type, outcome.Size, id)
	} else {
		fwlog.Infof("accepted %q as %s (%d bytes)", outcome.Name, outcome.Type, outcome.Size)
	}

	writeJSON(w, http.StatusOK, FileResponse{Name: outcome.Name, Type: outcome.Type, Size: outcome.Size})
}

func (h *Handler) persist(ctx context.Context, file *UploadedFile) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.persistTimeout)
	defer cancel()
	return h.store.Put(ctx, &storage.Object{
		Name:        file.Name,
		ContentType: file.DeclaredType,
		Bucket:      h.bucket,
		Content:     file.Content,
	})
}

func (h *Handler) reject(w http.ResponseWriter, e *Error) {
	msg := e.Message
	switch e.Kind {
	case Internal, StorageUnavailable:
		fwlog.Errorf("upload failed: %v", e)
		if e.Kind == Internal {
			msg = "internal server error"
		}
	default:
		fwlog.Warnf("upload rejected: %v", e)
	}
	if e.Kind == PayloadTooLarge {
		w.Header().Set("Connection", "close")
	}
	writeJSON(w, e.Kind.Status(), ErrorResponse{Error: e.Kind.String(), Message: msg})
}

// FileInfo handles GET /api/files/{id}.
func (h *Handler) FileInfo(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "NotImplemented", Message: "file storage is disabled"})
		return
	}
	meta, err := h.store.Stat(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "NotFound", Message: "file not found"})
		return
	case err != nil:
		fwlog.Errorf("stat %s: %v", r.PathValue("id"), err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   StorageUnavailable.String(),
			Message: "file storage is unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, FileInfoResponse{
		ID:        meta.ID,
		Name:      meta.Filename,
		Type:      meta.ContentType,
		Size:      meta.Size,
		Bucket:    meta.Bucket,
		CreatedAt: meta.CreatedAt,
	})
}

// Health handles GET /health. It reports degraded when the store can be
// pinged and the ping fails.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if p, ok := h.store.(storage.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			fwlog.Warnf("health check: %v", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{"status": status, "service": "fileanalyse"})
}

// Close releases the store, if any.
func (h *Handler) Close() error {
	if h.store == nil {
		return nil
	}
	return h.store.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fwlog.Errorf("failed to write response: %v", err)
	}
}
