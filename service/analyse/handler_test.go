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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/fileanalyse/pkg/sniff"
	"github.com/fawa-io/fileanalyse/pkg/storage"
)

var (
	jpegBytes    = []byte("\xFF\xD8\xFF\xE0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
	pngBytes     = []byte("\x89PNG\r\n\x1A\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")
	pdfBytes     = []byte("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n1 0 obj\n")
	textBytes    = []byte("hello, world\nthis is a plain text file\n")
	exeBytes     = []byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00\xFF\xFF")
	mp3Bytes     = []byte("ID3\x04\x00\x00\x00\x00\x00\x00\xFF\xFB\x90\x64")
	unknownBytes = []byte{0x13, 0x37, 0xBE, 0xEF, 0x00, 0x01, 0x02, 0x03, 0x00, 0x00}
)

type formPart struct {
	field       string
	filename    string
	contentType string
	content     []byte
}

func filePart(contentType string, content []byte) formPart {
	return formPart{field: "upfile", filename: "upload.bin", contentType: contentType, content: content}
}

func multipartBody(t *testing.T, parts ...formPart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		if p.filename != "" {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, p.field, p.filename))
		} else {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, p.field))
		}
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func newUpload(t *testing.T, parts ...formPart) *http.Request {
	t.Helper()
	body, ct := multipartBody(t, parts...)
	req := httptest.NewRequest(http.MethodPost, "/api/fileanalyse", body)
	req.Header.Set("Content-Type", ct)
	return req
}

func newHandler(t *testing.T, opts Options) *Handler {
	t.Helper()
	h, err := New(opts)
	require.NoError(t, err)
	return h
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var got ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func TestHandlerAccepted(t *testing.T) {
	h := newHandler(t, Options{})

	tests := []struct {
		name        string
		contentType string
		content     []byte
	}{
		{"jpeg", "image/jpeg", jpegBytes},
		{"png", "image/png", pngBytes},
		{"pdf", "application/pdf", pdfBytes},
		{"text", "text/plain", textBytes},
		{"mp3", "audio/mpeg", mp3Bytes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			part := filePart(tt.contentType, tt.content)
			part.filename = "photo." + tt.name
			rec := serve(h, newUpload(t, part))

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Empty(t, rec.Header().Get(ObjectIDHeader))
			assert.JSONEq(t,
				fmt.Sprintf(`{"name":"photo.%s","type":"%s","size":%d}`, tt.name, tt.contentType, len(tt.content)),
				rec.Body.String())
		})
	}
}

func TestHandlerRejected(t *testing.T) {
	h := newHandler(t, Options{})
	docx := []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x11\x00\x00\x00word/document.xml")

	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantKind Kind
	}{
		{
			name:     "text declared as jpeg",
			req:      func(t *testing.T) *http.Request { return newUpload(t, filePart("image/jpeg", textBytes)) },
			wantKind: TypeMismatch,
		},
		{
			name:     "executable type not allowed",
			req:      func(t *testing.T) *http.Request { return newUpload(t, filePart("application/x-msdownload", exeBytes)) },
			wantKind: InvalidDeclaredType,
		},
		{
			name:     "unknown binary declared as mp3",
			req:      func(t *testing.T) *http.Request { return newUpload(t, filePart("audio/mpeg", unknownBytes)) },
			wantKind: TypeUndetermined,
		},
		{
			name:     "docx declared as legacy word",
			req:      func(t *testing.T) *http.Request { return newUpload(t, filePart("application/msword", docx)) },
			wantKind: TypeMismatch,
		},
		{
			name:     "declared type is case sensitive",
			req:      func(t *testing.T) *http.Request { return newUpload(t, filePart("IMAGE/JPEG", jpegBytes)) },
			wantKind: InvalidDeclaredType,
		},
		{
			name:     "declared type parameters are not stripped",
			req:      func(t *testing.T) *http.Request { return newUpload(t, filePart("text/plain; charset=utf-8", textBytes)) },
			wantKind: InvalidDeclaredType,
		},
		{
			name:     "no declared type",
			req:      func(t *testing.T) *http.Request { return newUpload(t, filePart("", jpegBytes)) },
			wantKind: InvalidDeclaredType,
		},
		{
			name:     "empty file",
			req:      func(t *testing.T) *http.Request { return newUpload(t, filePart("text/plain", nil)) },
			wantKind: TypeUndetermined,
		},
		{
			name: "wrong field name",
			req: func(t *testing.T) *http.Request {
				p := filePart("image/jpeg", jpegBytes)
				p.field = "file"
				return newUpload(t, p)
			},
			wantKind: MissingFile,
		},
		{
			name: "field without filename",
			req: func(t *testing.T) *http.Request {
				return newUpload(t, formPart{field: "upfile", contentType: "text/plain", content: textBytes})
			},
			wantKind: MissingFile,
		},
		{
			name:     "empty form",
			req:      func(t *testing.T) *http.Request { return newUpload(t) },
			wantKind: MissingFile,
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/fileanalyse", strings.NewReader(`{"upfile":"x"}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantKind: MalformedMultipart,
		},
		{
			name: "truncated body",
			req: func(t *testing.T) *http.Request {
				body, ct := multipartBody(t, filePart("image/jpeg", jpegBytes))
				req := httptest.NewRequest(http.MethodPost, "/api/fileanalyse", bytes.NewReader(body.Bytes()[:body.Len()-20]))
				req.Header.Set("Content-Type", ct)
				return req
			},
			wantKind: MalformedMultipart,
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return newUpload(t, filePart("image/jpeg", append(jpegBytes, make([]byte, 2<<20)...)))
			},
			wantKind: PayloadTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.req(t))

			assert.Equal(t, tt.wantKind.Status(), rec.Code)
			got := decodeError(t, rec)
			assert.Equal(t, tt.wantKind.String(), got.Error)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestHandlerSizeBoundary(t *testing.T) {
	const limit = 1024
	h := newHandler(t, Options{MaxSize: limit})

	exact := bytes.Repeat([]byte("a"), limit)
	rec := serve(h, newUpload(t, filePart("text/plain", exact)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"name":"upload.bin","type":"text/plain","size":1024}`, rec.Body.String())

	over := bytes.Repeat([]byte("a"), limit+1)
	rec = serve(h, newUpload(t, filePart("text/plain", over)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PayloadTooLarge", decodeError(t, rec).Error)
}

// countingReader records how many body bytes the handler pulled.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func TestHandlerOversizeNotBuffered(t *testing.T) {
	h := newHandler(t, Options{})
	body, ct := multipartBody(t, filePart("image/jpeg", append(jpegBytes, make([]byte, 2<<20)...)))
	total := int64(body.Len())

	t.Run("declared length", func(t *testing.T) {
		cr := &countingReader{r: bytes.NewReader(body.Bytes())}
		req := httptest.NewRequest(http.MethodPost, "/api/fileanalyse", cr)
		req.Header.Set("Content-Type", ct)
		req.ContentLength = total

		rec := serve(h, req)
		assert.Equal(t, "PayloadTooLarge", decodeError(t, rec).Error)
		assert.Zero(t, cr.n)
	})

	t.Run("chunked", func(t *testing.T) {
		cr := &countingReader{r: bytes.NewReader(body.Bytes())}
		req := httptest.NewRequest(http.MethodPost, "/api/fileanalyse", cr)
		req.Header.Set("Content-Type", ct)
		req.ContentLength = -1

		rec := serve(h, req)
		assert.Equal(t, "PayloadTooLarge", decodeError(t, rec).Error)
		assert.Less(t, cr.n, int64(1<<20+envelopeAllowance+64<<10))
		assert.Less(t, cr.n, total)
	})
}

func TestHandlerPartOrder(t *testing.T) {
	h := newHandler(t, Options{})

	t.Run("fields before the file are skipped", func(t *testing.T) {
		rec := serve(h, newUpload(t,
			formPart{field: "description", content: []byte("holiday")},
			formPart{field: "other", filename: "x.exe", contentType: "application/x-msdownload", content: exeBytes},
			filePart("image/png", pngBytes),
		))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"type":"image/png"`)
	})

	t.Run("first file part wins", func(t *testing.T) {
		rec := serve(h, newUpload(t,
			filePart("image/png", pngBytes),
			filePart("application/x-msdownload", exeBytes),
		))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"type":"image/png"`)
	})
}

func TestHandlerConfiguredAllowList(t *testing.T) {
	h := newHandler(t, Options{AllowedTypes: []string{"image/png"}, Field: "file"})

	p := filePart("image/jpeg", jpegBytes)
	p.field = "file"
	rec := serve(h, newUpload(t, p))
	assert.Equal(t, "InvalidFileType", decodeError(t, rec).Error)

	p = filePart("image/png", pngBytes)
	p.field = "file"
	rec = serve(h, newUpload(t, p))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// Every accepted upload must have been sniffed as exactly its declared type.
func TestHandlerAcceptedImpliesMatch(t *testing.T) {
	h := newHandler(t, Options{})
	contents := [][]byte{jpegBytes, pngBytes, pdfBytes, textBytes, exeBytes, mp3Bytes, unknownBytes, []byte("GIF89a\x01\x00")}
	declared := append([]string{"application/x-msdownload", "image/webp", ""}, DefaultAllowedTypes...)

	for _, c := range contents {
		for _, d := range declared {
			rec := serve(h, newUpload(t, filePart(d, c)))
			if rec.Code != http.StatusOK {
				continue
			}
			got, ok := sniff.Sniff(c).MIME()
			assert.True(t, ok)
			assert.Equal(t, d, got)
		}
	}
}

type failingStore struct {
	err error
}

func (f failingStore) Put(context.Context, *storage.Object) (string, error) {
	return "", f.err
}

func (f failingStore) Stat(context.Context, string) (*storage.FileMetadata, error) {
	return nil, f.err
}

func (f failingStore) Ping(context.Context) error {
	return f.err
}

func (f failingStore) Close() error {
	return nil
}

func TestHandlerPersistence(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newHandler(t, Options{Store: store, Bucket: "images"})

	mux := http.NewServeMux()
	mux.Handle("POST /api/fileanalyse", h)
	mux.HandleFunc("GET /api/files/{id}", h.FileInfo)

	t.Run("accepted upload is stored", func(t *testing.T) {
		rec := serve(mux, newUpload(t, filePart("image/jpeg", jpegBytes)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		id := rec.Header().Get(ObjectIDHeader)
		require.NotEmpty(t, id)
		content, err := store.Content(id)
		require.NoError(t, err)
		assert.Equal(t, jpegBytes, content)

		rec = serve(mux, httptest.NewRequest(http.MethodGet, "/api/files/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var info FileInfoResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		assert.Equal(t, id, info.ID)
		assert.Equal(t, "upload.bin", info.Name)
		assert.Equal(t, "image/jpeg", info.Type)
		assert.Equal(t, int64(len(jpegBytes)), info.Size)
		assert.Equal(t, "images", info.Bucket)
	})

	t.Run("rejected upload is not stored", func(t *testing.T) {
		before := store.Len()
		rec := serve(mux, newUpload(t, filePart("image/jpeg", textBytes)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, rec.Header().Get(ObjectIDHeader))
		assert.Equal(t, before, store.Len())
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := serve(mux, httptest.NewRequest(http.MethodGet, "/api/files/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := serve(mux, httptest.NewRequest(http.MethodGet, "/api/fileanalyse", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHandlerStorageUnavailable(t *testing.T) {
	h := newHandler(t, Options{Store: failingStore{err: fmt.Errorf("put: %w", storage.ErrUnavailable)}})

	rec := serve(h, newUpload(t, filePart("image/jpeg", jpegBytes)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	got := decodeError(t, rec)
	assert.Equal(t, "StorageUnavailable", got.Error)
	assert.Empty(t, rec.Header().Get(ObjectIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/files/x", nil)
	req.SetPathValue("id", "x")
	rec = serve(http.HandlerFunc(h.FileInfo), req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerWithoutStore(t *testing.T) {
	h := newHandler(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/api/files/x", nil)
	req.SetPathValue("id", "x")
	rec := serve(http.HandlerFunc(h.FileInfo), req)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.NoError(t, h.Close())
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		store      storage.Store
		wantCode   int
		wantStatus string
	}{
		{"no store", nil, http.StatusOK, "ok"},
		{"store without ping", storage.NewMemoryStore(), http.StatusOK, "ok"},
		{"healthy pinger", failingStore{}, http.StatusOK, "ok"},
		{"failing pinger", failingStore{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(t, Options{Store: tt.store})
			rec := serve(http.HandlerFunc(h.Health), httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"status":"%s","service":"fileanalyse"}`, tt.wantStatus), rec.Body.String())
		})
	}
}

func TestNewInvalidBucket(t *testing.T) {
	_, err := New(Options{Bucket: "../etc"})
	assert.ErrorIs(t, err, storage.ErrInvalidBucket)
}
