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
	"errors"
	"fmt"
	"io"
	"net/http"
)

// envelopeAllowance is the room left above the file ceiling for multipart
// boundaries, part headers and small non-file fields.
const envelopeAllowance = 64 << 10

// Receiver extracts one named file part from a multipart request body,
// holding at most maxSize bytes of file content in memory.
type Receiver struct {
	maxSize int64
	field   string
}

// NewReceiver returns a Receiver for field with the given byte ceiling.
func NewReceiver(maxSize int64, field string) *Receiver {
	return &Receiver{maxSize: maxSize, field: field}
}

// MaxSize returns the file size ceiling in bytes.
func (rc *Receiver) MaxSize() int64 {
	return rc.maxSize
}

// Receive reads r's body up to the first part named after the receiver's
// field that carries a filename. Parts after it are left unread.
func (rc *Receiver) Receive(w http.ResponseWriter, r *http.Request) (*UploadedFile, error) {
	bodyLimit := rc.maxSize + envelopeAllowance
	if r.ContentLength > bodyLimit {
		return nil, newError(PayloadTooLarge, rc.tooLargeMessage(), nil)
	}
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, newError(MalformedMultipart, "request is not a multipart form", err)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, newError(MissingFile, fmt.Sprintf("no file was uploaded in field %q", rc.field), nil)
		}
		if err != nil {
			return nil, rc.readError(err)
		}
		if part.FormName() != rc.field || part.FileName() == "" {
			continue
		}

		content, err := io.ReadAll(io.LimitReader(part, rc.maxSize+1))
		if err != nil {
			return nil, rc.readError(err)
		}
		if int64(len(content)) > rc.maxSize {
			return nil, newError(PayloadTooLarge, rc.tooLargeMessage(), nil)
		}
		return &UploadedFile{
			Name:         part.FileName(),
			DeclaredType: part.Header.Get("Content-Type"),
			Size:         int64(len(content)),
			Content:      content,
		}, nil
	}
}

func (rc *Receiver) readError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return newError(PayloadTooLarge, rc.tooLargeMessage(), err)
	}
	return newError(MalformedMultipart, "request body is not a valid multipart form", err)
}

func (rc *Receiver) tooLargeMessage() string {
	return fmt.Sprintf("file exceeds the %d byte limit", rc.maxSize)
}
