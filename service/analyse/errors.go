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
	"net/http"
)

// Kind classifies why an upload was rejected.
type Kind int

const (
	// Internal is an unclassified server-side fault.
	Internal Kind = iota
	MalformedMultipart
	MissingFile
	PayloadTooLarge
	InvalidDeclaredType
	TypeUndetermined
	TypeMismatch
	StorageUnavailable
)

var kindNames = [...]string{
	Internal:            "Internal",
	MalformedMultipart:  "MalformedMultipart",
	MissingFile:         "MissingFile",
	PayloadTooLarge:     "PayloadTooLarge",
	InvalidDeclaredType: "InvalidFileType",
	TypeUndetermined:    "TypeUndetermined",
	TypeMismatch:        "TypeMismatch",
	StorageUnavailable:  "StorageUnavailable",
}

// String returns the wire name written to the "error" field of a rejection.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[Internal]
	}
	return kindNames[k]
}

// Status returns the HTTP status a rejection of kind k is answered with.
func (k Kind) Status() int {
	switch k {
	case MalformedMultipart, MissingFile, PayloadTooLarge,
		InvalidDeclaredType, TypeUndetermined, TypeMismatch:
		return http.StatusBadRequest
	case StorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified pipeline failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind carried by err, or Internal when err is not an
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
