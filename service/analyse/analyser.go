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
	"net/http"

	"github.com/fawa-io/fileanalyse/pkg/sniff"
)

// Analyser runs the upload pipeline: receive, gate the declared type, sniff
// the content and cross-check the two. It stops at the first failure.
type Analyser struct {
	receiver *Receiver
	allow    *AllowList
	sniffer  *sniff.Sniffer
}

// NewAnalyser wires the pipeline stages together.
func NewAnalyser(receiver *Receiver, allow *AllowList, sniffer *sniff.Sniffer) *Analyser {
	return &Analyser{receiver: receiver, allow: allow, sniffer: sniffer}
}

// Analyse receives the file from r and validates it. The file is returned
// whenever it was received, even if validation rejected it.
func (a *Analyser) Analyse(w http.ResponseWriter, r *http.Request) (*UploadedFile, Outcome) {
	file, err := a.receiver.Receive(w, r)
	if err != nil {
		return nil, Rejected(asError(err))
	}
	return file, a.Validate(file)
}

// Validate checks an already received file. The declared type is gated
// before any content byte is inspected.
func (a *Analyser) Validate(file *UploadedFile) Outcome {
	if err := a.allow.Check(file.DeclaredType); err != nil {
		return Rejected(asError(err))
	}
	if err := CrossCheck(file.DeclaredType, a.sniffer.Sniff(file.Content)); err != nil {
		return Rejected(asError(err))
	}
	return Accepted(file)
}

func asError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return newError(Internal, "internal server error", err)
}
