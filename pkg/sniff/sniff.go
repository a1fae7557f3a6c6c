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

// Package sniff derives a file's canonical MIME type from its leading bytes.
//
// Detection walks an ordered signature table and returns the first match.
// When no signature matches, content that reads as UTF-8 prose is reported
// as text/plain; anything else is Undetermined. A Sniffer does no I/O and
// holds no mutable state, so one instance can serve every request.
package sniff

// DefaultWindow is how many leading bytes a Sniffer inspects by default.
const DefaultWindow = 8 << 10

// Result is the outcome of sniffing: either a detected MIME type or
// Undetermined.
type Result struct {
	mime string
}

// Undetermined is the Result for content that matches no signature and is
// not plain text.
var Undetermined = Result{}

// Detected returns a Result carrying mime. An empty mime is Undetermined.
func Detected(mime string) Result {
	return Result{mime: mime}
}

// MIME returns the detected type and whether detection succeeded.
func (r Result) MIME() (string, bool) {
	return r.mime, r.mime != ""
}

func (r Result) String() string {
	if r.mime == "" {
		return "undetermined"
	}
	return r.mime
}

// Sniffer matches content against an ordered signature table.
type Sniffer struct {
	signatures []Signature
	window     int
}

// Option configures a Sniffer.
type Option func(*Sniffer)

// WithWindow sets how many leading bytes are inspected. The window never
// shrinks below what the table's patterns need.
func WithWindow(n int) Option {
	return func(s *Sniffer) {
		s.window = n
	}
}

// WithSignatures replaces the detection table.
func WithSignatures(sigs []Signature) Option {
	return func(s *Sniffer) {
		s.signatures = sigs
	}
}

// New builds a Sniffer over DefaultSignatures and DefaultWindow unless
// overridden. The table is copied, so later edits to the caller's slice do
// not affect the Sniffer.
func New(opts ...Option) *Sniffer {
	s := &Sniffer{
		signatures: DefaultSignatures,
		window:     DefaultWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.signatures = append([]Signature(nil), s.signatures...)

	minWindow := 0
	for i := range s.signatures {
		if n := s.signatures[i].span(); n > minWindow {
			minWindow = n
		}
	}
	if s.window < minWindow {
		s.window = minWindow
	}
	return s
}

// Window returns the number of leading bytes inspected.
func (s *Sniffer) Window() int {
	return s.window
}

// Signatures returns a copy of the detection table in match order.
func (s *Sniffer) Signatures() []Signature {
	return append([]Signature(nil), s.signatures...)
}

// Sniff classifies content.
func (s *Sniffer) Sniff(content []byte) Result {
	window := content
	truncated := false
	if len(window) > s.window {
		window = window[:s.window]
		truncated = true
	}
	if len(window) == 0 {
		return Undetermined
	}

	for i := range s.signatures {
		if s.signatures[i].matches(window) {
			return Detected(s.signatures[i].MIME)
		}
	}
	if looksLikeText(window, truncated) {
		return Detected(TypeTextPlain)
	}
	return Undetermined
}

var defaultSniffer = New()

// Sniff classifies content with the default table and window.
func Sniff(content []byte) Result {
	return defaultSniffer.Sniff(content)
}
