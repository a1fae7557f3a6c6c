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

package sniff

import (
	"bytes"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// looksLikeText reports whether window reads as UTF-8 prose: valid UTF-8,
// no NUL, no DEL and no C0 controls other than TAB, LF, VT, FF, CR and ESC.
// When truncated is set the window was cut from a longer buffer, and an
// incomplete rune at its very end is tolerated.
func looksLikeText(window []byte, truncated bool) bool {
	if len(window) == 0 {
		return false
	}
	b := bytes.TrimPrefix(window, utf8BOM)

	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			return truncated && !utf8.FullRune(b)
		}
		if !textRune(r) {
			return false
		}
		b = b[size:]
	}
	return true
}

func textRune(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\v', r == '\f', r == '\r', r == 0x1B:
		return true
	case r < 0x20, r == 0x7F:
		return false
	}
	return true
}
