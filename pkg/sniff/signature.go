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
	"encoding/binary"
	"unicode/utf16"
)

// Canonical MIME types the service cares about.
const (
	TypeJPEG      = "image/jpeg"
	TypePNG       = "image/png"
	TypeGIF       = "image/gif"
	TypeTextPlain = "text/plain"
	TypePDF       = "application/pdf"
	TypeDOC       = "application/msword"
	TypeDOCX      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeXLS       = "application/vnd.ms-excel"
	TypeXLSX      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	TypePPT       = "application/vnd.ms-powerpoint"
	TypePPTX      = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	TypeZIP       = "application/zip"
	TypeMP3       = "audio/mpeg"
	TypeMP4       = "video/mp4"
)

// Pattern is a byte sequence expected at a fixed offset from the start of
// the content.
type Pattern struct {
	Offset int
	Bytes  []byte
}

// Signature identifies a format. All Patterns must match. ZipEntry,
// OLEStream and Verify are refinements evaluated only after the patterns:
//
//   - ZipEntry: some zip local file header inside the window names an entry
//     starting with this prefix (OOXML "word/", "xl/", "ppt/").
//   - OLEStream: a compound-file directory entry with this UTF-16LE name is
//     present inside the window (legacy "WordDocument", "Workbook").
//   - Verify: a structural check on the header fields around a short magic,
//     so that prose starting with "ID3" or "MZ" is not taken for a binary.
type Signature struct {
	MIME      string
	Patterns  []Pattern
	ZipEntry  string
	OLEStream string
	Verify    func(window []byte) bool
}

// span is the number of leading bytes the patterns need.
func (sig *Signature) span() int {
	n := 0
	for _, p := range sig.Patterns {
		if end := p.Offset + len(p.Bytes); end > n {
			n = end
		}
	}
	return n
}

func (sig *Signature) matches(window []byte) bool {
	if len(sig.Patterns) == 0 {
		return false
	}
	for _, p := range sig.Patterns {
		end := p.Offset + len(p.Bytes)
		if end > len(window) || !bytes.Equal(window[p.Offset:end], p.Bytes) {
			return false
		}
	}
	if sig.ZipEntry != "" && !hasZipEntry(window, sig.ZipEntry) {
		return false
	}
	if sig.OLEStream != "" && !hasOLEStream(window, sig.OLEStream) {
		return false
	}
	if sig.Verify != nil && !sig.Verify(window) {
		return false
	}
	return true
}

func at(offset int, magic string) []Pattern {
	return []Pattern{{Offset: offset, Bytes: []byte(magic)}}
}

func both(off1 int, magic1 string, off2 int, magic2 string) []Pattern {
	return []Pattern{
		{Offset: off1, Bytes: []byte(magic1)},
		{Offset: off2, Bytes: []byte(magic2)},
	}
}

const (
	zipLocalHeader = "PK\x03\x04"
	oleHeader      = "\xD0\xCF\x11\xE0\xA1\xB1\x1A\xE1"
)

// DefaultSignatures is the ordered detection table. First match wins, so
// rows that refine a container precede the container's generic row.
var DefaultSignatures = []Signature{
	// Images
	{MIME: TypeJPEG, Patterns: at(0, "\xFF\xD8\xFF")},
	{MIME: TypePNG, Patterns: at(0, "\x89PNG\r\n\x1A\n")},
	{MIME: TypeGIF, Patterns: at(0, "GIF87a")},
	{MIME: TypeGIF, Patterns: at(0, "GIF89a")},
	{MIME: "image/webp", Patterns: both(0, "RIFF", 8, "WEBP")},
	{MIME: "image/bmp", Patterns: both(0, "BM", 6, "\x00\x00\x00\x00")},
	{MIME: "image/tiff", Patterns: at(0, "II*\x00")},
	{MIME: "image/tiff", Patterns: at(0, "MM\x00*")},

	// Documents
	{MIME: TypePDF, Patterns: at(0, "%PDF-")},
	{MIME: "application/postscript", Patterns: at(0, "%!PS")},
	{MIME: "application/rtf", Patterns: at(0, "{\\rtf")},

	// Zip based documents before plain zip
	{MIME: TypeDOCX, Patterns: at(0, zipLocalHeader), ZipEntry: "word/"},
	{MIME: TypeXLSX, Patterns: at(0, zipLocalHeader), ZipEntry: "xl/"},
	{MIME: TypePPTX, Patterns: at(0, zipLocalHeader), ZipEntry: "ppt/"},
	{MIME: "application/vnd.oasis.opendocument.text", Patterns: both(0, zipLocalHeader, 30, "mimetypeapplication/vnd.oasis.opendocument.text")},
	{MIME: "application/vnd.oasis.opendocument.spreadsheet", Patterns: both(0, zipLocalHeader, 30, "mimetypeapplication/vnd.oasis.opendocument.spreadsheet")},
	{MIME: "application/epub+zip", Patterns: both(0, zipLocalHeader, 30, "mimetypeapplication/epub+zip")},
	{MIME: "application/java-archive", Patterns: at(0, zipLocalHeader), ZipEntry: "META-INF/MANIFEST.MF"},
	{MIME: TypeZIP, Patterns: at(0, zipLocalHeader)},
	{MIME: TypeZIP, Patterns: at(0, "PK\x05\x06")},
	{MIME: TypeZIP, Patterns: at(0, "PK\x07\x08")},

	// Legacy Office compound files. An OLE file without a known stream in
	// the window stays undetermined.
	{MIME: TypeDOC, Patterns: at(0, oleHeader), OLEStream: "WordDocument"},
	{MIME: TypeXLS, Patterns: at(0, oleHeader), OLEStream: "Workbook"},
	{MIME: TypeXLS, Patterns: at(0, oleHeader), OLEStream: "Book"},
	{MIME: TypePPT, Patterns: at(0, oleHeader), OLEStream: "PowerPoint Document"},

	// Archives
	{MIME: "application/gzip", Patterns: at(0, "\x1F\x8B\x08")},
	{MIME: "application/x-bzip2", Patterns: at(0, "BZh")},
	{MIME: "application/x-7z-compressed", Patterns: at(0, "7z\xBC\xAF\x27\x1C")},
	{MIME: "application/x-rar-compressed", Patterns: at(0, "Rar!\x1A\x07")},
	{MIME: "application/x-xz", Patterns: at(0, "\xFD7zXZ\x00")},
	{MIME: "application/x-tar", Patterns: at(257, "ustar")},

	// Audio
	{MIME: TypeMP3, Patterns: at(0, "ID3"), Verify: validID3},
	{MIME: TypeMP3, Patterns: at(0, "\xFF\xFB")},
	{MIME: TypeMP3, Patterns: at(0, "\xFF\xFA")},
	{MIME: TypeMP3, Patterns: at(0, "\xFF\xF3")},
	{MIME: TypeMP3, Patterns: at(0, "\xFF\xF2")},
	{MIME: "audio/aac", Patterns: at(0, "\xFF\xF1")},
	{MIME: "audio/aac", Patterns: at(0, "\xFF\xF9")},
	{MIME: "audio/flac", Patterns: at(0, "fLaC")},
	{MIME: "audio/ogg", Patterns: at(0, "OggS")},
	{MIME: "audio/wav", Patterns: both(0, "RIFF", 8, "WAVE")},
	{MIME: "audio/midi", Patterns: at(0, "MThd")},

	// ISO base media: specific brands before the generic ftyp box.
	{MIME: "video/quicktime", Patterns: at(4, "ftypqt  "), Verify: validFtyp},
	{MIME: "audio/mp4", Patterns: at(4, "ftypM4A "), Verify: validFtyp},
	{MIME: "image/heic", Patterns: at(4, "ftypheic"), Verify: validFtyp},
	{MIME: "image/heic", Patterns: at(4, "ftypheix"), Verify: validFtyp},
	{MIME: "image/heif", Patterns: at(4, "ftypmif1"), Verify: validFtyp},
	{MIME: "image/heif", Patterns: at(4, "ftypmsf1"), Verify: validFtyp},
	{MIME: "image/avif", Patterns: at(4, "ftypavif"), Verify: validFtyp},
	{MIME: "video/3gpp", Patterns: at(4, "ftyp3gp"), Verify: validFtyp},
	{MIME: TypeMP4, Patterns: at(4, "ftyp"), Verify: validFtyp},

	// Other video
	{MIME: "video/webm", Patterns: at(0, "\x1A\x45\xDF\xA3")},
	{MIME: "video/x-msvideo", Patterns: both(0, "RIFF", 8, "AVI ")},
	{MIME: "video/x-flv", Patterns: at(0, "FLV\x01")},
	{MIME: "video/mpeg", Patterns: at(0, "\x00\x00\x01\xBA")},
	{MIME: "video/mpeg", Patterns: at(0, "\x00\x00\x01\xB3")},

	// Markup is text, but it must not pass as text/plain.
	{MIME: "text/html", Patterns: at(0, "<!DOCTYPE html")},
	{MIME: "text/html", Patterns: at(0, "<!doctype html")},
	{MIME: "text/html", Patterns: at(0, "<html")},
	{MIME: "text/html", Patterns: at(0, "<HTML")},
	{MIME: "application/xml", Patterns: at(0, "<?xml")},

	// Executables and binaries
	{MIME: "application/x-msdownload", Patterns: at(0, "MZ"), Verify: validPE},
	{MIME: "application/x-executable", Patterns: at(0, "\x7FELF")},
	{MIME: "application/x-mach-binary", Patterns: at(0, "\xCF\xFA\xED\xFE")},
	{MIME: "application/x-mach-binary", Patterns: at(0, "\xCE\xFA\xED\xFE")},
	{MIME: "application/wasm", Patterns: at(0, "\x00asm")},
	{MIME: "application/vnd.sqlite3", Patterns: at(0, "SQLite format 3\x00")},
}

// hasZipEntry walks the zip local file headers visible in window and
// reports whether one of them names an entry starting with prefix.
func hasZipEntry(window []byte, prefix string) bool {
	sig := []byte(zipLocalHeader)
	for off := 0; off+30 <= len(window); {
		i := bytes.Index(window[off:], sig)
		if i < 0 {
			return false
		}
		hdr := off + i
		if hdr+30 > len(window) {
			return false
		}
		nameLen := int(binary.LittleEndian.Uint16(window[hdr+26:]))
		start := hdr + 30
		end := start + nameLen
		if end > len(window) {
			// A header-like run inside entry data; keep scanning.
			off = hdr + len(sig)
			continue
		}
		if bytes.HasPrefix(window[start:end], []byte(prefix)) {
			return true
		}
		off = end
	}
	return false
}

// validID3 checks the ID3v2 header: major version 2 to 4, revision 0 and a
// syncsafe tag size.
func validID3(window []byte) bool {
	if len(window) < 10 {
		return false
	}
	if window[3] < 2 || window[3] > 4 || window[4] != 0 {
		return false
	}
	for _, b := range window[6:10] {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// maxFtypBox bounds the size of a leading ftyp box. Real ones list a few
// compatible brands; four printable bytes read as a size are far larger.
const maxFtypBox = 4096

// validFtyp checks the leading ISO base media box: a big-endian size that
// is a multiple of 4 between 8 and maxFtypBox, and a printable major brand.
func validFtyp(window []byte) bool {
	if len(window) < 12 {
		return false
	}
	size := binary.BigEndian.Uint32(window)
	if size < 8 || size > maxFtypBox || size%4 != 0 {
		return false
	}
	for _, b := range window[8:12] {
		if b < 0x20 || b > 0x7E {
			return false
		}
	}
	return true
}

// peHeaderOffset is where the DOS header stores e_lfanew.
const peHeaderOffset = 0x3C

// validPE checks that e_lfanew points past the DOS header at a "PE\0\0"
// signature. An offset beyond the window is accepted only when it is small
// enough to be a real header position.
func validPE(window []byte) bool {
	if len(window) < peHeaderOffset+4 {
		return false
	}
	lfanew := int64(binary.LittleEndian.Uint32(window[peHeaderOffset:]))
	if lfanew < peHeaderOffset+4 {
		return false
	}
	if lfanew+4 > int64(len(window)) {
		return lfanew < 1<<16
	}
	return bytes.Equal(window[lfanew:lfanew+4], []byte("PE\x00\x00"))
}

// hasOLEStream reports whether a directory entry name, encoded as UTF-16LE
// and followed by its NUL terminator, occurs in window.
func hasOLEStream(window []byte, name string) bool {
	units := utf16.Encode([]rune(name))
	needle := make([]byte, 0, 2*len(units)+2)
	for _, u := range units {
		needle = binary.LittleEndian.AppendUint16(needle, u)
	}
	needle = append(needle, 0, 0)
	return bytes.Contains(window, needle)
}
