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

// UploadedFile is the file part extracted from one request. Name is
// client-supplied and is never used to build a filesystem path.
type UploadedFile struct {
	Name         string
	DeclaredType string
	Size         int64
	Content      []byte
}

// Outcome is the verdict on one upload: either accepted with the metadata
// echoed to the client, or rejected with a classified error.
type Outcome struct {
	Name string
	Type string
	Size int64

	Err *Error
}

// Accepted returns the Outcome for a file that passed every check.
func Accepted(f *UploadedFile) Outcome {
	return Outcome{Name: f.Name, Type: f.DeclaredType, Size: f.Size}
}

// Rejected returns the Outcome for a failed check.
func Rejected(err *Error) Outcome {
	return Outcome{Err: err}
}

// OK reports whether the upload was accepted.
func (o Outcome) OK() bool {
	return o.Err == nil
}
