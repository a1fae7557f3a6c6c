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
	"fmt"
	"slices"
)

// DefaultAllowedTypes are the declared MIME types accepted when no list is
// configured.
var DefaultAllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"text/plain",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"audio/mpeg",
	"video/mp4",
}

// AllowList is a deny-by-default set of declared MIME types matched by
// exact string comparison.
type AllowList struct {
	types map[string]struct{}
}

// NewAllowList builds an AllowList from types. Empty entries are ignored.
func NewAllowList(types []string) *AllowList {
	a := &AllowList{types: make(map[string]struct{}, len(types))}
	for _, t := range types {
		if t != "" {
			a.types[t] = struct{}{}
		}
	}
	return a
}

// Allows reports whether declared is on the list.
func (a *AllowList) Allows(declared string) bool {
	_, ok := a.types[declared]
	return ok
}

// Check returns an InvalidDeclaredType error when declared is not allowed.
func (a *AllowList) Check(declared string) error {
	if a.Allows(declared) {
		return nil
	}
	return newError(InvalidDeclaredType, fmt.Sprintf("file type %q is not allowed", declared), nil)
}

// Types returns the allowed types in sorted order.
func (a *AllowList) Types() []string {
	out := make([]string, 0, len(a.types))
	for t := range a.types {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
