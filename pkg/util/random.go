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

package util

import (
	"github.com/google/uuid"
)

// NewObjectKey returns a random identifier for a stored object. Keys are
// canonical UUID strings, which are also safe file and object names.
func NewObjectKey() string {
	return uuid.NewString()
}

// IsObjectKey reports whether key has the shape NewObjectKey produces.
func IsObjectKey(key string) bool {
	u, err := uuid.Parse(key)
	return err == nil && u.String() == key
}
