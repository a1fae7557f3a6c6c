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

	"github.com/fawa-io/fileanalyse/pkg/sniff"
)

// CrossCheck compares the declared type with what the content sniffed as.
// Types must match exactly; related formats are not interchangeable.
func CrossCheck(declared string, sniffed sniff.Result) error {
	detected, ok := sniffed.MIME()
	if !ok {
		return newError(TypeUndetermined, "file content does not match any known type", nil)
	}
	if detected != declared {
		return newError(TypeMismatch,
			fmt.Sprintf("file content is %s but was declared as %s", detected, declared), nil)
	}
	return nil
}
