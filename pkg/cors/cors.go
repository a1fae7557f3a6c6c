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

package cors

import (
	"net/http"

	rscors "github.com/rs/cors"
)

// NewCORS returns a CORS middleware allowing origins to call the upload
// API. An empty list allows any origin.
func NewCORS(origins []string) *rscors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return rscors.New(rscors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Content-Length", "Accept", "Origin"},
		ExposedHeaders: []string{"X-Object-Id"},
		MaxAge:         7200,
	})
}
