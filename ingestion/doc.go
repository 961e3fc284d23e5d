// Copyright 2025 Poiesic Systems
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


// Package ingestion provides the Embedding Worker Pool.
//
// A Pipeline turns (entity, artifact) pairs into vectors in the vector
// store. Each item is handled by one worker of a small fixed-size pool and
// goes through the same sequence:
//
//  1. re-check the State Store for an existing record
//  2. download the artifact to a private temporary file
//  3. extract pages and attach base metadata
//  4. refuse artifacts with too many pages (failed-too-large)
//  5. chunk under a wall-clock timeout (failed-timeout)
//  6. drop short chunks; stop quietly when none are left
//  7. embed the chunks with the worker's own embedder
//  8. upload the points while holding the shared upload lock
//  9. record ok
//
// Temporary files and State Store sessions are released on every path.
// A failure inside one item is logged and never affects its siblings.
//
// # Embedder instances
//
// Embedding models are not shared between workers. EmbedderPool holds one
// slot per worker; a slot builds its embedder on first use under a lock
// and keeps it for later items. A slot whose embedder may still be in use
// by an abandoned chunking goroutine is discarded and rebuilt.
package ingestion
