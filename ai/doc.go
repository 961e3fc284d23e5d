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


// Package ai defines the embedding model abstraction used by the
// chunking and ingestion stages.
//
// Embedding model instances are expensive to construct and are not assumed
// to be safe for concurrent use. Components receive an EmbedderFactory and
// build one instance per worker instead of sharing a single Embedder.
//
// # Implementations
//
//   - openai: OpenAI-compatible embedding APIs via langchaingo
//   - ollama: Ollama servers via langchaingo
//   - mock: deterministic vectors for tests
package ai
