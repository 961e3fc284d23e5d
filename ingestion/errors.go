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


package ingestion

import "errors"

var (
	// ErrStateStoreRequired is returned when a state store is not provided.
	ErrStateStoreRequired = errors.New("state store required")

	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrEmbedderFactoryRequired is returned when an embedder factory is not provided.
	ErrEmbedderFactoryRequired = errors.New("embedder factory required")

	// ErrTooLarge indicates an artifact with more pages than allowed.
	ErrTooLarge = errors.New("artifact has too many pages")

	// ErrVectorCountMismatch indicates the embedder returned a different
	// number of vectors than chunks.
	ErrVectorCountMismatch = errors.New("embedding count does not match chunk count")
)
