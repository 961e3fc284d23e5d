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


// Package storage defines the State Store used to track discovery and
// embedding progress.
//
// The store holds three upsert-only tables:
//
//   - entities: one row per entity reported by the catalog
//   - artifacts: one row per (entity, artifact key) found in the document store
//   - embeddings: one row per artifact that has been attempted, with its status
//
// Reconciliation between the tables is done with joins, not foreign keys,
// because artifacts may be discovered before or after their entity.
//
// # Concurrency
//
// The store is owned by one process at a time. Within that process,
// embedding workers must each use their own Session; a Session wraps a
// dedicated connection and is never shared between goroutines.
//
// # Implementations
//
//   - sqlite: a single-file database on modernc.org/sqlite, suitable for
//     syncing to a remote object store as one object.
package storage
