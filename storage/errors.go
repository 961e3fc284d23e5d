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


package storage

import "errors"

var (
	// ErrUnknownTable indicates a row count was requested for a table outside the schema.
	ErrUnknownTable = errors.New("unknown table")

	// ErrStorageClosed indicates that the state store is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrSchemaFailed indicates the schema could not be created or migrated.
	ErrSchemaFailed = errors.New("schema setup failed")

	// ErrPathRequired indicates the state store was opened without a file path.
	ErrPathRequired = errors.New("state store path required")
)
