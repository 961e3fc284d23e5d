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


// Package config loads the typed configuration shared by every component.
//
// A Config is built once at process start by Load and passed by value or
// pointer into constructors. Values come from a YAML file; any key can be
// overridden from the environment with the EMBEDSYNC_ prefix, with dots
// replaced by underscores (EMBEDSYNC_LAKEFS_PASSWORD).
package config
