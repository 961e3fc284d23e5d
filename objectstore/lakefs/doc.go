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


// Package lakefs implements objectstore.Store for one branch of a lakeFS
// repository.
//
// Object operations go through the lakeFS S3 gateway, where the bucket is
// the repository and every key is prefixed by the branch name. Commits use
// the lakeFS REST API, which the S3 gateway does not expose.
package lakefs
