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


package core

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// Status is the outcome recorded for an artifact in the embeddings table.
type Status string

const (
	// StatusOK marks an artifact whose chunks were embedded and uploaded.
	StatusOK Status = "ok"
	// StatusPlanned marks an artifact reserved by a work plan.
	StatusPlanned Status = "planned"
	// StatusFailedTimeout marks an artifact whose chunking exceeded the timeout.
	StatusFailedTimeout Status = "failed-timeout"
	// StatusFailedTooLarge marks an artifact with more pages than allowed.
	StatusFailedTooLarge Status = "failed-too-large"
)

const failedPrefix = "failed-"

// IsFailure reports whether the status is one of the failed-* outcomes.
func (s Status) IsFailure() bool {
	return strings.HasPrefix(string(s), failedPrefix)
}

// ArtifactRef identifies one discovered file belonging to an entity.
type ArtifactRef struct {
	EntityID string
	Key      string
}

func (r ArtifactRef) String() string {
	return r.EntityID + ":" + r.Key
}

// PointPrefix returns the namespace used for the artifact's vector point ids.
func (r ArtifactRef) PointPrefix() string {
	return r.EntityID + "/" + r.Key
}

// EmbeddingRecord is the persisted outcome of an embedding attempt.
type EmbeddingRecord struct {
	Ref       ArtifactRef
	Status    Status
	UpdatedAt time.Time
}

// ContentHash returns the hex encoded 64-bit BLAKE2b digest of text.
func ContentHash(text string) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// PointID derives the vector store id of the index-th chunk under prefix.
// Ids are UUIDv5 values in the DNS namespace, so uploading the same chunk
// twice overwrites the earlier point.
func PointID(prefix string, index int) string {
	name := fmt.Sprintf("%s-%d", prefix, index)
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)).String()
}

// ShardEntityID converts an entity id into the sharded path layout used by
// the document store, e.g. "Q12345" becomes "01/23/45/Q12345".
func ShardEntityID(entityID string) string {
	id := strings.ToUpper(strings.TrimSpace(entityID))
	digits := strings.TrimPrefix(id, "Q")
	if len(digits) < 6 {
		digits = strings.Repeat("0", 6-len(digits)) + digits
	}
	return digits[:2] + "/" + digits[2:4] + "/" + digits[4:6] + "/" + id
}
