package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/embedsync/core"
)

// session wraps one *sql.Conn owned by a single worker.
type session struct {
	conn *sql.Conn
}

func (s *session) EmbeddingStatus(ctx context.Context, ref core.ArtifactRef) (core.Status, bool, error) {
	var status sql.NullString
	err := s.conn.QueryRowContext(ctx,
		`SELECT status FROM embeddings WHERE entity_id = ? AND artifact_key = ?`,
		ref.EntityID, ref.Key).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query embedding status %s: %w", ref, err)
	}
	return core.Status(status.String), true, nil
}

func (s *session) RecordEmbeddingOutcome(ctx context.Context, ref core.ArtifactRef, at time.Time, status core.Status) error {
	return recordOutcome(ctx, s.conn, ref, at, status)
}

func (s *session) Close() error {
	return s.conn.Close()
}
