package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/embedsync/core"
	"github.com/poiesic/embedsync/storage"
)

// PendingArtifacts returns artifacts of known entities without an
// embedding record. With RetryFailed, failed-* records count as pending too.
func (s *Store) PendingArtifacts(ctx context.Context, q storage.PendingQuery) ([]core.ArtifactRef, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.WriteString(`SELECT a.entity_id, a.artifact_key
		FROM artifacts a
		JOIN entities e ON e.entity_id = a.entity_id
		LEFT JOIN embeddings m ON m.entity_id = a.entity_id AND m.artifact_key = a.artifact_key
		WHERE m.entity_id IS NULL`)
	if q.RetryFailed {
		sb.WriteString(` OR m.status LIKE 'failed-%'`)
	}
	sb.WriteString(` ORDER BY a.entity_id, a.artifact_key`)
	var args []any
	if q.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query pending artifacts: %w", err)
	}
	defer rows.Close()

	var refs []core.ArtifactRef
	for rows.Next() {
		var ref core.ArtifactRef
		if err := rows.Scan(&ref.EntityID, &ref.Key); err != nil {
			return nil, fmt.Errorf("scan pending artifact: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// EntitiesWithArtifacts counts entities that have at least one artifact row.
func (s *Store) EntitiesWithArtifacts(ctx context.Context, sampleSize int) (int, []string, error) {
	if err := s.checkOpen(); err != nil {
		return 0, nil, err
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT e.entity_id)
		FROM entities e JOIN artifacts a ON a.entity_id = e.entity_id`).Scan(&count)
	if err != nil {
		return 0, nil, fmt.Errorf("count entities with artifacts: %w", err)
	}
	if sampleSize <= 0 || count == 0 {
		return count, nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT e.entity_id
		FROM entities e JOIN artifacts a ON a.entity_id = e.entity_id
		ORDER BY e.entity_id LIMIT ?`, sampleSize)
	if err != nil {
		return 0, nil, fmt.Errorf("sample entities with artifacts: %w", err)
	}
	defer rows.Close()

	sample := make([]string, 0, sampleSize)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, nil, fmt.Errorf("scan entity sample: %w", err)
		}
		sample = append(sample, id)
	}
	return count, sample, rows.Err()
}

var _ storage.Store = (*Store)(nil)
