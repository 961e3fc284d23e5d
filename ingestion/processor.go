package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/schema"

	"github.com/poiesic/embedsync/chunking"
	"github.com/poiesic/embedsync/core"
	"github.com/poiesic/embedsync/storage"
	"github.com/poiesic/embedsync/vectorstore"
)

// Payload keys written next to the chunk text.
const (
	ChunkIndexKey  = "chunk_index"
	ContentHashKey = "content_hash"
)

// processItem runs one item through the embedding sequence. It never
// panics and never returns an error; failures turn into outcomes.
func (p *Pipeline) processItem(ctx context.Context, ref core.ArtifactRef) (outcome Outcome) {
	logger := p.logger.With("entity_id", ref.EntityID, "artifact_key", ref.Key)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing artifact", "panic", r)
			outcome = OutcomeError
		}
	}()

	sess, err := p.state.OpenSession(ctx)
	if err != nil {
		logger.Error("failed to open state session", "err", err)
		return OutcomeError
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("failed to close state session", "err", err)
		}
	}()

	status, found, err := sess.EmbeddingStatus(ctx, ref)
	if err != nil {
		logger.Error("failed to read embedding status", "err", err)
		return OutcomeError
	}
	if found && !p.shouldReprocess(status) {
		logger.Debug("artifact already handled", "status", status)
		return OutcomeAlreadyHandled
	}

	path, err := p.download(ctx, ref)
	if err != nil {
		logger.Warn("failed to download artifact", "err", err)
		return OutcomeDownloadFailed
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove temporary file", "path", path, "err", err)
		}
	}()

	pages, err := p.extractor.Extract(ctx, path, ref)
	if err != nil {
		logger.Warn("failed to extract artifact", "err", err)
		return OutcomeError
	}

	if len(pages) > p.maxPages {
		logger.Info("skipping artifact", "err", ErrTooLarge, "pages", len(pages), "max_pages", p.maxPages)
		return p.record(ctx, sess, logger, ref, core.StatusFailedTooLarge, OutcomeTooLarge)
	}

	lease, err := p.embedders.Acquire(ctx)
	if err != nil {
		logger.Error("failed to acquire embedder", "err", err)
		return OutcomeError
	}
	defer lease.Release()

	chunks, err := chunking.SplitWithTimeout(ctx, p.chunker, lease.Embedder(), pages, p.chunkTimeout)
	if err != nil {
		if isTimeout(err) {
			// The abandoned split may still be using this embedder.
			lease.Discard()
			logger.Warn("chunking timed out", "timeout", p.chunkTimeout, "pages", len(pages))
			return p.record(ctx, sess, logger, ref, core.StatusFailedTimeout, OutcomeTimeout)
		}
		logger.Error("failed to chunk artifact", "err", err)
		return OutcomeError
	}

	chunks = chunking.FilterShort(chunks, p.minChunkLength)
	if len(chunks) == 0 {
		logger.Info("no chunks left after filtering", "min_length", p.minChunkLength)
		return OutcomeNoChunks
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.PageContent
	}
	vectors, err := lease.Embedder().EmbedTexts(ctx, texts)
	if err != nil {
		logger.Error("failed to embed chunks", "err", err)
		return OutcomeError
	}
	if len(vectors) != len(chunks) {
		logger.Error("failed to embed chunks", "err", ErrVectorCountMismatch,
			"chunks", len(chunks), "vectors", len(vectors))
		return OutcomeError
	}

	points := BuildPoints(ref, chunks, vectors)
	p.uploadMu.Lock()
	err = p.vectors.Upsert(ctx, points)
	p.uploadMu.Unlock()
	if err != nil {
		logger.Error("failed to upload vectors", "err", err, "points", len(points))
		return OutcomeError
	}

	logger.Debug("artifact embedded", "pages", len(pages), "chunks", len(chunks))
	return p.record(ctx, sess, logger, ref, core.StatusOK, OutcomeEmbedded)
}

func (p *Pipeline) shouldReprocess(status core.Status) bool {
	if status == core.StatusPlanned {
		return true
	}
	return p.retryFailed && status.IsFailure()
}

func (p *Pipeline) record(ctx context.Context, sess storage.Session, logger *slog.Logger, ref core.ArtifactRef, status core.Status, outcome Outcome) Outcome {
	if err := sess.RecordEmbeddingOutcome(ctx, ref, p.now(), status); err != nil {
		logger.Error("failed to record embedding outcome", "status", status, "err", err)
		return OutcomeError
	}
	return outcome
}

// download copies the artifact into a private temporary file that keeps
// the artifact's extension, and returns its path.
func (p *Pipeline) download(ctx context.Context, ref core.ArtifactRef) (string, error) {
	body, err := p.docs.Get(ctx, ref.Key)
	if err != nil {
		return "", err
	}
	defer body.Close()

	ext := strings.ToLower(filepath.Ext(ref.Key))
	f, err := os.CreateTemp(p.tempDir, "artifact-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temporary file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temporary file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temporary file: %w", err)
	}
	return f.Name(), nil
}

// BuildPoints pairs chunks with their vectors. Point ids are derived from
// the artifact and the chunk position, so re-embedding an artifact
// overwrites its previous points.
func BuildPoints(ref core.ArtifactRef, chunks []schema.Document, vectors [][]float32) []vectorstore.Point {
	prefix := ref.PointPrefix()
	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		payload := make(map[string]any, len(c.Metadata)+3)
		for k, v := range c.Metadata {
			payload[k] = v
		}
		payload[vectorstore.ContentField] = c.PageContent
		payload[ChunkIndexKey] = i
		payload[ContentHashKey] = core.ContentHash(c.PageContent)
		points[i] = vectorstore.Point{
			ID:      core.PointID(prefix, i),
			Vector:  vectors[i],
			Payload: payload,
		}
	}
	return points
}
