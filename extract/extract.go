// Package extract turns downloaded artifacts into per-page documents and
// attaches the metadata stored with every vector.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"

	"github.com/poiesic/embedsync/core"
)

// Metadata keys attached to every page.
const (
	KeyEntityID    = "entity_id"
	KeyArtifactKey = "artifact_key"
	KeySource      = "source"
	KeyPackage     = "package"
	KeyVersion     = "version"
	KeyPage        = "page"
	KeyTitle       = "title"
)

// ErrEmptyDocument indicates the loader produced no pages.
var ErrEmptyDocument = errors.New("document has no pages")

const maxTitleLen = 200

// Extractor loads the pages of a local file.
type Extractor interface {
	Extract(ctx context.Context, path string, ref core.ArtifactRef) ([]schema.Document, error)
}

// Loader picks a langchaingo document loader by file extension.
type Loader struct {
	source string
	logger *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithSource sets the source label stored in page metadata.
func WithSource(source string) Option {
	return func(l *Loader) {
		l.source = source
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader returns a Loader. The source label defaults to "lakefs".
func NewLoader(opts ...Option) *Loader {
	l := &Loader{source: "lakefs", logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "extract")
	return l
}

// Extract loads the file at path and enriches each page with metadata
// derived from ref. PDFs yield one document per page; HTML and plain text
// yield a single page.
func (l *Loader) Extract(ctx context.Context, path string, ref core.ArtifactRef) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	var loader documentloaders.Loader
	switch strings.ToLower(filepath.Ext(ref.Key)) {
	case ".pdf":
		st, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat artifact: %w", err)
		}
		loader = documentloaders.NewPDF(f, st.Size())
	case ".html", ".htm":
		loader = documentloaders.NewHTML(f)
	default:
		loader = documentloaders.NewText(f)
	}

	docs, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ref.Key, err)
	}
	if len(docs) == 0 {
		return nil, ErrEmptyDocument
	}
	Enrich(docs, ref, l.source)
	l.logger.Debug("extracted artifact", "artifact", ref.Key, "pages", len(docs))
	return docs, nil
}

// Enrich adds the base metadata to every page in place.
// Page text and string metadata are forced to valid UTF-8 first; the
// vector store rejects payloads that are not.
func Enrich(docs []schema.Document, ref core.ArtifactRef, source string) {
	for i := range docs {
		docs[i].PageContent = strings.ToValidUTF8(docs[i].PageContent, "")
		for k, v := range docs[i].Metadata {
			if str, ok := v.(string); ok {
				docs[i].Metadata[k] = strings.ToValidUTF8(str, "")
			}
		}
	}
	title := documentTitle(docs)
	name, version := core.ParsePackageVersion(ref.Key, title)
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = make(map[string]any)
		}
		md := docs[i].Metadata
		md[KeyEntityID] = ref.EntityID
		md[KeyArtifactKey] = ref.Key
		md[KeySource] = source
		md[KeyPackage] = name
		md[KeyVersion] = version
		if _, ok := md[KeyPage]; !ok {
			md[KeyPage] = i + 1
		}
		if title != "" {
			md[KeyTitle] = title
		}
	}
}

// documentTitle prefers an explicit title and falls back to the first
// non-empty line of the first page.
func documentTitle(docs []schema.Document) string {
	if len(docs) == 0 {
		return ""
	}
	if t, ok := docs[0].Metadata[KeyTitle].(string); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	for _, line := range strings.Split(docs[0].PageContent, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return truncate(line, maxTitleLen)
	}
	return ""
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	end := 0
	for end < len(s) {
		_, size := utf8.DecodeRuneInString(s[end:])
		if end+size > n {
			break
		}
		end += size
	}
	return s[:end]
}
