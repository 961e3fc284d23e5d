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


// Package embedsync keeps a vector store of software documentation in step
// with an entity catalog and a versioned object store.
//
// A Workflow owns the wiring. It pulls the shared State Store, refreshes
// entities and artifacts, runs the embedding pool over pending work, and
// pushes the State Store back with a commit summarizing what changed.
package embedsync

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/embedsync/ai"
	"github.com/poiesic/embedsync/ai/ollama"
	"github.com/poiesic/embedsync/ai/openai"
	"github.com/poiesic/embedsync/catalog"
	"github.com/poiesic/embedsync/chunking"
	"github.com/poiesic/embedsync/config"
	"github.com/poiesic/embedsync/discovery"
	"github.com/poiesic/embedsync/extract"
	"github.com/poiesic/embedsync/objectstore"
	"github.com/poiesic/embedsync/objectstore/lakefs"
	"github.com/poiesic/embedsync/vectorstore"
	"github.com/poiesic/embedsync/vectorstore/qdrant"
)

// Workflow runs the sync phases against one configuration.
type Workflow struct {
	cfg       *config.Config
	stateObjs objectstore.Store
	dataObjs  objectstore.Store
	vectors   vectorstore.Store
	factory   ai.EmbedderFactory
	entities  discovery.EntitySource
	extractor extract.Extractor
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Workflow.
type Option func(*Workflow) error

// WithStateObjectStore sets the store holding the state file and plans.
func WithStateObjectStore(s objectstore.Store) Option {
	return func(w *Workflow) error {
		w.stateObjs = s
		return nil
	}
}

// WithDataObjectStore sets the store holding the artifacts.
func WithDataObjectStore(s objectstore.Store) Option {
	return func(w *Workflow) error {
		w.dataObjs = s
		return nil
	}
}

// WithVectorStore sets the vector store.
func WithVectorStore(s vectorstore.Store) Option {
	return func(w *Workflow) error {
		w.vectors = s
		return nil
	}
}

// WithEmbedderFactory sets the embedder factory.
func WithEmbedderFactory(f ai.EmbedderFactory) Option {
	return func(w *Workflow) error {
		w.factory = f
		return nil
	}
}

// WithEntitySource sets the entity catalog.
func WithEntitySource(s discovery.EntitySource) Option {
	return func(w *Workflow) error {
		w.entities = s
		return nil
	}
}

// WithExtractor sets the text extractor.
func WithExtractor(e extract.Extractor) Option {
	return func(w *Workflow) error {
		w.extractor = e
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) error {
		if now != nil {
			w.now = now
		}
		return nil
	}
}

// New builds a Workflow. Components not supplied as options are built from
// cfg.
func New(cfg *config.Config, opts ...Option) (*Workflow, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	w := &Workflow{cfg: cfg, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}

	var err error
	if w.stateObjs == nil {
		if w.stateObjs, err = w.lakeFS(cfg.LakeFS.StateRepo); err != nil {
			return nil, fmt.Errorf("state object store: %w", err)
		}
	}
	if w.dataObjs == nil {
		if w.dataObjs, err = w.lakeFS(cfg.LakeFS.DataRepo); err != nil {
			return nil, fmt.Errorf("data object store: %w", err)
		}
	}
	if w.factory == nil {
		if w.factory, err = EmbedderFactory(cfg.Embedding); err != nil {
			return nil, err
		}
	}
	if w.entities == nil {
		w.entities, err = catalog.New(catalog.Config{
			Endpoint:       cfg.Catalog.Endpoint,
			EntityPrefix:   cfg.Catalog.EntityPrefix,
			PropertyPrefix: cfg.Catalog.PropertyPrefix,
			ClassID:        cfg.Catalog.ClassID,
			PropertyID:     cfg.Catalog.PropertyID,
			MaxRetries:     cfg.Catalog.MaxRetries,
			RetryDelay:     cfg.Catalog.RetryDelay,
			Timeout:        cfg.Catalog.Timeout,
		}, catalog.WithLogger(w.logger))
		if err != nil {
			return nil, fmt.Errorf("entity catalog: %w", err)
		}
	}
	if w.vectors == nil {
		w.vectors, err = qdrant.New(qdrant.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
			Distance:   cfg.Qdrant.Distance,
		}, qdrant.WithLogger(w.logger))
		if err != nil {
			return nil, fmt.Errorf("vector store: %w", err)
		}
	}
	if w.extractor == nil {
		w.extractor = extract.NewLoader(
			extract.WithSource(cfg.Pipeline.Source),
			extract.WithLogger(w.logger),
		)
	}
	return w, nil
}

func (w *Workflow) lakeFS(repo string) (objectstore.Store, error) {
	return lakefs.New(lakefs.Config{
		Endpoint:   w.cfg.LakeFS.URL,
		AccessKey:  w.cfg.LakeFS.User,
		SecretKey:  w.cfg.LakeFS.Password,
		Repository: repo,
		Branch:     w.cfg.LakeFS.Branch,
	}, lakefs.WithLogger(w.logger))
}

// Close releases the vector store connection.
func (w *Workflow) Close() error {
	if w.vectors != nil {
		return w.vectors.Close()
	}
	return nil
}

// EmbedderFactory returns the factory for the configured provider.
func EmbedderFactory(cfg config.EmbeddingConfig) (ai.EmbedderFactory, error) {
	aiCfg := ai.NewConfig(
		ai.WithProvider(cfg.Provider),
		ai.WithEmbeddingHost(cfg.Host),
		ai.WithEmbeddingModel(cfg.Model),
		ai.WithAPIToken(cfg.APIToken),
		ai.WithBatchSize(cfg.BatchSize),
	)
	aiCfg.Normalize()
	return ai.SelectFactory(aiCfg, map[string]ai.FactoryBuilder{
		ai.ProviderOpenAI: openai.NewFactory,
		ai.ProviderOllama: ollama.NewFactory,
	})
}

// Chunker returns the chunker named in cfg.
func Chunker(cfg config.PipelineConfig) chunking.Chunker {
	if cfg.Chunker == config.ChunkerRecursive {
		return chunking.NewRecursiveChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	}
	return &chunking.SemanticChunker{
		BufferSize:           cfg.BufferSize,
		BreakpointPercentile: cfg.BreakpointPercentile,
	}
}
