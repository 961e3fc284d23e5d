// Package qdrant implements vectorstore.Store on a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/poiesic/embedsync/vectorstore"
)

var (
	ErrCollectionRequired = errors.New("qdrant collection name required")
	ErrUnknownDistance    = errors.New("unknown qdrant distance")
)

// Config identifies the server and collection.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	// Distance is cosine (the default), euclid or dot.
	Distance string
	// IndexTimeout bounds the text index creation call. A timeout is
	// logged and ignored; the server finishes the index in the background.
	IndexTimeout time.Duration
}

// Store is a vectorstore.Store for one Qdrant collection.
type Store struct {
	client       *qdrant.Client
	collection   string
	distance     qdrant.Distance
	indexTimeout time.Duration
	logger       *slog.Logger
}

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// New connects to the Qdrant gRPC endpoint in cfg.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.Collection == "" {
		return nil, ErrCollectionRequired
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.IndexTimeout <= 0 {
		cfg.IndexTimeout = 30 * time.Second
	}
	distance, err := parseDistance(cfg.Distance)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	s := &Store{
		client:       client,
		collection:   cfg.Collection,
		distance:     distance,
		indexTimeout: cfg.IndexTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "qdrant", "collection", cfg.Collection)
	return s, nil
}

func (s *Store) Available(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %w", vectorstore.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) EnsureCollection(ctx context.Context, dimension int) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, wrap("check collection", err)
	}
	created := false
	if !exists {
		if err := s.create(ctx, dimension); err != nil {
			return false, err
		}
		created = true
	} else if err := s.checkDimension(ctx, dimension); err != nil {
		return false, err
	}
	if err := s.ensureTextIndex(ctx); err != nil {
		return created, err
	}
	return created, nil
}

func (s *Store) RecreateCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return wrap("check collection", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return wrap("delete collection", err)
		}
		s.logger.Info("deleted collection")
	}
	if err := s.create(ctx, dimension); err != nil {
		return err
	}
	return s.ensureTextIndex(ctx)
}

func (s *Store) create(ctx context.Context, dimension int) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: s.distance,
			OnDisk:   qdrant.PtrOf(true),
		}),
		HnswConfig: &qdrant.HnswConfigDiff{OnDisk: qdrant.PtrOf(true)},
	})
	if err != nil {
		return wrap("create collection", err)
	}
	s.logger.Info("created collection", "dimension", dimension, "distance", s.distance.String())
	return nil
}

func parseDistance(name string) (qdrant.Distance, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cosine":
		return qdrant.Distance_Cosine, nil
	case "euclid":
		return qdrant.Distance_Euclid, nil
	case "dot":
		return qdrant.Distance_Dot, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDistance, name)
	}
}

func (s *Store) checkDimension(ctx context.Context, dimension int) error {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return wrap("get collection info", err)
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size != 0 && size != uint64(dimension) {
		return fmt.Errorf("%w: collection %s has %d, model has %d",
			vectorstore.ErrDimensionMismatch, s.collection, size, dimension)
	}
	return nil
}

func (s *Store) ensureTextIndex(ctx context.Context) error {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return wrap("get collection info", err)
	}
	if _, ok := info.GetPayloadSchema()[vectorstore.ContentField]; ok {
		return nil
	}

	ictx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()
	_, err = s.client.CreateFieldIndex(ictx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      vectorstore.ContentField,
		FieldType:      qdrant.FieldType_FieldTypeText.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		if isDeadline(err) {
			s.logger.Warn("text index creation timed out, continuing", "field", vectorstore.ContentField)
			return nil
		}
		return wrap("create text index", err)
	}
	s.logger.Info("created text index", "field", vectorstore.ContentField)
	return nil
}

func (s *Store) Upsert(ctx context.Context, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := qdrant.TryValueMap(normalizePayload(p.Payload))
		if err != nil {
			return fmt.Errorf("convert payload of point %s: %w", p.ID, err)
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	if err != nil {
		return wrap("upsert points", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, limit int) ([]vectorstore.Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, wrap("query points", err)
	}
	hits := make([]vectorstore.Hit, 0, len(points))
	for _, p := range points {
		md := fromValueMap(p.GetPayload())
		content, _ := md[vectorstore.ContentField].(string)
		delete(md, vectorstore.ContentField)
		hits = append(hits, vectorstore.Hit{
			ID:       pointID(p.GetId()),
			Score:    p.GetScore(),
			Content:  content,
			Metadata: md,
		})
	}
	return hits, nil
}

func (s *Store) Count(ctx context.Context) (uint64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, wrap("count points", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprint(id.GetNum())
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || status.Code(err) == codes.DeadlineExceeded
}

func wrap(op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable:
		return fmt.Errorf("%s: %w: %w", op, vectorstore.ErrUnavailable, err)
	case codes.NotFound:
		return fmt.Errorf("%s: %w: %w", op, vectorstore.ErrCollectionNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ vectorstore.Store = (*Store)(nil)
