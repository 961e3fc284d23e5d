package lakefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/poiesic/embedsync/objectstore"
)

var (
	ErrEndpointRequired   = errors.New("lakefs endpoint required")
	ErrRepositoryRequired = errors.New("lakefs repository required")
	ErrBranchRequired     = errors.New("lakefs branch required")
)

// Config identifies one branch of a lakeFS repository.
type Config struct {
	// Endpoint is the lakeFS base URL, e.g. https://lakefs.example.org.
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Repository string
	Branch     string
}

// Store is an objectstore.Store bound to one repository branch.
type Store struct {
	s3         *minio.Client
	httpClient *http.Client
	apiBase    string
	cfg        Config
	logger     *slog.Logger
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

// WithHTTPClient sets the client used for REST API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		s.httpClient = client
		return nil
	}
}

// New connects to the S3 gateway of the lakeFS server in cfg.
func New(cfg Config, opts ...Option) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, ErrEndpointRequired
	}
	if cfg.Repository == "" {
		return nil, ErrRepositoryRequired
	}
	if cfg.Branch == "" {
		return nil, ErrBranchRequired
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse lakefs endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("lakefs endpoint %q has no host", cfg.Endpoint)
	}

	s := &Store{
		cfg:        cfg,
		apiBase:    strings.TrimRight(cfg.Endpoint, "/") + "/api/v1",
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "lakefs", "repository", cfg.Repository, "branch", cfg.Branch)

	client, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       u.Scheme == "https",
		Region:       "us-east-1",
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 gateway client: %w", err)
	}
	s.s3 = client
	return s, nil
}

// objectKey maps a branch-relative key to its gateway key.
func (s *Store) objectKey(key string) string {
	return s.cfg.Branch + "/" + strings.TrimLeft(key, "/")
}

// relativeKey strips the branch prefix from a gateway key.
func (s *Store) relativeKey(key string) string {
	return strings.TrimPrefix(key, s.cfg.Branch+"/")
}

func (s *Store) Stat(ctx context.Context, key string) (objectstore.ObjectInfo, error) {
	info, err := s.s3.StatObject(ctx, s.cfg.Repository, s.objectKey(key), minio.StatObjectOptions{})
	if err != nil {
		return objectstore.ObjectInfo{}, classify("stat", key, err)
	}
	return objectInfo(key, info), nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.s3.GetObject(ctx, s.cfg.Repository, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, classify("get", key, err)
	}
	// GetObject is lazy; Stat surfaces missing objects before the first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, classify("get", key, err)
	}
	return obj, nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := s.s3.PutObject(ctx, s.cfg.Repository, s.objectKey(key), r, size, putOptions())
	if err != nil {
		return classify("put", key, err)
	}
	s.logger.Debug("uploaded object", "key", key, "size", size)
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]objectstore.ObjectInfo, error) {
	var out []objectstore.ObjectInfo
	for info := range s.s3.ListObjects(ctx, s.cfg.Repository, minio.ListObjectsOptions{
		Prefix:    s.objectKey(prefix),
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, classify("list", prefix, info.Err)
		}
		out = append(out, objectInfo(s.relativeKey(info.Key), info))
	}
	return out, nil
}

// putOptions forces a single-part upload. Multipart ETags are not the
// object MD5, which would break checksum comparison against local files.
func putOptions() minio.PutObjectOptions {
	return minio.PutObjectOptions{
		ContentType:      "application/octet-stream",
		DisableMultipart: true,
	}
}

func objectInfo(key string, info minio.ObjectInfo) objectstore.ObjectInfo {
	return objectstore.ObjectInfo{
		Key:      key,
		Size:     info.Size,
		Checksum: strings.Trim(info.ETag, `"`),
		ModTime:  info.LastModified,
	}
}

// classify maps S3 gateway errors to object store kinds.
func classify(op, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return objectstore.NewError(op, key, objectstore.KindTransient, err)
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		return objectstore.NewError(op, key, objectstore.KindNotFound, err)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return objectstore.NewError(op, key, objectstore.KindTransient, err)
	case resp.StatusCode == 0:
		// No HTTP response at all: connection level failure.
		return objectstore.NewError(op, key, objectstore.KindTransient, err)
	}
	return objectstore.NewError(op, key, objectstore.KindFatal, err)
}

var _ objectstore.Store = (*Store)(nil)
