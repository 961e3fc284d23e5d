// Package statesync keeps the local State Store file in step with its copy
// in the versioned object store.
//
// Pull never overwrites a local file in place: an existing file is renamed
// to a timestamped backup first. Push is gated on the content checksum so
// that an unchanged store produces no upload and no new version.
package statesync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/poiesic/embedsync/objectstore"
	"github.com/poiesic/embedsync/storage"
)

// BackupTimeFormat is the UTC timestamp layout used in backup file names.
const BackupTimeFormat = "20060102T150405Z"

var (
	ErrStoreRequired = errors.New("object store required")
	ErrKeyRequired   = errors.New("remote key required")
)

// Syncer pulls and pushes one local file against one remote key.
type Syncer struct {
	store     objectstore.Store
	remoteKey string
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Syncer.
type Option func(*Syncer) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithClock overrides the time source used for backup names.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		s.now = now
		return nil
	}
}

// New returns a Syncer for remoteKey in store.
func New(store objectstore.Store, remoteKey string, opts ...Option) (*Syncer, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if strings.TrimSpace(remoteKey) == "" {
		return nil, ErrKeyRequired
	}
	s := &Syncer{store: store, remoteKey: remoteKey, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "statesync", "key", remoteKey)
	return s, nil
}

// RemoteKey returns the key the Syncer reads and writes.
func (s *Syncer) RemoteKey() string {
	return s.remoteKey
}

// Pull downloads the remote copy to localPath. It returns false, and
// leaves the local file alone, when no remote copy exists.
func (s *Syncer) Pull(ctx context.Context, localPath string) (bool, error) {
	if _, err := s.store.Stat(ctx, s.remoteKey); err != nil {
		if objectstore.IsNotFound(err) {
			s.logger.Info("no remote state store")
			return false, nil
		}
		return false, fmt.Errorf("stat remote state store: %w", err)
	}

	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(localPath)+".download-*")
	if err != nil {
		return false, fmt.Errorf("create download file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := s.download(ctx, tmp); err != nil {
		_ = tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("close download file: %w", err)
	}

	if _, err := os.Stat(localPath); err == nil {
		backup := BackupPath(localPath, s.now())
		if err := os.Rename(localPath, backup); err != nil {
			return false, fmt.Errorf("back up local state store: %w", err)
		}
		s.logger.Info("backed up local state store", "backup", backup)
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat local state store: %w", err)
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		return false, fmt.Errorf("install state store: %w", err)
	}
	s.logger.Info("pulled state store", "path", localPath)
	return true, nil
}

func (s *Syncer) download(ctx context.Context, w io.Writer) error {
	rc, err := s.store.Get(ctx, s.remoteKey)
	if err != nil {
		return fmt.Errorf("get remote state store: %w", err)
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("download state store: %w", err)
	}
	return nil
}

// Push uploads localPath when its checksum differs from the remote copy.
// It reports whether an upload happened.
func (s *Syncer) Push(ctx context.Context, localPath string) (bool, error) {
	local, err := FileChecksum(localPath)
	if err != nil {
		return false, err
	}

	info, err := s.store.Stat(ctx, s.remoteKey)
	switch {
	case err == nil:
		if strings.EqualFold(strings.Trim(info.Checksum, `"`), local) {
			s.logger.Info("state store unchanged, skipping upload", "checksum", local)
			return false, nil
		}
	case objectstore.IsNotFound(err):
	default:
		return false, fmt.Errorf("stat remote state store: %w", err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return false, fmt.Errorf("open state store: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat state store: %w", err)
	}
	if err := s.store.Put(ctx, s.remoteKey, f, st.Size()); err != nil {
		return false, fmt.Errorf("upload state store: %w", err)
	}
	s.logger.Info("pushed state store", "checksum", local, "size", st.Size())
	return true, nil
}

// Commit records the pushed state as a new version. A commit with nothing
// to record succeeds and returns an empty reference.
func (s *Syncer) Commit(ctx context.Context, message string, metadata map[string]string) (string, error) {
	ref, err := s.store.Commit(ctx, message, metadata)
	if objectstore.IsNoChanges(err) {
		s.logger.Info("nothing to commit")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("commit state store: %w", err)
	}
	return ref, nil
}

// FileChecksum returns the hex encoded MD5 of the file at path.
func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// BackupPath returns the backup name used for path at time t.
func BackupPath(path string, t time.Time) string {
	return path + ".backup_" + t.UTC().Format(BackupTimeFormat)
}

// CommitMessage summarizes the per-table change between baseline and
// current, e.g. "update state: artifacts +3, embeddings +2, entities +0".
func CommitMessage(title string, baseline, current storage.Counts) string {
	delta := current.Delta(baseline)
	names := make([]string, 0, len(delta))
	for name := range delta {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %+d", name, delta[name]))
	}
	if len(parts) == 0 {
		return title
	}
	return title + ": " + strings.Join(parts, ", ")
}

// CommitMetadata renders counts and their deltas as commit metadata.
func CommitMetadata(baseline, current storage.Counts) map[string]string {
	md := make(map[string]string, 2*len(current))
	for name, n := range current {
		md[name+"_rows"] = fmt.Sprint(n)
		md[name+"_delta"] = fmt.Sprintf("%+d", n-baseline[name])
	}
	return md
}
