// Package memory provides an in-process versioned object store.
// It is used by tests and by dry runs that must not touch a remote.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/embedsync/objectstore"
)

type object struct {
	data    []byte
	sum     string
	modTime time.Time
}

// Commit is a recorded commit.
type Commit struct {
	ID       string
	Message  string
	Metadata map[string]string
}

// Store is a thread-safe in-memory objectstore.Store.
type Store struct {
	mu      sync.Mutex
	objects map[string]object
	commits []Commit
	dirty   bool
	puts    int
	gets    int
	failGet error
}

// New returns an empty store.
func New() *Store {
	return &Store{objects: make(map[string]object)}
}

func (s *Store) Stat(ctx context.Context, key string) (objectstore.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return objectstore.ObjectInfo{}, objectstore.NewError("stat", key, objectstore.KindNotFound, nil)
	}
	return info(key, obj), nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.failGet != nil {
		return nil, objectstore.NewError("get", key, objectstore.KindTransient, s.failGet)
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, objectstore.NewError("get", key, objectstore.KindNotFound, nil)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return objectstore.NewError("put", key, objectstore.KindFatal, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return objectstore.Errorf("put", key, objectstore.KindFatal, "read %d bytes, expected %d", len(data), size)
	}
	s.set(key, data)
	s.mu.Lock()
	s.dirty = true
	s.puts++
	s.mu.Unlock()
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]objectstore.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []objectstore.ObjectInfo
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, info(key, obj))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) Commit(ctx context.Context, message string, metadata map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return "", objectstore.NewError("commit", "", objectstore.KindNoChanges, nil)
	}
	id := fmt.Sprintf("c%04d", len(s.commits)+1)
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	s.commits = append(s.commits, Commit{ID: id, Message: message, Metadata: md})
	s.dirty = false
	return id, nil
}

// Seed stores data under key as already committed content. It is not
// counted as an upload.
func (s *Store) Seed(key string, data []byte) {
	s.set(key, data)
}

// Bytes returns a copy of the object stored under key.
func (s *Store) Bytes(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// Puts returns the number of Put calls that reached the store.
func (s *Store) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// Gets returns the number of Get calls.
func (s *Store) Gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

// Commits returns the recorded commits in order.
func (s *Store) Commits() []Commit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Commit(nil), s.commits...)
}

// FailGets makes every following Get return a transient error wrapping err.
// A nil err restores normal behavior.
func (s *Store) FailGets(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet = err
}

func (s *Store) set(key string, data []byte) {
	sum := md5.Sum(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: bytes.Clone(data), sum: hex.EncodeToString(sum[:]), modTime: time.Now()}
}

func info(key string, obj object) objectstore.ObjectInfo {
	return objectstore.ObjectInfo{Key: key, Size: int64(len(obj.data)), Checksum: obj.sum, ModTime: obj.modTime}
}

var _ objectstore.Store = (*Store)(nil)
