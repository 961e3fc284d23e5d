package lakefs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/embedsync/objectstore"
)

func newTestStore(t *testing.T, endpoint string) *Store {
	t.Helper()
	s, err := New(Config{
		Endpoint:   endpoint,
		AccessKey:  "AKIA",
		SecretKey:  "secret",
		Repository: "state-repo",
		Branch:     "main",
	})
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"no endpoint", Config{Repository: "r", Branch: "b"}, ErrEndpointRequired},
		{"no repository", Config{Endpoint: "http://localhost:8000", Branch: "b"}, ErrRepositoryRequired},
		{"no branch", Config{Endpoint: "http://localhost:8000", Repository: "r"}, ErrBranchRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := New(Config{Endpoint: "not a url", Repository: "r", Branch: "b"})
	assert.Error(t, err)
}

func TestKeyMapping(t *testing.T) {
	s := newTestStore(t, "http://localhost:8000")
	assert.Equal(t, "main/state/state.db", s.objectKey("state/state.db"))
	assert.Equal(t, "main/state/state.db", s.objectKey("/state/state.db"))
	assert.Equal(t, "raw_pdf/Q1/a.pdf", s.relativeKey("main/raw_pdf/Q1/a.pdf"))
}

func TestPutOptions_SinglePart(t *testing.T) {
	opts := putOptions()
	assert.True(t, opts.DisableMultipart)
	assert.Equal(t, "application/octet-stream", opts.ContentType)
}

func TestObjectInfo_ChecksumFromETag(t *testing.T) {
	info := objectInfo("state/state.db", minio.ObjectInfo{
		Key:  "main/state/state.db",
		ETag: `"9e107d9d372bb6826bd81d3542a419d6"`,
		Size: 42,
	})
	assert.Equal(t, "state/state.db", info.Key)
	assert.Equal(t, "9e107d9d372bb6826bd81d3542a419d6", info.Checksum)
	assert.Equal(t, int64(42), info.Size)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}, objectstore.ErrNotFound},
		{"plain 404", minio.ErrorResponse{StatusCode: 404}, objectstore.ErrNotFound},
		{"throttled", minio.ErrorResponse{Code: "SlowDown", StatusCode: 429}, objectstore.ErrTransient},
		{"server error", minio.ErrorResponse{Code: "InternalError", StatusCode: 500}, objectstore.ErrTransient},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}, objectstore.ErrFatal},
		{"connection", errors.New("dial tcp: connection refused"), objectstore.ErrTransient},
		{"deadline", context.DeadlineExceeded, objectstore.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify("stat", "k", tt.err), tt.want)
		})
	}
}

func TestCommit(t *testing.T) {
	var got commitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/repositories/state-repo/branches/main/commits", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AKIA", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"abc123","message":"m"}`))
	}))
	defer srv.Close()

	s := newTestStore(t, srv.URL)
	id, err := s.Commit(context.Background(), "update state", map[string]string{"workflow": "run"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
	assert.Equal(t, "update state", got.Message)
	assert.Equal(t, "run", got.Metadata["workflow"])
}

func TestCommit_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"no changes", http.StatusBadRequest, `{"message":"commit: no changes"}`, objectstore.ErrNoChanges},
		{"bad request", http.StatusBadRequest, `{"message":"invalid"}`, objectstore.ErrFatal},
		{"missing branch", http.StatusNotFound, `{"message":"branch not found"}`, objectstore.ErrNotFound},
		{"unavailable", http.StatusServiceUnavailable, `overloaded`, objectstore.ErrTransient},
		{"unauthorized", http.StatusUnauthorized, `{"message":"bad credentials"}`, objectstore.ErrFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestStore(t, srv.URL).Commit(context.Background(), "m", nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
