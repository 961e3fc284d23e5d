package qdrant

import (
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/poiesic/embedsync/vectorstore"
)

func TestNormalizePayload(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	in := map[string]any{
		"page_content": "text",
		"page":         3,
		"score":        0.5,
		"tags":         []string{"a", "b"},
		"seen":         ts,
		"nested":       map[string]any{"k": []string{"x"}},
		"bytes":        []byte("raw"),
	}
	out := normalizePayload(in)

	assert.Equal(t, "text", out["page_content"])
	assert.Equal(t, 3, out["page"])
	assert.Equal(t, []any{"a", "b"}, out["tags"])
	assert.Equal(t, "2024-01-02T03:04:05Z", out["seen"])
	assert.Equal(t, map[string]any{"k": []any{"x"}}, out["nested"])
	assert.IsType(t, "", out["bytes"])

	_, err := qdrant.TryValueMap(out)
	require.NoError(t, err)
}

func TestFromValueMap(t *testing.T) {
	payload, err := qdrant.TryValueMap(map[string]any{
		"page_content": "hello",
		"page":         int64(2),
		"ratio":        0.25,
		"ok":           true,
		"tags":         []any{"x", "y"},
	})
	require.NoError(t, err)

	got := fromValueMap(payload)
	assert.Equal(t, "hello", got["page_content"])
	assert.Equal(t, int64(2), got["page"])
	assert.Equal(t, 0.25, got["ratio"])
	assert.Equal(t, true, got["ok"])
	assert.Equal(t, []any{"x", "y"}, got["tags"])
}

func TestPointID(t *testing.T) {
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", pointID(qdrant.NewID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")))
	assert.Equal(t, "42", pointID(qdrant.NewIDNum(42)))
}

func TestWrap(t *testing.T) {
	err := wrap("upsert", status.Error(codes.Unavailable, "down"))
	assert.ErrorIs(t, err, vectorstore.ErrUnavailable)

	err = wrap("count", status.Error(codes.NotFound, "missing"))
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	plain := errors.New("other")
	assert.ErrorIs(t, wrap("x", plain), plain)

	assert.True(t, isDeadline(status.Error(codes.DeadlineExceeded, "slow")))
	assert.False(t, isDeadline(plain))
}

func TestNew_RequiresCollection(t *testing.T) {
	_, err := New(Config{Host: "localhost"})
	assert.ErrorIs(t, err, ErrCollectionRequired)
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		in   string
		want qdrant.Distance
	}{
		{"", qdrant.Distance_Cosine},
		{"cosine", qdrant.Distance_Cosine},
		{"EUCLID", qdrant.Distance_Euclid},
		{"dot", qdrant.Distance_Dot},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDistance(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseDistance("manhattan")
	assert.ErrorIs(t, err, ErrUnknownDistance)
}

func TestNew_RejectsUnknownDistance(t *testing.T) {
	_, err := New(Config{Host: "localhost", Collection: "docs", Distance: "manhattan"})
	assert.ErrorIs(t, err, ErrUnknownDistance)
}
