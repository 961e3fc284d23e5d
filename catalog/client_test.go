package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		EntityPrefix:   "https://kg.example.org/entity/",
		PropertyPrefix: "https://kg.example.org/prop/direct/",
		ClassID:        "Q57080",
		PropertyID:     "P1460",
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{ClassID: "Q1", PropertyID: "P1"})
	assert.ErrorIs(t, err, ErrEndpointRequired)
	_, err = New(Config{Endpoint: "http://x", PropertyID: "P1"})
	assert.ErrorIs(t, err, ErrClassRequired)
	_, err = New(Config{Endpoint: "http://x", ClassID: "Q1"})
	assert.ErrorIs(t, err, ErrPropertyRequired)
}

func TestBuildQuery(t *testing.T) {
	c, err := New(testConfig("http://x"))
	require.NoError(t, err)

	q := c.BuildQuery(200, 100)
	assert.Contains(t, q, "PREFIX wd: <https://kg.example.org/entity/>")
	assert.Contains(t, q, "?item wdt:P1460 wd:Q57080 .")
	assert.Contains(t, q, "ORDER BY ?qid")
	assert.Contains(t, q, "LIMIT 100")
	assert.Contains(t, q, "OFFSET 200")

	q = c.BuildQuery(0, 0)
	assert.NotContains(t, q, "LIMIT")
	assert.Contains(t, q, "OFFSET 0")
}

func TestEntityPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Contains(t, r.URL.Query().Get("query"), "OFFSET 10")
		fmt.Fprint(w, `{"head":{"vars":["qid"]},"results":{"bindings":[
			{"qid":{"type":"literal","value":"Q1"}},
			{"qid":{"type":"literal","value":"Q2"}},
			{"other":{"type":"literal","value":"x"}}]}}`)
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)

	ids, err := c.EntityPage(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Q1", "Q2"}, ids)
}

func TestEntityPage_EmptyIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":{"bindings":[]}}`)
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)
	ids, err := c.EntityPage(context.Background(), 0, 5)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEntityPage_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"results":{"bindings":[{"qid":{"value":"Q9"}}]}}`)
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)
	ids, err := c.EntityPage(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Q9"}, ids)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEntityPage_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)
	_, err = c.EntityPage(context.Background(), 0, 1)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "after 3 attempts"))
	assert.Equal(t, int32(3), calls.Load())
}
