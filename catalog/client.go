// Package catalog queries the knowledge-graph SPARQL endpoint for the
// entities whose documents are embedded.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/poiesic/embedsync/retry"
)

var (
	ErrEndpointRequired = errors.New("sparql endpoint required")
	ErrClassRequired    = errors.New("entity class id required")
	ErrPropertyRequired = errors.New("property id required")
)

// Config describes the entity query.
type Config struct {
	Endpoint string
	// EntityPrefix and PropertyPrefix are the IRIs bound to wd: and wdt:.
	EntityPrefix   string
	PropertyPrefix string
	// ClassID is the item every returned entity points at, e.g. "Q57080".
	ClassID string
	// PropertyID links entities to ClassID, e.g. "P1460".
	PropertyID string
	// MaxRetries is the number of attempts per page.
	MaxRetries int
	// RetryDelay is the wait after the first failed attempt.
	RetryDelay time.Duration
	// Timeout bounds a single HTTP request.
	Timeout time.Duration
}

// Client runs paginated entity queries.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		c.httpClient = client
		return nil
	}
}

// New returns a Client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, ErrEndpointRequired
	}
	if cfg.ClassID == "" {
		return nil, ErrClassRequired
	}
	if cfg.PropertyID == "" {
		return nil, ErrPropertyRequired
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	c := &Client{cfg: cfg, logger: slog.Default()}
	c.httpClient = &http.Client{Timeout: cfg.Timeout}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "catalog")
	return c, nil
}

var queryTemplate = template.Must(template.New("entities").Parse(`
{{- if .EntityPrefix}}PREFIX wd: <{{.EntityPrefix}}>
{{end -}}
{{- if .PropertyPrefix}}PREFIX wdt: <{{.PropertyPrefix}}>
{{end -}}
SELECT ?qid
WHERE {
  ?item wdt:{{.PropertyID}} wd:{{.ClassID}} .
  BIND(REPLACE(STR(?item), "^.*/", "") AS ?qid)
}
ORDER BY ?qid
{{- if gt .Limit 0}}
LIMIT {{.Limit}}
{{- end}}
OFFSET {{.Offset}}
`))

// BuildQuery renders the entity query for one page. A non-positive limit
// omits the LIMIT clause.
func (c *Client) BuildQuery(offset, limit int) string {
	var sb strings.Builder
	_ = queryTemplate.Execute(&sb, struct {
		Config
		Offset, Limit int
	}{c.cfg, offset, limit})
	return sb.String()
}

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

// EntityPage returns the entity ids at offset. An empty result means
// there are no more entities.
func (c *Client) EntityPage(ctx context.Context, offset, limit int) ([]string, error) {
	query := c.BuildQuery(offset, limit)
	var ids []string
	policy := retry.Policy{
		MaxAttempts: c.cfg.MaxRetries,
		BaseDelay:   c.cfg.RetryDelay,
		Logger:      c.logger,
	}
	err := policy.Do(ctx, func(ctx context.Context) error {
		page, err := c.run(ctx, query)
		if err != nil {
			c.logger.Warn("sparql query failed", "offset", offset, "err", err)
			return err
		}
		ids = page
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sparql query at offset %d failed after %d attempts: %w", offset, c.cfg.MaxRetries, err)
	}
	return ids, nil
}

func (c *Client) run(ctx context.Context, query string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	q := req.URL.Query()
	q.Set("query", query)
	q.Set("format", "json")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sparql endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out sparqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sparql response: %w", err)
	}
	ids := make([]string, 0, len(out.Results.Bindings))
	for _, b := range out.Results.Bindings {
		if v, ok := b["qid"]; ok && v.Value != "" {
			ids = append(ids, v.Value)
		}
	}
	return ids, nil
}
