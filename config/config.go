package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "EMBEDSYNC"

var (
	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config is the complete process configuration.
type Config struct {
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	LakeFS    LakeFSConfig    `mapstructure:"lakefs"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Planner   PlannerConfig   `mapstructure:"planner"`
}

// CatalogConfig describes the SPARQL entity catalog.
type CatalogConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	EntityPrefix   string        `mapstructure:"entity_prefix"`
	PropertyPrefix string        `mapstructure:"property_prefix"`
	ClassID        string        `mapstructure:"class_id"`
	PropertyID     string        `mapstructure:"property_id"`
	PageSize       int           `mapstructure:"page_size"`
	Pause          time.Duration `mapstructure:"pause"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Incremental    bool          `mapstructure:"incremental"`
}

// LakeFSConfig describes the versioned object store.
type LakeFSConfig struct {
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// DataRepo holds the artifacts; StateRepo holds the state file and plans.
	DataRepo   string   `mapstructure:"data_repo"`
	StateRepo  string   `mapstructure:"state_repo"`
	Branch     string   `mapstructure:"branch"`
	StateDir   string   `mapstructure:"state_dir"`
	StateFile  string   `mapstructure:"state_file"`
	DataPrefix string   `mapstructure:"data_prefix"`
	Extensions []string `mapstructure:"extensions"`
	// PerEntityListing lists each entity's sharded component folder
	// instead of the whole data prefix.
	PerEntityListing bool `mapstructure:"per_entity_listing"`
	// ListConcurrency bounds parallel per-entity listings.
	ListConcurrency int `mapstructure:"list_concurrency"`
}

// StateKey is the object key of the state file inside StateRepo.
func (c LakeFSConfig) StateKey() string {
	dir := strings.Trim(c.StateDir, "/")
	if dir == "" {
		return c.StateFile
	}
	return dir + "/" + c.StateFile
}

// QdrantConfig describes the vector store.
type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
	Collection string `mapstructure:"collection"`
	// Distance is the collection metric: cosine, euclid or dot.
	Distance string `mapstructure:"distance"`
}

// EmbeddingConfig describes the embedding model.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	Host      string `mapstructure:"host"`
	Model     string `mapstructure:"model"`
	APIToken  string `mapstructure:"api_token"`
	BatchSize int    `mapstructure:"batch_size"`
}

// PipelineConfig tunes the embedding run.
type PipelineConfig struct {
	Workers              int           `mapstructure:"workers"`
	MaxPages             int           `mapstructure:"max_pages"`
	ChunkTimeout         time.Duration `mapstructure:"chunk_timeout"`
	MinChunkLength       int           `mapstructure:"min_chunk_length"`
	Chunker              string        `mapstructure:"chunker"`
	ChunkSize            int           `mapstructure:"chunk_size"`
	ChunkOverlap         int           `mapstructure:"chunk_overlap"`
	BreakpointPercentile float64       `mapstructure:"breakpoint_percentile"`
	BufferSize           int           `mapstructure:"buffer_size"`
	Source               string        `mapstructure:"source"`
	RetryFailed          bool          `mapstructure:"retry_failed"`
	Iterations           int           `mapstructure:"iterations"`
	PerLoop              int           `mapstructure:"per_loop"`
	StatePath            string        `mapstructure:"state_path"`
	TempDir              string        `mapstructure:"temp_dir"`
	ProgressInterval     int           `mapstructure:"progress_interval"`
}

// PlannerConfig tunes plan generation.
type PlannerConfig struct {
	PackageSize  int    `mapstructure:"package_size"`
	Packages     int    `mapstructure:"packages"`
	OutputDir    string `mapstructure:"output_dir"`
	WorkerPrefix string `mapstructure:"worker_prefix"`
}

// Chunker names.
const (
	ChunkerSemantic  = "semantic"
	ChunkerRecursive = "recursive"
)

// Distance metrics accepted by qdrant.distance.
const (
	DistanceCosine = "cosine"
	DistanceEuclid = "euclid"
	DistanceDot    = "dot"
)

// setDefaults registers every key, including empty ones, so AutomaticEnv
// values reach Unmarshal for keys absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.endpoint", "")
	v.SetDefault("catalog.entity_prefix", "")
	v.SetDefault("catalog.property_prefix", "")
	v.SetDefault("catalog.class_id", "")
	v.SetDefault("catalog.property_id", "")
	v.SetDefault("catalog.page_size", 1000)
	v.SetDefault("catalog.pause", "1s")
	v.SetDefault("catalog.max_retries", 3)
	v.SetDefault("catalog.retry_delay", "2s")
	v.SetDefault("catalog.timeout", "120s")
	v.SetDefault("catalog.incremental", false)

	v.SetDefault("lakefs.url", "")
	v.SetDefault("lakefs.user", "")
	v.SetDefault("lakefs.password", "")
	v.SetDefault("lakefs.data_repo", "")
	v.SetDefault("lakefs.state_repo", "")
	v.SetDefault("lakefs.branch", "main")
	v.SetDefault("lakefs.data_prefix", "")
	v.SetDefault("lakefs.state_dir", "state")
	v.SetDefault("lakefs.state_file", "embedsync_state.db")
	v.SetDefault("lakefs.extensions", []string{".pdf"})
	v.SetDefault("lakefs.per_entity_listing", false)
	v.SetDefault("lakefs.list_concurrency", 4)

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.api_key", "")
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("qdrant.collection", "software_docs")
	v.SetDefault("qdrant.distance", DistanceCosine)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.host", "http://localhost:11434/v1")
	v.SetDefault("embedding.model", "embeddinggemma")
	v.SetDefault("embedding.api_token", "none")
	v.SetDefault("embedding.batch_size", 32)

	v.SetDefault("pipeline.workers", 2)
	v.SetDefault("pipeline.max_pages", 100)
	v.SetDefault("pipeline.chunk_timeout", "100s")
	v.SetDefault("pipeline.min_chunk_length", 30)
	v.SetDefault("pipeline.chunker", ChunkerSemantic)
	v.SetDefault("pipeline.chunk_size", 1000)
	v.SetDefault("pipeline.chunk_overlap", 100)
	v.SetDefault("pipeline.breakpoint_percentile", 95.0)
	v.SetDefault("pipeline.buffer_size", 1)
	v.SetDefault("pipeline.source", "lakefs")
	v.SetDefault("pipeline.retry_failed", false)
	v.SetDefault("pipeline.iterations", 2)
	v.SetDefault("pipeline.per_loop", 10)
	v.SetDefault("pipeline.state_path", "data/embedsync_state.db")
	v.SetDefault("pipeline.temp_dir", "")
	v.SetDefault("pipeline.progress_interval", 10)

	v.SetDefault("planner.package_size", 10)
	v.SetDefault("planner.packages", 1)
	v.SetDefault("planner.output_dir", "temp")
	v.SetDefault("planner.worker_prefix", "localworker_")
}

// Default returns the configuration with only defaults applied. It does
// not validate.
func Default() *Config {
	v := newViper()
	cfg := &Config{}
	// Defaults are well-formed, decoding cannot fail.
	_ = v.Unmarshal(cfg)
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads path, applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("stat config: %w", err)
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges. The first problem
// found is reported by its dotted key.
func (c *Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{"catalog.endpoint", c.Catalog.Endpoint},
		{"catalog.class_id", c.Catalog.ClassID},
		{"catalog.property_id", c.Catalog.PropertyID},
		{"lakefs.url", c.LakeFS.URL},
		{"lakefs.data_repo", c.LakeFS.DataRepo},
		{"lakefs.state_repo", c.LakeFS.StateRepo},
		{"lakefs.branch", c.LakeFS.Branch},
		{"lakefs.state_file", c.LakeFS.StateFile},
		{"qdrant.host", c.Qdrant.Host},
		{"qdrant.collection", c.Qdrant.Collection},
		{"embedding.model", c.Embedding.Model},
		{"pipeline.state_path", c.Pipeline.StatePath},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidConfig, r.key)
		}
	}

	switch c.Embedding.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("%w: embedding.provider must be openai or ollama, got %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	switch strings.ToLower(c.Qdrant.Distance) {
	case DistanceCosine, DistanceEuclid, DistanceDot:
	default:
		return fmt.Errorf("%w: qdrant.distance must be cosine, euclid or dot, got %q", ErrInvalidConfig, c.Qdrant.Distance)
	}
	switch c.Pipeline.Chunker {
	case ChunkerSemantic, ChunkerRecursive:
	default:
		return fmt.Errorf("%w: pipeline.chunker must be semantic or recursive, got %q", ErrInvalidConfig, c.Pipeline.Chunker)
	}

	positive := []struct {
		key   string
		value int
	}{
		{"catalog.page_size", c.Catalog.PageSize},
		{"lakefs.list_concurrency", c.LakeFS.ListConcurrency},
		{"qdrant.port", c.Qdrant.Port},
		{"pipeline.workers", c.Pipeline.Workers},
		{"pipeline.max_pages", c.Pipeline.MaxPages},
		{"pipeline.iterations", c.Pipeline.Iterations},
		{"pipeline.per_loop", c.Pipeline.PerLoop},
		{"planner.package_size", c.Planner.PackageSize},
		{"planner.packages", c.Planner.Packages},
	}
	for _, p := range positive {
		if p.value < 1 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, p.key, p.value)
		}
	}

	if c.Pipeline.ChunkTimeout <= 0 {
		return fmt.Errorf("%w: pipeline.chunk_timeout must be positive", ErrInvalidConfig)
	}
	if p := c.Pipeline.BreakpointPercentile; p <= 0 || p > 100 {
		return fmt.Errorf("%w: pipeline.breakpoint_percentile must be in (0, 100], got %v", ErrInvalidConfig, p)
	}
	if c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		return fmt.Errorf("%w: pipeline.chunk_overlap must be smaller than pipeline.chunk_size", ErrInvalidConfig)
	}
	return nil
}
