// Package config loads the department Q&A service's configuration: a
// layered YAML + environment-variable scheme matching the precedence the
// rest of this codebase's tooling uses — defaults, then a project config
// file, then environment variables for the highest-precedence override.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Splitting  SplittingConfig  `yaml:"splitting" json:"splitting"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// StorageConfig configures where documents, the SQLite catalog, and blobs
// live on disk.
type StorageConfig struct {
	DataDir  string `yaml:"data_dir" json:"data_dir"`
	DBPath   string `yaml:"db_path" json:"db_path"`
	BlobRoot string `yaml:"blob_root" json:"blob_root"`
}

// IndexConfig configures the vector index.
type IndexConfig struct {
	Path       string `yaml:"path" json:"path"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	M          int    `yaml:"m" json:"m"`
	EfSearch   int    `yaml:"ef_search" json:"ef_search"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// LLMConfig configures the chat-completion provider used for routing and
// answer generation.
type LLMConfig struct {
	Host        string  `yaml:"host" json:"host"`
	Model       string  `yaml:"model" json:"model"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs" json:"timeout_secs"`
}

// SplittingConfig holds a chunk size and overlap that Validate checks. The
// ingestion pipeline does not read it: it uses the splitter package's
// built-in configs.
type SplittingConfig struct {
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	Path  string `yaml:"path" json:"path"`
}

// Default returns the built-in defaults, rooted under ~/.deptqa unless
// overridden by a config file or environment variables.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	dataDir := filepath.Join(home, ".deptqa")

	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{
			DataDir:  dataDir,
			DBPath:   filepath.Join(dataDir, "deptqa.db"),
			BlobRoot: filepath.Join(dataDir, "blobs"),
		},
		Index: IndexConfig{
			Path:       filepath.Join(dataDir, "index.hnsw"),
			Dimensions: 768,
			M:          16,
			EfSearch:   20,
		},
		Embeddings: EmbeddingsConfig{
			OllamaHost: "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			BatchSize:  32,
			CacheSize:  4096,
		},
		LLM: LLMConfig{
			Host:        "http://localhost:11434",
			Model:       "llama3.1",
			Temperature: 0,
			TimeoutSecs: 60,
		},
		Splitting: SplittingConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Logging: LoggingConfig{
			Level: "info",
			Path:  filepath.Join(dataDir, "logs", "server.log"),
		},
	}
}

// Load builds the effective configuration: defaults, then dir/.deptqa.yaml
// if present, then DEPTQA_* environment variable overrides.
func Load(dir string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".deptqa.yaml", ".deptqa.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

// mergeWith overlays non-zero fields from other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Storage.DBPath != "" {
		c.Storage.DBPath = other.Storage.DBPath
	}
	if other.Storage.BlobRoot != "" {
		c.Storage.BlobRoot = other.Storage.BlobRoot
	}
	if other.Index.Path != "" {
		c.Index.Path = other.Index.Path
	}
	if other.Index.Dimensions != 0 {
		c.Index.Dimensions = other.Index.Dimensions
	}
	if other.Index.M != 0 {
		c.Index.M = other.Index.M
	}
	if other.Index.EfSearch != 0 {
		c.Index.EfSearch = other.Index.EfSearch
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.LLM.Host != "" {
		c.LLM.Host = other.LLM.Host
	}
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.Temperature != 0 {
		c.LLM.Temperature = other.LLM.Temperature
	}
	if other.LLM.TimeoutSecs != 0 {
		c.LLM.TimeoutSecs = other.LLM.TimeoutSecs
	}
	if other.Splitting.ChunkSize != 0 {
		c.Splitting.ChunkSize = other.Splitting.ChunkSize
	}
	if other.Splitting.ChunkOverlap != 0 {
		c.Splitting.ChunkOverlap = other.Splitting.ChunkOverlap
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Path != "" {
		c.Logging.Path = other.Logging.Path
	}
}

// applyEnvOverrides applies DEPTQA_* environment variables, which take
// precedence over both defaults and the project config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DEPTQA_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DEPTQA_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
		c.LLM.Host = v
	}
	if v := os.Getenv("DEPTQA_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DEPTQA_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("DEPTQA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DEPTQA_LLM_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LLM.TimeoutSecs = n
		}
	}
}

// Validate checks invariants that, if violated, make the configuration
// unsafe to run with rather than merely suboptimal.
func (c *Config) Validate() error {
	if c.Embeddings.Dimensions != c.Index.Dimensions {
		return fmt.Errorf("embeddings.dimensions (%d) must match index.dimensions (%d)",
			c.Embeddings.Dimensions, c.Index.Dimensions)
	}
	if c.Splitting.ChunkOverlap >= c.Splitting.ChunkSize {
		return fmt.Errorf("splitting.chunk_overlap (%d) must be less than chunk_size (%d)",
			c.Splitting.ChunkOverlap, c.Splitting.ChunkSize)
	}
	if c.LLM.TimeoutSecs <= 0 {
		return fmt.Errorf("llm.timeout_secs must be positive")
	}
	return nil
}

// LLMTimeout converts the configured timeout to a time.Duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSecs) * time.Second
}

// WriteYAML persists the configuration to path, for `deptqa config init`.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
