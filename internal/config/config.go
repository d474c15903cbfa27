// Package config provides layered configuration for the indexing and search
// core: hardcoded defaults, overridden by a user-global YAML file, overridden
// by a per-project YAML file, overridden by environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Chunking    ChunkingConfig    `yaml:"chunking" json:"chunking"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	Store       StoreConfig       `yaml:"store" json:"store"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Server      ServerConfig      `yaml:"server" json:"server"`
}

// PathsConfig configures which paths to include and exclude from FileWalker.
type PathsConfig struct {
	AllowedExts    []string `yaml:"allowed_extensions" json:"allowed_extensions"`
	IgnorePatterns []string `yaml:"ignore_patterns" json:"ignore_patterns"`
	MaxFileSizeMB  float64  `yaml:"max_file_size_mb" json:"max_file_size_mb"`
}

// ChunkingConfig configures the Chunker (spec.md §4.2).
type ChunkingConfig struct {
	// Strategy is "ast" (default) or "langchain".
	Strategy string `yaml:"strategy" json:"strategy"`

	// AST strategy bounds.
	MaxChunkChars int `yaml:"max_chunk_chars" json:"max_chunk_chars"`
	MinChunkChars int `yaml:"min_chunk_chars" json:"min_chunk_chars"`

	// Langchain (size-based) strategy bounds.
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// SearchConfig configures hybrid search parameters.
type SearchConfig struct {
	// RRFConstant is the RRF fusion smoothing parameter (k). Default: 60,
	// the industry-standard value used by Azure AI Search and OpenSearch.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// DefaultLimit is the result count when the caller doesn't specify one.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// MaxLimit caps the result count regardless of caller request.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`

	// BM25MaxTerms / BM25Normalize configure BM25Model.generate() at query
	// time (spec.md §4.7 step 2: max_terms=256, normalize=true).
	BM25MaxTerms int  `yaml:"bm25_max_terms" json:"bm25_max_terms"`
	BM25Normalize bool `yaml:"bm25_normalize" json:"bm25_normalize"`
}

// EmbeddingsConfig configures the embedding provider adapter.
type EmbeddingsConfig struct {
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`

	// Retry policy (spec.md §4.9).
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`

	// Endpoint is the one per-backend connection endpoint spec.md §6 allows
	// as an environment input (e.g. Ollama host, or a hosted provider base URL).
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// StoreConfig configures the vector store backend adapter.
type StoreConfig struct {
	// Backend selects the adapter: "hnsw" (default, local/embedded),
	// "faiss", "qdrant", "milvus".
	Backend string `yaml:"backend" json:"backend"`

	// Endpoint is the per-backend connection endpoint (qdrant/milvus gRPC
	// address); unused by the local hnsw/faiss backends.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// PerformanceConfig configures concurrency and batching (spec.md §5, §4.6).
type PerformanceConfig struct {
	Workers          int `yaml:"workers" json:"workers"`
	EmbedBatch       int `yaml:"embed_batch" json:"embed_batch"`
	InsertBatch      int `yaml:"insert_batch" json:"insert_batch"`
	MaxInFlightEmbed int `yaml:"max_in_flight_embed" json:"max_in_flight_embed"`
	MaxInFlightInsert int `yaml:"max_in_flight_insert" json:"max_in_flight_insert"`

	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// ServerConfig captures the environment-level knobs spec.md §6 names as the
// only recognised environment inputs: log level and an env-mode toggle.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	// Mode is "development" or "production"; affects log format only.
	Mode string `yaml:"mode" json:"mode"`
}

var defaultIgnorePatterns = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// NewConfig returns a Config populated with the spec's documented defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			AllowedExts:    nil, // nil means "all languages the Chunker supports"
			IgnorePatterns: append([]string{}, defaultIgnorePatterns...),
			MaxFileSizeMB:  1, // 1 MiB, spec.md §4.1
		},
		Chunking: ChunkingConfig{
			Strategy:      "ast",
			MaxChunkChars: 2500,
			MinChunkChars: 200,
			ChunkSize:     1000,
			ChunkOverlap:  200,
		},
		Search: SearchConfig{
			RRFConstant:   60,
			DefaultLimit:  10,
			MaxLimit:      200,
			BM25MaxTerms:  256,
			BM25Normalize: true,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "", // empty: caller must configure one explicitly
			Dimensions: 0,  // 0: probe the provider on first use
			BatchSize:  64, // EMBED_BATCH default, spec.md §4.6 step 7
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			BaseDelay:  1 * time.Second,
			MaxDelay:   10 * time.Second,
		},
		Store: StoreConfig{
			Backend: "hnsw",
			DataDir: defaultDataDir(),
		},
		Performance: PerformanceConfig{
			Workers:           minInt(runtime.NumCPU(), 8),
			EmbedBatch:        64,
			InsertBatch:       128,
			MaxInFlightEmbed:  2,
			MaxInFlightInsert: 2,
			RequestTimeout:    30 * time.Second,
		},
		Server: ServerConfig{
			LogLevel: "info",
			Mode:     "production",
		},
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codesearch")
	}
	return filepath.Join(home, ".codesearch")
}

// GetUserConfigPath returns the user/global configuration file path,
// honouring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codesearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codesearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "codesearch", "config.yaml")
}

func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load applies, in order of increasing precedence: hardcoded defaults, the
// user/global config, the project config (.codesearch.yaml in dir), then
// environment variable overrides.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".codesearch.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".codesearch.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.AllowedExts) > 0 {
		c.Paths.AllowedExts = other.Paths.AllowedExts
	}
	if len(other.Paths.IgnorePatterns) > 0 {
		c.Paths.IgnorePatterns = append(c.Paths.IgnorePatterns, other.Paths.IgnorePatterns...)
	}
	if other.Paths.MaxFileSizeMB != 0 {
		c.Paths.MaxFileSizeMB = other.Paths.MaxFileSizeMB
	}

	if other.Chunking.Strategy != "" {
		c.Chunking.Strategy = other.Chunking.Strategy
	}
	if other.Chunking.MaxChunkChars != 0 {
		c.Chunking.MaxChunkChars = other.Chunking.MaxChunkChars
	}
	if other.Chunking.MinChunkChars != 0 {
		c.Chunking.MinChunkChars = other.Chunking.MinChunkChars
	}
	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.ChunkOverlap != 0 {
		c.Chunking.ChunkOverlap = other.Chunking.ChunkOverlap
	}

	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if other.Search.BM25MaxTerms != 0 {
		c.Search.BM25MaxTerms = other.Search.BM25MaxTerms
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
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
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}
	if other.Embeddings.MaxRetries != 0 {
		c.Embeddings.MaxRetries = other.Embeddings.MaxRetries
	}
	if other.Embeddings.BaseDelay != 0 {
		c.Embeddings.BaseDelay = other.Embeddings.BaseDelay
	}
	if other.Embeddings.MaxDelay != 0 {
		c.Embeddings.MaxDelay = other.Embeddings.MaxDelay
	}
	if other.Embeddings.Endpoint != "" {
		c.Embeddings.Endpoint = other.Embeddings.Endpoint
	}

	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}
	if other.Store.Endpoint != "" {
		c.Store.Endpoint = other.Store.Endpoint
	}
	if other.Store.DataDir != "" {
		c.Store.DataDir = other.Store.DataDir
	}

	if other.Performance.Workers != 0 {
		c.Performance.Workers = other.Performance.Workers
	}
	if other.Performance.EmbedBatch != 0 {
		c.Performance.EmbedBatch = other.Performance.EmbedBatch
	}
	if other.Performance.InsertBatch != 0 {
		c.Performance.InsertBatch = other.Performance.InsertBatch
	}
	if other.Performance.MaxInFlightEmbed != 0 {
		c.Performance.MaxInFlightEmbed = other.Performance.MaxInFlightEmbed
	}
	if other.Performance.MaxInFlightInsert != 0 {
		c.Performance.MaxInFlightInsert = other.Performance.MaxInFlightInsert
	}
	if other.Performance.RequestTimeout != 0 {
		c.Performance.RequestTimeout = other.Performance.RequestTimeout
	}

	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.Mode != "" {
		c.Server.Mode = other.Server.Mode
	}
}

// applyEnvOverrides applies the three environment variables spec.md §6
// recognises as affecting core semantics (log level, env mode, per-backend
// endpoint), plus two overrides mirroring the teacher's AMANMCP_* pattern:
// CODESEARCH_RRF_CONSTANT (a positive integer) and
// CODESEARCH_EMBEDDINGS_PROVIDER.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODESEARCH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("CODESEARCH_MODE"); v != "" {
		c.Server.Mode = v
	}
	if v := os.Getenv("CODESEARCH_STORE_ENDPOINT"); v != "" {
		c.Store.Endpoint = v
	}
	if v := os.Getenv("CODESEARCH_EMBEDDINGS_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("CODESEARCH_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("CODESEARCH_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
}

// Validate checks invariants that must hold for the pipeline to run safely.
func (c *Config) Validate() error {
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be less than chunk_size (%d)", c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.Chunking.MinChunkChars >= c.Chunking.MaxChunkChars {
		return fmt.Errorf("min_chunk_chars (%d) must be less than max_chunk_chars (%d)", c.Chunking.MinChunkChars, c.Chunking.MaxChunkChars)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Performance.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Performance.Workers)
	}
	switch c.Store.Backend {
	case "hnsw", "faiss", "qdrant", "milvus":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// project config file, returning startDir (absolute) if neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".codesearch.yaml")) ||
			fileExists(filepath.Join(currentDir, ".codesearch.yml")) {
			return currentDir, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}
