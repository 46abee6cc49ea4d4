// Package config loads and validates repovec configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/repovec/config.yaml, XDG honored)
//  3. Project config (.repovec.yaml in the project root)
//  4. Environment variables (REPOVEC_*)
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectType represents the type of project detected.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeUnknown ProjectType = "unknown"
)

// DataDirName is the project-local directory holding the ledger, the
// keyword sidecar, telemetry and the instance lock.
const DataDirName = ".repovec"

// ProjectConfigName is the project configuration file in the root.
const ProjectConfigName = ".repovec.yaml"

// Config represents the complete repovec configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Indexing  IndexingConfig  `yaml:"indexing" json:"indexing"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Vector    VectorConfig    `yaml:"vector" json:"vector"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// PathsConfig configures which files the scanner considers.
type PathsConfig struct {
	// Include lists directories to scan relative to the project root.
	// Empty means the whole project root.
	Include []string `yaml:"include" json:"include"`
	// Exclude lists glob patterns merged with the built-in defaults.
	Exclude []string `yaml:"exclude" json:"exclude"`
	// Extensions lists watched file extensions (with leading dot).
	Extensions []string `yaml:"extensions" json:"extensions"`
	// MaxFileSizeMB skips files larger than this (default: 2).
	MaxFileSizeMB int `yaml:"max_file_size_mb" json:"max_file_size_mb"`
}

// IndexingConfig configures the incremental indexing engine.
type IndexingConfig struct {
	// CheckpointInterval is the number of processed files between
	// durable ledger writes. A crash loses at most this many files
	// minus one of progress.
	CheckpointInterval int `yaml:"checkpoint_interval" json:"checkpoint_interval"`
	// DailyUnitLimit caps chunks upserted per calendar day. This is a
	// deliberately conservative local ceiling, not the provider's real
	// rate limit; it spreads huge initial indexes across days.
	DailyUnitLimit int `yaml:"daily_unit_limit" json:"daily_unit_limit"`
	// EstimatedChunksPerFile is the prospective unit cost used for the
	// pre-parse quota gate when a file has no prior ledger record.
	EstimatedChunksPerFile int `yaml:"estimated_chunks_per_file" json:"estimated_chunks_per_file"`
	// ErrorLogSize bounds the rolling per-file error buffer.
	ErrorLogSize int `yaml:"error_log_size" json:"error_log_size"`
	// WatchDebounce is the window for coalescing filesystem events.
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// EmbeddingConfig configures the embedding gateway.
type EmbeddingConfig struct {
	// Provider selects the embedder: "http" (default) or "static".
	Provider string `yaml:"provider" json:"provider"`
	// Endpoint is the embedding service base URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`
	// Dimensions is the vector width; 0 auto-detects from the service.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is texts per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the LRU embedding cache capacity (entries).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// RequestTimeout is the per-request timeout.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// VectorConfig configures the vector store client.
type VectorConfig struct {
	// Mode selects the store: "remote" (default) or "memory".
	Mode string `yaml:"mode" json:"mode"`
	// Endpoint is the remote vector service base URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Collection names the remote collection. Empty derives
	// "repovec-<project dir name>".
	Collection string `yaml:"collection" json:"collection"`
	// RequestTimeout is the per-request timeout.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// SearchConfig configures hybrid search.
type SearchConfig struct {
	// KeywordWeight is the weight for keyword matching (0.0-1.0).
	// Must sum to 1.0 with SemanticWeight.
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`
	// SemanticWeight is the weight for vector similarity (0.0-1.0).
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	// RRFConstant is the reciprocal rank fusion smoothing parameter.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// MaxResults caps returned hits.
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// ServerConfig configures the MCP server and logging.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/.repovec/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// defaultExtensions are the watched file extensions.
var defaultExtensions = []string{
	".go", ".ts", ".tsx", ".js", ".jsx", ".py",
	".md", ".markdown", ".yaml", ".yml", ".json", ".toml",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include:       []string{},
			Exclude:       defaultExcludePatterns,
			Extensions:    defaultExtensions,
			MaxFileSizeMB: 2,
		},
		Indexing: IndexingConfig{
			CheckpointInterval:     10,
			DailyUnitLimit:         5000,
			EstimatedChunksPerFile: 8,
			ErrorLogSize:           50,
			WatchDebounce:          "500ms",
		},
		Embedding: EmbeddingConfig{
			Provider:       "http",
			Endpoint:       "http://localhost:11434",
			Model:          "qwen3-embedding:8b",
			Dimensions:     0, // Auto-detect from the service
			BatchSize:      32,
			CacheSize:      4096,
			RequestTimeout: 60 * time.Second,
		},
		Vector: VectorConfig{
			Mode:           "remote",
			Endpoint:       "http://localhost:6333",
			Collection:     "",
			RequestTimeout: 30 * time.Second,
		},
		Search: SearchConfig{
			KeywordWeight:  0.4,
			SemanticWeight: 0.6,
			RRFConstant:    60,
			MaxResults:     20,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/repovec/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/repovec/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "repovec", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "repovec", "config.yaml")
	}
	return filepath.Join(home, ".config", "repovec", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration for the project rooted at dir.
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

// loadFromFile attempts to load configuration from .repovec.yaml or .repovec.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".repovec.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".repovec.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine, defaults apply
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
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

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Paths
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}
	if len(other.Paths.Extensions) > 0 {
		c.Paths.Extensions = other.Paths.Extensions
	}
	if other.Paths.MaxFileSizeMB != 0 {
		c.Paths.MaxFileSizeMB = other.Paths.MaxFileSizeMB
	}

	// Indexing
	if other.Indexing.CheckpointInterval != 0 {
		c.Indexing.CheckpointInterval = other.Indexing.CheckpointInterval
	}
	if other.Indexing.DailyUnitLimit != 0 {
		c.Indexing.DailyUnitLimit = other.Indexing.DailyUnitLimit
	}
	if other.Indexing.EstimatedChunksPerFile != 0 {
		c.Indexing.EstimatedChunksPerFile = other.Indexing.EstimatedChunksPerFile
	}
	if other.Indexing.ErrorLogSize != 0 {
		c.Indexing.ErrorLogSize = other.Indexing.ErrorLogSize
	}
	if other.Indexing.WatchDebounce != "" {
		c.Indexing.WatchDebounce = other.Indexing.WatchDebounce
	}

	// Embedding
	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Endpoint != "" {
		c.Embedding.Endpoint = other.Embedding.Endpoint
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}
	if other.Embedding.RequestTimeout != 0 {
		c.Embedding.RequestTimeout = other.Embedding.RequestTimeout
	}

	// Vector
	if other.Vector.Mode != "" {
		c.Vector.Mode = other.Vector.Mode
	}
	if other.Vector.Endpoint != "" {
		c.Vector.Endpoint = other.Vector.Endpoint
	}
	if other.Vector.Collection != "" {
		c.Vector.Collection = other.Vector.Collection
	}
	if other.Vector.RequestTimeout != 0 {
		c.Vector.RequestTimeout = other.Vector.RequestTimeout
	}

	// Search
	if other.Search.KeywordWeight != 0 {
		c.Search.KeywordWeight = other.Search.KeywordWeight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	// Server
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies REPOVEC_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REPOVEC_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("REPOVEC_EMBEDDING_ENDPOINT"); v != "" {
		c.Embedding.Endpoint = v
	}
	if v := os.Getenv("REPOVEC_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("REPOVEC_VECTOR_MODE"); v != "" {
		c.Vector.Mode = v
	}
	if v := os.Getenv("REPOVEC_VECTOR_ENDPOINT"); v != "" {
		c.Vector.Endpoint = v
	}
	if v := os.Getenv("REPOVEC_VECTOR_COLLECTION"); v != "" {
		c.Vector.Collection = v
	}
	if v := os.Getenv("REPOVEC_DAILY_UNIT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.DailyUnitLimit = n
		}
	}
	if v := os.Getenv("REPOVEC_CHECKPOINT_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.CheckpointInterval = n
		}
	}
	if v := os.Getenv("REPOVEC_KEYWORD_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.KeywordWeight = w
		}
	}
	if v := os.Getenv("REPOVEC_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("REPOVEC_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("REPOVEC_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Indexing.CheckpointInterval < 1 {
		return fmt.Errorf("indexing.checkpoint_interval must be at least 1, got %d", c.Indexing.CheckpointInterval)
	}
	if c.Indexing.DailyUnitLimit < 1 {
		return fmt.Errorf("indexing.daily_unit_limit must be at least 1, got %d", c.Indexing.DailyUnitLimit)
	}
	if c.Indexing.EstimatedChunksPerFile < 1 {
		return fmt.Errorf("indexing.estimated_chunks_per_file must be at least 1, got %d", c.Indexing.EstimatedChunksPerFile)
	}
	if _, err := time.ParseDuration(c.Indexing.WatchDebounce); err != nil {
		return fmt.Errorf("indexing.watch_debounce must be a duration like 500ms, got %q", c.Indexing.WatchDebounce)
	}

	validProviders := map[string]bool{"http": true, "static": true}
	if !validProviders[strings.ToLower(c.Embedding.Provider)] {
		return fmt.Errorf("embedding.provider must be 'http' or 'static', got %s", c.Embedding.Provider)
	}

	validModes := map[string]bool{"remote": true, "memory": true}
	if !validModes[strings.ToLower(c.Vector.Mode)] {
		return fmt.Errorf("vector.mode must be 'remote' or 'memory', got %s", c.Vector.Mode)
	}

	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return fmt.Errorf("search.keyword_weight must be between 0 and 1, got %f", c.Search.KeywordWeight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("search.semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	sum := c.Search.KeywordWeight + c.Search.SemanticWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("search.keyword_weight + search.semantic_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must be non-negative, got %d", c.Search.MaxResults)
	}

	validTransports := map[string]bool{"stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// DebounceWindow returns the parsed watch debounce duration.
// Validate guarantees the string parses.
func (c *Config) DebounceWindow() time.Duration {
	d, err := time.ParseDuration(c.Indexing.WatchDebounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// DataDir returns the project-local data directory for the given root.
func DataDir(projectRoot string) string {
	return filepath.Join(projectRoot, DataDirName)
}

// CollectionName returns the configured collection name, deriving
// "repovec-<dir>" from the project root when unset.
func (c *Config) CollectionName(projectRoot string) string {
	if c.Vector.Collection != "" {
		return c.Vector.Collection
	}
	base := filepath.Base(projectRoot)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "index"
	}
	return "repovec-" + strings.ToLower(base)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DetectProjectType detects the project type based on marker files.
// Priority: go.mod > package.json > pyproject.toml/requirements.txt
func DetectProjectType(dir string) ProjectType {
	if fileExists(filepath.Join(dir, "go.mod")) {
		return ProjectTypeGo
	}

	if fileExists(filepath.Join(dir, "package.json")) {
		return ProjectTypeNode
	}

	if fileExists(filepath.Join(dir, "pyproject.toml")) ||
		fileExists(filepath.Join(dir, "requirements.txt")) {
		return ProjectTypePython
	}

	return ProjectTypeUnknown
}

// FindProjectRoot finds the project root directory.
// It looks for a .git directory or .repovec.yaml/.yml file by walking up
// the directory tree, returning the starting directory if none is found.
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

		if fileExists(filepath.Join(currentDir, ".repovec.yaml")) ||
			fileExists(filepath.Join(currentDir, ".repovec.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// DiscoverSourceDirs discovers common source directories in the project.
// Used by `repovec init` to prefill paths.include.
func DiscoverSourceDirs(dir string) []string {
	commonSourceDirs := []string{"src", "lib", "pkg", "internal", "cmd", "app"}

	var found []string
	for _, d := range commonSourceDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}

	return found
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// String returns a string representation of ProjectType.
func (p ProjectType) String() string {
	return string(p)
}

// IsKnown returns true if the project type is known (not unknown).
func (p ProjectType) IsKnown() bool {
	return p != ProjectTypeUnknown
}
