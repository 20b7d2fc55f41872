package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr               string `yaml:"addr"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs"`
	ShutdownSecs       int    `yaml:"shutdown_secs"`
}

// IndexConfig names the index and tunes provisioning and retrieval.
type IndexConfig struct {
	Name  string `yaml:"name"`
	Model string `yaml:"model"`
	// Field is the record field the embedder reads.
	Field            string `yaml:"field"`
	ReadyTimeoutSecs int    `yaml:"ready_timeout_secs"`
	PollIntervalMs   int    `yaml:"poll_interval_ms"`
	SettleMs         int    `yaml:"settle_ms"`
	Overfetch        int    `yaml:"overfetch"`
	MaxCandidates    int    `yaml:"max_candidates"`
}

// HashingEmbedderConfig configures the local feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	Dimensions        int     `yaml:"dimensions"`
	MaxRetries        int     `yaml:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
}

// RemoteRerankerConfig configures a hosted /rerank endpoint.
type RemoteRerankerConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	AuthHeader        string  `yaml:"auth_header"`
	Model             string  `yaml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// RerankerConfig selects the reranker.
type RerankerConfig struct {
	Type   string                `yaml:"type"`
	Remote *RemoteRerankerConfig `yaml:"remote,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Badger *BadgerConfig `yaml:"badger,omitempty"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

type BadgerConfig struct {
	Dir string `yaml:"dir"`
}

type SQLiteConfig struct {
	DSN string `yaml:"dsn"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Addr      string `yaml:"addr"`
	APIKeyEnv string `yaml:"api_key_env"`
	// Collection defaults to the index name.
	Collection string `yaml:"collection"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Index       IndexConfig       `yaml:"index"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Reranker    RerankerConfig    `yaml:"reranker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/vecsearch/config.yaml.
// If neither exists, it writes defaults to ~/.config/vecsearch/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects unknown implementation names and missing sections.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "hashing":
	case "openai":
		if c.Embedder.OpenAI == nil {
			return errors.New("embedder.openai section missing")
		}
	default:
		return fmt.Errorf("unknown embedder: %q", c.Embedder.Type)
	}
	switch c.Reranker.Type {
	case "lexical":
	case "remote":
		if c.Reranker.Remote == nil || c.Reranker.Remote.BaseURL == "" {
			return errors.New("reranker.remote.base_url is required")
		}
	default:
		return fmt.Errorf("unknown reranker: %q", c.Reranker.Type)
	}
	switch c.VectorStore.Type {
	case "memory":
	case "badger":
		if c.VectorStore.Badger == nil || c.VectorStore.Badger.Dir == "" {
			return errors.New("vector_store.badger.dir is required")
		}
	case "sqlite":
		if c.VectorStore.SQLite == nil || c.VectorStore.SQLite.DSN == "" {
			return errors.New("vector_store.sqlite.dsn is required")
		}
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.Addr == "" {
			return errors.New("vector_store.qdrant.addr is required")
		}
		switch c.Index.Field {
		case "record_id", "namespace", "title":
			return fmt.Errorf("index.field %q is a reserved qdrant payload key", c.Index.Field)
		}
	default:
		return fmt.Errorf("unknown vector store: %q", c.VectorStore.Type)
	}
	if c.Index.Overfetch < 1 || c.Index.MaxCandidates < 1 {
		return errors.New("index.overfetch and index.max_candidates must be positive")
	}
	return nil
}

// RequestTimeout is zero when disabled.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownSecs) * time.Second
}

func (i IndexConfig) ReadyTimeout() time.Duration {
	return time.Duration(i.ReadyTimeoutSecs) * time.Second
}

func (i IndexConfig) PollInterval() time.Duration {
	return time.Duration(i.PollIntervalMs) * time.Millisecond
}

func (i IndexConfig) Settle() time.Duration {
	return time.Duration(i.SettleMs) * time.Millisecond
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "vecsearch", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "hashing"},
		Reranker:    RerankerConfig{Type: "lexical"},
		VectorStore: VectorStoreConfig{Type: "memory"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.ShutdownSecs == 0 {
		cfg.Server.ShutdownSecs = 10
	}

	ix := &cfg.Index
	if ix.Name == "" {
		ix.Name = "anu"
	}
	if ix.Field == "" {
		ix.Field = "chunk_text"
	}
	if ix.ReadyTimeoutSecs == 0 {
		ix.ReadyTimeoutSecs = 60
	}
	if ix.PollIntervalMs == 0 {
		ix.PollIntervalMs = 1000
	}
	if ix.Overfetch == 0 {
		ix.Overfetch = 3
	}
	if ix.MaxCandidates == 0 {
		ix.MaxCandidates = 100
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "hashing" {
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 512
		}
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		// Self-hosted endpoints may not need a key; the hosted API does.
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
			if cfg.Embedder.OpenAI.APIKeyEnv == "" {
				cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
			}
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if ix.Model == "" {
		switch {
		case cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil:
			ix.Model = cfg.Embedder.OpenAI.Model
		default:
			ix.Model = cfg.Embedder.Type
		}
	}

	if cfg.Reranker.Type == "" {
		cfg.Reranker.Type = "lexical"
	}
	if r := cfg.Reranker.Remote; cfg.Reranker.Type == "remote" && r != nil {
		if r.Model == "" {
			r.Model = "bge-reranker-v2-m3"
		}
		if r.TimeoutSecs == 0 {
			r.TimeoutSecs = 30
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if q := cfg.VectorStore.Qdrant; q != nil && q.Collection == "" {
		q.Collection = ix.Name
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
