// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads lawbase's YAML configuration file, overlaid with
// .env-provided secrets, following the teacher's pkg/config layering
// (godotenv before YAML parse, SetDefaults/Validate on every sub-config).
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoggingConfig configures internal/logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file,omitempty"`
	Format string `yaml:"format"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// EmbeddingConfig configures the embedding client (C7).
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // openai | cohere | ollama
	Model     string `yaml:"model,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size,omitempty"`
}

func (c *EmbeddingConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.Dimension == 0 {
		c.Dimension = 1536
	}
}

func (c *EmbeddingConfig) Validate() error {
	switch c.Provider {
	case "openai", "cohere", "ollama":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Provider)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("embedding batch_size must be positive")
	}
	return nil
}

// ChunkerConfig configures C2's fallback thresholds. Per spec §9 these are
// policy, not contract, so they are the one piece of the chunker exposed
// to configuration.
type ChunkerConfig struct {
	MaxChunkChars int `yaml:"max_chunk_chars"`
}

func (c *ChunkerConfig) SetDefaults() {
	if c.MaxChunkChars == 0 {
		c.MaxChunkChars = 800
	}
}

// RetrievalConfig configures C6's default retrieve() options (spec §4.6).
type RetrievalConfig struct {
	Strategy          string `yaml:"strategy"`
	TopK              int    `yaml:"top_k"`
	SummaryK          int    `yaml:"summary_k"`
	DetailsPerSummary int    `yaml:"details_per_summary"`
	ContentMaxLength  int    `yaml:"content_max_length"`
	// IncludeAncestors is a pointer so an absent YAML key can be told apart
	// from an explicit `false`; spec §4.6 defaults it to true.
	IncludeAncestors *bool `yaml:"include_ancestors,omitempty"`
	IncludeSiblings  bool  `yaml:"include_siblings"`
}

func (c *RetrievalConfig) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = "summary_first"
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.SummaryK == 0 {
		c.SummaryK = 3
	}
	if c.DetailsPerSummary == 0 {
		c.DetailsPerSummary = 3
	}
	if c.ContentMaxLength == 0 {
		c.ContentMaxLength = 800
	}
	if c.IncludeAncestors == nil {
		include := true
		c.IncludeAncestors = &include
	}
}

// IncludeAncestorsOrDefault returns the configured value, defaulting to
// true if SetDefaults was never called.
func (c *RetrievalConfig) IncludeAncestorsOrDefault() bool {
	return c.IncludeAncestors == nil || *c.IncludeAncestors
}

func (c *RetrievalConfig) Validate() error {
	if c.Strategy != "summary_first" && c.Strategy != "direct" {
		return fmt.Errorf("unknown retrieval strategy %q", c.Strategy)
	}
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("top_k must be in [1,50], got %d", c.TopK)
	}
	if c.ContentMaxLength < 100 || c.ContentMaxLength > 2000 {
		return fmt.Errorf("content_max_length must be in [100,2000], got %d", c.ContentMaxLength)
	}
	return nil
}

// MetricsConfig gates the optional prometheus endpoint (§10.5); off by
// default since the spec's Non-goals keep dashboards out of scope.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":9090"
	}
}

// VectorConfig selects and configures the C4 provider.
type VectorConfig struct {
	Type     string          `yaml:"type"` // chromem | qdrant | pinecone
	Chromem  *ChromemConfig  `yaml:"chromem,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Pinecone *PineconeConfig `yaml:"pinecone,omitempty"`
}

type ChromemConfig struct {
	PersistPath string `yaml:"persist_path,omitempty"`
	Compress    bool   `yaml:"compress,omitempty"`
}

type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty"`
}

type PineconeConfig struct {
	APIKey string `yaml:"api_key"`
	Host   string `yaml:"host"`
}

func (c *VectorConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem"
	}
	if c.Type == "chromem" && c.Chromem == nil {
		c.Chromem = &ChromemConfig{}
	}
}

func (c *VectorConfig) Validate() error {
	switch c.Type {
	case "chromem":
		return nil
	case "qdrant":
		if c.Qdrant == nil || c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant host is required")
		}
	case "pinecone":
		if c.Pinecone == nil || c.Pinecone.APIKey == "" {
			return fmt.Errorf("pinecone api_key is required")
		}
	default:
		return fmt.Errorf("unknown vector provider %q", c.Type)
	}
	return nil
}

// Config is lawbase's top-level configuration file shape.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SetDefaults fills in every sub-config's defaults.
func (c *Config) SetDefaults() {
	c.Database.SetDefaults()
	c.Vector.SetDefaults()
	c.Embedding.SetDefaults()
	c.Chunker.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Logging.SetDefaults()
	c.Metrics.SetDefaults()
}

// Validate validates every sub-config.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Vector.Validate(); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := c.Retrieval.Validate(); err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}
	return nil
}

// LoadDotEnv loads a .env file if present. Missing files are not an error,
// matching the teacher's permissive startup behavior.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Load reads and parses a YAML config file, applying defaults and
// validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a minimal, valid, zero-config setup: SQLite chunk store
// under ./lawbase.db and an embedded chromem-go vector store under
// ./lawbase_vectors, matching the teacher's "zero-config" CLI convenience.
func Default() *Config {
	cfg := &Config{
		Database: DatabaseConfig{Driver: "sqlite", Database: "lawbase.db"},
		Vector:   VectorConfig{Type: "chromem", Chromem: &ChromemConfig{PersistPath: "lawbase_vectors"}},
	}
	cfg.SetDefaults()
	return cfg
}
