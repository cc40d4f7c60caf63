// Package config provides configuration loading and structs for the Parmesan server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/parmesan/internal/ranking"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Search     SearchConfig     `yaml:"search"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Watch      WatchConfig      `yaml:"watch"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	// DefaultCollection receives files placed directly in a watched directory.
	DefaultCollection string `yaml:"default_collection"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the corpus database and the lemma index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	LemmaIndexPath string `yaml:"lemma_index_path"`
}

// SearchConfig holds ranking settings.
type SearchConfig struct {
	// RegexTemplate is the lemma-match pattern with exactly one %s slot for the query.
	RegexTemplate        string `yaml:"regex_template"`
	ResultsPerCollection int    `yaml:"results_per_collection"`
	SentencesPerDocument int    `yaml:"sentences_per_document"`
	TitleBonus           int    `yaml:"title_bonus"`
	// Suggestions is the number of "did you mean" queries offered for empty results.
	Suggestions int `yaml:"suggestions"`
}

// EnrichmentConfig holds settings for the external definition sources.
type EnrichmentConfig struct {
	PerSourceLimit int `yaml:"per_source_limit"`
	// Timeout bounds a single HTTP request; rate-limit waits between retries are not counted.
	Timeout  time.Duration  `yaml:"timeout"`
	Wikidata WikidataConfig `yaml:"wikidata"`
	NLab     NLabConfig     `yaml:"nlab"`
}

// WikidataConfig configures the SPARQL source.
type WikidataConfig struct {
	Enabled       *bool         `yaml:"enabled"`
	Endpoint      string        `yaml:"endpoint"`
	UserAgent     string        `yaml:"user_agent"`
	CacheResults  *bool         `yaml:"cache_results"`
	MaxRetries    int           `yaml:"max_retries"`
	MaxRetryAfter time.Duration `yaml:"max_retry_after"`
}

// NLabConfig configures the nLab page scraper.
type NLabConfig struct {
	Enabled      *bool  `yaml:"enabled"`
	BaseURL      string `yaml:"base_url"`
	CacheResults *bool  `yaml:"cache_results"`
}

// Load reads and parses the config file at path, expands paths, applies defaults, and validates.
// Returns an error if the file cannot be read or parsed, or if the regex template is malformed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.LemmaIndexPath = expandPath(cfg.Storage.LemmaIndexPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that cannot be corrected by defaults.
func (c *Config) Validate() error {
	if _, err := ranking.NewTemplate(c.Search.RegexTemplate); err != nil {
		return fmt.Errorf("search.regex_template: %w", err)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

// BoolOr returns *b, or def when b is nil.
func BoolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
