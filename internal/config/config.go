// Package config handles configuration loading and validation for ontograph.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/imyousuf/ontograph/internal/graph"
)

// configExtensions are tried in order when no config file is given.
var configExtensions = []string{".yaml", ".yml", ".toml"}

const (
	// DefaultConfigFile is the default configuration file name (without extension).
	DefaultConfigFile = ".ontograph"
	// EnvPrefix prefixes environment variable overrides (ONTOGRAPH_LOADER_CONCURRENCY).
	EnvPrefix = "ONTOGRAPH"
)

// Cache backends.
const (
	CacheBackendFile   = "file"
	CacheBackendBadger = "badger"
	CacheBackendNone   = "none"
)

// Config holds all configuration for ontograph.
type Config struct {
	// Ontologies lists the sources to load. Order is significant: it breaks
	// id clashes during resolution and orders search results.
	Ontologies []OntologySource `mapstructure:"ontologies" yaml:"ontologies" toml:"ontologies"`
	// Cache configures the parsed-ontology cache.
	Cache CacheConfig `mapstructure:"cache" yaml:"cache" toml:"cache"`
	// Loader configures how sources are fetched and parsed.
	Loader LoaderConfig `mapstructure:"loader" yaml:"loader" toml:"loader"`
	// Logging configures the slog handler.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" toml:"logging"`
}

// OntologySource is one configured ontology.
type OntologySource struct {
	// ID is the short ontology id (GO, CL, MI).
	ID string `mapstructure:"id" yaml:"id" toml:"id"`
	// Source is a path, file:// URL, resource:<path> or http(s) URL.
	Source string `mapstructure:"source" yaml:"source" toml:"source"`
	// Format forces a parser; empty selects by extension.
	Format string `mapstructure:"format" yaml:"format,omitempty" toml:"format,omitempty"`
	// RootPolicy overrides loader.root_policy for this ontology.
	RootPolicy string `mapstructure:"root_policy" yaml:"root_policy,omitempty" toml:"root_policy,omitempty"`
	// IDPrefix keeps only terms with this id prefix.
	IDPrefix string `mapstructure:"id_prefix" yaml:"id_prefix,omitempty" toml:"id_prefix,omitempty"`
}

// CacheConfig holds cache configuration.
type CacheConfig struct {
	// Backend is file, badger or none.
	Backend string `mapstructure:"backend" yaml:"backend" toml:"backend"`
	// Dir is the cache directory. Empty means <tmp>/ontograph-cache.
	Dir string `mapstructure:"dir" yaml:"dir" toml:"dir"`
}

// LoaderConfig holds loader configuration.
type LoaderConfig struct {
	// Concurrency bounds how many ontologies load at once.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency" toml:"concurrency"`
	// FetchTimeout bounds each remote download ("5m"). Empty or "0" means
	// no bound beyond the caller's context.
	FetchTimeout string `mapstructure:"fetch_timeout" yaml:"fetch_timeout" toml:"fetch_timeout"`
	// RootPolicy is strict or greedy.
	RootPolicy string `mapstructure:"root_policy" yaml:"root_policy" toml:"root_policy"`
	// MaxValueLength bounds a single OBO tag value.
	MaxValueLength int `mapstructure:"max_value_length" yaml:"max_value_length" toml:"max_value_length"`
	// WarmRoots precomputes the descendant closures of every root.
	WarmRoots bool `mapstructure:"warm_roots" yaml:"warm_roots" toml:"warm_roots"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level" yaml:"level" toml:"level"`
	// Format is text or json.
	Format string `mapstructure:"format" yaml:"format" toml:"format"`
}

// Default returns the built-in configuration with no ontologies.
func Default() *Config {
	return &Config{
		Ontologies: []OntologySource{},
		Cache: CacheConfig{
			Backend: CacheBackendFile,
		},
		Loader: LoaderConfig{
			Concurrency:    4,
			FetchTimeout:   "5m",
			RootPolicy:     string(graph.RootStrict),
			MaxValueLength: 8192,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from file, environment variables, and defaults.
// The file is the one set through the "config_file" key of the global viper
// (the --config flag), else the first of .ontograph.yaml, .ontograph.yml and
// .ontograph.toml found in the working directory.
func Load() (*Config, error) {
	return load(viper.GetViper().GetString("config_file"))
}

// LoadFile loads configuration from an explicit file.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is empty")
	}
	return load(path)
}

func load(configFile string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	if configFile == "" {
		configFile = findConfigFile(".")
	}

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing default file is not an error; defaults and env apply.
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return &cfg, nil
}

// findConfigFile returns the default config file in dir, or "" if there is
// none. The extension decides how viper parses it.
func findConfigFile(dir string) string {
	for _, ext := range configExtensions {
		path := filepath.Join(dir, DefaultConfigFile+ext)
		if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
			return path
		}
	}
	return ""
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	seen := make(map[string]int, len(c.Ontologies))
	for i, o := range c.Ontologies {
		if o.ID == "" {
			return fmt.Errorf("ontology %d: id is required", i)
		}
		if strings.ContainsAny(o.ID, `/\: `) {
			return fmt.Errorf("ontology %d: id %q contains a reserved character", i, o.ID)
		}
		if j, dup := seen[o.ID]; dup {
			return fmt.Errorf("ontology %d: id %q already used by ontology %d", i, o.ID, j)
		}
		seen[o.ID] = i
		if o.Source == "" {
			return fmt.Errorf("ontology %s: source is required", o.ID)
		}
		if _, err := graph.ParseRootPolicy(o.RootPolicy); err != nil {
			return fmt.Errorf("ontology %s: %w", o.ID, err)
		}
	}

	switch c.Cache.Backend {
	case "", CacheBackendFile, CacheBackendBadger, CacheBackendNone:
	default:
		return fmt.Errorf("cache backend must be 'file', 'badger' or 'none', got %q", c.Cache.Backend)
	}

	if c.Loader.Concurrency < 0 {
		return fmt.Errorf("loader concurrency must not be negative, got %d", c.Loader.Concurrency)
	}
	if _, err := c.Loader.Timeout(); err != nil {
		return err
	}
	if _, err := graph.ParseRootPolicy(c.Loader.RootPolicy); err != nil {
		return fmt.Errorf("loader: %w", err)
	}
	if c.Loader.MaxValueLength < 0 {
		return fmt.Errorf("loader max_value_length must not be negative, got %d", c.Loader.MaxValueLength)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging format must be 'text' or 'json', got %q", c.Logging.Format)
	}
	return nil
}

// Timeout parses FetchTimeout.
func (l LoaderConfig) Timeout() (time.Duration, error) {
	if l.FetchTimeout == "" || l.FetchTimeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(l.FetchTimeout)
	if err != nil {
		return 0, fmt.Errorf("loader fetch_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("loader fetch_timeout must not be negative, got %s", d)
	}
	return d, nil
}

// PolicyFor returns the root policy for o: its own override, else the
// loader default.
func (c *Config) PolicyFor(o OntologySource) graph.RootPolicy {
	if p, err := graph.ParseRootPolicy(o.RootPolicy); err == nil && o.RootPolicy != "" {
		return p
	}
	p, _ := graph.ParseRootPolicy(c.Loader.RootPolicy)
	return p
}

// ResolveCacheDir returns the cache directory, defaulting to a directory
// under the system temp dir.
func (c *Config) ResolveCacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return filepath.Join(os.TempDir(), "ontograph-cache")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.dir", d.Cache.Dir)

	v.SetDefault("loader.concurrency", d.Loader.Concurrency)
	v.SetDefault("loader.fetch_timeout", d.Loader.FetchTimeout)
	v.SetDefault("loader.root_policy", d.Loader.RootPolicy)
	v.SetDefault("loader.max_value_length", d.Loader.MaxValueLength)
	v.SetDefault("loader.warm_roots", d.Loader.WarmRoots)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}
