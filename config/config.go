// Package config loads the registry's TOML configuration.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/agoops/alexandrie/internal/core"
)

// Config is the top-level registry configuration.
type Config struct {
	Index    IndexConfig    `toml:"index"`
	Database DatabaseConfig `toml:"database"`
}

// IndexConfig selects and configures the index management strategy.
type IndexConfig struct {
	// Type names the backend: "command-line" or "git2".
	Type string `toml:"type"`
	// Path is the local working tree directory for the index checkout.
	Path string `toml:"path"`
	// Remote is the URL of the upstream index repository.
	Remote string `toml:"remote"`
	// Branch is the tracked remote branch. Defaults to "master".
	Branch string `toml:"branch"`
	// AuthorName and AuthorEmail identify the committer for index commits.
	AuthorName  string `toml:"author_name"`
	AuthorEmail string `toml:"author_email"`
}

// DatabaseConfig configures the relational database used by the
// surrounding registry. The index core never opens this connection itself.
type DatabaseConfig struct {
	// URL is the database connection URL.
	URL string `toml:"url"`
}

// Load reads and validates a TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.ConfigurationError{Field: "file", Reason: err.Error()}
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, &core.ConfigurationError{Field: "file", Reason: err.Error()}
	}

	if err := cfg.Index.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *IndexConfig) validate() error {
	if c.Type == "" {
		c.Type = "command-line"
	}
	if c.Remote == "" {
		return &core.ConfigurationError{Field: "index.remote", Reason: "remote URL is not set"}
	}
	if c.Path == "" {
		return &core.ConfigurationError{Field: "index.path", Reason: "working tree path is not set"}
	}
	return nil
}

// Backend converts the index configuration into a backend configuration.
func (c *IndexConfig) Backend() core.BackendConfig {
	return core.BackendConfig{
		Path:        c.Path,
		Remote:      c.Remote,
		Branch:      c.Branch,
		AuthorName:  c.AuthorName,
		AuthorEmail: c.AuthorEmail,
	}
}
