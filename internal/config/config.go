package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openmined/s3repo/internal/blob"
	"github.com/openmined/s3repo/internal/indexer"
	"github.com/openmined/s3repo/internal/repoaddr"
)

const (
	DefaultLogLevel = "info"
	EnvPrefix       = "S3REPO"
)

var (
	ErrNoTarget    = errors.New("a repository address is required")
	ErrInvalidFlag = errors.New("invalid indexer flags")
)

// Config is the fully resolved run configuration. It is populated from flags,
// S3REPO_* environment variables and an optional config file.
type Config struct {
	Repository         string        `mapstructure:"repository"`
	Target             string        `mapstructure:"target"`
	StagingDir         string        `mapstructure:"staging_dir"`
	DryRun             bool          `mapstructure:"dry_run"`
	AllowCreate        bool          `mapstructure:"allow_create"`
	RemoveOldSnapshots bool          `mapstructure:"remove_old_snapshots"`
	UploadMetadataOnly bool          `mapstructure:"upload_metadata_only"`
	Excludes           string        `mapstructure:"excludes"`
	NoPreClean         bool          `mapstructure:"no_pre_clean"`
	NoValidate         bool          `mapstructure:"no_validate"`
	Indexer            string        `mapstructure:"indexer"`
	IndexerFlags       string        `mapstructure:"indexer_flags"`
	Journal            string        `mapstructure:"journal"`
	MetricsFile        string        `mapstructure:"metrics_file"`
	LogFile            string        `mapstructure:"log_file"`
	LogLevel           string        `mapstructure:"log_level"`
	S3                 blob.S3Config `mapstructure:"s3"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		UploadMetadataOnly: true,
		Indexer:            indexer.DefaultCommand,
		LogLevel:           DefaultLogLevel,
	}
}

func (c *Config) Validate() error {
	if c.Repository == "" {
		return ErrNoTarget
	}
	if _, err := repoaddr.Parse(c.Repository); err != nil {
		return err
	}
	if c.Target != "" {
		if _, err := repoaddr.Parse(c.Target); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.Indexer) == "" {
		return fmt.Errorf("indexer command must not be empty")
	}
	if _, err := indexer.ParseFlags(c.IndexerFlags); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFlag, err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := ParseExcludes(c.Excludes); err != nil {
		return err
	}
	if err := c.S3.Validate(); err != nil {
		return fmt.Errorf("s3: %w", err)
	}
	return nil
}

// Source is the repository read from.
func (c *Config) Source() (repoaddr.Address, error) {
	return repoaddr.Parse(c.Repository)
}

// Destination is the repository written to. It defaults to the source.
func (c *Config) Destination() (repoaddr.Address, error) {
	if c.Target == "" {
		return c.Source()
	}
	return repoaddr.Parse(c.Target)
}

// ParseLevel maps a level name to a slog.Level. An empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}
