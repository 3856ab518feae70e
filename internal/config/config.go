package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for abus.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	IndexDB    string           `toml:"index_db"`
	LogDir     string           `toml:"log_dir"`
	Archive    ArchiveConfig    `toml:"archive"`
	Encryption EncryptionConfig `toml:"encryption"`
	Restore    RestoreConfig    `toml:"restore"`
	Retention  RetentionConfig  `toml:"retention"`
}

// ArchiveConfig locates the backup archive.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type string `toml:"type"` // "filesystem", "s3" or "memory"

	// Filesystem-specific fields (only used when Type == "filesystem")
	Root string `toml:"root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// EncryptionConfig holds paths to the age key pair the archive is encrypted with.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default), "test" or "none"
	PublicKeyPath  string `toml:"public_key_path,omitempty"`
	PrivateKeyPath string `toml:"private_key_path,omitempty"`
}

// RestoreConfig tunes restores.
type RestoreConfig struct {
	Workers     int      `toml:"workers"`
	TaskTimeout Duration `toml:"task_timeout"` // per file; zero means no limit
	Retries     int      `toml:"retries"`
}

// RetentionConfig is the prune policy, in days.
type RetentionConfig struct {
	KeepAllDays         int `toml:"keep_all_days"`
	KeepDailyDays       int `toml:"keep_daily_days"`
	KeepIntervalDays    int `toml:"keep_interval_days"`
	KeepIntervalForDays int `toml:"keep_interval_for_days"`
}

// Duration is a time.Duration written as a string such as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NewConfig creates a Config for an archive at archiveRoot with default
// paths below baseDir.
func NewConfig(baseDir, archiveRoot string) *Config {
	return &Config{
		BaseDir: baseDir,
		IndexDB: filepath.Join(baseDir, "index.sl3"),
		LogDir:  filepath.Join(baseDir, "log"),
		Archive: ArchiveConfig{
			Type: "filesystem",
			Root: archiveRoot,
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "abus.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "abus.key"),
		},
		Restore: RestoreConfig{
			Workers: 4,
		},
		Retention: RetentionConfig{
			KeepDailyDays:       7,
			KeepIntervalDays:    14,
			KeepIntervalForDays: 150,
		},
	}
}

// Validate checks the fields required by the configured types.
func (c *Config) Validate() error {
	switch c.Archive.Type {
	case "filesystem":
		if c.Archive.Root == "" {
			return fmt.Errorf("archive.root required for filesystem archive")
		}
	case "s3":
		if c.Archive.S3Bucket == "" {
			return fmt.Errorf("archive.s3_bucket required for s3 archive")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown archive type: %q", c.Archive.Type)
	}

	if c.Restore.Workers < 0 {
		return fmt.Errorf("restore.workers must not be negative")
	}
	if c.Restore.Retries < 0 {
		return fmt.Errorf("restore.retries must not be negative")
	}
	if c.Restore.TaskTimeout.Duration < 0 {
		return fmt.Errorf("restore.task_timeout must not be negative")
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold S3 credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path. An existing file is an error.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
