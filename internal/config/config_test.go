package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir: "/home/user/.local/share/abus",
		IndexDB: "/home/user/.local/share/abus/index.sl3",
		LogDir:  "/home/user/.local/share/abus/log",
		Archive: ArchiveConfig{
			Type:     "s3",
			S3Bucket: "backups",
			S3Prefix: "laptop/",
			S3Region: "eu-central-1",
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  "/home/user/.local/share/abus/keys/abus.pub",
			PrivateKeyPath: "/home/user/.local/share/abus/keys/abus.key",
		},
		Restore: RestoreConfig{
			Workers:     8,
			TaskTimeout: Duration{90 * time.Second},
			Retries:     2,
		},
		Retention: RetentionConfig{
			KeepAllDays:         1,
			KeepDailyDays:       7,
			KeepIntervalDays:    14,
			KeepIntervalForDays: 150,
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if diff := cmp.Diff(original, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_Read_Duration(t *testing.T) {
	m := &Manager{}

	t.Run("parses duration strings", func(t *testing.T) {
		cfg, err := m.Read(strings.NewReader("[restore]\ntask_timeout = \"2m30s\"\n"))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if cfg.Restore.TaskTimeout.Duration != 150*time.Second {
			t.Errorf("TaskTimeout = %v, want 2m30s", cfg.Restore.TaskTimeout.Duration)
		}
	})

	t.Run("rejects invalid duration", func(t *testing.T) {
		if _, err := m.Read(strings.NewReader("[restore]\ntask_timeout = \"soon\"\n")); err == nil {
			t.Error("Read() expected error for invalid duration")
		}
	})
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/base", "/mnt/archive")

	if cfg.IndexDB != filepath.Join("/base", "index.sl3") {
		t.Errorf("IndexDB = %q", cfg.IndexDB)
	}
	if cfg.LogDir != filepath.Join("/base", "log") {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
	if cfg.Archive.Type != "filesystem" || cfg.Archive.Root != "/mnt/archive" {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	if cfg.Encryption.PrivateKeyPath != filepath.Join("/base", "keys", "abus.key") {
		t.Errorf("Encryption.PrivateKeyPath = %q", cfg.Encryption.PrivateKeyPath)
	}
	if cfg.Restore.Workers != 4 {
		t.Errorf("Restore.Workers = %d, want 4", cfg.Restore.Workers)
	}
	if cfg.Retention.KeepDailyDays != 7 || cfg.Retention.KeepIntervalDays != 14 || cfg.Retention.KeepIntervalForDays != 150 {
		t.Errorf("Retention = %+v", cfg.Retention)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default", modify: func(*Config) {}},
		{name: "filesystem without root", modify: func(c *Config) { c.Archive.Root = "" }, wantErr: true},
		{name: "s3 without bucket", modify: func(c *Config) { c.Archive = ArchiveConfig{Type: "s3"} }, wantErr: true},
		{name: "s3 with bucket", modify: func(c *Config) { c.Archive = ArchiveConfig{Type: "s3", S3Bucket: "b"} }},
		{name: "memory archive", modify: func(c *Config) { c.Archive = ArchiveConfig{Type: "memory"} }},
		{name: "unknown archive type", modify: func(c *Config) { c.Archive.Type = "tape" }, wantErr: true},
		{name: "negative workers", modify: func(c *Config) { c.Restore.Workers = -1 }, wantErr: true},
		{name: "negative retries", modify: func(c *Config) { c.Restore.Retries = -1 }, wantErr: true},
		{name: "negative timeout", modify: func(c *Config) { c.Restore.TaskTimeout = Duration{-time.Second} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/base", "/archive")
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sub", "abus.toml")
		cfg := NewConfig("/base", "/archive")

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Archive.Root != "/archive" {
			t.Errorf("Archive.Root = %q, want %q", got.Archive.Root, "/archive")
		}
	})

	t.Run("refuses to overwrite existing config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "abus.toml")
		if err := os.WriteFile(path, []byte("existing"), 0644); err != nil {
			t.Fatalf("writing file: %v", err)
		}

		if err := Init(path, NewConfig("/base", "/archive")); err == nil {
			t.Error("Init() expected error for existing file")
		}

		data, _ := os.ReadFile(path)
		if string(data) != "existing" {
			t.Errorf("existing config was modified: %q", data)
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := ReadFromFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Error("ReadFromFile() expected error for missing file")
		}
	})

	t.Run("invalid toml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.toml")
		if err := os.WriteFile(path, []byte("this is = = not toml"), 0644); err != nil {
			t.Fatalf("writing file: %v", err)
		}
		if _, err := ReadFromFile(path); err == nil {
			t.Error("ReadFromFile() expected error for invalid TOML")
		}
	})
}
