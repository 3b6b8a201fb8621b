package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	RetentionNone      = "none"
	RetentionFile      = "file"
	RetentionDirectory = "directory"
)

var datePresets = map[string]string{
	"underscore": "2006_01_02",
	"compact":    "02012006",
}

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Backup  BackupConfig  `mapstructure:"backup"`
	Lock    LockConfig    `mapstructure:"lock"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Journal JournalConfig `mapstructure:"journal"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
	Schedule string `mapstructure:"schedule"`
}

type BackupConfig struct {
	SourcePath         string         `mapstructure:"source_path"`
	DestinationPath    string         `mapstructure:"destination_path"`
	DateOffsetDays     int            `mapstructure:"date_offset_days"`
	DateFormat         string         `mapstructure:"date_format"`
	FileSuffix         string         `mapstructure:"file_suffix"`
	RetentionMode      string         `mapstructure:"retention_mode"`
	KeepStaging        bool           `mapstructure:"keep_staging"`
	ArchiveFormat      string         `mapstructure:"archive_format"`
	VerifyArchive      bool           `mapstructure:"verify_archive"`
	UploadFolderLayout string         `mapstructure:"upload_folder_layout"`
	UploadTimeout      time.Duration  `mapstructure:"upload_timeout"`
	Retry              RetryConfig    `mapstructure:"retry"`
	UploadTargets      []UploadTarget `mapstructure:"upload_targets"`
}

type RetryConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
}

type UploadTarget struct {
	Type          string `mapstructure:"type"`
	Enabled       bool   `mapstructure:"enabled"`
	Prefix        string `mapstructure:"prefix"`
	RetentionDays int    `mapstructure:"retention_days"`

	// Google Drive, GCS
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`

	// AWS S3, GCS
	Region       string `mapstructure:"region"`
	Bucket       string `mapstructure:"bucket"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`

	// Telegram
	BotToken   string `mapstructure:"bot_token"`
	ChatID     string `mapstructure:"chat_id"`
	SendFile   bool   `mapstructure:"send_file"`
	NotifyOnly bool   `mapstructure:"notify_only"`

	// Local mirror
	Path string `mapstructure:"path"`
}

type LockConfig struct {
	Path string `mapstructure:"path"`
}

type MetricsConfig struct {
	Textfile    string `mapstructure:"textfile"`
	Pushgateway string `mapstructure:"pushgateway"`
	Listen      string `mapstructure:"listen"`
}

type JournalConfig struct {
	Path string `mapstructure:"path"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("ROTABAK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "rotabak")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_file", "")
	v.SetDefault("app.schedule", "")

	v.SetDefault("backup.source_path", "")
	v.SetDefault("backup.destination_path", "")
	v.SetDefault("backup.date_offset_days", 0)
	v.SetDefault("backup.date_format", "underscore")
	v.SetDefault("backup.file_suffix", ".bak")
	v.SetDefault("backup.retention_mode", RetentionNone)
	v.SetDefault("backup.keep_staging", false)
	v.SetDefault("backup.archive_format", "zip")
	v.SetDefault("backup.verify_archive", true)
	v.SetDefault("backup.upload_folder_layout", "2006-01-02")
	v.SetDefault("backup.upload_timeout", 30*time.Minute)
	v.SetDefault("backup.retry.max_retries", 3)
	v.SetDefault("backup.retry.initial_delay", 2*time.Second)
	v.SetDefault("backup.retry.max_delay", 30*time.Second)
	v.SetDefault("backup.retry.backoff_factor", 2.0)

	v.SetDefault("lock.path", filepath.Join(os.TempDir(), "rotabak.lock"))
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("metrics.pushgateway", "")
	v.SetDefault("metrics.listen", "")
	v.SetDefault("journal.path", "")
}

func (c *Config) Validate() error {
	if c.Backup.SourcePath == "" {
		return fmt.Errorf("backup.source_path is required")
	}
	if c.Backup.DestinationPath == "" {
		return fmt.Errorf("backup.destination_path is required")
	}
	if c.Backup.DateOffsetDays < 0 {
		return fmt.Errorf("backup.date_offset_days must not be negative")
	}
	if c.Backup.DateFormat == "" {
		return fmt.Errorf("backup.date_format is required")
	}
	if c.Backup.FileSuffix == "" {
		return fmt.Errorf("backup.file_suffix is required")
	}

	switch c.Backup.RetentionMode {
	case RetentionNone, RetentionFile, RetentionDirectory:
	default:
		return fmt.Errorf("backup.retention_mode must be one of none, file, directory, got %q", c.Backup.RetentionMode)
	}

	switch c.Backup.ArchiveFormat {
	case "zip", "tar.gz", "tar.zst":
	default:
		return fmt.Errorf("backup.archive_format must be one of zip, tar.gz, tar.zst, got %q", c.Backup.ArchiveFormat)
	}

	// Remote cleanup reads the date back from the first key segment.
	if c.Backup.UploadFolderLayout == "" || strings.Contains(c.Backup.UploadFolderLayout, "/") {
		return fmt.Errorf("backup.upload_folder_layout must be a single path segment, got %q", c.Backup.UploadFolderLayout)
	}

	if c.Backup.Retry.MaxRetries < 0 {
		return fmt.Errorf("backup.retry.max_retries must not be negative")
	}
	if c.Backup.Retry.BackoffFactor < 1 {
		return fmt.Errorf("backup.retry.backoff_factor must be at least 1")
	}

	targets := c.GetEnabledUploadTargets()
	if len(targets) == 0 {
		return fmt.Errorf("at least one enabled upload target is required")
	}

	for i, t := range c.Backup.UploadTargets {
		if !t.Enabled {
			continue
		}
		switch t.Type {
		case "s3":
			if t.Bucket == "" {
				return fmt.Errorf("upload_targets[%d]: bucket is required for s3", i)
			}
			if t.Region == "" {
				return fmt.Errorf("upload_targets[%d]: region is required for s3", i)
			}
			if (t.AccessKey == "") != (t.SecretKey == "") {
				return fmt.Errorf("upload_targets[%d]: access_key and secret_key must be set together", i)
			}
		case "gcs":
			if t.Bucket == "" {
				return fmt.Errorf("upload_targets[%d]: bucket is required for gcs", i)
			}
		case "gdrive":
			if t.CredentialsFile == "" || t.FolderID == "" {
				return fmt.Errorf("upload_targets[%d]: credentials_file and folder_id are required for gdrive", i)
			}
		case "telegram":
			if t.BotToken == "" || t.ChatID == "" {
				return fmt.Errorf("upload_targets[%d]: bot_token and chat_id are required for telegram", i)
			}
		case "local":
			if t.Path == "" {
				return fmt.Errorf("upload_targets[%d]: path is required for local", i)
			}
		default:
			return fmt.Errorf("upload_targets[%d]: unknown type %q", i, t.Type)
		}
		if t.RetentionDays < 0 {
			return fmt.Errorf("upload_targets[%d]: retention_days must not be negative", i)
		}
	}

	return nil
}

// DateLayout resolves backup.date_format to a Go time layout.
func (c *Config) DateLayout() string {
	if layout, ok := datePresets[c.Backup.DateFormat]; ok {
		return layout
	}
	return c.Backup.DateFormat
}

// ReferenceDate applies the configured day offset to now.
func (c *Config) ReferenceDate(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.Backup.DateOffsetDays)
}

func (c *Config) GetEnabledUploadTargets() []UploadTarget {
	var enabled []UploadTarget
	for _, target := range c.Backup.UploadTargets {
		if target.Enabled {
			enabled = append(enabled, target)
		}
	}
	return enabled
}
