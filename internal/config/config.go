package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Render   RenderConfig   `mapstructure:"render" validate:"required"`
	Stash    StashConfig    `mapstructure:"stash" validate:"required"`
	Pages    PagesConfig    `mapstructure:"pages" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// PublicURL prefixes download URLs reported by status queries.
	// When empty, URLs are relative to the server root.
	PublicURL string `mapstructure:"public_url" validate:"omitempty,url"`
}

// DatabaseConfig contains all task store settings.
type DatabaseConfig struct {
	// Driver selects the task store: "postgres" or "memory".
	// The memory store loses every task on restart and is meant for development.
	Driver       string `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL          string `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

// TaskConfig contains background rendering settings.
type TaskConfig struct {
	WorkerCount int `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize   int `mapstructure:"queue_size" validate:"gt=0"`
	// StalePendingMinutes fails tasks that stay pending longer than this.
	// Zero disables the sweeper.
	StalePendingMinutes       int `mapstructure:"stale_pending_minutes" validate:"gte=0"`
	StaleCheckIntervalSeconds int `mapstructure:"stale_check_interval_seconds" validate:"gt=0"`
}

// StalePendingAge returns StalePendingMinutes as a duration.
func (c TaskConfig) StalePendingAge() time.Duration {
	return time.Duration(c.StalePendingMinutes) * time.Minute
}

// StaleCheckInterval returns StaleCheckIntervalSeconds as a duration.
func (c TaskConfig) StaleCheckInterval() time.Duration {
	return time.Duration(c.StaleCheckIntervalSeconds) * time.Second
}

// RenderConfig contains the conversion pipeline settings.
type RenderConfig struct {
	// Formats maps a format name (the "writer" requested by clients) to its
	// converter command.
	Formats map[string]FormatConfig `mapstructure:"formats" validate:"dive"`

	// MetadataPatterns maps a metadata key to a regular expression whose first
	// capture group is taken from article text.
	MetadataPatterns map[string]string `mapstructure:"metadata_patterns"`

	// DefaultMetadata fills keys that neither the book nor the patterns provided.
	DefaultMetadata map[string]string `mapstructure:"default_metadata"`

	// DefaultFormat is used when a request names no format.
	DefaultFormat string `mapstructure:"default_format" validate:"required"`

	// CanonicalOrigin is prepended to root-relative URLs in the assembled
	// document, e.g. "https://wiki.example.org".
	CanonicalOrigin string `mapstructure:"canonical_origin" validate:"omitempty,url"`

	// TempDir holds converter input/output files. Defaults to the OS temp dir.
	TempDir string `mapstructure:"temp_dir"`

	// TimeoutSeconds caps one conversion. Zero means no limit.
	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"gte=0"`
}

// Timeout returns TimeoutSeconds as a duration.
func (c RenderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// FormatConfig describes one output format.
type FormatConfig struct {
	// Command is the converter command template with {INPUT}, {OUTPUT}
	// and {METADATA:key} placeholders.
	Command string `mapstructure:"command" validate:"required"`
	// Extension of the produced file. Defaults to the format name.
	Extension string `mapstructure:"extension" validate:"omitempty,excludesall=/"`
}

// StashConfig contains the artifact stash settings.
type StashConfig struct {
	Root string `mapstructure:"root" validate:"required"`
}

// PagesConfig contains the page source settings.
type PagesConfig struct {
	// Dir holds one Markdown file per page.
	Dir string `mapstructure:"dir" validate:"required"`
}
