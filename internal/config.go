package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ocrlabel/internal/api"
	"github.com/starford/ocrlabel/internal/cursor"
	"github.com/starford/ocrlabel/internal/labelservice"
	"github.com/starford/ocrlabel/internal/selector"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Dataset  DatasetConfig     `yaml:"dataset"`
	Cursor   CursorConfig      `yaml:"cursor"`
	Selector SelectorConfig    `yaml:"selector"`
	Labeling LabelingConfig    `yaml:"labeling"`
	Ledger   LedgerConfig      `yaml:"ledger"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.Dataset, &c.Cursor, &c.Selector, &c.Labeling, &c.Ledger, &c.Auth,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile, when set, receives a copy of every log line.
	LogFile string     `yaml:"log_file"`
	HTTP    HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DatasetConfig points at the images to label and where labeled copies go.
type DatasetConfig struct {
	DataDir    string `yaml:"data_dir"`
	LabeledDir string `yaml:"labeled_dir"`
}

// Validate validates the dataset configuration.
func (c *DatasetConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.LabeledDir, validation.Required),
	)
}

// CursorConfig holds cursor file options.
type CursorConfig struct {
	Overflow cursor.Overflow `yaml:"overflow"`
}

// Validate validates the cursor configuration.
func (c *CursorConfig) Validate() error {
	if c.Overflow == "" {
		c.Overflow = cursor.OverflowClamp
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Overflow, validation.In(cursor.OverflowClamp, cursor.OverflowWrap)),
	)
}

// SelectorConfig picks the next-image strategy.
type SelectorConfig struct {
	Kind         string        `yaml:"kind"`
	CacheTimeout time.Duration `yaml:"cache_timeout"`
	// WatchLabeled marks images labeled by other processes as done.
	WatchLabeled bool `yaml:"watch_labeled"`
}

// Validate validates the selector configuration.
func (c *SelectorConfig) Validate() error {
	if c.Kind == "" {
		c.Kind = selector.KindSnapshot
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Kind, validation.In(selector.KindSnapshot, selector.KindWindowed)),
		validation.Field(&c.CacheTimeout, validation.Min(time.Duration(0))),
	)
}

// LabelingConfig holds labeling limits.
type LabelingConfig struct {
	TextMaxLen int `yaml:"text_max_len"`
}

// Validate validates the labeling configuration.
func (c *LabelingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TextMaxLen, validation.Required, validation.Min(1)),
	)
}

// LedgerConfig holds the SQLite label ledger location.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the ledger configuration.
func (c *LedgerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
//   - "basic": HTTP basic auth; Username and a bcrypt PasswordHash are required.
type AuthConfig struct {
	Mode         string `yaml:"mode"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Token        string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = api.AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required,
			validation.In(api.AuthModeDisabled, api.AuthModeToken, api.AuthModeBasic)),
	); err != nil {
		return err
	}
	switch c.Mode {
	case api.AuthModeToken:
		if c.Token == "" {
			return fmt.Errorf("auth: mode is %q but token is empty", api.AuthModeToken)
		}
	case api.AuthModeBasic:
		if err := validation.ValidateStruct(c,
			validation.Field(&c.Username, validation.Required),
			validation.Field(&c.PasswordHash, validation.Required),
		); err != nil {
			return fmt.Errorf("auth: mode is %q: %w", api.AuthModeBasic, err)
		}
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode != api.AuthModeDisabled
}

// Options converts the config to router options.
func (c *AuthConfig) Options() api.AuthOptions {
	return api.AuthOptions{
		Mode:         c.Mode,
		Username:     c.Username,
		PasswordHash: c.PasswordHash,
		Token:        c.Token,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 5000,
			},
		},
		Dataset: DatasetConfig{
			DataDir:    "./data",
			LabeledDir: "./labeled",
		},
		Cursor: CursorConfig{
			Overflow: cursor.OverflowClamp,
		},
		Selector: SelectorConfig{
			Kind:         selector.KindSnapshot,
			CacheTimeout: selector.DefaultCacheTimeout,
		},
		Labeling: LabelingConfig{
			TextMaxLen: labelservice.DefaultTextMaxLen,
		},
		Ledger: LedgerConfig{
			Path: "./ocrlabel.db",
		},
		Auth: AuthConfig{
			Mode: api.AuthModeDisabled,
		},
	}
}
