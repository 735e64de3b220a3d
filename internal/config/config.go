// Package config loads the credkeeper.yaml definition: which storage
// backend holds the credentials, where state lives, and the rotation
// policy for every managed credential type.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	ckerrors "github.com/systmms/credkeeper/internal/errors"
	"github.com/systmms/credkeeper/internal/logging"
	"github.com/systmms/credkeeper/internal/policy"
)

// DefaultPath is where the CLI looks for the definition file.
const DefaultPath = "credkeeper.yaml"

// Config holds the runtime configuration
type Config struct {
	Path           string
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition
}

// Definition represents the credkeeper.yaml structure
type Definition struct {
	Version  int                       `yaml:"version" json:"version"`
	DataDir  string                    `yaml:"data_dir,omitempty" json:"data_dir,omitempty"`
	Store    StoreConfig               `yaml:"store" json:"store"`
	Breach   BreachConfig              `yaml:"breach,omitempty" json:"breach,omitempty"`
	Policies []policy.CredentialPolicy `yaml:"policies" json:"policies"`
}

// StoreConfig selects and configures the storage backend
type StoreConfig struct {
	Backend string `yaml:"backend" json:"backend"`

	// Path is the env file location for the envfile backend.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// Service is the keychain service name for the keyring backend.
	Service string `yaml:"service,omitempty" json:"service,omitempty"`

	// URL and Prefix configure the redis backend.
	URL    string `yaml:"url,omitempty" json:"url,omitempty"`
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// BreachConfig configures the breach corpus lookup
type BreachConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	TimeoutMs int    `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
	Disabled  bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Timeout returns the lookup timeout, defaulting to five seconds.
func (b BreachConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// Load reads and parses the credkeeper.yaml file
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return ckerrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Run 'credkeeper init' to create a new configuration file",
			}
		}
		return ckerrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	if err := validateSchema(data); err != nil {
		return err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return ckerrors.ConfigError{
			Field:      "yaml",
			Message:    "invalid YAML syntax",
			Suggestion: err.Error(),
		}
	}

	def.applyDefaults(filepath.Dir(c.Path))

	for _, p := range def.Policies {
		if err := p.Validate(); err != nil {
			return ckerrors.ConfigError{
				Field:      "policies",
				Value:      p.TypeID,
				Message:    err.Error(),
				Suggestion: "Fix the policy entry in " + c.Path,
			}
		}
	}

	c.Definition = &def
	return nil
}

func (d *Definition) applyDefaults(baseDir string) {
	if d.DataDir == "" {
		d.DataDir = filepath.Join(baseDir, ".credkeeper")
	}
	if d.Store.Backend == "" {
		d.Store.Backend = "envfile"
	}
	if d.Store.Backend == "envfile" && d.Store.Path == "" {
		d.Store.Path = filepath.Join(baseDir, ".env")
	}
	if d.Store.Backend == "keyring" && d.Store.Service == "" {
		d.Store.Service = "credkeeper"
	}
	if d.Store.Backend == "redis" && d.Store.Prefix == "" {
		d.Store.Prefix = "credkeeper"
	}
}

// AuditDir returns where audit records are written.
func (d *Definition) AuditDir() string {
	return filepath.Join(d.DataDir, "audit")
}

// ReportDir returns where saved expiration reports land.
func (d *Definition) ReportDir() string {
	return filepath.Join(d.DataDir, "reports")
}

// validateSchema checks the raw YAML document against the embedded JSON
// schema. Validating before decoding into the struct catches misspelled
// and unknown keys that the struct decode would silently drop.
func validateSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ckerrors.ConfigError{
			Field:      "yaml",
			Message:    "invalid YAML syntax",
			Suggestion: err.Error(),
		}
	}

	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(definitionSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return ckerrors.ConfigError{
			Field:      "schema",
			Message:    "configuration does not match expected structure:\n  - " + strings.Join(messages, "\n  - "),
			Suggestion: "Compare your file with the output of 'credkeeper init'",
		}
	}
	return nil
}

// DefaultDefinition returns the configuration written by 'credkeeper init'.
func DefaultDefinition() *Definition {
	return &Definition{
		Version: 1,
		Store:   StoreConfig{Backend: "envfile", Path: ".env"},
		Breach:  BreachConfig{TimeoutMs: 5000},
		Policies: []policy.CredentialPolicy{
			{
				TypeID:               "API_KEY",
				RotationIntervalDays: 90,
				WarningDays:          30,
				MinLength:            32,
				Complexity:           policy.ComplexityMedium,
			},
			{
				TypeID:               "DB_PASSWORD",
				RotationIntervalDays: 90,
				WarningDays:          30,
				MinLength:            16,
				Complexity:           policy.ComplexityHigh,
				RequiresSecondFactor: true,
				Crucial:              true,
				PasswordLike:         true,
			},
			{
				TypeID:               "SECRET_TOKEN",
				RotationIntervalDays: 90,
				WarningDays:          30,
				MinLength:            24,
				Complexity:           policy.ComplexityVeryHigh,
				RequiresSecondFactor: true,
				Crucial:              true,
			},
			{
				TypeID:               "MAIL_API_KEY",
				RotationIntervalDays: 90,
				WarningDays:          30,
				MinLength:            24,
				Complexity:           policy.ComplexityMedium,
			},
			{
				TypeID:               "LOGGING_API_KEY",
				RotationIntervalDays: 90,
				WarningDays:          30,
				MinLength:            24,
				Complexity:           policy.ComplexityMedium,
			},
			{
				TypeID:               "SESSION_TOKEN",
				RotationIntervalDays: 30,
				WarningDays:          7,
				MinLength:            32,
				Complexity:           policy.ComplexityNone,
			},
		},
	}
}

// WriteDefault writes the default definition to path. Refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return ckerrors.ConfigError{
			Field:      "path",
			Value:      path,
			Message:    "configuration file already exists",
			Suggestion: "Remove it first if you want to start over",
		}
	}

	data, err := yaml.Marshal(DefaultDefinition())
	if err != nil {
		return fmt.Errorf("failed to marshal default configuration: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
