// Package config provides configuration management for patchwatch.
// It supports YAML and TOML configuration files, environment variables,
// and sensible defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/prostopil/patchwatch/internal/mapping"
	"github.com/prostopil/patchwatch/internal/policy"
)

// ErrFatalConfig wraps malformed policy/mapping configuration detected
// on load. It halts monitoring and is surfaced through the control
// surface status, never by crashing the process.
var ErrFatalConfig = errors.New("fatal configuration error")

// Config represents the complete patchwatch configuration.
type Config struct {
	// Watch configures the local folder being monitored.
	Watch WatchConfig `yaml:"watch" toml:"watch"`

	// Remote configures the GitLab repository transport.
	Remote RemoteConfig `yaml:"remote" toml:"remote"`

	// Policy configures the automation axes.
	Policy policy.Policy `yaml:"policy" toml:"policy"`

	// Mappings is the ordered source→target prefix rule list. An empty
	// list selects the built-in defaults.
	Mappings []mapping.Rule `yaml:"mappings" toml:"mappings"`

	// Server configures the control surface.
	Server ServerConfig `yaml:"server" toml:"server"`
}

// WatchConfig holds watch-root settings.
type WatchConfig struct {
	// Root is the local directory tree being monitored.
	Root string `yaml:"root" toml:"root"`
	// QuietWindow is how long a file must be write-stable before its
	// event is classified.
	QuietWindow time.Duration `yaml:"quiet_window" toml:"quiet_window"`
	// StatePath is where the last-synced snapshot is persisted.
	StatePath string `yaml:"state_path" toml:"state_path"`
	// MirrorDir, when set, keeps a local copy of every synced file.
	MirrorDir string `yaml:"mirror_dir,omitempty" toml:"mirror_dir,omitempty"`
	// Workers bounds concurrent dispatches to distinct target paths.
	Workers int `yaml:"workers" toml:"workers"`
	// MaxRetries bounds dispatch attempts per intent before the failure
	// is surfaced as standing.
	MaxRetries int `yaml:"max_retries" toml:"max_retries"`
}

// RemoteConfig holds GitLab transport settings.
type RemoteConfig struct {
	// BaseURL is the GitLab instance root, e.g. http://10.19.1.20.
	BaseURL string `yaml:"base_url" toml:"base_url"`
	// Token is the private token used for API auth.
	Token string `yaml:"token" toml:"token"`
	// ProjectID identifies the target project.
	ProjectID string `yaml:"project_id" toml:"project_id"`
	// Branch is the branch committed to. Empty means main with a master
	// fallback.
	Branch string `yaml:"branch,omitempty" toml:"branch,omitempty"`
	// AuthorName and AuthorEmail attribute the commits.
	AuthorName  string `yaml:"author_name" toml:"author_name"`
	AuthorEmail string `yaml:"author_email" toml:"author_email"`
}

// ServerConfig holds control surface settings.
type ServerConfig struct {
	// Addr is the listen address for the control surface.
	Addr string `yaml:"addr" toml:"addr"`
	// LogBuffer is how many recent log entries GET /logs can serve.
	LogBuffer int `yaml:"log_buffer" toml:"log_buffer"`
}

// Default returns the default configuration: unattended operation with
// the built-in mapping rules.
func Default() *Config {
	return &Config{
		Watch: WatchConfig{
			QuietWindow: 2 * time.Second,
			StatePath:   filepath.Join(configDir(), "snapshot.yaml"),
			Workers:     4,
			MaxRetries:  3,
		},
		Policy: policy.Default(),
		Server: ServerConfig{
			Addr:      "127.0.0.1:8085",
			LogBuffer: 512,
		},
	}
}

// configFileName is the name of the config file.
const configFileName = "config.yaml"

// configDir returns the patchwatch configuration directory.
func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".patchwatch")
}

// FilePath returns the path to the config file.
func FilePath() string {
	return filepath.Join(configDir(), configFileName)
}

// Load loads the configuration from the default file, merging with
// defaults. If the config file doesn't exist, returns default
// configuration with environment overrides applied.
func Load() (*Config, error) {
	return load(FilePath(), true)
}

// LoadFromPath loads configuration from a specific path. YAML is assumed
// unless the file has a .toml extension.
func LoadFromPath(path string) (*Config, error) {
	return load(path, false)
}

func load(path string, missingOK bool) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path comes from the operator's own config location
	data, err := os.ReadFile(path)
	if err != nil {
		if missingOK && os.IsNotExist(err) {
			cfg.applyEnvironment()
			return cfg, nil
		}
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatalConfig, err)
	}

	cfg.applyEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the default config file as YAML.
func (c *Config) Save() error {
	return c.SaveToPath(FilePath())
}

// SaveToPath writes the configuration to a specific path.
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	// #nosec G306 - config file should be readable by user
	return os.WriteFile(path, data, 0o644)
}

// Validate checks invariants that must hold before monitoring can start.
// Violations are fatal configuration errors.
func (c *Config) Validate() error {
	if c.Watch.QuietWindow < 0 {
		return fmt.Errorf("%w: quiet_window must not be negative", ErrFatalConfig)
	}
	if c.Watch.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", ErrFatalConfig)
	}
	if c.Watch.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be at least 1", ErrFatalConfig)
	}
	if _, err := mapping.NewRuleSet(c.Mappings); err != nil {
		return fmt.Errorf("%w: %v", ErrFatalConfig, err)
	}
	return nil
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern PATCHWATCH_<SECTION>_<KEY>.
func (c *Config) applyEnvironment() {
	// Watch settings
	if v := os.Getenv("PATCHWATCH_WATCH_ROOT"); v != "" {
		c.Watch.Root = v
	}
	if v := os.Getenv("PATCHWATCH_WATCH_QUIET_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Watch.QuietWindow = d
		}
	}
	if v := os.Getenv("PATCHWATCH_WATCH_STATE_PATH"); v != "" {
		c.Watch.StatePath = v
	}
	if v := os.Getenv("PATCHWATCH_WATCH_MIRROR_DIR"); v != "" {
		c.Watch.MirrorDir = v
	}

	// Remote settings
	if v := os.Getenv("PATCHWATCH_REMOTE_BASE_URL"); v != "" {
		c.Remote.BaseURL = v
	}
	if v := os.Getenv("PATCHWATCH_REMOTE_TOKEN"); v != "" {
		c.Remote.Token = v
	}
	if v := os.Getenv("PATCHWATCH_REMOTE_PROJECT_ID"); v != "" {
		c.Remote.ProjectID = v
	}
	if v := os.Getenv("PATCHWATCH_REMOTE_BRANCH"); v != "" {
		c.Remote.Branch = v
	}
	if v := os.Getenv("PATCHWATCH_REMOTE_AUTHOR_NAME"); v != "" {
		c.Remote.AuthorName = v
	}
	if v := os.Getenv("PATCHWATCH_REMOTE_AUTHOR_EMAIL"); v != "" {
		c.Remote.AuthorEmail = v
	}

	// Policy settings
	if v := os.Getenv("PATCHWATCH_POLICY_AUTO_CONFIRM"); v != "" {
		c.Policy.AutoConfirm = parseBool(v)
	}
	if v := os.Getenv("PATCHWATCH_POLICY_AUTO_SYNC"); v != "" {
		c.Policy.AutoSync = parseBool(v)
	}
	if v := os.Getenv("PATCHWATCH_POLICY_AUTO_DELETE"); v != "" {
		c.Policy.AutoDelete = parseBool(v)
	}

	// Server settings
	if v := os.Getenv("PATCHWATCH_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Exists returns true if a config file exists at the default location.
func Exists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}
