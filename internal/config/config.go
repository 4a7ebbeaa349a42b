package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"stageline/internal/domain"
)

// Config models stageline.yml (or stageline.toml).
type Config struct {
	Attention Attention `yaml:"attention" toml:"attention" json:"attention"`
	Log       Log       `yaml:"log" toml:"log" json:"log"`
	Server    Server    `yaml:"server" toml:"server" json:"server"`
}

// Attention holds the stale-item thresholds. Days below WarningDays are NONE,
// days below DangerDays are WARNING, anything else is DANGER.
type Attention struct {
	WarningDays  int      `yaml:"warning_days" toml:"warning_days" json:"warning_days"`
	DangerDays   int      `yaml:"danger_days" toml:"danger_days" json:"danger_days"`
	ActiveStages []string `yaml:"active_stages" toml:"active_stages" json:"active_stages"`
}

type Log struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

type Server struct {
	Addr      string `yaml:"addr" toml:"addr" json:"addr"`
	BasePath  string `yaml:"base_path" toml:"base_path" json:"base_path"`
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret" json:"-"`
}

const (
	yamlName = "stageline.yml"
	tomlName = "stageline.toml"
)

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Attention.WarningDays <= 0 {
		return fmt.Errorf("config.attention.warning_days must be positive")
	}
	if c.Attention.DangerDays <= c.Attention.WarningDays {
		return fmt.Errorf("config.attention.danger_days must be greater than warning_days")
	}
	if len(c.Attention.ActiveStages) == 0 {
		return fmt.Errorf("config.attention.active_stages is required")
	}
	for _, s := range c.Attention.ActiveStages {
		if _, err := domain.ParseStage(s); err != nil {
			return fmt.Errorf("config.attention.active_stages: %w", err)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config.log.level: unsupported value %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("config.log.format: unsupported value %q", c.Log.Format)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	return nil
}

// Stages returns the parsed active stages. Call after Validate.
func (a Attention) Stages() []domain.Stage {
	out := make([]domain.Stage, 0, len(a.ActiveStages))
	for _, s := range a.ActiveStages {
		if st, err := domain.ParseStage(s); err == nil {
			out = append(out, st)
		}
	}
	return out
}

// Path returns the YAML config path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, yamlName)
}

// Load reads the workspace config. YAML wins over TOML when both exist; with
// neither present the defaults apply.
func Load(workspace string) (*Config, string, error) {
	if workspace == "" {
		workspace = "."
	}
	for _, name := range []string{yamlName, tomlName} {
		path := filepath.Join(workspace, name)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, "", err
		}
		cfg, err := FromFile(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	return Default(), "", nil
}

// FromFile picks the decoder from the file extension.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FromTOML(data)
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep
// their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func FromTOML(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
		return nil, fmt.Errorf("invalid config toml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// TOML renders c as TOML, for `config show --format toml`.
func (c *Config) TOML() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

const defaultTemplate = `attention:
  # days in the current stage before an item is flagged
  warning_days: 7
  danger_days: 14
  active_stages: [BACKLOG, PLANNED, IN_DEVELOPMENT, CODE_REVIEW, QA, READY_FOR_PROD]

log:
  level: info
  format: console

server:
  addr: 127.0.0.1:8080
  base_path: /v0
`
