package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models pressroom.yml.
type Config struct {
	Journal struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"journal"`
	Defaults struct {
		TypesettingDueDays int `yaml:"typesetting_due_days"`
		ProofingDueDays    int `yaml:"proofing_due_days"`
	} `yaml:"defaults"`
	Notifications struct {
		Webhooks []WebhookConfig `yaml:"webhooks"`
	} `yaml:"notifications"`
}

// WebhookConfig describes one notification endpoint. Events filters the
// delivered event types; empty means all.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run press init or pass --journal", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Journal.ID == "" {
		return fmt.Errorf("config.journal.id is required")
	}
	if c.Defaults.TypesettingDueDays <= 0 {
		return fmt.Errorf("config.defaults.typesetting_due_days must be positive")
	}
	if c.Defaults.ProofingDueDays <= 0 {
		return fmt.Errorf("config.defaults.proofing_due_days must be positive")
	}
	for i, hook := range c.Notifications.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
		for _, evt := range hook.Events {
			if evt == "" {
				return fmt.Errorf("webhook %d has empty event filter entry", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "pressroom.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(journalID string) string {
	return fmt.Sprintf(defaultTemplate, journalID)
}

// Default returns the default Config struct for a journal.
func Default(journalID string) *Config {
	var cfg Config
	cfg.Journal.ID = journalID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, journalID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `journal:
  id: %s
  name: ""

defaults:
  typesetting_due_days: 7
  proofing_due_days: 5

notifications:
  webhooks: []
`
