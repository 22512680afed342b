// Package config loads the YAML settings file shared by the CLI and the
// web server.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cassowary-ai/sidekick/pkg/chat"
	"github.com/cassowary-ai/sidekick/pkg/redisstream"
)

// Limits mirror chat.Limits in the settings file; values are thousands of
// characters, 128 disables truncation.
type Limits struct {
	Web    int `yaml:"web"`
	Page   int `yaml:"page"`
	Scrape int `yaml:"scrape"`
}

type Config struct {
	Mode         string            `yaml:"mode"`
	ComputeLevel string            `yaml:"compute_level"`
	Backend      string            `yaml:"backend"`
	Model        string            `yaml:"model"`
	APIKey       string            `yaml:"api_key"`
	Endpoints    map[string]string `yaml:"endpoints"`
	SearchURL    string            `yaml:"search_url"`

	Persona       string `yaml:"persona"`
	Profile       string `yaml:"profile"`
	Note          string `yaml:"note"`
	Limits        Limits `yaml:"limits"`
	HistoryWindow int    `yaml:"history_window"`

	Listen string               `yaml:"listen"`
	Redis  redisstream.Settings `yaml:"redis"`
}

func Default() Config {
	return Config{
		Mode:    string(chat.ModeChat),
		Backend: "default",
		Model:   "sidekick-mini",
		Endpoints: map[string]string{
			"default": "http://localhost:8099/v1/chat",
		},
		Limits:        Limits{Web: 5, Page: 5, Scrape: 5},
		HistoryWindow: 20,
		Listen:        ":8089",
		Redis:         redisstream.DefaultSettings(),
	}
}

// Load reads path over the defaults. A missing file yields the defaults;
// SIDEKICK_API_KEY overrides the file's api_key either way.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, errors.Wrapf(err, "parse config %s", path)
			}
		case os.IsNotExist(err):
			// fall through to defaults
		default:
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}
	if key := os.Getenv("SIDEKICK_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch chat.ChatMode(c.Mode) {
	case chat.ModeChat, chat.ModeWeb, chat.ModePage:
	default:
		return errors.Wrapf(chat.ErrConfig, "unknown chat mode %q", c.Mode)
	}
	switch chat.ComputeLevel(c.ComputeLevel) {
	case chat.ComputeDefault, chat.ComputeMedium, chat.ComputeHigh:
	default:
		return errors.Wrapf(chat.ErrConfig, "unknown compute level %q", c.ComputeLevel)
	}
	if len(c.Endpoints) == 0 {
		return errors.Wrap(chat.ErrConfig, "no backend endpoints configured")
	}
	return nil
}

// ChatOptions converts the file settings into session options.
func (c Config) ChatOptions() chat.Options {
	return chat.Options{
		Mode:         chat.ChatMode(c.Mode),
		ComputeLevel: chat.ComputeLevel(c.ComputeLevel),
		Backend:      c.Backend,
		Model:        c.Model,
		Auth:         chat.AuthContext{APIKey: c.APIKey},
		Persona:      c.Persona,
		Profile:      c.Profile,
		Note:         c.Note,
		Limits: chat.Limits{
			Web:    c.Limits.Web,
			Page:   c.Limits.Page,
			Scrape: c.Limits.Scrape,
		},
		HistoryWindow: c.HistoryWindow,
	}
}
