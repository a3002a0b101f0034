package config

import (
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v10"
)

// ClientConfig agrupa la configuración del cliente de terminal.
type ClientConfig struct {
	APIURL              string `env:"CHAT_API_URL" envDefault:"http://localhost:8080"`
	StatePath           string `env:"CHAT_STATE_PATH"`
	DirectoryMaxEntries int    `env:"CHAT_DIRECTORY_MAX_ENTRIES" envDefault:"0"`
}

// LoadClientConfig carga la configuración del cliente; StatePath cae en
// $HOME/.config/minichat/state.db si no se define.
func LoadClientConfig() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.StatePath == "" {
		cfg.StatePath = DefaultStatePath()
	}
	return &cfg, nil
}

func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "minichat-state.db"
	}
	return filepath.Join(home, ".config", "minichat", "state.db")
}
