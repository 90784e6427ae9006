package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const dataDirEnv = "CCHLAYER_DATA_DIR"

type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	NetworkName    string `toml:"NetworkName"`
	Environment    string `toml:"Environment"`
	JournalDepth   int64  `toml:"JournalDepth"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists. The data directory may be overridden via CCHLAYER_DATA_DIR.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg, path)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config, path string) {
	if env := strings.TrimSpace(os.Getenv(dataDirEnv)); env != "" {
		cfg.DataDir = env
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = filepath.Join(filepath.Dir(path), "data")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:9332"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = "127.0.0.1:9333"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "cch-main"
	}
	if cfg.JournalDepth == 0 {
		cfg.JournalDepth = 128
	}
}

func validate(cfg *Config) error {
	if cfg.JournalDepth < 0 {
		return fmt.Errorf("config: JournalDepth must be positive, got %d", cfg.JournalDepth)
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg, path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
