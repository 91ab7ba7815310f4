package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	envConfigPath     = "DOCALIGN_CONFIG"
	defaultConfigPath = "~/.config/docalign/config.yaml"
)

// Config holds application settings.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Tasks   TasksConfig   `yaml:"tasks"`
	Storage StorageConfig `yaml:"storage"`
	OCR     OCRConfig     `yaml:"ocr"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// TasksConfig sizes the task pool.
type TasksConfig struct {
	Workers int `yaml:"workers"`
}

// StorageConfig locates the run log. An empty path disables it.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// OCRConfig configures the tesseract interpreter.
type OCRConfig struct {
	Language string `yaml:"language"`
}

// Load reads the file named by DOCALIGN_CONFIG, or the default path.
// A missing file yields the defaults.
func Load() (*Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = defaultConfigPath
	}
	return LoadFile(path)
}

// LoadFile reads settings from path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	expanded, err := expandUser(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "decode config %s", expanded)
	}
	if cfg.Tasks.Workers < 1 {
		return nil, errors.Errorf("config %s: tasks.workers must be positive, got %d", expanded, cfg.Tasks.Workers)
	}
	return cfg, nil
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Tasks:   TasksConfig{Workers: 2},
		OCR:     OCRConfig{Language: "eng"},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
