// Package config loads persistent ringlog defaults from YAML files and the
// environment.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds persistent defaults loaded from config files.
type Config struct {
	Serve  ServeConfig  `yaml:"serve"`
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`
}

// ServeConfig holds server defaults. Sizes and durations are kept as
// strings and parsed by the command that uses them.
type ServeConfig struct {
	Listen      string `yaml:"listen"`
	Capacity    string `yaml:"capacity"`
	Target      string `yaml:"target"`
	File        string `yaml:"file"`
	Device      string `yaml:"device"`
	ArchiveDir  string `yaml:"archive_dir"`
	Echo        *bool  `yaml:"echo"`
	Heartbeat   string `yaml:"heartbeat"`
	MaxPacket   string `yaml:"max_packet"`
	AdminListen string `yaml:"admin_listen"`
	Audit       string `yaml:"audit"`
}

// ClientConfig holds defaults for the send and seek commands.
type ClientConfig struct {
	Addr    string `yaml:"addr"`
	Timeout string `yaml:"timeout"`
}

// LogConfig holds diagnostic logging defaults.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from ~/.ringlog/config.yaml then CWD .ringlog.yaml.
// CWD config values override home config. Missing files are not errors.
// Environment variables (RINGLOG_*) override config file values.
func Load() *Config {
	cfg := &Config{}

	if home, err := os.UserHomeDir(); err == nil {
		_ = loadFile(filepath.Join(home, ".ringlog", "config.yaml"), cfg)
	}
	_ = loadFile(".ringlog.yaml", cfg)

	applyEnv(cfg)
	return cfg
}

// LoadFrom reads config from a specific path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	str := map[string]*string{
		"RINGLOG_LISTEN":       &cfg.Serve.Listen,
		"RINGLOG_CAPACITY":     &cfg.Serve.Capacity,
		"RINGLOG_TARGET":       &cfg.Serve.Target,
		"RINGLOG_FILE":         &cfg.Serve.File,
		"RINGLOG_DEVICE":       &cfg.Serve.Device,
		"RINGLOG_ARCHIVE_DIR":  &cfg.Serve.ArchiveDir,
		"RINGLOG_HEARTBEAT":    &cfg.Serve.Heartbeat,
		"RINGLOG_MAX_PACKET":   &cfg.Serve.MaxPacket,
		"RINGLOG_ADMIN_LISTEN": &cfg.Serve.AdminListen,
		"RINGLOG_AUDIT":        &cfg.Serve.Audit,
		"RINGLOG_ADDR":         &cfg.Client.Addr,
		"RINGLOG_TIMEOUT":      &cfg.Client.Timeout,
		"RINGLOG_LOG_LEVEL":    &cfg.Log.Level,
		"RINGLOG_LOG_FORMAT":   &cfg.Log.Format,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("RINGLOG_ECHO"); v != "" {
		echo := strings.EqualFold(v, "true") || v == "1"
		cfg.Serve.Echo = &echo
	}
}
