package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/magiconair/properties"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Server ServerConfig `json:"server" yaml:"server"`
	Admin  AdminConfig  `json:"admin" yaml:"admin"`
	WAL    WALConfig    `json:"wal" yaml:"wal"`
	Log    LogConfig    `json:"log" yaml:"log"`
	Drain  bool         `json:"drain" yaml:"drain"`
}

// ServerConfig controls the beanstalkd protocol listener.
type ServerConfig struct {
	Bind string `json:"bind" yaml:"bind"`
	Port int    `json:"port" yaml:"port"`
}

// AdminConfig controls the HTTP admin/metrics listener. Port 0 disables it.
type AdminConfig struct {
	Bind string `json:"bind" yaml:"bind"`
	Port int    `json:"port" yaml:"port"`
}

// WALConfig controls the write-ahead log.
type WALConfig struct {
	Enable bool   `json:"enable" yaml:"enable"`
	Dir    string `json:"dir" yaml:"dir"`
	Files  int    `json:"files" yaml:"files"`
	Fsync  bool   `json:"fsync" yaml:"fsync"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 11300},
		Admin:  AdminConfig{Port: 0},
		WAL: WALConfig{
			Enable: false,
			Dir:    "./wal",
			Files:  8,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a properties, YAML, or JSON file (by
// extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse yaml config: %w", err)
		}
	case ".json":
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse json config: %w", err)
		}
	default:
		// The documented CLI contract is a properties file; treat unknown
		// extensions as properties too.
		p, err := properties.LoadFile(path, properties.UTF8)
		if err != nil {
			return Config{}, fmt.Errorf("parse properties config: %w", err)
		}
		fromProperties(p, &cfg)
	}
	return cfg, nil
}

// fromProperties overlays flat dotted keys onto cfg.
func fromProperties(p *properties.Properties, cfg *Config) {
	cfg.Server.Bind = p.GetString("server.bind", cfg.Server.Bind)
	cfg.Server.Port = p.GetInt("server.port", cfg.Server.Port)
	cfg.Admin.Bind = p.GetString("admin.bind", cfg.Admin.Bind)
	cfg.Admin.Port = p.GetInt("admin.port", cfg.Admin.Port)
	cfg.WAL.Enable = p.GetBool("wal.enable", cfg.WAL.Enable)
	cfg.WAL.Dir = p.GetString("wal.dir", cfg.WAL.Dir)
	cfg.WAL.Files = p.GetInt("wal.files", cfg.WAL.Files)
	cfg.WAL.Fsync = p.GetBool("wal.fsync", cfg.WAL.Fsync)
	cfg.Log.Level = p.GetString("log.level", cfg.Log.Level)
	cfg.Log.Format = p.GetString("log.format", cfg.Log.Format)
	cfg.Drain = p.GetBool("drain", cfg.Drain)
}

// ServerAddr returns the protocol listener address in host:port form.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// AdminAddr returns the admin listener address, or "" when disabled.
func (c Config) AdminAddr() string {
	if c.Admin.Port <= 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Admin.Bind, c.Admin.Port)
}
