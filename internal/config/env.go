package config

import (
	"os"
	"strconv"
)

// FromEnv overlays CLOJALK_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("CLOJALK_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("CLOJALK_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("CLOJALK_ADMIN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Admin.Port = n
		}
	}
	if v := os.Getenv("CLOJALK_WAL_ENABLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.WAL.Enable = b
		}
	}
	if v := os.Getenv("CLOJALK_WAL_DIR"); v != "" {
		cfg.WAL.Dir = v
	}
	if v := os.Getenv("CLOJALK_WAL_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WAL.Files = n
		}
	}
	if v := os.Getenv("CLOJALK_WAL_FSYNC"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.WAL.Fsync = b
		}
	}
	if v := os.Getenv("CLOJALK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CLOJALK_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("CLOJALK_DRAIN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Drain = b
		}
	}
}
