// Package config loads engine configuration from a YAML file, overlaid with
// environment variables and an optional .env file, mirroring the teacher's
// config layering (file < env, env wins) in pkg/config/config.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file at path. A missing file is not an error —
// it returns Default() so callers can run with zero external configuration.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEffective loads the config file, applies an optional .env overlay,
// then applies FTS_*-prefixed environment variable overrides, returning the
// merged result. This is the entry point engine callers are expected to use.
func LoadEffective(path string) (Config, error) {
	_ = godotenv.Load(".env")
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FTS_DATA_PATH"); v != "" {
		cfg.Index.DataPath = v
	}
	if v := os.Getenv("FTS_USE_SECONDARY_INDEX"); v != "" {
		cfg.Index.UseSecondaryIndex = parseBool(v, cfg.Index.UseSecondaryIndex)
	}
	if v := os.Getenv("FTS_BLOCK_CACHE_LIFETIME_MS"); v != "" {
		if ms, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Index.BlockCacheLifetime = Duration(int64(ms) * 1e6)
		}
	}
	if v := os.Getenv("FTS_TOKENIZER_MIN_LENGTH"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Tokenizer.MinLength = n
		}
	}
	if v := os.Getenv("FTS_TOKENIZER_INCLUDE_DIGITS"); v != "" {
		cfg.Tokenizer.IncludeDigits = parseBool(v, cfg.Tokenizer.IncludeDigits)
	}
	if v := os.Getenv("FTS_TOKENIZER_STOP_WORDS"); v != "" {
		cfg.Tokenizer.StopWords = splitList(v)
	}
	if v := os.Getenv("FTS_MAINTAINER_CRON"); v != "" {
		cfg.Maintainer.Cron = v
	}
	if v := os.Getenv("FTS_MAINTAINER_ENABLED"); v != "" {
		cfg.Maintainer.Enabled = parseBool(v, cfg.Maintainer.Enabled)
	}
	if v := os.Getenv("FTS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FTS_LOG_SINK"); v != "" {
		cfg.Logging.Sink = v
	}
}

func parseBool(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
