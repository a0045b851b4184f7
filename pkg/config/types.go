package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the root engine configuration, loaded from YAML and overlaid
// with environment variables (env > file > defaults); there is no
// command-line flag layer.
type Config struct {
	Index      IndexConfig      `yaml:"index"`
	Tokenizer  TokenizerConfig  `yaml:"tokenizer"`
	Maintainer MaintainerConfig `yaml:"maintainer"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// IndexConfig controls where and how the positional index is opened.
type IndexConfig struct {
	DataPath           string    `yaml:"data_path"`
	UseSecondaryIndex  bool      `yaml:"use_secondary_index"`
	BlockCacheSize     SizeBytes `yaml:"block_cache_size"`
	BlockCacheLifetime Duration  `yaml:"block_cache_lifetime"`
}

// TokenizerConfig controls the default word tokenizer.
type TokenizerConfig struct {
	MinLength    int      `yaml:"min_length"`
	IncludeDigits bool    `yaml:"include_digits"`
	StopWords    []string `yaml:"stop_words"`
	FoldDiacritics bool   `yaml:"fold_diacritics"`
	CaseFold     bool     `yaml:"case_fold"`
}

// MaintainerConfig controls the background maintenance scheduler.
type MaintainerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Cron      string `yaml:"cron"`
	ScanRPS   float64 `yaml:"scan_rps"`
	ScanBurst int    `yaml:"scan_burst"`
}

// LoggingConfig controls the package-global logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Sink  string `yaml:"sink"`
}

// Default returns the configuration the engine uses when nothing else is
// supplied, matching the defaults described in spec.md §4.1 and §6.
func Default() Config {
	return Config{
		Index: IndexConfig{
			DataPath:           "./.ftsdata",
			UseSecondaryIndex:  true,
			BlockCacheSize:     SizeBytes(64 * 1024 * 1024),
			BlockCacheLifetime: Duration(5 * time.Minute),
		},
		Tokenizer: TokenizerConfig{
			MinLength:      3,
			IncludeDigits:  true,
			FoldDiacritics: true,
			CaseFold:       true,
		},
		Maintainer: MaintainerConfig{
			Enabled:   true,
			Cron:      "*/5 * * * *",
			ScanRPS:   2000,
			ScanBurst: 500,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// SizeBytes is a number of bytes, unmarshaled from human-friendly strings
// like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration wraps time.Duration for YAML parsing from strings like "100ms"
// or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
