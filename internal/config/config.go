package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMemTableCap     = 1000
	DefaultMaxSSTables     = 5
	DefaultRecordCacheSize = 256
	DefaultBloomBitsPerKey = 10
)

// Config carries the engine's tunables. Dir is the only required field.
type Config struct {
	Dir             string `yaml:"dir"`
	MemTableCap     int    `yaml:"memtable_cap"`
	MaxSSTables     int    `yaml:"max_sstables"`
	RecordCacheSize int    `yaml:"record_cache_size"`
	BloomBitsPerKey int    `yaml:"bloom_bits_per_key"`
	LogLevel        string `yaml:"log_level"`
	LogFile         string `yaml:"log_file"`
}

type Option func(*Config)

func WithMemTableCap(n int) Option     { return func(c *Config) { c.MemTableCap = n } }
func WithMaxSSTables(n int) Option     { return func(c *Config) { c.MaxSSTables = n } }
func WithRecordCacheSize(n int) Option { return func(c *Config) { c.RecordCacheSize = n } }
func WithBloomBitsPerKey(n int) Option { return func(c *Config) { c.BloomBitsPerKey = n } }

// New builds a config for the given data directory with defaults applied.
func New(dir string, opts ...Option) (*Config, error) {
	if dir == "" {
		return nil, fmt.Errorf("config: dir must not be empty")
	}
	c := &Config{
		Dir:             dir,
		MemTableCap:     DefaultMemTableCap,
		MaxSSTables:     DefaultMaxSSTables,
		RecordCacheSize: DefaultRecordCacheSize,
		BloomBitsPerKey: DefaultBloomBitsPerKey,
		LogLevel:        "info",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FromFile loads a YAML config file. Missing fields fall back to defaults.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw Config
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c, err := New(raw.Dir)
	if err != nil {
		return nil, err
	}
	if raw.MemTableCap > 0 {
		c.MemTableCap = raw.MemTableCap
	}
	if raw.MaxSSTables > 0 {
		c.MaxSSTables = raw.MaxSSTables
	}
	if raw.RecordCacheSize > 0 {
		c.RecordCacheSize = raw.RecordCacheSize
	}
	if raw.BloomBitsPerKey > 0 {
		c.BloomBitsPerKey = raw.BloomBitsPerKey
	}
	if raw.LogLevel != "" {
		c.LogLevel = raw.LogLevel
	}
	c.LogFile = raw.LogFile
	return c, nil
}
