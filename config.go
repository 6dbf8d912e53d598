package freelan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/wippyai/freelan-binding/native"
)

// Default configuration values
const (
	DefaultLogLevel   = "information"
	DefaultStackDepth = 16
	MaxStackDepth     = 64
)

// Config holds all configuration for a Binding.
type Config struct {
	Heap   HeapConfig   `toml:"heap"`
	Log    LogConfig    `toml:"log"`
	Memory MemoryConfig `toml:"memory"`
}

// HeapConfig sizes the native heap in 64 KiB pages.
type HeapConfig struct {
	// InitialPages is the number of pages committed at open
	InitialPages uint32 `toml:"initial_pages"`
	// MaxPages bounds heap growth; allocations beyond it fail
	MaxPages uint32 `toml:"max_pages"`
}

// LogConfig controls the native log bridge.
type LogConfig struct {
	// Level is the native threshold (trace, debug, information, important,
	// warning, error, fatal)
	Level string `toml:"level"`
	// Bridge forwards native log entries to the binding logger
	Bridge bool `toml:"bridge"`
}

// MemoryConfig controls allocator instrumentation.
type MemoryConfig struct {
	// Track installs a memory ledger before anything is allocated
	Track bool `toml:"track"`
	// Stacks records a Go stack with every tracked allocation
	Stacks bool `toml:"stacks"`
	// StackDepth is the number of frames kept when Stacks is set
	StackDepth int `toml:"stack_depth"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Heap: HeapConfig{
			InitialPages: native.DefaultInitialPages,
			MaxPages:     native.DefaultMaxPages,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Bridge: true,
		},
		Memory: MemoryConfig{
			StackDepth: DefaultStackDepth,
		},
	}
}

// LoadConfig reads configuration from a TOML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a TOML file.
// It creates the parent directory if it doesn't exist.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Heap.InitialPages == 0 {
		return errors.New("heap.initial_pages must be at least 1")
	}
	if c.Heap.MaxPages == 0 || c.Heap.MaxPages > native.MaxPages {
		return fmt.Errorf("heap.max_pages must be between 1 and %d", native.MaxPages)
	}
	if c.Heap.InitialPages > c.Heap.MaxPages {
		return errors.New("heap.initial_pages must not exceed heap.max_pages")
	}
	if _, err := native.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Memory.Stacks && (c.Memory.StackDepth < 1 || c.Memory.StackDepth > MaxStackDepth) {
		return fmt.Errorf("memory.stack_depth must be between 1 and %d", MaxStackDepth)
	}
	return nil
}

func (c *Config) nativeConfig() native.Config {
	level, _ := native.ParseLogLevel(c.Log.Level)
	return native.Config{
		Heap: native.HeapConfig{
			InitialPages: c.Heap.InitialPages,
			MaxPages:     c.Heap.MaxPages,
		},
		LogLevel: level,
	}
}
