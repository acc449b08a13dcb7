package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-memory/engine/core"
	"github.com/spaghettifunk/anima-memory/engine/memory"
)

var ErrInvalidConfig = errors.New("config: invalid")

const (
	HeapGo   = "go"
	HeapMmap = "mmap"
)

// Config is the memory subsystem configuration file.
type Config struct {
	LogLevel  string          `toml:"log_level"`
	Allocator AllocatorConfig `toml:"allocator"`
	IdPool    IdPoolConfig    `toml:"id_pool"`
	Testbed   TestbedConfig   `toml:"testbed"`
}

type AllocatorConfig struct {
	Name string `toml:"name"`
	// Heap selects the backing heap: "go" or "mmap".
	Heap string `toml:"heap"`
	// Budgets is the byte budget of each size class.
	Budgets    []int  `toml:"budgets"`
	Exhaustion string `toml:"exhaustion"`
	DebugFill  bool   `toml:"debug_fill"`
}

type IdPoolConfig struct {
	// MaxID of zero means no limit.
	MaxID uint32 `toml:"max_id"`
	Grow  uint32 `toml:"grow"`
}

type TestbedConfig struct {
	Workers        int      `toml:"workers"`
	Duration       Duration `toml:"duration"`
	ReportInterval Duration `toml:"report_interval"`
	// MaxLive bounds the blocks each worker holds at once.
	MaxLive int `toml:"max_live"`
}

// Duration reads and writes time.Duration as a TOML string such as "500ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Allocator: AllocatorConfig{
			Name:       "general",
			Heap:       HeapGo,
			Budgets:    append([]int(nil), memory.DefaultBudgets[:]...),
			Exhaustion: memory.ExhaustionFatal.String(),
		},
		IdPool: IdPoolConfig{
			Grow: 512,
		},
		Testbed: TestbedConfig{
			Workers:        4,
			Duration:       Duration{2 * time.Second},
			ReportInterval: Duration{500 * time.Millisecond},
			MaxLive:        64,
		},
	}
}

// Load reads path over the defaults. Keys the file omits keep their default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var sm *toml.StrictMissingError
		if errors.As(err, &sm) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, sm.String())
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level %q: %w", c.LogLevel, err))
	}
	if c.Allocator.Heap != HeapGo && c.Allocator.Heap != HeapMmap {
		errs = append(errs, fmt.Errorf("allocator.heap %q: want %q or %q", c.Allocator.Heap, HeapGo, HeapMmap))
	}
	if len(c.Allocator.Budgets) != memory.NumSizeClasses {
		errs = append(errs, fmt.Errorf("allocator.budgets: want %d entries, got %d", memory.NumSizeClasses, len(c.Allocator.Budgets)))
	} else {
		for i, b := range c.Allocator.Budgets {
			if stride := memory.SizeClassStride * (i + 1); b < stride {
				errs = append(errs, fmt.Errorf("allocator.budgets[%d]: %d bytes is below one %d-byte block", i, b, stride))
			}
		}
	}
	if _, err := c.Allocator.Policy(); err != nil {
		errs = append(errs, err)
	}
	if c.Testbed.Workers < 1 {
		errs = append(errs, fmt.Errorf("testbed.workers: must be positive, got %d", c.Testbed.Workers))
	}
	if c.Testbed.MaxLive < 1 {
		errs = append(errs, fmt.Errorf("testbed.max_live: must be positive, got %d", c.Testbed.MaxLive))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (c *Config) Level() core.LogLevel {
	l, _ := core.ParseLogLevel(c.LogLevel)
	return l
}

func (a AllocatorConfig) Policy() (memory.ExhaustionPolicy, error) {
	switch a.Exhaustion {
	case "", memory.ExhaustionFatal.String():
		return memory.ExhaustionFatal, nil
	case memory.ExhaustionFallback.String():
		return memory.ExhaustionFallback, nil
	default:
		return memory.ExhaustionFatal, fmt.Errorf("allocator.exhaustion %q: want %q or %q", a.Exhaustion, memory.ExhaustionFatal, memory.ExhaustionFallback)
	}
}

// BudgetArray converts the validated budgets to the allocator's fixed array.
func (a AllocatorConfig) BudgetArray() [memory.NumSizeClasses]int {
	var out [memory.NumSizeClasses]int
	copy(out[:], a.Budgets)
	return out
}
