package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lazypower/attention/internal/budget"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all attention configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Params Params       `yaml:"params"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
	// URL is where CLI commands reach a running server.
	URL string `yaml:"url"`
}

// StoreConfig selects where the concept bag overflows to.
type StoreConfig struct {
	Backend   string   `yaml:"backend"` // "", "memory", "sqlite", "redis", "etcd"
	Path      string   `yaml:"path"`    // sqlite file; empty means the default path
	RedisURL  string   `yaml:"redis_url"`
	Endpoints []string `yaml:"endpoints"` // etcd
	Prefix    string   `yaml:"prefix"`
	Timeout   Duration `yaml:"timeout"`
	// TTL expires overflowed items nobody promoted back (redis only).
	TTL Duration `yaml:"ttl"`
}

// Params are the runtime-mutable reasoning parameters. Forget durations are
// in units of Duration; the forgetting window of a bag is
// ForgetDurations x Duration cycles.
type Params struct {
	Duration int `yaml:"duration" json:"duration"`

	ConceptForgetDurations   float64 `yaml:"concept_forget_durations" json:"concept_forget_durations"`
	TaskLinkForgetDurations  float64 `yaml:"tasklink_forget_durations" json:"tasklink_forget_durations"`
	TermLinkForgetDurations  float64 `yaml:"termlink_forget_durations" json:"termlink_forget_durations"`
	NovelTaskForgetDurations float64 `yaml:"noveltask_forget_durations" json:"noveltask_forget_durations"`

	ConceptBagSize     int `yaml:"concept_bag_size" json:"concept_bag_size"`
	ConceptBagLevels   int `yaml:"concept_bag_levels" json:"concept_bag_levels"`
	TaskLinkBagSize    int `yaml:"tasklink_bag_size" json:"tasklink_bag_size"`
	TaskLinkBagLevels  int `yaml:"tasklink_bag_levels" json:"tasklink_bag_levels"`
	TermLinkBagSize    int `yaml:"termlink_bag_size" json:"termlink_bag_size"`
	TermLinkBagLevels  int `yaml:"termlink_bag_levels" json:"termlink_bag_levels"`
	NovelTaskBagSize   int `yaml:"noveltask_bag_size" json:"noveltask_bag_size"`
	NovelTaskBagLevels int `yaml:"noveltask_bag_levels" json:"noveltask_bag_levels"`

	Merge budget.MergePolicy `yaml:"merge" json:"merge"`
	Curve budget.Curve       `yaml:"curve" json:"curve"`

	InputsMaxPerCycle     int `yaml:"inputs_max_per_cycle" json:"inputs_max_per_cycle"`
	ConceptsFiredPerCycle int `yaml:"concepts_fired_per_cycle" json:"concepts_fired_per_cycle"`

	MinTickPeriod Duration `yaml:"min_tick_period" json:"min_tick_period"`
	// Realtime switches the scheduler to a wall clock. CycleTime is the
	// expected length of one cycle; a frame longer than Duration x CycleTime
	// is reported as lag.
	Realtime  bool     `yaml:"realtime" json:"realtime"`
	CycleTime Duration `yaml:"cycle_time" json:"cycle_time"`

	// SilenceLevel filters derived output: 0 reports everything, 100 only
	// tasks with a full budget.
	SilenceLevel int    `yaml:"silence_level" json:"silence_level"`
	Seed         uint64 `yaml:"seed" json:"seed"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Store: StoreConfig{
			Prefix:  "attention",
			Timeout: Duration(2 * time.Second),
		},
		Params: DefaultParams(),
	}
}

// DefaultParams returns the reasoning defaults.
func DefaultParams() Params {
	return Params{
		Duration:                 5,
		ConceptForgetDurations:   2,
		TaskLinkForgetDurations:  4,
		TermLinkForgetDurations:  10,
		NovelTaskForgetDurations: 2,
		ConceptBagSize:           1024,
		ConceptBagLevels:         32,
		TaskLinkBagSize:          32,
		TaskLinkBagLevels:        8,
		TermLinkBagSize:          128,
		TermLinkBagLevels:        8,
		NovelTaskBagSize:         64,
		NovelTaskBagLevels:       8,
		Merge:                    budget.Plus,
		Curve:                    budget.Exponential,
		InputsMaxPerCycle:        1,
		ConceptsFiredPerCycle:    1,
		CycleTime:                Duration(10 * time.Millisecond),
		SilenceLevel:             0,
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv loads ATTENTION_CONFIG when set, otherwise the defaults, then
// applies environment overrides and validates the result.
func FromEnv() (Config, error) {
	cfg := Default()
	if path := os.Getenv("ATTENTION_CONFIG"); path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from ATTENTION_URL, ATTENTION_DB, REDIS_URL,
// ATTENTION_PORT and ATTENTION_SEED.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("ATTENTION_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("ATTENTION_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: ATTENTION_PORT %q", ErrInvalid, v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("ATTENTION_DB"); v != "" {
		c.Store.Backend = "sqlite"
		c.Store.Path = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Store.Backend = "redis"
		c.Store.RedisURL = v
	}
	if v := os.Getenv("ATTENTION_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: ATTENTION_SEED %q", ErrInvalid, v)
		}
		c.Params.Seed = seed
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// BaseURL returns the URL clients use to reach the server.
func (c *Config) BaseURL() string {
	if c.Server.URL != "" {
		return c.Server.URL
	}
	return fmt.Sprintf("http://%s", c.ListenAddr())
}

// Validate checks the whole config.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d", ErrInvalid, c.Server.Port)
	}
	if c.Store.TTL < 0 {
		return fmt.Errorf("%w: store ttl %s is negative", ErrInvalid, c.Store.TTL)
	}
	switch c.Store.Backend {
	case "", "memory", "sqlite":
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("%w: redis backend needs redis_url", ErrInvalid)
		}
	case "etcd":
		if len(c.Store.Endpoints) == 0 {
			return fmt.Errorf("%w: etcd backend needs endpoints", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalid, c.Store.Backend)
	}
	return c.Params.Validate()
}

// Validate checks that every parameter is in range.
func (p *Params) Validate() error {
	if p.Duration < 1 {
		return fmt.Errorf("%w: duration must be at least 1", ErrInvalid)
	}
	for name, v := range map[string]float64{
		"concept_forget_durations":   p.ConceptForgetDurations,
		"tasklink_forget_durations":  p.TaskLinkForgetDurations,
		"termlink_forget_durations":  p.TermLinkForgetDurations,
		"noveltask_forget_durations": p.NovelTaskForgetDurations,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s is negative", ErrInvalid, name)
		}
	}
	for name, v := range map[string]int{
		"concept_bag_size":     p.ConceptBagSize,
		"concept_bag_levels":   p.ConceptBagLevels,
		"tasklink_bag_size":    p.TaskLinkBagSize,
		"tasklink_bag_levels":  p.TaskLinkBagLevels,
		"termlink_bag_size":    p.TermLinkBagSize,
		"termlink_bag_levels":  p.TermLinkBagLevels,
		"noveltask_bag_size":   p.NovelTaskBagSize,
		"noveltask_bag_levels": p.NovelTaskBagLevels,
	} {
		if v < 1 {
			return fmt.Errorf("%w: %s must be at least 1", ErrInvalid, name)
		}
	}
	if p.InputsMaxPerCycle < 0 || p.ConceptsFiredPerCycle < 0 {
		return fmt.Errorf("%w: per-cycle limits must not be negative", ErrInvalid)
	}
	if p.MinTickPeriod < 0 || p.CycleTime < 0 {
		return fmt.Errorf("%w: periods must not be negative", ErrInvalid)
	}
	if p.SilenceLevel < 0 || p.SilenceLevel > 100 {
		return fmt.Errorf("%w: silence_level %d outside 0..100", ErrInvalid, p.SilenceLevel)
	}
	return nil
}

// ForgetCycles converts a forget duration to cycles.
func (p *Params) ForgetCycles(durations float64) float64 {
	return durations * float64(p.Duration)
}

// Forgetting returns the decay parameters for a bag with the given forget
// duration.
func (p *Params) Forgetting(durations float64) budget.Forgetting {
	return budget.Forgetting{Cycles: p.ForgetCycles(durations), Curve: p.Curve}
}

// LagThreshold is the longest frame the realtime clock accepts.
func (p *Params) LagThreshold() time.Duration {
	return time.Duration(p.Duration) * p.CycleTime.Std()
}
