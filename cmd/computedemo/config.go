package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gogpu/compute"
)

const envPrefix = "COMPUTE"

// demoConfig is everything the demo reads from file, environment and flags.
type demoConfig struct {
	Backend    string `mapstructure:"backend"`
	Goroutines int    `mapstructure:"goroutines"`
	Dispatches int    `mapstructure:"dispatches"`
	Elements   uint32 `mapstructure:"elements"`
	SPIRV      bool   `mapstructure:"spirv"`
	Verify     bool   `mapstructure:"verify"`
	Profile    bool   `mapstructure:"profile"`
	LogLevel   string `mapstructure:"log_level"`

	Runtime compute.Config `mapstructure:"runtime"`
}

func defaultDemoConfig() demoConfig {
	return demoConfig{
		Backend:    "noop",
		Goroutines: 8,
		Dispatches: 100,
		Elements:   1 << 16,
		LogLevel:   "warn",
		Runtime:    compute.DefaultConfig(),
	}
}

// newViper returns a viper instance with every key defaulted, reading
// COMPUTE_* environment variables, for example COMPUTE_RUNTIME_CMD_SUBMIT_FREQUENCY.
func newViper() *viper.Viper {
	v := viper.New()
	d := defaultDemoConfig()
	r := d.Runtime

	defaults := map[string]any{
		"backend":     d.Backend,
		"goroutines":  d.Goroutines,
		"dispatches":  d.Dispatches,
		"elements":    d.Elements,
		"spirv":       d.SPIRV,
		"verify":      d.Verify,
		"profile":     d.Profile,
		"log_level":   d.LogLevel,

		"runtime.cmd_submit_frequency": r.CmdSubmitFrequency,
		"runtime.wait_timeout":         r.WaitTimeout,

		"runtime.command_pool.initial_size": r.CommandPool.InitialSize,
		"runtime.command_pool.batch_size":   r.CommandPool.BatchSize,
		"runtime.command_pool.max_size":     r.CommandPool.MaxSize,

		"runtime.descriptor_pool.max_sets":        r.DescriptorPool.MaxSets,
		"runtime.descriptor_pool.uniform_buffers": r.DescriptorPool.UniformBuffers,
		"runtime.descriptor_pool.storage_buffers": r.DescriptorPool.StorageBuffers,
		"runtime.descriptor_pool.storage_images":  r.DescriptorPool.StorageImages,
		"runtime.descriptor_pool.sampled_images":  r.DescriptorPool.SampledImages,
		"runtime.descriptor_pool.grow":            r.DescriptorPool.Grow,

		"runtime.fence_pool.initial_size": r.FencePool.InitialSize,
		"runtime.fence_pool.max_size":     r.FencePool.MaxSize,

		"runtime.query_pool.max_queries":     r.QueryPool.MaxQueries,
		"runtime.query_pool.initial_reserve": r.QueryPool.InitialReserve,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"backend":          "backend",
	"goroutines":       "goroutines",
	"dispatches":       "dispatches",
	"elements":         "elements",
	"spirv":            "spirv",
	"verify":           "verify",
	"profile":          "profile",
	"log-level":        "log_level",
	"submit-frequency": "runtime.cmd_submit_frequency",
	"wait-timeout":     "runtime.wait_timeout",
}

// loadConfig merges defaults, the optional config file, the environment
// and the flags that were set, in increasing priority.
func loadConfig(v *viper.Viper, file string, flags *pflag.FlagSet) (demoConfig, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return demoConfig{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return demoConfig{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg demoConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return demoConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Runtime.Validate(); err != nil {
		return demoConfig{}, err
	}
	switch cfg.Backend {
	case "noop", "vulkan", "default":
	default:
		return demoConfig{}, fmt.Errorf("unknown backend %q (want noop, vulkan or default)", cfg.Backend)
	}
	if cfg.Goroutines <= 0 || cfg.Dispatches < 0 || cfg.Elements == 0 {
		return demoConfig{}, fmt.Errorf("goroutines and elements must be positive, dispatches non-negative")
	}
	return cfg, nil
}

// writeSettings prints every effective setting as key = value, sorted.
func writeSettings(w io.Writer, v *viper.Viper) error {
	keys := v.AllKeys()
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s = %v\n", k, v.Get(k)); err != nil {
			return err
		}
	}
	return nil
}
