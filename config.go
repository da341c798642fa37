package compute

import (
	"fmt"
	"time"

	"github.com/gogpu/compute/internal/pool"
)

// Config fixes the batching threshold and pool sizes of a Runtime.
// It is copied at construction and never changes afterwards.
//
// The mapstructure tags let configuration loaders such as viper decode
// directly into a Config.
type Config struct {
	// CmdSubmitFrequency is the number of dispatches after which the
	// recording stream is submitted automatically.
	CmdSubmitFrequency uint32 `mapstructure:"cmd_submit_frequency"`

	// WaitTimeout bounds each fence wait.
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`

	CommandPool    CommandPoolConfig    `mapstructure:"command_pool"`
	DescriptorPool DescriptorPoolConfig `mapstructure:"descriptor_pool"`
	FencePool      FencePoolConfig      `mapstructure:"fence_pool"`
	QueryPool      QueryPoolConfig      `mapstructure:"query_pool"`
}

// CommandPoolConfig sizes the command buffer pool.
type CommandPoolConfig struct {
	InitialSize int `mapstructure:"initial_size"`
	BatchSize   int `mapstructure:"batch_size"`
	// MaxSize caps the pool. Zero means unbounded.
	MaxSize int `mapstructure:"max_size"`
}

// DescriptorPoolConfig sizes one block of the descriptor pool.
type DescriptorPoolConfig struct {
	MaxSets        uint32 `mapstructure:"max_sets"`
	UniformBuffers uint32 `mapstructure:"uniform_buffers"`
	StorageBuffers uint32 `mapstructure:"storage_buffers"`
	StorageImages  uint32 `mapstructure:"storage_images"`
	SampledImages  uint32 `mapstructure:"sampled_images"`
	// Grow adds another block when the current one is full instead of
	// failing with ErrPoolExhausted.
	Grow bool `mapstructure:"grow"`
}

// FencePoolConfig sizes the fence pool.
type FencePoolConfig struct {
	InitialSize int `mapstructure:"initial_size"`
	// MaxSize caps the number of fences on loan. Zero means unbounded.
	MaxSize int `mapstructure:"max_size"`
}

// QueryPoolConfig sizes the timestamp query pool used by Diagnostics.
type QueryPoolConfig struct {
	MaxQueries     uint32 `mapstructure:"max_queries"`
	InitialReserve int    `mapstructure:"initial_reserve"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		CmdSubmitFrequency: 16,
		WaitTimeout:        5 * time.Second,
		CommandPool: CommandPoolConfig{
			InitialSize: 32,
			BatchSize:   8,
		},
		DescriptorPool: DescriptorPoolConfig{
			MaxSets:        1024,
			UniformBuffers: 1024,
			StorageBuffers: 1024,
			StorageImages:  1024,
			SampledImages:  1024,
			Grow:           true,
		},
		FencePool: FencePoolConfig{
			InitialSize: 4,
		},
		QueryPool: QueryPoolConfig{
			MaxQueries:     4096,
			InitialReserve: 256,
		},
	}
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	switch {
	case c.CmdSubmitFrequency == 0:
		return fmt.Errorf("%w: cmd_submit_frequency must be positive", ErrInvalidConfig)
	case c.WaitTimeout <= 0:
		return fmt.Errorf("%w: wait_timeout must be positive", ErrInvalidConfig)
	case c.CommandPool.InitialSize < 0 || c.CommandPool.BatchSize <= 0 || c.CommandPool.MaxSize < 0:
		return fmt.Errorf("%w: command_pool needs a positive batch_size and non-negative sizes", ErrInvalidConfig)
	case c.CommandPool.MaxSize > 0 && c.CommandPool.InitialSize > c.CommandPool.MaxSize:
		return fmt.Errorf("%w: command_pool initial_size exceeds max_size", ErrInvalidConfig)
	case c.DescriptorPool.MaxSets == 0:
		return fmt.Errorf("%w: descriptor_pool max_sets must be positive", ErrInvalidConfig)
	case c.FencePool.InitialSize < 0 || c.FencePool.MaxSize < 0:
		return fmt.Errorf("%w: fence_pool sizes must be non-negative", ErrInvalidConfig)
	case c.QueryPool.MaxQueries < 2:
		return fmt.Errorf("%w: query_pool max_queries must hold at least one start/end pair", ErrInvalidConfig)
	}
	return nil
}

func (c CommandPoolConfig) pool() pool.CommandConfig {
	return pool.CommandConfig{InitialSize: c.InitialSize, BatchSize: c.BatchSize, MaxSize: c.MaxSize}
}

func (c DescriptorPoolConfig) pool() pool.DescriptorConfig {
	return pool.DescriptorConfig{
		MaxSets:        c.MaxSets,
		UniformBuffers: c.UniformBuffers,
		StorageBuffers: c.StorageBuffers,
		StorageImages:  c.StorageImages,
		SampledImages:  c.SampledImages,
		Grow:           c.Grow,
	}
}

func (c FencePoolConfig) pool() pool.FenceConfig {
	return pool.FenceConfig{InitialSize: c.InitialSize, MaxSize: c.MaxSize}
}

func (c QueryPoolConfig) pool() pool.QueryConfig {
	return pool.QueryConfig{MaxQueries: c.MaxQueries, InitialReserve: c.InitialReserve}
}
