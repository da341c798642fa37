package compute

import "time"

// Option configures a Runtime during creation.
//
// Example:
//
//	rt, err := compute.New(dev,
//	    compute.WithSubmitFrequency(32),
//	    compute.WithDescriptorPool(compute.DescriptorPoolConfig{MaxSets: 256, StorageBuffers: 512}),
//	)
type Option func(*Config)

// WithConfig replaces the whole configuration. Options after it still apply.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithSubmitFrequency sets the number of dispatches per automatic submission.
func WithSubmitFrequency(n uint32) Option {
	return func(c *Config) {
		c.CmdSubmitFrequency = n
	}
}

// WithWaitTimeout bounds fence waits.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.WaitTimeout = d
	}
}

// WithCommandPool sets the command buffer pool sizes.
func WithCommandPool(p CommandPoolConfig) Option {
	return func(c *Config) {
		c.CommandPool = p
	}
}

// WithDescriptorPool sets the descriptor pool block size and growth policy.
func WithDescriptorPool(p DescriptorPoolConfig) Option {
	return func(c *Config) {
		c.DescriptorPool = p
	}
}

// WithFencePool sets the fence pool sizes.
func WithFencePool(p FencePoolConfig) Option {
	return func(c *Config) {
		c.FencePool = p
	}
}

// WithQueryPool sets the timestamp query pool size.
func WithQueryPool(p QueryPoolConfig) Option {
	return func(c *Config) {
		c.QueryPool = p
	}
}
