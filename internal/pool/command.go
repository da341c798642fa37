package pool

import (
	"fmt"

	"github.com/gogpu/compute/gpucore"
)

// CommandState is the lifecycle state of a pooled command buffer.
type CommandState uint8

// Command buffer states.
const (
	// CommandEmpty is a command buffer that has not begun recording.
	CommandEmpty CommandState = iota
	// CommandRecording accepts commands.
	CommandRecording
	// CommandReady has ended recording and may be submitted.
	CommandReady
	// CommandSubmitted has been handed to the queue.
	CommandSubmitted
	// CommandInvalid may not be used again until the pool resets.
	CommandInvalid
)

// String returns the state name.
func (s CommandState) String() string {
	switch s {
	case CommandEmpty:
		return "empty"
	case CommandRecording:
		return "recording"
	case CommandReady:
		return "ready"
	case CommandSubmitted:
		return "submitted"
	case CommandInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("CommandState(%d)", uint8(s))
	}
}

// Command is a pooled command buffer with an explicit state machine.
type Command struct {
	buf      gpucore.CommandBuffer
	state    CommandState
	reusable bool
}

// Buffer returns the device command buffer.
func (c *Command) Buffer() gpucore.CommandBuffer { return c.buf }

// State returns the current state.
func (c *Command) State() CommandState { return c.state }

// Reusable reports whether the buffer may be submitted more than once.
func (c *Command) Reusable() bool { return c.reusable }

func (c *Command) begin(reusable bool) error {
	if c.state != CommandEmpty {
		return fmt.Errorf("%w: begin in state %s", ErrInvalidState, c.state)
	}
	if err := c.buf.Begin(reusable); err != nil {
		return err
	}
	c.state = CommandRecording
	c.reusable = reusable
	return nil
}

// End finishes recording.
func (c *Command) End() error {
	if c.state != CommandRecording {
		return fmt.Errorf("%w: end in state %s", ErrInvalidState, c.state)
	}
	if err := c.buf.End(); err != nil {
		return err
	}
	c.state = CommandReady
	return nil
}

// CheckSubmittable returns an error unless the buffer is ready, or was
// already submitted and is reusable.
func (c *Command) CheckSubmittable() error {
	switch {
	case c.state == CommandReady:
		return nil
	case c.state == CommandSubmitted && c.reusable:
		return nil
	default:
		return fmt.Errorf("%w: submit in state %s", ErrInvalidState, c.state)
	}
}

// MarkSubmitted records a successful submission. A non-reusable buffer, or
// any buffer submitted for the final time, becomes invalid.
func (c *Command) MarkSubmitted(finalUse bool) {
	if !c.reusable || finalUse {
		c.state = CommandInvalid
		return
	}
	c.state = CommandSubmitted
}

// CommandConfig sizes a CommandPool.
type CommandConfig struct {
	// InitialSize buffers are allocated up front.
	InitialSize int
	// BatchSize buffers are allocated each time the pool grows.
	BatchSize int
	// MaxSize caps the total number of buffers. Zero means unbounded.
	MaxSize int
}

// CommandStats is a snapshot of pool occupancy.
type CommandStats struct {
	Allocated int
	InUse     int
}

// CommandPool hands out command buffers and recycles them on Reset.
type CommandPool struct {
	dev   gpucore.Device
	cfg   CommandConfig
	free  []*Command
	inUse []*Command
}

// NewCommandPool returns a pool with cfg.InitialSize buffers preallocated.
func NewCommandPool(dev gpucore.Device, cfg CommandConfig) (*CommandPool, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	p := &CommandPool{dev: dev, cfg: cfg}
	if err := p.allocate(cfg.InitialSize); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *CommandPool) total() int { return len(p.free) + len(p.inUse) }

func (p *CommandPool) allocate(n int) error {
	for range n {
		buf, err := p.dev.CreateCommandBuffer(fmt.Sprintf("compute_cmd_%d", p.total()))
		if err != nil {
			return fmt.Errorf("pool: create command buffer: %w", err)
		}
		p.free = append(p.free, &Command{buf: buf})
	}
	return nil
}

// Acquire returns a command buffer in the recording state.
func (p *CommandPool) Acquire(reusable bool) (*Command, error) {
	if len(p.free) == 0 {
		n := p.cfg.BatchSize
		if p.cfg.MaxSize > 0 {
			n = min(n, p.cfg.MaxSize-p.total())
		}
		if n <= 0 {
			return nil, fmt.Errorf("%w: %d command buffers in use", ErrExhausted, len(p.inUse))
		}
		slogger().Debug("pool: growing command pool", "from", p.total(), "by", n)
		if err := p.allocate(n); err != nil {
			return nil, err
		}
	}

	c := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	if err := c.begin(reusable); err != nil {
		p.free = append(p.free, c)
		return nil, fmt.Errorf("pool: begin command buffer: %w", err)
	}
	p.inUse = append(p.inUse, c)
	return c, nil
}

// Reset returns every handed-out buffer to the pool. The caller must know
// that the device has finished with all of them.
func (p *CommandPool) Reset() error {
	for i, c := range p.inUse {
		if err := c.buf.Reset(); err != nil {
			// Keep the buffers that were not reset out of circulation.
			p.inUse = p.inUse[i:]
			return fmt.Errorf("pool: reset command buffer: %w", err)
		}
		c.state = CommandEmpty
		c.reusable = false
		p.free = append(p.free, c)
	}
	p.inUse = p.inUse[:0]
	return nil
}

// Destroy frees every buffer. The pool must not be used afterwards.
func (p *CommandPool) Destroy() {
	for _, c := range p.free {
		p.dev.FreeCommandBuffer(c.buf)
	}
	for _, c := range p.inUse {
		p.dev.FreeCommandBuffer(c.buf)
	}
	p.free, p.inUse = nil, nil
}

// Stats returns the current occupancy.
func (p *CommandPool) Stats() CommandStats {
	return CommandStats{Allocated: p.total(), InUse: len(p.inUse)}
}
