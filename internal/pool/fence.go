package pool

import (
	"fmt"
	"sync"

	"github.com/gogpu/compute/gpucore"
)

// FenceConfig sizes a FencePool.
type FenceConfig struct {
	InitialSize int
	// MaxSize caps the number of fences loaned out at once. Zero means unbounded.
	MaxSize int
}

// FencePool loans out fences and takes them back reset.
// It is safe for concurrent use.
type FencePool struct {
	mu      sync.Mutex
	dev     gpucore.Device
	cfg     FenceConfig
	free    []gpucore.Fence
	loaned  int
	created int
	closed  bool
}

// NewFencePool returns a pool with cfg.InitialSize fences preallocated.
func NewFencePool(dev gpucore.Device, cfg FenceConfig) (*FencePool, error) {
	p := &FencePool{dev: dev, cfg: cfg}
	for range cfg.InitialSize {
		f, err := dev.CreateFence()
		if err != nil {
			p.Destroy()
			return nil, fmt.Errorf("pool: create fence: %w", err)
		}
		p.free = append(p.free, f)
		p.created++
	}
	return p, nil
}

// Get loans out an unsignaled fence.
func (p *FencePool) Get() (gpucore.Fence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("%w: fence pool destroyed", ErrInvalidState)
	}
	if p.cfg.MaxSize > 0 && p.loaned >= p.cfg.MaxSize {
		return nil, fmt.Errorf("%w: %d fences loaned", ErrExhausted, p.loaned)
	}
	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free = p.free[:n-1]
		p.loaned++
		return f, nil
	}
	f, err := p.dev.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("pool: create fence: %w", err)
	}
	p.created++
	p.loaned++
	return f, nil
}

// Put resets f and returns it to the pool.
func (p *FencePool) Put(f gpucore.Fence) error {
	if f == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaned--
	if p.closed {
		p.dev.DestroyFence(f)
		p.created--
		return nil
	}
	if err := p.dev.ResetFence(f); err != nil {
		p.dev.DestroyFence(f)
		p.created--
		return fmt.Errorf("pool: reset fence: %w", err)
	}
	p.free = append(p.free, f)
	return nil
}

// Loaned returns the number of fences currently out.
func (p *FencePool) Loaned() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaned
}

// Destroy releases the pooled fences. Fences still on loan are destroyed
// when they are put back.
func (p *FencePool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.free {
		p.dev.DestroyFence(f)
	}
	p.created -= len(p.free)
	p.free = nil
	p.closed = true
}
