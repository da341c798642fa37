package native

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/cache"
)

const (
	// defaultIdleTimeout bounds WaitIdle.
	defaultIdleTimeout = 5 * time.Second

	// defaultStorageImageFormat is the texel format of storage image slots.
	defaultStorageImageFormat = gputypes.TextureFormatRGBA8Unorm
)

// Option configures a Device.
type Option func(*Device)

// WithSPIRV compiles shaders to SPIR-V with naga before handing them to the
// HAL instead of passing WGSL through.
func WithSPIRV() Option {
	return func(d *Device) { d.spirv = true }
}

// WithLimits overrides the limits used to validate work-group sizes.
func WithLimits(l gputypes.Limits) Option {
	return func(d *Device) { d.limits = l }
}

// WithIdleTimeout bounds WaitIdle.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(d *Device) { d.idleTimeout = timeout }
}

// WithStorageImageFormat sets the texel format declared for storage image
// bindings. Images bound to storage slots must use this format.
func WithStorageImageFormat(f gputypes.TextureFormat) Option {
	return func(d *Device) { d.storageFormat = f }
}

// Device implements gpucore.Device on a HAL device and queue.
//
// Thread Safety: Device is safe for concurrent use. The pipeline cache and
// the queue are guarded by their own locks.
type Device struct {
	device hal.Device
	queue  *Queue

	// Owned HAL objects, destroyed by Destroy. Nil when the device is shared.
	instance hal.Instance
	owned    bool

	limits        gputypes.Limits
	spirv         bool
	idleTimeout   time.Duration
	storageFormat gputypes.TextureFormat

	pipelines *cache.Cache[string, *Pipeline]

	mu        sync.Mutex
	idle      *Fence
	destroyed bool
}

// New wraps an open HAL device and queue. The caller keeps ownership of
// both; Destroy releases only what this Device created.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Device, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("native: device and queue must not be nil")
	}
	d := &Device{
		device:        device,
		limits:        gputypes.DefaultLimits(),
		idleTimeout:   defaultIdleTimeout,
		storageFormat: defaultStorageImageFormat,
	}
	d.pipelines = cache.New(0, func(_ string, p *Pipeline) { p.destroy(d.device) })
	d.queue = &Queue{dev: d, queue: queue}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// HAL returns the wrapped HAL device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) {
	return d.device, d.queue.queue
}

// SetLogger sets the logger of the native backend. compute.SetLogger calls
// it for the process-wide device.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

// Queue returns the submission queue.
func (d *Device) Queue() gpucore.Queue { return d.queue }

// CreateCommandBuffer returns a command buffer in the empty state. The HAL
// encoder is created by Begin.
func (d *Device) CreateCommandBuffer(label string) (gpucore.CommandBuffer, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return &CommandBuffer{dev: d, label: label}, nil
}

// FreeCommandBuffer releases the recorded HAL command buffer, if any.
func (d *Device) FreeCommandBuffer(cmd gpucore.CommandBuffer) {
	if cb, ok := cmd.(*CommandBuffer); ok {
		cb.release()
	}
}

// CreateDescriptorSet creates a bind group for p.
func (d *Device) CreateDescriptorSet(p gpucore.Pipeline, entries []gpucore.DescriptorEntry) (gpucore.DescriptorSet, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	pl, ok := p.(*Pipeline)
	if !ok {
		return nil, fmt.Errorf("%w: pipeline %T", ErrForeignHandle, p)
	}

	halEntries := make([]gputypes.BindGroupEntry, len(entries))
	for i, e := range entries {
		he, err := bindGroupEntry(e)
		if err != nil {
			return nil, fmt.Errorf("native: %s binding %d: %w", pl.name, e.Binding, err)
		}
		halEntries[i] = he
	}

	group, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   pl.name + "_bg",
		Layout:  pl.bindLayout,
		Entries: halEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create bind group for %s: %w", pl.name, err)
	}
	return &bindGroup{group: group, pipeline: pl}, nil
}

// DestroyDescriptorSet destroys the bind group.
func (d *Device) DestroyDescriptorSet(set gpucore.DescriptorSet) {
	if bg, ok := set.(*bindGroup); ok && bg.group != nil {
		d.device.DestroyBindGroup(bg.group)
		bg.group = nil
	}
}

func bindGroupEntry(e gpucore.DescriptorEntry) (gputypes.BindGroupEntry, error) {
	out := gputypes.BindGroupEntry{Binding: e.Binding}
	switch {
	case e.Type.IsBuffer():
		b, ok := e.Buffer.(*Buffer)
		if !ok {
			return out, fmt.Errorf("%w: buffer %T", ErrForeignHandle, e.Buffer)
		}
		out.Resource = gputypes.BufferBinding{
			Buffer: b.buf.NativeHandle(),
			Offset: e.Offset,
			Size:   e.Range,
		}
	case e.Type.IsImage():
		img, ok := e.Image.(*Image)
		if !ok {
			return out, fmt.Errorf("%w: image %T", ErrForeignHandle, e.Image)
		}
		out.Resource = gputypes.TextureViewBinding{
			TextureView: img.view.NativeHandle(),
		}
	default:
		return out, fmt.Errorf("native: unknown descriptor type %s", e.Type)
	}
	return out, nil
}

// CreateFence creates a timeline fence.
func (d *Device) CreateFence() (gpucore.Fence, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	f, err := d.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("native: create fence: %w", err)
	}
	return &Fence{fence: f}, nil
}

// ResetFence is a no-op: the next submission signals a new timeline value.
func (d *Device) ResetFence(f gpucore.Fence) error {
	if _, ok := f.(*Fence); !ok {
		return fmt.Errorf("%w: fence %T", ErrForeignHandle, f)
	}
	return nil
}

// DestroyFence destroys the HAL fence.
func (d *Device) DestroyFence(f gpucore.Fence) {
	if fence, ok := f.(*Fence); ok && fence.fence != nil {
		d.device.DestroyFence(fence.fence)
		fence.fence = nil
	}
}

// Wait waits for the last value submitted on f. A fence that was never
// submitted counts as signaled.
func (d *Device) Wait(f gpucore.Fence, timeout time.Duration) (bool, error) {
	fence, ok := f.(*Fence)
	if !ok {
		return false, fmt.Errorf("%w: fence %T", ErrForeignHandle, f)
	}
	value := fence.submitted()
	if value == 0 {
		return true, nil
	}
	ok, err := d.device.Wait(fence.fence, value, timeout)
	if err != nil {
		return false, fmt.Errorf("native: wait for fence: %w", err)
	}
	return ok, nil
}

// WaitIdle submits an empty batch signaling an internal fence and waits for
// it. The queue executes in order, so every earlier submission has
// completed when it returns.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return ErrDestroyed
	}
	if d.idle == nil {
		f, err := d.device.CreateFence()
		if err != nil {
			d.mu.Unlock()
			return fmt.Errorf("native: create idle fence: %w", err)
		}
		d.idle = &Fence{fence: f}
	}
	idle := d.idle
	d.mu.Unlock()

	if err := d.queue.Submit(nil, idle); err != nil {
		return err
	}
	ok, err := d.Wait(idle, d.idleTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w after %v", ErrIdleTimeout, d.idleTimeout)
	}
	return nil
}

// CreateQueryPool reports that timestamps are unsupported.
func (d *Device) CreateQueryPool(uint32) (gpucore.QueryPool, error) {
	return nil, ErrTimestampsUnsupported
}

// QueryResults reports that timestamps are unsupported.
func (d *Device) QueryResults(gpucore.QueryPool, uint32, uint32) ([]uint64, error) {
	return nil, ErrTimestampsUnsupported
}

// DestroyQueryPool does nothing; no query pool is ever created.
func (d *Device) DestroyQueryPool(gpucore.QueryPool) {}

// TimestampPeriod returns 1.
func (d *Device) TimestampPeriod() float64 { return 1 }

// Destroy releases the cached pipelines and, for devices opened by this
// package, the HAL device and instance. The caller must have drained all
// work, for example by closing the runtime first. Destroy is idempotent.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.destroyed = true

	d.pipelines.Drain()
	if d.idle != nil && d.idle.fence != nil {
		d.device.DestroyFence(d.idle.fence)
		d.idle = nil
	}
	if d.owned {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	slogger().Debug("native: device destroyed", "owned", d.owned)
}

func (d *Device) check() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return ErrDestroyed
	}
	return nil
}

// Queue submits command buffers to the HAL queue.
type Queue struct {
	dev   *Device
	mu    sync.Mutex
	queue hal.Queue
}

// Submit submits cmds in order. A non-nil fence must come from the same
// device; it is advanced to its next timeline value.
func (q *Queue) Submit(cmds []gpucore.CommandBuffer, fence gpucore.Fence) error {
	bufs := make([]hal.CommandBuffer, 0, len(cmds))
	for _, c := range cmds {
		cb, ok := c.(*CommandBuffer)
		if !ok {
			return fmt.Errorf("%w: command buffer %T", ErrForeignHandle, c)
		}
		if cb.cmd == nil {
			return fmt.Errorf("native: submit %s: %w", cb.label, ErrNotRecording)
		}
		bufs = append(bufs, cb.cmd)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if fence == nil {
		if err := q.queue.Submit(bufs, nil, 0); err != nil {
			return fmt.Errorf("native: submit: %w", err)
		}
		return nil
	}
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("%w: fence %T", ErrForeignHandle, fence)
	}
	value := f.next()
	if err := q.queue.Submit(bufs, f.fence, value); err != nil {
		f.rollback()
		return fmt.Errorf("native: submit: %w", err)
	}
	return nil
}

// Fence is a timeline fence. value is the last value submitted.
type Fence struct {
	fence hal.Fence

	mu    sync.Mutex
	value uint64
}

func (f *Fence) next() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value++
	return f.value
}

func (f *Fence) rollback() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value--
}

func (f *Fence) submitted() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// bindGroup is the native descriptor set.
type bindGroup struct {
	group    hal.BindGroup
	pipeline *Pipeline
}
