package compute

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/pool"
)

// Runtime batches compute dispatches for one device and one queue.
//
// Runtime is safe for concurrent use. Dispatches from many goroutines are
// serialized by a single stream lock; see [Runtime.Lock] for sequences that
// must not be interleaved with other goroutines' work.
type Runtime struct {
	device gpucore.Device
	cfg    Config

	// mu is the stream lock. It guards stream, descriptors, queries and
	// dispatches.
	mu          sync.Mutex
	stream      stream
	descriptors *pool.DescriptorPool
	queries     *pool.QueryPool
	dispatches  uint64

	fences *pool.FencePool

	buffers reclaimList[gpucore.Buffer]
	images  reclaimList[gpucore.Image]

	closed  atomic.Bool
	failure atomic.Pointer[DeviceError]

	diag Diagnostics
}

// New creates a runtime on dev. The device is referenced, not owned: Close
// drains and releases the runtime's own resources but leaves dev open.
func New(dev gpucore.Device, opts ...Option) (*Runtime, error) {
	if dev == nil {
		return nil, errors.New("compute: device must not be nil")
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cmds, err := pool.NewCommandPool(dev, cfg.CommandPool.pool())
	if err != nil {
		return nil, &DeviceError{Op: "create command pool", Err: err}
	}
	fences, err := pool.NewFencePool(dev, cfg.FencePool.pool())
	if err != nil {
		cmds.Destroy()
		return nil, &DeviceError{Op: "create fence pool", Err: err}
	}

	r := &Runtime{
		device:      dev,
		cfg:         cfg,
		stream:      stream{cmds: cmds, queue: dev.Queue()},
		descriptors: pool.NewDescriptorPool(dev, cfg.DescriptorPool.pool()),
		queries:     pool.NewQueryPool(dev, cfg.QueryPool.pool()),
		fences:      fences,
	}
	r.diag.r = r

	slogger().Info("compute: runtime created",
		"submit_frequency", cfg.CmdSubmitFrequency,
		"command_buffers", cfg.CommandPool.InitialSize)
	return r, nil
}

// Device returns the device the runtime dispatches to.
func (r *Runtime) Device() gpucore.Device { return r.device }

// Config returns a copy of the runtime configuration.
func (r *Runtime) Config() Config { return r.cfg }

// Usable returns nil if the runtime accepts work, or the reason it does not.
func (r *Runtime) Usable() error { return r.check() }

// RegisterBufferCleanup takes ownership of b and destroys it once the device
// is known to be done with it: when a StreamLock finishes waiting on a fenced
// submission made after this call, on Flush, or at Close. It reports false
// if b is nil or already registered. After Close, b is destroyed at once
// unless it was already destroyed, in which case false is returned.
func (r *Runtime) RegisterBufferCleanup(b gpucore.Buffer) bool {
	if b == nil {
		return false
	}
	if r.buffers.add(b) {
		return true
	}
	if r.buffers.settle(b) {
		r.device.DestroyBuffer(b)
		return true
	}
	return false
}

// RegisterImageCleanup is RegisterBufferCleanup for images.
func (r *Runtime) RegisterImageCleanup(img gpucore.Image) bool {
	if img == nil {
		return false
	}
	if r.images.add(img) {
		return true
	}
	if r.images.settle(img) {
		r.device.DestroyImage(img)
		return true
	}
	return false
}

// drain destroys the first nb buffers and ni images on the reclaim lists.
func (r *Runtime) drain(nb, ni int) {
	bufs := r.buffers.take(nb)
	for _, b := range bufs {
		r.device.DestroyBuffer(b)
	}
	imgs := r.images.take(ni)
	for _, img := range imgs {
		r.device.DestroyImage(img)
	}
	if len(bufs)+len(imgs) > 0 {
		slogger().Debug("compute: reclaimed", "buffers", len(bufs), "images", len(imgs))
	}
}

// recycle is called with the stream lock held once the device has finished
// every submission up to and including number seq. It returns the command
// and descriptor pools to their initial state if nothing was recorded since,
// and destroys the first nb buffers and ni images awaiting reclaim.
func (r *Runtime) recycle(seq uint64, nb, ni int) error {
	if r.stream.submissions == seq && r.stream.idle() {
		if err := r.stream.reset(); err != nil {
			return r.fail("reset command pool", err)
		}
		r.descriptors.Reset()
	} else {
		slogger().Debug("compute: pools kept, work recorded after fence",
			"fenced", seq, "submissions", r.stream.submissions)
	}
	r.drain(nb, ni)
	return nil
}

// Flush submits pending work, waits for the device to finish everything
// submitted so far, recycles the pools and drains the reclaim lists.
func (r *Runtime) Flush() error {
	l := r.Lock()
	defer l.Unlock()
	return l.Flush()
}

// Close flushes pending work, waits for the device to go idle and releases
// every pooled resource and every resource registered for cleanup. It is
// idempotent. Close blocks while another goroutine holds a StreamLock.
func (r *Runtime) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.failure.Load() == nil {
		if _, err := r.stream.submit(nil, true); err != nil {
			errs = append(errs, r.fail("submit", err))
		}
	}
	if err := r.device.WaitIdle(); err != nil {
		errs = append(errs, r.fail("wait idle", err))
	}

	r.queries.Destroy()
	r.descriptors.Reset()
	r.stream.current, r.stream.retained = nil, nil
	r.stream.cmds.Destroy()
	r.fences.Destroy()

	bufs := r.buffers.close()
	for _, b := range bufs {
		r.device.DestroyBuffer(b)
	}
	imgs := r.images.close()
	for _, img := range imgs {
		r.device.DestroyImage(img)
	}

	slogger().Info("compute: runtime closed",
		"dispatches", r.dispatches,
		"submissions", r.stream.submissions,
		"reclaimed_buffers", len(bufs),
		"reclaimed_images", len(imgs))
	if len(errs) > 0 {
		return fmt.Errorf("compute: close: %w", errors.Join(errs...))
	}
	return nil
}

// Stats is a snapshot of runtime activity and pool occupancy.
type Stats struct {
	// Pending is the number of dispatches recorded but not yet submitted.
	Pending     uint32
	Dispatches  uint64
	Submissions uint64

	CommandBuffersAllocated int
	CommandBuffersInUse     int
	DescriptorSets          int
	DescriptorBlocks        int
	FencesLoaned            int

	PendingBufferCleanups int
	PendingImageCleanups  int

	ProfiledDispatches int
	DroppedMarkers     int
}

// Stats returns a snapshot. It takes the stream lock; a goroutine holding a
// StreamLock uses StreamLock.Stats instead.
func (r *Runtime) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statsLocked()
}

func (r *Runtime) statsLocked() Stats {
	cmd := r.stream.cmds.Stats()
	desc := r.descriptors.Stats()
	return Stats{
		Pending:                 r.stream.counter,
		Dispatches:              r.dispatches,
		Submissions:             r.stream.submissions,
		CommandBuffersAllocated: cmd.Allocated,
		CommandBuffersInUse:     cmd.InUse,
		DescriptorSets:          desc.Sets,
		DescriptorBlocks:        desc.Blocks,
		FencesLoaned:            r.fences.Loaned(),
		PendingBufferCleanups:   r.buffers.len(),
		PendingImageCleanups:    r.images.len(),
		ProfiledDispatches:      r.queries.Len(),
		DroppedMarkers:          r.queries.Dropped(),
	}
}
