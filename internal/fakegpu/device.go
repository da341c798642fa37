// Package fakegpu is an in-memory gpucore.Device for tests.
//
// Submissions complete synchronously: a fence passed to Submit is signaled
// before Submit returns and timestamps are assigned from a monotonic clock.
// Every operation can be made to fail with Fail.
package fakegpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/compute/gpucore"
)

// Operation names accepted by Fail.
const (
	OpCreateCommandBuffer = "create_command_buffer"
	OpPipeline            = "pipeline"
	OpCreateDescriptorSet = "create_descriptor_set"
	OpCreateFence         = "create_fence"
	OpResetFence          = "reset_fence"
	OpWait                = "wait"
	OpWaitIdle            = "wait_idle"
	OpCreateQueryPool     = "create_query_pool"
	OpQueryResults        = "query_results"
	OpSubmit              = "submit"
	OpBegin               = "begin"
	OpEnd                 = "end"
)

// Submission is one recorded Queue.Submit call.
type Submission struct {
	Buffers []*CommandBuffer
	Fence   *Fence
	// Commands is a copy of the commands of all buffers in order. It
	// survives a later reset of the buffers.
	Commands []Command
	// Dispatches is the number of Dispatch commands across all buffers at
	// the time of submission.
	Dispatches int
}

// Device implements gpucore.Device in memory. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	failures map[string]error
	nextID   int
	clock    uint64

	// NoTimestamps makes CreateQueryPool fail with gpucore.ErrUnsupported.
	NoTimestamps bool
	// UnsignaledWaits makes Wait report a timeout for this many calls.
	UnsignaledWaits int

	commandBuffers map[*CommandBuffer]struct{}
	descriptorSets map[*DescriptorSet]struct{}
	fences         map[*Fence]struct{}
	queryPools     map[*QueryPool]struct{}
	pipelines      map[string]*Pipeline

	submissions      []Submission
	destroyedBuffers []gpucore.Buffer
	destroyedImages  []gpucore.Image
	waitIdleCalls    int
	pipelineBuilds   int

	queue *Queue
}

// New returns an empty fake device.
func New() *Device {
	d := &Device{
		failures:       make(map[string]error),
		commandBuffers: make(map[*CommandBuffer]struct{}),
		descriptorSets: make(map[*DescriptorSet]struct{}),
		fences:         make(map[*Fence]struct{}),
		queryPools:     make(map[*QueryPool]struct{}),
		pipelines:      make(map[string]*Pipeline),
	}
	d.queue = &Queue{dev: d}
	return d
}

// Fail makes every later call of op return err. A nil err clears the failure.
func (d *Device) Fail(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, op)
		return
	}
	d.failures[op] = err
}

func (d *Device) failure(op string) error {
	return d.failures[op]
}

func (d *Device) id() int {
	d.nextID++
	return d.nextID
}

func (d *Device) CreateCommandBuffer(label string) (gpucore.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpCreateCommandBuffer); err != nil {
		return nil, err
	}
	cb := &CommandBuffer{dev: d, ID: d.id(), Label: label}
	d.commandBuffers[cb] = struct{}{}
	return cb, nil
}

func (d *Device) FreeCommandBuffer(cmd gpucore.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := cmd.(*CommandBuffer); ok {
		cb.freed = true
		delete(d.commandBuffers, cb)
	}
}

func (d *Device) Pipeline(spec gpucore.PipelineSpec) (gpucore.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpPipeline); err != nil {
		return nil, err
	}
	if spec.Shader == nil {
		return nil, fmt.Errorf("fakegpu: %w: no shader", gpucore.ErrInvalidPipelineSpec)
	}
	key := spec.Key()
	if p, ok := d.pipelines[key]; ok {
		return p, nil
	}
	if spec.LocalSize.IsZero() {
		return nil, fmt.Errorf("fakegpu: %w: zero local size %s", gpucore.ErrInvalidPipelineSpec, spec.LocalSize)
	}
	src, err := spec.Render()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{Key: key, Name: spec.Shader.Name, LocalSize: spec.LocalSize, Source: src}
	d.pipelines[key] = p
	d.pipelineBuilds++
	return p, nil
}

func (d *Device) CreateDescriptorSet(p gpucore.Pipeline, entries []gpucore.DescriptorEntry) (gpucore.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpCreateDescriptorSet); err != nil {
		return nil, err
	}
	pl, ok := p.(*Pipeline)
	if !ok {
		return nil, fmt.Errorf("fakegpu: foreign pipeline %T", p)
	}
	set := &DescriptorSet{
		ID:       d.id(),
		Pipeline: pl,
		Entries:  append([]gpucore.DescriptorEntry(nil), entries...),
	}
	d.descriptorSets[set] = struct{}{}
	return set, nil
}

func (d *Device) DestroyDescriptorSet(set gpucore.DescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := set.(*DescriptorSet); ok {
		s.Destroyed = true
		delete(d.descriptorSets, s)
	}
}

func (d *Device) CreateFence() (gpucore.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpCreateFence); err != nil {
		return nil, err
	}
	f := &Fence{ID: d.id()}
	d.fences[f] = struct{}{}
	return f, nil
}

func (d *Device) ResetFence(f gpucore.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpResetFence); err != nil {
		return err
	}
	if fence, ok := f.(*Fence); ok {
		fence.Signaled = false
		fence.Resets++
	}
	return nil
}

func (d *Device) DestroyFence(f gpucore.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fence, ok := f.(*Fence); ok {
		fence.Destroyed = true
		delete(d.fences, fence)
	}
}

func (d *Device) Wait(f gpucore.Fence, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpWait); err != nil {
		return false, err
	}
	fence, ok := f.(*Fence)
	if !ok {
		return false, fmt.Errorf("fakegpu: foreign fence %T", f)
	}
	fence.Waits++
	if d.UnsignaledWaits > 0 {
		d.UnsignaledWaits--
		return false, nil
	}
	return fence.Signaled, nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waitIdleCalls++
	return d.failure(OpWaitIdle)
}

func (d *Device) CreateQueryPool(count uint32) (gpucore.QueryPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.NoTimestamps {
		return nil, fmt.Errorf("fakegpu: timestamps: %w", gpucore.ErrUnsupported)
	}
	if err := d.failure(OpCreateQueryPool); err != nil {
		return nil, err
	}
	qp := &QueryPool{Values: make([]uint64, count)}
	d.queryPools[qp] = struct{}{}
	return qp, nil
}

func (d *Device) QueryResults(pool gpucore.QueryPool, first, count uint32) ([]uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpQueryResults); err != nil {
		return nil, err
	}
	qp, ok := pool.(*QueryPool)
	if !ok {
		return nil, fmt.Errorf("fakegpu: foreign query pool %T", pool)
	}
	if int(first+count) > len(qp.Values) {
		return nil, fmt.Errorf("fakegpu: query range %d+%d out of bounds", first, count)
	}
	return append([]uint64(nil), qp.Values[first:first+count]...), nil
}

func (d *Device) DestroyQueryPool(pool gpucore.QueryPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if qp, ok := pool.(*QueryPool); ok {
		qp.Destroyed = true
		delete(d.queryPools, qp)
	}
}

// TimestampPeriod is one nanosecond per tick.
func (d *Device) TimestampPeriod() float64 { return 1 }

func (d *Device) DestroyBuffer(b gpucore.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyedBuffers = append(d.destroyedBuffers, b)
}

func (d *Device) DestroyImage(img gpucore.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyedImages = append(d.destroyedImages, img)
}

func (d *Device) Queue() gpucore.Queue { return d.queue }

// Submissions returns a copy of all submissions so far.
func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submissions...)
}

// SubmissionCount returns the number of Queue.Submit calls that succeeded.
func (d *Device) SubmissionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.submissions)
}

// LiveCommandBuffers is the number of command buffers not yet freed.
func (d *Device) LiveCommandBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.commandBuffers)
}

// LiveDescriptorSets is the number of descriptor sets not yet destroyed.
func (d *Device) LiveDescriptorSets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.descriptorSets)
}

// LiveFences is the number of fences not yet destroyed.
func (d *Device) LiveFences() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fences)
}

// LiveQueryPools is the number of query pools not yet destroyed.
func (d *Device) LiveQueryPools() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queryPools)
}

// PipelineBuilds is the number of cache misses in Pipeline.
func (d *Device) PipelineBuilds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipelineBuilds
}

// WaitIdleCalls is the number of WaitIdle calls.
func (d *Device) WaitIdleCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waitIdleCalls
}

// DestroyedBuffers returns the buffers passed to DestroyBuffer, in order.
func (d *Device) DestroyedBuffers() []gpucore.Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpucore.Buffer(nil), d.destroyedBuffers...)
}

// DestroyedImages returns the images passed to DestroyImage, in order.
func (d *Device) DestroyedImages() []gpucore.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpucore.Image(nil), d.destroyedImages...)
}

// Queue records submissions on its device.
type Queue struct {
	dev *Device
}

// Submit records the buffers, runs their timestamp writes and signals fence.
func (q *Queue) Submit(cmds []gpucore.CommandBuffer, fence gpucore.Fence) error {
	d := q.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpSubmit); err != nil {
		return err
	}

	sub := Submission{Buffers: make([]*CommandBuffer, 0, len(cmds))}
	for _, c := range cmds {
		cb, ok := c.(*CommandBuffer)
		if !ok {
			return fmt.Errorf("fakegpu: foreign command buffer %T", c)
		}
		if cb.state != stateExecutable {
			return fmt.Errorf("fakegpu: submit command buffer %d in state %s", cb.ID, cb.state)
		}
		if cb.submits > 0 && !cb.reusable {
			return fmt.Errorf("fakegpu: command buffer %d resubmitted without reusable flag", cb.ID)
		}
		cb.submits++
		sub.Buffers = append(sub.Buffers, cb)
		sub.Commands = append(sub.Commands, cb.Commands...)
		for _, cmd := range cb.Commands {
			switch cmd.Op {
			case CmdDispatch:
				sub.Dispatches++
			case CmdWriteTimestamp:
				d.clock += 10
				cmd.QueryPool.Values[cmd.Query] = d.clock
			case CmdResetQueries:
				for i := cmd.Query; i < cmd.Query+cmd.Count; i++ {
					cmd.QueryPool.Values[i] = 0
				}
			}
		}
	}
	if fence != nil {
		f, ok := fence.(*Fence)
		if !ok {
			return fmt.Errorf("fakegpu: foreign fence %T", fence)
		}
		f.Signaled = true
		sub.Fence = f
	}
	d.submissions = append(d.submissions, sub)
	return nil
}
