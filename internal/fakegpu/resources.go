package fakegpu

import (
	"fmt"

	"github.com/gogpu/compute/gpucore"
)

type cmdState uint8

const (
	stateInitial cmdState = iota
	stateRecording
	stateExecutable
)

func (s cmdState) String() string {
	switch s {
	case stateInitial:
		return "initial"
	case stateRecording:
		return "recording"
	case stateExecutable:
		return "executable"
	default:
		return "unknown"
	}
}

// Command opcodes.
const (
	CmdBindPipeline      = "bind_pipeline"
	CmdBindDescriptorSet = "bind_descriptor_set"
	CmdBarrier           = "barrier"
	CmdDispatch          = "dispatch"
	CmdWriteTimestamp    = "write_timestamp"
	CmdResetQueries      = "reset_queries"
)

// Command is one recorded command.
type Command struct {
	Op            string
	Pipeline      *Pipeline
	DescriptorSet *DescriptorSet
	Barrier       gpucore.Barrier
	Groups        gpucore.Extent3D
	QueryPool     *QueryPool
	Query         uint32
	Count         uint32
}

// CommandBuffer records commands in memory.
type CommandBuffer struct {
	dev      *Device
	ID       int
	Label    string
	Commands []Command

	state    cmdState
	reusable bool
	submits  int
	resets   int
	freed    bool
}

func (c *CommandBuffer) Begin(reusable bool) error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if err := c.dev.failure(OpBegin); err != nil {
		return err
	}
	if c.state != stateInitial {
		return fmt.Errorf("fakegpu: begin command buffer %d in state %s", c.ID, c.state)
	}
	c.state = stateRecording
	c.reusable = reusable
	return nil
}

func (c *CommandBuffer) record(cmd Command) {
	if c.state != stateRecording {
		panic(fmt.Sprintf("fakegpu: record %s into command buffer %d in state %s", cmd.Op, c.ID, c.state))
	}
	c.Commands = append(c.Commands, cmd)
}

func (c *CommandBuffer) BindPipeline(p gpucore.Pipeline) {
	pl, _ := p.(*Pipeline)
	c.record(Command{Op: CmdBindPipeline, Pipeline: pl})
}

func (c *CommandBuffer) BindDescriptorSet(set gpucore.DescriptorSet) {
	s, _ := set.(*DescriptorSet)
	c.record(Command{Op: CmdBindDescriptorSet, DescriptorSet: s})
}

func (c *CommandBuffer) InsertBarrier(b gpucore.Barrier) {
	c.record(Command{Op: CmdBarrier, Barrier: b})
}

func (c *CommandBuffer) Dispatch(groups gpucore.Extent3D) {
	c.record(Command{Op: CmdDispatch, Groups: groups})
}

func (c *CommandBuffer) WriteTimestamp(pool gpucore.QueryPool, index uint32) {
	qp, _ := pool.(*QueryPool)
	c.record(Command{Op: CmdWriteTimestamp, QueryPool: qp, Query: index})
}

func (c *CommandBuffer) ResetQueries(pool gpucore.QueryPool, first, count uint32) {
	qp, _ := pool.(*QueryPool)
	c.record(Command{Op: CmdResetQueries, QueryPool: qp, Query: first, Count: count})
}

func (c *CommandBuffer) End() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if err := c.dev.failure(OpEnd); err != nil {
		return err
	}
	if c.state != stateRecording {
		return fmt.Errorf("fakegpu: end command buffer %d in state %s", c.ID, c.state)
	}
	c.state = stateExecutable
	return nil
}

func (c *CommandBuffer) Reset() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.Commands = nil
	c.state = stateInitial
	c.submits = 0
	c.resets++
	return nil
}

// Dispatches counts the Dispatch commands currently recorded.
func (c *CommandBuffer) Dispatches() int {
	n := 0
	for _, cmd := range c.Commands {
		if cmd.Op == CmdDispatch {
			n++
		}
	}
	return n
}

// Pipeline is a cached pipeline.
type Pipeline struct {
	Key       string
	Name      string
	LocalSize gpucore.Extent3D
	Source    string // rendered WGSL
}

// DescriptorSet is a realized binding table.
type DescriptorSet struct {
	ID        int
	Pipeline  *Pipeline
	Entries   []gpucore.DescriptorEntry
	Destroyed bool
}

// Fence is signaled by Queue.Submit.
type Fence struct {
	ID        int
	Signaled  bool
	Resets    int
	Waits     int
	Destroyed bool
}

// QueryPool holds timestamp values written at submission.
type QueryPool struct {
	Values    []uint64
	Destroyed bool
}

// Buffer is a fake device buffer.
type Buffer struct {
	Name  string
	Bytes uint64
}

// NewBuffer returns a buffer with backing memory of size bytes.
func NewBuffer(name string, size uint64) *Buffer {
	return &Buffer{Name: name, Bytes: size}
}

// EmptyBuffer returns a buffer without backing memory.
func EmptyBuffer(name string) *Buffer {
	return &Buffer{Name: name}
}

func (b *Buffer) Empty() bool  { return b.Bytes == 0 }
func (b *Buffer) Size() uint64 { return b.Bytes }

// Image is a fake device image.
type Image struct {
	Name string
	Dims gpucore.Extent3D
}

// NewImage returns an image with the given dimensions.
func NewImage(name string, w, h uint32) *Image {
	return &Image{Name: name, Dims: gpucore.Extent3D{X: w, Y: h, Z: 1}}
}

func (i *Image) Empty() bool               { return i.Dims.IsZero() }
func (i *Image) Extent() gpucore.Extent3D { return i.Dims }
