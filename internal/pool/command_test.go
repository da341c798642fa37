package pool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/compute/internal/fakegpu"
)

func TestCommandPool_Preallocates(t *testing.T) {
	dev := fakegpu.New()
	p, err := NewCommandPool(dev, CommandConfig{InitialSize: 4, BatchSize: 2})
	require.NoError(t, err)

	assert.Equal(t, CommandStats{Allocated: 4, InUse: 0}, p.Stats())
	assert.Equal(t, 4, dev.LiveCommandBuffers())
}

func TestCommandPool_GrowsInBatches(t *testing.T) {
	dev := fakegpu.New()
	p, err := NewCommandPool(dev, CommandConfig{InitialSize: 1, BatchSize: 3})
	require.NoError(t, err)

	for range 2 {
		_, err := p.Acquire(false)
		require.NoError(t, err)
	}
	assert.Equal(t, CommandStats{Allocated: 4, InUse: 2}, p.Stats())
}

func TestCommandPool_MaxSize(t *testing.T) {
	dev := fakegpu.New()
	p, err := NewCommandPool(dev, CommandConfig{InitialSize: 1, BatchSize: 4, MaxSize: 2})
	require.NoError(t, err)

	_, err = p.Acquire(false)
	require.NoError(t, err)
	_, err = p.Acquire(false)
	require.NoError(t, err)

	_, err = p.Acquire(false)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 2, p.Stats().Allocated)
}

func TestCommandPool_ResetRecycles(t *testing.T) {
	dev := fakegpu.New()
	p, err := NewCommandPool(dev, CommandConfig{InitialSize: 1, BatchSize: 1, MaxSize: 1})
	require.NoError(t, err)

	c, err := p.Acquire(false)
	require.NoError(t, err)
	require.NoError(t, c.End())
	c.MarkSubmitted(false)
	assert.Equal(t, CommandInvalid, c.State())

	require.NoError(t, p.Reset())
	assert.Equal(t, CommandStats{Allocated: 1, InUse: 0}, p.Stats())

	again, err := p.Acquire(true)
	require.NoError(t, err)
	assert.Same(t, c, again)
	assert.Equal(t, CommandRecording, again.State())
	assert.True(t, again.Reusable())
}

func TestCommand_StateMachine(t *testing.T) {
	dev := fakegpu.New()
	p, err := NewCommandPool(dev, CommandConfig{InitialSize: 1})
	require.NoError(t, err)

	c, err := p.Acquire(true)
	require.NoError(t, err)

	assert.ErrorIs(t, c.CheckSubmittable(), ErrInvalidState)
	require.NoError(t, c.End())
	assert.ErrorIs(t, c.End(), ErrInvalidState)
	require.NoError(t, c.CheckSubmittable())

	c.MarkSubmitted(false)
	assert.Equal(t, CommandSubmitted, c.State())
	require.NoError(t, c.CheckSubmittable(), "reusable buffer may be resubmitted")

	c.MarkSubmitted(true)
	assert.Equal(t, CommandInvalid, c.State())
	assert.ErrorIs(t, c.CheckSubmittable(), ErrInvalidState)
}

func TestCommandPool_DeviceFailure(t *testing.T) {
	dev := fakegpu.New()
	boom := errors.New("boom")
	dev.Fail(fakegpu.OpCreateCommandBuffer, boom)

	_, err := NewCommandPool(dev, CommandConfig{InitialSize: 2})
	assert.ErrorIs(t, err, boom)

	dev.Fail(fakegpu.OpCreateCommandBuffer, nil)
	p, err := NewCommandPool(dev, CommandConfig{})
	require.NoError(t, err)
	dev.Fail(fakegpu.OpBegin, boom)
	_, err = p.Acquire(false)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.Stats().InUse)
}

func TestCommandPool_Destroy(t *testing.T) {
	dev := fakegpu.New()
	p, err := NewCommandPool(dev, CommandConfig{InitialSize: 3})
	require.NoError(t, err)
	_, err = p.Acquire(false)
	require.NoError(t, err)

	p.Destroy()
	assert.Equal(t, 0, dev.LiveCommandBuffers())
}
