package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/compute/internal/fakegpu"
)

func TestFencePool_GetPutReuses(t *testing.T) {
	dev := fakegpu.New()
	p, err := NewFencePool(dev, FenceConfig{InitialSize: 1})
	require.NoError(t, err)

	f, err := p.Get()
	require.NoError(t, err)
	assert.Equal(t, 1, p.Loaned())

	f.(*fakegpu.Fence).Signaled = true
	require.NoError(t, p.Put(f))
	assert.False(t, f.(*fakegpu.Fence).Signaled, "Put resets the fence")

	g, err := p.Get()
	require.NoError(t, err)
	assert.Same(t, f, g)
	assert.Equal(t, 1, dev.LiveFences())
}

func TestFencePool_MaxSize(t *testing.T) {
	dev := fakegpu.New()
	p, err := NewFencePool(dev, FenceConfig{MaxSize: 1})
	require.NoError(t, err)

	f, err := p.Get()
	require.NoError(t, err)
	_, err = p.Get()
	assert.ErrorIs(t, err, ErrExhausted)

	require.NoError(t, p.Put(f))
	_, err = p.Get()
	assert.NoError(t, err)
}

func TestFencePool_DestroyThenPut(t *testing.T) {
	dev := fakegpu.New()
	p, err := NewFencePool(dev, FenceConfig{InitialSize: 2})
	require.NoError(t, err)

	f, err := p.Get()
	require.NoError(t, err)
	p.Destroy()
	assert.Equal(t, 1, dev.LiveFences())

	require.NoError(t, p.Put(f))
	assert.Equal(t, 0, dev.LiveFences())

	_, err = p.Get()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestFencePool_Concurrent(t *testing.T) {
	dev := fakegpu.New()
	p, err := NewFencePool(dev, FenceConfig{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				f, err := p.Get()
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, p.Put(f))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, p.Loaned())
	assert.LessOrEqual(t, dev.LiveFences(), 16)
}
