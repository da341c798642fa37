package native

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/compute"
	"github.com/gogpu/compute/gpucore"
)

func init() {
	compute.RegisterBackend("vulkan", openVulkan)
}

func openVulkan() (gpucore.Device, error) {
	return OpenVulkan()
}

// OpenVulkan creates a Vulkan instance and opens the first discrete or
// integrated GPU, falling back to the first adapter. The returned Device
// owns the instance and device; Destroy releases them.
func OpenVulkan(opts ...Option) (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan", ErrBackendUnavailable)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: vulkan: %w", ErrBackendUnavailable, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}
	selected := selectAdapter(adapters)

	d, err := openAdapter(instance, selected, opts)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	slogger().Info("native: opened vulkan device", "adapter", selected.Info.Name)
	return d, nil
}

// OpenNoop opens a device on the noop HAL. Commands are accepted and
// discarded; fences signal immediately. It is meant for tests and for
// exercising the runtime without a GPU.
func OpenNoop(opts ...Option) (*Device, error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: noop: %w", ErrBackendUnavailable, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}
	d, err := openAdapter(instance, &adapters[0], opts)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	return d, nil
}

func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i]
		}
	}
	return &adapters[0]
}

func openAdapter(instance hal.Instance, adapter *hal.ExposedAdapter, opts []Option) (*Device, error) {
	limits := gputypes.DefaultLimits()
	openDev, err := adapter.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		return nil, fmt.Errorf("native: open device %q: %w", adapter.Info.Name, err)
	}
	d, err := New(openDev.Device, openDev.Queue, append([]Option{WithLimits(limits)}, opts...)...)
	if err != nil {
		openDev.Device.Destroy()
		return nil, err
	}
	d.instance = instance
	d.owned = true
	return d, nil
}

// NewFromProvider shares the device of a host application. The provider
// must also implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue, as gogpu does. The host keeps ownership of the
// device.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNotHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNotHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNotHAL)
	}
	return New(device, queue, opts...)
}
