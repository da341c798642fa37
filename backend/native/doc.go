// Package native implements gpucore.Device on the Pure Go gogpu/wgpu HAL.
//
// A Device wraps one hal.Device and its queue. It can open its own Vulkan
// device, use the noop HAL for testing, or share the device of a host
// application through gpucontext:
//
//	dev, err := native.OpenVulkan()
//	if err != nil {
//	    return err
//	}
//	defer dev.Destroy()
//
//	rt, err := compute.New(dev)
//
// Importing the package registers the "vulkan" backend with
// compute.RegisterBackend, so compute.Default can open it:
//
//	import _ "github.com/gogpu/compute/backend/native"
//
// # Recording model
//
// A command buffer wraps one hal.CommandEncoder. Every dispatch is recorded
// as its own compute pass; the pass boundary orders storage accesses between
// consecutive dispatches, so buffer barriers need no explicit command. Image
// barriers are recorded as texture usage transitions.
//
// Fences are timeline fences. Each fenced submission signals the next value
// and Wait waits for the value of the last submission.
//
// # Timestamps
//
// The HAL surface used here has no timestamp queries. CreateQueryPool
// returns an error wrapping gpucore.ErrUnsupported and the runtime keeps
// diagnostics disabled.
package native
