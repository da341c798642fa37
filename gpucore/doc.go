// Package gpucore defines the device contract consumed by the compute runtime.
//
// The runtime never talks to a graphics API directly. Everything it needs
// from the accelerator (command buffers, descriptor sets, fences, timestamp
// queries, the pipeline cache and the submission queue) is described here as
// a small set of interfaces, and each backend supplies a thin adapter:
//
//	               +-----------------+
//	               |     compute     |
//	               |    (Runtime)    |
//	               +--------+--------+
//	                        |
//	               +--------v--------+
//	               |     gpucore     |
//	               | (Device, Queue) |
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	| backend/native  |          | internal/fakegpu|
//	|  (hal.Device)   |          |   (in memory)   |
//	+--------+--------+          +-----------------+
//	         |
//	+--------v--------+
//	|   gogpu/wgpu    |
//	| (Vulkan, noop)  |
//	+-----------------+
//
// # Handles
//
// [Fence], [DescriptorSet], [QueryPool] and [Pipeline] are opaque values a
// backend hands out and later receives back. The runtime only stores and
// forwards them; it never inspects their dynamic type.
//
// # Shaders
//
// A [ShaderInfo] carries the kernel name, its WGSL source template and the
// ordered argument layout. [PipelineSpec] combines a shader with a local
// work-group size and specialization constants; backends use
// [PipelineSpec.Key] as the pipeline cache key and [PipelineSpec.Render] to
// produce the final WGSL text.
package gpucore
