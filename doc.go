// Package compute is a GPU compute dispatch runtime.
//
// A [Runtime] owns everything needed to submit and synchronize compute
// shader work on one device: a single recording stream, the command,
// descriptor, fence and query pools, and two deferred reclaim lists for
// buffers and images that may still be in use by the device. Many logical
// dispatches are batched into few physical submissions; the batch is
// submitted when its size reaches [Config.CmdSubmitFrequency] or when a
// dispatch carries a fence.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/compute"
//	    _ "github.com/gogpu/compute/backend/native" // registers the native backend
//	)
//
//	func main() {
//	    defer compute.Shutdown()
//
//	    rt, err := compute.Default()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    _, err = rt.SubmitJob(compute.Job{
//	        Shader:     &addShader,
//	        GlobalSize: gpucore.Extent3D{X: n, Y: 1, Z: 1},
//	        LocalSize:  gpucore.Extent3D{X: 64, Y: 1, Z: 1},
//	        Args: []compute.Argument{
//	            compute.Buffer(out, gpucore.AccessWrite),
//	            compute.Buffer(in, gpucore.AccessRead),
//	        },
//	    })
//	}
//
// # Waiting for results
//
// Waiting on the device goes through a [StreamLock], which holds the stream
// lock from the last dispatch until the wait completes so that no other
// goroutine can slip work into the fenced submission:
//
//	l := rt.Lock()
//	defer l.Unlock()
//	fence, err := l.Fence()
//	...
//	_, err = l.SubmitJob(compute.Job{..., Fence: fence})
//	err = l.Wait()
//
// A successful Wait proves the device idle up to that submission. The
// runtime then recycles its command and descriptor pools and destroys the
// resources registered for cleanup before the submission.
//
// # Empty arguments
//
// A dispatch whose arguments have no backing memory is skipped without
// error. If it carries a fence and earlier dispatches are pending, the
// pending batch is submitted anyway so that waiting on the fence works.
//
// # Errors
//
// Pool exhaustion is reported with [ErrPoolExhausted]. A failure reported
// by the device is fatal: it is returned as a [*DeviceError] and every
// later call fails with [ErrRuntimeUnusable].
//
// # Logging
//
// compute logs through [log/slog] and is silent by default; see [SetLogger].
package compute
