package compute

import (
	"errors"
	"fmt"

	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/pool"
)

var (
	// ErrPoolExhausted is returned when a resource pool cannot hand out
	// another handle without exceeding its configured limit.
	ErrPoolExhausted = pool.ErrExhausted

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("compute: runtime closed")

	// ErrRuntimeUnusable is returned by every operation after a device failure.
	ErrRuntimeUnusable = errors.New("compute: runtime unusable after device failure")

	// ErrArgumentMismatch is returned when job arguments do not match the
	// shader layout.
	ErrArgumentMismatch = errors.New("compute: argument does not match shader layout")

	// ErrInvalidJob is returned for a job without a shader.
	ErrInvalidJob = errors.New("compute: invalid job")

	// ErrFenceWithoutLock is returned by Runtime.SubmitJob for a job that
	// carries a fence. Fenced dispatches go through a StreamLock.
	ErrFenceWithoutLock = errors.New("compute: fenced dispatch requires a stream lock")

	// ErrForeignFence is returned when a StreamLock is given a fence it did
	// not hand out.
	ErrForeignFence = errors.New("compute: fence not loaned by this stream lock")

	// ErrFenceInFlight is returned when the lock's fence is submitted a
	// second time before Wait.
	ErrFenceInFlight = errors.New("compute: fence already submitted")

	// ErrLockReleased is returned by StreamLock methods after Unlock.
	ErrLockReleased = errors.New("compute: stream lock released")

	// ErrNothingToResubmit is returned by Resubmit when no reusable command
	// buffer is retained.
	ErrNothingToResubmit = errors.New("compute: no reusable command buffer to resubmit")

	// ErrWaitTimeout is returned when a fence is not signaled within
	// Config.WaitTimeout. The submission stays pending and Wait may be retried.
	ErrWaitTimeout = errors.New("compute: fence wait timed out")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("compute: invalid configuration")

	// ErrNoBackend is returned by Default when no registered backend opens.
	ErrNoBackend = errors.New("compute: no backend available")

	// ErrAlreadyInitialized is returned by SetDefaultConfig after Default
	// has constructed the process-wide runtime.
	ErrAlreadyInitialized = errors.New("compute: default runtime already initialized")
)

// DeviceError is a failure reported by the device. The runtime that
// returned it is unusable afterwards.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("compute: device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// recoverable reports whether err leaves the device in a known state.
func recoverable(err error) bool {
	return errors.Is(err, pool.ErrExhausted) ||
		errors.Is(err, pool.ErrInvalidState) ||
		errors.Is(err, ErrNothingToResubmit) ||
		errors.Is(err, gpucore.ErrUnsupported) ||
		errors.Is(err, gpucore.ErrInvalidPipelineSpec)
}

// check returns nil if r accepts new work.
func (r *Runtime) check() error {
	if r.closed.Load() {
		return ErrClosed
	}
	if f := r.failure.Load(); f != nil {
		return fmt.Errorf("%w: %w", ErrRuntimeUnusable, f)
	}
	return nil
}

// fail classifies err returned by op. Exhaustion, misuse, rejected
// pipeline specs and unsupported capabilities are passed through; anything
// else is a device failure that makes r unusable.
func (r *Runtime) fail(op string, err error) error {
	if err == nil || recoverable(err) {
		return err
	}
	de := &DeviceError{Op: op, Err: err}
	if r.failure.CompareAndSwap(nil, de) {
		slogger().Warn("compute: device failure, runtime unusable", "op", op, "err", err)
	}
	return de
}
