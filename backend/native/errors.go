package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/compute/gpucore"
)

// Package errors for the native backend.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrBackendUnavailable is returned when the requested HAL backend is
	// not compiled in or cannot create an instance.
	ErrBackendUnavailable = errors.New("native: HAL backend unavailable")

	// ErrNotHAL is returned by NewFromProvider when the provider does not
	// expose hal.Device and hal.Queue.
	ErrNotHAL = errors.New("native: provider does not expose HAL types")

	// ErrDestroyed is returned by every operation after Destroy.
	ErrDestroyed = errors.New("native: device destroyed")

	// ErrForeignHandle is returned when a handle from another device
	// implementation is passed in.
	ErrForeignHandle = errors.New("native: handle not created by this device")

	// ErrWorkgroupTooLarge is returned when a local work-group size exceeds
	// the device limits.
	ErrWorkgroupTooLarge = fmt.Errorf("native: work-group size exceeds device limits: %w", gpucore.ErrInvalidPipelineSpec)

	// ErrNotRecording is returned when commands are recorded outside
	// Begin/End.
	ErrNotRecording = errors.New("native: command buffer not recording")

	// ErrIdleTimeout is returned by WaitIdle when the queue does not drain
	// in time.
	ErrIdleTimeout = errors.New("native: device did not become idle")

	// ErrTimestampsUnsupported is returned by the query pool methods.
	ErrTimestampsUnsupported = fmt.Errorf("native: timestamp queries: %w", gpucore.ErrUnsupported)
)
