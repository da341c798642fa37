package compute

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/compute/gpucore"
)

// Opener opens a device for the process-wide runtime.
type Opener func() (gpucore.Device, error)

type namedOpener struct {
	name string
	open Opener
}

var (
	backendsMu sync.RWMutex
	backends   []namedOpener
)

// RegisterBackend makes a device opener available to Default. Backends
// registered earlier are tried first; registering an existing name replaces
// its opener in place.
//
// Typical usage via blank import in backend packages:
//
//	func init() {
//	    compute.RegisterBackend("vulkan", openVulkan)
//	}
func RegisterBackend(name string, open Opener) {
	if open == nil {
		panic("compute: RegisterBackend with nil opener")
	}
	backendsMu.Lock()
	defer backendsMu.Unlock()
	for i := range backends {
		if backends[i].name == name {
			backends[i].open = open
			return
		}
	}
	backends = append(backends, namedOpener{name: name, open: open})
}

// Backends returns the registered backend names in the order Default tries them.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.name
	}
	return names
}

// global is the process-wide runtime state.
var global struct {
	mu   sync.Mutex
	cfg  *Config
	rt   *Runtime
	dev  gpucore.Device
	err  error
	done bool
}

// SetDefaultConfig sets the configuration Default uses. It must be called
// before the first call to Default.
func SetDefaultConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	global.mu.Lock()
	defer global.mu.Unlock()
	if global.rt != nil || global.err != nil || global.done {
		return ErrAlreadyInitialized
	}
	global.cfg = &cfg
	return nil
}

// Default returns the process-wide runtime, constructing it on first use
// from the first registered backend that opens. A failed construction is
// not retried. After Shutdown it returns ErrClosed.
//
// Programs that use Default should defer Shutdown in main so that the
// device is drained before the process exits.
func Default() (*Runtime, error) {
	global.mu.Lock()
	defer global.mu.Unlock()
	if global.done {
		return nil, ErrClosed
	}
	if global.rt != nil || global.err != nil {
		return global.rt, global.err
	}

	cfg := DefaultConfig()
	if global.cfg != nil {
		cfg = *global.cfg
	}
	rt, dev, err := openDefault(cfg)
	if err != nil {
		global.err = err
		return nil, err
	}
	global.rt, global.dev = rt, dev
	propagateLogger(dev, slogger())
	return rt, nil
}

func openDefault(cfg Config) (*Runtime, gpucore.Device, error) {
	backendsMu.RLock()
	candidates := append([]namedOpener(nil), backends...)
	backendsMu.RUnlock()

	var errs []error
	for _, b := range candidates {
		dev, err := b.open()
		if err != nil {
			slogger().Debug("compute: backend unavailable", "backend", b.name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
			continue
		}
		rt, err := New(dev, WithConfig(cfg))
		if err != nil {
			destroyDevice(dev)
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
			continue
		}
		slogger().Info("compute: backend opened", "backend", b.name)
		return rt, dev, nil
	}
	if len(errs) == 0 {
		return nil, nil, ErrNoBackend
	}
	return nil, nil, fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}

// Available reports whether the process-wide runtime can be constructed and
// is usable.
func Available() bool {
	rt, err := Default()
	return err == nil && rt.Usable() == nil
}

// Shutdown closes the process-wide runtime, draining the device, and then
// destroys the device it was opened on. It is safe to call when Default was
// never called. Later calls to Default return ErrClosed.
func Shutdown() error {
	global.mu.Lock()
	defer global.mu.Unlock()
	if global.done {
		return nil
	}
	global.done = true
	if global.rt == nil {
		return nil
	}
	err := global.rt.Close()
	destroyDevice(global.dev)
	global.rt, global.dev = nil, nil
	return err
}

// destroyDevice releases a device opened by an Opener if it supports it.
func destroyDevice(dev gpucore.Device) {
	if d, ok := dev.(interface{ Destroy() }); ok {
		d.Destroy()
	}
}
