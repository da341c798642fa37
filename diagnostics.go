// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"cmp"
	"errors"
	"io"
	"slices"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/compute/gpucore"
)

// Diagnostics timestamps dispatches for profiling. It is disabled until
// Initialize and costs nothing while disabled. Reset and the start/end
// markers recorded around each dispatch are no-ops before Initialize.
//
// Diagnostics methods take the stream lock and must not be called by a
// goroutine that holds a StreamLock.
type Diagnostics struct {
	r *Runtime
}

// Diagnostics returns the runtime's diagnostics recorder.
func (r *Runtime) Diagnostics() *Diagnostics { return &r.diag }

// Initialize allocates the timestamp query pool. It is idempotent. Backends
// without timestamp support return an error wrapping gpucore.ErrUnsupported
// and the runtime stays usable.
func (d *Diagnostics) Initialize() error {
	r := d.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return err
	}
	if err := r.queries.Initialize(); err != nil {
		if errors.Is(err, gpucore.ErrUnsupported) {
			return err
		}
		return r.fail("create query pool", err)
	}
	return nil
}

// Enabled reports whether Initialize has succeeded.
func (d *Diagnostics) Enabled() bool {
	d.r.mu.Lock()
	defer d.r.mu.Unlock()
	return d.r.queries.Initialized()
}

// Reset starts a new measurement window.
func (d *Diagnostics) Reset() {
	d.r.mu.Lock()
	defer d.r.mu.Unlock()
	d.r.queries.Reset()
}

// Profile reads the timestamps recorded in the current window. The
// dispatches must have completed, for example after Flush.
func (d *Diagnostics) Profile() (Profile, error) {
	r := d.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return Profile{}, err
	}
	timings, err := r.queries.Results()
	if err != nil {
		return Profile{}, r.fail("query results", err)
	}

	period := r.device.TimestampPeriod()
	p := Profile{Dropped: r.queries.Dropped()}
	for _, t := range timings {
		sd := ShaderDuration{
			Kernel:     t.Kernel,
			DispatchID: t.DispatchID,
			GlobalSize: t.GlobalSize,
			LocalSize:  t.LocalSize,
			StartTick:  t.StartTick,
			EndTick:    t.EndTick,
		}
		if t.EndTick > t.StartTick {
			sd.Duration = time.Duration(float64(t.EndTick-t.StartTick) * period)
		}
		p.Entries = append(p.Entries, sd)
	}
	return p, nil
}

// ShaderDuration is the measured execution time of one dispatch.
type ShaderDuration struct {
	Kernel     string
	DispatchID uint32
	GlobalSize gpucore.Extent3D
	LocalSize  gpucore.Extent3D
	StartTick  uint64
	EndTick    uint64
	Duration   time.Duration
}

// KernelTotal aggregates the dispatches of one kernel.
type KernelTotal struct {
	Kernel     string
	Dispatches int
	Total      time.Duration
}

// Profile is the result of one measurement window.
type Profile struct {
	Entries []ShaderDuration
	// Dropped counts dispatches that were not timed because the query pool
	// was full.
	Dropped int
}

// Total returns the sum of all dispatch durations.
func (p Profile) Total() time.Duration {
	var total time.Duration
	for _, e := range p.Entries {
		total += e.Duration
	}
	return total
}

// ByKernel returns per-kernel totals, longest first.
func (p Profile) ByKernel() []KernelTotal {
	idx := make(map[string]int)
	var out []KernelTotal
	for _, e := range p.Entries {
		i, ok := idx[e.Kernel]
		if !ok {
			i = len(out)
			idx[e.Kernel] = i
			out = append(out, KernelTotal{Kernel: e.Kernel})
		}
		out[i].Dispatches++
		out[i].Total += e.Duration
	}
	slices.SortStableFunc(out, func(a, b KernelTotal) int {
		return cmp.Compare(b.Total, a.Total)
	})
	return out
}

// WriteReport writes a table of every timed dispatch followed by per-kernel
// totals. Durations are printed in microseconds with locale grouping.
func (p Profile) WriteReport(w io.Writer) error {
	pr := message.NewPrinter(language.English)

	if _, err := pr.Fprintf(w, "%-32s %8s %14s %14s %12s\n", "kernel", "id", "global", "local", "time (us)"); err != nil {
		return err
	}
	for _, e := range p.Entries {
		if _, err := pr.Fprintf(w, "%-32s %8d %14s %14s %12d\n",
			e.Kernel, e.DispatchID, e.GlobalSize, e.LocalSize, e.Duration.Microseconds()); err != nil {
			return err
		}
	}
	if _, err := pr.Fprintf(w, "\n%-32s %8s %12s\n", "kernel", "count", "total (us)"); err != nil {
		return err
	}
	for _, k := range p.ByKernel() {
		if _, err := pr.Fprintf(w, "%-32s %8d %12d\n", k.Kernel, k.Dispatches, k.Total.Microseconds()); err != nil {
			return err
		}
	}
	if _, err := pr.Fprintf(w, "total: %d us over %d dispatches", p.Total().Microseconds(), len(p.Entries)); err != nil {
		return err
	}
	if p.Dropped > 0 {
		if _, err := pr.Fprintf(w, ", %d not timed", p.Dropped); err != nil {
			return err
		}
	}
	_, err := pr.Fprintln(w)
	return err
}
