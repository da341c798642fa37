package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compute"
	"github.com/gogpu/compute/backend/native"
	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/parallel"
)

// addShader computes out = a + b*scale + offset.
var addShader = gpucore.ShaderInfo{
	Name: "demo_add",
	Source: `const OFFSET: f32 = {{.Spec.offset}};

struct Params {
    count: u32,
    scale: f32,
}

@group(0) @binding(0) var<storage, read_write> out: array<f32>;
@group(0) @binding(1) var<storage, read_write> a: array<f32>;
@group(0) @binding(2) var<storage, read_write> b: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{.LocalSize.X}}, 1, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x >= params.count) {
        return;
    }
    out[id.x] = a[id.x] + b[id.x] * params.scale + OFFSET;
}
`,
	Layout: []gpucore.DescriptorType{
		gpucore.DescriptorTypeStorageBuffer,
		gpucore.DescriptorTypeStorageBuffer,
		gpucore.DescriptorTypeStorageBuffer,
		gpucore.DescriptorTypeUniformBuffer,
	},
}

const (
	demoScale  = 2
	demoOffset = 0.5
	localSize  = 64
)

type demoBuffers struct {
	out, a, b, params *native.Buffer
}

func run(ctx context.Context, w io.Writer, cfg demoConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	compute.SetLogger(logger)

	rt, dev, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	dev.SetLogger(logger)

	bufs, err := createBuffers(dev, cfg.Elements)
	defer func() {
		// The runtime destroys the buffers once it has drained.
		for _, b := range []*native.Buffer{bufs.out, bufs.a, bufs.b, bufs.params} {
			if b != nil {
				rt.RegisterBufferCleanup(b)
			}
		}
		if err := closeRuntime(rt, dev, cfg); err != nil {
			logger.Error("close runtime", "err", err)
		}
	}()
	if err != nil {
		return err
	}

	if cfg.Profile {
		if err := rt.Diagnostics().Initialize(); errors.Is(err, gpucore.ErrUnsupported) {
			fmt.Fprintln(w, "profiling: timestamps not supported by this backend")
		} else if err != nil {
			return err
		}
	}

	start := time.Now()
	if err := submitConcurrently(ctx, rt, bufs, cfg); err != nil {
		return err
	}
	if err := rt.Flush(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := report(w, rt, cfg, elapsed); err != nil {
		return err
	}

	if cfg.Verify {
		if cfg.Backend == "noop" {
			fmt.Fprintln(w, "verify: skipped, the noop backend does not execute shaders")
		} else if err := verify(w, dev, bufs, cfg.Elements); err != nil {
			return err
		}
	}
	return nil
}

func closeRuntime(rt *compute.Runtime, dev *native.Device, cfg demoConfig) error {
	if cfg.Backend == "default" {
		return compute.Shutdown()
	}
	err := rt.Close()
	dev.Destroy()
	return err
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

func openRuntime(cfg demoConfig) (*compute.Runtime, *native.Device, error) {
	var opts []native.Option
	if cfg.SPIRV {
		opts = append(opts, native.WithSPIRV())
	}

	switch cfg.Backend {
	case "default":
		if err := compute.SetDefaultConfig(cfg.Runtime); err != nil {
			return nil, nil, err
		}
		rt, err := compute.Default()
		if err != nil {
			return nil, nil, err
		}
		dev, ok := rt.Device().(*native.Device)
		if !ok {
			return nil, nil, fmt.Errorf("default runtime uses %T, not a native device", rt.Device())
		}
		return rt, dev, nil
	case "vulkan":
		dev, err := native.OpenVulkan(opts...)
		if err != nil {
			return nil, nil, err
		}
		rt, err := compute.New(dev, compute.WithConfig(cfg.Runtime))
		if err != nil {
			dev.Destroy()
			return nil, nil, err
		}
		return rt, dev, nil
	default:
		dev, err := native.OpenNoop(opts...)
		if err != nil {
			return nil, nil, err
		}
		rt, err := compute.New(dev, compute.WithConfig(cfg.Runtime))
		if err != nil {
			dev.Destroy()
			return nil, nil, err
		}
		return rt, dev, nil
	}
}

func createBuffers(dev *native.Device, n uint32) (demoBuffers, error) {
	size := uint64(n) * 4
	var bufs demoBuffers
	var err error
	if bufs.out, err = dev.CreateBuffer("demo_out", size, 0); err != nil {
		return bufs, err
	}
	if bufs.a, err = dev.CreateBuffer("demo_a", size, 0); err != nil {
		return bufs, err
	}
	if bufs.b, err = dev.CreateBuffer("demo_b", size, 0); err != nil {
		return bufs, err
	}
	if bufs.params, err = dev.CreateBuffer("demo_params", 16,
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst); err != nil {
		return bufs, err
	}

	a := make([]byte, size)
	b := make([]byte, size)
	for i := range n {
		binary.LittleEndian.PutUint32(a[i*4:], math.Float32bits(float32(i)))
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(float32(i%7)))
	}
	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params[0:], n)
	binary.LittleEndian.PutUint32(params[4:], math.Float32bits(demoScale))

	if err := dev.WriteBuffer(bufs.a, 0, a); err != nil {
		return bufs, err
	}
	if err := dev.WriteBuffer(bufs.b, 0, b); err != nil {
		return bufs, err
	}
	return bufs, dev.WriteBuffer(bufs.params, 0, params)
}

func (b demoBuffers) job(n uint32, id uint32) compute.Job {
	return compute.Job{
		Shader: &addShader,
		Barrier: gpucore.NewBarrier(gpucore.StageCompute, gpucore.StageCompute).
			AddBuffer(b.out, gpucore.AccessWrite, gpucore.AccessWrite),
		GlobalSize:    gpucore.Extent3D{X: n, Y: 1, Z: 1},
		LocalSize:     gpucore.Extent3D{X: localSize, Y: 1, Z: 1},
		SpecConstants: []gpucore.SpecConstant{gpucore.SpecFloat("offset", demoOffset)},
		DispatchID:    id,
		Args: []compute.Argument{
			compute.Buffer(b.out, gpucore.AccessWrite),
			compute.Buffer(b.a, gpucore.AccessRead),
			compute.Buffer(b.b, gpucore.AccessRead),
			compute.Params(b.params),
		},
	}
}

// submitConcurrently runs one task per goroutine. Even tasks end their run
// with a fenced dispatch under a stream lock and wait for it; odd tasks only
// use automatic batching.
func submitConcurrently(ctx context.Context, rt *compute.Runtime, bufs demoBuffers, cfg demoConfig) error {
	pool := parallel.NewWorkerPool(cfg.Goroutines)
	defer pool.Close()

	tasks := make([]parallel.Task, cfg.Goroutines)
	for g := range tasks {
		tasks[g] = func(ctx context.Context) error {
			for i := range cfg.Dispatches {
				if err := ctx.Err(); err != nil {
					return err
				}
				id := uint32(g*cfg.Dispatches + i)
				job := bufs.job(cfg.Elements, id)

				if g%2 == 1 || i != cfg.Dispatches-1 {
					if _, err := rt.SubmitJob(job); err != nil {
						return fmt.Errorf("goroutine %d dispatch %d: %w", g, i, err)
					}
					continue
				}
				if err := submitFenced(rt, job); err != nil {
					return fmt.Errorf("goroutine %d fenced dispatch: %w", g, err)
				}
			}
			return nil
		}
	}
	return pool.Run(ctx, tasks)
}

func submitFenced(rt *compute.Runtime, job compute.Job) error {
	lock := rt.Lock()
	defer lock.Unlock()

	fence, err := lock.Fence()
	if err != nil {
		return err
	}
	job.Fence = fence
	if _, err := lock.SubmitJob(job); err != nil {
		return err
	}
	return lock.Wait()
}

func report(w io.Writer, rt *compute.Runtime, cfg demoConfig, elapsed time.Duration) error {
	s := rt.Stats()
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "backend             %s\n", cfg.Backend)
	p.Fprintf(w, "goroutines          %d\n", cfg.Goroutines)
	p.Fprintf(w, "dispatches          %d\n", s.Dispatches)
	p.Fprintf(w, "submissions         %d (every %d dispatches)\n", s.Submissions, rt.Config().CmdSubmitFrequency)
	p.Fprintf(w, "command buffers     %d allocated\n", s.CommandBuffersAllocated)
	p.Fprintf(w, "descriptor blocks   %d\n", s.DescriptorBlocks)
	p.Fprintf(w, "elapsed             %v\n", elapsed.Round(time.Microsecond))

	if !rt.Diagnostics().Enabled() {
		return nil
	}
	prof, err := rt.Diagnostics().Profile()
	if err != nil {
		return err
	}
	return prof.WriteReport(w)
}

func verify(w io.Writer, dev *native.Device, bufs demoBuffers, n uint32) error {
	got := make([]byte, uint64(n)*4)
	if err := dev.ReadBuffer(bufs.out, got); err != nil {
		return err
	}
	for i := range n {
		want := float32(i) + float32(i%7)*demoScale + demoOffset
		v := math.Float32frombits(binary.LittleEndian.Uint32(got[i*4:]))
		if v != want {
			return fmt.Errorf("verify: out[%d] = %v, want %v", i, v, want)
		}
	}
	fmt.Fprintf(w, "verify: %d elements ok\n", n)
	return nil
}
