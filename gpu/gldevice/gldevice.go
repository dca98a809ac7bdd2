// Package gldevice runs the social force kernel as an OpenGL 4.3 compute
// shader. All GL calls happen on one goroutine locked to its OS thread,
// which owns a hidden GLFW window for the context.
package gldevice

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/pthm-cable/pedoni/gpu"
)

// ErrClosed is returned by calls after Close.
var ErrClosed = errors.New("gl device closed")

// pollInterval bounds each fence wait so deadlines are noticed.
const pollInterval = time.Millisecond

// SSBO binding points, matching the kernel.
const (
	bindPos = iota
	bindVel
	bindSpeed
	bindDest
	bindOffsets
	bindResult
	numBuffers
)

// Device is a gpu.Device backed by an OpenGL compute shader.
type Device struct {
	jobs      chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the GL goroutine.
	window   *glfw.Window
	program  uint32
	buffers  [numBuffers]uint32
	texture  uint32
	static   *gpu.Static
	uniforms map[string]int32
}

var _ gpu.Device = (*Device)(nil)

// New creates the GL context on a dedicated thread.
func New() (*Device, error) {
	d := &Device{
		jobs: make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	ready := make(chan error, 1)
	go d.loop(ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) loop(ready chan<- error) {
	runtime.LockOSThread()
	defer close(d.done)

	if err := d.init(); err != nil {
		ready <- err
		return
	}
	ready <- nil

	for {
		select {
		case job := <-d.jobs:
			job()
		case <-d.quit:
			d.release()
			return
		}
	}
}

func (d *Device) init() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	window, err := glfw.CreateWindow(1, 1, "pedoni", nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("failed to create window: %w", err)
	}
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		window.Destroy()
		glfw.Terminate()
		return fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	d.window = window
	gl.GenBuffers(numBuffers, &d.buffers[0])
	gl.GenTextures(1, &d.texture)
	return nil
}

func (d *Device) release() {
	if d.program != 0 {
		gl.DeleteProgram(d.program)
	}
	gl.DeleteBuffers(numBuffers, &d.buffers[0])
	gl.DeleteTextures(1, &d.texture)
	d.window.Destroy()
	glfw.Terminate()
}

// call runs fn on the GL thread and waits for it. fn is responsible for
// honouring ctx once it has started.
func (d *Device) call(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case d.jobs <- func() { errc <- fn() }:
	case <-d.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-errc
}

// Upload compiles the kernel for s.WorkGroupSize and uploads the field layers.
func (d *Device) Upload(s *gpu.Static) error {
	if !s.Params.UseDistanceMap {
		return gpu.ErrSegmentObstacles
	}
	return d.call(context.Background(), func() error {
		program, err := compileComputeShader(gpu.KernelSource(s.WorkGroupSize))
		if err != nil {
			return err
		}
		if d.program != 0 {
			gl.DeleteProgram(d.program)
		}
		d.program = program
		d.static = s
		d.uniforms = make(map[string]int32)

		d.uploadField(s)
		return glError("upload")
	})
}

// uploadField stores the layers as an R32F array texture. Linear filtering
// with texel centres at (i+0.5)/cols reproduces bilinear sampling at
// grid-local coordinates; the border reads as unreachable.
func (d *Device) uploadField(s *gpu.Static) {
	gl.BindTexture(gl.TEXTURE_2D_ARRAY, d.texture)
	gl.TexImage3D(gl.TEXTURE_2D_ARRAY, 0, gl.R32F, int32(s.Cols), int32(s.Rows), int32(s.Layers),
		0, gl.RED, gl.FLOAT, gl.Ptr(&s.Field[0]))
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_BORDER)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_BORDER)
	border := [4]float32{1e12, 1e12, 1e12, 1e12}
	gl.TexParameterfv(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_BORDER_COLOR, &border[0])
}

// Dispatch runs the kernel for one tick.
func (d *Device) Dispatch(ctx context.Context, p *gpu.Packet) ([]float32, error) {
	out := make([]float32, 4*p.N)
	err := d.call(ctx, func() error {
		if d.static == nil {
			return fmt.Errorf("%w: dispatch before upload", gpu.ErrDispatchFailed)
		}
		return d.dispatch(ctx, p, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Device) dispatch(ctx context.Context, p *gpu.Packet, out []float32) error {
	s := d.static
	n := p.N
	if n == 0 {
		return nil
	}

	storage(d.buffers[bindPos], bindPos, p.Pos[:2*n])
	storage(d.buffers[bindVel], bindVel, p.Vel[:2*n])
	storage(d.buffers[bindSpeed], bindSpeed, p.Speed[:n])
	storage(d.buffers[bindDest], bindDest, p.Dest[:n])
	offsets := p.Offsets
	if len(offsets) == 0 {
		offsets = []int32{0}
	}
	storage(d.buffers[bindOffsets], bindOffsets, offsets)

	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, d.buffers[bindResult])
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, 16*n, nil, gl.DYNAMIC_READ)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindResult, d.buffers[bindResult])

	gl.UseProgram(d.program)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D_ARRAY, d.texture)
	gl.Uniform1i(d.uniform("field"), 0)

	gl.Uniform1i(d.uniform("n"), int32(n))
	gl.Uniform2f(d.uniform("fieldShape"), float32(s.Cols), float32(s.Rows))
	gl.Uniform1f(d.uniform("unit"), s.Unit)
	useGrid := int32(0)
	if s.UseGrid && len(p.Offsets) > 0 {
		useGrid = 1
	}
	gl.Uniform1i(d.uniform("useGrid"), useGrid)
	gl.Uniform2i(d.uniform("gridShape"), int32(s.GridCols), int32(s.GridRows))
	gl.Uniform1f(d.uniform("gridUnit"), s.GridUnit)

	m := s.Params
	gl.Uniform1f(d.uniform("dt"), m.DT)
	gl.Uniform1f(d.uniform("tau"), m.Tau)
	gl.Uniform1f(d.uniform("strengthA"), m.A)
	gl.Uniform1f(d.uniform("rangeB"), m.B)
	gl.Uniform1f(d.uniform("lookahead"), m.Lookahead)
	gl.Uniform1f(d.uniform("cosPhi"), m.CosPhi)
	gl.Uniform1f(d.uniform("unseenFactor"), m.UnseenFactor)
	gl.Uniform1f(d.uniform("cutoffSq"), m.CutoffSq)
	gl.Uniform1f(d.uniform("obstacleStrength"), m.ObstacleStrength)
	gl.Uniform1f(d.uniform("obstacleRange"), m.ObstacleRange)
	gl.Uniform1f(d.uniform("overshoot"), m.Overshoot)

	groups := (n + s.WorkGroupSize - 1) / s.WorkGroupSize
	gl.DispatchCompute(uint32(groups), 1, 1)
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT | gl.BUFFER_UPDATE_BARRIER_BIT)
	if err := glError("dispatch"); err != nil {
		return err
	}

	fence := gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	defer gl.DeleteSync(fence)
	for {
		switch gl.ClientWaitSync(fence, gl.SYNC_FLUSH_COMMANDS_BIT, uint64(pollInterval.Nanoseconds())) {
		case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
			gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, d.buffers[bindResult])
			gl.GetBufferSubData(gl.SHADER_STORAGE_BUFFER, 0, 16*n, gl.Ptr(&out[0]))
			return glError("readback")
		case gl.WAIT_FAILED:
			return fmt.Errorf("%w: fence wait failed", gpu.ErrDispatchFailed)
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: %w", gpu.ErrDispatchTimeout, err)
			}
			return err
		}
	}
}

func (d *Device) uniform(name string) int32 {
	if loc, ok := d.uniforms[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(d.program, gl.Str(name+"\x00"))
	d.uniforms[name] = loc
	return loc
}

// Close destroys the context and stops the GL thread.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		close(d.quit)
		<-d.done
	})
	return nil
}

func storage[T float32 | int32](buf uint32, binding uint32, data []T) {
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, buf)
	if len(data) == 0 {
		gl.BufferData(gl.SHADER_STORAGE_BUFFER, 4, nil, gl.DYNAMIC_DRAW)
	} else {
		gl.BufferData(gl.SHADER_STORAGE_BUFFER, 4*len(data), gl.Ptr(&data[0]), gl.DYNAMIC_DRAW)
	}
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, binding, buf)
}

func glError(stage string) error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("%w: %s: GL error 0x%x", gpu.ErrDispatchFailed, stage, code)
	}
	return nil
}

// compileComputeShader compiles and links a compute program.
func compileComputeShader(source string) (uint32, error) {
	shader := gl.CreateShader(gl.COMPUTE_SHADER)

	csource, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compute shader compilation failed: %s", log)
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, shader)
	gl.LinkProgram(program)
	gl.DeleteShader(shader)

	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("compute program link failed: %s", log)
	}

	return program, nil
}
