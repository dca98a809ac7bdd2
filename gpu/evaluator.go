package gpu

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pthm-cable/pedoni/config"
	"github.com/pthm-cable/pedoni/systems"
)

var (
	// ErrDispatchFailed wraps any device error during a tick.
	ErrDispatchFailed = errors.New("gpu dispatch failed")
	// ErrDispatchTimeout is returned when the device misses the deadline.
	ErrDispatchTimeout = errors.New("gpu dispatch timed out")
)

//go:embed shaders/socialforce.comp
var kernelTemplate string

// KernelSource returns the compute shader with the given local size.
func KernelSource(workGroupSize int) string {
	return strings.Replace(kernelTemplate, "LOCAL_SIZE", strconv.Itoa(workGroupSize), 1)
}

// Evaluator runs force evaluation on a Device. Failures are returned to the
// caller; there is no CPU fallback.
type Evaluator struct {
	dev     Device
	timeout time.Duration
	packet  Packet
}

// NewEvaluator uploads static to dev and returns an evaluator that owns it.
func NewEvaluator(dev Device, static *Static, timeout time.Duration) (*Evaluator, error) {
	if err := dev.Upload(static); err != nil {
		return nil, fmt.Errorf("%w: upload: %w", ErrDispatchFailed, err)
	}
	return &Evaluator{dev: dev, timeout: timeout}, nil
}

// Name implements the evaluator interface.
func (e *Evaluator) Name() string { return string(config.BackendGPU) }

// Evaluate packs the frame, dispatches the kernel and unpacks into Next.
// A crowd of zero is a no-op.
func (e *Evaluator) Evaluate(ctx context.Context, frame *systems.Frame) error {
	if frame.Cur.Len() == 0 {
		return nil
	}
	e.packet.Pack(frame)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out, err := e.dev.Dispatch(ctx, &e.packet)
	switch {
	case err == nil:
	case errors.Is(err, ErrDispatchTimeout), errors.Is(err, ErrDispatchFailed):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w after %v: %w", ErrDispatchTimeout, e.timeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	return Unpack(out, frame)
}

// Close releases the device.
func (e *Evaluator) Close() error {
	return e.dev.Close()
}
