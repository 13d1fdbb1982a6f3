// Package gpusync wraps the native fences, semaphores and events that order GPU work
// against the host and against other GPU work.
package gpusync

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
)

// Fence is signaled by the GPU when a submission completes
type Fence struct {
	logger *slog.Logger
	native backend.Fence
}

// NewFence creates a fence, already signaled if signaled is set
func NewFence(logger *slog.Logger, b backend.Backend, signaled bool) (*Fence, error) {
	native, err := b.CreateFence(signaled)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fence")
	}
	return WrapFence(logger, native), nil
}

// WrapFence adopts a native fence
func WrapFence(logger *slog.Logger, native backend.Fence) *Fence {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fence{logger: logger, native: native}
}

func (f *Fence) Native() backend.Fence { return f.native }

// Signaled polls the fence without blocking
func (f *Fence) Signaled() (bool, error) {
	signaled, err := f.native.Status()
	if err != nil {
		return false, markLost(err, "polling fence")
	}
	return signaled, nil
}

// Wait blocks until the fence is signaled. If timeout expires first the GPU is assumed
// to be hung and an error marked gpuerr.ErrDeviceHang is returned. The GPU work itself
// is not cancelled.
func (f *Fence) Wait(timeout time.Duration) error {
	start := hrtime.Now()
	signaled, err := f.native.Wait(timeout)
	elapsed := hrtime.Since(start)

	if err != nil {
		return markLost(err, "waiting on fence")
	}
	if !signaled {
		f.logger.Error("Fence::Wait timed out, suspected device hang",
			slog.Duration("Timeout", timeout),
			slog.Duration("Elapsed", elapsed),
		)
		return gpuerr.Hang("fence was not signaled within %s", timeout)
	}

	f.logger.Debug("Fence::Wait", slog.Duration("Elapsed", elapsed))
	return nil
}

// Reset returns the fence to the unsignaled state
func (f *Fence) Reset() error {
	err := f.native.Reset()
	if err != nil {
		return markLost(err, "resetting fence")
	}
	return nil
}

func (f *Fence) Destroy() {
	f.native.Destroy()
}

// markLost keeps errors the backend already classified, and treats anything else
// from a synchronization primitive as a lost device
func markLost(err error, action string) error {
	if errors.Is(err, gpuerr.ErrDeviceLost) || errors.Is(err, gpuerr.ErrDeviceHang) {
		return errors.Wrap(err, action)
	}
	return gpuerr.DeviceLost(err, "%s", action)
}

// Semaphore orders one submission after another on the GPU. It has no host-visible state.
type Semaphore struct {
	native backend.Semaphore
}

// NewSemaphore creates a semaphore for ordering submissions on the GPU
func NewSemaphore(b backend.Backend) (*Semaphore, error) {
	native, err := b.CreateSemaphore()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create semaphore")
	}
	return &Semaphore{native: native}, nil
}

func (s *Semaphore) Native() backend.Semaphore { return s.native }

func (s *Semaphore) Destroy() {
	s.native.Destroy()
}

// Event can be set and reset from the host, or from a command stream through a Recorder
type Event struct {
	native backend.Event
}

// NewEvent creates an event in the reset state
func NewEvent(b backend.Backend) (*Event, error) {
	native, err := b.CreateEvent()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create event")
	}
	return &Event{native: native}, nil
}

func (e *Event) Native() backend.Event { return e.native }

func (e *Event) Set() error {
	return errors.Wrap(e.native.Set(), "failed to set event")
}

func (e *Event) Reset() error {
	return errors.Wrap(e.native.Reset(), "failed to reset event")
}

func (e *Event) IsSet() (bool, error) {
	set, err := e.native.Status()
	if err != nil {
		return false, errors.Wrap(err, "failed to read event status")
	}
	return set, nil
}

func (e *Event) Destroy() {
	e.native.Destroy()
}
