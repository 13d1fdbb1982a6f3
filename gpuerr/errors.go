// Package gpuerr defines the error kinds shared by every layer of substrate.
//
// Recoverable failures are returned as errors marked with one of the sentinel kinds
// below, so callers can branch with errors.Is no matter how many times the error was
// wrapped on the way up. Programmer errors are not returned at all: Precondition panics
// with an assertion failure.
package gpuerr

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrResourceExhausted marks allocation and sub-allocation failures. The caller may
	// retry with a smaller size or a different usage class.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrUnsupported marks format, usage or memory type combinations the device cannot
	// serve. It is only ever reported at creation time.
	ErrUnsupported = errors.New("unsupported configuration")
	// ErrDeviceLost marks a device that has stopped responding. It is fatal to the device.
	ErrDeviceLost = errors.New("device lost")
	// ErrDeviceHang is returned when a bounded wait expires without the GPU signaling.
	// GPU work is not cancelled; the device should be treated as lost.
	ErrDeviceHang = errors.New("suspected device hang")
	// ErrInvalidState is returned by calls made on an object in the wrong state, such as
	// recording outside a render pass or destroying a heap that still has allocations.
	ErrInvalidState = errors.New("invalid state")
	// ErrStaleHandle is returned when a sub-allocation handle no longer refers to a live range.
	ErrStaleHandle = errors.New("stale handle")
)

// Exhausted wraps err and marks it as ErrResourceExhausted. err may be nil when there is
// no underlying cause.
func Exhausted(err error, format string, args ...any) error {
	if err == nil {
		return errors.Mark(errors.Newf(format, args...), ErrResourceExhausted)
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrResourceExhausted)
}

// Unsupported creates a new error marked as ErrUnsupported
func Unsupported(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnsupported)
}

// InvalidState creates a new error marked as ErrInvalidState
func InvalidState(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidState)
}

// DeviceLost wraps err and marks it as ErrDeviceLost
func DeviceLost(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrDeviceLost)
}

// Hang creates a new error marked as ErrDeviceHang
func Hang(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrDeviceHang)
}

// Stale creates a new error marked as ErrStaleHandle
func Stale(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrStaleHandle)
}

// IsFatal reports whether err means the device must be recreated
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceLost) || errors.Is(err, ErrDeviceHang)
}

// Precondition panics with an assertion failure. It is used for logic bugs: illegal
// state transitions, mismatched shapes, out-of-range ranges.
func Precondition(format string, args ...any) {
	panic(errors.AssertionFailedf(format, args...))
}
