package gpusync

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/substrate/backend/fake"
	"github.com/vkngwrapper/substrate/gpuerr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestFenceWaitReportsHang(t *testing.T) {
	b := fake.New(fake.DefaultCapabilities())

	fence, err := NewFence(testLogger(), b, false)
	require.NoError(t, err)

	signaled, err := fence.Signaled()
	require.NoError(t, err)
	require.False(t, signaled)

	err = fence.Wait(10 * time.Millisecond)
	require.True(t, errors.Is(err, gpuerr.ErrDeviceHang))
	require.True(t, gpuerr.IsFatal(err))

	fence.Native().(*fake.Fence).Signal()
	require.NoError(t, fence.Wait(10*time.Millisecond))

	require.NoError(t, fence.Reset())
	signaled, err = fence.Signaled()
	require.NoError(t, err)
	require.False(t, signaled)

	fence.Destroy()
	require.Equal(t, 0, b.Live(fake.KindFence))
}

func TestFenceReportsDeviceLoss(t *testing.T) {
	b := fake.New(fake.DefaultCapabilities())

	fence, err := NewFence(testLogger(), b, true)
	require.NoError(t, err)
	fence.Native().(*fake.Fence).Lost = true

	err = fence.Wait(time.Second)
	require.True(t, errors.Is(err, gpuerr.ErrDeviceLost))
	require.False(t, errors.Is(err, gpuerr.ErrDeviceHang))

	_, err = fence.Signaled()
	require.True(t, errors.Is(err, gpuerr.ErrDeviceLost))
}

func TestEventHostSide(t *testing.T) {
	b := fake.New(fake.DefaultCapabilities())

	event, err := NewEvent(b)
	require.NoError(t, err)

	set, err := event.IsSet()
	require.NoError(t, err)
	require.False(t, set)

	require.NoError(t, event.Set())
	set, err = event.IsSet()
	require.NoError(t, err)
	require.True(t, set)

	require.NoError(t, event.Reset())
	set, err = event.IsSet()
	require.NoError(t, err)
	require.False(t, set)

	semaphore, err := NewSemaphore(b)
	require.NoError(t, err)

	event.Destroy()
	semaphore.Destroy()
	require.Equal(t, 0, b.LiveTotal())
}
