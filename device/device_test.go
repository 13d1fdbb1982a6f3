package device

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/access"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/backend/fake"
	"github.com/vkngwrapper/substrate/command"
	"github.com/vkngwrapper/substrate/gpuerr"
	"github.com/vkngwrapper/substrate/gpusync"
	"github.com/vkngwrapper/substrate/memory"
	"github.com/vkngwrapper/substrate/memutils/metadata"
	"github.com/vkngwrapper/substrate/pass"
	"github.com/vkngwrapper/substrate/resource"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestLoadConfig(t *testing.T) {
	document := `
waitTimeout: 250ms
recycleLimit: 4
heapSizeLimits: [1048576, 0]
strategy: MinOffset
ranking:
  Static:
    - DeviceLocal
    - DeviceLocal|HostVisible|HostCoherent
  Temporary:
    - HostVisible | HostCached
`
	config, err := LoadConfig(strings.NewReader(document))
	require.NoError(t, err)

	require.Equal(t, 250*time.Millisecond, config.WaitTimeout)
	require.Equal(t, 4, config.RecycleLimit)
	require.Equal(t, []int{1048576, 0}, config.HeapSizeLimits)
	require.Equal(t, metadata.AllocationStrategyMinOffset, config.Strategy)
	require.Equal(t, memory.IdealRanking{
		memory.UsageStatic: {
			core1_0.MemoryPropertyDeviceLocal,
			core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
		},
		memory.UsageTemporary: {
			core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCached,
		},
	}, config.Ranking)
}

func TestConfigRoundTrip(t *testing.T) {
	config := Config{
		WaitTimeout:    3 * time.Second,
		RecycleLimit:   8,
		HeapSizeLimits: []int{0, 4096},
		Strategy:       metadata.AllocationStrategyMinTime,
		Ranking: memory.IdealRanking{
			memory.UsageStreamed: {
				core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
				core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyLazilyAllocated,
			},
		},
	}

	var buffer bytes.Buffer
	require.NoError(t, config.WriteYAML(&buffer))
	require.Contains(t, buffer.String(), "HostVisible|HostCoherent")

	loaded, err := LoadConfig(&buffer)
	require.NoError(t, err)
	require.Equal(t, config, loaded)
}

func TestLoadConfigDefaultsAndErrors(t *testing.T) {
	config, err := LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), config)

	testCases := []struct {
		name     string
		document string
		contains string
	}{
		{name: "UnknownFlag", document: "ranking:\n  Static: [DeviceLocal|Fast]\n", contains: "unknown memory property"},
		{name: "UnknownUsage", document: "ranking:\n  Sometimes: [DeviceLocal]\n", contains: "Sometimes"},
		{name: "UnknownStrategy", document: "strategy: Fastest\n", contains: "unknown allocation strategy"},
		{name: "UnknownField", document: "timeout: 5s\n", contains: "timeout"},
		{name: "NegativeRecycleLimit", document: "recycleLimit: -1\n", contains: "negative"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := LoadConfig(strings.NewReader(testCase.document))
			require.Error(t, err)
			require.Contains(t, err.Error(), testCase.contains)
		})
	}
}

func TestMemoryPropertyNames(t *testing.T) {
	flags, err := ParseMemoryProperties("HostCached|DeviceLocal")
	require.NoError(t, err)
	require.Equal(t, core1_0.MemoryPropertyDeviceLocal|core1_0.MemoryPropertyHostCached, flags)
	require.Equal(t, "DeviceLocal|HostCached", FormatMemoryProperties(flags))

	flags, err = ParseMemoryProperties("None")
	require.NoError(t, err)
	require.Equal(t, core1_0.MemoryPropertyFlags(0), flags)
	require.Equal(t, "None", FormatMemoryProperties(0))
}

func TestDeviceRendersAFrame(t *testing.T) {
	b := fake.New(fake.DefaultCapabilities())
	dev, err := New(testLogger(), b, DefaultConfig())
	require.NoError(t, err)

	heap, err := dev.CreateHeap(memory.UsageStatic, 16<<20)
	require.NoError(t, err)
	staging, err := dev.CreateHeap(memory.UsageTemporary, 1<<20)
	require.NoError(t, err)
	transient, err := dev.CreateTransientHeap(4 << 20)
	require.NoError(t, err)
	require.True(t, transient.LazilyAllocated())

	upload, err := dev.CreateBuffer(staging, resource.BufferStaging, 4096)
	require.NoError(t, err)
	vertices, err := dev.CreateBuffer(heap, resource.BufferVertex, 4096)
	require.NoError(t, err)

	data, err := upload.Map()
	require.NoError(t, err)
	copy(data, []byte{1, 2, 3, 4})
	upload.Unmap()

	color, err := dev.CreateTexture(transient, resource.TextureState{
		Type:    resource.Texture2DMultisample,
		Format:  core1_0.FormatB8G8R8A8UnsignedNormalized,
		Width:   320,
		Height:  240,
		Samples: 4,
		Usage:   resource.UsageRenderTarget,
	})
	require.NoError(t, err)
	require.NotZero(t, color.NativeUsage()&core1_0.ImageUsageTransientAttachment)

	swapchainImage := fake.NewPresentable(core1_0.FormatB8G8R8A8UnsignedNormalized, 320, 240)
	presentable := dev.WrapPresentable(swapchainImage, resource.TextureState{
		Format: core1_0.FormatB8G8R8A8UnsignedNormalized,
		Width:  320,
		Height: 240,
	})

	colorView, err := dev.CreateView(color, resource.Texture2DMultisample, core1_0.FormatUndefined, resource.Range{}, resource.Range{})
	require.NoError(t, err)
	presentView, err := dev.CreateView(presentable, resource.Texture2D, core1_0.FormatUndefined, resource.Range{}, resource.Range{})
	require.NoError(t, err)

	renderPass, err := dev.CreateRenderPass([]pass.ColorAttachment{
		{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, Samples: 4, Load: pass.LoadClear, Store: pass.StoreResolve},
	}, nil)
	require.NoError(t, err)
	framebuffer, err := dev.CreateFramebuffer(renderPass, core1_0.Extent2D{Width: 320, Height: 240}, 1, []*resource.TextureView{colorView, presentView}, nil)
	require.NoError(t, err)

	pool, err := dev.CreateCommandPool(backend.QueueGraphics)
	require.NoError(t, err)
	recorder, err := dev.CreateCommandRecorder(pool)
	require.NoError(t, err)

	acquired, err := dev.CreateSemaphore()
	require.NoError(t, err)
	rendered, err := dev.CreateSemaphore()
	require.NoError(t, err)

	require.NoError(t, recorder.Start())
	require.NoError(t, recorder.InitialBufferBarrier(vertices, access.CopyDestination))
	require.NoError(t, recorder.CopyBuffer(upload, vertices, []core1_0.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: 4096}}))
	require.NoError(t, recorder.BufferBarrier(vertices, access.CopyDestination, access.Read, nil))
	require.NoError(t, recorder.InitialTextureBarrier(color, access.RenderTargetWrite))
	require.NoError(t, recorder.InitialTextureBarrier(presentable, access.ResolveDestination))

	require.NoError(t, recorder.BeginRenderPass(renderPass, framebuffer, pass.Clear{Colors: [][4]float32{{0, 0, 0, 1}}}))
	require.NoError(t, recorder.BindPipeline(fake.Pipeline{Point: core1_0.PipelineBindPointGraphics}))
	require.NoError(t, recorder.BindVertexBuffers(0, []*resource.Buffer{vertices}, []int{0}))
	require.NoError(t, recorder.Draw(3, 1, 0, 0))
	require.NoError(t, recorder.EndRenderPass())

	require.NoError(t, recorder.TextureBarrier(presentable, access.ResolveDestination, access.Present, nil))
	require.NoError(t, recorder.Commit(command.CommitOptions{
		Wait:   []command.SemaphoreWait{{Semaphore: acquired, Stages: core1_0.PipelineStageColorAttachmentOutput}},
		Signal: []*gpusync.Semaphore{rendered},
	}))
	require.NoError(t, recorder.WaitUntilCompleted())
	require.NoError(t, recorder.Destroy())

	graphics, err := dev.Queue(backend.QueueGraphics)
	require.NoError(t, err)
	require.Equal(t, 1, graphics.Submissions())

	require.NoError(t, pool.Destroy())
	acquired.Destroy()
	rendered.Destroy()
	framebuffer.Destroy()
	renderPass.Destroy()
	presentView.Destroy()
	colorView.Destroy()
	require.NoError(t, presentable.Destroy())
	require.NoError(t, color.Destroy())
	require.NoError(t, vertices.Destroy())
	require.NoError(t, upload.Destroy())

	err = dev.Destroy()
	require.True(t, errors.Is(err, gpuerr.ErrInvalidState))

	require.NoError(t, transient.Destroy())
	require.NoError(t, staging.Destroy())
	require.NoError(t, heap.Destroy())
	require.NoError(t, dev.Destroy())
	require.Equal(t, 0, b.LiveTotal())
}

func TestQueueLookup(t *testing.T) {
	caps := fake.DefaultCapabilities()
	caps.QueueFamilies = []backend.QueueFamily{{Index: 0, Type: backend.QueueGraphics}}

	dev, err := New(testLogger(), fake.New(caps), Config{})
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().WaitTimeout, dev.Config().WaitTimeout)

	_, err = dev.Queue(backend.QueueTransfer)
	require.True(t, errors.Is(err, gpuerr.ErrUnsupported))
	_, err = dev.CreateCommandPool(backend.QueueCompute)
	require.True(t, errors.Is(err, gpuerr.ErrUnsupported))

	caps.QueueFamilies = nil
	_, err = New(testLogger(), fake.New(caps), Config{})
	require.True(t, errors.Is(err, gpuerr.ErrUnsupported))
}

func TestWaitIdleDrainsEveryQueue(t *testing.T) {
	b := fake.New(fake.DefaultCapabilities())
	dev, err := New(testLogger(), b, Config{WaitTimeout: 10 * time.Millisecond})
	require.NoError(t, err)

	for _, queueType := range []backend.QueueType{backend.QueueGraphics, backend.QueueTransfer} {
		queue, err := dev.Queue(queueType)
		require.NoError(t, err)
		native, err := b.FakeQueue(queue.Family().Index)
		require.NoError(t, err)
		native.Hold = true

		pool, err := dev.CreateCommandPool(queueType)
		require.NoError(t, err)
		recorder, err := pool.NewRecorder()
		require.NoError(t, err)
		require.NoError(t, recorder.Start())
		require.NoError(t, recorder.Commit(command.CommitOptions{}))

		err = recorder.WaitUntilCompleted()
		require.True(t, errors.Is(err, gpuerr.ErrDeviceHang))

		defer func() {
			require.NoError(t, recorder.WaitUntilCompleted())
			require.NoError(t, recorder.Destroy())
			require.NoError(t, pool.Destroy())
		}()
	}

	require.NoError(t, dev.WaitIdle())
}

func TestStatsJSON(t *testing.T) {
	b := fake.New(fake.DefaultCapabilities())
	dev, err := New(testLogger(), b, DefaultConfig())
	require.NoError(t, err)

	heap, err := dev.CreateHeap(memory.UsageStatic, 1<<20)
	require.NoError(t, err)
	buffer, err := dev.CreateBuffer(heap, resource.BufferUniform, 1024)
	require.NoError(t, err)

	stats, err := dev.StatsJSON(true)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(stats), &parsed))
	require.Equal(t, dev.ID().String(), parsed["Device"])
	require.Len(t, parsed["Queues"], 2)
	require.Len(t, parsed["Budgets"], 2)

	memoryStats, ok := parsed["Memory"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, memoryStats, "Total")
	require.Contains(t, memoryStats, "MemoryHeaps")
	require.Contains(t, memoryStats, "DetailedMap")

	require.NoError(t, buffer.Destroy())
	require.NoError(t, heap.Destroy())
}
