package vulkan

import (
	"time"

	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
)

type fence struct {
	device core1_0.Device
	native core1_0.Fence
}

func (b *Backend) CreateFence(signaled bool) (backend.Fence, error) {
	var flags core1_0.FenceCreateFlags
	if signaled {
		flags = core1_0.FenceCreateSignaled
	}

	native, res, err := b.device.CreateFence(nil, core1_0.FenceCreateInfo{Flags: flags})
	if err != nil {
		return nil, classify(res, err, "creating fence")
	}
	return &fence{device: b.device, native: native}, nil
}

func (f *fence) Wait(timeout time.Duration) (bool, error) {
	res, err := f.native.Wait(timeout)
	if err != nil {
		return false, classify(res, err, "waiting for fence")
	}
	return res != core1_0.VKTimeout, nil
}

func (f *fence) Status() (bool, error) {
	res, err := f.native.Status()
	if err != nil {
		return false, classify(res, err, "reading fence status")
	}
	return res == core1_0.VKSuccess, nil
}

func (f *fence) Reset() error {
	res, err := f.device.ResetFences([]core1_0.Fence{f.native})
	return classify(res, err, "resetting fence")
}

func (f *fence) Destroy() {
	f.native.Destroy(nil)
}

type semaphore struct {
	native core1_0.Semaphore
}

func (b *Backend) CreateSemaphore() (backend.Semaphore, error) {
	native, res, err := b.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, classify(res, err, "creating semaphore")
	}
	return &semaphore{native: native}, nil
}

func (s *semaphore) Destroy() {
	s.native.Destroy(nil)
}

func nativeSemaphore(sem backend.Semaphore) core1_0.Semaphore {
	vkSemaphore, ok := sem.(*semaphore)
	if !ok {
		gpuerr.Precondition("semaphore %T was not created by the vulkan backend", sem)
	}
	return vkSemaphore.native
}

type event struct {
	native core1_0.Event
}

func (b *Backend) CreateEvent() (backend.Event, error) {
	native, res, err := b.device.CreateEvent(nil, core1_0.EventCreateInfo{})
	if err != nil {
		return nil, classify(res, err, "creating event")
	}
	return &event{native: native}, nil
}

func (e *event) Set() error {
	res, err := e.native.Set()
	return classify(res, err, "setting event")
}

func (e *event) Reset() error {
	res, err := e.native.Reset()
	return classify(res, err, "resetting event")
}

func (e *event) Status() (bool, error) {
	res, err := e.native.Status()
	if err != nil {
		return false, classify(res, err, "reading event status")
	}
	return res == core1_0.VKEventSet, nil
}

func (e *event) Destroy() {
	e.native.Destroy(nil)
}

func nativeEvent(ev backend.Event) core1_0.Event {
	vkEvent, ok := ev.(*event)
	if !ok {
		gpuerr.Precondition("event %T was not created by the vulkan backend", ev)
	}
	return vkEvent.native
}

// Queue submits to queue 0 of a family
type Queue struct {
	native core1_0.Queue
}

func (q *Queue) Submit(submission backend.Submission, f backend.Fence) error {
	info := core1_0.SubmitInfo{
		CommandBuffers: make([]core1_0.CommandBuffer, 0, len(submission.Streams)),
	}
	for _, stream := range submission.Streams {
		info.CommandBuffers = append(info.CommandBuffers, nativeStream(stream).native)
	}
	for _, wait := range submission.Wait {
		info.WaitSemaphores = append(info.WaitSemaphores, nativeSemaphore(wait.Semaphore))
		info.WaitDstStageMask = append(info.WaitDstStageMask, wait.Stages)
	}
	for _, signal := range submission.Signal {
		info.SignalSemaphores = append(info.SignalSemaphores, nativeSemaphore(signal))
	}

	var nativeFence core1_0.Fence
	if f != nil {
		vkFence, ok := f.(*fence)
		if !ok {
			gpuerr.Precondition("fence %T was not created by the vulkan backend", f)
		}
		nativeFence = vkFence.native
	}

	res, err := q.native.Submit(nativeFence, []core1_0.SubmitInfo{info})
	return classify(res, err, "submitting to queue")
}

func (q *Queue) WaitIdle() error {
	res, err := q.native.WaitIdle()
	return classify(res, err, "waiting for queue idle")
}
