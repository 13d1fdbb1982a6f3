package command

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
	"github.com/vkngwrapper/substrate/gpusync"
)

const (
	DefaultWaitTimeout  = 5 * time.Second
	DefaultRecycleLimit = 16
)

// PoolOptions tunes a Pool. Zero values select the defaults.
type PoolOptions struct {
	// WaitTimeout bounds every fence wait the pool and its recorders perform. A wait
	// that runs past it reports gpuerr.ErrDeviceHang.
	WaitTimeout time.Duration
	// RecycleLimit is the number of idle streams kept for reuse. Streams beyond it are
	// freed once their work completes.
	RecycleLimit int
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = DefaultWaitTimeout
	}
	if o.RecycleLimit <= 0 {
		o.RecycleLimit = DefaultRecycleLimit
	}
	return o
}

// slot pairs a native stream with the fence that tracks its last submission
type slot struct {
	stream    backend.CommandStream
	fence     *gpusync.Fence
	submitted bool
}

// Pool hands out Recorders for one queue and recycles their native streams once the
// queue reports their work complete. A Pool is not safe for concurrent use; each
// recording goroutine should own one.
type Pool struct {
	logger  *slog.Logger
	backend backend.Backend
	queue   *Queue
	native  backend.CommandPool
	options PoolOptions

	free     []*slot
	inFlight []*slot
	live     int
}

// NewPool creates a command pool for queue's family. Zero fields of options take
// DefaultWaitTimeout and DefaultRecycleLimit.
func NewPool(logger *slog.Logger, b backend.Backend, queue *Queue, options PoolOptions) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	native, err := b.CreateCommandPool(queue.Family().Index)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create command pool for %s queue", queue.Family().Type)
	}

	return &Pool{
		logger:  logger,
		backend: b,
		queue:   queue,
		native:  native,
		options: options.withDefaults(),
	}, nil
}

// Queue is the queue every recorder from this pool submits to
func (p *Pool) Queue() *Queue { return p.queue }

func (p *Pool) Options() PoolOptions { return p.options }

// Free returns the number of idle streams ready for reuse
func (p *Pool) Free() int { return len(p.free) }

// InFlight returns the number of submitted streams the queue has not yet been seen to
// complete
func (p *Pool) InFlight() int { return len(p.inFlight) }

// Live returns the number of recorders handed out and not yet destroyed
func (p *Pool) Live() int { return p.live }

// NewRecorder returns an idle Recorder backed by a recycled stream if one is available
func (p *Pool) NewRecorder() (*Recorder, error) {
	err := p.reap()
	if err != nil {
		return nil, err
	}

	var s *slot
	if len(p.free) > 0 {
		s = p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
	} else {
		s, err = p.allocateSlot()
		if err != nil {
			return nil, err
		}
	}

	p.live++
	return newRecorder(p, s), nil
}

func (p *Pool) allocateSlot() (*slot, error) {
	stream, err := p.native.AllocateStream()
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate command stream")
	}

	fence, err := gpusync.NewFence(p.logger, p.backend, false)
	if err != nil {
		p.native.FreeStream(stream)
		return nil, err
	}

	p.logger.Debug("Pool::allocateSlot", slog.Int("Free", len(p.free)), slog.Int("InFlight", len(p.inFlight)))
	return &slot{stream: stream, fence: fence}, nil
}

// reap moves every in-flight slot whose fence has signaled back to the free list
func (p *Pool) reap() error {
	pending := p.inFlight[:0]
	var reapErr error

	for _, s := range p.inFlight {
		if reapErr != nil {
			pending = append(pending, s)
			continue
		}

		signaled, err := s.fence.Signaled()
		if err != nil {
			reapErr = err
			pending = append(pending, s)
			continue
		}
		if !signaled {
			pending = append(pending, s)
			continue
		}

		err = s.fence.Reset()
		if err != nil {
			reapErr = err
			pending = append(pending, s)
			continue
		}
		s.submitted = false

		err = p.recycle(s)
		if err != nil {
			reapErr = err
		}
	}

	for i := len(pending); i < len(p.inFlight); i++ {
		p.inFlight[i] = nil
	}
	p.inFlight = pending

	return reapErr
}

// recycle resets a slot's stream and keeps it for reuse, or frees it if the pool
// already holds enough idle streams
func (p *Pool) recycle(s *slot) error {
	if len(p.free) >= p.options.RecycleLimit {
		p.destroySlot(s)
		return nil
	}

	err := s.stream.Reset()
	if err != nil {
		p.destroySlot(s)
		return errors.Wrap(err, "failed to reset command stream")
	}

	p.free = append(p.free, s)
	return nil
}

func (p *Pool) destroySlot(s *slot) {
	p.native.FreeStream(s.stream)
	s.fence.Destroy()
}

// release takes a slot back from a destroyed recorder
func (p *Pool) release(s *slot) error {
	p.live--

	if s.submitted {
		p.inFlight = append(p.inFlight, s)
		return nil
	}
	return p.recycle(s)
}

// Destroy waits for in-flight work and frees every native object the pool owns. It
// panics if recorders from this pool are still live. If a wait fails the pool is left
// intact and the error is returned.
func (p *Pool) Destroy() error {
	if p.live > 0 {
		gpuerr.Precondition("command pool destroyed with %d live recorders", p.live)
	}

	for len(p.inFlight) > 0 {
		s := p.inFlight[0]
		err := s.fence.Wait(p.options.WaitTimeout)
		if err != nil {
			return errors.Wrap(err, "failed to drain command pool")
		}
		p.inFlight = p.inFlight[1:]
		p.destroySlot(s)
	}

	for _, s := range p.free {
		p.destroySlot(s)
	}
	p.free = nil

	p.native.Destroy()
	p.logger.Debug("Pool::Destroy", slog.String("Queue", p.queue.Family().Type.String()))
	return nil
}
