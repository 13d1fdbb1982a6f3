// Package command records work into native command streams and submits it.
//
// A Queue may be shared by any number of goroutines. A Pool, and every Recorder it
// hands out, belongs to a single goroutine.
package command

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
	"github.com/vkngwrapper/substrate/gpusync"
)

// Queue serializes submissions to one native queue
type Queue struct {
	logger *slog.Logger
	native backend.Queue
	family backend.QueueFamily

	lock        sync.Mutex
	submissions int
}

// NewQueue looks up the backend queue for family. One Queue should exist per family.
func NewQueue(logger *slog.Logger, b backend.Backend, family backend.QueueFamily) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}

	native, err := b.Queue(family.Index)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to retrieve queue for family %d", family.Index)
	}

	return &Queue{
		logger: logger,
		native: native,
		family: family,
	}, nil
}

// Family is the queue family this queue submits to
func (q *Queue) Family() backend.QueueFamily { return q.family }

func (q *Queue) Native() backend.Queue { return q.native }

// Submit hands a batch to the GPU. fence, which may be nil, is signaled when the batch
// completes.
func (q *Queue) Submit(submission backend.Submission, fence *gpusync.Fence) error {
	var nativeFence backend.Fence
	if fence != nil {
		nativeFence = fence.Native()
	}

	q.lock.Lock()
	defer q.lock.Unlock()

	err := q.native.Submit(submission, nativeFence)
	if err != nil {
		if gpuerr.IsFatal(err) {
			q.logger.Error("Queue::Submit failed", slog.String("Family", q.family.Type.String()), slog.Any("error", err))
		}
		return errors.Wrapf(err, "failed to submit to %s queue", q.family.Type)
	}

	q.submissions++
	q.logger.Debug("Queue::Submit",
		slog.String("Family", q.family.Type.String()),
		slog.Int("Streams", len(submission.Streams)),
		slog.Int("Waits", len(submission.Wait)),
		slog.Int("Signals", len(submission.Signal)),
	)
	return nil
}

// Submissions returns the number of batches accepted so far
func (q *Queue) Submissions() int {
	q.lock.Lock()
	defer q.lock.Unlock()

	return q.submissions
}

// WaitIdle blocks until every submission to the queue has completed
func (q *Queue) WaitIdle() error {
	q.lock.Lock()
	defer q.lock.Unlock()

	return errors.Wrapf(q.native.WaitIdle(), "failed to wait for %s queue", q.family.Type)
}
