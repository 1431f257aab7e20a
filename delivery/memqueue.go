package delivery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults for the in-memory queue strategy.
const (
	DefaultMemQueueCapacity    = 10_000
	DefaultMemBatchInterval    = 500 * time.Millisecond
	DefaultMemMaxBatchSize     = 1_000
	MemQueueMaxAttemptsPerShip = 3
)

// MemQueue is a bounded, in-process FIFO delivery strategy. It is
// explicitly lossy: when the queue is full, new records are dropped and
// counted as failed rather than blocking the caller. One background
// worker batches and ships.
type MemQueue struct {
	poster   Poster
	trackURL string
	preCheck PreCheckFunc
	onLimits TriggeredLimitsSink

	items         chan UsageRecord
	batchInterval time.Duration
	maxBatchSize  int

	counters counters
	queued   atomic.Int64
	inFlight atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	alive    atomic.Bool
}

// MemQueueOption configures a MemQueue at construction.
type MemQueueOption func(*MemQueue)

// WithMemQueueCapacity overrides the bounded channel capacity.
func WithMemQueueCapacity(n int) MemQueueOption {
	return func(q *MemQueue) { q.items = make(chan UsageRecord, n) }
}

// WithMemBatchInterval overrides how long the worker waits for a batch to
// fill before shipping whatever it has.
func WithMemBatchInterval(d time.Duration) MemQueueOption {
	return func(q *MemQueue) { q.batchInterval = d }
}

// WithMemMaxBatchSize overrides the maximum records shipped per batch.
func WithMemMaxBatchSize(n int) MemQueueOption {
	return func(q *MemQueue) { q.maxBatchSize = n }
}

// NewMemQueue builds a MemQueue and starts its background worker.
func NewMemQueue(poster Poster, trackURL string, preCheck PreCheckFunc, onLimits TriggeredLimitsSink, opts ...MemQueueOption) *MemQueue {
	q := &MemQueue{
		poster:        poster,
		trackURL:      trackURL,
		preCheck:      preCheck,
		onLimits:      onLimits,
		items:         make(chan UsageRecord, DefaultMemQueueCapacity),
		batchInterval: DefaultMemBatchInterval,
		maxBatchSize:  DefaultMemMaxBatchSize,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.alive.Store(true)
	go q.run()
	return q
}

// Enqueue runs the pre-check, then appends record to the bounded channel.
// If the channel is full the record is dropped and counted as failed
// (lossy by design).
func (q *MemQueue) Enqueue(ctx context.Context, record UsageRecord) (Outcome, error) {
	if err := runPreCheck(ctx, q.preCheck, record); err != nil {
		return Outcome{}, err
	}

	select {
	case q.items <- record:
		q.queued.Add(1)
		return Outcome{ResponseID: record.ResponseID}, nil
	default:
		q.counters.recordFailure(1, errQueueFull)
		return Outcome{}, errQueueFull
	}
}

// Deliver hands a pre-built batch directly to the dispatcher, bypassing
// the channel.
func (q *MemQueue) Deliver(ctx context.Context, records []UsageRecord) error {
	q.inFlight.Add(int64(len(records)))
	defer q.inFlight.Add(-int64(len(records)))

	if _, err := postBatch(ctx, q.poster, q.trackURL, records, MemQueueMaxAttemptsPerShip, q.onLimits); err != nil {
		q.counters.recordFailure(len(records), err)
		return err
	}
	q.counters.recordSuccess(len(records))
	return nil
}

// Stop sets the stop flag, performs one final non-blocking collection and
// shipment of whatever remains buffered, then returns.
func (q *MemQueue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() {
		close(q.stopCh)
	})
	select {
	case <-q.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	q.alive.Store(false)
	return nil
}

// Stats reports current counters, including the queue's buffered depth.
func (q *MemQueue) Stats() Stats {
	sent, failed, lastErr := q.counters.snapshot()
	return Stats{
		Queued:      int64(len(q.items)),
		InFlight:    q.inFlight.Load(),
		TotalSent:   sent,
		TotalFailed: failed,
		LastError:   lastErr,
		WorkerAlive: q.alive.Load(),
	}
}

func (q *MemQueue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.stopCh:
			q.drainOnce()
			return
		default:
		}

		batch := q.collect(q.batchInterval)
		if len(batch) == 0 {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_ = q.Deliver(ctx, batch)
		cancel()
	}
}

// drainOnce runs a single non-blocking collection and shipment so any
// buffered work is flushed before the worker exits.
func (q *MemQueue) drainOnce() {
	batch := q.collect(0)
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = q.Deliver(ctx, batch)
}

// collect waits up to interval for the first item, then drains whatever is
// immediately available up to maxBatchSize. interval == 0 means
// non-blocking: return immediately if nothing is queued.
func (q *MemQueue) collect(interval time.Duration) []UsageRecord {
	batch := make([]UsageRecord, 0, q.maxBatchSize)

	var first UsageRecord
	var ok bool
	if interval > 0 {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case first, ok = <-q.items:
		case <-timer.C:
			return nil
		case <-q.stopCh:
			return nil
		}
	} else {
		select {
		case first, ok = <-q.items:
		default:
			return nil
		}
	}
	if !ok {
		return nil
	}
	batch = append(batch, first)
	q.queued.Add(-1)

	for len(batch) < q.maxBatchSize {
		select {
		case r, ok := <-q.items:
			if !ok {
				return batch
			}
			batch = append(batch, r)
			q.queued.Add(-1)
		default:
			return batch
		}
	}
	return batch
}

var _ Delivery = (*MemQueue)(nil)
