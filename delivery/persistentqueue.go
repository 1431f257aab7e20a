package delivery

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/aicostmanager/aicostmanager-go/internal/shared/logger"
)

// Defaults for the persistent queue strategy.
const (
	DefaultPersistentBatchSize     = 100
	DefaultPersistentPollInterval  = 1 * time.Second
	DefaultPersistentMaxRetries    = 10
	DefaultPersistentReclaimAfter  = 5 * time.Minute
	DefaultPersistentShipAttempts  = 1 // retries happen via the queue's own backoff, not per-post retries
	defaultPersistentDrainBatchCap = 50
)

// PersistentQueue is a crash-safe, at-least-once delivery strategy backed by
// a single SQLite table. Records survive process restarts; a crash between
// picking a batch and acknowledging it is recovered by reclaiming orphaned
// processing rows on the next startup.
type PersistentQueue struct {
	db       *sql.DB
	poster   Poster
	trackURL string
	preCheck PreCheckFunc
	onLimits TriggeredLimitsSink

	batchSize    int
	pollInterval time.Duration
	maxRetries   int
	reclaimAfter time.Duration
	shipAttempts int
	log          *logger.Logger

	counters counters
	inFlight atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	alive    atomic.Bool
}

// PersistentQueueOption configures a PersistentQueue at construction.
type PersistentQueueOption func(*PersistentQueue)

// WithPersistentBatchSize overrides how many rows are picked per cycle.
func WithPersistentBatchSize(n int) PersistentQueueOption {
	return func(q *PersistentQueue) { q.batchSize = n }
}

// WithPersistentPollInterval overrides how often the worker polls for
// eligible rows when none were found last cycle.
func WithPersistentPollInterval(d time.Duration) PersistentQueueOption {
	return func(q *PersistentQueue) { q.pollInterval = d }
}

// WithPersistentMaxRetries overrides the retry_count threshold at which a
// row is marked failed instead of rescheduled.
func WithPersistentMaxRetries(n int) PersistentQueueOption {
	return func(q *PersistentQueue) { q.maxRetries = n }
}

// WithPersistentReclaimAfter overrides how long a row may sit in
// processing before it is considered orphaned by a crashed worker.
func WithPersistentReclaimAfter(d time.Duration) PersistentQueueOption {
	return func(q *PersistentQueue) { q.reclaimAfter = d }
}

// WithPersistentLogger overrides the logger used for worker-loop events.
func WithPersistentLogger(l *logger.Logger) PersistentQueueOption {
	return func(q *PersistentQueue) { q.log = l }
}

// NewPersistentQueue opens (or creates) the SQLite database at dbPath,
// applies pending migrations, reclaims any rows orphaned by a prior crash,
// and starts the background worker.
func NewPersistentQueue(dbPath string, poster Poster, trackURL string, preCheck PreCheckFunc, onLimits TriggeredLimitsSink, opts ...PersistentQueueOption) (*PersistentQueue, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open persistent queue database: %w", err)
	}
	// A single connection avoids SQLITE_BUSY under WAL: every read and every
	// mutation goes through that one connection, so they are serialized
	// within the process.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	q := &PersistentQueue{
		db:           db,
		poster:       poster,
		trackURL:     trackURL,
		preCheck:     preCheck,
		onLimits:     onLimits,
		batchSize:    DefaultPersistentBatchSize,
		pollInterval: DefaultPersistentPollInterval,
		maxRetries:   DefaultPersistentMaxRetries,
		reclaimAfter: DefaultPersistentReclaimAfter,
		shipAttempts: DefaultPersistentShipAttempts,
		log:          slog.Default(),
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	if n, err := reclaimStaleProcessing(context.Background(), q.db, q.reclaimAfter, time.Now()); err != nil {
		db.Close()
		return nil, fmt.Errorf("reclaim stale processing rows: %w", err)
	} else if n > 0 {
		q.log.Warn("reclaimed orphaned processing rows", logger.Int64("count", n))
	}

	q.alive.Store(true)
	go q.run()
	return q, nil
}

// migrateUp sets goose's dialect to the sqlite3 family and applies every
// embedded migration. The dialect name is independent of the registered
// database/sql driver name ("sqlite" for modernc.org/sqlite); goose only
// needs to know which SQL flavor to speak.
func migrateUp(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Enqueue runs the pre-check, then durably appends record to the queue
// table with status=queued.
func (q *PersistentQueue) Enqueue(ctx context.Context, record UsageRecord) (Outcome, error) {
	if err := runPreCheck(ctx, q.preCheck, record); err != nil {
		return Outcome{}, err
	}
	if err := insertQueued(ctx, q.db, record, time.Now()); err != nil {
		q.counters.recordFailure(1, err)
		return Outcome{}, fmt.Errorf("enqueue record: %w", err)
	}
	return Outcome{ResponseID: record.ResponseID}, nil
}

// Deliver ships a pre-built batch directly, bypassing the table entirely.
func (q *PersistentQueue) Deliver(ctx context.Context, records []UsageRecord) error {
	q.inFlight.Add(int64(len(records)))
	defer q.inFlight.Add(-int64(len(records)))

	if _, err := postBatch(ctx, q.poster, q.trackURL, records, ImmediateMaxAttempts, q.onLimits); err != nil {
		q.counters.recordFailure(len(records), err)
		return err
	}
	q.counters.recordSuccess(len(records))
	return nil
}

// Stop signals the worker to exit after draining remaining queued rows
// (bounded by a safety cap so Stop cannot hang forever on a backlog), then
// closes the database handle.
func (q *PersistentQueue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() {
		close(q.stopCh)
	})
	select {
	case <-q.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	q.alive.Store(false)
	return q.db.Close()
}

// Stats reads the queued depth live from the database, since the table is
// the source of truth for pending rows; the sent/failed totals and the last
// error come from in-memory counters kept since this queue was opened.
func (q *PersistentQueue) Stats() Stats {
	sent, failed, lastErr := q.counters.snapshot()
	queued, _ := countByStatus(context.Background(), q.db, StatusQueued)
	return Stats{
		Queued:      queued,
		InFlight:    q.inFlight.Load(),
		TotalSent:   sent,
		TotalFailed: failed,
		LastError:   lastErr,
		WorkerAlive: q.alive.Load(),
	}
}

func (q *PersistentQueue) run() {
	defer close(q.done)
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			q.drain()
			return
		case <-ticker.C:
			for q.cycle() {
				// keep picking immediately while rows remain eligible
			}
		}
	}
}

// cycle picks one batch and ships it, returning true if it picked a full
// batch (signalling the caller should immediately try again rather than
// wait for the next tick).
func (q *PersistentQueue) cycle() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := pickBatch(ctx, q.db, q.batchSize, time.Now())
	if err != nil {
		q.log.Error("pick batch failed", logger.String("error", err.Error()))
		return false
	}
	if len(rows) == 0 {
		return false
	}

	q.ship(ctx, rows)
	return len(rows) == q.batchSize
}

// drain performs bounded, non-blocking final cycles so graceful shutdown
// doesn't hang indefinitely on a large backlog; remaining rows stay queued
// for the next process to pick up.
func (q *PersistentQueue) drain() {
	for i := 0; i < defaultPersistentDrainBatchCap; i++ {
		if !q.cycle() {
			return
		}
	}
}

func (q *PersistentQueue) ship(ctx context.Context, rows []pickedRow) {
	records := make([]UsageRecord, len(rows))
	for i, r := range rows {
		records[i] = r.Record
	}

	q.inFlight.Add(int64(len(records)))
	defer q.inFlight.Add(-int64(len(records)))

	_, err := postBatch(ctx, q.poster, q.trackURL, records, q.shipAttempts, q.onLimits)
	if err != nil {
		q.counters.recordFailure(len(records), err)
		if failErr := failBatch(ctx, q.db, rows, q.maxRetries, time.Now()); failErr != nil {
			q.log.Error("reschedule batch failed", logger.String("error", failErr.Error()))
		}
		return
	}

	q.counters.recordSuccess(len(records))
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	if err := ackBatch(ctx, q.db, ids); err != nil {
		q.log.Error("ack batch failed", logger.String("error", err.Error()))
	}
}

var _ Delivery = (*PersistentQueue)(nil)
