package ingest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/record"
	"github.com/xtxerr/playertrack/internal/storage"
	"github.com/xtxerr/playertrack/internal/storage/types"
)

// job is one storage write.
type job struct {
	op string
	fn func(ctx context.Context) error
}

// lane serializes the writes of one entity.
type lane struct {
	ch chan job
}

// Writer runs storage writes off the ingestion path.
//
// Writes of the same entity run in submission order on a dedicated
// goroutine. Writes of different entities run concurrently. A full lane
// rejects the write with errors.ErrQueueFull; the caller never blocks.
type Writer struct {
	engine    storage.Engine
	queueSize int

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup

	// Statistics
	stats writerCounters
}

type writerCounters struct {
	Submitted atomic.Int64
	Completed atomic.Int64
	Failed    atomic.Int64
	Dropped   atomic.Int64
}

// WriterStats holds cumulative writer statistics.
type WriterStats struct {
	Lanes     int
	Pending   int
	Submitted int64
	Completed int64
	Failed    int64
	Dropped   int64
}

// NewWriter creates a writer whose lanes queue up to queueSize writes.
func NewWriter(engine storage.Engine, queueSize int) *Writer {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Writer{
		engine:    engine,
		queueSize: queueSize,
		lanes:     make(map[string]*lane),
	}
}

// SubmitSample queues InsertSample.
func (w *Writer) SubmitSample(s types.Sample) error {
	return w.submit(s.EntityKey, job{
		op: "insert sample",
		fn: func(ctx context.Context) error { return w.engine.InsertSample(ctx, s) },
	})
}

// SubmitRecord queues the insert or update of a raised record.
func (w *Writer) SubmitRecord(ch record.Change) error {
	op := "update record"
	if ch.Insert {
		op = "insert record"
	}
	return w.submit(ch.Key, job{
		op: op,
		fn: func(ctx context.Context) error { return record.Persist(ctx, w.engine, ch) },
	})
}

func (w *Writer) submit(key string, j job) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.ErrClosed
	}

	l, ok := w.lanes[key]
	if !ok {
		l = &lane{ch: make(chan job, w.queueSize)}
		w.lanes[key] = l
		w.wg.Add(1)
		go w.run(key, l)
	}

	select {
	case l.ch <- j:
		w.stats.Submitted.Add(1)
		return nil
	default:
		w.stats.Dropped.Add(1)
		log.Warn("write queue full, dropping write", "key", key, "op", j.op)
		return errors.ErrQueueFull
	}
}

func (w *Writer) run(key string, l *lane) {
	defer w.wg.Done()

	// Writes are never cancelled; the engine bounds each call.
	ctx := context.Background()
	for j := range l.ch {
		if err := j.fn(ctx); err != nil {
			w.stats.Failed.Add(1)
			log.Error("storage write failed", "key", key, "op", j.op, "error", err)
			continue
		}
		w.stats.Completed.Add(1)
	}
}

// Close stops accepting writes and waits for queued writes to finish.
// It is idempotent.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for _, l := range w.lanes {
		close(l.ch)
	}
	w.mu.Unlock()

	w.wg.Wait()
}

// Stats returns current statistics.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	lanes := len(w.lanes)
	pending := 0
	for _, l := range w.lanes {
		pending += len(l.ch)
	}
	w.mu.Unlock()

	return WriterStats{
		Lanes:     lanes,
		Pending:   pending,
		Submitted: w.stats.Submitted.Load(),
		Completed: w.stats.Completed.Load(),
		Failed:    w.stats.Failed.Load(),
		Dropped:   w.stats.Dropped.Load(),
	}
}
