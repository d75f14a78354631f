package audit

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Writer persists one entry.
type Writer interface {
	WriteEvent(ctx context.Context, e Entry) error
}

// AsyncRecorder queues entries in memory and writes them from background
// workers. A full queue spills straight to the spool.
type AsyncRecorder struct {
	writer  Writer
	spool   *Spool
	queue   chan Entry
	timeout time.Duration

	// OnDrop is called for every entry that could be neither queued nor
	// spooled.
	OnDrop func()

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncRecorder(w Writer, spool *Spool, size int) *AsyncRecorder {
	if size <= 0 {
		size = 1024
	}
	return &AsyncRecorder{
		writer:  w,
		spool:   spool,
		queue:   make(chan Entry, size),
		timeout: 5 * time.Second,
	}
}

// Start launches n workers.
func (r *AsyncRecorder) Start(n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		r.wg.Add(1)
		go r.work()
	}
}

func (r *AsyncRecorder) work() {
	defer r.wg.Done()
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.writer.WriteEvent(ctx, e); err != nil {
			log.Printf("Audit write failed for %s %s: %v", e.Action, e.EntityID, err)
			r.drop()
		}
		cancel()
	}
}

// Record stamps the entry and enqueues it without blocking.
func (r *AsyncRecorder) Record(_ context.Context, e Entry) {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.closed {
		select {
		case r.queue <- e:
			return
		default:
		}
	}

	if r.spool == nil {
		log.Printf("Audit queue unavailable, dropping %s %s", e.Action, e.EntityID)
		r.drop()
		return
	}
	if err := r.spool.Append(e); err != nil {
		log.Printf("CRITICAL: Audit Spool FAILED for event %s: %v", e.EventID, err)
		r.drop()
	}
}

func (r *AsyncRecorder) drop() {
	if r.OnDrop != nil {
		r.OnDrop()
	}
}

// Close stops accepting entries and waits for queued ones to be written.
// Entries recorded after Close go to the spool.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
