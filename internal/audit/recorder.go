package audit

import (
	"context"
	"sync"
)

// DefaultBufferSize is the queue length used when NewRecorder is given 0.
const DefaultBufferSize = 256

// Logger is the logging surface the recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder queues audit entries and writes them serially from one goroutine.
//
// Record never blocks: when the queue is full the entry is dropped and a
// warning logged, so callers holding locks are never held up by SQLite.
type Recorder struct {
	repo   Repository
	ch     chan *AuditLog
	logger Logger

	wg   sync.WaitGroup
	once sync.Once
}

// NewRecorder creates a Recorder backed by repo.
func NewRecorder(repo Repository, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Recorder{
		repo:   repo,
		ch:     make(chan *AuditLog, bufferSize),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used for dropped and failed writes.
func (r *Recorder) SetLogger(l Logger) {
	if l != nil {
		r.logger = l
	}
}

// Record enqueues an entry. Safe to call on a nil Recorder.
func (r *Recorder) Record(entry *AuditLog) {
	if r == nil || entry == nil {
		return
	}
	select {
	case r.ch <- entry:
	default:
		r.logger.Warn("audit queue full, dropping entry",
			"action", entry.Action,
			"entity_type", entry.EntityType,
		)
	}
}

// Start launches the drain goroutine. It exits once ctx is cancelled and
// the queue is empty. Call Wait to block until it has finished.
func (r *Recorder) Start(ctx context.Context) {
	r.once.Do(func() {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.drain(ctx)
		}()
	})
}

// Wait blocks until the drain goroutine has exited.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) drain(ctx context.Context) {
	for {
		select {
		case entry := <-r.ch:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.ch:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry *AuditLog) {
	// The request or store context may already be gone.
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}
