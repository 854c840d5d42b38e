package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type memoryRepo struct {
	mu   sync.Mutex
	logs []*AuditLog
	err  error
}

func (m *memoryRepo) Create(_ context.Context, log *AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, log)
	return nil
}

func (m *memoryRepo) List(context.Context, Filter) (*ListResult, error) {
	return &ListResult{}, nil
}

func (m *memoryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

type countingLogger struct {
	mu          sync.Mutex
	warns, errs int
}

func (l *countingLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

func (l *countingLogger) Error(string, ...any) {
	l.mu.Lock()
	l.errs++
	l.mu.Unlock()
}

func TestRecorder_DrainsOnShutdown(t *testing.T) {
	repo := &memoryRepo{}
	rec := NewRecorder(repo, 8)

	for n := 0; n < 5; n++ {
		rec.Record(&AuditLog{Action: "add_device"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Start(ctx)
	rec.Wait()

	if got := repo.count(); got != 5 {
		t.Errorf("written = %d, want 5", got)
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	repo := &memoryRepo{}
	logger := &countingLogger{}
	rec := NewRecorder(repo, 2)
	rec.SetLogger(logger)

	for n := 0; n < 3; n++ {
		rec.Record(&AuditLog{Action: "add_device"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Start(ctx)
	rec.Wait()

	if got := repo.count(); got != 2 {
		t.Errorf("written = %d, want 2", got)
	}
	if logger.warns != 1 {
		t.Errorf("warnings = %d, want 1", logger.warns)
	}
}

func TestRecorder_LogsWriteFailure(t *testing.T) {
	repo := &memoryRepo{err: errors.New("disk full")}
	logger := &countingLogger{}
	rec := NewRecorder(repo, 0)
	rec.SetLogger(logger)

	rec.Record(&AuditLog{Action: "create_registry"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Start(ctx)
	rec.Wait()

	if logger.errs != 1 {
		t.Errorf("errors logged = %d, want 1", logger.errs)
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var rec *Recorder
	rec.Record(&AuditLog{Action: "add_device"})
}
