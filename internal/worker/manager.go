package worker

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrBusy is returned when a user's turn queue is full.
var ErrBusy = errors.New("turn queue full")

// Task is one unit of work executed on the owning user's goroutine.
type Task func(ctx context.Context)

type task struct {
	ctx  context.Context
	fn   Task
	done chan struct{}
}

type workerState struct {
	taskCh chan task
	stopCh chan struct{}
}

// Manager serializes work per user. Each user gets a single goroutine and a
// bounded queue, so two turns of the same user can never interleave their
// quota check and persistence while different users still run concurrently.
type Manager struct {
	mu        sync.Mutex
	queueSize int
	workers   map[int64]*workerState
}

func NewManager(queueSize int) *Manager {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Manager{
		queueSize: queueSize,
		workers:   make(map[int64]*workerState),
	}
}

// Do runs fn on the user's worker goroutine and waits for it to finish.
// It fails fast with ErrBusy when the user's queue is full, and returns the
// context error if the caller gives up before the task starts or completes.
func (m *Manager) Do(ctx context.Context, userID int64, fn Task) error {
	if fn == nil {
		return errors.New("nil task")
	}
	state := m.ensureWorker(userID)

	t := task{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case state.taskCh <- t:
	default:
		return ErrBusy
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down the user's worker; queued tasks are dropped. The map
// entry is removed here so a second Stop for the same user finds nothing
// to close.
func (m *Manager) Stop(userID int64) {
	m.mu.Lock()
	if state, ok := m.workers[userID]; ok {
		delete(m.workers, userID)
		close(state.stopCh)
	}
	m.mu.Unlock()
}

func (m *Manager) ensureWorker(userID int64) *workerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.workers[userID]; ok {
		return state
	}
	state := &workerState{
		taskCh: make(chan task, m.queueSize),
		stopCh: make(chan struct{}),
	}
	m.workers[userID] = state
	go m.runWorker(userID, state)
	return state
}

func (m *Manager) runWorker(userID int64, state *workerState) {
	defer func() {
		m.mu.Lock()
		// Stop may have removed this entry and a fresh worker may already
		// occupy the slot; only clear our own registration.
		if m.workers[userID] == state {
			delete(m.workers, userID)
		}
		m.mu.Unlock()
	}()

	for {
		select {
		case <-state.stopCh:
			log.Printf("turn worker for user %d stopped", userID)
			return
		case t := <-state.taskCh:
			// A task whose submitter already gave up is skipped, not run.
			if t.ctx != nil && t.ctx.Err() != nil {
				close(t.done)
				continue
			}
			t.fn(t.ctx)
			close(t.done)
		}
	}
}
