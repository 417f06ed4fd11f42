// -----------------------------------------------------------------------
// Last Modified: Friday, 17th April 2026 10:12:48 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/interfaces"
)

// Task is the pool-side handle of one keyed unit of work.
type Task struct {
	key string
	fn  interfaces.TaskFunc

	mu        sync.Mutex
	state     interfaces.TaskState
	result    string
	err       error
	callbacks []func(interfaces.TaskHandle)
}

// Key returns the task key.
func (t *Task) Key() string {
	return t.key
}

// State returns the current task state.
func (t *Task) State() interfaces.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Result returns the task outcome.
func (t *Task) Result() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// AddDoneCallback registers fn to run when the task reaches a terminal
// state. Already-terminal tasks fire immediately.
func (t *Task) AddDoneCallback(fn func(interfaces.TaskHandle)) {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		fn(t)
		return
	}
	t.callbacks = append(t.callbacks, fn)
	t.mu.Unlock()
}

// transition moves the task to state, captures the outcome and collects the
// callbacks to fire. Callbacks run outside the lock.
func (t *Task) transition(state interfaces.TaskState, result string, err error) {
	t.mu.Lock()
	t.state = state
	t.result = result
	t.err = err
	var fire []func(interfaces.TaskHandle)
	if state.Terminal() {
		fire = t.callbacks
		t.callbacks = nil
	}
	t.mu.Unlock()

	for _, cb := range fire {
		cb(t)
	}
}

// reset prepares the task for another attempt, keeping registered callbacks
// cleared (the order re-registers on resubmit).
func (t *Task) reset() {
	t.mu.Lock()
	t.state = interfaces.TaskStateQueued
	t.result = ""
	t.err = nil
	t.mu.Unlock()
}

// WorkerPool executes keyed tasks with at-most-one concurrent execution per
// key. Submitting an existing key is a no-op returning the existing handle,
// which is what makes resubmission of an identical order idempotent.
type WorkerPool struct {
	workers int
	logger  arbor.ILogger

	mu    sync.Mutex
	tasks map[string]*Task

	queue  chan *Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a pool with the given number of workers.
func NewWorkerPool(workers int, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		workers: workers,
		logger:  logger,
		tasks:   map[string]*Task{},
		queue:   make(chan *Task, 1024),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutines.
func (p *WorkerPool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info().Int("workers", p.workers).Msg("Worker pool started")
}

// Stop cancels the pool context and waits for the workers, so a running task
// ends with whatever its function returns once cancelled. Tasks still queued
// are marked lost: the coordinator recovers them through resubmission.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	for _, task := range p.tasks {
		if task.State() == interfaces.TaskStateRunning || task.State() == interfaces.TaskStateQueued {
			task.transition(interfaces.TaskStateLost, "", fmt.Errorf("worker pool stopped"))
		}
	}
	p.mu.Unlock()

	p.logger.Info().Msg("Worker pool stopped")
}

// Submit enqueues fn under key. If a task with the same key already exists
// its handle is returned unchanged.
func (p *WorkerPool) Submit(key string, fn interfaces.TaskFunc) interfaces.TaskHandle {
	p.mu.Lock()
	if existing, ok := p.tasks[key]; ok {
		p.mu.Unlock()
		return existing
	}
	task := &Task{key: key, fn: fn, state: interfaces.TaskStateQueued}
	p.tasks[key] = task
	p.mu.Unlock()

	p.enqueue(task)
	return task
}

// Retry requeues an errored or lost task under its existing key.
func (p *WorkerPool) Retry(key string) error {
	p.mu.Lock()
	task, ok := p.tasks[key]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("no task registered under key %q", key)
	}

	state := task.State()
	if state != interfaces.TaskStateError && state != interfaces.TaskStateLost {
		return fmt.Errorf("task %q is %s, only errored or lost tasks can be retried", key, state)
	}

	task.reset()
	p.enqueue(task)
	return nil
}

// Get returns the handle registered under key.
func (p *WorkerPool) Get(key string) (interfaces.TaskHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	task, ok := p.tasks[key]
	return task, ok
}

// Forget drops a terminal task from the registry. Called by the coordinator
// when an order is evicted.
func (p *WorkerPool) Forget(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if task, ok := p.tasks[key]; ok && task.State().Terminal() {
		delete(p.tasks, key)
	}
}

func (p *WorkerPool) enqueue(task *Task) {
	select {
	case p.queue <- task:
	case <-p.ctx.Done():
		task.transition(interfaces.TaskStateLost, "", fmt.Errorf("worker pool stopped"))
	}
}

func (p *WorkerPool) worker(workerID int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.queue:
			p.run(workerID, task)
		}
	}
}

// run executes one task attempt. A panicking task is recorded as an error,
// not a pool failure.
func (p *WorkerPool) run(workerID int, task *Task) {
	// A task cancelled between enqueue and pickup stays in its state.
	if task.State() != interfaces.TaskStateQueued {
		return
	}
	task.transition(interfaces.TaskStateRunning, "", nil)

	p.logger.Debug().
		Int("worker_id", workerID).
		Str("key", task.key).
		Msg("Task picked up")

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Int("worker_id", workerID).
				Str("key", task.key).
				Msg(fmt.Sprintf("Task panicked: %v", r))
			task.transition(interfaces.TaskStateError, "", fmt.Errorf("task panicked: %v", r))
		}
	}()

	result, err := task.fn(p.ctx)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Int("worker_id", workerID).
			Str("key", task.key).
			Msg("Task failed")
		task.transition(interfaces.TaskStateError, "", err)
		return
	}

	p.logger.Info().
		Int("worker_id", workerID).
		Str("key", task.key).
		Msg("Task finished")
	task.transition(interfaces.TaskStateFinished, result, nil)
}

// States returns a snapshot of every registered task's state, keyed by task
// key. Used by the status endpoint.
func (p *WorkerPool) States() map[string]interfaces.TaskState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]interfaces.TaskState, len(p.tasks))
	for key, task := range p.tasks {
		out[key] = task.State()
	}
	return out
}
