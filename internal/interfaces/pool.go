package interfaces

import "context"

// TaskState is the scheduler-level state of a keyed task. The order layer
// projects these onto the externally visible order statuses.
type TaskState string

const (
	TaskStateQueued    TaskState = "queued"
	TaskStateRunning   TaskState = "running"
	TaskStateFinished  TaskState = "finished"
	TaskStateError     TaskState = "error"
	TaskStateLost      TaskState = "lost"
	TaskStateCancelled TaskState = "cancelled"
)

// Terminal reports whether the state is final for the current attempt.
// A lost or errored task can still be retried.
func (s TaskState) Terminal() bool {
	return s == TaskStateFinished || s == TaskStateError || s == TaskStateLost
}

// TaskFunc is the unit of work dispatched onto the pool. It returns the
// relative path of the published output.
type TaskFunc func(ctx context.Context) (string, error)

// TaskHandle is the coordinator's view of one submitted task. State reads
// are projections of the worker-side truth and never block.
type TaskHandle interface {
	Key() string
	State() TaskState
	// Result returns the task outcome; only meaningful once State is
	// finished or error.
	Result() (string, error)
	// AddDoneCallback registers fn to run when the task reaches a terminal
	// state. If the task is already terminal, fn runs immediately on the
	// caller's goroutine.
	AddDoneCallback(fn func(TaskHandle))
}

// TaskPool is the worker plane: keyed task submission with at-most-one
// concurrent execution per key, dedup of identical keys, and one-shot retry.
type TaskPool interface {
	// Submit enqueues fn under key. If a task with the same key already
	// exists its handle is returned unchanged (dedup).
	Submit(key string, fn TaskFunc) TaskHandle

	// Retry requeues an errored or lost task under its existing key.
	Retry(key string) error

	// Get returns the handle registered under key.
	Get(key string) (TaskHandle, bool)

	Start()
	Stop()
}
