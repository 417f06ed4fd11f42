// -----------------------------------------------------------------------
// Last Modified: Wednesday, 22nd April 2026 4:41:09 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package orders

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/interfaces"
	"github.com/ternarybob/orbital/internal/models"
)

// timestampLayout matches the ISO-8601 rendering used across the API.
const timestampLayout = "2006-01-02T15:04:05.000000"

// taskStateToStatus projects the worker-plane task state onto the order
// status the API exposes. A lost task is reported failed so the next
// resubmission can recover it; a cancelled task shows in_progress because
// cancellation only occurs transiently while an order is resubmitted.
var taskStateToStatus = map[interfaces.TaskState]models.OrderStatus{
	interfaces.TaskStateQueued:    models.OrderStatusQueued,
	interfaces.TaskStateRunning:   models.OrderStatusInProgress,
	interfaces.TaskStateFinished:  models.OrderStatusCompleted,
	interfaces.TaskStateError:     models.OrderStatusFailed,
	interfaces.TaskStateLost:      models.OrderStatusFailed,
	interfaces.TaskStateCancelled: models.OrderStatusInProgress,
}

// TransformationOrder is the stateful handle around one keyed job: it owns
// the order metadata and projects its status from the underlying task
// handle on every read.
type TransformationOrder struct {
	mu sync.Mutex

	id     string
	taskID string
	taskFn interfaces.TaskFunc
	task   interfaces.TaskHandle
	pool   interfaces.TaskPool

	info       models.OrderInfo
	outputPath string // relative to the output root, set on completion

	outputDir string
	uriRoot   string
	logStore  interfaces.OrderLogStorage
	logger    arbor.ILogger
}

// NewTransformationOrder builds an order around the task it will dispatch.
func NewTransformationOrder(
	orderID string,
	reference models.InputProductReference,
	workflowID, workflowName string,
	options map[string]interface{},
	taskFn interfaces.TaskFunc,
	pool interfaces.TaskPool,
	outputDir, uriRoot string,
	logStore interfaces.OrderLogStorage,
	logger arbor.ILogger,
) *TransformationOrder {
	return &TransformationOrder{
		id:        orderID,
		taskID:    orderID,
		taskFn:    taskFn,
		pool:      pool,
		outputDir: outputDir,
		uriRoot:   strings.TrimSuffix(uriRoot, "/"),
		logStore:  logStore,
		logger:    logger,
		info: models.OrderInfo{
			ID:                    orderID,
			WorkflowID:            workflowID,
			WorkflowName:          workflowName,
			InputProductReference: reference,
			WorkflowOptions:       options,
		},
	}
}

// ID returns the deterministic order identifier.
func (o *TransformationOrder) ID() string {
	return o.id
}

// Submit dispatches the order's task onto the pool with key = order id and
// attaches the completion callback. SubmissionDate is set before dispatch.
func (o *TransformationOrder) Submit() {
	o.mu.Lock()
	o.info.SubmissionDate = time.Now().UTC().Format(timestampLayout)
	taskID := o.taskID
	o.mu.Unlock()

	task := o.pool.Submit(taskID, o.taskFn)

	o.mu.Lock()
	o.task = task
	o.mu.Unlock()

	task.AddDoneCallback(o.addCompletedInfo)
}

// resubmit retries a failed task in place or dispatches a fresh task under a
// suffixed key when the previous attempt completed but its output vanished.
func (o *TransformationOrder) resubmit() {
	if o.Status() == models.OrderStatusFailed {
		o.mu.Lock()
		taskID := o.taskID
		task := o.task
		o.mu.Unlock()

		o.cleanCompletedInfo()
		if err := o.pool.Retry(taskID); err != nil {
			o.logger.Warn().Err(err).Str("order_id", o.id).Msg("Retry failed")
			return
		}
		task.AddDoneCallback(o.addCompletedInfo)
		return
	}

	// Completed attempt with a missing output: the finished task is still
	// registered under the old key, so force re-execution under a fresh one.
	o.mu.Lock()
	oldTaskID := o.taskID
	o.taskID = o.id + "-" + uuid.New().String()[:8]
	o.mu.Unlock()

	o.cleanCompletedInfo()
	if forgetter, ok := o.pool.(interface{ Forget(string) }); ok {
		forgetter.Forget(oldTaskID)
	}
	o.Submit()
}

// MaybeResubmit re-runs the order when it failed, or when it completed but
// the published output no longer exists on disk. Anything else is a no-op.
func (o *TransformationOrder) MaybeResubmit() {
	status := o.Status()
	o.logger.Info().Str("order_id", o.id).Str("status", string(status)).Msg("Order status checked")

	switch status {
	case models.OrderStatusCompleted:
		o.mu.Lock()
		fullPath := filepath.Join(o.outputDir, filepath.FromSlash(o.outputPath))
		o.mu.Unlock()
		if _, err := os.Stat(fullPath); err != nil {
			o.logger.Info().
				Str("order_id", o.id).
				Str("output_path", fullPath).
				Msg("Output product not found, re-submitting order")
			o.resubmit()
		}
	case models.OrderStatusFailed:
		o.logger.Info().Str("order_id", o.id).Msg("Re-submitting order")
		o.resubmit()
	}
}

// addCompletedInfo is the task done-callback: it stamps CompletedDate and,
// on success, the output reference. A cancelled task clears completion
// fields instead, because cancellation means the order is being re-run.
func (o *TransformationOrder) addCompletedInfo(task interfaces.TaskHandle) {
	state := task.State()
	if state == interfaces.TaskStateCancelled {
		o.cleanCompletedInfo()
		return
	}

	status := projectStatus(state)
	o.mu.Lock()
	o.info.Status = status
	if status.Terminal() {
		o.info.CompletedDate = time.Now().UTC().Format(timestampLayout)
	}
	if status == models.OrderStatusCompleted {
		if result, err := task.Result(); err == nil {
			o.outputPath = result
		}
	}
	o.mu.Unlock()

	if status == models.OrderStatusCompleted {
		o.updateOutputProductReference()
	}
}

func (o *TransformationOrder) cleanCompletedInfo() {
	o.mu.Lock()
	o.info.Status = ""
	o.info.CompletedDate = ""
	o.info.OutputProductReference = nil
	o.outputPath = ""
	o.mu.Unlock()
}

// updateOutputProductReference re-derives the download URI from the current
// URI root, so the published host can change without mutating stored state.
func (o *TransformationOrder) updateOutputProductReference() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outputPath == "" {
		return
	}
	basePath := filepath.ToSlash(filepath.Dir(o.outputPath))
	reference := filepath.Base(o.outputPath)
	o.info.OutputProductReference = []models.OutputProductReference{
		{
			Reference:   reference,
			DownloadURI: fmt.Sprintf("%s/download/%s/%s", o.uriRoot, basePath, reference),
		},
	}
}

func projectStatus(state interfaces.TaskState) models.OrderStatus {
	if status, ok := taskStateToStatus[state]; ok {
		return status
	}
	return models.OrderStatusQueued
}

// Status re-projects the order status from the task handle.
func (o *TransformationOrder) Status() models.OrderStatus {
	o.mu.Lock()
	task := o.task
	o.mu.Unlock()

	if task == nil {
		return models.OrderStatusQueued
	}
	status := projectStatus(task.State())

	o.mu.Lock()
	o.info.Status = status
	o.mu.Unlock()
	return status
}

// GetInfo returns the current order view. Status is re-projected on every
// call and the output reference is re-derived for completed orders.
func (o *TransformationOrder) GetInfo() models.OrderInfo {
	if o.Status() == models.OrderStatusCompleted {
		o.updateOutputProductReference()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.info
}

// GetLog returns the chronologically ordered log events the workers emitted
// under this order's key.
func (o *TransformationOrder) GetLog(ctx context.Context) ([]models.OrderLogEntry, error) {
	return o.logStore.GetLogs(ctx, o.id)
}

// TaskID returns the pool key of the current attempt.
func (o *TransformationOrder) TaskID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.taskID
}
