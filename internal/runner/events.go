package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/interfaces"
	"github.com/ternarybob/orbital/internal/models"
)

// EventLog is the per-order logging channel of a running job: every event is
// written to the process log and appended to the order's persistent event
// stream so the API can serve it back.
type EventLog struct {
	orderID string
	logger  arbor.ILogger
	storage interfaces.OrderLogStorage
}

// NewEventLog creates the logging channel for one order.
func NewEventLog(orderID string, logger arbor.ILogger, storage interfaces.OrderLogStorage) *EventLog {
	return &EventLog{orderID: orderID, logger: logger, storage: storage}
}

func (l *EventLog) append(level, message string) {
	if l.storage == nil {
		return
	}
	entry := models.OrderLogEntry{
		OrderID:       l.orderID,
		FullTimestamp: time.Now().UnixNano(),
		Level:         level,
		Message:       message,
	}
	if err := l.storage.AppendLog(context.Background(), l.orderID, entry); err != nil {
		l.logger.Warn().Err(err).Str("order_id", l.orderID).Msg("Failed to persist order log event")
	}
}

// Info records an informational event.
func (l *EventLog) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Info().Str("order_id", l.orderID).Msg(msg)
	l.append("info", msg)
}

// Warn records a warning event.
func (l *EventLog) Warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Warn().Str("order_id", l.orderID).Msg(msg)
	l.append("warn", msg)
}

// Error records an error event.
func (l *EventLog) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Error().Str("order_id", l.orderID).Msg(msg)
	l.append("error", msg)
}
