package interfaces

import (
	"context"

	"github.com/ternarybob/orbital/internal/models"
)

// OrderLogStorage is the worker-to-coordinator log channel: workers append
// events keyed by order id, the API reads them back chronologically.
type OrderLogStorage interface {
	AppendLog(ctx context.Context, orderID string, entry models.OrderLogEntry) error
	GetLogs(ctx context.Context, orderID string) ([]models.OrderLogEntry, error)
	DeleteLogs(ctx context.Context, orderID string) error
	CountLogs(ctx context.Context, orderID string) (int, error)
}
