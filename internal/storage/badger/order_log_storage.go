package badger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/interfaces"
	"github.com/ternarybob/orbital/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// logSequence disambiguates log keys written within the same nanosecond
var logSequence uint64

// OrderLogStorage implements the OrderLogStorage interface for Badger. It is
// the durable half of the worker-to-coordinator log channel: workers append
// events keyed by order id, the API reads them back in arrival order.
type OrderLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewOrderLogStorage creates a new OrderLogStorage instance
func NewOrderLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.OrderLogStorage {
	return &OrderLogStorage{
		db:     db,
		logger: logger,
	}
}

func (s *OrderLogStorage) AppendLog(ctx context.Context, orderID string, entry models.OrderLogEntry) error {
	entry.OrderID = orderID
	if entry.FullTimestamp == 0 {
		entry.FullTimestamp = time.Now().UnixNano()
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Unix(0, entry.FullTimestamp).UTC().Format(time.RFC3339Nano)
	}

	seq := atomic.AddUint64(&logSequence, 1)
	key := fmt.Sprintf("%s_%d_%d", orderID, entry.FullTimestamp, seq)

	if err := s.db.Store().Insert(key, &entry); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

func (s *OrderLogStorage) GetLogs(ctx context.Context, orderID string) ([]models.OrderLogEntry, error) {
	var logs []models.OrderLogEntry
	query := badgerhold.Where("OrderID").Eq(orderID).SortBy("FullTimestamp")
	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	return logs, nil
}

func (s *OrderLogStorage) DeleteLogs(ctx context.Context, orderID string) error {
	query := badgerhold.Where("OrderID").Eq(orderID)
	if err := s.db.Store().DeleteMatching(&models.OrderLogEntry{}, query); err != nil {
		return fmt.Errorf("failed to delete logs: %w", err)
	}
	return nil
}

func (s *OrderLogStorage) CountLogs(ctx context.Context, orderID string) (int, error) {
	count, err := s.db.Store().Count(&models.OrderLogEntry{}, badgerhold.Where("OrderID").Eq(orderID))
	if err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return int(count), nil
}
