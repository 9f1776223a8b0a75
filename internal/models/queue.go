// internal/models/queue.go
package models

import (
	"encoding/json"
	"time"
)

// QueueStatus is the lifecycle state of a queue item.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueDone       QueueStatus = "done"
	QueueError      QueueStatus = "error"
)

// QueueItem is one unit of report work awaiting processing.
type QueueItem struct {
	ID        int64           `json:"id" db:"id"`
	Status    QueueStatus     `json:"status" db:"status"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}
