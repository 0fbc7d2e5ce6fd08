package storage

import (
	"context"
	"time"
)

// DeliveryRecord is the journal entry for one notification attempt.
type DeliveryRecord struct {
	ID        uint      `json:"id"`
	RequestID string    `json:"request_id"`
	Endpoint  string    `json:"endpoint"`
	CommitID  string    `json:"commit_id,omitempty"`
	Sender    string    `json:"sender"`
	Class     string    `json:"class"`
	Instance  string    `json:"instance"`
	Signature string    `json:"signature"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryFilter selects journal rows. Zero fields match everything.
type DeliveryFilter struct {
	Class    string
	Instance string
	Status   string
	Limit    int
}

// DeliveryStore persists delivery records.
type DeliveryStore interface {
	RecordDelivery(ctx context.Context, record DeliveryRecord) error
	ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]DeliveryRecord, error)
	Close() error
}
