package tat

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence port for turnaround monitoring rows.
type Repository interface {
	// Upsert writes the row keyed by order item, inserting on first
	// refresh and replacing derived fields afterwards.
	Upsert(ctx context.Context, t *TatMonitoring) error
	GetByOrderItem(ctx context.Context, orderItemID uuid.UUID) (*TatMonitoring, error)
	ListBreached(ctx context.Context, limit, offset int) ([]*TatMonitoring, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*TatMonitoring, int, error)
}
