package alerts

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence port for critical value alerts.
type Repository interface {
	Create(ctx context.Context, a *CriticalValueAlert) error
	GetByID(ctx context.Context, id uuid.UUID) (*CriticalValueAlert, error)
	// GetOpenByResultParameter returns the unresolved alert for a
	// result/parameter pair, or nil when none exists. Raising reads
	// through this so duplicate findings collapse onto one alert.
	GetOpenByResultParameter(ctx context.Context, resultID, parameterID uuid.UUID) (*CriticalValueAlert, error)
	// Update is a conditional write on the version the caller read and
	// returns ErrVersionConflict when the row moved underneath it.
	Update(ctx context.Context, a *CriticalValueAlert) error
	ListOpen(ctx context.Context, limit, offset int) ([]*CriticalValueAlert, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*CriticalValueAlert, int, error)
	ListByNotificationStatus(ctx context.Context, status string, limit, offset int) ([]*CriticalValueAlert, int, error)
}
