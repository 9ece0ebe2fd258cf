package results

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ResultRepository interface {
	// Create persists the result together with its parameter rows.
	Create(ctx context.Context, r *LabResult, params []*LabResultParameter) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error)
	// Update performs a conditional write against the stored version and
	// returns a ConflictError when another writer got there first.
	Update(ctx context.Context, r *LabResult) error
	GetParameters(ctx context.Context, resultID uuid.UUID) ([]*LabResultParameter, error)
	ListBySpecimen(ctx context.Context, specimenID uuid.UUID) ([]*LabResult, error)
	// LatestByOrderItem returns the most recently entered result for an
	// order item, or nil when none has been entered yet.
	LatestByOrderItem(ctx context.Context, orderItemID uuid.UUID) (*LabResult, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabResult, int, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*LabResult, int, error)
	// PreviousValidated returns the most recent validated or finalized
	// parameter row for the patient and parameter code entered before
	// the given time. Merely entered or superseded results never
	// qualify. Returns nil when no prior value exists.
	PreviousValidated(ctx context.Context, patientID uuid.UUID, code string, before time.Time) (*LabResultParameter, error)
}

type ValidationRepository interface {
	// Create appends a validation step. At most one row may exist per
	// (result, step); a second writer receives a ConflictError.
	Create(ctx context.Context, v *ResultValidation) error
	ListByResult(ctx context.Context, resultID uuid.UUID) ([]*ResultValidation, error)
}
