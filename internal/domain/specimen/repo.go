package specimen

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, sp *Specimen) error
	GetByID(ctx context.Context, id uuid.UUID) (*Specimen, error)
	GetByBarcode(ctx context.Context, barcode string) (*Specimen, error)
	GetBySpecimenNumber(ctx context.Context, specimenNumber string) (*Specimen, error)
	// Update performs a conditional write against the stored version
	// and returns ErrVersionConflict when another writer got there first.
	Update(ctx context.Context, sp *Specimen) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Specimen, int, error)
	ListByQualityStatus(ctx context.Context, status string, limit, offset int) ([]*Specimen, int, error)
}
