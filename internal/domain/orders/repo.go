package orders

import (
	"context"

	"github.com/google/uuid"
)

type LabOrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*LabOrder, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*LabOrder, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabOrder, int, error)
}

type LabOrderItemRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*LabOrderItem, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*LabOrderItem, error)
	GetBySpecimen(ctx context.Context, specimenID uuid.UUID) (*LabOrderItem, error)
}

type LabTestParameterRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*LabTestParameter, error)
	ListByTest(ctx context.Context, testID uuid.UUID) ([]*LabTestParameter, error)
}
