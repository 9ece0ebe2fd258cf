package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service exposes read access to lab orders, order items and the test
// parameter catalog. Orders are placed by an upstream ordering system,
// so this service never creates or mutates them.
type Service struct {
	orders LabOrderRepository
	items  LabOrderItemRepository
	params LabTestParameterRepository
}

func NewService(orders LabOrderRepository, items LabOrderItemRepository, params LabTestParameterRepository) *Service {
	return &Service{orders: orders, items: items, params: params}
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*LabOrder, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get lab order: %w", err)
	}
	return o, nil
}

func (s *Service) GetOrderByNumber(ctx context.Context, orderNumber string) (*LabOrder, error) {
	if orderNumber == "" {
		return nil, fmt.Errorf("order number is required")
	}
	o, err := s.orders.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("get lab order by number: %w", err)
	}
	return o, nil
}

func (s *Service) ListOrdersByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabOrder, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.orders.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) GetOrderItem(ctx context.Context, id uuid.UUID) (*LabOrderItem, error) {
	it, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order item: %w", err)
	}
	return it, nil
}

func (s *Service) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]*LabOrderItem, error) {
	return s.items.ListByOrder(ctx, orderID)
}

func (s *Service) ListTestParameters(ctx context.Context, testID uuid.UUID) ([]*LabTestParameter, error) {
	return s.params.ListByTest(ctx, testID)
}
