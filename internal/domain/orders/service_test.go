package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repositories --

type mockOrderRepo struct {
	orders map[uuid.UUID]*LabOrder
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[uuid.UUID]*LabOrder)}
}

func (m *mockOrderRepo) put(o *LabOrder) *LabOrder {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt = time.Now()
	o.UpdatedAt = time.Now()
	m.orders[o.ID] = o
	return o
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*LabOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return o, nil
}

func (m *mockOrderRepo) GetByOrderNumber(_ context.Context, orderNumber string) (*LabOrder, error) {
	for _, o := range m.orders {
		if o.OrderNumber == orderNumber {
			return o, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockOrderRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*LabOrder, int, error) {
	var result []*LabOrder
	for _, o := range m.orders {
		if o.PatientID == patientID {
			result = append(result, o)
		}
	}
	return result, len(result), nil
}

type mockItemRepo struct {
	items map[uuid.UUID]*LabOrderItem
}

func newMockItemRepo() *mockItemRepo {
	return &mockItemRepo{items: make(map[uuid.UUID]*LabOrderItem)}
}

func (m *mockItemRepo) put(it *LabOrderItem) *LabOrderItem {
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	it.CreatedAt = time.Now()
	m.items[it.ID] = it
	return it
}

func (m *mockItemRepo) GetByID(_ context.Context, id uuid.UUID) (*LabOrderItem, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return it, nil
}

func (m *mockItemRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*LabOrderItem, error) {
	var result []*LabOrderItem
	for _, it := range m.items {
		if it.OrderID == orderID {
			result = append(result, it)
		}
	}
	return result, nil
}

func (m *mockItemRepo) GetBySpecimen(_ context.Context, specimenID uuid.UUID) (*LabOrderItem, error) {
	for _, it := range m.items {
		if it.SpecimenID != nil && *it.SpecimenID == specimenID {
			return it, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

type mockParamRepo struct {
	params map[uuid.UUID]*LabTestParameter
}

func newMockParamRepo() *mockParamRepo {
	return &mockParamRepo{params: make(map[uuid.UUID]*LabTestParameter)}
}

func (m *mockParamRepo) put(p *LabTestParameter) *LabTestParameter {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.params[p.ID] = p
	return p
}

func (m *mockParamRepo) GetByID(_ context.Context, id uuid.UUID) (*LabTestParameter, error) {
	p, ok := m.params[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (m *mockParamRepo) ListByTest(_ context.Context, testID uuid.UUID) ([]*LabTestParameter, error) {
	var result []*LabTestParameter
	for _, p := range m.params {
		if p.TestID == testID {
			result = append(result, p)
		}
	}
	return result, nil
}

func newTestService() (*Service, *mockOrderRepo, *mockItemRepo, *mockParamRepo) {
	orders := newMockOrderRepo()
	items := newMockItemRepo()
	params := newMockParamRepo()
	return NewService(orders, items, params), orders, items, params
}

// -- Tests --

func TestGetOrderByNumber(t *testing.T) {
	svc, orderRepo, _, _ := newTestService()
	ctx := context.Background()

	placed := orderRepo.put(&LabOrder{
		OrderNumber: "ORD-2024-0001",
		PatientID:   uuid.New(),
		Priority:    PriorityRoutine,
		Status:      OrderStatusActive,
		OrderedBy:   uuid.New(),
		OrderedAt:   time.Now(),
	})

	got, err := svc.GetOrderByNumber(ctx, "ORD-2024-0001")
	if err != nil {
		t.Fatalf("GetOrderByNumber failed: %v", err)
	}
	if got.ID != placed.ID {
		t.Errorf("expected order %s, got %s", placed.ID, got.ID)
	}

	if _, err := svc.GetOrderByNumber(ctx, ""); err == nil {
		t.Error("expected error for empty order number")
	}
}

func TestListOrdersByPatient_ClampsLimit(t *testing.T) {
	svc, orderRepo, _, _ := newTestService()
	ctx := context.Background()
	patientID := uuid.New()

	for i := 0; i < 3; i++ {
		orderRepo.put(&LabOrder{
			OrderNumber: fmt.Sprintf("ORD-%d", i),
			PatientID:   patientID,
			Priority:    PriorityRoutine,
			Status:      OrderStatusActive,
			OrderedBy:   uuid.New(),
			OrderedAt:   time.Now(),
		})
	}

	items, total, err := svc.ListOrdersByPatient(ctx, patientID, -1, -5)
	if err != nil {
		t.Fatalf("ListOrdersByPatient failed: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Errorf("expected 3 orders, got %d (total %d)", len(items), total)
	}
}

func TestListOrderItems(t *testing.T) {
	svc, orderRepo, itemRepo, _ := newTestService()
	ctx := context.Background()

	order := orderRepo.put(&LabOrder{
		OrderNumber: "ORD-100",
		PatientID:   uuid.New(),
		Priority:    PriorityStat,
		Status:      OrderStatusActive,
		OrderedBy:   uuid.New(),
		OrderedAt:   time.Now(),
	})
	itemRepo.put(&LabOrderItem{OrderID: order.ID, TestID: uuid.New(), TestCode: "CBC", TestName: "Complete Blood Count"})
	itemRepo.put(&LabOrderItem{OrderID: order.ID, TestID: uuid.New(), TestCode: "BMP", TestName: "Basic Metabolic Panel"})

	items, err := svc.ListOrderItems(ctx, order.ID)
	if err != nil {
		t.Fatalf("ListOrderItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
}

func TestListTestParameters(t *testing.T) {
	svc, _, _, paramRepo := newTestService()
	ctx := context.Background()
	testID := uuid.New()

	low := 4.0
	high := 10.0
	unit := "10^9/L"
	paramRepo.put(&LabTestParameter{
		TestID:        testID,
		Code:          "WBC",
		Name:          "White Blood Cell Count",
		Unit:          &unit,
		ReferenceLow:  &low,
		ReferenceHigh: &high,
		Mandatory:     true,
	})

	params, err := svc.ListTestParameters(ctx, testID)
	if err != nil {
		t.Fatalf("ListTestParameters failed: %v", err)
	}
	if len(params) != 1 {
		t.Fatalf("expected 1 parameter, got %d", len(params))
	}
	if params[0].Code != "WBC" || !params[0].Mandatory {
		t.Errorf("unexpected parameter: %+v", params[0])
	}
}
