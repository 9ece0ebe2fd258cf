package tat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lims/lims/internal/domain/orders"
	"github.com/lims/lims/internal/domain/results"
	"github.com/lims/lims/internal/domain/specimen"
	"github.com/lims/lims/internal/platform/metrics"
)

// Service derives turnaround monitoring rows from timestamps the other
// stages have already recorded. It never mutates orders, specimens or
// results.
type Service struct {
	repo      Repository
	items     orders.LabOrderItemRepository
	orders    orders.LabOrderRepository
	specimens specimen.Repository
	results   results.ResultRepository

	// defaultExpectedTAT applies when the order carries no expected
	// turnaround of its own. Zero disables the fallback.
	defaultExpectedTAT int
}

func NewService(
	repo Repository,
	items orders.LabOrderItemRepository,
	orderRepo orders.LabOrderRepository,
	specimens specimen.Repository,
	resultRepo results.ResultRepository,
	defaultExpectedTAT int,
) *Service {
	return &Service{
		repo:               repo,
		items:              items,
		orders:             orderRepo,
		specimens:          specimens,
		results:            resultRepo,
		defaultExpectedTAT: defaultExpectedTAT,
	}
}

// Refresh recollects every milestone for an order item and upserts the
// derived row. Safe to call after any pipeline stage; each call
// recomputes from the source timestamps rather than patching.
func (s *Service) Refresh(ctx context.Context, orderItemID uuid.UUID) (*TatMonitoring, error) {
	item, err := s.items.GetByID(ctx, orderItemID)
	if err != nil {
		return nil, fmt.Errorf("get order item: %w", err)
	}
	order, err := s.orders.GetByID(ctx, item.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get lab order: %w", err)
	}

	t := &TatMonitoring{
		OrderID:            order.ID,
		OrderItemID:        item.ID,
		TestCode:           item.TestCode,
		PatientID:          order.PatientID,
		OrderedAt:          &order.OrderedAt,
		ExpectedTATMinutes: order.ExpectedTATMinutes,
	}
	if t.ExpectedTATMinutes == nil && s.defaultExpectedTAT > 0 {
		d := s.defaultExpectedTAT
		t.ExpectedTATMinutes = &d
	}
	// No prior row is normal on the first refresh; any other read
	// failure must not silently discard the recorded breach state.
	existing, err := s.repo.GetByOrderItem(ctx, orderItemID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get tat row: %w", err)
	}
	wasBreached := false
	if existing != nil {
		t.ID = existing.ID
		wasBreached = existing.TatMet != nil && !*existing.TatMet
	}

	if item.SpecimenID != nil {
		sp, err := s.specimens.GetByID(ctx, *item.SpecimenID)
		if err != nil {
			return nil, fmt.Errorf("get specimen: %w", err)
		}
		t.CollectedAt = sp.CollectedAt
		t.ReceivedAt = sp.ReceivedAt
		t.ProcessingStartedAt = sp.ProcessingStartedAt
	}

	result, err := s.results.LatestByOrderItem(ctx, orderItemID)
	if err != nil {
		return nil, fmt.Errorf("get latest result: %w", err)
	}
	if result != nil {
		t.ResultEnteredAt = &result.EnteredAt
		t.ValidatedAt = result.FinalizedAt
		t.ReportedAt = result.ReportGeneratedAt
	}

	Compute(t)
	if err := s.repo.Upsert(ctx, t); err != nil {
		return nil, fmt.Errorf("upsert tat row: %w", err)
	}

	if t.TotalTATMinutes != nil {
		metrics.TATTotalMinutes.Observe(float64(*t.TotalTATMinutes))
	}
	if t.TatMet != nil && !*t.TatMet && !wasBreached {
		metrics.TATBreaches.Inc()
	}
	return t, nil
}

func (s *Service) GetByOrderItem(ctx context.Context, orderItemID uuid.UUID) (*TatMonitoring, error) {
	return s.repo.GetByOrderItem(ctx, orderItemID)
}

func (s *Service) ListBreached(ctx context.Context, limit, offset int) ([]*TatMonitoring, int, error) {
	return s.repo.ListBreached(ctx, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*TatMonitoring, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
