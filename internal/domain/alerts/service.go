package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lims/lims/internal/domain/results"
	"github.com/lims/lims/internal/platform/metrics"
)

// Notifier hands an alert to the asynchronous notification pipeline.
// Enqueueing must not block; delivery failures are reported back
// through the notification status methods, never as an enqueue error
// that would abort finalization.
type Notifier interface {
	EnqueueCriticalValue(a *CriticalValueAlert)
}

type Service struct {
	repo     Repository
	notifier Notifier
	logger   zerolog.Logger
}

func NewService(repo Repository, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

// Raise records a critical value finding as an alert. Raising is
// idempotent per open result/parameter pair: a finding that already
// has an unresolved alert returns that alert instead of creating a
// second one. Raise participates in the caller's transaction when one
// is on the context.
func (s *Service) Raise(ctx context.Context, f results.CriticalFinding) (*CriticalValueAlert, error) {
	existing, err := s.repo.GetOpenByResultParameter(ctx, f.ResultID, f.ParameterID)
	if err != nil {
		return nil, fmt.Errorf("check open alert: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	a := &CriticalValueAlert{
		ResultID:           f.ResultID,
		ParameterID:        f.ParameterID,
		ParameterCode:      f.ParameterCode,
		PatientID:          f.PatientID,
		Value:              f.Value,
		Severity:           f.Severity,
		NotificationStatus: NotifyPending,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	metrics.AlertsRaised.WithLabelValues(a.Severity).Inc()
	s.logger.Warn().
		Str("alert_id", a.ID.String()).
		Str("parameter", a.ParameterCode).
		Str("severity", a.Severity).
		Msg("critical value alert raised")

	if s.notifier != nil {
		s.notifier.EnqueueCriticalValue(a)
	}
	return a, nil
}

// Acknowledge records that a clinician has seen the alert. An alert is
// acknowledged exactly once.
func (s *Service) Acknowledge(ctx context.Context, id, by uuid.UUID, notes *string) (*CriticalValueAlert, error) {
	if by == uuid.Nil {
		return nil, fmt.Errorf("acknowledging user identity is required")
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	if a.Acknowledged {
		return nil, fmt.Errorf("alert %s was already acknowledged", a.ID)
	}
	now := time.Now()
	a.Acknowledged = true
	a.AcknowledgedBy = &by
	a.AcknowledgedAt = &now
	a.AckNotes = notes
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	metrics.AlertsAcknowledged.Inc()
	return a, nil
}

// Resolve closes an acknowledged alert. Resolution before
// acknowledgement is always rejected: the escalation chain requires a
// human to have seen the value first.
func (s *Service) Resolve(ctx context.Context, id, by uuid.UUID, notes *string) (*CriticalValueAlert, error) {
	if by == uuid.Nil {
		return nil, fmt.Errorf("resolving user identity is required")
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	if !a.Acknowledged {
		return nil, fmt.Errorf("alert %s must be acknowledged before it can be resolved", a.ID)
	}
	if a.Resolved {
		return nil, fmt.Errorf("alert %s was already resolved", a.ID)
	}
	now := time.Now()
	a.Resolved = true
	a.ResolvedBy = &by
	a.ResolvedAt = &now
	a.ResolutionNotes = notes
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	metrics.AlertsResolved.Inc()
	return a, nil
}

// MarkNotificationSent is called by the notification pipeline after a
// successful delivery attempt.
func (s *Service) MarkNotificationSent(ctx context.Context, id uuid.UUID, attempts int) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get alert: %w", err)
	}
	a.NotificationStatus = NotifySent
	a.RetryCount = attempts
	return s.repo.Update(ctx, a)
}

// MarkNotificationStale is called by the notification pipeline when
// delivery retries are exhausted. The alert stays open; staleness only
// means nobody was reached automatically.
func (s *Service) MarkNotificationStale(ctx context.Context, id uuid.UUID, attempts int) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get alert: %w", err)
	}
	a.NotificationStatus = NotifyStale
	a.RetryCount = attempts
	if err := s.repo.Update(ctx, a); err != nil {
		return err
	}
	metrics.NotificationsStale.Inc()
	s.logger.Error().
		Str("alert_id", a.ID.String()).
		Int("attempts", attempts).
		Msg("critical value notification went stale; manual escalation required")
	return nil
}

func (s *Service) GetAlert(ctx context.Context, id uuid.UUID) (*CriticalValueAlert, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListOpen(ctx context.Context, limit, offset int) ([]*CriticalValueAlert, int, error) {
	return s.repo.ListOpen(ctx, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*CriticalValueAlert, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// ListByNotificationStatus supports the escalation workflow: stale
// alerts are the ones whose delivery gave up and need a human.
func (s *Service) ListByNotificationStatus(ctx context.Context, status string, limit, offset int) ([]*CriticalValueAlert, int, error) {
	switch status {
	case NotifyPending, NotifySent, NotifyFailed, NotifyStale:
	default:
		return nil, 0, fmt.Errorf("invalid notification status: %s", status)
	}
	return s.repo.ListByNotificationStatus(ctx, status, limit, offset)
}

// resultAlertRaiser adapts the alert service to the raising port the
// result pipeline depends on.
type resultAlertRaiser struct{ svc *Service }

// NewResultAlertRaiser wraps the service for use by result
// finalization.
func NewResultAlertRaiser(svc *Service) results.AlertRaiser {
	return &resultAlertRaiser{svc: svc}
}

func (r *resultAlertRaiser) Raise(ctx context.Context, f results.CriticalFinding) error {
	_, err := r.svc.Raise(ctx, f)
	return err
}
