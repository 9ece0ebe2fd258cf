package alerts

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lims/lims/internal/domain/results"
)

type mockRepo struct {
	alerts map[uuid.UUID]*CriticalValueAlert
}

func newMockRepo() *mockRepo {
	return &mockRepo{alerts: make(map[uuid.UUID]*CriticalValueAlert)}
}

func (m *mockRepo) Create(_ context.Context, a *CriticalValueAlert) error {
	a.ID = uuid.New()
	a.VersionID = 1
	clone := *a
	m.alerts[a.ID] = &clone
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*CriticalValueAlert, error) {
	a, ok := m.alerts[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	clone := *a
	return &clone, nil
}

func (m *mockRepo) GetOpenByResultParameter(_ context.Context, resultID, parameterID uuid.UUID) (*CriticalValueAlert, error) {
	for _, a := range m.alerts {
		if a.ResultID == resultID && a.ParameterID == parameterID && !a.Resolved {
			clone := *a
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) Update(_ context.Context, a *CriticalValueAlert) error {
	stored, ok := m.alerts[a.ID]
	if !ok {
		return fmt.Errorf("not found")
	}
	if stored.VersionID != a.VersionID {
		return ErrVersionConflict
	}
	a.VersionID++
	clone := *a
	m.alerts[a.ID] = &clone
	return nil
}

func (m *mockRepo) ListOpen(_ context.Context, limit, offset int) ([]*CriticalValueAlert, int, error) {
	var out []*CriticalValueAlert
	for _, a := range m.alerts {
		if !a.Resolved {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*CriticalValueAlert, int, error) {
	var out []*CriticalValueAlert
	for _, a := range m.alerts {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByNotificationStatus(_ context.Context, status string, limit, offset int) ([]*CriticalValueAlert, int, error) {
	var out []*CriticalValueAlert
	for _, a := range m.alerts {
		if a.NotificationStatus == status {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

type mockNotifier struct {
	enqueued []*CriticalValueAlert
}

func (m *mockNotifier) EnqueueCriticalValue(a *CriticalValueAlert) {
	m.enqueued = append(m.enqueued, a)
}

func f(v float64) *float64 { return &v }

func newService() (*Service, *mockRepo, *mockNotifier) {
	repo := newMockRepo()
	notifier := &mockNotifier{}
	return NewService(repo, notifier, zerolog.Nop()), repo, notifier
}

func finding() results.CriticalFinding {
	return results.CriticalFinding{
		ResultID:      uuid.New(),
		ParameterID:   uuid.New(),
		ParameterCode: "K",
		PatientID:     uuid.New(),
		Value:         f(7.2),
		Severity:      SeverityPanic,
	}
}

func TestRaise_CreatesAndEnqueues(t *testing.T) {
	svc, _, notifier := newService()

	a, err := svc.Raise(context.Background(), finding())
	if err != nil {
		t.Fatalf("Raise failed: %v", err)
	}
	if a.Severity != SeverityPanic || a.ParameterCode != "K" {
		t.Errorf("unexpected alert: %+v", a)
	}
	if a.NotificationStatus != NotifyPending {
		t.Errorf("expected pending notification, got %s", a.NotificationStatus)
	}
	if len(notifier.enqueued) != 1 {
		t.Errorf("expected one enqueued notification, got %d", len(notifier.enqueued))
	}
}

func TestRaise_IdempotentPerOpenAlert(t *testing.T) {
	svc, _, notifier := newService()
	fd := finding()

	first, err := svc.Raise(context.Background(), fd)
	if err != nil {
		t.Fatalf("Raise failed: %v", err)
	}
	second, err := svc.Raise(context.Background(), fd)
	if err != nil {
		t.Fatalf("second Raise failed: %v", err)
	}
	if second.ID != first.ID {
		t.Error("expected the same open alert on a repeated finding")
	}
	if len(notifier.enqueued) != 1 {
		t.Errorf("repeated finding must not enqueue a second notification, got %d", len(notifier.enqueued))
	}
}

func TestRaise_NewAlertAfterResolution(t *testing.T) {
	svc, _, _ := newService()
	fd := finding()
	userID := uuid.New()

	first, _ := svc.Raise(context.Background(), fd)
	if _, err := svc.Acknowledge(context.Background(), first.ID, userID, nil); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if _, err := svc.Resolve(context.Background(), first.ID, userID, nil); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	second, err := svc.Raise(context.Background(), fd)
	if err != nil {
		t.Fatalf("Raise after resolution failed: %v", err)
	}
	if second.ID == first.ID {
		t.Error("a resolved alert must not absorb a fresh finding")
	}
}

func TestAcknowledge_Once(t *testing.T) {
	svc, _, _ := newService()
	a, _ := svc.Raise(context.Background(), finding())
	userID := uuid.New()

	acked, err := svc.Acknowledge(context.Background(), a.ID, userID, nil)
	if err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if !acked.Acknowledged || acked.AcknowledgedAt == nil {
		t.Error("expected acknowledgement recorded")
	}
	if _, err := svc.Acknowledge(context.Background(), a.ID, uuid.New(), nil); err == nil {
		t.Error("expected second acknowledgement to fail")
	}
}

func TestResolve_RequiresAcknowledgement(t *testing.T) {
	svc, _, _ := newService()
	a, _ := svc.Raise(context.Background(), finding())
	userID := uuid.New()

	if _, err := svc.Resolve(context.Background(), a.ID, userID, nil); err == nil {
		t.Fatal("expected resolution before acknowledgement to fail")
	}

	if _, err := svc.Acknowledge(context.Background(), a.ID, userID, nil); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	resolved, err := svc.Resolve(context.Background(), a.ID, userID, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !resolved.Resolved || resolved.ResolvedAt == nil {
		t.Error("expected resolution recorded")
	}
	if resolved.Open() {
		t.Error("resolved alert must not be open")
	}
}

func TestResolve_Twice(t *testing.T) {
	svc, _, _ := newService()
	a, _ := svc.Raise(context.Background(), finding())
	userID := uuid.New()

	svc.Acknowledge(context.Background(), a.ID, userID, nil)
	if _, err := svc.Resolve(context.Background(), a.ID, userID, nil); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := svc.Resolve(context.Background(), a.ID, userID, nil); err == nil {
		t.Error("expected second resolution to fail")
	}
}

func TestNotificationOutcomes(t *testing.T) {
	svc, repo, _ := newService()
	a, _ := svc.Raise(context.Background(), finding())

	if err := svc.MarkNotificationSent(context.Background(), a.ID, 2); err != nil {
		t.Fatalf("MarkNotificationSent failed: %v", err)
	}
	stored, _ := repo.GetByID(context.Background(), a.ID)
	if stored.NotificationStatus != NotifySent || stored.RetryCount != 2 {
		t.Errorf("unexpected state after send: %s/%d", stored.NotificationStatus, stored.RetryCount)
	}

	b, _ := svc.Raise(context.Background(), finding())
	if err := svc.MarkNotificationStale(context.Background(), b.ID, 5); err != nil {
		t.Fatalf("MarkNotificationStale failed: %v", err)
	}
	stored, _ = repo.GetByID(context.Background(), b.ID)
	if stored.NotificationStatus != NotifyStale {
		t.Errorf("expected stale, got %s", stored.NotificationStatus)
	}
	if stored.Resolved {
		t.Error("staleness must not close the alert")
	}
}

func TestResultAlertRaiserAdapter(t *testing.T) {
	svc, repo, _ := newService()
	raiser := NewResultAlertRaiser(svc)

	if err := raiser.Raise(context.Background(), finding()); err != nil {
		t.Fatalf("adapter Raise failed: %v", err)
	}
	if len(repo.alerts) != 1 {
		t.Errorf("expected one stored alert, got %d", len(repo.alerts))
	}
}
