package specimen

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lims/lims/internal/platform/metrics"
)

var validSpecimenTypes = map[string]bool{
	"blood": true, "serum": true, "plasma": true, "urine": true,
	"csf": true, "stool": true, "sputum": true, "swab": true,
	"tissue": true, "other": true,
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RecordCollection registers a newly collected specimen. Quality status
// starts as pending until every pre-analytical check is recorded.
func (s *Service) RecordCollection(ctx context.Context, sp *Specimen) error {
	if sp.SpecimenNumber == "" {
		return fmt.Errorf("specimen number is required")
	}
	if sp.Barcode == "" {
		return fmt.Errorf("barcode is required")
	}
	if sp.OrderItemID == uuid.Nil {
		return fmt.Errorf("order item id is required")
	}
	if sp.PatientID == uuid.Nil {
		return fmt.Errorf("patient id is required")
	}
	if !validSpecimenTypes[sp.Type] {
		return fmt.Errorf("invalid specimen type: %s", sp.Type)
	}
	if sp.CollectedAt == nil {
		now := time.Now()
		sp.CollectedAt = &now
	}
	sp.QualityStatus = QualityPending
	if err := s.repo.Create(ctx, sp); err != nil {
		return fmt.Errorf("create specimen: %w", err)
	}
	metrics.SpecimensCollected.Inc()
	return nil
}

// RecordReception marks the specimen as received by the lab.
func (s *Service) RecordReception(ctx context.Context, id, receivedBy uuid.UUID, at *time.Time) (*Specimen, error) {
	sp, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get specimen: %w", err)
	}
	if sp.ReceivedAt != nil {
		return nil, fmt.Errorf("specimen %s already received", sp.SpecimenNumber)
	}
	if sp.DisposedAt != nil {
		return nil, fmt.Errorf("specimen %s has been disposed", sp.SpecimenNumber)
	}
	if at == nil {
		now := time.Now()
		at = &now
	}
	sp.ReceivedAt = at
	sp.ReceivedBy = &receivedBy
	if err := s.repo.Update(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

// QualityChecks carries the pre-analytical findings. Nil fields leave
// the stored check untouched so checks can be recorded incrementally.
type QualityChecks struct {
	VolumeAdequate         *bool   `json:"volume_adequate,omitempty"`
	ContainerAppropriate   *bool   `json:"container_appropriate,omitempty"`
	LabelingCorrect        *bool   `json:"labeling_correct,omitempty"`
	TemperatureAppropriate *bool   `json:"temperature_appropriate,omitempty"`
	Hemolyzed              *bool   `json:"hemolyzed,omitempty"`
	Lipemic                *bool   `json:"lipemic,omitempty"`
	Icteric                *bool   `json:"icteric,omitempty"`
	RejectionReason        *string `json:"rejection_reason,omitempty"`
	Notes                  *string `json:"notes,omitempty"`
}

// RecordQualityChecks merges the provided findings into the specimen and
// recomputes its quality status. Acceptability is never assumed: until
// all seven checks are recorded the specimen stays pending.
func (s *Service) RecordQualityChecks(ctx context.Context, id uuid.UUID, checks QualityChecks) (*Specimen, error) {
	sp, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get specimen: %w", err)
	}
	if sp.DisposedAt != nil {
		return nil, fmt.Errorf("specimen %s has been disposed", sp.SpecimenNumber)
	}
	applyCheck(&sp.VolumeAdequate, checks.VolumeAdequate)
	applyCheck(&sp.ContainerAppropriate, checks.ContainerAppropriate)
	applyCheck(&sp.LabelingCorrect, checks.LabelingCorrect)
	applyCheck(&sp.TemperatureAppropriate, checks.TemperatureAppropriate)
	applyCheck(&sp.Hemolyzed, checks.Hemolyzed)
	applyCheck(&sp.Lipemic, checks.Lipemic)
	applyCheck(&sp.Icteric, checks.Icteric)
	if checks.Notes != nil {
		sp.QualityNotes = checks.Notes
	}

	prev := sp.QualityStatus
	sp.EvaluateQuality()
	if sp.QualityStatus == QualityRejected {
		if checks.RejectionReason != nil {
			sp.RejectionReason = checks.RejectionReason
		} else if sp.RejectionReason == nil {
			reason := "pre-analytical check failed; recollection required"
			sp.RejectionReason = &reason
		}
	}
	if err := s.repo.Update(ctx, sp); err != nil {
		return nil, err
	}
	if sp.QualityStatus == QualityRejected && prev != QualityRejected {
		metrics.SpecimensRejected.Inc()
	}
	return sp, nil
}

// StartProcessing admits the specimen to analysis. All checks must be
// recorded and the specimen must be usable.
func (s *Service) StartProcessing(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	sp, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get specimen: %w", err)
	}
	if sp.ReceivedAt == nil {
		return nil, fmt.Errorf("specimen %s has not been received", sp.SpecimenNumber)
	}
	if !sp.ChecksComplete() {
		return nil, fmt.Errorf("specimen %s has unrecorded pre-analytical checks", sp.SpecimenNumber)
	}
	if !sp.Usable() {
		return nil, fmt.Errorf("specimen %s is %s and cannot be processed", sp.SpecimenNumber, sp.QualityStatus)
	}
	if sp.ProcessingStartedAt != nil {
		return nil, fmt.Errorf("specimen %s is already processing", sp.SpecimenNumber)
	}
	now := time.Now()
	sp.ProcessingStartedAt = &now
	if err := s.repo.Update(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *Service) CompleteProcessing(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	sp, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get specimen: %w", err)
	}
	if sp.ProcessingStartedAt == nil {
		return nil, fmt.Errorf("specimen %s has not started processing", sp.SpecimenNumber)
	}
	if sp.ProcessingCompletedAt != nil {
		return nil, fmt.Errorf("specimen %s has already completed processing", sp.SpecimenNumber)
	}
	now := time.Now()
	sp.ProcessingCompletedAt = &now
	if err := s.repo.Update(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

// Dispose records disposal. Disposed specimens are retained for audit.
func (s *Service) Dispose(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	sp, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get specimen: %w", err)
	}
	if sp.DisposedAt != nil {
		return nil, fmt.Errorf("specimen %s is already disposed", sp.SpecimenNumber)
	}
	now := time.Now()
	sp.DisposedAt = &now
	if err := s.repo.Update(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *Service) GetSpecimen(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByBarcode(ctx context.Context, barcode string) (*Specimen, error) {
	if barcode == "" {
		return nil, fmt.Errorf("barcode is required")
	}
	return s.repo.GetByBarcode(ctx, barcode)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Specimen, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByQualityStatus(ctx context.Context, status string, limit, offset int) ([]*Specimen, int, error) {
	switch status {
	case QualityPending, QualityAcceptable, QualityRejected, QualityCompromised:
	default:
		return nil, 0, fmt.Errorf("invalid quality status: %s", status)
	}
	return s.repo.ListByQualityStatus(ctx, status, limit, offset)
}

func applyCheck(dst **bool, src *bool) {
	if src != nil {
		*dst = src
	}
}
