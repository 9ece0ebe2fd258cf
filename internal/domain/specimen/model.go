package specimen

import (
	"time"

	"github.com/google/uuid"
)

// Quality statuses. A specimen starts as pending and only becomes
// acceptable once every pre-analytical check has been recorded and
// passes. Acceptability is always recomputed from the checks, never
// assumed.
const (
	QualityPending     = "pending"
	QualityAcceptable  = "acceptable"
	QualityRejected    = "rejected"
	QualityCompromised = "compromised"
)

// Specimen maps to the specimen table. A specimen belongs to exactly
// one order item and is never deleted, only status-transitioned.
type Specimen struct {
	ID             uuid.UUID `db:"id" json:"id"`
	SpecimenNumber string    `db:"specimen_number" json:"specimen_number"`
	Barcode        string    `db:"barcode" json:"barcode"`
	OrderItemID    uuid.UUID `db:"order_item_id" json:"order_item_id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`

	Type          string   `db:"type" json:"type"`
	Source        *string  `db:"source" json:"source,omitempty"`
	VolumeML      *float64 `db:"volume_ml" json:"volume_ml,omitempty"`
	ContainerType *string  `db:"container_type" json:"container_type,omitempty"`

	CollectedAt           *time.Time `db:"collected_at" json:"collected_at,omitempty"`
	CollectedBy           *uuid.UUID `db:"collected_by" json:"collected_by,omitempty"`
	ReceivedAt            *time.Time `db:"received_at" json:"received_at,omitempty"`
	ReceivedBy            *uuid.UUID `db:"received_by" json:"received_by,omitempty"`
	ProcessingStartedAt   *time.Time `db:"processing_started_at" json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `db:"processing_completed_at" json:"processing_completed_at,omitempty"`
	DisposedAt            *time.Time `db:"disposed_at" json:"disposed_at,omitempty"`

	QualityStatus string `db:"quality_status" json:"quality_status"`

	// Pre-analytical checks. Nil means not yet recorded; an unrecorded
	// check never counts as passing.
	VolumeAdequate         *bool `db:"volume_adequate" json:"volume_adequate,omitempty"`
	ContainerAppropriate   *bool `db:"container_appropriate" json:"container_appropriate,omitempty"`
	LabelingCorrect        *bool `db:"labeling_correct" json:"labeling_correct,omitempty"`
	TemperatureAppropriate *bool `db:"temperature_appropriate" json:"temperature_appropriate,omitempty"`
	Hemolyzed              *bool `db:"hemolyzed" json:"hemolyzed,omitempty"`
	Lipemic                *bool `db:"lipemic" json:"lipemic,omitempty"`
	Icteric                *bool `db:"icteric" json:"icteric,omitempty"`

	RejectionReason *string `db:"rejection_reason" json:"rejection_reason,omitempty"`
	QualityNotes    *string `db:"quality_notes" json:"quality_notes,omitempty"`

	VersionID int       `db:"version_id" json:"version_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (s *Specimen) GetVersionID() int  { return s.VersionID }
func (s *Specimen) SetVersionID(v int) { s.VersionID = v }

// ChecksComplete reports whether every pre-analytical check has been
// explicitly recorded.
func (s *Specimen) ChecksComplete() bool {
	return s.VolumeAdequate != nil &&
		s.ContainerAppropriate != nil &&
		s.LabelingCorrect != nil &&
		s.TemperatureAppropriate != nil &&
		s.Hemolyzed != nil &&
		s.Lipemic != nil &&
		s.Icteric != nil
}

// HasPreAnalyticalIssues is true when a handling check is explicitly
// false or an interference check is explicitly true. Unrecorded checks
// do not count as issues here; ChecksComplete gates acceptability.
func (s *Specimen) HasPreAnalyticalIssues() bool {
	if falseSet(s.VolumeAdequate) || falseSet(s.ContainerAppropriate) ||
		falseSet(s.LabelingCorrect) || falseSet(s.TemperatureAppropriate) {
		return true
	}
	return trueSet(s.Hemolyzed) || trueSet(s.Lipemic) || trueSet(s.Icteric)
}

// hasHandlingFailure reports a failed handling check. Handling
// failures make the specimen unusable; interference findings only
// compromise it.
func (s *Specimen) hasHandlingFailure() bool {
	return falseSet(s.VolumeAdequate) || falseSet(s.ContainerAppropriate) ||
		falseSet(s.LabelingCorrect) || falseSet(s.TemperatureAppropriate)
}

// EvaluateQuality recomputes QualityStatus from the recorded checks.
// While any check is unrecorded the status stays pending.
func (s *Specimen) EvaluateQuality() {
	if !s.ChecksComplete() {
		s.QualityStatus = QualityPending
		return
	}
	switch {
	case s.hasHandlingFailure():
		s.QualityStatus = QualityRejected
	case s.HasPreAnalyticalIssues():
		s.QualityStatus = QualityCompromised
	default:
		s.QualityStatus = QualityAcceptable
	}
}

// Usable reports whether results may be entered against this specimen.
// Compromised specimens are usable with a documented caveat.
func (s *Specimen) Usable() bool {
	return s.QualityStatus == QualityAcceptable || s.QualityStatus == QualityCompromised
}

func falseSet(b *bool) bool { return b != nil && !*b }
func trueSet(b *bool) bool  { return b != nil && *b }
