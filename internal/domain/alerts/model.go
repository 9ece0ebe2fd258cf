package alerts

import (
	"time"

	"github.com/google/uuid"
)

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityPanic    = "panic"
)

// Notification delivery states. An alert whose notification exhausted
// its retries goes stale and stays visible until a human acknowledges
// it; staleness never closes the alert.
const (
	NotifyPending = "pending"
	NotifySent    = "sent"
	NotifyFailed  = "failed"
	NotifyStale   = "stale"
)

// CriticalValueAlert maps to the critical_value_alert table. An alert
// is open until it has been acknowledged and then resolved, in that
// order. At most one open alert exists per result and parameter.
type CriticalValueAlert struct {
	ID            uuid.UUID `db:"id" json:"id"`
	ResultID      uuid.UUID `db:"result_id" json:"result_id"`
	ParameterID   uuid.UUID `db:"parameter_id" json:"parameter_id"`
	ParameterCode string    `db:"parameter_code" json:"parameter_code"`
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	Value         *float64  `db:"value" json:"value,omitempty"`
	Severity      string    `db:"severity" json:"severity"`

	Acknowledged   bool       `db:"acknowledged" json:"acknowledged"`
	AcknowledgedBy *uuid.UUID `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	AckNotes       *string    `db:"ack_notes" json:"ack_notes,omitempty"`

	Resolved        bool       `db:"resolved" json:"resolved"`
	ResolvedBy      *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolutionNotes *string    `db:"resolution_notes" json:"resolution_notes,omitempty"`

	NotificationStatus string  `db:"notification_status" json:"notification_status"`
	NotifyTarget       *string `db:"notify_target" json:"notify_target,omitempty"`
	RetryCount         int     `db:"retry_count" json:"retry_count"`

	VersionID int       `db:"version_id" json:"version_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Open reports whether the alert still needs clinical action.
func (a *CriticalValueAlert) Open() bool {
	return !a.Resolved
}

func (a *CriticalValueAlert) GetVersionID() int  { return a.VersionID }
func (a *CriticalValueAlert) SetVersionID(v int) { a.VersionID = v }
