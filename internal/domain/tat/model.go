package tat

import (
	"time"

	"github.com/google/uuid"
)

// Delay categories, keyed off the variance between actual and expected
// turnaround.
const (
	DelayNone        = "none"
	DelaySlight      = "slight"
	DelayModerate    = "moderate"
	DelaySignificant = "significant"
)

// TatMonitoring maps to the tat_monitoring table; one row per order
// item. Milestones are copied from the owning order, specimen and
// result as they happen, and every derived field is recomputed from
// scratch on each refresh. A nil duration means the segment has not
// been measured yet, which is different from zero minutes.
type TatMonitoring struct {
	ID          uuid.UUID `db:"id" json:"id"`
	OrderID     uuid.UUID `db:"order_id" json:"order_id"`
	OrderItemID uuid.UUID `db:"order_item_id" json:"order_item_id"`
	TestCode    string    `db:"test_code" json:"test_code"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`

	OrderedAt           *time.Time `db:"ordered_at" json:"ordered_at,omitempty"`
	CollectedAt         *time.Time `db:"collected_at" json:"collected_at,omitempty"`
	ReceivedAt          *time.Time `db:"received_at" json:"received_at,omitempty"`
	ProcessingStartedAt *time.Time `db:"processing_started_at" json:"processing_started_at,omitempty"`
	ResultEnteredAt     *time.Time `db:"result_entered_at" json:"result_entered_at,omitempty"`
	ValidatedAt         *time.Time `db:"validated_at" json:"validated_at,omitempty"`
	ReportedAt          *time.Time `db:"reported_at" json:"reported_at,omitempty"`

	CollectionMinutes *int `db:"collection_minutes" json:"collection_minutes,omitempty"`
	TransportMinutes  *int `db:"transport_minutes" json:"transport_minutes,omitempty"`
	QueueMinutes      *int `db:"queue_minutes" json:"queue_minutes,omitempty"`
	AnalysisMinutes   *int `db:"analysis_minutes" json:"analysis_minutes,omitempty"`
	ValidationMinutes *int `db:"validation_minutes" json:"validation_minutes,omitempty"`
	ReportingMinutes  *int `db:"reporting_minutes" json:"reporting_minutes,omitempty"`
	TotalTATMinutes   *int `db:"total_tat_minutes" json:"total_tat_minutes,omitempty"`

	ExpectedTATMinutes *int    `db:"expected_tat_minutes" json:"expected_tat_minutes,omitempty"`
	TatMet             *bool   `db:"tat_met" json:"tat_met,omitempty"`
	VarianceMinutes    *int    `db:"variance_minutes" json:"variance_minutes,omitempty"`
	DelayCategory      *string `db:"delay_category" json:"delay_category,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
