package orders

import (
	"time"

	"github.com/google/uuid"
)

// Order priorities drive expected turnaround targets.
const (
	PriorityRoutine = "routine"
	PriorityUrgent  = "urgent"
	PriorityStat    = "stat"
)

// Order lifecycle statuses as reported by the ordering system.
const (
	OrderStatusActive    = "active"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// LabOrder maps to the lab_order table. Orders are placed by the excluded
// ordering subsystem; this service only reads them.
type LabOrder struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	OrderNumber        string    `db:"order_number" json:"order_number"`
	PatientID          uuid.UUID `db:"patient_id" json:"patient_id"`
	Priority           string    `db:"priority" json:"priority"`
	Status             string    `db:"status" json:"status"`
	OrderedBy          uuid.UUID `db:"ordered_by" json:"ordered_by"`
	OrderedAt          time.Time `db:"ordered_at" json:"ordered_at"`
	ExpectedTATMinutes *int      `db:"expected_tat_minutes" json:"expected_tat_minutes,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// LabOrderItem maps to the lab_order_item table: one ordered test within an
// order, tied to the specimen it is to be performed on.
type LabOrderItem struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	OrderID    uuid.UUID  `db:"order_id" json:"order_id"`
	TestID     uuid.UUID  `db:"test_id" json:"test_id"`
	TestCode   string     `db:"test_code" json:"test_code"`
	TestName   string     `db:"test_name" json:"test_name"`
	SpecimenID *uuid.UUID `db:"specimen_id" json:"specimen_id,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// LabTestParameter maps to the lab_test_parameter table: the catalog entry
// for a single analyte within a test. Thresholds here are the live catalog
// values; result entry copies them into the result parameter row so that
// historical results keep the ranges that were in force at the time.
type LabTestParameter struct {
	ID            uuid.UUID `db:"id" json:"id"`
	TestID        uuid.UUID `db:"test_id" json:"test_id"`
	Code          string    `db:"code" json:"code"`
	Name          string    `db:"name" json:"name"`
	Unit          *string   `db:"unit" json:"unit,omitempty"`
	ReferenceLow  *float64  `db:"reference_low" json:"reference_low,omitempty"`
	ReferenceHigh *float64  `db:"reference_high" json:"reference_high,omitempty"`
	CriticalLow   *float64  `db:"critical_low" json:"critical_low,omitempty"`
	CriticalHigh  *float64  `db:"critical_high" json:"critical_high,omitempty"`
	PanicLow      *float64  `db:"panic_low" json:"panic_low,omitempty"`
	PanicHigh     *float64  `db:"panic_high" json:"panic_high,omitempty"`
	DeltaCheckPct *float64  `db:"delta_check_pct" json:"delta_check_pct,omitempty"`
	DeltaCheckAbs *float64  `db:"delta_check_abs" json:"delta_check_abs,omitempty"`
	Mandatory     bool      `db:"mandatory" json:"mandatory"`
	DisplayOrder  int       `db:"display_order" json:"display_order"`
}
