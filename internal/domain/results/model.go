package results

import (
	"time"

	"github.com/google/uuid"
)

// Result lifecycle statuses.
const (
	StatusPending     = "pending"
	StatusEntered     = "entered"
	StatusValidated   = "validated"
	StatusNeedsReview = "needs_review"
	StatusNeedsRepeat = "needs_repeat"
	StatusRejected    = "rejected"
	StatusFinal       = "final"
	StatusAmended     = "amended"
)

// Entry methods.
const (
	EntryManual    = "manual"
	EntryInterface = "interface"
	EntryImported  = "imported"
)

// Interpretation flags.
const (
	FlagNormal       = "normal"
	FlagLow          = "low"
	FlagHigh         = "high"
	FlagCriticalLow  = "critical_low"
	FlagCriticalHigh = "critical_high"
)

// Validation decisions.
const (
	DecisionApproved    = "approved"
	DecisionRejected    = "rejected"
	DecisionNeedsReview = "needs_review"
	DecisionNeedsRepeat = "needs_repeat"
)

// ValidationLevelNames maps a validation step to the role expected to
// perform it.
var ValidationLevelNames = map[int]string{
	1: "technician",
	2: "senior_tech",
	3: "pathologist",
	4: "clinical_reviewer",
}

// LabResult maps to the lab_result table. One result per ordered test
// per specimen. Amendments create a new row linked through
// OriginalResultID; rows are never deleted.
type LabResult struct {
	ID          uuid.UUID `db:"id" json:"id"`
	OrderID     uuid.UUID `db:"order_id" json:"order_id"`
	OrderItemID uuid.UUID `db:"order_item_id" json:"order_item_id"`
	SpecimenID  uuid.UUID `db:"specimen_id" json:"specimen_id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	TestID      uuid.UUID `db:"test_id" json:"test_id"`
	TestCode    string    `db:"test_code" json:"test_code"`
	TestName    string    `db:"test_name" json:"test_name"`

	Status       string    `db:"status" json:"status"`
	StatusReason *string   `db:"status_reason" json:"status_reason,omitempty"`
	EntryMethod  string    `db:"entry_method" json:"entry_method"`
	EnteredBy    uuid.UUID `db:"entered_by" json:"entered_by"`
	EnteredAt    time.Time `db:"entered_at" json:"entered_at"`

	// Set when a compromised specimen was explicitly admitted.
	AcceptedDespiteCompromise bool `db:"accepted_despite_compromise" json:"accepted_despite_compromise"`

	RequiredValidationLevels int `db:"required_validation_levels" json:"required_validation_levels"`
	CurrentValidationLevel   int `db:"current_validation_level" json:"current_validation_level"`

	HasAbnormal  bool `db:"has_abnormal" json:"has_abnormal"`
	HasCritical  bool `db:"has_critical" json:"has_critical"`
	HasPanic     bool `db:"has_panic" json:"has_panic"`
	DeltaFlagged bool `db:"delta_flagged" json:"delta_flagged"`

	FinalizedAt *time.Time `db:"finalized_at" json:"finalized_at,omitempty"`
	FinalizedBy *uuid.UUID `db:"finalized_by" json:"finalized_by,omitempty"`
	// CompletedAt is exposed to billing together with TestCode.
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	ReportGenerated   bool       `db:"report_generated" json:"report_generated"`
	ReportGeneratedAt *time.Time `db:"report_generated_at" json:"report_generated_at,omitempty"`

	OriginalResultID *uuid.UUID `db:"original_result_id" json:"original_result_id,omitempty"`
	AmendedByID      *uuid.UUID `db:"amended_by_id" json:"amended_by_id,omitempty"`
	AmendmentReason  *string    `db:"amendment_reason" json:"amendment_reason,omitempty"`

	VersionID int       `db:"version_id" json:"version_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (r *LabResult) GetVersionID() int  { return r.VersionID }
func (r *LabResult) SetVersionID(v int) { r.VersionID = v }

func (r *LabResult) IsFinal() bool { return r.Status == StatusFinal }

// CanBeAmended is true only for the current finalized row. A row that
// has already been amended is superseded and cannot be amended again.
func (r *LabResult) CanBeAmended() bool {
	return r.Status == StatusFinal && r.AmendedByID == nil
}

// IsAmendment reports whether this row corrects an earlier result.
func (r *LabResult) IsAmendment() bool { return r.OriginalResultID != nil }

// LabResultParameter maps to the lab_result_parameter table. Threshold
// columns are copied from the test catalog at entry time so later
// catalog edits do not rewrite history.
type LabResultParameter struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ResultID    uuid.UUID `db:"result_id" json:"result_id"`
	ParameterID uuid.UUID `db:"parameter_id" json:"parameter_id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Unit        *string   `db:"unit" json:"unit"`

	ValueNumeric *float64 `db:"value_numeric" json:"value_numeric,omitempty"`
	ValueText    *string  `db:"value_text" json:"value_text,omitempty"`

	ReferenceLow  *float64 `db:"reference_low" json:"reference_low,omitempty"`
	ReferenceHigh *float64 `db:"reference_high" json:"reference_high,omitempty"`
	CriticalLow   *float64 `db:"critical_low" json:"critical_low,omitempty"`
	CriticalHigh  *float64 `db:"critical_high" json:"critical_high,omitempty"`
	PanicLow      *float64 `db:"panic_low" json:"panic_low,omitempty"`
	PanicHigh     *float64 `db:"panic_high" json:"panic_high,omitempty"`
	DeltaCheckPct *float64 `db:"delta_check_pct" json:"delta_check_pct,omitempty"`
	DeltaCheckAbs *float64 `db:"delta_check_abs" json:"delta_check_abs,omitempty"`

	InterpretationFlag *string `db:"interpretation_flag" json:"interpretation_flag,omitempty"`
	Abnormal           bool    `db:"abnormal" json:"abnormal"`
	Critical           bool    `db:"critical" json:"critical"`
	PanicValue         bool    `db:"panic_value" json:"panic_value"`
	// Unclassified marks an interpretation made without usable reference
	// data so a defaulted NORMAL is never mistaken for a real one.
	Unclassified bool `db:"unclassified" json:"unclassified"`

	PreviousValue    *float64   `db:"previous_value" json:"previous_value,omitempty"`
	PreviousResultID *uuid.UUID `db:"previous_result_id" json:"previous_result_id,omitempty"`
	DeltaPct         *float64   `db:"delta_pct" json:"delta_pct,omitempty"`
	DeltaAbs         *float64   `db:"delta_abs" json:"delta_abs,omitempty"`
	DeltaFlagged     bool       `db:"delta_flagged" json:"delta_flagged"`

	Mandatory    bool      `db:"mandatory" json:"mandatory"`
	DisplayOrder int       `db:"display_order" json:"display_order"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ResultValidation maps to the result_validation table. Rows are
// append-only; a decision is never edited after commit.
type ResultValidation struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ResultID    uuid.UUID `db:"result_id" json:"result_id"`
	Step        int       `db:"step" json:"step"`
	LevelName   string    `db:"level_name" json:"level_name"`
	Decision    string    `db:"decision" json:"decision"`
	ValidatedBy uuid.UUID `db:"validated_by" json:"validated_by"`
	ValidatedAt time.Time `db:"validated_at" json:"validated_at"`

	Notes            *string `db:"notes" json:"notes,omitempty"`
	Issues           *string `db:"issues" json:"issues,omitempty"`
	CorrectiveAction *string `db:"corrective_action" json:"corrective_action,omitempty"`
	Signature        *string `db:"signature" json:"signature,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
