package results

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/domain/orders"
	"github.com/lims/lims/internal/domain/specimen"
	"github.com/lims/lims/internal/platform/db"
	"github.com/lims/lims/internal/platform/metrics"
)

// DefaultRequiredLevels is the validation depth applied when the order
// item does not specify one.
const DefaultRequiredLevels = 2

var validEntryMethods = map[string]bool{
	EntryManual:    true,
	EntryInterface: true,
	EntryImported:  true,
}

// CriticalFinding describes a parameter whose value crossed a critical
// or panic threshold during finalization.
type CriticalFinding struct {
	ResultID      uuid.UUID
	ParameterID   uuid.UUID
	ParameterCode string
	PatientID     uuid.UUID
	Value         *float64
	Severity      string
}

// AlertRaiser creates or returns the open critical value alert for a
// finding. Raising must be idempotent per open result/parameter pair.
type AlertRaiser interface {
	Raise(ctx context.Context, f CriticalFinding) error
}

type Service struct {
	pool        *pgxpool.Pool
	results     ResultRepository
	validations ValidationRepository
	specimens   specimen.Repository
	items       orders.LabOrderItemRepository
	orders      orders.LabOrderRepository
	catalog     orders.LabTestParameterRepository
	alerts      AlertRaiser
}

func NewService(
	pool *pgxpool.Pool,
	results ResultRepository,
	validations ValidationRepository,
	specimens specimen.Repository,
	items orders.LabOrderItemRepository,
	orderRepo orders.LabOrderRepository,
	catalog orders.LabTestParameterRepository,
	alerts AlertRaiser,
) *Service {
	return &Service{
		pool:        pool,
		results:     results,
		validations: validations,
		specimens:   specimens,
		items:       items,
		orders:      orderRepo,
		catalog:     catalog,
		alerts:      alerts,
	}
}

func (s *Service) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.pool == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.pool, fn)
}

// ParameterEntry is one measured value keyed by its catalog parameter.
type ParameterEntry struct {
	ParameterID  uuid.UUID `json:"parameter_id"`
	ValueNumeric *float64  `json:"value_numeric,omitempty"`
	ValueText    *string   `json:"value_text,omitempty"`
}

// EntryInput is the payload for entering a new result.
type EntryInput struct {
	OrderItemID              uuid.UUID        `json:"order_item_id"`
	SpecimenID               uuid.UUID        `json:"specimen_id"`
	EntryMethod              string           `json:"entry_method"`
	EnteredBy                uuid.UUID        `json:"-"`
	AcceptDespiteCompromise  bool             `json:"accept_despite_compromise"`
	RequiredValidationLevels int              `json:"required_validation_levels,omitempty"`
	Parameters               []ParameterEntry `json:"parameters"`
}

// EnterResult runs the specimen gate, copies catalog thresholds,
// interprets every entered value and persists the result as ENTERED.
// The gate, the delta baseline read and the insert share one
// transaction so the baseline is a consistent snapshot.
func (s *Service) EnterResult(ctx context.Context, input EntryInput) (*LabResult, []*LabResultParameter, error) {
	if !validEntryMethods[input.EntryMethod] {
		return nil, nil, fmt.Errorf("invalid entry method: %s", input.EntryMethod)
	}
	if input.EnteredBy == uuid.Nil {
		return nil, nil, fmt.Errorf("entering user identity is required")
	}
	if len(input.Parameters) == 0 {
		return nil, nil, fmt.Errorf("at least one parameter value is required")
	}
	requiredLevels := input.RequiredValidationLevels
	if requiredLevels == 0 {
		requiredLevels = DefaultRequiredLevels
	}
	if requiredLevels < 1 || requiredLevels > len(ValidationLevelNames) {
		return nil, nil, fmt.Errorf("required validation levels must be between 1 and %d", len(ValidationLevelNames))
	}

	var (
		result *LabResult
		params []*LabResultParameter
	)
	err := s.withTx(ctx, func(ctx context.Context) error {
		item, err := s.items.GetByID(ctx, input.OrderItemID)
		if err != nil {
			return fmt.Errorf("get order item: %w", err)
		}
		order, err := s.orders.GetByID(ctx, item.OrderID)
		if err != nil {
			return fmt.Errorf("get lab order: %w", err)
		}
		sp, err := s.specimens.GetByID(ctx, input.SpecimenID)
		if err != nil {
			return fmt.Errorf("get specimen: %w", err)
		}
		if item.SpecimenID != nil && *item.SpecimenID != sp.ID {
			return fmt.Errorf("specimen %s does not belong to order item %s", sp.SpecimenNumber, item.ID)
		}
		if err := checkSpecimenGate(sp, input.AcceptDespiteCompromise); err != nil {
			return err
		}

		catalog, err := s.catalog.ListByTest(ctx, item.TestID)
		if err != nil {
			return fmt.Errorf("list test parameters: %w", err)
		}
		if len(catalog) == 0 {
			return &MissingDataError{Reason: fmt.Sprintf("test %s has no parameter catalog", item.TestCode)}
		}
		entered := make(map[uuid.UUID]ParameterEntry, len(input.Parameters))
		for _, e := range input.Parameters {
			entered[e.ParameterID] = e
		}
		for id := range entered {
			if !catalogContains(catalog, id) {
				return fmt.Errorf("parameter %s is not part of test %s", id, item.TestCode)
			}
		}

		now := time.Now()
		result = &LabResult{
			OrderID:                   order.ID,
			OrderItemID:               item.ID,
			SpecimenID:                sp.ID,
			PatientID:                 sp.PatientID,
			TestID:                    item.TestID,
			TestCode:                  item.TestCode,
			TestName:                  item.TestName,
			Status:                    StatusEntered,
			EntryMethod:               input.EntryMethod,
			EnteredBy:                 input.EnteredBy,
			EnteredAt:                 now,
			AcceptedDespiteCompromise: sp.QualityStatus == specimen.QualityCompromised && input.AcceptDespiteCompromise,
			RequiredValidationLevels:  requiredLevels,
		}

		params = params[:0]
		for _, cp := range catalog {
			row := &LabResultParameter{
				ParameterID:   cp.ID,
				Code:          cp.Code,
				Name:          cp.Name,
				Unit:          cp.Unit,
				ReferenceLow:  cp.ReferenceLow,
				ReferenceHigh: cp.ReferenceHigh,
				CriticalLow:   cp.CriticalLow,
				CriticalHigh:  cp.CriticalHigh,
				PanicLow:      cp.PanicLow,
				PanicHigh:     cp.PanicHigh,
				DeltaCheckPct: cp.DeltaCheckPct,
				DeltaCheckAbs: cp.DeltaCheckAbs,
				Mandatory:     cp.Mandatory,
				DisplayOrder:  cp.DisplayOrder,
			}
			if entry, ok := entered[cp.ID]; ok {
				row.ValueNumeric = entry.ValueNumeric
				row.ValueText = entry.ValueText
				interp := Classify(entry.ValueNumeric, cp.ReferenceLow, cp.ReferenceHigh, cp.CriticalLow, cp.CriticalHigh)
				flag := interp.Flag
				row.InterpretationFlag = &flag
				row.Abnormal = interp.Abnormal
				row.Critical = interp.Critical
				row.Unclassified = interp.Unclassified
				row.PanicValue = CrossesPanic(entry.ValueNumeric, cp.PanicLow, cp.PanicHigh)

				if entry.ValueNumeric != nil && (cp.DeltaCheckPct != nil || cp.DeltaCheckAbs != nil) {
					prev, err := s.results.PreviousValidated(ctx, sp.PatientID, cp.Code, now)
					if err != nil {
						return fmt.Errorf("read delta baseline: %w", err)
					}
					if prev != nil {
						d := DeltaCheck(entry.ValueNumeric, prev.ValueNumeric, cp.DeltaCheckPct, cp.DeltaCheckAbs)
						row.PreviousValue = prev.ValueNumeric
						row.PreviousResultID = &prev.ResultID
						row.DeltaPct = d.PctDelta
						row.DeltaAbs = d.AbsDelta
						row.DeltaFlagged = d.Flagged
					}
				}

				result.HasAbnormal = result.HasAbnormal || row.Abnormal
				result.HasCritical = result.HasCritical || row.Critical
				result.HasPanic = result.HasPanic || row.PanicValue
				result.DeltaFlagged = result.DeltaFlagged || row.DeltaFlagged
			}
			params = append(params, row)
		}

		return s.results.Create(ctx, result, params)
	})
	if err != nil {
		return nil, nil, err
	}
	metrics.ResultsEntered.WithLabelValues(input.EntryMethod).Inc()
	return result, params, nil
}

func checkSpecimenGate(sp *specimen.Specimen, acceptCompromise bool) error {
	switch sp.QualityStatus {
	case specimen.QualityRejected:
		return &SpecimenGateFailure{
			SpecimenNumber: sp.SpecimenNumber,
			QualityStatus:  sp.QualityStatus,
			Reason:         "specimen was rejected and must be recollected before results can be entered",
		}
	case specimen.QualityCompromised:
		if !acceptCompromise {
			return &SpecimenGateFailure{
				SpecimenNumber: sp.SpecimenNumber,
				QualityStatus:  sp.QualityStatus,
				Reason:         "specimen is compromised; entry requires explicit accept_despite_compromise",
			}
		}
		return nil
	case specimen.QualityAcceptable:
		return nil
	default:
		return &SpecimenGateFailure{
			SpecimenNumber: sp.SpecimenNumber,
			QualityStatus:  sp.QualityStatus,
			Reason:         "pre-analytical checks have not been fully recorded",
		}
	}
}

func catalogContains(catalog []*orders.LabTestParameter, id uuid.UUID) bool {
	for _, cp := range catalog {
		if cp.ID == id {
			return true
		}
	}
	return false
}

// ValidationInput is one validation decision for a result.
type ValidationInput struct {
	Step             int       `json:"step"`
	Decision         string    `json:"decision"`
	ValidatedBy      uuid.UUID `json:"-"`
	Notes            *string   `json:"notes,omitempty"`
	Issues           *string   `json:"issues,omitempty"`
	CorrectiveAction *string   `json:"corrective_action,omitempty"`
	Signature        *string   `json:"signature,omitempty"`
}

// Validate records a validation step. Level ordering is enforced, the
// validation row and the result update commit in one transaction, and
// the conditional version write serializes concurrent steps for the
// same result. Approval at the last required level finalizes the
// result, which raises critical value alerts synchronously.
func (s *Service) Validate(ctx context.Context, resultID uuid.UUID, input ValidationInput) (*LabResult, error) {
	levelName, ok := ValidationLevelNames[input.Step]
	if !ok {
		return nil, fmt.Errorf("invalid validation step: %d", input.Step)
	}
	switch input.Decision {
	case DecisionApproved, DecisionRejected, DecisionNeedsReview, DecisionNeedsRepeat:
	default:
		return nil, fmt.Errorf("invalid validation decision: %s", input.Decision)
	}
	if input.ValidatedBy == uuid.Nil {
		return nil, fmt.Errorf("validating user identity is required")
	}

	var result *LabResult
	err := s.withTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.results.GetByID(ctx, resultID)
		if err != nil {
			return fmt.Errorf("get result: %w", err)
		}
		switch result.Status {
		case StatusEntered, StatusValidated, StatusNeedsReview:
		case StatusPending:
			return fmt.Errorf("result %s has no entered values to validate", result.ID)
		default:
			return fmt.Errorf("result %s is %s and cannot be validated", result.ID, result.Status)
		}
		if input.Step > result.RequiredValidationLevels {
			return fmt.Errorf("result %s requires %d validation levels; step %d is not configured",
				result.ID, result.RequiredValidationLevels, input.Step)
		}

		existing, err := s.validations.ListByResult(ctx, resultID)
		if err != nil {
			return fmt.Errorf("list validations: %w", err)
		}
		approved := make(map[int]bool)
		for _, v := range existing {
			if v.Decision == DecisionApproved {
				approved[v.Step] = true
			}
		}
		if approved[input.Step] {
			return &ConflictError{ResultID: resultID.String(), Step: input.Step}
		}
		for l := 1; l < input.Step; l++ {
			if !approved[l] {
				return &ValidationOrderError{AttemptedLevel: input.Step, RequiredLevel: l}
			}
		}

		now := time.Now()
		v := &ResultValidation{
			ResultID:         resultID,
			Step:             input.Step,
			LevelName:        levelName,
			Decision:         input.Decision,
			ValidatedBy:      input.ValidatedBy,
			ValidatedAt:      now,
			Notes:            input.Notes,
			Issues:           input.Issues,
			CorrectiveAction: input.CorrectiveAction,
			Signature:        input.Signature,
		}
		if err := s.validations.Create(ctx, v); err != nil {
			return err
		}

		switch input.Decision {
		case DecisionApproved:
			result.CurrentValidationLevel = input.Step
			if input.Step == result.RequiredValidationLevels {
				if err := s.finalize(ctx, result, input.ValidatedBy, now); err != nil {
					return err
				}
			} else {
				result.Status = StatusValidated
			}
		case DecisionNeedsReview:
			result.Status = StatusNeedsReview
			result.StatusReason = reasonOr(input.Notes, "flagged for review at "+levelName+" validation")
		case DecisionNeedsRepeat:
			result.Status = StatusNeedsRepeat
			result.StatusReason = reasonOr(input.Notes, "repeat requested at "+levelName+" validation; enter a new result")
		case DecisionRejected:
			result.Status = StatusRejected
			result.StatusReason = reasonOr(input.Notes, "rejected at "+levelName+" validation")
		}

		return s.results.Update(ctx, result)
	})
	if err != nil {
		return nil, err
	}
	metrics.ValidationDecisions.WithLabelValues(levelName, input.Decision).Inc()
	if result.Status == StatusFinal {
		metrics.ResultsFinalized.Inc()
	}
	return result, nil
}

// finalize transitions an approved result to FINAL. Every mandatory
// parameter must carry an interpretation flag, and critical or panic
// findings must have an open alert before the transition commits.
func (s *Service) finalize(ctx context.Context, result *LabResult, by uuid.UUID, now time.Time) error {
	params, err := s.results.GetParameters(ctx, result.ID)
	if err != nil {
		return fmt.Errorf("get parameters: %w", err)
	}
	for _, p := range params {
		if p.Mandatory && p.InterpretationFlag == nil {
			return &MissingDataError{
				ParameterCode: p.Code,
				Reason:        "mandatory parameter lacks an interpretation flag; result cannot be finalized",
			}
		}
	}
	if s.alerts != nil {
		for _, p := range params {
			if !p.Critical && !p.PanicValue {
				continue
			}
			severity := "critical"
			if p.PanicValue {
				severity = "panic"
			}
			finding := CriticalFinding{
				ResultID:      result.ID,
				ParameterID:   p.ID,
				ParameterCode: p.Code,
				PatientID:     result.PatientID,
				Value:         p.ValueNumeric,
				Severity:      severity,
			}
			if err := s.alerts.Raise(ctx, finding); err != nil {
				return fmt.Errorf("raise critical value alert for %s: %w", p.Code, err)
			}
		}
	}
	result.Status = StatusFinal
	result.FinalizedAt = &now
	result.FinalizedBy = &by
	result.CompletedAt = &now
	return nil
}

func reasonOr(notes *string, fallback string) *string {
	if notes != nil && *notes != "" {
		return notes
	}
	return &fallback
}

// AmendInput carries the corrections for a finalized result.
type AmendInput struct {
	AmendedBy  uuid.UUID        `json:"-"`
	Reason     string           `json:"reason"`
	Parameters []ParameterEntry `json:"parameters"`
}

// Amend creates a new finalized result row that corrects the original.
// The original row keeps its data and is marked amended; both rows are
// linked so the audit chain is walkable in either direction.
func (s *Service) Amend(ctx context.Context, originalID uuid.UUID, input AmendInput) (*LabResult, error) {
	if input.AmendedBy == uuid.Nil {
		return nil, fmt.Errorf("amending user identity is required")
	}
	if input.Reason == "" {
		return nil, fmt.Errorf("amendment reason is required")
	}
	if len(input.Parameters) == 0 {
		return nil, fmt.Errorf("at least one corrected parameter value is required")
	}

	var amendment *LabResult
	err := s.withTx(ctx, func(ctx context.Context) error {
		original, err := s.results.GetByID(ctx, originalID)
		if err != nil {
			return fmt.Errorf("get result: %w", err)
		}
		if !original.CanBeAmended() {
			if original.AmendedByID != nil {
				return fmt.Errorf("result %s has already been amended by %s", original.ID, *original.AmendedByID)
			}
			return fmt.Errorf("result %s is %s; only finalized results can be amended", original.ID, original.Status)
		}
		originalParams, err := s.results.GetParameters(ctx, originalID)
		if err != nil {
			return fmt.Errorf("get parameters: %w", err)
		}
		corrections := make(map[uuid.UUID]ParameterEntry, len(input.Parameters))
		for _, e := range input.Parameters {
			corrections[e.ParameterID] = e
		}
		for id := range corrections {
			if !paramsContain(originalParams, id) {
				return fmt.Errorf("parameter %s is not part of result %s", id, originalID)
			}
		}

		now := time.Now()
		amendment = &LabResult{
			OrderID:                   original.OrderID,
			OrderItemID:               original.OrderItemID,
			SpecimenID:                original.SpecimenID,
			PatientID:                 original.PatientID,
			TestID:                    original.TestID,
			TestCode:                  original.TestCode,
			TestName:                  original.TestName,
			Status:                    StatusFinal,
			EntryMethod:               original.EntryMethod,
			EnteredBy:                 input.AmendedBy,
			EnteredAt:                 now,
			AcceptedDespiteCompromise: original.AcceptedDespiteCompromise,
			RequiredValidationLevels:  original.RequiredValidationLevels,
			CurrentValidationLevel:    original.RequiredValidationLevels,
			FinalizedAt:               &now,
			FinalizedBy:               &input.AmendedBy,
			CompletedAt:               &now,
			OriginalResultID:          &original.ID,
			AmendmentReason:           &input.Reason,
		}

		newParams := make([]*LabResultParameter, 0, len(originalParams))
		for _, op := range originalParams {
			row := &LabResultParameter{
				ParameterID:   op.ParameterID,
				Code:          op.Code,
				Name:          op.Name,
				Unit:          op.Unit,
				ReferenceLow:  op.ReferenceLow,
				ReferenceHigh: op.ReferenceHigh,
				CriticalLow:   op.CriticalLow,
				CriticalHigh:  op.CriticalHigh,
				PanicLow:      op.PanicLow,
				PanicHigh:     op.PanicHigh,
				DeltaCheckPct: op.DeltaCheckPct,
				DeltaCheckAbs: op.DeltaCheckAbs,
				ValueNumeric:  op.ValueNumeric,
				ValueText:     op.ValueText,
				Mandatory:     op.Mandatory,
				DisplayOrder:  op.DisplayOrder,
			}
			if corr, ok := corrections[op.ParameterID]; ok {
				row.ValueNumeric = corr.ValueNumeric
				row.ValueText = corr.ValueText
			}
			if row.ValueNumeric != nil || row.ValueText != nil {
				interp := Classify(row.ValueNumeric, row.ReferenceLow, row.ReferenceHigh, row.CriticalLow, row.CriticalHigh)
				flag := interp.Flag
				row.InterpretationFlag = &flag
				row.Abnormal = interp.Abnormal
				row.Critical = interp.Critical
				row.Unclassified = interp.Unclassified
				row.PanicValue = CrossesPanic(row.ValueNumeric, row.PanicLow, row.PanicHigh)

				// Delta is recomputed against the baseline the original
				// used so the comparison window does not shift.
				if op.PreviousValue != nil {
					d := DeltaCheck(row.ValueNumeric, op.PreviousValue, row.DeltaCheckPct, row.DeltaCheckAbs)
					row.PreviousValue = op.PreviousValue
					row.PreviousResultID = op.PreviousResultID
					row.DeltaPct = d.PctDelta
					row.DeltaAbs = d.AbsDelta
					row.DeltaFlagged = d.Flagged
				}
			}
			amendment.HasAbnormal = amendment.HasAbnormal || row.Abnormal
			amendment.HasCritical = amendment.HasCritical || row.Critical
			amendment.HasPanic = amendment.HasPanic || row.PanicValue
			amendment.DeltaFlagged = amendment.DeltaFlagged || row.DeltaFlagged
			newParams = append(newParams, row)
		}

		if err := s.results.Create(ctx, amendment, newParams); err != nil {
			return err
		}
		if s.alerts != nil {
			for _, p := range newParams {
				if !p.Critical && !p.PanicValue {
					continue
				}
				severity := "critical"
				if p.PanicValue {
					severity = "panic"
				}
				if err := s.alerts.Raise(ctx, CriticalFinding{
					ResultID:      amendment.ID,
					ParameterID:   p.ID,
					ParameterCode: p.Code,
					PatientID:     amendment.PatientID,
					Value:         p.ValueNumeric,
					Severity:      severity,
				}); err != nil {
					return fmt.Errorf("raise critical value alert for %s: %w", p.Code, err)
				}
			}
		}

		original.Status = StatusAmended
		original.AmendedByID = &amendment.ID
		return s.results.Update(ctx, original)
	})
	if err != nil {
		return nil, err
	}
	metrics.ResultsAmended.Inc()
	return amendment, nil
}

func paramsContain(params []*LabResultParameter, parameterID uuid.UUID) bool {
	for _, p := range params {
		if p.ParameterID == parameterID {
			return true
		}
	}
	return false
}

// MarkReportGenerated flags a finalized result as reported.
func (s *Service) MarkReportGenerated(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	var result *LabResult
	err := s.withTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.results.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get result: %w", err)
		}
		if !result.IsFinal() {
			return fmt.Errorf("result %s is %s; only finalized results can be reported", result.ID, result.Status)
		}
		if result.ReportGenerated {
			return nil
		}
		now := time.Now()
		result.ReportGenerated = true
		result.ReportGeneratedAt = &now
		return s.results.Update(ctx, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResultDetail is the read projection of a result with its parameter
// and validation rows.
type ResultDetail struct {
	Result      *LabResult            `json:"result"`
	Parameters  []*LabResultParameter `json:"parameters"`
	Validations []*ResultValidation   `json:"validations"`
}

func (s *Service) GetResult(ctx context.Context, id uuid.UUID) (*ResultDetail, error) {
	r, err := s.results.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	params, err := s.results.GetParameters(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get parameters: %w", err)
	}
	vals, err := s.validations.ListByResult(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list validations: %w", err)
	}
	return &ResultDetail{Result: r, Parameters: params, Validations: vals}, nil
}

func (s *Service) ListBySpecimen(ctx context.Context, specimenID uuid.UUID) ([]*LabResult, error) {
	return s.results.ListBySpecimen(ctx, specimenID)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabResult, int, error) {
	return s.results.ListByPatient(ctx, patientID, limit, offset)
}

// BillableResult is the projection exposed for invoice triggering.
type BillableResult struct {
	ResultID    uuid.UUID `json:"result_id"`
	TestCode    string    `json:"test_code"`
	CompletedAt time.Time `json:"completed_at"`
}

// ListBillable returns finalized results for downstream invoicing.
func (s *Service) ListBillable(ctx context.Context, limit, offset int) ([]*BillableResult, int, error) {
	items, total, err := s.results.ListByStatus(ctx, StatusFinal, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	billable := make([]*BillableResult, 0, len(items))
	for _, r := range items {
		if r.CompletedAt == nil {
			continue
		}
		billable = append(billable, &BillableResult{
			ResultID:    r.ID,
			TestCode:    r.TestCode,
			CompletedAt: *r.CompletedAt,
		})
	}
	return billable, total, nil
}
