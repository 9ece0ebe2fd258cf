package results

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lims/lims/internal/domain/orders"
	"github.com/lims/lims/internal/domain/specimen"
)

// -- Mock Repositories --

type mockResultRepo struct {
	results map[uuid.UUID]*LabResult
	params  map[uuid.UUID][]*LabResultParameter
}

func newMockResultRepo() *mockResultRepo {
	return &mockResultRepo{
		results: make(map[uuid.UUID]*LabResult),
		params:  make(map[uuid.UUID][]*LabResultParameter),
	}
}

func (m *mockResultRepo) Create(_ context.Context, r *LabResult, params []*LabResultParameter) error {
	r.ID = uuid.New()
	r.VersionID = 1
	r.CreatedAt = time.Now()
	r.UpdatedAt = time.Now()
	clone := *r
	m.results[r.ID] = &clone
	for _, p := range params {
		p.ID = uuid.New()
		p.ResultID = r.ID
		pc := *p
		m.params[r.ID] = append(m.params[r.ID], &pc)
	}
	return nil
}

func (m *mockResultRepo) GetByID(_ context.Context, id uuid.UUID) (*LabResult, error) {
	r, ok := m.results[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	clone := *r
	return &clone, nil
}

func (m *mockResultRepo) Update(_ context.Context, r *LabResult) error {
	stored, ok := m.results[r.ID]
	if !ok {
		return fmt.Errorf("not found")
	}
	if stored.VersionID != r.VersionID {
		return &ConflictError{ResultID: r.ID.String()}
	}
	r.VersionID++
	clone := *r
	m.results[r.ID] = &clone
	return nil
}

func (m *mockResultRepo) GetParameters(_ context.Context, resultID uuid.UUID) ([]*LabResultParameter, error) {
	return m.params[resultID], nil
}

func (m *mockResultRepo) ListBySpecimen(_ context.Context, specimenID uuid.UUID) ([]*LabResult, error) {
	var out []*LabResult
	for _, r := range m.results {
		if r.SpecimenID == specimenID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockResultRepo) LatestByOrderItem(_ context.Context, orderItemID uuid.UUID) (*LabResult, error) {
	var latest *LabResult
	for _, r := range m.results {
		if r.OrderItemID != orderItemID {
			continue
		}
		if latest == nil || r.EnteredAt.After(latest.EnteredAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

func (m *mockResultRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*LabResult, int, error) {
	var out []*LabResult
	for _, r := range m.results {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *mockResultRepo) ListByStatus(_ context.Context, status string, limit, offset int) ([]*LabResult, int, error) {
	var out []*LabResult
	for _, r := range m.results {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *mockResultRepo) PreviousValidated(_ context.Context, patientID uuid.UUID, code string, before time.Time) (*LabResultParameter, error) {
	var (
		best   *LabResultParameter
		bestAt time.Time
	)
	for _, r := range m.results {
		if r.PatientID != patientID || !r.EnteredAt.Before(before) {
			continue
		}
		if r.Status != StatusValidated && r.Status != StatusFinal {
			continue
		}
		for _, p := range m.params[r.ID] {
			if p.Code == code && p.ValueNumeric != nil && r.EnteredAt.After(bestAt) {
				best = p
				bestAt = r.EnteredAt
			}
		}
	}
	return best, nil
}

type mockValidationRepo struct {
	rows map[uuid.UUID][]*ResultValidation
}

func newMockValidationRepo() *mockValidationRepo {
	return &mockValidationRepo{rows: make(map[uuid.UUID][]*ResultValidation)}
}

func (m *mockValidationRepo) Create(_ context.Context, v *ResultValidation) error {
	for _, existing := range m.rows[v.ResultID] {
		if existing.Step == v.Step && existing.Decision == DecisionApproved {
			return &ConflictError{ResultID: v.ResultID.String(), Step: v.Step}
		}
	}
	v.ID = uuid.New()
	v.CreatedAt = time.Now()
	clone := *v
	m.rows[v.ResultID] = append(m.rows[v.ResultID], &clone)
	return nil
}

func (m *mockValidationRepo) ListByResult(_ context.Context, resultID uuid.UUID) ([]*ResultValidation, error) {
	return m.rows[resultID], nil
}

type mockSpecimenRepo struct {
	specs map[uuid.UUID]*specimen.Specimen
}

func newMockSpecimenRepo() *mockSpecimenRepo {
	return &mockSpecimenRepo{specs: make(map[uuid.UUID]*specimen.Specimen)}
}

func (m *mockSpecimenRepo) Create(_ context.Context, sp *specimen.Specimen) error {
	sp.ID = uuid.New()
	m.specs[sp.ID] = sp
	return nil
}

func (m *mockSpecimenRepo) GetByID(_ context.Context, id uuid.UUID) (*specimen.Specimen, error) {
	sp, ok := m.specs[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return sp, nil
}

func (m *mockSpecimenRepo) GetByBarcode(_ context.Context, barcode string) (*specimen.Specimen, error) {
	return nil, fmt.Errorf("not found")
}

func (m *mockSpecimenRepo) GetBySpecimenNumber(_ context.Context, n string) (*specimen.Specimen, error) {
	return nil, fmt.Errorf("not found")
}

func (m *mockSpecimenRepo) Update(_ context.Context, sp *specimen.Specimen) error {
	m.specs[sp.ID] = sp
	return nil
}

func (m *mockSpecimenRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*specimen.Specimen, int, error) {
	return nil, 0, nil
}

func (m *mockSpecimenRepo) ListByQualityStatus(_ context.Context, status string, limit, offset int) ([]*specimen.Specimen, int, error) {
	return nil, 0, nil
}

type mockItemRepo struct {
	items map[uuid.UUID]*orders.LabOrderItem
}

func (m *mockItemRepo) GetByID(_ context.Context, id uuid.UUID) (*orders.LabOrderItem, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return it, nil
}

func (m *mockItemRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*orders.LabOrderItem, error) {
	return nil, nil
}

func (m *mockItemRepo) GetBySpecimen(_ context.Context, specimenID uuid.UUID) (*orders.LabOrderItem, error) {
	return nil, fmt.Errorf("not found")
}

type mockOrderRepo struct {
	orders map[uuid.UUID]*orders.LabOrder
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*orders.LabOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return o, nil
}

func (m *mockOrderRepo) GetByOrderNumber(_ context.Context, n string) (*orders.LabOrder, error) {
	return nil, fmt.Errorf("not found")
}

func (m *mockOrderRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*orders.LabOrder, int, error) {
	return nil, 0, nil
}

type mockCatalogRepo struct {
	params map[uuid.UUID][]*orders.LabTestParameter
}

func (m *mockCatalogRepo) GetByID(_ context.Context, id uuid.UUID) (*orders.LabTestParameter, error) {
	for _, list := range m.params {
		for _, p := range list {
			if p.ID == id {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockCatalogRepo) ListByTest(_ context.Context, testID uuid.UUID) ([]*orders.LabTestParameter, error) {
	return m.params[testID], nil
}

type mockAlertRaiser struct {
	raised []CriticalFinding
	fail   error
}

func (m *mockAlertRaiser) Raise(_ context.Context, f CriticalFinding) error {
	if m.fail != nil {
		return m.fail
	}
	m.raised = append(m.raised, f)
	return nil
}

// -- Fixture --

type fixture struct {
	svc       *Service
	results   *mockResultRepo
	vals      *mockValidationRepo
	specs     *mockSpecimenRepo
	alerts    *mockAlertRaiser
	orderItem *orders.LabOrderItem
	specimen  *specimen.Specimen
	wbc       *orders.LabTestParameter
	rbc       *orders.LabTestParameter
	userID    uuid.UUID
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	patientID := uuid.New()
	testID := uuid.New()
	orderID := uuid.New()

	wbc := &orders.LabTestParameter{
		ID: uuid.New(), TestID: testID, Code: "WBC", Name: "White Blood Cell Count", Unit: strPtr("10^9/L"),
		ReferenceLow: f(4.0), ReferenceHigh: f(10.0),
		CriticalLow: f(1.5), CriticalHigh: f(15.0),
		PanicLow: f(0.5), PanicHigh: f(25.0),
		DeltaCheckPct: f(50.0),
		Mandatory:     true, DisplayOrder: 1,
	}
	rbc := &orders.LabTestParameter{
		ID: uuid.New(), TestID: testID, Code: "RBC", Name: "Red Blood Cell Count", Unit: strPtr("10^12/L"),
		ReferenceLow: f(4.2), ReferenceHigh: f(6.1),
		Mandatory: true, DisplayOrder: 2,
	}

	item := &orders.LabOrderItem{
		ID: uuid.New(), OrderID: orderID, TestID: testID,
		TestCode: "CBC", TestName: "Complete Blood Count",
	}
	order := &orders.LabOrder{
		ID: orderID, OrderNumber: "ORD-1", PatientID: patientID,
		Priority: orders.PriorityRoutine, Status: orders.OrderStatusActive,
		OrderedBy: uuid.New(), OrderedAt: time.Now(),
	}

	sp := &specimen.Specimen{
		SpecimenNumber: "SPEC-1", Barcode: "BC-1",
		OrderItemID: item.ID, PatientID: patientID, Type: "blood",
		QualityStatus:          specimen.QualityAcceptable,
		VolumeAdequate:         boolPtr(true),
		ContainerAppropriate:   boolPtr(true),
		LabelingCorrect:        boolPtr(true),
		TemperatureAppropriate: boolPtr(true),
		Hemolyzed:              boolPtr(false),
		Lipemic:                boolPtr(false),
		Icteric:                boolPtr(false),
	}

	resultRepo := newMockResultRepo()
	valRepo := newMockValidationRepo()
	specRepo := newMockSpecimenRepo()
	if err := specRepo.Create(context.Background(), sp); err != nil {
		t.Fatalf("seed specimen: %v", err)
	}
	alerts := &mockAlertRaiser{}

	svc := NewService(
		nil,
		resultRepo,
		valRepo,
		specRepo,
		&mockItemRepo{items: map[uuid.UUID]*orders.LabOrderItem{item.ID: item}},
		&mockOrderRepo{orders: map[uuid.UUID]*orders.LabOrder{order.ID: order}},
		&mockCatalogRepo{params: map[uuid.UUID][]*orders.LabTestParameter{testID: {wbc, rbc}}},
		alerts,
	)

	return &fixture{
		svc: svc, results: resultRepo, vals: valRepo, specs: specRepo, alerts: alerts,
		orderItem: item, specimen: sp, wbc: wbc, rbc: rbc, userID: uuid.New(),
	}
}

func (fx *fixture) enter(t *testing.T, entries ...ParameterEntry) *LabResult {
	t.Helper()
	result, _, err := fx.svc.EnterResult(context.Background(), EntryInput{
		OrderItemID: fx.orderItem.ID,
		SpecimenID:  fx.specimen.ID,
		EntryMethod: EntryManual,
		EnteredBy:   fx.userID,
		Parameters:  entries,
	})
	if err != nil {
		t.Fatalf("EnterResult failed: %v", err)
	}
	return result
}

func (fx *fixture) approve(t *testing.T, resultID uuid.UUID, step int) *LabResult {
	t.Helper()
	r, err := fx.svc.Validate(context.Background(), resultID, ValidationInput{
		Step: step, Decision: DecisionApproved, ValidatedBy: fx.userID,
	})
	if err != nil {
		t.Fatalf("Validate step %d failed: %v", step, err)
	}
	return r
}

func (fx *fixture) finalizeNormal(t *testing.T) *LabResult {
	t.Helper()
	r := fx.enter(t,
		ParameterEntry{ParameterID: fx.wbc.ID, ValueNumeric: f(7.0)},
		ParameterEntry{ParameterID: fx.rbc.ID, ValueNumeric: f(5.0)},
	)
	fx.approve(t, r.ID, 1)
	return fx.approve(t, r.ID, 2)
}

// -- Entry tests --

func TestEnterResult_ClassifiesAndStores(t *testing.T) {
	fx := newFixture(t)
	result, params, err := fx.svc.EnterResult(context.Background(), EntryInput{
		OrderItemID: fx.orderItem.ID,
		SpecimenID:  fx.specimen.ID,
		EntryMethod: EntryManual,
		EnteredBy:   fx.userID,
		Parameters: []ParameterEntry{
			{ParameterID: fx.wbc.ID, ValueNumeric: f(2.0)},
			{ParameterID: fx.rbc.ID, ValueNumeric: f(5.0)},
		},
	})
	if err != nil {
		t.Fatalf("EnterResult failed: %v", err)
	}
	if result.Status != StatusEntered {
		t.Errorf("expected entered status, got %s", result.Status)
	}
	if !result.HasAbnormal {
		t.Error("expected abnormal flag: WBC 2.0 is below reference")
	}
	byCode := make(map[string]*LabResultParameter)
	for _, p := range params {
		byCode[p.Code] = p
	}
	if flag := byCode["WBC"].InterpretationFlag; flag == nil || *flag != FlagLow {
		t.Errorf("expected WBC low, got %v", flag)
	}
	if flag := byCode["RBC"].InterpretationFlag; flag == nil || *flag != FlagNormal {
		t.Errorf("expected RBC normal, got %v", flag)
	}
	if byCode["WBC"].ReferenceLow == nil || *byCode["WBC"].ReferenceLow != 4.0 {
		t.Error("expected thresholds copied onto the parameter row")
	}
}

func TestEnterResult_RejectedSpecimenGate(t *testing.T) {
	fx := newFixture(t)
	fx.specimen.QualityStatus = specimen.QualityRejected

	_, _, err := fx.svc.EnterResult(context.Background(), EntryInput{
		OrderItemID: fx.orderItem.ID,
		SpecimenID:  fx.specimen.ID,
		EntryMethod: EntryManual,
		EnteredBy:   fx.userID,
		Parameters:  []ParameterEntry{{ParameterID: fx.wbc.ID, ValueNumeric: f(7.0)}},
	})
	var gateErr *SpecimenGateFailure
	if !errors.As(err, &gateErr) {
		t.Fatalf("expected SpecimenGateFailure, got %v", err)
	}
	if len(fx.results.results) != 0 {
		t.Error("no result row may be created on gate failure")
	}
}

func TestEnterResult_CompromisedSpecimenNeedsExplicitAccept(t *testing.T) {
	fx := newFixture(t)
	fx.specimen.QualityStatus = specimen.QualityCompromised
	fx.specimen.Hemolyzed = boolPtr(true)

	input := EntryInput{
		OrderItemID: fx.orderItem.ID,
		SpecimenID:  fx.specimen.ID,
		EntryMethod: EntryManual,
		EnteredBy:   fx.userID,
		Parameters:  []ParameterEntry{{ParameterID: fx.wbc.ID, ValueNumeric: f(7.0)}},
	}
	var gateErr *SpecimenGateFailure
	if _, _, err := fx.svc.EnterResult(context.Background(), input); !errors.As(err, &gateErr) {
		t.Fatalf("expected SpecimenGateFailure without explicit accept, got %v", err)
	}

	input.AcceptDespiteCompromise = true
	result, _, err := fx.svc.EnterResult(context.Background(), input)
	if err != nil {
		t.Fatalf("EnterResult with accept failed: %v", err)
	}
	if !result.AcceptedDespiteCompromise {
		t.Error("expected accepted_despite_compromise to be recorded")
	}
}

func TestEnterResult_PendingSpecimenGate(t *testing.T) {
	fx := newFixture(t)
	fx.specimen.QualityStatus = specimen.QualityPending

	_, _, err := fx.svc.EnterResult(context.Background(), EntryInput{
		OrderItemID: fx.orderItem.ID,
		SpecimenID:  fx.specimen.ID,
		EntryMethod: EntryManual,
		EnteredBy:   fx.userID,
		Parameters:  []ParameterEntry{{ParameterID: fx.wbc.ID, ValueNumeric: f(7.0)}},
	})
	var gateErr *SpecimenGateFailure
	if !errors.As(err, &gateErr) {
		t.Fatalf("expected SpecimenGateFailure for unchecked specimen, got %v", err)
	}
}

func TestEnterResult_DeltaAgainstValidatedPrior(t *testing.T) {
	fx := newFixture(t)

	// First cycle: enter and fully validate WBC 6.0.
	first := fx.enter(t,
		ParameterEntry{ParameterID: fx.wbc.ID, ValueNumeric: f(6.0)},
		ParameterEntry{ParameterID: fx.rbc.ID, ValueNumeric: f(5.0)},
	)
	fx.approve(t, first.ID, 1)
	fx.approve(t, first.ID, 2)

	// Second cycle: 12.0 is a 100% jump, past the 50% threshold.
	_, params, err := fx.svc.EnterResult(context.Background(), EntryInput{
		OrderItemID: fx.orderItem.ID,
		SpecimenID:  fx.specimen.ID,
		EntryMethod: EntryManual,
		EnteredBy:   fx.userID,
		Parameters: []ParameterEntry{
			{ParameterID: fx.wbc.ID, ValueNumeric: f(12.0)},
			{ParameterID: fx.rbc.ID, ValueNumeric: f(5.0)},
		},
	})
	if err != nil {
		t.Fatalf("EnterResult failed: %v", err)
	}
	var wbcRow *LabResultParameter
	for _, p := range params {
		if p.Code == "WBC" {
			wbcRow = p
		}
	}
	if !wbcRow.DeltaFlagged {
		t.Error("expected delta flag against validated prior value")
	}
	if wbcRow.PreviousValue == nil || *wbcRow.PreviousValue != 6.0 {
		t.Errorf("expected previous value 6.0, got %v", wbcRow.PreviousValue)
	}
	if wbcRow.DeltaPct == nil || *wbcRow.DeltaPct != 100.0 {
		t.Errorf("expected pct delta 100, got %v", wbcRow.DeltaPct)
	}
}

func TestEnterResult_UnvalidatedPriorIsIgnored(t *testing.T) {
	fx := newFixture(t)

	// Entered but never validated: must not serve as delta baseline.
	fx.enter(t,
		ParameterEntry{ParameterID: fx.wbc.ID, ValueNumeric: f(6.0)},
		ParameterEntry{ParameterID: fx.rbc.ID, ValueNumeric: f(5.0)},
	)

	_, params, err := fx.svc.EnterResult(context.Background(), EntryInput{
		OrderItemID: fx.orderItem.ID,
		SpecimenID:  fx.specimen.ID,
		EntryMethod: EntryManual,
		EnteredBy:   fx.userID,
		Parameters:  []ParameterEntry{{ParameterID: fx.wbc.ID, ValueNumeric: f(12.0)}},
	})
	if err != nil {
		t.Fatalf("EnterResult failed: %v", err)
	}
	for _, p := range params {
		if p.Code == "WBC" && (p.DeltaFlagged || p.PreviousValue != nil) {
			t.Error("unvalidated prior result must not be used as a delta baseline")
		}
	}
}

// -- Validation workflow tests --

func TestValidate_LevelOrdering(t *testing.T) {
	fx := newFixture(t)
	r := fx.enter(t,
		ParameterEntry{ParameterID: fx.wbc.ID, ValueNumeric: f(7.0)},
		ParameterEntry{ParameterID: fx.rbc.ID, ValueNumeric: f(5.0)},
	)

	_, err := fx.svc.Validate(context.Background(), r.ID, ValidationInput{
		Step: 2, Decision: DecisionApproved, ValidatedBy: fx.userID,
	})
	var orderErr *ValidationOrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("expected ValidationOrderError, got %v", err)
	}
	if orderErr.RequiredLevel != 1 || orderErr.AttemptedLevel != 2 {
		t.Errorf("unexpected error detail: %+v", orderErr)
	}
}

func TestValidate_DuplicateStepConflicts(t *testing.T) {
	fx := newFixture(t)
	r := fx.enter(t,
		ParameterEntry{ParameterID: fx.wbc.ID, ValueNumeric: f(7.0)},
		ParameterEntry{ParameterID: fx.rbc.ID, ValueNumeric: f(5.0)},
	)
	fx.approve(t, r.ID, 1)

	_, err := fx.svc.Validate(context.Background(), r.ID, ValidationInput{
		Step: 1, Decision: DecisionApproved, ValidatedBy: uuid.New(),
	})
	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected ConflictError for duplicate approval, got %v", err)
	}
}

func TestValidate_LastLevelFinalizes(t *testing.T) {
	fx := newFixture(t)
	final := fx.finalizeNormal(t)
	if final.Status != StatusFinal {
		t.Fatalf("expected final, got %s", final.Status)
	}
	if final.FinalizedAt == nil || final.CompletedAt == nil {
		t.Error("expected finalization timestamps")
	}
	if !final.IsFinal() || !final.CanBeAmended() {
		t.Error("finalized result must be final and amendable")
	}
}

func TestValidate_NeedsRepeatHaltsProgress(t *testing.T) {
	fx := newFixture(t)
	r := fx.enter(t,
		ParameterEntry{ParameterID: fx.wbc.ID, ValueNumeric: f(7.0)},
		ParameterEntry{ParameterID: fx.rbc.ID, ValueNumeric: f(5.0)},
	)
	updated, err := fx.svc.Validate(context.Background(), r.ID, ValidationInput{
		Step: 1, Decision: DecisionNeedsRepeat, ValidatedBy: fx.userID,
		Issues:           strPtr("suspected clot in sample"),
		CorrectiveAction: strPtr("recollect and rerun"),
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if updated.Status != StatusNeedsRepeat {
		t.Errorf("expected needs_repeat, got %s", updated.Status)
	}
	if updated.StatusReason == nil {
		t.Error("expected an actionable status reason")
	}
	steps, _ := fx.vals.ListByResult(context.Background(), r.ID)
	if len(steps) != 1 || steps[0].Issues == nil || *steps[0].Issues != "suspected clot in sample" {
		t.Error("expected the recorded step to carry the reported issues")
	}
	if steps[0].CorrectiveAction == nil {
		t.Error("expected the recorded step to carry the corrective action")
	}
	if _, err := fx.svc.Validate(context.Background(), r.ID, ValidationInput{
		Step: 2, Decision: DecisionApproved, ValidatedBy: fx.userID,
	}); err == nil {
		t.Error("expected halted result to refuse further validation")
	}
}

func TestValidate_MandatoryFlagGateBlocksFinal(t *testing.T) {
	fx := newFixture(t)
	// RBC is mandatory but never entered: its flag stays null.
	r := fx.enter(t, ParameterEntry{ParameterID: fx.wbc.ID, ValueNumeric: f(7.0)})
	fx.approve(t, r.ID, 1)

	_, err := fx.svc.Validate(context.Background(), r.ID, ValidationInput{
		Step: 2, Decision: DecisionApproved, ValidatedBy: fx.userID,
	})
	var missingErr *MissingDataError
	if !errors.As(err, &missingErr) {
		t.Fatalf("expected MissingDataError, got %v", err)
	}
	if missingErr.ParameterCode != "RBC" {
		t.Errorf("expected RBC named in the error, got %s", missingErr.ParameterCode)
	}

	stored, _ := fx.results.GetByID(context.Background(), r.ID)
	if stored.Status == StatusFinal {
		t.Error("result must not be final after a failed finalization")
	}
}

func TestValidate_CriticalRaisesAlertOnFinalize(t *testing.T) {
	fx := newFixture(t)
	r := fx.enter(t,
		ParameterEntry{ParameterID: fx.wbc.ID, ValueNumeric: f(1.0)},
		ParameterEntry{ParameterID: fx.rbc.ID, ValueNumeric: f(5.0)},
	)
	fx.approve(t, r.ID, 1)
	final := fx.approve(t, r.ID, 2)

	if final.Status != StatusFinal {
		t.Fatalf("expected final, got %s", final.Status)
	}
	if len(fx.alerts.raised) != 1 {
		t.Fatalf("expected one alert, got %d", len(fx.alerts.raised))
	}
	raised := fx.alerts.raised[0]
	if raised.ParameterCode != "WBC" || raised.Severity != "critical" {
		t.Errorf("unexpected finding: %+v", raised)
	}
}

func TestValidate_PanicSeverityWins(t *testing.T) {
	fx := newFixture(t)
	// 0.3 is below the panic low of 0.5.
	r := fx.enter(t,
		ParameterEntry{ParameterID: fx.wbc.ID, ValueNumeric: f(0.3)},
		ParameterEntry{ParameterID: fx.rbc.ID, ValueNumeric: f(5.0)},
	)
	fx.approve(t, r.ID, 1)
	fx.approve(t, r.ID, 2)

	if len(fx.alerts.raised) != 1 || fx.alerts.raised[0].Severity != "panic" {
		t.Fatalf("expected one panic alert, got %+v", fx.alerts.raised)
	}
}

func TestValidate_AlertFailureBlocksFinalization(t *testing.T) {
	fx := newFixture(t)
	fx.alerts.fail = fmt.Errorf("alert store unavailable")
	r := fx.enter(t,
		ParameterEntry{ParameterID: fx.wbc.ID, ValueNumeric: f(1.0)},
		ParameterEntry{ParameterID: fx.rbc.ID, ValueNumeric: f(5.0)},
	)
	fx.approve(t, r.ID, 1)

	if _, err := fx.svc.Validate(context.Background(), r.ID, ValidationInput{
		Step: 2, Decision: DecisionApproved, ValidatedBy: fx.userID,
	}); err == nil {
		t.Fatal("expected finalization to fail when the alert cannot be created")
	}
	stored, _ := fx.results.GetByID(context.Background(), r.ID)
	if stored.Status == StatusFinal {
		t.Error("result must not finalize without its critical value alert")
	}
}

// -- Amendment tests --

func TestAmend_CreatesLinkedRowAndPreservesOriginal(t *testing.T) {
	fx := newFixture(t)
	final := fx.finalizeNormal(t)

	amendment, err := fx.svc.Amend(context.Background(), final.ID, AmendInput{
		AmendedBy: fx.userID,
		Reason:    "transcription error in WBC",
		Parameters: []ParameterEntry{
			{ParameterID: fx.wbc.ID, ValueNumeric: f(8.5)},
		},
	})
	if err != nil {
		t.Fatalf("Amend failed: %v", err)
	}
	if amendment.OriginalResultID == nil || *amendment.OriginalResultID != final.ID {
		t.Error("expected amendment to reference the original")
	}
	if !amendment.IsAmendment() {
		t.Error("expected IsAmendment true")
	}

	original, _ := fx.results.GetByID(context.Background(), final.ID)
	if original.Status != StatusAmended {
		t.Errorf("expected original marked amended, got %s", original.Status)
	}
	if original.AmendedByID == nil || *original.AmendedByID != amendment.ID {
		t.Error("expected original to point at its amendment")
	}
	// Original parameter data stays untouched.
	origParams, _ := fx.results.GetParameters(context.Background(), final.ID)
	for _, p := range origParams {
		if p.Code == "WBC" && (p.ValueNumeric == nil || *p.ValueNumeric != 7.0) {
			t.Errorf("original WBC value changed: %v", p.ValueNumeric)
		}
	}
	newParams, _ := fx.results.GetParameters(context.Background(), amendment.ID)
	for _, p := range newParams {
		if p.Code == "WBC" && (p.ValueNumeric == nil || *p.ValueNumeric != 8.5) {
			t.Errorf("amendment WBC value not applied: %v", p.ValueNumeric)
		}
	}
}

func TestAmend_OnlyFinalResults(t *testing.T) {
	fx := newFixture(t)
	r := fx.enter(t,
		ParameterEntry{ParameterID: fx.wbc.ID, ValueNumeric: f(7.0)},
		ParameterEntry{ParameterID: fx.rbc.ID, ValueNumeric: f(5.0)},
	)
	if _, err := fx.svc.Amend(context.Background(), r.ID, AmendInput{
		AmendedBy:  fx.userID,
		Reason:     "should fail",
		Parameters: []ParameterEntry{{ParameterID: fx.wbc.ID, ValueNumeric: f(8.0)}},
	}); err == nil {
		t.Error("expected error amending a non-final result")
	}
}

func TestAmend_Twice(t *testing.T) {
	fx := newFixture(t)
	final := fx.finalizeNormal(t)
	if _, err := fx.svc.Amend(context.Background(), final.ID, AmendInput{
		AmendedBy:  fx.userID,
		Reason:     "first",
		Parameters: []ParameterEntry{{ParameterID: fx.wbc.ID, ValueNumeric: f(8.0)}},
	}); err != nil {
		t.Fatalf("first amendment failed: %v", err)
	}
	if _, err := fx.svc.Amend(context.Background(), final.ID, AmendInput{
		AmendedBy:  fx.userID,
		Reason:     "second",
		Parameters: []ParameterEntry{{ParameterID: fx.wbc.ID, ValueNumeric: f(9.0)}},
	}); err == nil {
		t.Error("expected error amending a superseded result")
	}
}

func TestAmend_CriticalCorrectionRaisesAlert(t *testing.T) {
	fx := newFixture(t)
	final := fx.finalizeNormal(t)

	if _, err := fx.svc.Amend(context.Background(), final.ID, AmendInput{
		AmendedBy:  fx.userID,
		Reason:     "analyzer misread; true value is critical",
		Parameters: []ParameterEntry{{ParameterID: fx.wbc.ID, ValueNumeric: f(1.0)}},
	}); err != nil {
		t.Fatalf("Amend failed: %v", err)
	}
	if len(fx.alerts.raised) != 1 || fx.alerts.raised[0].ParameterCode != "WBC" {
		t.Fatalf("expected alert for corrected critical value, got %+v", fx.alerts.raised)
	}
}

// -- Concurrency tests --

func TestUpdate_VersionConflict(t *testing.T) {
	fx := newFixture(t)
	r := fx.enter(t,
		ParameterEntry{ParameterID: fx.wbc.ID, ValueNumeric: f(7.0)},
		ParameterEntry{ParameterID: fx.rbc.ID, ValueNumeric: f(5.0)},
	)

	stale, _ := fx.results.GetByID(context.Background(), r.ID)
	fx.approve(t, r.ID, 1)

	err := fx.results.Update(context.Background(), stale)
	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Errorf("expected ConflictError on stale write, got %v", err)
	}
}

// -- Projection tests --

func TestListBillable(t *testing.T) {
	fx := newFixture(t)
	final := fx.finalizeNormal(t)

	billable, total, err := fx.svc.ListBillable(context.Background(), 20, 0)
	if err != nil {
		t.Fatalf("ListBillable failed: %v", err)
	}
	if total != 1 || len(billable) != 1 {
		t.Fatalf("expected one billable result, got %d", len(billable))
	}
	if billable[0].TestCode != "CBC" || billable[0].ResultID != final.ID {
		t.Errorf("unexpected billable row: %+v", billable[0])
	}
}

func TestGetResult_Detail(t *testing.T) {
	fx := newFixture(t)
	final := fx.finalizeNormal(t)

	detail, err := fx.svc.GetResult(context.Background(), final.ID)
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if len(detail.Parameters) != 2 {
		t.Errorf("expected 2 parameter rows, got %d", len(detail.Parameters))
	}
	if len(detail.Validations) != 2 {
		t.Errorf("expected 2 validation rows, got %d", len(detail.Validations))
	}
}
