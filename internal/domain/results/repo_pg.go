package results

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

type resultRepoPG struct{ pool *pgxpool.Pool }

func NewResultRepoPG(pool *pgxpool.Pool) ResultRepository {
	return &resultRepoPG{pool: pool}
}

func (r *resultRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const resultCols = `id, order_id, order_item_id, specimen_id, patient_id, test_id, test_code, test_name,
	status, status_reason, entry_method, entered_by, entered_at,
	accepted_despite_compromise, required_validation_levels, current_validation_level,
	has_abnormal, has_critical, has_panic, delta_flagged,
	finalized_at, finalized_by, completed_at,
	report_generated, report_generated_at,
	original_result_id, amended_by_id, amendment_reason,
	version_id, created_at, updated_at`

func (r *resultRepoPG) scanResult(row pgx.Row) (*LabResult, error) {
	var lr LabResult
	err := row.Scan(&lr.ID, &lr.OrderID, &lr.OrderItemID, &lr.SpecimenID, &lr.PatientID, &lr.TestID, &lr.TestCode, &lr.TestName,
		&lr.Status, &lr.StatusReason, &lr.EntryMethod, &lr.EnteredBy, &lr.EnteredAt,
		&lr.AcceptedDespiteCompromise, &lr.RequiredValidationLevels, &lr.CurrentValidationLevel,
		&lr.HasAbnormal, &lr.HasCritical, &lr.HasPanic, &lr.DeltaFlagged,
		&lr.FinalizedAt, &lr.FinalizedBy, &lr.CompletedAt,
		&lr.ReportGenerated, &lr.ReportGeneratedAt,
		&lr.OriginalResultID, &lr.AmendedByID, &lr.AmendmentReason,
		&lr.VersionID, &lr.CreatedAt, &lr.UpdatedAt)
	return &lr, err
}

const paramCols = `id, result_id, parameter_id, code, name, unit,
	value_numeric, value_text,
	reference_low, reference_high, critical_low, critical_high,
	panic_low, panic_high, delta_check_pct, delta_check_abs,
	interpretation_flag, abnormal, critical, panic_value, unclassified,
	previous_value, previous_result_id, delta_pct, delta_abs, delta_flagged,
	mandatory, display_order, created_at`

func (r *resultRepoPG) scanParam(row pgx.Row) (*LabResultParameter, error) {
	var p LabResultParameter
	err := row.Scan(&p.ID, &p.ResultID, &p.ParameterID, &p.Code, &p.Name, &p.Unit,
		&p.ValueNumeric, &p.ValueText,
		&p.ReferenceLow, &p.ReferenceHigh, &p.CriticalLow, &p.CriticalHigh,
		&p.PanicLow, &p.PanicHigh, &p.DeltaCheckPct, &p.DeltaCheckAbs,
		&p.InterpretationFlag, &p.Abnormal, &p.Critical, &p.PanicValue, &p.Unclassified,
		&p.PreviousValue, &p.PreviousResultID, &p.DeltaPct, &p.DeltaAbs, &p.DeltaFlagged,
		&p.Mandatory, &p.DisplayOrder, &p.CreatedAt)
	return &p, err
}

func (r *resultRepoPG) Create(ctx context.Context, lr *LabResult, params []*LabResultParameter) error {
	lr.ID = uuid.New()
	lr.VersionID = 1
	c := r.conn(ctx)
	_, err := c.Exec(ctx, `
		INSERT INTO lab_result (id, order_id, order_item_id, specimen_id, patient_id, test_id, test_code, test_name,
			status, status_reason, entry_method, entered_by, entered_at,
			accepted_despite_compromise, required_validation_levels, current_validation_level,
			has_abnormal, has_critical, has_panic, delta_flagged,
			original_result_id, amendment_reason, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		lr.ID, lr.OrderID, lr.OrderItemID, lr.SpecimenID, lr.PatientID, lr.TestID, lr.TestCode, lr.TestName,
		lr.Status, lr.StatusReason, lr.EntryMethod, lr.EnteredBy, lr.EnteredAt,
		lr.AcceptedDespiteCompromise, lr.RequiredValidationLevels, lr.CurrentValidationLevel,
		lr.HasAbnormal, lr.HasCritical, lr.HasPanic, lr.DeltaFlagged,
		lr.OriginalResultID, lr.AmendmentReason, lr.VersionID)
	if err != nil {
		return err
	}
	for _, p := range params {
		p.ID = uuid.New()
		p.ResultID = lr.ID
		_, err := c.Exec(ctx, `
			INSERT INTO lab_result_parameter (id, result_id, parameter_id, code, name, unit,
				value_numeric, value_text,
				reference_low, reference_high, critical_low, critical_high,
				panic_low, panic_high, delta_check_pct, delta_check_abs,
				interpretation_flag, abnormal, critical, panic_value, unclassified,
				previous_value, previous_result_id, delta_pct, delta_abs, delta_flagged,
				mandatory, display_order)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)`,
			p.ID, p.ResultID, p.ParameterID, p.Code, p.Name, p.Unit,
			p.ValueNumeric, p.ValueText,
			p.ReferenceLow, p.ReferenceHigh, p.CriticalLow, p.CriticalHigh,
			p.PanicLow, p.PanicHigh, p.DeltaCheckPct, p.DeltaCheckAbs,
			p.InterpretationFlag, p.Abnormal, p.Critical, p.PanicValue, p.Unclassified,
			p.PreviousValue, p.PreviousResultID, p.DeltaPct, p.DeltaAbs, p.DeltaFlagged,
			p.Mandatory, p.DisplayOrder)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *resultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	return r.scanResult(r.conn(ctx).QueryRow(ctx, `SELECT `+resultCols+` FROM lab_result WHERE id = $1`, id))
}

func (r *resultRepoPG) Update(ctx context.Context, lr *LabResult) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_result SET
			status=$2, status_reason=$3, current_validation_level=$4,
			has_abnormal=$5, has_critical=$6, has_panic=$7, delta_flagged=$8,
			finalized_at=$9, finalized_by=$10, completed_at=$11,
			report_generated=$12, report_generated_at=$13,
			amended_by_id=$14,
			version_id=version_id+1, updated_at=NOW()
		WHERE id = $1 AND version_id = $15`,
		lr.ID,
		lr.Status, lr.StatusReason, lr.CurrentValidationLevel,
		lr.HasAbnormal, lr.HasCritical, lr.HasPanic, lr.DeltaFlagged,
		lr.FinalizedAt, lr.FinalizedBy, lr.CompletedAt,
		lr.ReportGenerated, lr.ReportGeneratedAt,
		lr.AmendedByID,
		lr.VersionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ConflictError{ResultID: lr.ID.String()}
	}
	lr.VersionID++
	return nil
}

func (r *resultRepoPG) GetParameters(ctx context.Context, resultID uuid.UUID) ([]*LabResultParameter, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+paramCols+` FROM lab_result_parameter WHERE result_id = $1 ORDER BY display_order, code`, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var params []*LabResultParameter
	for rows.Next() {
		p, err := r.scanParam(rows)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

func (r *resultRepoPG) ListBySpecimen(ctx context.Context, specimenID uuid.UUID) ([]*LabResult, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+resultCols+` FROM lab_result WHERE specimen_id = $1 ORDER BY entered_at`, specimenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*LabResult
	for rows.Next() {
		lr, err := r.scanResult(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, lr)
	}
	return items, nil
}

func (r *resultRepoPG) LatestByOrderItem(ctx context.Context, orderItemID uuid.UUID) (*LabResult, error) {
	lr, err := r.scanResult(r.conn(ctx).QueryRow(ctx, `
		SELECT `+resultCols+` FROM lab_result
		WHERE order_item_id = $1
		ORDER BY entered_at DESC LIMIT 1`, orderItemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lr, nil
}

func (r *resultRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabResult, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_result WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+resultCols+` FROM lab_result WHERE patient_id = $1 ORDER BY entered_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *resultRepoPG) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*LabResult, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_result WHERE status = $1`, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+resultCols+` FROM lab_result WHERE status = $1 ORDER BY entered_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *resultRepoPG) collect(rows pgx.Rows, total int) ([]*LabResult, int, error) {
	var items []*LabResult
	for rows.Next() {
		lr, err := r.scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, lr)
	}
	return items, total, nil
}

// PreviousValidated excludes amended rows so a superseded value is
// never used as a delta baseline.
func (r *resultRepoPG) PreviousValidated(ctx context.Context, patientID uuid.UUID, code string, before time.Time) (*LabResultParameter, error) {
	p, err := r.scanParam(r.conn(ctx).QueryRow(ctx, `
		SELECT `+prefixed(paramCols, "p.")+`
		FROM lab_result_parameter p
		JOIN lab_result lr ON lr.id = p.result_id
		WHERE lr.patient_id = $1 AND p.code = $2
		  AND lr.status IN ($3, $4)
		  AND lr.entered_at < $5
		  AND p.value_numeric IS NOT NULL
		ORDER BY lr.entered_at DESC
		LIMIT 1`,
		patientID, code, StatusValidated, StatusFinal, before))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func prefixed(cols, prefix string) string {
	parts := strings.Split(cols, ",")
	for i, c := range parts {
		parts[i] = prefix + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}

type validationRepoPG struct{ pool *pgxpool.Pool }

func NewValidationRepoPG(pool *pgxpool.Pool) ValidationRepository {
	return &validationRepoPG{pool: pool}
}

func (r *validationRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const validationCols = `id, result_id, step, level_name, decision, validated_by, validated_at,
	notes, issues, corrective_action, signature, created_at`

// Create relies on the unique (result_id, step) index: the first
// committer wins and the loser gets a ConflictError.
func (r *validationRepoPG) Create(ctx context.Context, v *ResultValidation) error {
	v.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO result_validation (id, result_id, step, level_name, decision, validated_by, validated_at,
			notes, issues, corrective_action, signature)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		v.ID, v.ResultID, v.Step, v.LevelName, v.Decision, v.ValidatedBy, v.ValidatedAt,
		v.Notes, v.Issues, v.CorrectiveAction, v.Signature)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &ConflictError{ResultID: v.ResultID.String(), Step: v.Step}
	}
	return err
}

func (r *validationRepoPG) ListByResult(ctx context.Context, resultID uuid.UUID) ([]*ResultValidation, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+validationCols+` FROM result_validation WHERE result_id = $1 ORDER BY step`, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ResultValidation
	for rows.Next() {
		var v ResultValidation
		if err := rows.Scan(&v.ID, &v.ResultID, &v.Step, &v.LevelName, &v.Decision, &v.ValidatedBy, &v.ValidatedAt,
			&v.Notes, &v.Issues, &v.CorrectiveAction, &v.Signature, &v.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &v)
	}
	return items, nil
}
