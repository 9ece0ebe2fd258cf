package alerts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

// ErrVersionConflict is returned when a conditional write loses to a
// concurrent writer. Callers should re-read and retry.
var ErrVersionConflict = errors.New("alert was modified concurrently")

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const alertCols = `id, result_id, parameter_id, parameter_code, patient_id, value, severity,
	acknowledged, acknowledged_by, acknowledged_at, ack_notes,
	resolved, resolved_by, resolved_at, resolution_notes,
	notification_status, notify_target, retry_count,
	version_id, created_at, updated_at`

func (r *repoPG) scanRow(row pgx.Row) (*CriticalValueAlert, error) {
	var a CriticalValueAlert
	err := row.Scan(&a.ID, &a.ResultID, &a.ParameterID, &a.ParameterCode, &a.PatientID, &a.Value, &a.Severity,
		&a.Acknowledged, &a.AcknowledgedBy, &a.AcknowledgedAt, &a.AckNotes,
		&a.Resolved, &a.ResolvedBy, &a.ResolvedAt, &a.ResolutionNotes,
		&a.NotificationStatus, &a.NotifyTarget, &a.RetryCount,
		&a.VersionID, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *CriticalValueAlert) error {
	a.ID = uuid.New()
	a.VersionID = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO critical_value_alert (id, result_id, parameter_id, parameter_code, patient_id,
			value, severity, notification_status, notify_target, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.ResultID, a.ParameterID, a.ParameterCode, a.PatientID,
		a.Value, a.Severity, a.NotificationStatus, a.NotifyTarget, a.VersionID)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*CriticalValueAlert, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+alertCols+` FROM critical_value_alert WHERE id = $1`, id))
}

func (r *repoPG) GetOpenByResultParameter(ctx context.Context, resultID, parameterID uuid.UUID) (*CriticalValueAlert, error) {
	a, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `
		SELECT `+alertCols+` FROM critical_value_alert
		WHERE result_id = $1 AND parameter_id = $2 AND resolved = FALSE`,
		resultID, parameterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repoPG) Update(ctx context.Context, a *CriticalValueAlert) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE critical_value_alert SET
			acknowledged=$2, acknowledged_by=$3, acknowledged_at=$4, ack_notes=$5,
			resolved=$6, resolved_by=$7, resolved_at=$8, resolution_notes=$9,
			notification_status=$10, notify_target=$11, retry_count=$12,
			version_id=version_id+1, updated_at=NOW()
		WHERE id = $1 AND version_id = $13`,
		a.ID,
		a.Acknowledged, a.AcknowledgedBy, a.AcknowledgedAt, a.AckNotes,
		a.Resolved, a.ResolvedBy, a.ResolvedAt, a.ResolutionNotes,
		a.NotificationStatus, a.NotifyTarget, a.RetryCount,
		a.VersionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	a.VersionID++
	return nil
}

func (r *repoPG) ListOpen(ctx context.Context, limit, offset int) ([]*CriticalValueAlert, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM critical_value_alert WHERE resolved = FALSE`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+alertCols+` FROM critical_value_alert
		WHERE resolved = FALSE
		ORDER BY severity DESC, created_at ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*CriticalValueAlert, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM critical_value_alert WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+alertCols+` FROM critical_value_alert WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) ListByNotificationStatus(ctx context.Context, status string, limit, offset int) ([]*CriticalValueAlert, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM critical_value_alert WHERE notification_status = $1`, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+alertCols+` FROM critical_value_alert WHERE notification_status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) collect(rows pgx.Rows, total int) ([]*CriticalValueAlert, int, error) {
	var items []*CriticalValueAlert
	for rows.Next() {
		a, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}
