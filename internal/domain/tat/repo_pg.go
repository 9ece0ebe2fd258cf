package tat

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const tatCols = `id, order_id, order_item_id, test_code, patient_id,
	ordered_at, collected_at, received_at, processing_started_at,
	result_entered_at, validated_at, reported_at,
	collection_minutes, transport_minutes, queue_minutes, analysis_minutes,
	validation_minutes, reporting_minutes, total_tat_minutes,
	expected_tat_minutes, tat_met, variance_minutes, delay_category,
	created_at, updated_at`

func (r *repoPG) scanRow(row pgx.Row) (*TatMonitoring, error) {
	var t TatMonitoring
	err := row.Scan(&t.ID, &t.OrderID, &t.OrderItemID, &t.TestCode, &t.PatientID,
		&t.OrderedAt, &t.CollectedAt, &t.ReceivedAt, &t.ProcessingStartedAt,
		&t.ResultEnteredAt, &t.ValidatedAt, &t.ReportedAt,
		&t.CollectionMinutes, &t.TransportMinutes, &t.QueueMinutes, &t.AnalysisMinutes,
		&t.ValidationMinutes, &t.ReportingMinutes, &t.TotalTATMinutes,
		&t.ExpectedTATMinutes, &t.TatMet, &t.VarianceMinutes, &t.DelayCategory,
		&t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *repoPG) Upsert(ctx context.Context, t *TatMonitoring) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO tat_monitoring (id, order_id, order_item_id, test_code, patient_id,
			ordered_at, collected_at, received_at, processing_started_at,
			result_entered_at, validated_at, reported_at,
			collection_minutes, transport_minutes, queue_minutes, analysis_minutes,
			validation_minutes, reporting_minutes, total_tat_minutes,
			expected_tat_minutes, tat_met, variance_minutes, delay_category)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		ON CONFLICT (order_item_id) DO UPDATE SET
			ordered_at=EXCLUDED.ordered_at, collected_at=EXCLUDED.collected_at,
			received_at=EXCLUDED.received_at, processing_started_at=EXCLUDED.processing_started_at,
			result_entered_at=EXCLUDED.result_entered_at, validated_at=EXCLUDED.validated_at,
			reported_at=EXCLUDED.reported_at,
			collection_minutes=EXCLUDED.collection_minutes, transport_minutes=EXCLUDED.transport_minutes,
			queue_minutes=EXCLUDED.queue_minutes, analysis_minutes=EXCLUDED.analysis_minutes,
			validation_minutes=EXCLUDED.validation_minutes, reporting_minutes=EXCLUDED.reporting_minutes,
			total_tat_minutes=EXCLUDED.total_tat_minutes,
			expected_tat_minutes=EXCLUDED.expected_tat_minutes, tat_met=EXCLUDED.tat_met,
			variance_minutes=EXCLUDED.variance_minutes, delay_category=EXCLUDED.delay_category,
			updated_at=NOW()`,
		t.ID, t.OrderID, t.OrderItemID, t.TestCode, t.PatientID,
		t.OrderedAt, t.CollectedAt, t.ReceivedAt, t.ProcessingStartedAt,
		t.ResultEnteredAt, t.ValidatedAt, t.ReportedAt,
		t.CollectionMinutes, t.TransportMinutes, t.QueueMinutes, t.AnalysisMinutes,
		t.ValidationMinutes, t.ReportingMinutes, t.TotalTATMinutes,
		t.ExpectedTATMinutes, t.TatMet, t.VarianceMinutes, t.DelayCategory)
	return err
}

func (r *repoPG) GetByOrderItem(ctx context.Context, orderItemID uuid.UUID) (*TatMonitoring, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+tatCols+` FROM tat_monitoring WHERE order_item_id = $1`, orderItemID))
}

func (r *repoPG) ListBreached(ctx context.Context, limit, offset int) ([]*TatMonitoring, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM tat_monitoring WHERE tat_met = FALSE`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+tatCols+` FROM tat_monitoring
		WHERE tat_met = FALSE
		ORDER BY variance_minutes DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*TatMonitoring, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM tat_monitoring WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+tatCols+` FROM tat_monitoring WHERE patient_id = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) collect(rows pgx.Rows, total int) ([]*TatMonitoring, int, error) {
	var items []*TatMonitoring
	for rows.Next() {
		t, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, nil
}
