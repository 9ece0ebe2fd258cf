package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

// =========== LabOrder Repository ===========

type labOrderRepoPG struct{ pool *pgxpool.Pool }

func NewLabOrderRepoPG(pool *pgxpool.Pool) LabOrderRepository {
	return &labOrderRepoPG{pool: pool}
}

func (r *labOrderRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const orderCols = `id, order_number, patient_id, priority, status, ordered_by,
	ordered_at, expected_tat_minutes, created_at, updated_at`

func (r *labOrderRepoPG) scanOrder(row pgx.Row) (*LabOrder, error) {
	var o LabOrder
	err := row.Scan(&o.ID, &o.OrderNumber, &o.PatientID, &o.Priority, &o.Status, &o.OrderedBy,
		&o.OrderedAt, &o.ExpectedTATMinutes, &o.CreatedAt, &o.UpdatedAt)
	return &o, err
}

func (r *labOrderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabOrder, error) {
	return r.scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM lab_order WHERE id = $1`, id))
}

func (r *labOrderRepoPG) GetByOrderNumber(ctx context.Context, orderNumber string) (*LabOrder, error) {
	return r.scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM lab_order WHERE order_number = $1`, orderNumber))
}

func (r *labOrderRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabOrder, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_order WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+orderCols+` FROM lab_order WHERE patient_id = $1 ORDER BY ordered_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*LabOrder
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, nil
}

// =========== LabOrderItem Repository ===========

type labOrderItemRepoPG struct{ pool *pgxpool.Pool }

func NewLabOrderItemRepoPG(pool *pgxpool.Pool) LabOrderItemRepository {
	return &labOrderItemRepoPG{pool: pool}
}

func (r *labOrderItemRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const itemCols = `id, order_id, test_id, test_code, test_name, specimen_id, created_at`

func (r *labOrderItemRepoPG) scanItem(row pgx.Row) (*LabOrderItem, error) {
	var it LabOrderItem
	err := row.Scan(&it.ID, &it.OrderID, &it.TestID, &it.TestCode, &it.TestName, &it.SpecimenID, &it.CreatedAt)
	return &it, err
}

func (r *labOrderItemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabOrderItem, error) {
	return r.scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM lab_order_item WHERE id = $1`, id))
}

func (r *labOrderItemRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*LabOrderItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+itemCols+` FROM lab_order_item WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*LabOrderItem
	for rows.Next() {
		it, err := r.scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (r *labOrderItemRepoPG) GetBySpecimen(ctx context.Context, specimenID uuid.UUID) (*LabOrderItem, error) {
	return r.scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM lab_order_item WHERE specimen_id = $1`, specimenID))
}

// =========== LabTestParameter Repository ===========

type labTestParameterRepoPG struct{ pool *pgxpool.Pool }

func NewLabTestParameterRepoPG(pool *pgxpool.Pool) LabTestParameterRepository {
	return &labTestParameterRepoPG{pool: pool}
}

func (r *labTestParameterRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const paramCols = `id, test_id, code, name, unit,
	reference_low, reference_high, critical_low, critical_high,
	panic_low, panic_high, delta_check_pct, delta_check_abs,
	mandatory, display_order`

func (r *labTestParameterRepoPG) scanParam(row pgx.Row) (*LabTestParameter, error) {
	var p LabTestParameter
	err := row.Scan(&p.ID, &p.TestID, &p.Code, &p.Name, &p.Unit,
		&p.ReferenceLow, &p.ReferenceHigh, &p.CriticalLow, &p.CriticalHigh,
		&p.PanicLow, &p.PanicHigh, &p.DeltaCheckPct, &p.DeltaCheckAbs,
		&p.Mandatory, &p.DisplayOrder)
	return &p, err
}

func (r *labTestParameterRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabTestParameter, error) {
	return r.scanParam(r.conn(ctx).QueryRow(ctx, `SELECT `+paramCols+` FROM lab_test_parameter WHERE id = $1`, id))
}

func (r *labTestParameterRepoPG) ListByTest(ctx context.Context, testID uuid.UUID) ([]*LabTestParameter, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+paramCols+` FROM lab_test_parameter WHERE test_id = $1 ORDER BY display_order, code`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var params []*LabTestParameter
	for rows.Next() {
		p, err := r.scanParam(rows)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}
