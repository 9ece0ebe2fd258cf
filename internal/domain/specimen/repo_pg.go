package specimen

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
var ErrVersionConflict = errors.New("specimen was modified concurrently")

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const specimenCols = `id, specimen_number, barcode, order_item_id, patient_id,
	type, source, volume_ml, container_type,
	collected_at, collected_by, received_at, received_by,
	processing_started_at, processing_completed_at, disposed_at,
	quality_status,
	volume_adequate, container_appropriate, labeling_correct, temperature_appropriate,
	hemolyzed, lipemic, icteric,
	rejection_reason, quality_notes,
	version_id, created_at, updated_at`

func (r *repoPG) scanRow(row pgx.Row) (*Specimen, error) {
	var s Specimen
	err := row.Scan(&s.ID, &s.SpecimenNumber, &s.Barcode, &s.OrderItemID, &s.PatientID,
		&s.Type, &s.Source, &s.VolumeML, &s.ContainerType,
		&s.CollectedAt, &s.CollectedBy, &s.ReceivedAt, &s.ReceivedBy,
		&s.ProcessingStartedAt, &s.ProcessingCompletedAt, &s.DisposedAt,
		&s.QualityStatus,
		&s.VolumeAdequate, &s.ContainerAppropriate, &s.LabelingCorrect, &s.TemperatureAppropriate,
		&s.Hemolyzed, &s.Lipemic, &s.Icteric,
		&s.RejectionReason, &s.QualityNotes,
		&s.VersionID, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *repoPG) Create(ctx context.Context, sp *Specimen) error {
	sp.ID = uuid.New()
	sp.VersionID = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO specimen (id, specimen_number, barcode, order_item_id, patient_id,
			type, source, volume_ml, container_type,
			collected_at, collected_by, quality_status, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		sp.ID, sp.SpecimenNumber, sp.Barcode, sp.OrderItemID, sp.PatientID,
		sp.Type, sp.Source, sp.VolumeML, sp.ContainerType,
		sp.CollectedAt, sp.CollectedBy, sp.QualityStatus, sp.VersionID)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+specimenCols+` FROM specimen WHERE id = $1`, id))
}

func (r *repoPG) GetByBarcode(ctx context.Context, barcode string) (*Specimen, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+specimenCols+` FROM specimen WHERE barcode = $1`, barcode))
}

func (r *repoPG) GetBySpecimenNumber(ctx context.Context, specimenNumber string) (*Specimen, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+specimenCols+` FROM specimen WHERE specimen_number = $1`, specimenNumber))
}

// Update writes the full mutable column set, guarded by the version the
// caller read. The version bump and the guard share one statement so
// concurrent writers cannot interleave.
func (r *repoPG) Update(ctx context.Context, sp *Specimen) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE specimen SET
			received_at=$2, received_by=$3,
			processing_started_at=$4, processing_completed_at=$5, disposed_at=$6,
			quality_status=$7,
			volume_adequate=$8, container_appropriate=$9, labeling_correct=$10,
			temperature_appropriate=$11, hemolyzed=$12, lipemic=$13, icteric=$14,
			rejection_reason=$15, quality_notes=$16,
			version_id=version_id+1, updated_at=NOW()
		WHERE id = $1 AND version_id = $17`,
		sp.ID,
		sp.ReceivedAt, sp.ReceivedBy,
		sp.ProcessingStartedAt, sp.ProcessingCompletedAt, sp.DisposedAt,
		sp.QualityStatus,
		sp.VolumeAdequate, sp.ContainerAppropriate, sp.LabelingCorrect,
		sp.TemperatureAppropriate, sp.Hemolyzed, sp.Lipemic, sp.Icteric,
		sp.RejectionReason, sp.QualityNotes,
		sp.VersionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	sp.VersionID++
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Specimen, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM specimen WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+specimenCols+` FROM specimen WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) ListByQualityStatus(ctx context.Context, status string, limit, offset int) ([]*Specimen, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM specimen WHERE quality_status = $1`, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+specimenCols+` FROM specimen WHERE quality_status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) collect(rows pgx.Rows, total int) ([]*Specimen, int, error) {
	var items []*Specimen
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, nil
}
