package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/repository"
)

type patientRepository struct {
	db *sqlx.DB
}

func NewPatientRepository(db *sqlx.DB) repository.PatientRepository {
	return &patientRepository{db: db}
}

const patientColumns = `patient_id, user_id, first_name, last_name, email, status, archive_status,
	pdf_file_path, notes, email_sent_count, email_sent_at, date_created, date_reminded, date_archived`

func (r *patientRepository) ListActive(ctx context.Context, ownerID uuid.UUID) ([]*model.PatientRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM patients
		WHERE user_id = $1 AND archive_status = $2
		ORDER BY date_created ASC
	`, patientColumns)

	var records []*model.PatientRecord
	if err := r.db.SelectContext(ctx, &records, query, ownerID, model.ArchiveStatusNotArchived); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return records, nil
}

func (r *patientRepository) Insert(ctx context.Context, rec *model.PatientRecord) (*model.PatientRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if rec.DateCreated.IsZero() {
		rec.DateCreated = time.Now()
	}
	if rec.Status == "" {
		rec.Status = model.PatientStatusSent
	}
	if rec.ArchiveStatus == "" {
		rec.ArchiveStatus = model.ArchiveStatusNotArchived
	}

	query := fmt.Sprintf(`
		INSERT INTO patients (user_id, first_name, last_name, email, status, archive_status,
			pdf_file_path, notes, email_sent_count, email_sent_at, date_created, date_reminded, date_archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING %s
	`, patientColumns)

	var stored model.PatientRecord
	err = tx.GetContext(ctx, &stored, query,
		rec.UserID,
		rec.FirstName,
		rec.LastName,
		rec.Email,
		rec.Status,
		rec.ArchiveStatus,
		rec.PDFFilePath,
		rec.Notes,
		rec.EmailSentCount,
		rec.EmailSentAt,
		rec.DateCreated,
		rec.DateReminded,
		rec.DateArchived,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert patient: %w", err)
	}

	if err := queueEvent(ctx, tx, model.EventPatientInsert, &stored); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit insert: %w", err)
	}
	return &stored, nil
}

func (r *patientRepository) Update(ctx context.Context, id int64, ownerID uuid.UUID, upd *model.PatientUpdate) (*model.PatientRecord, error) {
	sets := make([]string, 0, 8)
	args := make([]interface{}, 0, 10)

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.ArchiveStatus != nil {
		add("archive_status", *upd.ArchiveStatus)
	}
	if upd.ClearNotes {
		sets = append(sets, "notes = NULL")
	} else if upd.Notes != nil {
		add("notes", *upd.Notes)
	}
	if upd.EmailSentCount != nil {
		add("email_sent_count", *upd.EmailSentCount)
	}
	if upd.EmailSentAt != nil {
		add("email_sent_at", *upd.EmailSentAt)
	}
	if upd.DateReminded != nil {
		add("date_reminded", *upd.DateReminded)
	}
	if upd.DateArchived != nil {
		add("date_archived", *upd.DateArchived)
	}

	if len(sets) == 0 {
		return nil, fmt.Errorf("empty patient update")
	}

	args = append(args, id)
	idArg := len(args)
	args = append(args, ownerID)
	ownerArg := len(args)

	query := fmt.Sprintf(`
		UPDATE patients SET %s
		WHERE patient_id = $%d AND user_id = $%d
		RETURNING %s
	`, strings.Join(sets, ", "), idArg, ownerArg, patientColumns)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stored model.PatientRecord
	if err := tx.GetContext(ctx, &stored, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update patient %d: %w", id, err)
	}

	if err := queueEvent(ctx, tx, model.EventPatientUpdate, &stored); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return &stored, nil
}

func (r *patientRepository) DeleteArchived(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		DELETE FROM patients
		WHERE user_id = $1 AND archive_status = $2
		RETURNING patient_id
	`
	var ids []int64
	if err := tx.SelectContext(ctx, &ids, query, ownerID, model.ArchiveStatusArchived); err != nil {
		return 0, fmt.Errorf("failed to delete archived patients: %w", err)
	}

	for _, id := range ids {
		event := &model.PatientEvent{Type: model.EventPatientDelete, PatientID: id, OwnerID: ownerID}
		if err := queueRawEvent(ctx, tx, event); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return int64(len(ids)), nil
}

func (r *patientRepository) CountArchived(ctx context.Context, ownerID uuid.UUID, status model.PatientStatus) (int, error) {
	query := `SELECT COUNT(*) FROM patients WHERE user_id = $1 AND archive_status = $2 AND status = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, ownerID, model.ArchiveStatusArchived, status); err != nil {
		return 0, fmt.Errorf("failed to count archived patients: %w", err)
	}
	return count, nil
}

func queueEvent(ctx context.Context, tx *sqlx.Tx, eventType string, rec *model.PatientRecord) error {
	event := &model.PatientEvent{
		Type:      eventType,
		PatientID: rec.PatientID,
		OwnerID:   rec.UserID,
		Record:    rec,
	}
	return queueRawEvent(ctx, tx, event)
}

func queueRawEvent(ctx context.Context, tx *sqlx.Tx, event *model.PatientEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal feed event: %w", err)
	}

	query := `
		INSERT INTO outbox_events (id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = tx.ExecContext(ctx, query, uuid.New(), event.Type, payload, model.OutboxStatusPending, time.Now())
	if err != nil {
		return fmt.Errorf("failed to queue feed event: %w", err)
	}
	return nil
}
