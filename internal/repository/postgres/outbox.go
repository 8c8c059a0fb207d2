package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/repository"
)

type outboxRepository struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		SELECT id, event_type, payload, status, error, created_at, processed_at
		FROM outbox_events
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	var events []*model.OutboxEvent
	if err := r.db.SelectContext(ctx, &events, query, model.OutboxStatusPending, limit); err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string) error {
	query := `
		UPDATE outbox_events
		SET status = $1, error = $2, processed_at = $3
		WHERE id = $4
	`
	if _, err := r.db.ExecContext(ctx, query, status, errMsg, time.Now(), id); err != nil {
		return fmt.Errorf("failed to update outbox event %s: %w", id, err)
	}
	return nil
}
