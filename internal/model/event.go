package model

import (
	"time"

	"github.com/google/uuid"
)

// Patient change-feed event types, written to the outbox alongside the row
// mutation and replayed to subscribers via the broker.
const (
	EventPatientInsert = "PATIENT_INSERT"
	EventPatientUpdate = "PATIENT_UPDATE"
	EventPatientDelete = "PATIENT_DELETE"
)

// PatientEvent is the wire shape of one row-level change. Delete events carry
// only the ids; insert/update carry the full row, which subscribers apply
// wholesale (last write per id wins).
type PatientEvent struct {
	Type      string         `json:"type"`
	PatientID int64          `json:"patient_id"`
	OwnerID   uuid.UUID      `json:"owner_id"`
	Record    *PatientRecord `json:"record,omitempty"`
}

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxEvent is one pending feed publication, persisted in the same
// transaction as the row change it describes.
type OutboxEvent struct {
	ID          uuid.UUID    `db:"id" json:"id"`
	EventType   string       `db:"event_type" json:"event_type"`
	Payload     []byte       `db:"payload" json:"payload"`
	Status      OutboxStatus `db:"status" json:"status"`
	Error       *string      `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
}
