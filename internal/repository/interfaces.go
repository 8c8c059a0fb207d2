package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/praxisboard/board-api/internal/model"
)

// ErrNoAdminAccount is returned when no account holds the admin role, which
// leaves intake records with no owner to attribute to.
var ErrNoAdminAccount = errors.New("no admin account found")

// PatientRepository is the record-store surface for follow-up cards. Every
// successful mutation also queues the matching feed event in the same
// transaction.
type PatientRepository interface {
	// ListActive returns the owner's non-archived records ordered by
	// creation date ascending.
	ListActive(ctx context.Context, ownerID uuid.UUID) ([]*model.PatientRecord, error)
	// Insert stores a new record and returns it with the assigned id.
	Insert(ctx context.Context, rec *model.PatientRecord) (*model.PatientRecord, error)
	// Update applies a partial update scoped by id and owner and returns
	// the resulting row.
	Update(ctx context.Context, id int64, ownerID uuid.UUID, upd *model.PatientUpdate) (*model.PatientRecord, error)
	// DeleteArchived removes the owner's archived rows and returns how
	// many were deleted.
	DeleteArchived(ctx context.Context, ownerID uuid.UUID) (int64, error)
	// CountArchived counts the owner's archived rows with the given
	// terminal status.
	CountArchived(ctx context.Context, ownerID uuid.UUID, status model.PatientStatus) (int, error)
}

type ConfigurationRepository interface {
	// Get returns the singleton row, or nil without error when none
	// exists yet.
	Get(ctx context.Context) (*model.SystemConfiguration, error)
	Insert(ctx context.Context, upd *model.ConfigurationUpdate) (*model.SystemConfiguration, error)
	Update(ctx context.Context, id uuid.UUID, upd *model.ConfigurationUpdate) (*model.SystemConfiguration, error)
}

type RoleRepository interface {
	// FirstAdminUserID resolves the account the intake endpoint attributes
	// new records to. Returns an error when no admin role row exists.
	FirstAdminUserID(ctx context.Context) (uuid.UUID, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.UserRole, error)
	ListAll(ctx context.Context) ([]*model.UserRole, error)
	Assign(ctx context.Context, userID uuid.UUID, role string) error
	Remove(ctx context.Context, userID uuid.UUID, role string) error
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context) ([]*model.User, error)
}

// OutboxRepository is the poller's view of the feed queue. Queueing happens
// inside the patient repository's mutation transactions, not through this
// interface.
type OutboxRepository interface {
	GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string) error
}
