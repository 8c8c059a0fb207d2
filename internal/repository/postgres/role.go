package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/repository"
)

type roleRepository struct {
	db *sqlx.DB
}

func NewRoleRepository(db *sqlx.DB) repository.RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) FirstAdminUserID(ctx context.Context) (uuid.UUID, error) {
	query := `
		SELECT user_id FROM user_roles
		WHERE role = $1
		ORDER BY created_at ASC
		LIMIT 1
	`
	var userID uuid.UUID
	err := r.db.GetContext(ctx, &userID, query, model.RoleAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, repository.ErrNoAdminAccount
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up admin account: %w", err)
	}
	return userID, nil
}

func (r *roleRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.UserRole, error) {
	query := `SELECT id, user_id, role, created_at FROM user_roles WHERE user_id = $1`
	var roles []*model.UserRole
	if err := r.db.SelectContext(ctx, &roles, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

func (r *roleRepository) ListAll(ctx context.Context) ([]*model.UserRole, error) {
	query := `SELECT id, user_id, role, created_at FROM user_roles ORDER BY created_at ASC`
	var roles []*model.UserRole
	if err := r.db.SelectContext(ctx, &roles, query); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

func (r *roleRepository) Assign(ctx context.Context, userID uuid.UUID, role string) error {
	query := `INSERT INTO user_roles (id, user_id, role, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, uuid.New(), userID, role, time.Now()); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

func (r *roleRepository) Remove(ctx context.Context, userID uuid.UUID, role string) error {
	query := `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, role); err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}
	return nil
}
