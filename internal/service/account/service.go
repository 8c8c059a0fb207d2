package account

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/praxisboard/board-api/internal/email"
	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/repository"
	apperrors "github.com/praxisboard/board-api/pkg/errors"
	"github.com/praxisboard/board-api/pkg/logger"
	"github.com/praxisboard/board-api/pkg/security"
)

// Service manages interactive accounts and their role rows.
type Service struct {
	users  repository.UserRepository
	roles  repository.RoleRepository
	mailer *email.Service
	logger *logger.Logger
}

func NewService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	mailer *email.Service,
	log *logger.Logger,
) *Service {
	return &Service{
		users:  users,
		roles:  roles,
		mailer: mailer,
		logger: log,
	}
}

// Create stores a new account with a hashed password and its initial role
// row. The welcome mail is best-effort; a mail failure does not undo the
// account.
func (s *Service) Create(ctx context.Context, req *model.CreateUserRequest) (*model.User, error) {
	role := req.Role
	if role == "" {
		role = model.RoleUser
	}
	if role != model.RoleAdmin && role != model.RoleUser {
		return nil, apperrors.BadRequest("unknown role", nil)
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, apperrors.Internal("failed to hash password", err)
	}

	user := &model.User{
		ID:           uuid.New(),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.Internal("failed to create account", err)
	}

	if err := s.roles.Assign(ctx, user.ID, role); err != nil {
		return nil, apperrors.Internal("failed to assign role", err)
	}

	if s.mailer != nil {
		if err := s.mailer.SendWelcome(user.Email, user.DisplayName); err != nil {
			s.logger.Error(err, "failed to send welcome mail", "email", user.Email)
		}
	}

	return user, nil
}

// List returns every account with its role strings, ordered by creation.
func (s *Service) List(ctx context.Context) ([]*model.UserWithRoles, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to list accounts", err)
	}

	roleRows, err := s.roles.ListAll(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to list roles", err)
	}

	byUser := make(map[uuid.UUID][]string)
	for _, row := range roleRows {
		byUser[row.UserID] = append(byUser[row.UserID], row.Role)
	}

	out := make([]*model.UserWithRoles, 0, len(users))
	for _, u := range users {
		roles := byUser[u.ID]
		sort.Strings(roles)
		out = append(out, &model.UserWithRoles{User: *u, Roles: roles})
	}
	return out, nil
}

// IsAdmin reports whether the account holds at least one admin role row.
func (s *Service) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	rows, err := s.roles.ListForUser(ctx, userID)
	if err != nil {
		return false, apperrors.Internal("failed to list roles", err)
	}
	for _, row := range rows {
		if row.Role == model.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

// AssignRole adds a role row; duplicates are harmless.
func (s *Service) AssignRole(ctx context.Context, userID uuid.UUID, role string) error {
	if role != model.RoleAdmin && role != model.RoleUser {
		return apperrors.BadRequest("unknown role", nil)
	}
	if err := s.roles.Assign(ctx, userID, role); err != nil {
		return apperrors.Internal("failed to assign role", err)
	}
	return nil
}

// RemoveRole drops every row matching (account, role).
func (s *Service) RemoveRole(ctx context.Context, userID uuid.UUID, role string) error {
	if err := s.roles.Remove(ctx, userID, role); err != nil {
		return apperrors.Internal("failed to remove role", err)
	}
	return nil
}
