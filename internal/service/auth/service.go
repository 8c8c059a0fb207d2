package auth

import (
	"context"

	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/repository"
	"github.com/praxisboard/board-api/pkg/auth"
	apperrors "github.com/praxisboard/board-api/pkg/errors"
	"github.com/praxisboard/board-api/pkg/security"
)

// Service authenticates interactive accounts and issues session tokens.
type Service struct {
	users      repository.UserRepository
	jwtManager *auth.JWTManager
}

func NewService(users repository.UserRepository, jwtManager *auth.JWTManager) *Service {
	return &Service{
		users:      users,
		jwtManager: jwtManager,
	}
}

// Login verifies the credentials and returns an access/refresh token pair.
// Unknown accounts and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid credentials", err)
	}

	if !security.CheckPassword(req.Password, user.PasswordHash) {
		return nil, apperrors.Unauthorized("invalid credentials", nil)
	}

	tokens, err := s.jwtManager.GenerateTokenPair(user)
	if err != nil {
		return nil, apperrors.Internal("failed to issue tokens", err)
	}
	return tokens, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claims, err := s.jwtManager.ValidateToken(refreshToken, auth.RefreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid refresh token", err)
	}

	user, err := s.users.Get(ctx, claims.UserID)
	if err != nil {
		return nil, apperrors.Unauthorized("unknown account", err)
	}

	tokens, err := s.jwtManager.GenerateTokenPair(user)
	if err != nil {
		return nil, apperrors.Internal("failed to issue tokens", err)
	}
	return tokens, nil
}
