package configuration

import (
	"context"

	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/repository"
	apperrors "github.com/praxisboard/board-api/pkg/errors"
)

// Service maintains the singleton settings row with create-on-first-write
// semantics.
type Service struct {
	repo repository.ConfigurationRepository
}

func NewService(repo repository.ConfigurationRepository) *Service {
	return &Service{repo: repo}
}

// Get returns the settings row, or nil when none has been written yet.
func (s *Service) Get(ctx context.Context) (*model.SystemConfiguration, error) {
	cfg, err := s.repo.Get(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to load configuration", err)
	}
	return cfg, nil
}

// Update merges the supplied fields into the existing row, creating it if
// absent. Omitted fields keep their value; explicit nulls clear the column.
func (s *Service) Update(ctx context.Context, upd *model.ConfigurationUpdate) (*model.SystemConfiguration, error) {
	if upd.Empty() {
		return nil, apperrors.BadRequest("no recognised configuration fields supplied", nil)
	}

	existing, err := s.repo.Get(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to load configuration", err)
	}

	if existing == nil {
		created, err := s.repo.Insert(ctx, upd)
		if err != nil {
			return nil, apperrors.Internal("failed to create configuration", err)
		}
		return created, nil
	}

	updated, err := s.repo.Update(ctx, existing.ID, upd)
	if err != nil {
		return nil, apperrors.Internal("failed to update configuration", err)
	}
	return updated, nil
}
