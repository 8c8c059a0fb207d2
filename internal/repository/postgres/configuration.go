package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/repository"
)

type configurationRepository struct {
	db *sqlx.DB
}

func NewConfigurationRepository(db *sqlx.DB) repository.ConfigurationRepository {
	return &configurationRepository{db: db}
}

const configurationColumns = `id, webhook_url, email_template_first, email_template_reminder,
	dentist_name, logo_url, created_at, updated_at`

func (r *configurationRepository) Get(ctx context.Context) (*model.SystemConfiguration, error) {
	query := fmt.Sprintf(`SELECT %s FROM system_configurations LIMIT 1`, configurationColumns)

	var cfg model.SystemConfiguration
	err := r.db.GetContext(ctx, &cfg, query)
	if errors.Is(err, sql.ErrNoRows) {
		// No configuration yet is a valid state, not an error.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}
	return &cfg, nil
}

func (r *configurationRepository) Insert(ctx context.Context, upd *model.ConfigurationUpdate) (*model.SystemConfiguration, error) {
	query := fmt.Sprintf(`
		INSERT INTO system_configurations (id, webhook_url, email_template_first, email_template_reminder,
			dentist_name, logo_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING %s
	`, configurationColumns)

	var cfg model.SystemConfiguration
	err := r.db.GetContext(ctx, &cfg, query,
		uuid.New(),
		upd.WebhookURL.Value,
		upd.EmailTemplateFirst.Value,
		upd.EmailTemplateReminder.Value,
		upd.DentistName.Value,
		upd.LogoURL.Value,
		time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert configuration: %w", err)
	}
	return &cfg, nil
}

func (r *configurationRepository) Update(ctx context.Context, id uuid.UUID, upd *model.ConfigurationUpdate) (*model.SystemConfiguration, error) {
	sets := make([]string, 0, 6)
	args := make([]interface{}, 0, 8)

	add := func(column string, field model.NullableString) {
		if !field.Set {
			return
		}
		args = append(args, field.Value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	add("webhook_url", upd.WebhookURL)
	add("email_template_first", upd.EmailTemplateFirst)
	add("email_template_reminder", upd.EmailTemplateReminder)
	add("dentist_name", upd.DentistName)
	add("logo_url", upd.LogoURL)

	args = append(args, time.Now())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE system_configurations SET %s
		WHERE id = $%d
		RETURNING %s
	`, strings.Join(sets, ", "), len(args), configurationColumns)

	var cfg model.SystemConfiguration
	if err := r.db.GetContext(ctx, &cfg, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update configuration: %w", err)
	}
	return &cfg, nil
}
