package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/persistence"
)

// TemplateRepository handles template-related database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

const templateColumns = `
	id
  , name
  , description
  , graph
  , default_configs
  , owner
  , visibility
  , usage_count
  , published
  , created_at
  , updated_at
`

// GetAll returns every template, newest first.
func (r *TemplateRepository) GetAll(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	query := "SELECT " + templateColumns + " FROM workflow_templates ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := r.scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// GetByID returns a template by its ID.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := "SELECT " + templateColumns + " FROM workflow_templates WHERE id = $1"

	template, err := r.scanTemplate(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	return template, nil
}

// Save upserts a template.
func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	now := time.Now().UTC()

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	graphJSON, err := json.Marshal(template.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	defaultsJSON, err := json.Marshal(template.DefaultConfigs)
	if err != nil {
		return fmt.Errorf("failed to marshal default configs: %w", err)
	}

	query := `
		INSERT INTO workflow_templates (
			id, name, description, graph, default_configs, owner, visibility,
			usage_count, published, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			graph = EXCLUDED.graph,
			default_configs = EXCLUDED.default_configs,
			visibility = EXCLUDED.visibility,
			usage_count = EXCLUDED.usage_count,
			published = EXCLUDED.published,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		template.ID,
		template.Name,
		template.Description,
		graphJSON,
		defaultsJSON,
		template.Owner,
		string(template.Visibility),
		template.UsageCount,
		template.Published,
		template.CreatedAt,
		template.UpdatedAt,
	)
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	return nil
}

// Delete removes a template. A template with live workflow instances is
// protected and the call fails with ErrTemplateInUse.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	var instances int64

	countQuery := "SELECT COUNT(*) FROM workflows WHERE template_id = $1 AND deleted_at IS NULL"
	if err := r.db.QueryRowContext(ctx, countQuery, id).Scan(&instances); err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	if instances > 0 {
		return persistence.NewTemplateError("Delete", id, persistence.ErrTemplateInUse)
	}

	_, err := r.db.ExecContext(ctx, "DELETE FROM workflow_templates WHERE id = $1", id)
	if err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	return nil
}

func (r *TemplateRepository) scanTemplate(row rowScanner) (*models.WorkflowTemplate, error) {
	var (
		template     models.WorkflowTemplate
		graphJSON    []byte
		defaultsJSON []byte
		visibility   string
	)

	err := row.Scan(
		&template.ID,
		&template.Name,
		&template.Description,
		&graphJSON,
		&defaultsJSON,
		&template.Owner,
		&visibility,
		&template.UsageCount,
		&template.Published,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	template.Visibility = models.TemplateVisibility(visibility)

	if err := json.Unmarshal(graphJSON, &template.Graph); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}

	if err := json.Unmarshal(defaultsJSON, &template.DefaultConfigs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default configs: %w", err)
	}

	return &template, nil
}
