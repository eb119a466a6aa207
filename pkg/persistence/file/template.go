package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/persistence"
)

// TemplateRepository handles template-related file operations.
type TemplateRepository struct {
	root string
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{root: root}
}

// GetAll returns every stored template, newest first.
func (tr *TemplateRepository) GetAll(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	root := os.DirFS(path.Join(tr.root, "templates"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list template files: %w", err)
	}

	templates := make([]*models.WorkflowTemplate, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		templateID := file[:len(file)-5]

		template, err := tr.GetByID(ctx, templateID)
		if err != nil {
			return nil, fmt.Errorf("failed to load template %s: %w", templateID, err)
		}

		templates = append(templates, template)
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})

	return templates, nil
}

// GetByID retrieves a template by its ID from the file system.
func (tr *TemplateRepository) GetByID(_ context.Context, templateID string) (*models.WorkflowTemplate, error) {
	filePath := filepath.Clean(path.Join(tr.root, "templates", templateID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewTemplateError("GetByID", templateID, persistence.ErrTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to fetch template %s: %w", templateID, err)
	}

	var template models.WorkflowTemplate

	err = json.Unmarshal(body, &template)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal template %s: %w", templateID, err)
	}

	return &template, nil
}

// Save saves a template to the file system.
func (tr *TemplateRepository) Save(_ context.Context, template *models.WorkflowTemplate) error {
	err := os.MkdirAll(path.Join(tr.root, "templates"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create templates directory: %w", err)
	}

	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	data, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal template %s: %w", template.ID, err)
	}

	filePath := path.Join(tr.root, "templates", template.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// Delete removes a template by its ID.
func (tr *TemplateRepository) Delete(_ context.Context, id string) error {
	filePath := path.Join(tr.root, "templates", id+".json")

	err := os.Remove(filePath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}

	return nil
}
