package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pak-sh/pakweb/internal/db/models"
)

// ProjectRepository handles project database operations, including the derived
// deployment counters on the project row.
type ProjectRepository struct {
	db DBTX
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *ProjectRepository) WithTx(tx *sql.Tx) *ProjectRepository {
	return &ProjectRepository{db: tx}
}

const projectColumns = `
	id, name, description, owner_id, status, version, platform, language, framework,
	config_path, deployment_count, success_rate, last_deployment, created_at, updated_at
`

func scanProject(row interface{ Scan(...any) error }) (*models.Project, error) {
	p := &models.Project{}
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.OwnerID,
		&p.Status,
		&p.Version,
		&p.Platform,
		&p.Language,
		&p.Framework,
		&p.ConfigPath,
		&p.DeploymentCount,
		&p.SuccessRate,
		&p.LastDeployment,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create creates a new project
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	project.ID = uuid.New().String()
	project.CreatedAt = time.Now()
	project.UpdatedAt = project.CreatedAt
	if project.Status == "" {
		project.Status = "active"
	}

	query := `
		INSERT INTO projects (
			id, name, description, owner_id, status, version, platform, language,
			framework, config_path, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		project.ID,
		project.Name,
		project.Description,
		project.OwnerID,
		project.Status,
		project.Version,
		project.Platform,
		project.Language,
		project.Framework,
		project.ConfigPath,
		project.CreatedAt,
		project.UpdatedAt,
	)

	return err
}

// GetByID retrieves a project by ID
func (r *ProjectRepository) GetByID(ctx context.Context, projectID string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	return scanProject(r.db.QueryRowContext(ctx, query, projectID))
}

// GetByName retrieves a project by its unique name
func (r *ProjectRepository) GetByName(ctx context.Context, name string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE name = $1`
	return scanProject(r.db.QueryRowContext(ctx, query, name))
}

// Update updates a project's metadata
func (r *ProjectRepository) Update(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now()

	query := `
		UPDATE projects
		SET name = $2, description = $3, status = $4, version = $5, platform = $6,
		    language = $7, framework = $8, config_path = $9, updated_at = $10
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		project.ID,
		project.Name,
		project.Description,
		project.Status,
		project.Version,
		project.Platform,
		project.Language,
		project.Framework,
		project.ConfigPath,
		project.UpdatedAt,
	)

	return err
}

// Delete deletes a project (cascades to its deployments)
func (r *ProjectRepository) Delete(ctx context.Context, projectID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	return err
}

// ListByOwner retrieves a paginated list of one user's projects with the total count
func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Project, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM projects WHERE owner_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	projects := make([]*models.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		projects = append(projects, p)
	}

	return projects, total, rows.Err()
}

// List retrieves a paginated list of all projects (admin view)
func (r *ProjectRepository) List(ctx context.Context, limit, offset int) ([]*models.Project, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + projectColumns + `
		FROM projects
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	projects := make([]*models.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		projects = append(projects, p)
	}

	return projects, total, rows.Err()
}

// RecomputeStats rewrites the project's derived counters from a full
// recomputation over its deployment set. Must run in the same transaction as
// the deployment insert or status update that invalidated them.
func (r *ProjectRepository) RecomputeStats(ctx context.Context, projectID string) error {
	query := `
		UPDATE projects
		SET deployment_count = s.total,
		    success_rate = CASE WHEN s.total = 0 THEN 0
		                        ELSE s.successes * 100.0 / s.total END,
		    last_deployment = s.last_created,
		    updated_at = NOW()
		FROM (
			SELECT COUNT(*) AS total,
			       COUNT(*) FILTER (WHERE status = 'success') AS successes,
			       MAX(created_at) AS last_created
			FROM deployments
			WHERE project_id = $1
		) s
		WHERE projects.id = $1
	`
	_, err := r.db.ExecContext(ctx, query, projectID)
	return err
}
