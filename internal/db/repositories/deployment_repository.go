package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pak-sh/pakweb/internal/db/models"
)

// DeploymentRepository handles deployment run database operations
type DeploymentRepository struct {
	db DBTX
}

// NewDeploymentRepository creates a new DeploymentRepository
func NewDeploymentRepository(db *sql.DB) *DeploymentRepository {
	return &DeploymentRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *DeploymentRepository) WithTx(tx *sql.Tx) *DeploymentRepository {
	return &DeploymentRepository{db: tx}
}

const deploymentColumns = `
	id, project_id, user_id, environment, version, status, environment_vars,
	logs, error_message, started_at, completed_at, duration_seconds, created_at
`

func scanDeployment(row interface{ Scan(...any) error }) (*models.Deployment, error) {
	d := &models.Deployment{}
	var envVars []byte
	err := row.Scan(
		&d.ID,
		&d.ProjectID,
		&d.UserID,
		&d.Environment,
		&d.Version,
		&d.Status,
		&envVars,
		&d.Logs,
		&d.ErrorMessage,
		&d.StartedAt,
		&d.CompletedAt,
		&d.DurationSeconds,
		&d.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(envVars) > 0 {
		if err := json.Unmarshal(envVars, &d.EnvironmentVars); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Create inserts a new deployment in pending state
func (r *DeploymentRepository) Create(ctx context.Context, deployment *models.Deployment) error {
	deployment.ID = uuid.New().String()
	deployment.CreatedAt = time.Now()
	if deployment.Status == "" {
		deployment.Status = models.DeploymentPending
	}
	if deployment.EnvironmentVars == nil {
		deployment.EnvironmentVars = map[string]string{}
	}

	envVars, err := json.Marshal(deployment.EnvironmentVars)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO deployments (
			id, project_id, user_id, environment, version, status, environment_vars, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		deployment.ID,
		deployment.ProjectID,
		deployment.UserID,
		deployment.Environment,
		deployment.Version,
		deployment.Status,
		envVars,
		deployment.CreatedAt,
	)

	return err
}

// GetByID retrieves a deployment by ID
func (r *DeploymentRepository) GetByID(ctx context.Context, deploymentID string) (*models.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = $1`
	return scanDeployment(r.db.QueryRowContext(ctx, query, deploymentID))
}

// UpdateRun rewrites the mutable run fields: status, logs, error message,
// timestamps, and duration.
func (r *DeploymentRepository) UpdateRun(ctx context.Context, deployment *models.Deployment) error {
	query := `
		UPDATE deployments
		SET status = $2, logs = $3, error_message = $4, started_at = $5,
		    completed_at = $6, duration_seconds = $7
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		deployment.ID,
		deployment.Status,
		deployment.Logs,
		deployment.ErrorMessage,
		deployment.StartedAt,
		deployment.CompletedAt,
		deployment.DurationSeconds,
	)

	return err
}

// ListByProject retrieves a paginated list of a project's deployments with the total count
func (r *DeploymentRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*models.Deployment, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM deployments WHERE project_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, projectID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	deployments := make([]*models.Deployment, 0)
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, 0, err
		}
		deployments = append(deployments, d)
	}

	return deployments, total, rows.Err()
}

// ListByUser retrieves a paginated list of a user's deployments with the total count
func (r *DeploymentRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Deployment, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM deployments WHERE user_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	deployments := make([]*models.Deployment, 0)
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, 0, err
		}
		deployments = append(deployments, d)
	}

	return deployments, total, rows.Err()
}

// ListRecent retrieves the newest deployments across all projects
func (r *DeploymentRepository) ListRecent(ctx context.Context, limit int) ([]*models.Deployment, error) {
	query := `
		SELECT ` + deploymentColumns + `
		FROM deployments
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deployments := make([]*models.Deployment, 0)
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}

	return deployments, rows.Err()
}
