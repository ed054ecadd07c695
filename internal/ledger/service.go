// Package ledger implements the project/deployment record keeping: project
// CRUD with unique names, the deployment status state machine, and the derived
// project counters that are recomputed transactionally on every deployment
// write.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pak-sh/pakweb/internal/db/models"
	"github.com/pak-sh/pakweb/internal/db/repositories"
	"github.com/pak-sh/pakweb/internal/telemetry"
)

var (
	// ErrNameTaken is returned when a project name is already in use.
	ErrNameTaken = errors.New("project name already taken")

	// ErrNotFound is returned when the referenced project or deployment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned for a status change the deployment state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Service owns project and deployment records
type Service struct {
	db          *sql.DB
	projects    *repositories.ProjectRepository
	deployments *repositories.DeploymentRepository
}

// NewService creates a ledger Service wired to the given database
func NewService(db *sql.DB) *Service {
	return &Service{
		db:          db,
		projects:    repositories.NewProjectRepository(db),
		deployments: repositories.NewDeploymentRepository(db),
	}
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// CreateProject creates a project after checking the name is free
func (s *Service) CreateProject(ctx context.Context, project *models.Project) error {
	existing, err := s.projects.GetByName(ctx, project.Name)
	if err != nil {
		return fmt.Errorf("failed to check project name: %w", err)
	}
	if existing != nil {
		return ErrNameTaken
	}
	return s.projects.Create(ctx, project)
}

// GetProject retrieves a project by ID
func (s *Service) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	return s.projects.GetByID(ctx, projectID)
}

// GetProjectByName retrieves a project by its unique name
func (s *Service) GetProjectByName(ctx context.Context, name string) (*models.Project, error) {
	return s.projects.GetByName(ctx, name)
}

// UpdateProject updates project metadata, keeping the name unique
func (s *Service) UpdateProject(ctx context.Context, project *models.Project) error {
	existing, err := s.projects.GetByName(ctx, project.Name)
	if err != nil {
		return fmt.Errorf("failed to check project name: %w", err)
	}
	if existing != nil && existing.ID != project.ID {
		return ErrNameTaken
	}
	return s.projects.Update(ctx, project)
}

// DeleteProject deletes a project and, via the schema, its deployments
func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	return s.projects.Delete(ctx, projectID)
}

// ListProjects retrieves all projects (admin view)
func (s *Service) ListProjects(ctx context.Context, limit, offset int) ([]*models.Project, int, error) {
	return s.projects.List(ctx, limit, offset)
}

// ListProjectsByOwner retrieves one user's projects
func (s *Service) ListProjectsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Project, int, error) {
	return s.projects.ListByOwner(ctx, ownerID, limit, offset)
}

// ---------------------------------------------------------------------------
// Deployments
// ---------------------------------------------------------------------------

// CreateDeployment records a new pending deployment and refreshes the owning
// project's derived counters in the same transaction.
func (s *Service) CreateDeployment(ctx context.Context, deployment *models.Deployment) error {
	project, err := s.projects.GetByID(ctx, deployment.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	if project == nil {
		return ErrNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.deployments.WithTx(tx).Create(ctx, deployment); err != nil {
		return fmt.Errorf("failed to create deployment: %w", err)
	}
	if err := s.projects.WithTx(tx).RecomputeStats(ctx, deployment.ProjectID); err != nil {
		return fmt.Errorf("failed to recompute project stats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	telemetry.DeploymentsTotal.WithLabelValues(deployment.Status).Inc()
	return nil
}

// GetDeployment retrieves a deployment by ID
func (s *Service) GetDeployment(ctx context.Context, deploymentID string) (*models.Deployment, error) {
	return s.deployments.GetByID(ctx, deploymentID)
}

// StartDeployment moves a pending deployment to running and stamps started_at
func (s *Service) StartDeployment(ctx context.Context, deploymentID string) (*models.Deployment, error) {
	return s.transition(ctx, deploymentID, models.DeploymentRunning, func(d *models.Deployment) {
		now := time.Now()
		d.StartedAt = &now
	})
}

// CompleteDeployment moves a running deployment to success or failed, appends
// logs, and recomputes the duration from the recorded timestamps. A
// caller-supplied duration is never trusted.
func (s *Service) CompleteDeployment(ctx context.Context, deploymentID, status, logs, errorMessage string) (*models.Deployment, error) {
	if status != models.DeploymentSuccess && status != models.DeploymentFailed {
		return nil, ErrInvalidTransition
	}
	return s.transition(ctx, deploymentID, status, func(d *models.Deployment) {
		now := time.Now()
		d.CompletedAt = &now
		d.Logs = logs
		d.ErrorMessage = errorMessage
		if d.StartedAt != nil {
			duration := int(now.Sub(*d.StartedAt).Seconds())
			d.DurationSeconds = &duration
		}
	})
}

// CancelDeployment cancels a pending or running deployment
func (s *Service) CancelDeployment(ctx context.Context, deploymentID string) (*models.Deployment, error) {
	return s.transition(ctx, deploymentID, models.DeploymentCancelled, func(d *models.Deployment) {
		now := time.Now()
		d.CompletedAt = &now
		if d.StartedAt != nil {
			duration := int(now.Sub(*d.StartedAt).Seconds())
			d.DurationSeconds = &duration
		}
	})
}

// transition applies one state-machine step: validate the status change, let
// mutate fill the run fields, then commit the deployment update together with
// the project's counter recomputation.
func (s *Service) transition(ctx context.Context, deploymentID, to string, mutate func(*models.Deployment)) (*models.Deployment, error) {
	deployment, err := s.deployments.GetByID(ctx, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deployment: %w", err)
	}
	if deployment == nil {
		return nil, ErrNotFound
	}
	if !models.ValidTransition(deployment.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, deployment.Status, to)
	}

	deployment.Status = to
	mutate(deployment)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.deployments.WithTx(tx).UpdateRun(ctx, deployment); err != nil {
		return nil, fmt.Errorf("failed to update deployment: %w", err)
	}
	if err := s.projects.WithTx(tx).RecomputeStats(ctx, deployment.ProjectID); err != nil {
		return nil, fmt.Errorf("failed to recompute project stats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	telemetry.DeploymentsTotal.WithLabelValues(to).Inc()
	return deployment, nil
}

// ListDeploymentsByProject retrieves a project's deployments, newest first
func (s *Service) ListDeploymentsByProject(ctx context.Context, projectID string, limit, offset int) ([]*models.Deployment, int, error) {
	return s.deployments.ListByProject(ctx, projectID, limit, offset)
}

// ListDeploymentsByUser retrieves a user's deployments, newest first
func (s *Service) ListDeploymentsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Deployment, int, error) {
	return s.deployments.ListByUser(ctx, userID, limit, offset)
}

// ListRecentDeployments retrieves the newest deployments across all projects
func (s *Service) ListRecentDeployments(ctx context.Context, limit int) ([]*models.Deployment, error) {
	return s.deployments.ListRecent(ctx, limit)
}
