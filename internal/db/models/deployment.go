// Package models - deployment.go defines the Deployment model and its status
// state machine: pending → running → {success|failed|cancelled}.
package models

import "time"

// Deployment statuses.
const (
	DeploymentPending   = "pending"
	DeploymentRunning   = "running"
	DeploymentSuccess   = "success"
	DeploymentFailed    = "failed"
	DeploymentCancelled = "cancelled"
)

// Deployment represents one deployment run of a project.
//
// DurationSeconds is always recomputed from CompletedAt - StartedAt when both
// are set; caller-supplied values are ignored.
type Deployment struct {
	ID              string
	ProjectID       string
	UserID          string
	Environment     string
	Version         string
	Status          string
	EnvironmentVars map[string]string
	Logs            string
	ErrorMessage    string
	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationSeconds *int
	CreatedAt       time.Time
}

// IsTerminal reports whether the status is one of the terminal states.
func (d *Deployment) IsTerminal() bool {
	switch d.Status {
	case DeploymentSuccess, DeploymentFailed, DeploymentCancelled:
		return true
	}
	return false
}

// ValidTransition reports whether a status change is allowed by the deployment
// state machine.
func ValidTransition(from, to string) bool {
	switch from {
	case DeploymentPending:
		return to == DeploymentRunning || to == DeploymentCancelled
	case DeploymentRunning:
		return to == DeploymentSuccess || to == DeploymentFailed || to == DeploymentCancelled
	}
	return false
}
