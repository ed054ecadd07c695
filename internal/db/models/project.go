// Package models - project.go defines the Project model with metadata and the
// derived deployment counters maintained by the ledger.
package models

import "time"

// Project represents a managed package/deployment project.
//
// DeploymentCount, SuccessRate, and LastDeployment are derived from the
// deployments table and recomputed inside the same transaction as every
// deployment insert or status update; they must never drift from a full
// recomputation over the deployment set.
type Project struct {
	ID              string
	Name            string
	Description     string
	OwnerID         string
	Status          string
	Version         string
	Platform        string
	Language        string
	Framework       string
	ConfigPath      string
	DeploymentCount int
	SuccessRate     float64
	LastDeployment  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
