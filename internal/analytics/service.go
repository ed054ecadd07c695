// Package analytics derives dashboard reporting from the ledger at request
// time. Nothing here is stored; every figure is an aggregate query over the
// users, projects, deployments, and webhook tables.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pak-sh/pakweb/internal/config"
)

// Service computes aggregate reports
type Service struct {
	db  *sqlx.DB
	cfg config.AnalyticsConfig
}

// NewService wraps the shared database handle for aggregate queries
func NewService(db *sql.DB, cfg config.AnalyticsConfig) *Service {
	return &Service{db: sqlx.NewDb(db, "postgres"), cfg: cfg}
}

// NameCount is one bucket of a distribution.
type NameCount struct {
	Name  string `db:"name" json:"name"`
	Count int    `db:"count" json:"count"`
}

// TrendPoint is one day of the deployment trend series.
type TrendPoint struct {
	Day   time.Time `db:"day" json:"day"`
	Count int       `db:"count" json:"count"`
}

// RecentDeployment is one row of a recent-activity list.
type RecentDeployment struct {
	ID          string    `db:"id" json:"id"`
	ProjectID   string    `db:"project_id" json:"project_id"`
	ProjectName string    `db:"project_name" json:"project_name"`
	Environment string    `db:"environment" json:"environment"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// deploymentTotals is the shared success/failed/running breakdown.
type deploymentTotals struct {
	Total       int     `db:"total" json:"total"`
	Success     int     `db:"success" json:"success"`
	Failed      int     `db:"failed" json:"failed"`
	Running     int     `db:"running" json:"running"`
	SuccessRate float64 `db:"success_rate" json:"success_rate"`
}

// SystemAnalytics is the admin dashboard report.
type SystemAnalytics struct {
	Users             int                `json:"users"`
	Projects          int                `json:"projects"`
	Deployments       deploymentTotals   `json:"deployments"`
	RecentDeployments []RecentDeployment `json:"recent_deployments"`
	Platforms         []NameCount        `json:"platforms"`
	Languages         []NameCount        `json:"languages"`
	DeploymentTrend   []TrendPoint       `json:"deployment_trend"`
}

const deploymentTotalsSelect = `
	SELECT COUNT(*) AS total,
	       COUNT(*) FILTER (WHERE status = 'success') AS success,
	       COUNT(*) FILTER (WHERE status = 'failed') AS failed,
	       COUNT(*) FILTER (WHERE status = 'running') AS running,
	       CASE WHEN COUNT(*) = 0 THEN 0
	            ELSE COUNT(*) FILTER (WHERE status = 'success') * 100.0 / COUNT(*) END
	           AS success_rate
	FROM deployments
`

// System computes the system-wide report
func (s *Service) System(ctx context.Context) (*SystemAnalytics, error) {
	report := &SystemAnalytics{}

	if err := s.db.GetContext(ctx, &report.Users, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if err := s.db.GetContext(ctx, &report.Projects, `SELECT COUNT(*) FROM projects`); err != nil {
		return nil, fmt.Errorf("failed to count projects: %w", err)
	}
	if err := s.db.GetContext(ctx, &report.Deployments, deploymentTotalsSelect); err != nil {
		return nil, fmt.Errorf("failed to aggregate deployments: %w", err)
	}

	recentQuery := `
		SELECT d.id, d.project_id, p.name AS project_name, d.environment, d.status, d.created_at
		FROM deployments d
		JOIN projects p ON p.id = d.project_id
		ORDER BY d.created_at DESC
		LIMIT $1
	`
	if err := s.db.SelectContext(ctx, &report.RecentDeployments, recentQuery, s.cfg.RecentLimit); err != nil {
		return nil, fmt.Errorf("failed to list recent deployments: %w", err)
	}

	platformQuery := `
		SELECT platform AS name, COUNT(*) AS count
		FROM projects
		WHERE platform <> ''
		GROUP BY platform
		ORDER BY count DESC
	`
	if err := s.db.SelectContext(ctx, &report.Platforms, platformQuery); err != nil {
		return nil, fmt.Errorf("failed to aggregate platforms: %w", err)
	}

	languageQuery := `
		SELECT language AS name, COUNT(*) AS count
		FROM projects
		WHERE language <> ''
		GROUP BY language
		ORDER BY count DESC
	`
	if err := s.db.SelectContext(ctx, &report.Languages, languageQuery); err != nil {
		return nil, fmt.Errorf("failed to aggregate languages: %w", err)
	}

	trendQuery := `
		SELECT DATE(created_at) AS day, COUNT(*) AS count
		FROM deployments
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day
	`
	cutoff := time.Now().AddDate(0, 0, -s.cfg.TrendDays)
	if err := s.db.SelectContext(ctx, &report.DeploymentTrend, trendQuery, cutoff); err != nil {
		return nil, fmt.Errorf("failed to compute deployment trend: %w", err)
	}

	return report, nil
}

// UserAnalytics is the per-user dashboard report.
type UserAnalytics struct {
	Projects          int                `json:"projects"`
	Deployments       deploymentTotals   `json:"deployments"`
	ProjectStats      []UserProjectStats `json:"project_stats"`
	RecentDeployments []RecentDeployment `json:"recent_deployments"`
}

// UserProjectStats is one project's derived counters in a user report.
type UserProjectStats struct {
	ID              string  `db:"id" json:"id"`
	Name            string  `db:"name" json:"name"`
	DeploymentCount int     `db:"deployment_count" json:"deployment_count"`
	SuccessRate     float64 `db:"success_rate" json:"success_rate"`
}

// User computes one user's report
func (s *Service) User(ctx context.Context, userID string) (*UserAnalytics, error) {
	report := &UserAnalytics{}

	if err := s.db.GetContext(ctx, &report.Projects,
		`SELECT COUNT(*) FROM projects WHERE owner_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("failed to count projects: %w", err)
	}
	if err := s.db.GetContext(ctx, &report.Deployments,
		deploymentTotalsSelect+` WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("failed to aggregate deployments: %w", err)
	}

	statsQuery := `
		SELECT id, name, deployment_count, success_rate
		FROM projects
		WHERE owner_id = $1
		ORDER BY deployment_count DESC
	`
	if err := s.db.SelectContext(ctx, &report.ProjectStats, statsQuery, userID); err != nil {
		return nil, fmt.Errorf("failed to list project stats: %w", err)
	}

	recentQuery := `
		SELECT d.id, d.project_id, p.name AS project_name, d.environment, d.status, d.created_at
		FROM deployments d
		JOIN projects p ON p.id = d.project_id
		WHERE d.user_id = $1
		ORDER BY d.created_at DESC
		LIMIT $2
	`
	if err := s.db.SelectContext(ctx, &report.RecentDeployments, recentQuery, userID, s.cfg.RecentLimit); err != nil {
		return nil, fmt.Errorf("failed to list recent deployments: %w", err)
	}

	return report, nil
}

// ProjectAnalytics is the per-project report.
type ProjectAnalytics struct {
	Deployments  deploymentTotals `json:"deployments"`
	Durations    DurationStats    `json:"durations"`
	Environments []NameCount      `json:"environments"`
	MonthlyTrend []MonthCount     `json:"monthly_trend"`
}

// DurationStats summarizes completed deployment durations in seconds.
type DurationStats struct {
	Min float64 `db:"min" json:"min"`
	Avg float64 `db:"avg" json:"avg"`
	Max float64 `db:"max" json:"max"`
}

// MonthCount is one month of a trend series.
type MonthCount struct {
	Month string `db:"month" json:"month"`
	Count int    `db:"count" json:"count"`
}

// Project computes one project's report
func (s *Service) Project(ctx context.Context, projectID string) (*ProjectAnalytics, error) {
	report := &ProjectAnalytics{}

	if err := s.db.GetContext(ctx, &report.Deployments,
		deploymentTotalsSelect+` WHERE project_id = $1`, projectID); err != nil {
		return nil, fmt.Errorf("failed to aggregate deployments: %w", err)
	}

	durationQuery := `
		SELECT COALESCE(MIN(duration_seconds), 0) AS min,
		       COALESCE(AVG(duration_seconds), 0) AS avg,
		       COALESCE(MAX(duration_seconds), 0) AS max
		FROM deployments
		WHERE project_id = $1 AND duration_seconds IS NOT NULL
	`
	if err := s.db.GetContext(ctx, &report.Durations, durationQuery, projectID); err != nil {
		return nil, fmt.Errorf("failed to aggregate durations: %w", err)
	}

	environmentQuery := `
		SELECT environment AS name, COUNT(*) AS count
		FROM deployments
		WHERE project_id = $1
		GROUP BY environment
		ORDER BY count DESC
	`
	if err := s.db.SelectContext(ctx, &report.Environments, environmentQuery, projectID); err != nil {
		return nil, fmt.Errorf("failed to aggregate environments: %w", err)
	}

	trendQuery := `
		SELECT TO_CHAR(created_at, 'YYYY-MM') AS month, COUNT(*) AS count
		FROM deployments
		WHERE project_id = $1
		GROUP BY month
		ORDER BY month
	`
	if err := s.db.SelectContext(ctx, &report.MonthlyTrend, trendQuery, projectID); err != nil {
		return nil, fmt.Errorf("failed to compute monthly trend: %w", err)
	}

	return report, nil
}

// WebhookAnalytics is the delivery-engine report.
type WebhookAnalytics struct {
	Webhooks         int              `db:"webhooks" json:"webhooks"`
	ActiveWebhooks   int              `db:"active_webhooks" json:"active_webhooks"`
	Deliveries       int              `db:"deliveries" json:"deliveries"`
	Successful       int              `db:"successful" json:"successful"`
	SuccessRate      float64          `db:"success_rate" json:"success_rate"`
	RecentDeliveries []RecentDelivery `json:"recent_deliveries"`
}

// RecentDelivery is one row of the recent delivery list.
type RecentDelivery struct {
	ID         string    `db:"id" json:"id"`
	WebhookID  string    `db:"webhook_id" json:"webhook_id"`
	Event      string    `db:"event" json:"event"`
	StatusCode *int      `db:"status_code" json:"status_code,omitempty"`
	RetryCount int       `db:"retry_count" json:"retry_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Webhooks computes the system-wide webhook delivery report
func (s *Service) Webhooks(ctx context.Context) (*WebhookAnalytics, error) {
	report := &WebhookAnalytics{}

	totalsQuery := `
		SELECT (SELECT COUNT(*) FROM webhooks) AS webhooks,
		       (SELECT COUNT(*) FROM webhooks WHERE is_active = TRUE) AS active_webhooks,
		       COUNT(*) AS deliveries,
		       COUNT(*) FILTER (WHERE status_code >= 200 AND status_code < 300) AS successful,
		       CASE WHEN COUNT(*) = 0 THEN 0
		            ELSE COUNT(*) FILTER (WHERE status_code >= 200 AND status_code < 300) * 100.0 / COUNT(*) END
		           AS success_rate
		FROM webhook_deliveries
	`
	if err := s.db.GetContext(ctx, report, totalsQuery); err != nil {
		return nil, fmt.Errorf("failed to aggregate webhook deliveries: %w", err)
	}

	recentQuery := `
		SELECT id, webhook_id, event, status_code, retry_count, created_at
		FROM webhook_deliveries
		ORDER BY created_at DESC
		LIMIT $1
	`
	if err := s.db.SelectContext(ctx, &report.RecentDeliveries, recentQuery, s.cfg.RecentLimit); err != nil {
		return nil, fmt.Errorf("failed to list recent deliveries: %w", err)
	}

	return report, nil
}
