package analytics

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/pak-sh/pakweb/internal/config"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(db, config.AnalyticsConfig{TrendDays: 30, RecentLimit: 10}), mock
}

var totalsCols = []string{"total", "success", "failed", "running", "success_rate"}

func TestSystem(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT COUNT.*FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery("SELECT COUNT.*FROM projects").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT COUNT.*FROM deployments").
		WillReturnRows(sqlmock.NewRows(totalsCols).AddRow(3, 2, 1, 0, 2*100.0/3.0))
	mock.ExpectQuery("SELECT d.id.*JOIN projects").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "project_name", "environment", "status", "created_at"}).
			AddRow("dep-1", "proj-1", "my-app", "production", "success", time.Now()))
	mock.ExpectQuery("SELECT platform AS name").
		WillReturnRows(sqlmock.NewRows([]string{"name", "count"}).AddRow("linux", 2))
	mock.ExpectQuery("SELECT language AS name").
		WillReturnRows(sqlmock.NewRows([]string{"name", "count"}).AddRow("go", 2))
	mock.ExpectQuery("SELECT DATE.*FROM deployments").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"day", "count"}).AddRow(time.Now().Truncate(24*time.Hour), 3))

	report, err := svc.System(context.Background())
	if err != nil {
		t.Fatalf("System() error: %v", err)
	}
	if report.Users != 4 || report.Projects != 2 {
		t.Errorf("Users/Projects = %d/%d, want 4/2", report.Users, report.Projects)
	}
	if report.Deployments.Total != 3 || report.Deployments.Success != 2 {
		t.Errorf("Deployments = %+v", report.Deployments)
	}
	// success, failed, success
	want := 200.0 / 3.0
	if report.Deployments.SuccessRate < want-0.01 || report.Deployments.SuccessRate > want+0.01 {
		t.Errorf("SuccessRate = %f, want ~66.67", report.Deployments.SuccessRate)
	}
	if len(report.RecentDeployments) != 1 || report.RecentDeployments[0].ProjectName != "my-app" {
		t.Errorf("RecentDeployments = %+v", report.RecentDeployments)
	}
	if len(report.Platforms) != 1 || report.Platforms[0].Name != "linux" {
		t.Errorf("Platforms = %+v", report.Platforms)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUser(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT COUNT.*FROM projects WHERE owner_id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT COUNT.*FROM deployments.*WHERE user_id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(totalsCols).AddRow(2, 2, 0, 0, 100.0))
	mock.ExpectQuery("SELECT id, name, deployment_count, success_rate").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "deployment_count", "success_rate"}).
			AddRow("proj-1", "my-app", 2, 100.0))
	mock.ExpectQuery("SELECT d.id.*WHERE d.user_id").
		WithArgs("user-1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "project_name", "environment", "status", "created_at"}))

	report, err := svc.User(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("User() error: %v", err)
	}
	if report.Projects != 1 {
		t.Errorf("Projects = %d, want 1", report.Projects)
	}
	if len(report.ProjectStats) != 1 || report.ProjectStats[0].SuccessRate != 100.0 {
		t.Errorf("ProjectStats = %+v", report.ProjectStats)
	}
}

func TestProject(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT COUNT.*FROM deployments.*WHERE project_id").
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows(totalsCols).AddRow(3, 2, 1, 0, 2*100.0/3.0))
	mock.ExpectQuery("SELECT COALESCE\\(MIN").
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows([]string{"min", "avg", "max"}).AddRow(30.0, 60.0, 90.0))
	mock.ExpectQuery("SELECT environment AS name").
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "count"}).AddRow("production", 3))
	mock.ExpectQuery("SELECT TO_CHAR").
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows([]string{"month", "count"}).AddRow("2026-08", 3))

	report, err := svc.Project(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("Project() error: %v", err)
	}
	if report.Durations.Avg != 60.0 {
		t.Errorf("Durations.Avg = %f, want 60", report.Durations.Avg)
	}
	if len(report.MonthlyTrend) != 1 || report.MonthlyTrend[0].Month != "2026-08" {
		t.Errorf("MonthlyTrend = %+v", report.MonthlyTrend)
	}
}

func TestWebhooks(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM webhook_deliveries").
		WillReturnRows(sqlmock.NewRows([]string{"webhooks", "active_webhooks", "deliveries", "successful", "success_rate"}).
			AddRow(2, 1, 10, 8, 80.0))
	mock.ExpectQuery("SELECT id, webhook_id, event").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "webhook_id", "event", "status_code", "retry_count", "created_at"}).
			AddRow("del-1", "hook-1", "deployment.completed", 200, 0, time.Now()))

	report, err := svc.Webhooks(context.Background())
	if err != nil {
		t.Fatalf("Webhooks() error: %v", err)
	}
	if report.SuccessRate != 80.0 {
		t.Errorf("SuccessRate = %f, want 80", report.SuccessRate)
	}
	if len(report.RecentDeliveries) != 1 {
		t.Errorf("RecentDeliveries = %+v", report.RecentDeliveries)
	}
}
