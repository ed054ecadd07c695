package webhooks

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pak-sh/pakweb/internal/config"
	"github.com/pak-sh/pakweb/internal/db/models"
	"github.com/pak-sh/pakweb/internal/db/repositories"
	"github.com/pak-sh/pakweb/internal/middleware"
	"github.com/pak-sh/pakweb/internal/webhook"
)

// ---- shared test data -------------------------------------------------------

const (
	sampleUserID    = "11111111-0000-0000-0000-000000000001"
	otherUserID     = "11111111-0000-0000-0000-000000000002"
	sampleWebhookID = "cccccccc-0000-0000-0000-000000000001"
)

var webhookCols = []string{
	"id", "user_id", "name", "url", "secret", "events", "is_active", "timeout_seconds",
	"success_count", "failure_count", "last_triggered", "created_at", "updated_at",
}

var deliveryCols = []string{
	"id", "webhook_id", "event", "payload", "status_code", "response_body",
	"error_message", "duration_ms", "retry_count", "created_at",
}

func sampleWebhookRow(userID, url string) *sqlmock.Rows {
	return sqlmock.NewRows(webhookCols).AddRow(
		sampleWebhookID, userID, "ci-hook", url, "", []byte(`["deployment.completed"]`), true, 5,
		3, 1, nil, time.Now(), time.Now(),
	)
}

func caller() *models.User {
	return &models.User{ID: sampleUserID, Email: "dev@example.com", IsActive: true}
}

// ---- router helper ----------------------------------------------------------

func newRouter(t *testing.T, user *models.User, cleanupDays int) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine := webhook.NewService(db, config.WebhooksConfig{
		DefaultTimeout: 2 * time.Second,
		MaxRetries:     3,
		UserAgent:      "pakweb-test",
	})
	h := NewHandlers(engine, repositories.NewWebhookRepository(db), cleanupDays)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.UserKey, user) })
	r.GET("/webhooks", h.List())
	r.POST("/webhooks", h.Create())
	r.GET("/webhooks/:id", h.Get())
	r.PUT("/webhooks/:id", h.Update())
	r.DELETE("/webhooks/:id", h.Delete())
	r.POST("/webhooks/:id/test", h.Test())
	r.GET("/webhooks/:id/deliveries", h.ListDeliveries())
	r.GET("/webhooks/:id/stats", h.Stats())
	r.POST("/webhooks/retry-failed", h.RetryFailed())
	r.POST("/webhooks/cleanup", h.Cleanup())
	return mock, r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

// ---- CRUD -------------------------------------------------------------------

func TestListWebhooks(t *testing.T) {
	mock, r := newRouter(t, caller(), 30)

	mock.ExpectQuery(`SELECT .* FROM webhooks WHERE user_id = \$1`).
		WithArgs(sampleUserID).
		WillReturnRows(sampleWebhookRow(sampleUserID, "https://ci.example.com/hook"))

	w := doJSON(t, r, http.MethodGet, "/webhooks", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Webhooks []map[string]interface{} `json:"webhooks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Webhooks, 1)
	assert.Equal(t, "ci-hook", resp.Webhooks[0]["name"])
	// The signing secret never appears in list or get responses.
	assert.NotContains(t, resp.Webhooks[0], "secret")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWebhook_WithSecret(t *testing.T) {
	mock, r := newRouter(t, caller(), 30)

	mock.ExpectExec(`INSERT INTO webhooks`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(t, r, http.MethodPost, "/webhooks", gin.H{
		"name":            "ci-hook",
		"url":             "https://ci.example.com/hook",
		"events":          []string{"deployment.completed", "deployment.failed"},
		"generate_secret": true,
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	// The secret is returned once, at creation, and only at the top level.
	secret, ok := resp["secret"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, secret)

	hook, ok := resp["webhook"].(map[string]interface{})
	require.True(t, ok)
	assert.NotContains(t, hook, "secret")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWebhook_NoSecretByDefault(t *testing.T) {
	mock, r := newRouter(t, caller(), 30)

	mock.ExpectExec(`INSERT INTO webhooks`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(t, r, http.MethodPost, "/webhooks", gin.H{
		"name":   "ci-hook",
		"url":    "https://ci.example.com/hook",
		"events": []string{"project.created"},
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotContains(t, resp, "secret")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWebhook_UnknownEvent(t *testing.T) {
	_, r := newRouter(t, caller(), 30)

	w := doJSON(t, r, http.MethodPost, "/webhooks", gin.H{
		"name":   "ci-hook",
		"url":    "https://ci.example.com/hook",
		"events": []string{"deployment.exploded"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "deployment.exploded")
}

func TestCreateWebhook_MissingEvents(t *testing.T) {
	_, r := newRouter(t, caller(), 30)

	w := doJSON(t, r, http.MethodPost, "/webhooks", gin.H{
		"name": "ci-hook",
		"url":  "https://ci.example.com/hook",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetWebhook_NotOwner(t *testing.T) {
	mock, r := newRouter(t, caller(), 30)

	mock.ExpectQuery(`SELECT .* FROM webhooks WHERE id = \$1`).
		WithArgs(sampleWebhookID).
		WillReturnRows(sampleWebhookRow(otherUserID, "https://ci.example.com/hook"))

	w := doJSON(t, r, http.MethodGet, "/webhooks/"+sampleWebhookID, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetWebhook_NotFound(t *testing.T) {
	mock, r := newRouter(t, caller(), 30)

	mock.ExpectQuery(`SELECT .* FROM webhooks WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(webhookCols))

	w := doJSON(t, r, http.MethodGet, "/webhooks/missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateWebhook_RevalidatesEvents(t *testing.T) {
	mock, r := newRouter(t, caller(), 30)

	mock.ExpectQuery(`SELECT .* FROM webhooks WHERE id = \$1`).
		WithArgs(sampleWebhookID).
		WillReturnRows(sampleWebhookRow(sampleUserID, "https://ci.example.com/hook"))

	w := doJSON(t, r, http.MethodPut, "/webhooks/"+sampleWebhookID, gin.H{
		"events": []string{"nonsense.event"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWebhook_Deactivate(t *testing.T) {
	mock, r := newRouter(t, caller(), 30)

	mock.ExpectQuery(`SELECT .* FROM webhooks WHERE id = \$1`).
		WithArgs(sampleWebhookID).
		WillReturnRows(sampleWebhookRow(sampleUserID, "https://ci.example.com/hook"))
	mock.ExpectExec(`UPDATE webhooks SET name = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(t, r, http.MethodPut, "/webhooks/"+sampleWebhookID, gin.H{"is_active": false})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	hook, ok := resp["webhook"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, hook["is_active"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteWebhook(t *testing.T) {
	mock, r := newRouter(t, caller(), 30)

	mock.ExpectQuery(`SELECT .* FROM webhooks WHERE id = \$1`).
		WithArgs(sampleWebhookID).
		WillReturnRows(sampleWebhookRow(sampleUserID, "https://ci.example.com/hook"))
	mock.ExpectExec(`DELETE FROM webhooks WHERE id = \$1`).
		WithArgs(sampleWebhookID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(t, r, http.MethodDelete, "/webhooks/"+sampleWebhookID, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---- Test delivery ----------------------------------------------------------

func TestTestWebhook_DeliversAndRecords(t *testing.T) {
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "webhook.test", req.Header.Get("X-Webhook-Event"))
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	mock, r := newRouter(t, caller(), 30)

	mock.ExpectQuery(`SELECT .* FROM webhooks WHERE id = \$1`).
		WithArgs(sampleWebhookID).
		WillReturnRows(sampleWebhookRow(sampleUserID, receiver.URL))

	// The test delivery is recorded like any real one.
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO webhook_deliveries`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE webhooks SET success_count`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := doJSON(t, r, http.MethodPost, "/webhooks/"+sampleWebhookID+"/test", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result struct {
			Success    bool `json:"success"`
			StatusCode *int `json:"status_code"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Result.Success)
	require.NotNil(t, resp.Result.StatusCode)
	assert.Equal(t, http.StatusOK, *resp.Result.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTestWebhook_ReceiverError(t *testing.T) {
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer receiver.Close()

	mock, r := newRouter(t, caller(), 30)

	mock.ExpectQuery(`SELECT .* FROM webhooks WHERE id = \$1`).
		WithArgs(sampleWebhookID).
		WillReturnRows(sampleWebhookRow(sampleUserID, receiver.URL))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO webhook_deliveries`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE webhooks SET success_count`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := doJSON(t, r, http.MethodPost, "/webhooks/"+sampleWebhookID+"/test", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---- Deliveries and stats ---------------------------------------------------

func TestListDeliveries(t *testing.T) {
	mock, r := newRouter(t, caller(), 30)

	mock.ExpectQuery(`SELECT .* FROM webhooks WHERE id = \$1`).
		WithArgs(sampleWebhookID).
		WillReturnRows(sampleWebhookRow(sampleUserID, "https://ci.example.com/hook"))

	status := 200
	rows := sqlmock.NewRows(deliveryCols).AddRow(
		"dddddddd-0000-0000-0000-000000000001", sampleWebhookID, "deployment.completed",
		`{"project":"my-app"}`, &status, "ok", "", 42, 0, time.Now(),
	)
	mock.ExpectQuery(`SELECT .* FROM webhook_deliveries WHERE webhook_id = \$1`).
		WithArgs(sampleWebhookID, 50).
		WillReturnRows(rows)

	w := doJSON(t, r, http.MethodGet, "/webhooks/"+sampleWebhookID+"/deliveries", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Deliveries []map[string]interface{} `json:"deliveries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Deliveries, 1)
	assert.Equal(t, true, resp.Deliveries[0]["success"])
	// The stored payload is not echoed in the listing.
	assert.NotContains(t, resp.Deliveries[0], "payload")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookStats(t *testing.T) {
	mock, r := newRouter(t, caller(), 30)

	mock.ExpectQuery(`SELECT .* FROM webhooks WHERE id = \$1`).
		WithArgs(sampleWebhookID).
		WillReturnRows(sampleWebhookRow(sampleUserID, "https://ci.example.com/hook"))
	mock.ExpectQuery(`SELECT COUNT\(\*\).*FROM webhook_deliveries WHERE webhook_id = \$1`).
		WithArgs(sampleWebhookID).
		WillReturnRows(sqlmock.NewRows([]string{"count", "successful"}).AddRow(8, 6))

	w := doJSON(t, r, http.MethodGet, "/webhooks/"+sampleWebhookID+"/stats", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Stats struct {
			Total       int     `json:"total"`
			Successful  int     `json:"successful"`
			Failed      int     `json:"failed"`
			SuccessRate float64 `json:"success_rate"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 8, resp.Stats.Total)
	assert.Equal(t, 2, resp.Stats.Failed)
	assert.InDelta(t, 75.0, resp.Stats.SuccessRate, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---- Maintenance ------------------------------------------------------------

func TestRetryFailed_NothingEligible(t *testing.T) {
	mock, r := newRouter(t, caller(), 30)

	mock.ExpectQuery(`SELECT .* FROM webhook_deliveries WHERE status_code IS NULL`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(deliveryCols))

	w := doJSON(t, r, http.MethodPost, "/webhooks/retry-failed", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Report struct {
			Eligible int `json:"eligible"`
			Retried  int `json:"retried"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Report.Eligible)
	assert.Equal(t, 0, resp.Report.Retried)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanup_DefaultRetention(t *testing.T) {
	mock, r := newRouter(t, caller(), 30)

	mock.ExpectExec(`DELETE FROM webhook_deliveries WHERE created_at < \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 12))

	w := doJSON(t, r, http.MethodPost, "/webhooks/cleanup", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 12, resp["deleted"])
	assert.EqualValues(t, 30, resp["days"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanup_DaysOverride(t *testing.T) {
	mock, r := newRouter(t, caller(), 30)

	mock.ExpectExec(`DELETE FROM webhook_deliveries WHERE created_at < \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	w := doJSON(t, r, http.MethodPost, "/webhooks/cleanup?days=7", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 7, resp["days"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanup_RejectsBadDays(t *testing.T) {
	_, r := newRouter(t, caller(), 30)

	w := doJSON(t, r, http.MethodPost, "/webhooks/cleanup?days=zero", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
