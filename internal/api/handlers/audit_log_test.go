package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/db/dbtest"
	"github.com/myysophia/artifact-manager/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestListAuditLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gdb, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "logs" WHERE action = \$1 AND status = \$2`).
		WithArgs(models.ActionLogin, models.AuditFailed).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	now := time.Now()
	logRows := sqlmock.NewRows([]string{"id", "user_id", "username", "action", "resource_type", "resource_id", "ip_address", "user_agent", "status", "message", "created_at"}).
		AddRow(2, nil, "mallory", models.ActionLogin, models.ResourceUser, "", "127.0.0.1", "test-agent", models.AuditFailed, "用户名或密码错误", now).
		AddRow(1, 1, "alice", models.ActionLogin, models.ResourceUser, "1", "127.0.0.1", "test-agent", models.AuditFailed, "用户名或密码错误", now)
	mock.ExpectQuery(`SELECT \* FROM "logs" WHERE action = \$1 AND status = \$2 ORDER BY created_at DESC,id DESC`).
		WillReturnRows(logRows)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/audit/logs?page=1&page_size=10&action=LOGIN&status=failed", nil)

	handler := NewAuditLogHandler(NewBaseHandler(nil), gdb)
	handler.ListAuditLogs(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Code int `json:"code"`
		Data struct {
			Total    int64             `json:"total"`
			Page     int               `json:"page"`
			PageSize int               `json:"page_size"`
			Items    []models.AuditLog `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 200, response.Code)
	assert.Equal(t, int64(2), response.Data.Total)
	assert.Equal(t, 10, response.Data.PageSize)
	require.Len(t, response.Data.Items, 2)
	assert.Nil(t, response.Data.Items[0].UserID)
	assert.Equal(t, "mallory", response.Data.Items[0].Username)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAuditLogsBadTime(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/audit/logs?start_time=yesterday", nil)

	handler := NewAuditLogHandler(NewBaseHandler(nil), dbtest.New(t))
	handler.ListAuditLogs(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
