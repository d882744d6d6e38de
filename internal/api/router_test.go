package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/artifact"
	"github.com/myysophia/artifact-manager/internal/audit"
	"github.com/myysophia/artifact-manager/internal/auth"
	"github.com/myysophia/artifact-manager/internal/config"
	"github.com/myysophia/artifact-manager/internal/db/dbtest"
	"github.com/myysophia/artifact-manager/internal/db/models"
	"github.com/myysophia/artifact-manager/internal/db/seed"
	"github.com/myysophia/artifact-manager/internal/observability"
	"github.com/myysophia/artifact-manager/internal/storage"
	"github.com/myysophia/artifact-manager/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	layout *storage.Layout
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	cfg := config.Default()
	cfg.JWT.SecretKey = "test-secret"
	root := t.TempDir()
	cfg.Storage = config.StorageConfig{
		TestingDir: filepath.Join(root, "testing"),
		CurrentDir: filepath.Join(root, "current"),
		HistoryDir: filepath.Join(root, "history"),
	}

	db := dbtest.New(t)
	require.NoError(t, seed.Run(ctx, db))
	_, err := seed.EnsureAdmin(ctx, db, seed.AdminOptions{
		Username: "admin",
		Email:    "admin@example.com",
		Password: "admin-pass",
	})
	require.NoError(t, err)

	layout, err := storage.NewLayout(&cfg.Storage)
	require.NoError(t, err)
	require.NoError(t, layout.Ensure())

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	authSvc := auth.NewService(db, auth.NewTokenManager(&cfg.JWT), cfg.Auth.DefaultRole)

	router := SetupRouter(Dependencies{
		Config:    cfg,
		DB:        db,
		Auth:      authSvc,
		RBAC:      auth.NewRBAC(db),
		Artifacts: artifact.NewService(db, layout, metrics, cfg.App.MaxUploadSize),
		Audit:     audit.NewRecorder(audit.NewGormStore(db), metrics),
		Metrics:   metrics,
	})
	return &testServer{router: router, db: db, cfg: cfg, layout: layout}
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, req *http.Request, token string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp apiResponse
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func (s *testServer) json(t *testing.T, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return s.do(t, req, token)
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w, resp := s.json(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": username, "password": password}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func (s *testServer) register(t *testing.T, username string) uint {
	t.Helper()
	w, resp := s.json(t, http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": username,
		"password": username + "-pass",
		"email":    username + "@example.com",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var user models.User
	require.NoError(t, json.Unmarshal(resp.Data, &user))
	return user.ID
}

func (s *testServer) roleID(t *testing.T, name string) uint {
	t.Helper()
	var role models.Role
	require.NoError(t, s.db.Where("name = ?", name).First(&role).Error)
	return role.ID
}

func uploadRequest(t *testing.T, fields map[string]string, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/versions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func uploadFields(name, version string) map[string]string {
	return map[string]string{
		"software_name":     name,
		"version":           version,
		"update_notes":      "修复若干问题",
		"test_description":  "冒烟测试",
		"test_result":       "pass",
		"test_duration":     "45",
		"test_completed_at": "2024-05-01T10:00",
		"test_id":           "T-100",
		"developer_dri":     "bob",
	}
}

func countLogs(t *testing.T, db *gorm.DB, username, action, status string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.AuditLog{}).
		Where("username = ? AND action = ? AND status = ?", username, action, status).
		Count(&n).Error)
	return n
}

func TestUploadAndDownloadScenario(t *testing.T) {
	s := newTestServer(t)

	aliceID := s.register(t, "alice")
	aliceToken := s.login(t, "alice", "alice-pass")

	// 访客角色不能上传
	w, _ := s.do(t, uploadRequest(t, uploadFields("App", "1.0"), "App.dll", []byte("MZ-v1")), aliceToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminToken := s.login(t, "admin", "admin-pass")
	w, _ = s.json(t, http.MethodPut, "/api/v1/users/"+itoa(aliceID)+"/role",
		gin.H{"role_id": s.roleID(t, seed.RoleTester)}, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, resp := s.do(t, uploadRequest(t, uploadFields("App", "v1.0"), "App.dll", []byte("MZ-v1")), aliceToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var v1 models.Version
	require.NoError(t, json.Unmarshal(resp.Data, &v1))
	assert.Equal(t, "1.0", v1.Version)
	assert.Equal(t, "alice", v1.UploadedBy)

	w, resp = s.do(t, uploadRequest(t, uploadFields("App", "1.1"), "App.dll", []byte("MZ-v1.1")), aliceToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var v2 models.Version
	require.NoError(t, json.Unmarshal(resp.Data, &v2))

	// 只有最新版本留在 current
	entries, err := os.ReadDir(s.layout.CurrentDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "App_v1.1.dll", entries[0].Name())

	w, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/versions/"+itoa(v2.ID)+"/download", nil), aliceToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MZ-v1.1", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "App_v1.1.dll")

	// 历史版本仍可下载
	w, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/versions/"+itoa(v1.ID)+"/download", nil), aliceToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MZ-v1", w.Body.String())

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/versions", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var listing []artifact.ListItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Len(t, listing, 2)
	assert.Equal(t, "1.1", listing[0].Version)
	assert.Equal(t, int64(1), listing[0].DownloadedCount)
	assert.Equal(t, "App", listing[0].Software)

	assert.Equal(t, int64(1), countLogs(t, s.db, "alice", models.ActionRegister, models.AuditSuccess))
	assert.Equal(t, int64(1), countLogs(t, s.db, "alice", models.ActionLogin, models.AuditSuccess))
	assert.Equal(t, int64(2), countLogs(t, s.db, "alice", models.ActionUpload, models.AuditSuccess))
	assert.Equal(t, int64(2), countLogs(t, s.db, "alice", models.ActionDownload, models.AuditSuccess))
	assert.Equal(t, int64(1), countLogs(t, s.db, "admin", models.ActionUserRoleAssign, models.AuditSuccess))
}

func TestUploadValidationError(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.login(t, "admin", "admin-pass")

	fields := uploadFields("App", "1.0")
	delete(fields, "test_id")
	w, resp := s.do(t, uploadRequest(t, fields, "App.dll", []byte("MZ")), adminToken)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var data struct {
		Field string `json:"field"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "test_id", data.Field)

	w, resp = s.do(t, uploadRequest(t, uploadFields("App", "1.0"), "App.apk", []byte("MZ")), adminToken)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "file", data.Field)

	var count int64
	require.NoError(t, s.db.Model(&models.Version{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, int64(2), countLogs(t, s.db, "admin", models.ActionUpload, models.AuditFailed))
}

func TestLoginLockout(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "bob")

	for i := 0; i < auth.MaxFailedAttempts; i++ {
		w, resp := s.json(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "bob", "password": "wrong"}, "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, utils.CodeInvalidCredentials, resp.Code)
	}

	// 第六次即使密码正确也被拒绝
	w, resp := s.json(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "bob", "password": "bob-pass"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, utils.CodeAccountLocked, resp.Code)

	assert.Equal(t, int64(6), countLogs(t, s.db, "bob", models.ActionLogin, models.AuditFailed))

	// 未知用户的失败也记录在输入的用户名下
	w, resp = s.json(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "ghost", "password": "x"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, utils.CodeInvalidCredentials, resp.Code)
	assert.Equal(t, int64(1), countLogs(t, s.db, "ghost", models.ActionLogin, models.AuditFailed))
}

func TestSessionCookieAndLogout(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "carol")

	w, _ := s.json(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "carol", "password": "carol-pass"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == s.cfg.JWT.CookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/profile", nil)
	req.AddCookie(session)
	w, resp := s.do(t, req, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(resp.Data), `"username":"carol"`)
	assert.Contains(t, string(resp.Data), "file:view")

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(session)
	w, _ = s.do(t, req, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), countLogs(t, s.db, "carol", models.ActionLogout, models.AuditSuccess))
}

func TestProfileUpdate(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "dave")
	token := s.login(t, "dave", "dave-pass")

	w, _ := s.json(t, http.MethodPut, "/api/v1/user/profile", gin.H{
		"department":       "QA",
		"current_password": "bad",
		"new_password":     "new-secret",
	}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := s.json(t, http.MethodPut, "/api/v1/user/profile", gin.H{
		"department":       "QA",
		"current_password": "dave-pass",
		"new_password":     "new-secret",
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(resp.Data), `"department":"QA"`)

	s.login(t, "dave", "new-secret")
	assert.Equal(t, int64(1), countLogs(t, s.db, "dave", models.ActionProfileUpdate, models.AuditSuccess))
	assert.Equal(t, int64(1), countLogs(t, s.db, "dave", models.ActionProfileUpdate, models.AuditFailed))
}

func TestRoleInUseCannotBeDeleted(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "erin")
	adminToken := s.login(t, "admin", "admin-pass")

	w, resp := s.json(t, http.MethodDelete, "/api/v1/roles/"+itoa(s.roleID(t, seed.RoleVisitor)), nil, adminToken)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, utils.CodeRoleInUse, resp.Code)

	w, resp = s.json(t, http.MethodPost, "/api/v1/roles", gin.H{"name": "role_temp", "description": "临时"}, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var role models.Role
	require.NoError(t, json.Unmarshal(resp.Data, &role))

	w, _ = s.json(t, http.MethodDelete, "/api/v1/roles/"+itoa(role.ID), nil, adminToken)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAccessControl(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "frank")
	token := s.login(t, "frank", "frank-pass")

	tests := []struct {
		method string
		path   string
		token  string
		want   int
	}{
		{http.MethodGet, "/api/v1/versions", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/versions", token, http.StatusOK},
		{http.MethodGet, "/api/v1/versions/recent", "", http.StatusOK},
		{http.MethodGet, "/api/v1/versions/99", token, http.StatusNotFound},
		{http.MethodGet, "/api/v1/versions/99/download", token, http.StatusForbidden},
		{http.MethodGet, "/api/v1/analytics", token, http.StatusOK},
		{http.MethodGet, "/api/v1/audit/logs", token, http.StatusForbidden},
		{http.MethodGet, "/api/v1/users", token, http.StatusForbidden},
		{http.MethodGet, "/api/v1/roles", token, http.StatusForbidden},
		{http.MethodGet, "/api/v1/permissions", token, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w, _ := s.do(t, httptest.NewRequest(tt.method, tt.path, nil), tt.token)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	adminToken := s.login(t, "admin", "admin-pass")
	for _, path := range []string{"/api/v1/audit/logs", "/api/v1/users", "/api/v1/roles", "/api/v1/permissions"} {
		w, _ := s.do(t, httptest.NewRequest(http.MethodGet, path, nil), adminToken)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var health struct {
		Status   string            `json:"status"`
		Database string            `json:"database"`
		Storage  map[string]string `json:"storage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "ok", health.Database)
	assert.Equal(t, map[string]string{"testing": "ok", "current": "ok", "history": "ok"}, health.Storage)

	require.NoError(t, os.RemoveAll(s.layout.HistoryDir))
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unhealthy")

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "artifact_http_requests_total")
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
