package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, HTTPStatus(CodeSuccess))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(CodeAccountLocked))
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeRoleInUse))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(CodeVersionNotFound))
	assert.Equal(t, http.StatusRequestEntityTooLarge, HTTPStatus(CodeFileTooLarge))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeStorageError))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(999))
}

func TestResponseError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

	ResponseError(c, CodeRoleInUse, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, c.IsAborted())
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, CodeRoleInUse, resp.Code)
	assert.Equal(t, "角色正在使用中", resp.Message)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
	ResponseError(c, CodeInvalidParams, errors.New("版本号不能为空"))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "版本号不能为空", resp.Message)
}

type loginForm struct {
	Username   string `json:"username" validate:"required,username"`
	Password   string `json:"password" validate:"required,min=6"`
	TestResult string `json:"test_result" validate:"test_result"`
}

func TestBindAndValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bind := func(body string) error {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")
		var form loginForm
		return BindAndValidate(c, &form)
	}

	assert.NoError(t, bind(`{"username":"alice","password":"secret1"}`))

	err := bind(`{"username":"","password":"secret1"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username")

	err = bind(`{"username":"al ice","password":"secret1"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "只能包含")

	err = bind(`{"username":"alice","password":"secret1","test_result":"maybe"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pass、fail 或 blocked")

	assert.Error(t, bind(`{not json`))
}
