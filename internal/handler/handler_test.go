package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/PhmVu/EBN-Besu/internal/middleware"
	"github.com/PhmVu/EBN-Besu/internal/models"
)

func testContext(t *testing.T, method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestWalletHandlerDiscloseMissingSecret(t *testing.T) {
	h := NewWalletHandler(nil)
	c, w := testContext(t, http.MethodPost, "/wallet/key/disclose", []byte(`{}`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})

	h.Disclose(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApprovalHandlerApproveInvalidBody(t *testing.T) {
	h := NewApprovalHandler(nil)
	c, w := testContext(t, http.MethodPost, "/approvals/apr-1/approve", []byte(`not json`))
	c.Params = gin.Params{{Key: "id", Value: "apr-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})

	h.Approve(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmissionHandlerSubmitInvalidBody(t *testing.T) {
	h := NewSubmissionHandler(nil)
	c, w := testContext(t, http.MethodPost, "/assignments/asg-1/submissions", []byte(`{`))
	c.Params = gin.Params{{Key: "id", Value: "asg-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})

	h.Submit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerLogoutWithoutClaims(t *testing.T) {
	h := NewAuthHandler(nil)
	c, w := testContext(t, http.MethodPost, "/auth/logout", []byte(`{"refresh_token":"tok"}`))

	h.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
