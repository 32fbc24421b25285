package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"

	apperrors "github.com/wfunc/runner-game/internal/errors"
	"github.com/wfunc/runner-game/internal/utils"
)

// MiddlewareTestSuite 中间件测试套件
type MiddlewareTestSuite struct {
	suite.Suite
	jwt    *utils.JWTManager
	engine *gin.Engine
}

func (suite *MiddlewareTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.jwt = utils.NewJWTManager("test-secret", time.Hour)

	auth := NewAuthMiddleware(suite.jwt)
	suite.engine = gin.New()
	suite.engine.Use(RequestID(), Recovery(), AccessLog())
	suite.engine.GET("/me", auth.RequireAuth(), func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		name, _ := GetUsername(c)
		c.JSON(http.StatusOK, gin.H{"userId": userID, "username": name})
	})
	suite.engine.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
}

func (suite *MiddlewareTestSuite) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	suite.engine.ServeHTTP(w, req)
	return w
}

func (suite *MiddlewareTestSuite) decodeError(w *httptest.ResponseRecorder) apperrors.ErrorResponse {
	var resp apperrors.ErrorResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (suite *MiddlewareTestSuite) TestRequireAuth() {
	token, err := suite.jwt.GenerateAccessToken("user-1", "alice")
	suite.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := suite.do(req)

	suite.Equal(http.StatusOK, w.Code)
	suite.JSONEq(`{"userId":"user-1","username":"alice"}`, w.Body.String())
	suite.NotEmpty(w.Header().Get(RequestIDHeader))
}

func (suite *MiddlewareTestSuite) TestAccessTokenHeader() {
	token, err := suite.jwt.GenerateAccessToken("user-2", "bob")
	suite.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Access-Token", token)
	suite.Equal(http.StatusOK, suite.do(req).Code)
}

func (suite *MiddlewareTestSuite) TestMissingToken() {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := suite.do(req)

	suite.Equal(http.StatusUnauthorized, w.Code)
	resp := suite.decodeError(w)
	suite.Equal(apperrors.ErrAuthentication, resp.Code)
	suite.Equal("req-1", resp.RequestID)
}

func (suite *MiddlewareTestSuite) TestInvalidAndExpiredToken() {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := suite.do(req)
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.Equal(apperrors.ErrTokenInvalid, suite.decodeError(w).Code)

	expired := utils.NewJWTManager("test-secret", -time.Minute)
	token, err := expired.GenerateAccessToken("user-1", "alice")
	suite.Require().NoError(err)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = suite.do(req)
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.Equal(apperrors.ErrTokenExpired, suite.decodeError(w).Code)
}

func (suite *MiddlewareTestSuite) TestRecovery() {
	w := suite.do(httptest.NewRequest(http.MethodGet, "/panic", nil))

	suite.Equal(http.StatusInternalServerError, w.Code)
	suite.Equal(apperrors.ErrUnknown, suite.decodeError(w).Code)
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareTestSuite))
}
