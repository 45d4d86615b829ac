package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"anoa.com/promptvault/internal/entity"
	userRepo "anoa.com/promptvault/internal/modules/user/repository"
	"anoa.com/promptvault/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func newRouter(t *testing.T) (*gin.Engine, *entity.User, *entity.User) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.OpenDB(t)

	member := testutil.CreateUser(t, db, "member")
	var adminRole entity.Role
	require.NoError(t, db.Where("name = ?", entity.RoleAdmin).First(&adminRole).Error)
	admin := &entity.User{Username: "root", Email: "root@example.com", RoleID: &adminRole.ID}
	require.NoError(t, db.Create(admin).Error)

	auth := NewAuthMiddleware(userRepo.NewUserRepository(db), secret)
	router := gin.New()
	router.GET("/me", auth.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user_id"))
	})
	router.GET("/viewer", auth.OptionalAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, "viewer=%s", c.GetString("user_id"))
	})
	router.GET("/admin", auth.RequireAuth(), auth.RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router, member, admin
}

func sign(t *testing.T, key, subject string, expires time.Time, method jwt.SigningMethod) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: subject, ExpiresAt: jwt.NewNumericDate(expires)}
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func call(router *gin.Engine, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	router, member, _ := newRouter(t)
	hour := time.Now().Add(time.Hour)

	valid, err := IssueToken(secret, member.ID.String(), jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(hour)})
	require.NoError(t, err)

	rec := call(router, "/me", "Bearer "+valid)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, member.ID.String(), rec.Body.String())

	cases := map[string]string{
		"missing header":  "",
		"wrong scheme":    "Basic " + valid,
		"wrong secret":    "Bearer " + sign(t, "other", member.ID.String(), hour, jwt.SigningMethodHS256),
		"expired":         "Bearer " + sign(t, secret, member.ID.String(), time.Now().Add(-time.Minute), jwt.SigningMethodHS256),
		"other algorithm": "Bearer " + sign(t, secret, member.ID.String(), hour, jwt.SigningMethodHS512),
		"non-uuid sub":    "Bearer " + sign(t, secret, "alice", hour, jwt.SigningMethodHS256),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, http.StatusUnauthorized, call(router, "/me", header).Code)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	router, member, admin := newRouter(t)
	hour := time.Now().Add(time.Hour)

	rec := call(router, "/admin", "Bearer "+sign(t, secret, member.ID.String(), hour, jwt.SigningMethodHS256))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(router, "/admin", "Bearer "+sign(t, secret, admin.ID.String(), hour, jwt.SigningMethodHS256))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(router, "/admin", "Bearer "+sign(t, secret, uuid.NewString(), hour, jwt.SigningMethodHS256))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuth(t *testing.T) {
	router, member, _ := newRouter(t)
	hour := time.Now().Add(time.Hour)

	rec := call(router, "/viewer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "viewer=", rec.Body.String())

	rec = call(router, "/viewer", "Bearer "+sign(t, secret, member.ID.String(), hour, jwt.SigningMethodHS256))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "viewer="+member.ID.String(), rec.Body.String())

	rec = call(router, "/viewer", "Bearer "+sign(t, "other", member.ID.String(), hour, jwt.SigningMethodHS256))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
