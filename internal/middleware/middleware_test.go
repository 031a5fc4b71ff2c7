package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/livecore/internal/auth"
	"github.com/aura-webinar/livecore/internal/models"
)

func newTestRouter(jwtSvc *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	whoami := func(c *gin.Context) {
		id, ok := UserID(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, id.String())
	}
	r.GET("/required", JWT(jwtSvc), whoami)
	r.GET("/optional", OptionalJWT(jwtSvc), whoami)
	r.GET("/admins", JWT(jwtSvc), RequireRole(models.RoleAdmin), whoami)
	r.GET("/mods", JWT(jwtSvc), RequireStaff(), whoami)
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	svc := auth.NewJWTService("s", 1)
	r := newTestRouter(svc)
	id := uuid.New()
	token, err := svc.Generate(auth.UserIdentity{ID: id, Role: "viewer"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/required", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/required", "garbage").Code)

	w := get(r, "/required", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id.String(), w.Body.String())
}

func TestOptionalJWTFallsBackToAnonymous(t *testing.T) {
	svc := auth.NewJWTService("s", 1)
	r := newTestRouter(svc)

	assert.Equal(t, "anonymous", get(r, "/optional", "").Body.String())
	assert.Equal(t, "anonymous", get(r, "/optional", "garbage").Body.String())

	id := uuid.New()
	token, _ := svc.Generate(auth.UserIdentity{ID: id})
	assert.Equal(t, id.String(), get(r, "/optional", token).Body.String())
}

func TestRequireRole(t *testing.T) {
	svc := auth.NewJWTService("s", 1)
	r := newTestRouter(svc)

	viewer, _ := svc.Generate(auth.UserIdentity{ID: uuid.New(), Role: "viewer"})
	mod, _ := svc.Generate(auth.UserIdentity{ID: uuid.New(), Role: "moderator"})
	assert.Equal(t, http.StatusForbidden, get(r, "/mods", viewer).Code)
	assert.Equal(t, http.StatusOK, get(r, "/mods", mod).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/admins", mod).Code)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("https://app.example.com, https://studio.example.com"))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://studio.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://studio.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
