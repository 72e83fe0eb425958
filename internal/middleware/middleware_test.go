package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/config"
)

func TestAdminAuthRejectsMissingKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runtime := config.NewRuntime()
	runtime.Reload(map[string]string{"ADMIN_API_KEY": "secret"})

	r := gin.New()
	r.Use(AdminAuth(runtime))
	r.GET("/admin/users", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAdminAuthAcceptsCorrectKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runtime := config.NewRuntime()
	runtime.Reload(map[string]string{"ADMIN_API_KEY": "secret"})

	r := gin.New()
	r.Use(AdminAuth(runtime))
	r.GET("/admin/users", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	req.Header.Set("x-admin-key", "secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAdminAuthRejectsWrongKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runtime := config.NewRuntime()
	runtime.Reload(map[string]string{"ADMIN_API_KEY": "secret"})

	r := gin.New()
	r.Use(AdminAuth(runtime))
	r.GET("/admin/users", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	req.Header.Set("x-admin-key", "wrong")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
