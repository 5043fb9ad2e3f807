package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/evdist-next/internal/authz"
	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/repository"
	"github.com/evdist-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

func openRouterTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Admin{}, &models.Member{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return db
}

func TestResolveAllowedOrigin(t *testing.T) {
	got := resolveAllowedOrigin("https://example.com", []string{"*"}, false)
	if got != "*" {
		t.Fatalf("wildcard without credentials should return *, got %s", got)
	}

	got = resolveAllowedOrigin("https://example.com", []string{"*"}, true)
	if got != "https://example.com" {
		t.Fatalf("wildcard with credentials should echo origin, got %s", got)
	}

	got = resolveAllowedOrigin("https://a.example.com", []string{"https://a.example.com", "https://b.example.com"}, false)
	if got != "https://a.example.com" {
		t.Fatalf("allow-list should return matched origin, got %s", got)
	}

	got = resolveAllowedOrigin("https://x.example.com", []string{"https://a.example.com"}, false)
	if got != "" {
		t.Fatalf("unmatched origin should be empty, got %s", got)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": getRequestID(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "req-123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if w.Header().Get(requestIDHeader) != "req-123" {
		t.Fatalf("response request id want req-123 got %s", w.Header().Get(requestIDHeader))
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp["request_id"] != "req-123" {
		t.Fatalf("context request id want req-123 got %s", resp["request_id"])
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w2, req2)
	generated := w2.Header().Get(requestIDHeader)
	if generated == "" {
		t.Fatalf("generated request id should not be empty")
	}
	if resp := strings.TrimSpace(generated); resp == "" {
		t.Fatalf("generated request id should not be blank")
	}
}

func TestJWTAuthMiddlewareMissingSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(JWTAuthMiddleware("", nil))
	r.GET("/admin/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	var resp struct {
		StatusCode int `json:"status_code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("status_code want 401 got %d", resp.StatusCode)
	}
}

func issueToken(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token failed: %v", err)
	}
	return token
}

func decodeStatusCode(t *testing.T, body []byte) int {
	t.Helper()
	var resp struct {
		StatusCode int `json:"status_code"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	return resp.StatusCode
}

func TestMemberJWTAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openRouterTestDB(t)
	memberRepo := repository.NewMemberRepository(db)
	active := &models.Member{Username: "alice", Status: constants.MemberStatusActive}
	disabled := &models.Member{Username: "bob", Status: constants.MemberStatusDisabled}
	for _, m := range []*models.Member{active, disabled} {
		if err := memberRepo.Create(m); err != nil {
			t.Fatalf("create member failed: %v", err)
		}
	}

	const secret = "member-secret"
	r := gin.New()
	r.Use(MemberJWTAuthMiddleware(secret, memberRepo))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status_code": 0, "member_id": c.GetUint(memberIDContextKey)})
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", 401},
		{"malformed", "Token abc", 401},
		{"wrong_secret", "Bearer " + issueToken(t, "other", &service.MemberJWTClaims{MemberID: active.ID}), 401},
		{"disabled", "Bearer " + issueToken(t, secret, &service.MemberJWTClaims{MemberID: disabled.ID}), 401},
		{"unknown", "Bearer " + issueToken(t, secret, &service.MemberJWTClaims{MemberID: 999}), 401},
		{"active", "Bearer " + issueToken(t, secret, &service.MemberJWTClaims{MemberID: active.ID}), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			if got := decodeStatusCode(t, w.Body.Bytes()); got != tc.want {
				t.Fatalf("status_code want %d got %d body=%s", tc.want, got, w.Body.String())
			}
		})
	}
}

func TestJWTAuthMiddlewareTokenVersion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openRouterTestDB(t)
	adminRepo := repository.NewAdminRepository(db)
	admin := &models.Admin{Username: "root", PasswordHash: "x", TokenVersion: 2, IsSuper: true}
	if err := adminRepo.Create(admin); err != nil {
		t.Fatalf("create admin failed: %v", err)
	}

	const secret = "admin-secret"
	r := gin.New()
	r.Use(JWTAuthMiddleware(secret, adminRepo))
	r.GET("/admin/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status_code": 0, "is_super": c.GetBool(adminIsSuperContextKey)})
	})

	stale := issueToken(t, secret, &service.JWTClaims{AdminID: admin.ID, TokenVersion: 1})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+stale)
	r.ServeHTTP(w, req)
	if got := decodeStatusCode(t, w.Body.Bytes()); got != 401 {
		t.Fatalf("stale token should be revoked, got %d", got)
	}

	current := issueToken(t, secret, &service.JWTClaims{AdminID: admin.ID, TokenVersion: 2})
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+current)
	r.ServeHTTP(w, req)
	if got := decodeStatusCode(t, w.Body.Bytes()); got != 0 {
		t.Fatalf("current token should pass, got %d body=%s", got, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"is_super":true`) {
		t.Fatalf("super flag not propagated: %s", w.Body.String())
	}
}

func TestAdminRBACMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openRouterTestDB(t)
	authzService, err := authz.NewService(db)
	if err != nil {
		t.Fatalf("init authz failed: %v", err)
	}
	if err := authzService.SetAdminRoles(7, []string{authz.RoleAuditor}); err != nil {
		t.Fatalf("set roles failed: %v", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap roles failed: %v", err)
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("admin_id", uint(7))
		c.Set(adminIsSuperContextKey, c.GetHeader("X-Super") == "1")
		c.Next()
	})
	r.Use(AdminRBACMiddleware(authzService))
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status_code": 0}) }
	r.GET("/api/v1/admin/binary/nodes/:user_id", ok)
	r.POST("/api/v1/admin/binary/match-all", ok)

	cases := []struct {
		name   string
		method string
		path   string
		super  bool
		want   int
	}{
		{"auditor_read", http.MethodGet, "/api/v1/admin/binary/nodes/3", false, 0},
		{"auditor_write", http.MethodPost, "/api/v1/admin/binary/match-all", false, 403},
		{"super_write", http.MethodPost, "/api/v1/admin/binary/match-all", true, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.super {
				req.Header.Set("X-Super", "1")
			}
			r.ServeHTTP(w, req)
			if got := decodeStatusCode(t, w.Body.Bytes()); got != tc.want {
				t.Fatalf("status_code want %d got %d", tc.want, got)
			}
		})
	}
}

func TestDeriveAdminPermissionModule(t *testing.T) {
	cases := map[string]string{
		"/admin/binary/nodes/:user_id": "nodes",
		"/admin/authz/roles":           "authz",
		"/admin/me":                    "me",
		"/":                            "system",
	}
	for object, want := range cases {
		if got := deriveAdminPermissionModule(object); got != want {
			t.Fatalf("module for %s want %s got %s", object, want, got)
		}
	}
}
