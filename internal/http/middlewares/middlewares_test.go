package middlewares

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/expenseflow/internal/authz"
	"github.com/geocoder89/expenseflow/internal/domain/user"
	"github.com/geocoder89/expenseflow/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDirectory struct {
	users map[string]user.User
}

func (d stubDirectory) Authenticate(ctx context.Context, email, password string) (user.User, error) {
	return user.User{}, user.ErrNotFound
}

func (d stubDirectory) ByID(ctx context.Context, id string) (user.User, error) {
	u, ok := d.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (d stubDirectory) TouchLogin(ctx context.Context, id string, at time.Time) (user.User, error) {
	return d.ByID(ctx, id)
}

func newAuth(t *testing.T, saved map[string]string) *AuthMiddleware {
	t.Helper()

	store := session.NewMemoryStore(time.Hour)
	for scope, id := range saved {
		require.NoError(t, store.Save(context.Background(), scope, id))
	}

	dir := stubDirectory{users: map[string]user.User{
		"1": {ID: "1", Name: "Emp", Role: user.RoleEmployee},
		"3": {ID: "3", Name: "Admin", Role: user.RoleAdmin},
	}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewAuthMiddleware(session.NewManager(store, dir, log, session.Options{}), time.Hour, false)
}

const (
	empScope   = "5b0c4a8e-2d0a-4a43-9a55-8a7c2f1e0001"
	adminScope = "5b0c4a8e-2d0a-4a43-9a55-8a7c2f1e0003"
)

func serve(r http.Handler, method, path, scope string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if scope != "" {
		req.AddCookie(&http.Cookie{Name: ScopeCookie, Value: scope})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSessionAndRequireAction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := newAuth(t, map[string]string{empScope: "1", adminScope: "3"})

	r := gin.New()
	r.Use(auth.Session())
	r.GET("/me", auth.RequireAuth(), func(c *gin.Context) {
		u, _ := UserFromContext(c)
		c.String(http.StatusOK, u.ID)
	})
	r.GET("/admin", auth.RequireAction(authz.ViewAdminPanel), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := serve(r, http.MethodGet, "/me", empScope)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "not-a-uuid").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin", empScope).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/admin", adminScope).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin", "").Code)
}

func TestSession_ReissuesMalformedScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := newAuth(t, nil)

	r := gin.New()
	r.Use(auth.Session())
	r.GET("/", func(c *gin.Context) {
		s, ok := SessionFromContext(c)
		require.True(t, ok)
		c.String(http.StatusOK, s.Scope())
	})

	w := serve(r, http.MethodGet, "/", "../../etc/passwd")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, "../../etc/passwd", w.Body.String())
	assert.Len(t, w.Body.String(), 36)

	w = serve(r, http.MethodGet, "/", empScope)
	assert.Equal(t, empScope, w.Body.String())
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	now := time.Date(2025, 8, 20, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/login", rl.Middleware(KeyByIP), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/login", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/login", "").Code)

	w := serve(r, http.MethodPost, "/login", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	now = now.Add(61 * time.Second)
	assert.Equal(t, 1, rl.Prune())
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/login", "").Code)
}

func TestRateLimiter_ZeroLimitDisables(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0, time.Minute)

	r := gin.New()
	r.POST("/login", rl.Middleware(KeyByIP), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/login", "").Code)
	}
}

func TestRequireContentType(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/x", RequireContentType("application/json", "multipart/form-data"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	send := func(ct string, body string) int {
		req := httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString(body))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, send("application/json; charset=utf-8", "{}"))
	assert.Equal(t, http.StatusNoContent, send("multipart/form-data; boundary=x", "--x--"))
	assert.Equal(t, http.StatusNoContent, send("", ""))
	assert.Equal(t, http.StatusUnsupportedMediaType, send("text/plain", "hi"))
	assert.Equal(t, http.StatusUnsupportedMediaType, send("", "hi"))
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(SecurityHeaders("/uploads/receipts"))
	r.GET("/*path", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/api/expenses", "")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, defaultCSP, w.Header().Get("Content-Security-Policy"))

	w = serve(r, http.MethodGet, "/uploads/receipts/a.png", "")
	assert.Equal(t, receiptCSP, w.Header().Get("Content-Security-Policy"))
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var logged bytes.Buffer
	r := gin.New()
	r.Use(RequestID(), RequestLogger(slog.New(slog.NewJSONHandler(&logged, nil))))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc", w.Header().Get(requestIDHeader))
	assert.Contains(t, logged.String(), `"request_id":"abc"`)

	w = serve(r, http.MethodGet, "/", "")
	assert.Len(t, w.Header().Get(requestIDHeader), 36)
}
