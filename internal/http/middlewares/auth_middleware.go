package middlewares

import (
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/expenseflow/internal/actorctx"
	"github.com/geocoder89/expenseflow/internal/domain/user"
	"github.com/geocoder89/expenseflow/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ScopeCookie names the client scope; each scope owns one session.
	ScopeCookie = "expense_scope"
	// ScopeHeader lets non-browser clients pick a scope without cookies. It is
	// echoed on every response so those clients can follow a rotated scope.
	ScopeHeader = "X-Session-Scope"
)

type AuthMiddleware struct {
	sessions     *session.Manager
	cookieTTL    time.Duration
	cookieSecure bool
}

func NewAuthMiddleware(sessions *session.Manager, cookieTTL time.Duration, cookieSecure bool) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, cookieTTL: cookieTTL, cookieSecure: cookieSecure}
}

// Session resolves the caller's scope, issuing a fresh one when absent or
// malformed, and attaches the scope's restored session to the context.
func (m *AuthMiddleware) Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := scopeFrom(c)
		if scope == "" {
			scope = uuid.NewString()
		}

		m.issueScope(c, scope)
		c.Set(string(ctxScopeIssuer), func(scope string) { m.issueScope(c, scope) })

		s := m.sessions.Get(c.Request.Context(), scope)
		c.Set(string(CtxSession), s)

		if u, ok := s.Current(c.Request.Context()); ok {
			c.Set(string(CtxUser), u)
			c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), u.ID))
		}

		c.Next()
	}
}

// issueScope sets the scope cookie and header, replacing any scope issued
// earlier in the same response.
func (m *AuthMiddleware) issueScope(c *gin.Context, scope string) {
	h := c.Writer.Header()
	var kept []string
	for _, v := range h.Values("Set-Cookie") {
		if !strings.HasPrefix(v, ScopeCookie+"=") {
			kept = append(kept, v)
		}
	}
	h.Del("Set-Cookie")
	for _, v := range kept {
		h.Add("Set-Cookie", v)
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ScopeCookie, scope, int(m.cookieTTL.Seconds()), "/", "", m.cookieSecure, true)
	c.Header(ScopeHeader, scope)
}

// IssueScope hands the client the scope its session moved to. Call it before
// writing the response body.
func IssueScope(c *gin.Context, scope string) {
	if v, ok := c.Get(string(ctxScopeIssuer)); ok {
		if issue, ok := v.(func(string)); ok {
			issue(scope)
		}
	}
}

// RequireAuth rejects requests whose session has no signed-in user.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserFromContext(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "unauthorized",
					"message": "Sign in to continue",
				},
			})
			return
		}
		c.Next()
	}
}

func scopeFrom(c *gin.Context) string {
	raw := c.GetHeader(ScopeHeader)
	if raw == "" {
		raw, _ = c.Cookie(ScopeCookie)
	}
	if raw == "" {
		return ""
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return ""
	}
	return id.String()
}

// Helpers so handlers don't need to know the context keys.

func SessionFromContext(c *gin.Context) (*session.Session, bool) {
	v, ok := c.Get(string(CtxSession))
	if !ok {
		return nil, false
	}
	s, ok := v.(*session.Session)
	return s, ok && s != nil
}

func UserFromContext(c *gin.Context) (user.User, bool) {
	v, ok := c.Get(string(CtxUser))
	if !ok {
		return user.User{}, false
	}
	u, ok := v.(user.User)
	return u, ok
}

func UserIDFromContext(c *gin.Context) (string, bool) {
	u, ok := UserFromContext(c)
	if !ok {
		return "", false
	}
	return u.ID, u.ID != ""
}
