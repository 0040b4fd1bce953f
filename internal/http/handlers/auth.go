package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/expenseflow/internal/authz"
	"github.com/geocoder89/expenseflow/internal/domain/user"
	"github.com/geocoder89/expenseflow/internal/http/middlewares"
	"github.com/geocoder89/expenseflow/internal/identity"
	"github.com/geocoder89/expenseflow/internal/observability"
	"github.com/geocoder89/expenseflow/internal/session"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	prom        *observability.Prom
	log         *slog.Logger
	allowSwitch bool
}

func NewAuthHandler(prom *observability.Prom, log *slog.Logger, allowSwitch bool) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{prom: prom, log: log, allowSwitch: allowSwitch}
}

type LoginRequest struct {
	// format is not checked here so every bad credential gets the same answer
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SwitchUserRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type SessionResponse struct {
	User            *user.User  `json:"user"`
	IsAuthenticated bool        `json:"isAuthenticated"`
	IsLoading       bool        `json:"isLoading"`
	Tabs            []authz.Tab `json:"tabs"`
}

func sessionResponse(st session.State) SessionResponse {
	resp := SessionResponse{
		User:            st.User,
		IsAuthenticated: st.IsAuthenticated,
		IsLoading:       st.IsLoading,
		Tabs:            []authz.Tab{},
	}
	if st.User != nil {
		resp.Tabs = authz.Tabs(st.User.Role)
	}
	return resp
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	s, ok := middlewares.SessionFromContext(ctx)
	if !ok {
		RespondInternal(ctx, "Session unavailable")
		return
	}

	_, err := s.Login(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.countLogin("failure")
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.log.InfoContext(ctx.Request.Context(), "login rejected", "client_ip", ctx.ClientIP())
		}
		RespondDomainError(ctx, h.log, err)
		return
	}

	h.countLogin("success")
	middlewares.IssueScope(ctx, s.Scope())
	ctx.JSON(http.StatusOK, sessionResponse(s.State(ctx.Request.Context())))
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	if s, ok := middlewares.SessionFromContext(ctx); ok {
		s.Logout(ctx.Request.Context())
	}
	ctx.Status(http.StatusNoContent)
}

func (h *AuthHandler) Session(ctx *gin.Context) {
	s, ok := middlewares.SessionFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusOK, sessionResponse(session.State{}))
		return
	}
	ctx.JSON(http.StatusOK, sessionResponse(s.State(ctx.Request.Context())))
}

// SwitchUser is a demo shortcut that signs in as another known user without
// a password. It answers 404 unless enabled in configuration.
func (h *AuthHandler) SwitchUser(ctx *gin.Context) {
	if !h.allowSwitch {
		RespondNotFound(ctx, "Not found")
		return
	}

	s, ok := middlewares.SessionFromContext(ctx)
	if !ok {
		RespondInternal(ctx, "Session unavailable")
		return
	}

	var req SwitchUserRequest
	if !BindJSON(ctx, &req) {
		return
	}

	if _, err := s.SwitchUser(ctx.Request.Context(), req.UserID); err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}
	middlewares.IssueScope(ctx, s.Scope())

	ctx.JSON(http.StatusOK, sessionResponse(s.State(ctx.Request.Context())))
}

func (h *AuthHandler) countLogin(result string) {
	if h.prom != nil {
		h.prom.Logins.WithLabelValues(result).Inc()
	}
}
