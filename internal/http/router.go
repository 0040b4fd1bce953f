package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/expenseflow/internal/authz"
	"github.com/geocoder89/expenseflow/internal/blob"
	"github.com/geocoder89/expenseflow/internal/http/handlers"
	"github.com/geocoder89/expenseflow/internal/http/middlewares"
	"github.com/geocoder89/expenseflow/internal/observability"
	"github.com/geocoder89/expenseflow/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "expenseflow"

type RouterDeps struct {
	Env      string
	Log      *slog.Logger
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	Sessions *session.Manager
	Expenses handlers.ExpenseService

	// Ping probes external dependencies for /readyz; nil means always ready.
	Ping func(ctx context.Context) error
	// ShuttingDown turns /readyz unavailable once shutdown has begun.
	ShuttingDown func() bool

	UploadDir        string
	ReceiptURLPrefix string
	CORSOrigins      []string
	MaxBodyBytes     int64
	LoginLimiter     *middlewares.RateLimiter
	SessionTTL       time.Duration
	CookieSecure     bool
	AllowSwitchUser  bool
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.ReceiptURLPrefix == "" {
		d.ReceiptURLPrefix = blob.DefaultURLPrefix
	}

	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middlewares.RequestID())
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders(d.ReceiptURLPrefix))
	r.Use(middlewares.CORSMiddleware(d.CORSOrigins))

	// health
	h := handlers.NewHealthHandler(d.Ping, d.ShuttingDown)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	if d.UploadDir != "" {
		r.StaticFS(d.ReceiptURLPrefix, http.Dir(d.UploadDir))
	}

	auth := middlewares.NewAuthMiddleware(d.Sessions, d.SessionTTL, d.CookieSecure)
	authHandler := handlers.NewAuthHandler(d.Prom, d.Log, d.AllowSwitchUser)
	expensesHandler := handlers.NewExpensesHandler(d.Expenses, d.Log)

	api := r.Group("/api")
	api.Use(middlewares.MaxBodyBytes(d.MaxBodyBytes))
	api.Use(auth.Session())

	loginLimit := func(c *gin.Context) { c.Next() }
	if d.LoginLimiter != nil {
		loginLimit = d.LoginLimiter.Middleware(middlewares.KeyByIP)
	}

	jsonOnly := middlewares.RequireContentType("application/json")
	jsonOrForm := middlewares.RequireContentType("application/json", "multipart/form-data")
	formOnly := middlewares.RequireContentType("multipart/form-data")

	// session
	api.POST("/auth/login", loginLimit, jsonOnly, authHandler.Login)
	api.POST("/auth/logout", authHandler.Logout)
	api.GET("/auth/session", authHandler.Session)
	api.POST("/auth/switch", jsonOnly, authHandler.SwitchUser)

	// everything below needs a signed-in user
	authed := api.Group("")
	authed.Use(auth.RequireAuth())

	authed.GET("/users", auth.RequireAction(authz.ViewAdminPanel), expensesHandler.Users)
	authed.POST("/uploads", auth.RequireAction(authz.SubmitExpense), formOnly, expensesHandler.Upload)

	authed.GET("/expenses", auth.RequireAction(authz.ViewList), expensesHandler.List)
	authed.POST("/expenses", auth.RequireAction(authz.SubmitExpense), jsonOrForm, expensesHandler.Create)
	authed.GET("/expenses/:id", auth.RequireAction(authz.ViewList), expensesHandler.Get)
	authed.PUT("/expenses/:id", auth.RequireAction(authz.EditOwnExpense), jsonOrForm, expensesHandler.Update)
	authed.POST("/expenses/:id/approve", auth.RequireAction(authz.ApproveReject), jsonOnly, expensesHandler.Approve)
	authed.POST("/expenses/:id/reject", auth.RequireAction(authz.ApproveReject), jsonOnly, expensesHandler.Reject)

	authed.GET("/approvals", auth.RequireAction(authz.ApproveReject), expensesHandler.Approvals)
	authed.GET("/dashboard", auth.RequireAction(authz.ViewDashboard), expensesHandler.Dashboard)

	authed.GET("/admin/summary", auth.RequireAction(authz.ViewAdminPanel), expensesHandler.AdminSummary)
	authed.GET("/admin/export.xlsx", auth.RequireAction(authz.ViewAdminPanel), expensesHandler.Export)

	return r
}
