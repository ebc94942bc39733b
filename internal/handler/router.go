package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schoolreg/internal/apierr"
	"schoolreg/internal/audit"
	"schoolreg/internal/auth"
	"schoolreg/internal/httpmiddleware"
	"schoolreg/internal/logging"
	"schoolreg/internal/users"
)

// NewRouter wires every route with its rate limit, authentication and audit action.
func NewRouter(h *Handler, limiter *httpmiddleware.Limiter) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		logging.Error().Interface("panic", rec).Str("path", c.Request.URL.Path).Msg("recovered from panic")
		apierr.Write(c, http.StatusInternalServerError, apierr.CodeInternalError, "Internal server error")
	}))
	r.Use(httpmiddleware.RequestID())
	r.Use(logging.GinLogger("/healthz", "/metrics"))
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.SecurityHeaders(h.opts.Production))
	r.Use(httpmiddleware.CORS(h.opts.CORSOrigins))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Health)
	if h.opts.UploadDir != "" {
		r.Static(uploadsPrefix, h.opts.UploadDir)
	}

	rec := func(action string) gin.HandlerFunc { return audit.Middleware(h.recorder, action) }
	requireAuth := auth.RequireAuth(h.auth)
	adminOnly := auth.RequireRole(users.RoleAdmin)
	staff := auth.RequireRole(users.RoleAdmin, users.RoleStaff)
	authLimit := limiter.Middleware(httpmiddleware.AuthPolicy)

	api := r.Group("/api", limiter.Middleware(httpmiddleware.GeneralPolicy))
	api.GET("/health", h.Health)

	authGroup := api.Group("/auth", authLimit)
	authGroup.POST("/login", rec(audit.ActionLoginAttempt), h.Login)
	authGroup.GET("/me", requireAuth, h.Me)

	st := api.Group("/students")
	st.POST("/register", limiter.Middleware(httpmiddleware.RegistrationPolicy), rec(audit.ActionRegisterStudent), h.RegisterStudent)
	st.GET("", rec(audit.ActionViewStudents), h.ListStudents)
	st.GET("/:id", rec(audit.ActionViewStudent), h.GetStudent)
	st.PUT("/:id", requireAuth, staff, rec(audit.ActionUpdateStudent), h.UpdateStudent)
	st.DELETE("/:id", requireAuth, adminOnly, rec(audit.ActionDeleteStudent), h.DeleteStudent)

	admin := api.Group("/admin", requireAuth, adminOnly)
	admin.GET("/stats", rec(audit.ActionViewStats), h.Stats)
	admin.GET("/export/excel", rec(audit.ActionExportExcel), h.ExportExcel)
	admin.GET("/export/pdf/:id", rec(audit.ActionExportPDF), h.ExportPDF)
	admin.GET("/audit-logs", rec(audit.ActionViewAuditLogs), h.AuditLogs)
	admin.GET("/security-alerts", rec(audit.ActionViewSecurityAlerts), h.SecurityAlerts)
	admin.GET("/recent-activity", rec(audit.ActionViewRecentActivity), h.RecentActivity)

	u := api.Group("/users", requireAuth, adminOnly)
	u.PUT("/change-password", rec(audit.ActionChangeOwnPassword), h.ChangeOwnPassword)
	u.GET("", rec(audit.ActionViewUsers), h.ListUsers)
	u.POST("", rec(audit.ActionCreateUser), h.CreateUser)
	u.PUT("/:id/password", rec(audit.ActionChangePassword), h.ResetPassword)
	u.DELETE("/:id", rec(audit.ActionDeleteUser), h.DeleteUser)

	r.NoRoute(func(c *gin.Context) {
		apierr.NotFound(c, "Route not found")
	})
	return r
}
