package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/PhmVu/EBN-Besu/internal/middleware"
	"github.com/PhmVu/EBN-Besu/internal/models"
	"github.com/PhmVu/EBN-Besu/internal/service"
)

// Handlers bundles every HTTP handler for route registration.
type Handlers struct {
	Auth        *AuthHandler
	Classes     *ClassHandler
	Approvals   *ApprovalHandler
	Assignments *AssignmentHandler
	Submissions *SubmissionHandler
	Wallet      *WalletHandler
	Users       *UserHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts the API surface on the engine.
func RegisterRoutes(r *gin.Engine, prefix string, authService *service.AuthService, h Handlers) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))
	{
		authed.POST("/auth/logout", h.Auth.Logout)
		authed.POST("/auth/change-password", h.Auth.ChangePassword)
		authed.GET("/auth/me", h.Auth.Me)

		authed.GET("/wallet/key", h.Wallet.Status)
		authed.POST("/wallet/key/disclose", h.Wallet.Disclose)

		teacherOnly := middleware.RequireRoles(models.RoleTeacher)
		studentOnly := middleware.RequireRoles(models.RoleStudent)

		classes := authed.Group("/classes")
		{
			classes.GET("", h.Classes.List)
			classes.POST("", teacherOnly, h.Classes.Create)
			classes.GET("/mine", studentOnly, h.Classes.ListMine)
			classes.GET("/code/:code", h.Classes.GetByCode)
			classes.GET("/:id", h.Classes.Get)
			classes.GET("/:id/ledger", h.Classes.LedgerInfo)
			classes.POST("/:id/close", teacherOnly, h.Classes.Close)
			classes.POST("/:id/invite", teacherOnly, h.Classes.BulkInvite)

			classes.POST("/:id/enrollment/request", studentOnly, h.Approvals.Request)
			classes.GET("/:id/enrollment/status", studentOnly, h.Approvals.Status)
			classes.GET("/:id/approvals", teacherOnly, h.Approvals.ListPending)
			classes.GET("/:id/students", teacherOnly, h.Classes.Roster)
			classes.DELETE("/:id/students/:studentId", teacherOnly, h.Approvals.RemoveStudent)

			classes.POST("/:id/assignments", teacherOnly, h.Assignments.Create)
			classes.GET("/:id/assignments", h.Assignments.ListByClass)

			classes.GET("/:id/scores/mine", studentOnly, h.Submissions.MyScores)
			classes.GET("/:id/scores/export", teacherOnly, h.Classes.ExportScores)
		}

		users := authed.Group("/users")
		{
			users.GET("", teacherOnly, h.Users.List)
			users.GET("/wallet/:address", teacherOnly, h.Users.ResolveWallet)
		}

		approvals := authed.Group("/approvals")
		{
			approvals.POST("/:id/approve", teacherOnly, h.Approvals.Approve)
			approvals.POST("/:id/reject", teacherOnly, h.Approvals.Reject)
		}

		assignments := authed.Group("/assignments")
		{
			assignments.GET("/:id", h.Assignments.Get)
			assignments.PUT("/:id", teacherOnly, h.Assignments.Update)
			assignments.DELETE("/:id", teacherOnly, h.Assignments.Delete)

			assignments.POST("/:id/submissions", studentOnly, h.Submissions.Submit)
			assignments.GET("/:id/submissions", teacherOnly, h.Submissions.ListSubmissions)
			assignments.GET("/:id/submissions/mine", studentOnly, h.Submissions.MySubmission)

			assignments.POST("/:id/scores", teacherOnly, h.Submissions.RecordScore)
			assignments.GET("/:id/scores", teacherOnly, h.Submissions.ListScores)
			assignments.GET("/:id/scores/:studentId/ledger", h.Submissions.ReadScore)
		}
	}
}
