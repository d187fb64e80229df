package routes

import (
	"namlend/internal/adapters/http/handlers"
	"namlend/internal/adapters/http/middleware"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
)

// Deps are what the routes dispatch to
type Deps struct {
	Mode          string
	DBPing        func() error
	Breakers      *rpc.Registry
	Auth          *services.AuthService
	Approvals     *services.ApprovalService
	Disbursements *services.DisbursementService
	Schedule      *services.ScheduleService
	Roles         *services.RoleService
}

// Setup configures all routes for the application
func Setup(app *fiber.App, d Deps) {
	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(d.Mode, d.DBPing, d.Breakers)
	authHandler := handlers.NewAuthHandler(d.Auth)
	approvalHandler := handlers.NewApprovalHandler(d.Approvals)
	disbursementHandler := handlers.NewDisbursementHandler(d.Disbursements)
	scheduleHandler := handlers.NewScheduleHandler(d.Schedule)
	roleHandler := handlers.NewRoleHandler(d.Roles)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// API v1 group
	apiV1 := app.Group("/api/v1")
	apiV1.Get("/", healthHandler.APIInfo)

	// Auth routes (public except /me)
	authRoutes := apiV1.Group("/auth")
	setupAuthRoutes(authRoutes, authHandler, d.Auth)

	// Everything below requires an access token
	protected := apiV1.Group("", middleware.AuthMiddleware(d.Auth))
	setupApprovalRoutes(protected, approvalHandler)
	setupDisbursementRoutes(protected, disbursementHandler)
	setupScheduleRoutes(protected, scheduleHandler)
	setupRoleRoutes(protected, roleHandler)
}

// setupAuthRoutes configures authentication routes
func setupAuthRoutes(router fiber.Router, handler *handlers.AuthHandler, tokens middleware.TokenValidator) {
	router.Post("/register", middleware.AuthRateLimiter(), handler.Register)
	router.Post("/login", middleware.AuthRateLimiter(), handler.Login)

	router.Get("/me", middleware.AuthMiddleware(tokens), handler.Me)
}

// setupApprovalRoutes configures loan application and workflow routes
func setupApprovalRoutes(router fiber.Router, handler *handlers.ApprovalHandler) {
	router.Post("/loans", handler.Apply)

	approvals := router.Group("/approvals")
	approvals.Post("/", handler.Start)
	approvals.Get("/:id", handler.GetRequest)
	approvals.Post("/:id/cancel", handler.Cancel)

	stages := router.Group("/approval-stages")
	stages.Get("/:id", handler.GetStage)
	stages.Post("/:id/approve", handler.ApproveStage)
	stages.Post("/:id/reject", handler.RejectStage)
}

// setupDisbursementRoutes configures disbursement routes (Officer/Admin)
func setupDisbursementRoutes(router fiber.Router, handler *handlers.DisbursementHandler) {
	router.Post("/loans/:id/disbursement", middleware.OfficerOrAdmin(), handler.Create)

	disbursements := router.Group("/disbursements", middleware.OfficerOrAdmin())
	disbursements.Get("/", handler.ListPending)
	disbursements.Post("/:id/approve", handler.Approve)
	disbursements.Post("/:id/processing", handler.Process)
	disbursements.Post("/:id/complete", handler.Complete)
	disbursements.Post("/:id/fail", handler.Fail)
}

// setupScheduleRoutes configures schedule, payment and late fee routes
func setupScheduleRoutes(router fiber.Router, handler *handlers.ScheduleHandler) {
	router.Post("/loans/:id/schedule", handler.Generate)
	router.Get("/loans/:id/schedule", handler.Get)
	router.Post("/loans/:id/payments", handler.RecordPayment)
	router.Post("/payments/:id/apply", handler.ApplyPayment)

	router.Post("/schedules/overdue", middleware.AdminOnly(), middleware.StrictRateLimiter(), handler.MarkOverdue)
	router.Get("/schedules/:id/late-fee", handler.QuoteLateFee)
	router.Post("/schedules/:id/late-fee", handler.ApplyLateFee)
	router.Post("/late-fees/:id/waive", handler.WaiveLateFee)
}

// setupRoleRoutes configures user role routes. Admin checks happen in the
// role service so the configured super-admin gets through.
func setupRoleRoutes(router fiber.Router, handler *handlers.RoleHandler) {
	users := router.Group("/users")
	users.Get("/:id/roles", handler.Get)
	users.Get("/:id/roles/validate", handler.Validate)
	users.Post("/:id/roles", handler.Assign)
	users.Put("/:id/roles", handler.Set)
	users.Delete("/:id/roles/:role", handler.Remove)
}
