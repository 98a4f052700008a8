package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/billcraft/billcraft/internal/app"
	"github.com/billcraft/billcraft/internal/app/scheduler"
	iauth "github.com/billcraft/billcraft/internal/auth"
	"github.com/billcraft/billcraft/internal/handlers"
	"github.com/billcraft/billcraft/internal/middleware"
	"github.com/billcraft/billcraft/internal/models"
	"github.com/billcraft/billcraft/internal/services"
	"github.com/billcraft/billcraft/pkg/mail"
)

// NewRouter builds the Gin engine, wires middleware, and registers all routes.
// The sweeper is optional; when nil the manual template-run endpoint is
// registered but answers with an error.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, mailer mail.Mailer, sweeper *scheduler.Sweeper) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	// Services
	userService, err := services.NewUserService(db, mailer,
		services.WithOTPDigits(cfg.Auth.OTP.Digits),
		services.WithOTPExpiry(cfg.Auth.OTP.Expiry),
		services.WithTOTPIssuer(cfg.Auth.TOTP.Issuer),
	)
	if err != nil {
		return nil, err
	}
	workspaceService, err := services.NewWorkspaceService(db)
	if err != nil {
		return nil, err
	}
	customerService, err := services.NewCustomerService(db)
	if err != nil {
		return nil, err
	}
	productService, err := services.NewProductService(db)
	if err != nil {
		return nil, err
	}
	expenseService, err := services.NewExpenseService(db)
	if err != nil {
		return nil, err
	}
	staffService, err := services.NewStaffService(db)
	if err != nil {
		return nil, err
	}
	invoiceService, err := services.NewInvoiceService(db,
		services.WithDocumentQuota(cfg.Billing.FreePlan.MonthlyDocuments))
	if err != nil {
		return nil, err
	}
	estimateService, err := services.NewEstimateService(db,
		services.WithEstimateQuota(cfg.Billing.FreePlan.MonthlyDocuments))
	if err != nil {
		return nil, err
	}
	recurringService, err := services.NewRecurringService(db)
	if err != nil {
		return nil, err
	}
	reportService, err := services.NewReportService(db)
	if err != nil {
		return nil, err
	}
	portalService, err := services.NewPortalService(db, jwt, mailer, cfg.Portal.BaseURL,
		services.WithPortalLinkTTL(cfg.Portal.TokenTTL))
	if err != nil {
		return nil, err
	}
	billingService, err := services.NewBillingService(db, services.BillingConfig{
		SecretKey:     cfg.Billing.Stripe.SecretKey,
		WebhookSecret: cfg.Billing.Stripe.WebhookSecret,
		ProPriceID:    cfg.Billing.Stripe.ProPriceID,
		SuccessURL:    cfg.Billing.Stripe.SuccessURL,
		CancelURL:     cfg.Billing.Stripe.CancelURL,
	})
	if err != nil {
		return nil, err
	}

	// Handlers
	authHandler, err := handlers.NewAuthHandler(userService, jwt)
	if err != nil {
		return nil, err
	}
	workspaceHandler, err := handlers.NewWorkspaceHandler(workspaceService)
	if err != nil {
		return nil, err
	}
	customerHandler, err := handlers.NewCustomerHandler(customerService)
	if err != nil {
		return nil, err
	}
	productHandler, err := handlers.NewProductHandler(productService)
	if err != nil {
		return nil, err
	}
	expenseHandler, err := handlers.NewExpenseHandler(expenseService)
	if err != nil {
		return nil, err
	}
	staffHandler, err := handlers.NewStaffHandler(staffService)
	if err != nil {
		return nil, err
	}
	invoiceHandler, err := handlers.NewInvoiceHandler(invoiceService)
	if err != nil {
		return nil, err
	}
	estimateHandler, err := handlers.NewEstimateHandler(estimateService)
	if err != nil {
		return nil, err
	}
	recurringHandler, err := handlers.NewRecurringHandler(recurringService, sweeper)
	if err != nil {
		return nil, err
	}
	reportHandler, err := handlers.NewReportHandler(reportService)
	if err != nil {
		return nil, err
	}
	portalHandler, err := handlers.NewPortalHandler(portalService)
	if err != nil {
		return nil, err
	}
	billingHandler, err := handlers.NewBillingHandler(billingService)
	if err != nil {
		return nil, err
	}

	// Public endpoints
	if cfg.Monitoring.Health.Enabled {
		healthHandler := handlers.NewHealthHandler(db, app.Version)
		r.GET("/health", healthHandler.Health)
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	auth := r.Group("/api/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/verify-otp", authHandler.VerifyOTP)
		auth.POST("/request-otp", authHandler.RequestOTP)
		auth.POST("/login", authHandler.Login)
	}

	// Portal public routes: magic-link issuance and redemption. Verify accepts
	// GET for clicked email links and POST for API clients.
	r.POST("/api/portal/request-link", portalHandler.RequestLink)
	r.GET("/api/portal/verify/:token", portalHandler.Verify)
	r.POST("/api/portal/verify/:token", portalHandler.Verify)

	// Stripe delivers webhooks unauthenticated; the signature is the auth.
	r.POST("/api/billing/webhook", billingHandler.Webhook)

	// Portal session routes
	portal := r.Group("/api/portal")
	portal.Use(middleware.PortalAuth(jwt))
	{
		portal.GET("/invoices", portalHandler.ListInvoices)
		portal.GET("/invoices/:id", portalHandler.GetInvoice)
		portal.GET("/estimates", portalHandler.ListEstimates)
	}

	// Authenticated user routes
	requireAuth := middleware.Auth(jwt)
	resolveWorkspace := middleware.Workspace(db)

	api := r.Group("/api")
	api.Use(requireAuth, resolveWorkspace)

	api.GET("/auth/me", authHandler.Me)
	api.POST("/auth/switch-workspace", authHandler.SwitchWorkspace)
	api.POST("/auth/totp/enroll", authHandler.EnrollTOTP)
	api.POST("/auth/totp/confirm", authHandler.ConfirmTOTP)
	api.POST("/auth/totp/disable", authHandler.DisableTOTP)

	api.POST("/workspaces", workspaceHandler.Create)

	anyRole := middleware.RequireRole(models.RoleOwner, models.RoleAdmin, models.RoleStaff)
	manage := middleware.RequireRole(models.RoleOwner, models.RoleAdmin)
	ownerOnly := middleware.RequireRole(models.RoleOwner)

	workspace := api.Group("/workspace")
	{
		workspace.GET("", anyRole, workspaceHandler.Current)
		workspace.PATCH("", manage, workspaceHandler.Update)
		workspace.GET("/members", anyRole, workspaceHandler.ListMembers)
		workspace.POST("/members", manage, workspaceHandler.AddMember)
		workspace.PATCH("/members/:userID", ownerOnly, workspaceHandler.UpdateMemberRole)
		workspace.DELETE("/members/:userID", ownerOnly, workspaceHandler.RemoveMember)
	}

	customers := api.Group("/customers")
	{
		customers.GET("", anyRole, customerHandler.List)
		customers.GET("/:id", anyRole, customerHandler.Get)
		customers.POST("", anyRole, customerHandler.Create)
		customers.PATCH("/:id", anyRole, customerHandler.Update)
		customers.DELETE("/:id", manage, customerHandler.Delete)
	}

	products := api.Group("/products")
	{
		products.GET("", anyRole, productHandler.List)
		products.GET("/:id", anyRole, productHandler.Get)
		products.POST("", manage, productHandler.Create)
		products.PATCH("/:id", manage, productHandler.Update)
		products.DELETE("/:id", manage, productHandler.Delete)
	}

	expenses := api.Group("/expenses")
	{
		expenses.GET("", anyRole, expenseHandler.List)
		expenses.GET("/:id", anyRole, expenseHandler.Get)
		expenses.POST("", anyRole, expenseHandler.Create)
		expenses.PATCH("/:id", manage, expenseHandler.Update)
		expenses.DELETE("/:id", manage, expenseHandler.Delete)
	}

	staff := api.Group("/staff")
	{
		staff.GET("", anyRole, staffHandler.List)
		staff.GET("/:id", anyRole, staffHandler.Get)
		staff.POST("", manage, staffHandler.Create)
		staff.PATCH("/:id", manage, staffHandler.Update)
		staff.DELETE("/:id", manage, staffHandler.Delete)
	}

	invoices := api.Group("/invoices")
	{
		invoices.GET("", anyRole, invoiceHandler.List)
		invoices.GET("/:id", anyRole, invoiceHandler.Get)
		invoices.POST("", anyRole, invoiceHandler.Create)
		invoices.POST("/:id/payments", anyRole, invoiceHandler.RecordPayment)
		invoices.POST("/:id/void", manage, invoiceHandler.Void)
	}

	estimates := api.Group("/estimates")
	{
		estimates.GET("", anyRole, estimateHandler.List)
		estimates.GET("/:id", anyRole, estimateHandler.Get)
		estimates.POST("", anyRole, estimateHandler.Create)
		estimates.POST("/:id/transition", anyRole, estimateHandler.Transition)
		estimates.POST("/:id/convert", manage, estimateHandler.Convert)
		estimates.DELETE("/:id", manage, estimateHandler.Delete)
	}

	recurring := api.Group("/recurring-invoices")
	{
		recurring.GET("", anyRole, recurringHandler.List)
		recurring.GET("/:id", anyRole, recurringHandler.Get)
		recurring.POST("", manage, recurringHandler.Create)
		recurring.PATCH("/:id", manage, recurringHandler.Update)
		recurring.PATCH("/:id/status", manage, recurringHandler.SetStatus)
		recurring.POST("/:id/run", manage, recurringHandler.Run)
		recurring.DELETE("/:id", manage, recurringHandler.Delete)
	}

	api.GET("/reports/summary", manage, reportHandler.Summary)

	api.POST("/billing/checkout-session", ownerOnly, billingHandler.CreateCheckoutSession)

	return r, nil
}
