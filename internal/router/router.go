package router

import (
	"time"

	"dealdesk/config"
	"dealdesk/internal/domain"
	"dealdesk/internal/handler"
	"dealdesk/internal/middleware"
	"dealdesk/internal/repository"
	"dealdesk/internal/service"
	"dealdesk/internal/ws"
	"dealdesk/pkg/cloudinary"
	"dealdesk/pkg/plaidapi"
	"dealdesk/pkg/stripeapi"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB, cloud cloudinary.Client, stripe stripeapi.API, plaid plaidapi.API) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Skip gin.Logger() to reduce log noise; use gin.Default() if you need request logging
	// Anonymous traffic (webhooks, login) is limited by client IP here.
	// Authenticated routes get a second, per-user limiter below, mounted
	// after AuthRequired so the user id is available for the key.
	r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(100, 60*time.Second)))
	userRate := middleware.RateLimit(middleware.NewInMemoryRateLimiter(100, 60*time.Second))

	// Repositories
	userRepo := repository.NewUserRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	disclosureRepo := repository.NewDisclosureRepository(db)
	eventRepo := repository.NewWebhookEventRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	paymentsHub := ws.NewHub()

	// Services
	authSvc := service.NewAuthService(cfg, userRepo, walletRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc, auditRepo)
	googleOAuthHandler := handler.NewGoogleOAuthHandler(cfg, authSvc, auditRepo)
	userHandler := handler.NewUserHandler(userRepo, stripe)
	walletHandler := handler.NewWalletHandler(walletRepo)
	disclosureHandler := handler.NewDisclosureHandler(disclosureRepo, userRepo, cloud)
	paymentHandler := handler.NewPaymentHandler(cfg, paymentRepo, payoutRepo, walletRepo, disclosureRepo, userRepo, auditRepo, stripe, plaid)
	paymentWebhookHandler := handler.NewPaymentWebhookHandler(db, paymentRepo, walletRepo, disclosureRepo, eventRepo, auditRepo, paymentsHub, cfg)
	connectWebhookHandler := handler.NewConnectWebhookHandler(db, payoutRepo, walletRepo, userRepo, eventRepo, paymentsHub, cfg)

	authMw := middleware.AuthRequired(&cfg.JWT)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.PATCH("/change-password", authMw, userRate, authHandler.ChangePassword)
			authGroup.GET("/google", googleOAuthHandler.Redirect)
			authGroup.GET("/google/callback", googleOAuthHandler.Callback)
			authGroup.POST("/google/token", googleOAuthHandler.Token)
		}

		me := api.Group("/me")
		me.Use(authMw, userRate)
		{
			me.GET("/profile", userHandler.Me)
			me.GET("/wallet", walletHandler.GetBalance)
			me.GET("/wallet/transactions", walletHandler.GetTransactions)
		}

		users := api.Group("/users")
		users.Use(authMw, userRate)
		{
			users.POST("/connect-account", userHandler.CreateConnectAccount)
			users.GET("/verify-account/:id", userHandler.VerifyAccount)
		}

		disclosures := api.Group("/disclosures")
		disclosures.Use(authMw, userRate)
		{
			disclosures.POST("", middleware.RequireRole(domain.RoleFundManager, domain.RoleSuperAdmin), disclosureHandler.Create)
			disclosures.GET("/deal/:dealId", disclosureHandler.ListByDeal)
			disclosures.PATCH("/:id/investor", middleware.RequireRole(domain.RoleInvestor), disclosureHandler.UpdateInvestorEntry)
			disclosures.DELETE("/:id", middleware.RequireRole(domain.RoleFundManager, domain.RoleSuperAdmin), disclosureHandler.Delete)
		}

		payments := api.Group("/payments")
		{
			investorMw := middleware.RequireRole(domain.RoleInvestor)
			payments.POST("/stripe-create", authMw, userRate, investorMw, paymentHandler.CreateStripePayment)
			payments.POST("/stripe-wire-transfer", authMw, userRate, investorMw, paymentHandler.CreateWireTransfer)
			payments.POST("/plaid-create", authMw, userRate, investorMw, paymentHandler.CreatePlaidPayment)
			payments.POST("/update-status-stripe", authMw, userRate, paymentHandler.UpdateStatus)
			payments.POST("/withdraw-money", authMw, userRate, middleware.RequireRole(domain.RoleFundManager, domain.RoleSuperAdmin), paymentHandler.Withdraw)
			payments.GET("", authMw, userRate, paymentHandler.ListPayments)
			payments.GET("/payouts", authMw, userRate, paymentHandler.ListPayouts)

			// Webhooks authenticate by signature, not JWT.
			payments.POST("/webhook", paymentWebhookHandler.Handle)
			payments.POST("/connect/webhook", connectWebhookHandler.Handle)
		}
	}

	r.GET("/ws/payments", ws.UpgradePaymentsWS(&cfg.JWT, paymentsHub))

	return r
}
