package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	handlers := NewAuthHandlers(authService, logger)
	requireAuth := AuthMiddleware(authService)

	router.GET("/healthz", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Wallet sign-in routes
	wallet := router.Group("/auth/wallet-connect")
	{
		wallet.POST("/challenge", handlers.Challenge)
		wallet.POST("/verify", handlers.Verify)
		wallet.POST("/complete-profile", requireAuth, handlers.CompleteProfile)
		wallet.GET("/connected", requireAuth, handlers.ConnectedWallets)
		wallet.POST("/link", requireAuth, handlers.LinkWallet)
		wallet.DELETE("/:address", requireAuth, handlers.UnlinkWallet)
	}

	// Session routes
	auth := router.Group("/auth")
	{
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(requireAuth)
	{
		api.GET("/me", handlers.Me)
		api.GET("/trading/authorize", RequireCompleteProfile(), handlers.AuthorizeTrading)
	}

	return router
}
