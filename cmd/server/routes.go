package main

import (
	"github.com/gin-gonic/gin"
	"github.com/habitcraft/habitcraft/backend/internal/handlers"
	"github.com/habitcraft/habitcraft/backend/internal/middleware"
	"github.com/habitcraft/habitcraft/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(middleware.RequestID(), logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.Server.AllowOrigins))

	// Health check
	healthHandler := handlers.NewHealthHandler()
	r.GET("/health", healthHandler.CheckHealth)

	limit := func(p middleware.Policy) gin.HandlerFunc {
		if !svc.cfg.RateLimit.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimit(p)
	}

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public, rate limited per policy)
		auth := api.Group("/auth")
		{
			auth.POST("/register", limit(middleware.RegisterPolicy), svc.authHandler.Register)
			auth.POST("/login", limit(middleware.LoginPolicy), svc.authHandler.Login)
			auth.POST("/refresh", limit(middleware.RefreshPolicy), svc.authHandler.Refresh)
			auth.POST("/logout", svc.authHandler.Logout)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired(svc.issuer))
		{
			protected.GET("/users/me", svc.userHandler.GetCurrentUser)
			protected.PUT("/users/me/password", limit(middleware.PasswordChangePolicy), svc.userHandler.ChangePassword)
		}
	}
}
