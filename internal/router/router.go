// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/studyhive/studyhive-backend/internal/chat"
	"github.com/studyhive/studyhive-backend/internal/config"
	"github.com/studyhive/studyhive-backend/internal/handlers"
	"github.com/studyhive/studyhive-backend/internal/middleware"
	"github.com/studyhive/studyhive-backend/internal/services"
	"github.com/studyhive/studyhive-backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config, hub *chat.Hub) *gin.Engine {
	// Initialize services
	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize storage service")
	}

	authService := services.NewAuthService(db, cfg)
	productService := services.NewProductService(db, storageService)
	paymentService := services.NewPaymentService(db, cfg)
	orderService := services.NewOrderService(db)
	groupService := services.NewGroupService(db, productService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(authService, productService)
	productHandler := handlers.NewProductHandler(productService, orderService, storageService)
	paymentHandler := handlers.NewPaymentHandler(paymentService, orderService, cfg.Frontend.BaseURL)
	groupHandler := handlers.NewGroupHandler(groupService, storageService, hub)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Frontend.BaseURL))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// Payment endpoints kept on their historical paths so the deployed
	// frontend and the Stripe webhook configuration keep working.
	api := r.Group("/api")
	{
		api.POST("/create-connect-account", middleware.GeneralRateLimit(), middleware.AuthRequired(), paymentHandler.CreateConnectAccount)
		api.POST("/create-checkout-session", middleware.GeneralRateLimit(), middleware.AuthRequired(), middleware.CheckoutRateLimit(), paymentHandler.CreateCheckoutSession)
		// The webhook is authenticated by signature and Stripe redelivers
		// in bursts, so it stays off the per-IP limiter.
		api.POST("/webhook", paymentHandler.Webhook)
	}

	// API v1 routes
	v1 := r.Group("/v1")
	v1.Use(middleware.GeneralRateLimit())
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", middleware.AuthRequired(), authHandler.Logout)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/forgot-password", authHandler.ForgotPassword)
			auth.POST("/reset-password", authHandler.ResetPassword)
			auth.GET("/verify-email/:token", authHandler.VerifyEmail)
		}

		// User routes
		users := v1.Group("/users")
		users.Use(middleware.AuthRequired())
		{
			users.GET("/me", userHandler.GetProfile)
			users.GET("/me/products", userHandler.GetMyProducts)
			users.GET("/me/purchases", userHandler.GetMyPurchases)
		}

		// Product routes
		products := v1.Group("/products")
		{
			products.GET("", middleware.OptionalAuth(), productHandler.GetProducts)
			products.GET("/:id", middleware.OptionalAuth(), productHandler.GetProduct)
			products.GET("/:id/reviews", productHandler.GetReviews)

			protected := products.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("", middleware.UploadRateLimit(), productHandler.CreateProduct)
				protected.GET("/:id/download", productHandler.Download)
				protected.POST("/:id/claim", productHandler.ClaimFree)
				protected.POST("/:id/reviews", productHandler.CreateReview)
			}
		}

		// Study group routes
		groups := v1.Group("/groups")
		{
			groups.GET("", middleware.OptionalAuth(), groupHandler.GetGroups)
			groups.GET("/:id", middleware.OptionalAuth(), groupHandler.GetGroup)
			groups.GET("/:id/members", groupHandler.GetMembers)

			protected := groups.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("", groupHandler.CreateGroup)
				protected.POST("/:id/join", groupHandler.JoinGroup)
				protected.POST("/:id/cover", middleware.UploadRateLimit(), groupHandler.UploadCover)
				protected.GET("/:id/messages", groupHandler.GetMessages)
				protected.POST("/:id/messages", groupHandler.SendMessage)
				protected.GET("/:id/files", groupHandler.GetSharedFiles)
				protected.POST("/:id/files", groupHandler.ShareFile)
				protected.GET("/:id/chat", groupHandler.ServeWS)
			}
		}
	}

	return r
}
