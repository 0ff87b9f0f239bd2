package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"homebudget/internal/config"
	"homebudget/internal/database"
	"homebudget/internal/handlers"
	"homebudget/internal/logger"
	"homebudget/internal/middleware"
	"homebudget/internal/services"
	"homebudget/internal/validator"

	_ "homebudget/internal/docs" // Import swagger docs
)

// @title           Home Budget API
// @version         1.0
// @description     Versioned household budgets: category registry, template versions, monthly snapshots and scheduled adjustments.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

const shutdownTimeout = 15 * time.Second

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if appConfig.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	validator.Register()

	// Initialize database configuration
	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Initialize services
	db := dbManager.DB()
	auditService := services.NewAuditService(db)
	userService := services.NewUserService(db)
	transactionService := services.NewTransactionService(db)
	templateService := services.NewBudgetTemplateService(db)
	categoryService := services.NewCategoryService(db, templateService, transactionService)
	adjustmentService := services.NewAdjustmentService(db, templateService, services.AdjustmentOptions{
		RegenerateLockedSnapshots: appConfig.RegenerateLockedSnapshots,
		Concurrency:               appConfig.RolloverConcurrency,
	})
	monthlyService := services.NewMonthlyBudgetService(db, templateService, adjustmentService, appConfig.LazyApplyOnRead)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService, auditService)
	categoryHandler := handlers.NewCategoryHandler(categoryService, auditService)
	transactionHandler := handlers.NewTransactionHandler(transactionService, auditService)
	templateHandler := handlers.NewBudgetTemplateHandler(templateService, auditService)
	monthlyHandler := handlers.NewMonthlyBudgetHandler(monthlyService, auditService)
	adjustmentHandler := handlers.NewAdjustmentHandler(adjustmentService, auditService)
	pipelineHandler := handlers.NewPipelineHandler(adjustmentService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Pipeline routes
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(appConfig.PipelineAPIKey))
	pipeline.POST("/adjustments/apply", pipelineHandler.ApplyDueAdjustments)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	// User profile
	protected.GET("/profile", authHandler.GetProfile)
	protected.GET("/household", authHandler.GetHousehold)

	// Category routes
	categories := protected.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.GetCategories)
	categories.GET("/:id", categoryHandler.GetCategoryByID)
	categories.PUT("/:id", categoryHandler.UpdateCategory)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)
	categories.POST("/:id/deactivate", categoryHandler.DeactivateCategory)
	categories.POST("/:id/reactivate", categoryHandler.ReactivateCategory)
	categories.POST("/:id/merge", categoryHandler.MergeCategory)
	categories.GET("/:id/lineage", categoryHandler.GetCategoryLineage)
	categories.GET("/:id/transactions", transactionHandler.GetCategoryTransactions)
	protected.GET("/category-merges", categoryHandler.GetMergeHistory)

	// Transaction routes
	transactions := protected.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("/:id", transactionHandler.GetTransactionByID)

	// Budget template routes
	budgetTemplate := protected.Group("/budget-template")
	budgetTemplate.GET("", templateHandler.GetActiveTemplate)
	budgetTemplate.POST("", templateHandler.CreateTemplate)
	budgetTemplate.PATCH("", templateHandler.UpdateTemplate)
	budgetTemplate.GET("/compare", templateHandler.CompareVersions)
	budgetTemplate.GET("/versions", templateHandler.GetTemplateHistory)
	budgetTemplate.GET("/versions/:id", templateHandler.GetTemplateVersion)
	budgetTemplate.DELETE("/versions/:id", templateHandler.DeleteVersion)
	budgetTemplate.POST("/versions/:id/activate", templateHandler.ActivateVersion)

	// Monthly budget routes
	months := protected.Group("/months")
	months.GET("", monthlyHandler.ListMonths)
	months.GET("/:year/:month", monthlyHandler.GetMonth)
	months.GET("/:year/:month/compare/original", monthlyHandler.CompareToOriginal)
	months.GET("/:year/:month/compare/template", monthlyHandler.CompareToTemplate)

	monthly := protected.Group("/monthly-budgets")
	monthly.GET("/:id", monthlyHandler.GetMonthlyBudget)
	monthly.PUT("/:id/categories/:category_id", monthlyHandler.UpdateCategoryLimit)
	monthly.POST("/:id/lock", monthlyHandler.LockMonth)
	monthly.POST("/:id/unlock", monthlyHandler.UnlockMonth)
	monthly.POST("/:id/sync", monthlyHandler.SyncCategories)

	// Adjustment routes
	adjustments := protected.Group("/adjustments")
	adjustments.POST("", adjustmentHandler.ScheduleAdjustment)
	adjustments.GET("/pending", adjustmentHandler.GetPendingAdjustments)
	adjustments.GET("/applied", adjustmentHandler.GetAppliedAdjustments)
	adjustments.GET("/history", adjustmentHandler.GetCategoryHistory)
	adjustments.POST("/apply", adjustmentHandler.ApplyAdjustments)
	adjustments.GET("/:id", adjustmentHandler.GetAdjustment)
	adjustments.DELETE("/:id", adjustmentHandler.CancelAdjustment)

	srv := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting Home Budget API on port %s", appConfig.Port)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("Server stopped")
	return nil
}
