package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/procureflow/backend/internal/handlers"
	"github.com/procureflow/backend/internal/middleware"
	"github.com/procureflow/backend/internal/queue"
	"github.com/procureflow/backend/internal/rules"
)

// RegisterRoutes configures all API routes
func RegisterRoutes(router *gin.Engine, db *gorm.DB, jobQueue *queue.Queue, ruleSets *rules.RuleSetService, evaluator *rules.Evaluator, registry *rules.CountryRegistry) {
	// 60 requests per second per IP, 120 rule set writes per minute per tenant
	rateLimiter := middleware.NewRateLimiter(60, 120, 10, 20)
	router.Use(rateLimiter.IPRateLimiterMiddleware())

	ruleSetHandler := handlers.NewRuleSetHandler(ruleSets)
	evaluationHandler := handlers.NewEvaluationHandler(db, evaluator, ruleSets, jobQueue)
	countryHandler := handlers.NewCountryHandler(registry, jobQueue)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Rule set administration. Mutations require admin and are write-limited
	// per tenant.
	ruleSetGroup := router.Group("/api/rule-sets")
	ruleSetGroup.Use(middleware.AuthMiddleware())
	{
		ruleSetGroup.GET("", ruleSetHandler.ListRuleSets)
		ruleSetGroup.GET("/:id", ruleSetHandler.GetRuleSet)
		ruleSetGroup.GET("/:id/history", ruleSetHandler.GetHistory)
	}

	adminGroup := router.Group("/api/rule-sets")
	adminGroup.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware(), rateLimiter.TenantWriteLimiterMiddleware())
	{
		adminGroup.POST("", ruleSetHandler.CreateRuleSet)
		adminGroup.POST("/:id/definitions", ruleSetHandler.AddDefinition)
		adminGroup.PUT("/:id/definitions/:definitionId", ruleSetHandler.UpdateDefinition)
		adminGroup.DELETE("/:id/definitions/:definitionId", ruleSetHandler.RemoveDefinition)
		adminGroup.POST("/:id/publish", ruleSetHandler.Publish)
		adminGroup.POST("/:id/clone", ruleSetHandler.Clone)
		adminGroup.POST("/:id/archive", ruleSetHandler.Archive)
		adminGroup.POST("/:id/default", ruleSetHandler.SetDefault)
		adminGroup.POST("/:id/rollback/:version", ruleSetHandler.Rollback)
	}

	// Evaluation endpoints
	evaluationGroup := router.Group("/api/evaluations")
	evaluationGroup.Use(middleware.AuthMiddleware())
	{
		evaluationGroup.POST("", evaluationHandler.Evaluate)
		evaluationGroup.POST("/async", evaluationHandler.EnqueueEvaluation)
		evaluationGroup.GET("/jobs/:jobId", evaluationHandler.GetEvaluationJob)
		evaluationGroup.GET("/logs", evaluationHandler.ListExecutionLogs)
		evaluationGroup.GET("/active-rule-set", evaluationHandler.GetActiveRuleSet)
	}

	// Country compliance configuration registry
	countryGroup := router.Group("/api/countries")
	countryGroup.Use(middleware.AuthMiddleware())
	{
		countryGroup.GET("", countryHandler.ListCountries)
		countryGroup.GET("/:code", countryHandler.GetCountry)
	}

	countryAdminGroup := router.Group("/api/countries")
	countryAdminGroup.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware(), rateLimiter.TenantWriteLimiterMiddleware())
	{
		countryAdminGroup.POST("/:code/seed", countryHandler.SeedDefaults)
		countryAdminGroup.POST("/:code/seed/async", countryHandler.SeedDefaultsAsync)
	}
}
