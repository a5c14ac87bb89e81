package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/procureflow/backend/internal/queue"
	"github.com/procureflow/backend/internal/rules"
)

// CountryHandler exposes the country compliance configuration registry
type CountryHandler struct {
	registry *rules.CountryRegistry
	queue    *queue.Queue
}

// NewCountryHandler creates a new country handler
func NewCountryHandler(registry *rules.CountryRegistry, q *queue.Queue) *CountryHandler {
	return &CountryHandler{registry: registry, queue: q}
}

// ListCountries returns all supported country compliance configurations
func (h *CountryHandler) ListCountries(c *gin.Context) {
	c.JSON(http.StatusOK, rules.ListConfigs())
}

// GetCountry returns one country's compliance configuration. Unknown codes
// fall back to the global configuration.
func (h *CountryHandler) GetCountry(c *gin.Context) {
	c.JSON(http.StatusOK, rules.GetConfig(c.Param("code")))
}

// SeedDefaults creates a draft rule set for the tenant pre-populated from the
// country's compliance configuration
func (h *CountryHandler) SeedDefaults(c *gin.Context) {
	ruleSet, err := h.registry.SeedDefaultRuleSet(c.Request.Context(), c.Param("code"), tenantFromContext(c))
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ruleSet)
}

// SeedDefaultsAsync queues default rule set seeding as a background job
func (h *CountryHandler) SeedDefaultsAsync(c *gin.Context) {
	jobID, err := h.queue.EnqueueJob(queue.JobTypeSeedCountryDefaults, map[string]interface{}{
		"country":   c.Param("code"),
		"tenant_id": tenantFromContext(c),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue seeding job"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}
