package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/procureflow/backend/internal/rules"
)

// RuleSetHandler handles rule set administration requests
type RuleSetHandler struct {
	service *rules.RuleSetService
}

// NewRuleSetHandler creates a new rule set handler
func NewRuleSetHandler(service *rules.RuleSetService) *RuleSetHandler {
	return &RuleSetHandler{service: service}
}

// tenantFromContext reads the tenant scope set by the auth middleware. A
// missing tenant id means the caller operates on shared/global rule sets.
func tenantFromContext(c *gin.Context) *uuid.UUID {
	tenantStr := c.GetString("tenant_id")
	if tenantStr == "" {
		return nil
	}
	tenantID, err := uuid.Parse(tenantStr)
	if err != nil {
		return nil
	}
	return &tenantID
}

func changedByFromContext(c *gin.Context) string {
	if email := c.GetString("email"); email != "" {
		return email
	}
	return c.GetString("user_id")
}

// respondLifecycleError maps rule engine errors to HTTP statuses
func respondLifecycleError(c *gin.Context, err error) {
	var publishErr *rules.PublishValidationError
	var validationErr *rules.ValidationError

	switch {
	case errors.Is(err, rules.ErrRuleSetNotFound), errors.Is(err, rules.ErrDefinitionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, rules.ErrImmutableRuleSet), errors.Is(err, rules.ErrDefaultRuleSet):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &publishErr), errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ListRuleSets lists the tenant's rule sets
func (h *RuleSetHandler) ListRuleSets(c *gin.Context) {
	ruleSets, err := h.service.ListRuleSets(c.Request.Context(), tenantFromContext(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rule sets"})
		return
	}
	c.JSON(http.StatusOK, ruleSets)
}

// GetRuleSet gets a rule set with its definitions
func (h *RuleSetHandler) GetRuleSet(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule set ID"})
		return
	}

	ruleSet, err := h.service.GetRuleSet(c.Request.Context(), id)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, ruleSet)
}

// CreateRuleSet creates a new draft rule set
func (h *RuleSetHandler) CreateRuleSet(c *gin.Context) {
	var input rules.RuleSetInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input.TenantID = tenantFromContext(c)

	ruleSet, err := h.service.CreateRuleSet(c.Request.Context(), input, changedByFromContext(c))
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ruleSet)
}

// AddDefinition adds a rule definition to a draft rule set
func (h *RuleSetHandler) AddDefinition(c *gin.Context) {
	ruleSetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule set ID"})
		return
	}

	var input rules.DefinitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	def, err := h.service.AddDefinition(c.Request.Context(), ruleSetID, input, changedByFromContext(c))
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, def)
}

// UpdateDefinition updates a rule definition on a draft rule set
func (h *RuleSetHandler) UpdateDefinition(c *gin.Context) {
	ruleSetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule set ID"})
		return
	}
	definitionID, err := uuid.Parse(c.Param("definitionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule definition ID"})
		return
	}

	var input rules.DefinitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	def, err := h.service.UpdateDefinition(c.Request.Context(), ruleSetID, definitionID, input, changedByFromContext(c))
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

// RemoveDefinition removes a rule definition from a draft rule set
func (h *RuleSetHandler) RemoveDefinition(c *gin.Context) {
	ruleSetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule set ID"})
		return
	}
	definitionID, err := uuid.Parse(c.Param("definitionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule definition ID"})
		return
	}

	if err := h.service.RemoveDefinition(c.Request.Context(), ruleSetID, definitionID, changedByFromContext(c)); err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// Publish publishes a draft rule set, making it immutable
func (h *RuleSetHandler) Publish(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule set ID"})
		return
	}

	ruleSet, err := h.service.Publish(c.Request.Context(), id, changedByFromContext(c))
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, ruleSet)
}

// Clone creates a new draft version from an existing rule set
func (h *RuleSetHandler) Clone(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule set ID"})
		return
	}

	clone, err := h.service.Clone(c.Request.Context(), id, changedByFromContext(c))
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, clone)
}

// Archive deactivates a rule set
func (h *RuleSetHandler) Archive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule set ID"})
		return
	}

	if err := h.service.Archive(c.Request.Context(), id, changedByFromContext(c)); err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "archived"})
}

// SetDefault makes a rule set the tenant's default for its country
func (h *RuleSetHandler) SetDefault(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule set ID"})
		return
	}

	if err := h.service.SetDefault(c.Request.Context(), id); err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "default set"})
}

// GetHistory lists the version history snapshots for a rule set
func (h *RuleSetHandler) GetHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule set ID"})
		return
	}

	history, err := h.service.History().List(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load version history"})
		return
	}
	c.JSON(http.StatusOK, history)
}

// Rollback creates a new draft from a historical snapshot
func (h *RuleSetHandler) Rollback(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule set ID"})
		return
	}
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version number"})
		return
	}

	restored, err := h.service.RollbackToVersion(c.Request.Context(), id, version, changedByFromContext(c))
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, restored)
}
