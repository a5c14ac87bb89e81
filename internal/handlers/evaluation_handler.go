package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/procureflow/backend/internal/database"
	"github.com/procureflow/backend/internal/jobs"
	"github.com/procureflow/backend/internal/queue"
	"github.com/procureflow/backend/internal/rules"
	"gorm.io/gorm"
)

// EvaluationHandler handles compliance evaluation requests
type EvaluationHandler struct {
	db        *gorm.DB
	evaluator *rules.Evaluator
	ruleSets  *rules.RuleSetService
	queue     *queue.Queue
}

// NewEvaluationHandler creates a new evaluation handler
func NewEvaluationHandler(db *gorm.DB, evaluator *rules.Evaluator, ruleSets *rules.RuleSetService, q *queue.Queue) *EvaluationHandler {
	return &EvaluationHandler{
		db:        db,
		evaluator: evaluator,
		ruleSets:  ruleSets,
		queue:     q,
	}
}

// EvaluateRequest is the synchronous evaluation payload. RuleSetID is
// optional; when omitted the active rule set for the caller's tenant and
// country is resolved.
type EvaluateRequest struct {
	EntityType rules.EntityType       `json:"entity_type" binding:"required"`
	EntityID   uuid.UUID              `json:"entity_id" binding:"required"`
	Attributes map[string]interface{} `json:"attributes" binding:"required"`
	RuleSetID  *uuid.UUID             `json:"rule_set_id"`
	Country    string                 `json:"country"`
}

// Evaluate runs an entity snapshot against a rule set and returns the result
func (h *EvaluationHandler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ruleSetID := req.RuleSetID
	if ruleSetID == nil {
		country := req.Country
		if country == "" {
			country = c.GetString("country")
		}
		active, err := h.ruleSets.GetActiveRuleSet(c.Request.Context(), tenantFromContext(c), country)
		if err != nil {
			respondLifecycleError(c, err)
			return
		}
		ruleSetID = &active.ID
	}

	entity := &rules.Entity{
		Type:       req.EntityType,
		ID:         req.EntityID,
		Attributes: req.Attributes,
	}

	result, err := h.evaluator.Evaluate(c.Request.Context(), entity, *ruleSetID)
	if err != nil {
		if errors.Is(err, rules.ErrRuleSetNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// EnqueueEvaluation queues an evaluation for background processing
func (h *EvaluationHandler) EnqueueEvaluation(c *gin.Context) {
	var payload jobs.EvaluateEntityPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if payload.TenantID == nil {
		payload.TenantID = tenantFromContext(c)
	}

	jobID, err := h.queue.EnqueueJob(queue.JobTypeEvaluateEntity, payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue evaluation"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// GetEvaluationJob returns the status and result of a queued evaluation
func (h *EvaluationHandler) GetEvaluationJob(c *gin.Context) {
	job, err := h.queue.GetJob(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListExecutionLogs returns the execution audit trail for an entity or rule
// set, newest first. Summary rows can be selected with summary_only=true.
func (h *EvaluationHandler) ListExecutionLogs(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).
		Model(&database.RuleExecutionLog{}).
		Order("created_at DESC")

	if tenantID := tenantFromContext(c); tenantID != nil {
		query = query.Where("tenant_id = ? OR tenant_id IS NULL", tenantID)
	}
	if entityType := c.Query("entity_type"); entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if entityIDStr := c.Query("entity_id"); entityIDStr != "" {
		entityID, err := uuid.Parse(entityIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity ID"})
			return
		}
		query = query.Where("entity_id = ?", entityID)
	}
	if ruleSetIDStr := c.Query("rule_set_id"); ruleSetIDStr != "" {
		ruleSetID, err := uuid.Parse(ruleSetIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule set ID"})
			return
		}
		query = query.Where("rule_set_id = ?", ruleSetID)
	}
	if c.Query("summary_only") == "true" {
		query = query.Where("rule_definition_id IS NULL")
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	var logs []database.RuleExecutionLog
	if err := query.Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load execution logs"})
		return
	}

	c.JSON(http.StatusOK, logs)
}

// GetActiveRuleSet resolves the rule set that evaluations would use for the
// caller's tenant and a country
func (h *EvaluationHandler) GetActiveRuleSet(c *gin.Context) {
	country := c.Query("country")
	if country == "" {
		country = c.GetString("country")
	}

	ruleSet, err := h.ruleSets.GetActiveRuleSet(c.Request.Context(), tenantFromContext(c), country)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, ruleSet)
}
