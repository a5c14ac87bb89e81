package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/procureflow/backend/internal/queue"
	"github.com/procureflow/backend/internal/rules"
	"go.uber.org/zap"
)

// EvaluateEntityPayload is the payload for an asynchronous evaluation job.
// Attributes may be inlined by the caller; when nil the snapshot provider
// supplies the current entity state. An empty map is a legitimate inline
// snapshot, so the field must not carry omitempty.
type EvaluateEntityPayload struct {
	EntityType rules.EntityType       `json:"entity_type"`
	EntityID   uuid.UUID              `json:"entity_id"`
	Attributes map[string]interface{} `json:"attributes"`
	RuleSetID  *uuid.UUID             `json:"rule_set_id,omitempty"`
	TenantID   *uuid.UUID             `json:"tenant_id,omitempty"`
	Country    string                 `json:"country,omitempty"`
}

// EntitySnapshotProvider fetches the current attribute snapshot for an
// entity from the surrounding repositories. The rule engine itself owns no
// vendor/submission/document storage.
type EntitySnapshotProvider interface {
	Snapshot(ctx context.Context, entityType rules.EntityType, entityID uuid.UUID) (*rules.Entity, error)
}

// EvaluationJob processes asynchronous rule evaluations
type EvaluationJob struct {
	evaluator *rules.Evaluator
	ruleSets  *rules.RuleSetService
	snapshots EntitySnapshotProvider
	log       *zap.Logger
}

// NewEvaluationJob creates a new evaluation job handler. snapshots may be
// nil when all payloads inline their attributes.
func NewEvaluationJob(evaluator *rules.Evaluator, ruleSets *rules.RuleSetService, snapshots EntitySnapshotProvider, log *zap.Logger) *EvaluationJob {
	if log == nil {
		log = zap.NewNop()
	}
	return &EvaluationJob{evaluator: evaluator, ruleSets: ruleSets, snapshots: snapshots, log: log}
}

// Handle runs one evaluation job
func (j *EvaluationJob) Handle(job queue.Job) (interface{}, error) {
	var payload EvaluateEntityPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid evaluate_entity payload: %w", err)
	}

	ctx := context.Background()

	entity := &rules.Entity{
		Type:       payload.EntityType,
		ID:         payload.EntityID,
		Attributes: payload.Attributes,
	}
	if entity.Attributes == nil {
		if j.snapshots == nil {
			return nil, fmt.Errorf("no attributes in payload and no snapshot provider configured")
		}
		snapshot, err := j.snapshots.Snapshot(ctx, payload.EntityType, payload.EntityID)
		if err != nil {
			return nil, fmt.Errorf("failed to load entity snapshot: %w", err)
		}
		entity = snapshot
	}

	ruleSetID := payload.RuleSetID
	if ruleSetID == nil {
		ruleSet, err := j.ruleSets.GetActiveRuleSet(ctx, payload.TenantID, payload.Country)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve active rule set: %w", err)
		}
		ruleSetID = &ruleSet.ID
	}

	result, err := j.evaluator.Evaluate(ctx, entity, *ruleSetID)
	if err != nil {
		return nil, err
	}

	j.log.Info("async evaluation completed",
		zap.String("entity_type", string(entity.Type)),
		zap.String("entity_id", entity.ID.String()),
		zap.String("overall_status", string(result.OverallStatus)))
	return result, nil
}
