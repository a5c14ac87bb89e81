package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/procureflow/backend/internal/queue"
	"github.com/procureflow/backend/internal/rules"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SeedCountryDefaultsPayload is the payload for seeding a tenant's default
// rule set from the country configuration.
type SeedCountryDefaultsPayload struct {
	Country  string     `json:"country"`
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`
}

// RegisterJobs wires all rule engine job handlers onto the queue
func RegisterJobs(q *queue.Queue, db *gorm.DB, evaluator *rules.Evaluator, ruleSets *rules.RuleSetService, registry *rules.CountryRegistry, snapshots EntitySnapshotProvider, log *zap.Logger) {
	evaluationJob := NewEvaluationJob(evaluator, ruleSets, snapshots, log)
	q.RegisterHandler(queue.JobTypeEvaluateEntity, evaluationJob.Handle)

	sweepJob := NewExpirySweepJob(db, q, log)
	q.RegisterHandler(queue.JobTypeExpirySweep, sweepJob.Handle)

	q.RegisterHandler(queue.JobTypeSeedCountryDefaults, func(job queue.Job) (interface{}, error) {
		var payload SeedCountryDefaultsPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return nil, fmt.Errorf("invalid seed payload: %w", err)
		}
		ruleSet, err := registry.SeedDefaultRuleSet(context.Background(), payload.Country, payload.TenantID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"rule_set_id": ruleSet.ID.String()}, nil
	})
}
