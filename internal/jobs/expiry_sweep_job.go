package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/procureflow/backend/internal/database"
	"github.com/procureflow/backend/internal/queue"
	"github.com/procureflow/backend/internal/rules"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExpirySweepPayload is the payload for a document expiry sweep. A zero
// MaxAge defaults to 24 hours.
type ExpirySweepPayload struct {
	MaxAge time.Duration `json:"max_age,omitempty"`
}

// ExpirySweepJob re-enqueues evaluations for entities whose rule sets carry
// date-sensitive rules. A document that was valid at submission time can
// expire while the tender is still open; without the sweep that flip would
// only be noticed on the next manual update.
type ExpirySweepJob struct {
	db    *gorm.DB
	queue *queue.Queue
	log   *zap.Logger
}

// NewExpirySweepJob creates a new expiry sweep job handler
func NewExpirySweepJob(db *gorm.DB, q *queue.Queue, log *zap.Logger) *ExpirySweepJob {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExpirySweepJob{db: db, queue: q, log: log}
}

// Handle finds entities whose last evaluation against a date-sensitive rule
// set is older than the payload's max age and enqueues a re-evaluation for
// each. The snapshot provider supplies fresh attributes at evaluation time.
func (j *ExpirySweepJob) Handle(job queue.Job) (interface{}, error) {
	var payload ExpirySweepPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return nil, fmt.Errorf("invalid expiry sweep payload: %w", err)
		}
	}
	maxAge := payload.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	cutoff := time.Now().Add(-maxAge)

	// Rule sets with at least one active date-sensitive rule
	var ruleSetIDs []string
	err := j.db.Model(&database.RuleDefinition{}).
		Distinct("rule_set_id").
		Where("is_active = ? AND operator IN ?", true,
			[]string{string(rules.OperatorIsValid), string(rules.OperatorIsExpired)}).
		Pluck("rule_set_id", &ruleSetIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find date-sensitive rule sets: %w", err)
	}
	if len(ruleSetIDs) == 0 {
		return map[string]int{"enqueued": 0}, nil
	}

	// Latest summary row per entity for those rule sets, older than cutoff
	var stale []database.RuleExecutionLog
	err = j.db.
		Where("rule_definition_id IS NULL AND rule_set_id IN ?", ruleSetIDs).
		Where("created_at < ?", cutoff).
		Where(`created_at = (
			SELECT MAX(created_at) FROM rule_execution_logs inner_logs
			WHERE inner_logs.entity_type = rule_execution_logs.entity_type
			  AND inner_logs.entity_id = rule_execution_logs.entity_id
			  AND inner_logs.rule_definition_id IS NULL
		)`).
		Find(&stale).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find stale evaluations: %w", err)
	}

	enqueued := 0
	for _, entry := range stale {
		ruleSetID := entry.RuleSetID
		_, err := j.queue.EnqueueJob(queue.JobTypeEvaluateEntity, EvaluateEntityPayload{
			EntityType: rules.EntityType(entry.EntityType),
			EntityID:   entry.EntityID,
			RuleSetID:  &ruleSetID,
			TenantID:   entry.TenantID,
		})
		if err != nil {
			j.log.Warn("failed to enqueue re-evaluation",
				zap.String("entity_id", entry.EntityID.String()),
				zap.Error(err))
			continue
		}
		enqueued++
	}

	j.log.Info("expiry sweep completed",
		zap.Int("stale_entities", len(stale)),
		zap.Int("enqueued", enqueued))
	return map[string]int{"enqueued": enqueued}, nil
}
