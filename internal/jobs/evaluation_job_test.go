package jobs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/procureflow/backend/internal/database"
	"github.com/procureflow/backend/internal/queue"
	"github.com/procureflow/backend/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory database with the rule engine and job
// schemas
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	require.NoError(t, db.AutoMigrate(&queue.Job{}))
	return db
}

// seedPublishedRuleSet inserts a published default rule set with one
// mandatory document rule
func seedPublishedRuleSet(t *testing.T, db *gorm.DB, country string) database.RuleSet {
	t.Helper()
	now := time.Now()
	ruleSet := database.RuleSet{
		Name:        country + " rules",
		Country:     country,
		Version:     1,
		IsActive:    true,
		IsDefault:   true,
		PublishedAt: &now,
	}
	require.NoError(t, db.Create(&ruleSet).Error)

	def := database.RuleDefinition{
		RuleSetID:   ruleSet.ID,
		Code:        "DOC_TAX",
		RuleType:    string(rules.RuleTypeDocumentRequired),
		Operator:    string(rules.OperatorExists),
		Field:       "documents.taxClearance",
		Weight:      1,
		Severity:    string(rules.SeverityError),
		IsMandatory: true,
		IsActive:    true,
	}
	require.NoError(t, db.Create(&def).Error)
	return ruleSet
}

func makeJob(t *testing.T, payload interface{}) queue.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return queue.Job{ID: uuid.New(), Payload: data}
}

func TestEvaluationJobWithInlineAttributes(t *testing.T) {
	db := setupTestDB(t)
	ruleSet := seedPublishedRuleSet(t, db, "ZA")

	evaluator := rules.NewEvaluator(db, nil)
	ruleSets := rules.NewRuleSetService(db, nil, nil)
	job := NewEvaluationJob(evaluator, ruleSets, nil, nil)

	result, err := job.Handle(makeJob(t, EvaluateEntityPayload{
		EntityType: rules.EntityTypeVendor,
		EntityID:   uuid.New(),
		RuleSetID:  &ruleSet.ID,
		Attributes: map[string]interface{}{
			"documents": map[string]interface{}{
				"taxClearance": map[string]interface{}{"number": "TCC-001"},
			},
		},
	}))
	require.NoError(t, err)

	evaluation, ok := result.(*rules.EvaluationResult)
	require.True(t, ok)
	assert.Equal(t, rules.RuleResultPassed, evaluation.OverallStatus)
}

func TestEvaluationJobResolvesActiveRuleSet(t *testing.T) {
	db := setupTestDB(t)
	ruleSet := seedPublishedRuleSet(t, db, "NG")

	evaluator := rules.NewEvaluator(db, nil)
	ruleSets := rules.NewRuleSetService(db, nil, nil)
	job := NewEvaluationJob(evaluator, ruleSets, nil, nil)

	result, err := job.Handle(makeJob(t, EvaluateEntityPayload{
		EntityType: rules.EntityTypeVendor,
		EntityID:   uuid.New(),
		Country:    "NG",
		Attributes: map[string]interface{}{},
	}))
	require.NoError(t, err)

	evaluation := result.(*rules.EvaluationResult)
	assert.Equal(t, ruleSet.ID, evaluation.RuleSetID)
	assert.Equal(t, rules.RuleResultFailed, evaluation.OverallStatus)
}

func TestEvaluationJobWithoutSnapshotProvider(t *testing.T) {
	db := setupTestDB(t)
	seedPublishedRuleSet(t, db, "ZA")

	evaluator := rules.NewEvaluator(db, nil)
	ruleSets := rules.NewRuleSetService(db, nil, nil)
	job := NewEvaluationJob(evaluator, ruleSets, nil, nil)

	_, err := job.Handle(makeJob(t, EvaluateEntityPayload{
		EntityType: rules.EntityTypeVendor,
		EntityID:   uuid.New(),
		Country:    "ZA",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no snapshot provider")
}

func TestExpirySweepEnqueuesStaleEvaluations(t *testing.T) {
	db := setupTestDB(t)
	q := queue.NewQueue(db)

	now := time.Now()
	ruleSet := database.RuleSet{
		Name: "expiring docs", Country: "ZA", Version: 1,
		IsActive: true, PublishedAt: &now,
	}
	require.NoError(t, db.Create(&ruleSet).Error)
	def := database.RuleDefinition{
		RuleSetID: ruleSet.ID,
		Code:      "DOC_VALID",
		RuleType:  string(rules.RuleTypeDocumentValidity),
		Operator:  string(rules.OperatorIsValid),
		Field:     "documents.taxClearance.expiryDate",
		Weight:    1,
		Severity:  string(rules.SeverityError),
		IsActive:  true,
	}
	require.NoError(t, db.Create(&def).Error)

	// A summary row older than the sweep window
	staleEntity := uuid.New()
	staleLog := database.RuleExecutionLog{
		RuleSetID:  ruleSet.ID,
		EntityType: string(rules.EntityTypeVendor),
		EntityID:   staleEntity,
		Result:     string(rules.RuleResultPassed),
		CreatedAt:  time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, db.Create(&staleLog).Error)

	// A fresh one that must not be re-enqueued
	freshLog := database.RuleExecutionLog{
		RuleSetID:  ruleSet.ID,
		EntityType: string(rules.EntityTypeVendor),
		EntityID:   uuid.New(),
		Result:     string(rules.RuleResultPassed),
	}
	require.NoError(t, db.Create(&freshLog).Error)

	sweep := NewExpirySweepJob(db, q, nil)
	result, err := sweep.Handle(queue.Job{ID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"enqueued": 1}, result)

	var jobs []queue.Job
	require.NoError(t, db.Where("type = ?", queue.JobTypeEvaluateEntity).Find(&jobs).Error)
	require.Len(t, jobs, 1)

	var payload EvaluateEntityPayload
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &payload))
	assert.Equal(t, staleEntity, payload.EntityID)
	require.NotNil(t, payload.RuleSetID)
	assert.Equal(t, ruleSet.ID, *payload.RuleSetID)
}
