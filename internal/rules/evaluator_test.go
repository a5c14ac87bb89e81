package rules

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/procureflow/backend/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory database with the rule engine schema
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Every pooled connection to :memory: would get its own database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func floatPtr(f float64) *float64 {
	return &f
}

// seedRuleSet inserts a published active rule set with the given definitions
func seedRuleSet(t *testing.T, db *gorm.DB, defs ...database.RuleDefinition) database.RuleSet {
	t.Helper()
	now := time.Now()
	ruleSet := database.RuleSet{
		Name:        "test rule set",
		Country:     "ZA",
		Version:     1,
		IsActive:    true,
		PublishedAt: &now,
	}
	require.NoError(t, db.Create(&ruleSet).Error)

	for i := range defs {
		defs[i].RuleSetID = ruleSet.ID
		defs[i].IsActive = true
		require.NoError(t, db.Create(&defs[i]).Error)
	}
	return ruleSet
}

func TestEvaluateMissingRequiredDocument(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	ruleSet := seedRuleSet(t, db, database.RuleDefinition{
		Code:           "DOC_TAX_CLEARANCE",
		Name:           "Tax Clearance Certificate",
		RuleType:       string(RuleTypeDocumentRequired),
		Operator:       string(OperatorExists),
		Field:          "documents.taxClearance",
		Weight:         1,
		Severity:       string(SeverityError),
		IsMandatory:    true,
		FailureMessage: "tax clearance certificate is missing",
	})

	entity := NewVendorEntity(uuid.New(), "ZA", false, 3.5, nil, nil, nil)

	result, err := ev.Evaluate(context.Background(), entity, ruleSet.ID)
	require.NoError(t, err)

	assert.Equal(t, RuleResultFailed, result.OverallStatus)
	assert.Equal(t, 0.0, result.TotalScore)
	assert.Equal(t, 1.0, result.MaxPossibleScore)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, RuleResultFailed, result.Outcomes[0].Result)
	assert.Equal(t, "tax clearance certificate is missing", result.Outcomes[0].Message)

	// One row per rule plus the aggregate summary row
	var logs []database.RuleExecutionLog
	require.NoError(t, db.Order("created_at ASC").Find(&logs).Error)
	require.Len(t, logs, 2)
	assert.NotNil(t, logs[0].RuleDefinitionID)
	assert.Nil(t, logs[1].RuleDefinitionID)
	assert.Equal(t, string(RuleResultFailed), logs[1].Result)
}

func TestEvaluateValidDocumentContributesWeight(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	ruleSet := seedRuleSet(t, db, database.RuleDefinition{
		Code:     "DOC_TAX_VALID",
		RuleType: string(RuleTypeDocumentValidity),
		Operator: string(OperatorIsValid),
		Field:    "documents.taxClearance.expiryDate",
		Weight:   10,
		Severity: string(SeverityError),
	})

	entity := NewVendorEntity(uuid.New(), "ZA", false, 3.5, nil, nil, []VendorDocument{
		{DocumentType: "taxClearance", ExpiresAt: time.Now().Add(90 * 24 * time.Hour)},
	})

	result, err := ev.Evaluate(context.Background(), entity, ruleSet.ID)
	require.NoError(t, err)

	assert.Equal(t, RuleResultPassed, result.OverallStatus)
	assert.Equal(t, 10.0, result.TotalScore)
	assert.Equal(t, 10.0, result.MaxPossibleScore)
}

func TestExpiredDocumentFailsValidityRule(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	ruleSet := seedRuleSet(t, db, database.RuleDefinition{
		Code:     "DOC_TAX_VALID",
		RuleType: string(RuleTypeDocumentValidity),
		Operator: string(OperatorIsValid),
		Field:    "documents.taxClearance.expiryDate",
		Weight:   10,
		Severity: string(SeverityError),
	})

	entity := NewVendorEntity(uuid.New(), "ZA", false, 3.5, nil, nil, []VendorDocument{
		{DocumentType: "taxClearance", ExpiresAt: time.Now().Add(-24 * time.Hour)},
	})

	result, err := ev.Evaluate(context.Background(), entity, ruleSet.ID)
	require.NoError(t, err)

	assert.Equal(t, RuleResultFailed, result.OverallStatus)
	assert.Equal(t, 0.0, result.TotalScore)
}

func TestMandatoryDominatesSeverity(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	// Mandatory but only informational severity: failure must still block
	ruleSet := seedRuleSet(t, db, database.RuleDefinition{
		Code:        "MANDATORY_INFO",
		RuleType:    string(RuleTypeValueComparison),
		Operator:    string(OperatorEquals),
		Field:       "country",
		Value:       "NG",
		Weight:      1,
		Severity:    string(SeverityInfo),
		IsMandatory: true,
	})

	entity := NewVendorEntity(uuid.New(), "ZA", false, 3.5, nil, nil, nil)

	result, err := ev.Evaluate(context.Background(), entity, ruleSet.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleResultFailed, result.OverallStatus)
}

func TestNonMandatoryInfoFailureIsWarning(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	ruleSet := seedRuleSet(t, db, database.RuleDefinition{
		Code:     "PREF_BBBEE",
		RuleType: string(RuleTypePreferentialPoints),
		Operator: string(OperatorEquals),
		Field:    "preferences.bbbeeLevel1",
		Value:    "true",
		Weight:   20,
		Severity: string(SeverityInfo),
	})

	entity := NewVendorEntity(uuid.New(), "ZA", false, 3.5, nil, nil, nil)

	result, err := ev.Evaluate(context.Background(), entity, ruleSet.ID)
	require.NoError(t, err)

	assert.Equal(t, RuleResultWarning, result.OverallStatus)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, RuleResultWarning, result.Outcomes[0].Result)
	assert.Equal(t, 0.0, result.TotalScore)
	assert.Equal(t, 20.0, result.MaxPossibleScore)
}

func TestMaxScoreCapsContribution(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	ruleSet := seedRuleSet(t, db, database.RuleDefinition{
		Code:     "SCORE_RATING",
		RuleType: string(RuleTypeScoringCriteria),
		Operator: string(OperatorGreaterOrEqual),
		Field:    "rating",
		Value:    "3",
		Weight:   10,
		MaxScore: floatPtr(5),
		Severity: string(SeverityInfo),
	})

	entity := NewVendorEntity(uuid.New(), "ZA", false, 4.0, nil, nil, nil)

	result, err := ev.Evaluate(context.Background(), entity, ruleSet.ID)
	require.NoError(t, err)

	assert.Equal(t, RuleResultPassed, result.OverallStatus)
	assert.Equal(t, 5.0, result.TotalScore)
	assert.Equal(t, 5.0, result.MaxPossibleScore)
}

func TestMaxScoreRaisesMaxPossibleAboveWeight(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	// maxScore above weight widens the attainable range without raising the
	// rule's own contribution
	ruleSet := seedRuleSet(t, db, database.RuleDefinition{
		Code:     "SCORE_RATING",
		RuleType: string(RuleTypeScoringCriteria),
		Operator: string(OperatorGreaterOrEqual),
		Field:    "rating",
		Value:    "3",
		Weight:   5,
		MaxScore: floatPtr(10),
		Severity: string(SeverityInfo),
	})

	entity := NewVendorEntity(uuid.New(), "ZA", false, 4.0, nil, nil, nil)

	result, err := ev.Evaluate(context.Background(), entity, ruleSet.ID)
	require.NoError(t, err)

	assert.Equal(t, RuleResultPassed, result.OverallStatus)
	assert.Equal(t, 5.0, result.TotalScore)
	assert.Equal(t, 10.0, result.MaxPossibleScore)
}

func TestThresholdTakesPrecedenceForNumericOperators(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	ruleSet := seedRuleSet(t, db, database.RuleDefinition{
		Code:      "THRESHOLD_LOCAL_CONTENT",
		RuleType:  string(RuleTypeThresholdCheck),
		Operator:  string(OperatorGreaterOrEqual),
		Field:     "localContent",
		Value:     "0",
		Threshold: floatPtr(30),
		Weight:    1,
		Severity:  string(SeverityError),
	})

	passing := NewSubmissionEntity(uuid.New(), uuid.New(), 100000, 35, nil)
	result, err := ev.Evaluate(context.Background(), passing, ruleSet.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleResultPassed, result.OverallStatus)

	failing := NewSubmissionEntity(uuid.New(), uuid.New(), 100000, 10, nil)
	result, err = ev.Evaluate(context.Background(), failing, ruleSet.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleResultFailed, result.OverallStatus)
}

func TestCoercionFailureDegradesSingleRule(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	ruleSet := seedRuleSet(t, db,
		database.RuleDefinition{
			Code:     "BAD_NUMERIC",
			RuleType: string(RuleTypeThresholdCheck),
			Operator: string(OperatorGreaterThan),
			Field:    "country",
			Value:    "10",
			Weight:   1,
			Severity: string(SeverityError),
			SortOrder: 1,
		},
		database.RuleDefinition{
			Code:     "GOOD_EQUALS",
			RuleType: string(RuleTypeValueComparison),
			Operator: string(OperatorEquals),
			Field:    "country",
			Value:    "ZA",
			Weight:   1,
			Severity: string(SeverityError),
			SortOrder: 2,
		},
	)

	entity := NewVendorEntity(uuid.New(), "ZA", false, 3.5, nil, nil, nil)

	result, err := ev.Evaluate(context.Background(), entity, ruleSet.ID)
	require.NoError(t, err)

	// The uncoercible rule fails alone; the pass continues to the next rule
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, RuleResultFailed, result.Outcomes[0].Result)
	assert.Contains(t, result.Outcomes[0].Details, "error")
	assert.Equal(t, RuleResultPassed, result.Outcomes[1].Result)
	assert.Equal(t, RuleResultFailed, result.OverallStatus)
}

func TestEmptyOperatorDefaultsToExistence(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	ruleSet := seedRuleSet(t, db, database.RuleDefinition{
		Code:     "DOC_PRESENT",
		RuleType: string(RuleTypeDocumentRequired),
		Field:    "documents.taxClearance",
		Weight:   1,
		Severity: string(SeverityError),
	})

	entity := NewVendorEntity(uuid.New(), "ZA", false, 3.5, nil, nil, []VendorDocument{
		{DocumentType: "taxClearance", Number: "TCC-001"},
	})

	result, err := ev.Evaluate(context.Background(), entity, ruleSet.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleResultPassed, result.OverallStatus)
}

func TestNotExistsSatisfiedByMissingField(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	ruleSet := seedRuleSet(t, db, database.RuleDefinition{
		Code:     "NOT_BLACKLISTED",
		RuleType: string(RuleTypeBlacklistCheck),
		Operator: string(OperatorNotExists),
		Field:    "blacklistEntry",
		Weight:   1,
		Severity: string(SeverityCritical),
		IsMandatory: true,
	})

	clean := &Entity{Type: EntityTypeVendor, ID: uuid.New(), Attributes: map[string]interface{}{}}
	result, err := ev.Evaluate(context.Background(), clean, ruleSet.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleResultPassed, result.OverallStatus)

	listed := &Entity{Type: EntityTypeVendor, ID: uuid.New(), Attributes: map[string]interface{}{
		"blacklistEntry": "fraud conviction 2024",
	}}
	result, err = ev.Evaluate(context.Background(), listed, ruleSet.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleResultFailed, result.OverallStatus)
}

func TestEmptyRuleSetPasses(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	ruleSet := seedRuleSet(t, db)
	entity := NewVendorEntity(uuid.New(), "ZA", false, 3.5, nil, nil, nil)

	result, err := ev.Evaluate(context.Background(), entity, ruleSet.ID)
	require.NoError(t, err)

	assert.Equal(t, RuleResultPassed, result.OverallStatus)
	assert.Equal(t, 0.0, result.TotalScore)
	assert.Empty(t, result.Outcomes)

	// Only the summary row is written
	var count int64
	require.NoError(t, db.Model(&database.RuleExecutionLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUnknownRuleSetWritesNoLogs(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	entity := NewVendorEntity(uuid.New(), "ZA", false, 3.5, nil, nil, nil)

	_, err := ev.Evaluate(context.Background(), entity, uuid.New())
	assert.ErrorIs(t, err, ErrRuleSetNotFound)

	var count int64
	require.NoError(t, db.Model(&database.RuleExecutionLog{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestInactiveDefinitionsAreSkipped(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	ruleSet := seedRuleSet(t, db, database.RuleDefinition{
		Code:     "ACTIVE_RULE",
		RuleType: string(RuleTypeValueComparison),
		Operator: string(OperatorEquals),
		Field:    "country",
		Value:    "ZA",
		Weight:   1,
		Severity: string(SeverityError),
	})
	inactive := database.RuleDefinition{
		RuleSetID: ruleSet.ID,
		Code:      "INACTIVE_RULE",
		RuleType:  string(RuleTypeValueComparison),
		Operator:  string(OperatorEquals),
		Field:     "country",
		Value:     "NG",
		Weight:    1,
		Severity:  string(SeverityError),
		IsActive:  false,
	}
	require.NoError(t, db.Create(&inactive).Error)

	entity := NewVendorEntity(uuid.New(), "ZA", false, 3.5, nil, nil, nil)

	result, err := ev.Evaluate(context.Background(), entity, ruleSet.ID)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, "ACTIVE_RULE", result.Outcomes[0].Code)
	assert.Equal(t, RuleResultPassed, result.OverallStatus)
}

func TestEvaluationOrderIsDeterministic(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	// Same sort order resolves by code, lexically
	ruleSet := seedRuleSet(t, db,
		database.RuleDefinition{
			Code: "B_SECOND", RuleType: string(RuleTypeValueComparison),
			Operator: string(OperatorExists), Field: "country", Weight: 1,
			Severity: string(SeverityInfo), SortOrder: 5,
		},
		database.RuleDefinition{
			Code: "A_FIRST", RuleType: string(RuleTypeValueComparison),
			Operator: string(OperatorExists), Field: "country", Weight: 1,
			Severity: string(SeverityInfo), SortOrder: 5,
		},
		database.RuleDefinition{
			Code: "Z_LEADS", RuleType: string(RuleTypeValueComparison),
			Operator: string(OperatorExists), Field: "country", Weight: 1,
			Severity: string(SeverityInfo), SortOrder: 1,
		},
	)

	entity := NewVendorEntity(uuid.New(), "ZA", false, 3.5, nil, nil, nil)

	result, err := ev.Evaluate(context.Background(), entity, ruleSet.ID)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, "Z_LEADS", result.Outcomes[0].Code)
	assert.Equal(t, "A_FIRST", result.Outcomes[1].Code)
	assert.Equal(t, "B_SECOND", result.Outcomes[2].Code)
}

func TestEvaluationIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ev := NewEvaluator(db, nil)

	ruleSet := seedRuleSet(t, db,
		database.RuleDefinition{
			Code: "DOC_TAX", RuleType: string(RuleTypeDocumentRequired),
			Operator: string(OperatorExists), Field: "documents.taxClearance",
			Weight: 1, Severity: string(SeverityError), IsMandatory: true,
		},
		database.RuleDefinition{
			Code: "PREF_LOCAL", RuleType: string(RuleTypePreferentialPoints),
			Operator: string(OperatorEquals), Field: "preferences.localSupplier",
			Value: "true", Weight: 10, Severity: string(SeverityInfo),
		},
	)

	entity := NewVendorEntity(uuid.New(), "GH", false, 3.5, nil, nil, []VendorDocument{
		{DocumentType: "taxClearance", Number: "TCC-001"},
	})

	first, err := ev.Evaluate(context.Background(), entity, ruleSet.ID)
	require.NoError(t, err)
	second, err := ev.Evaluate(context.Background(), entity, ruleSet.ID)
	require.NoError(t, err)

	assert.Equal(t, first.OverallStatus, second.OverallStatus)
	assert.Equal(t, first.TotalScore, second.TotalScore)
	assert.Equal(t, first.MaxPossibleScore, second.MaxPossibleScore)
	require.Len(t, second.Outcomes, len(first.Outcomes))
	for i := range first.Outcomes {
		assert.Equal(t, first.Outcomes[i].Result, second.Outcomes[i].Result)
		assert.Equal(t, first.Outcomes[i].Score, second.Outcomes[i].Score)
	}

	// Each pass appends its own audit rows
	var count int64
	require.NoError(t, db.Model(&database.RuleExecutionLog{}).Count(&count).Error)
	assert.Equal(t, int64(6), count)
}
