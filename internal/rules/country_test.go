package rules

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigFallsBackToGlobal(t *testing.T) {
	za := GetConfig("ZA")
	assert.Equal(t, "ZA", za.Code)
	assert.Equal(t, "ZAR", za.Currency)
	assert.Contains(t, za.ScoringSystems, "80/20")
	assert.Contains(t, za.ScoringSystems, "90/10")

	unknown := GetConfig("ZZ")
	assert.Equal(t, CountryGlobal, unknown.Code)

	empty := GetConfig("")
	assert.Equal(t, CountryGlobal, empty.Code)
}

func TestListConfigsCoversAllJurisdictions(t *testing.T) {
	configs := ListConfigs()
	codes := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		codes[cfg.Code] = true
	}
	for _, code := range []string{"ZA", "NG", "KE", "GH", CountryGlobal} {
		assert.True(t, codes[code], "missing config for %s", code)
	}
}

func TestSeedDefaultRuleSet(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRuleSetService(db, nil, nil)
	registry := NewCountryRegistry(svc)

	tenantID := uuid.New()
	ruleSet, err := registry.SeedDefaultRuleSet(context.Background(), "ZA", &tenantID)
	require.NoError(t, err)

	assert.Equal(t, "ZA", ruleSet.Country)
	require.NotNil(t, ruleSet.TenantID)
	assert.Equal(t, tenantID, *ruleSet.TenantID)
	assert.Nil(t, ruleSet.PublishedAt)

	cfg := GetConfig("ZA")
	require.Len(t, ruleSet.Definitions, len(cfg.RequiredDocuments)+len(cfg.PreferentialCategories))

	var docRules, prefRules int
	for _, def := range ruleSet.Definitions {
		switch def.RuleType {
		case string(RuleTypeDocumentRequired):
			docRules++
			assert.True(t, def.IsMandatory, "document rule %s must be mandatory", def.Code)
			assert.Equal(t, string(SeverityError), def.Severity)
		case string(RuleTypePreferentialPoints):
			prefRules++
			assert.False(t, def.IsMandatory, "preferential rule %s must not block", def.Code)
			assert.Equal(t, string(SeverityInfo), def.Severity)
		}
	}
	assert.Equal(t, len(cfg.RequiredDocuments), docRules)
	assert.Equal(t, len(cfg.PreferentialCategories), prefRules)
}

func TestSeededRuleSetEvaluatesCompliantVendor(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRuleSetService(db, nil, nil)
	registry := NewCountryRegistry(svc)
	ev := NewEvaluator(db, nil)
	ctx := context.Background()

	ruleSet, err := registry.SeedDefaultRuleSet(ctx, "ZA", nil)
	require.NoError(t, err)
	_, err = svc.Publish(ctx, ruleSet.ID, "system")
	require.NoError(t, err)

	cfg := GetConfig("ZA")
	docs := make([]VendorDocument, 0, len(cfg.RequiredDocuments))
	for _, doc := range cfg.RequiredDocuments {
		docs = append(docs, VendorDocument{DocumentType: doc.Field, Number: "REF-001"})
	}
	entity := NewVendorEntity(uuid.New(), "ZA", false, 4.0, nil, map[string]bool{"bbbeeLevel1": true}, docs)

	result, err := ev.Evaluate(ctx, entity, ruleSet.ID)
	require.NoError(t, err)

	// All documents on file, Level 1 preference claimed, lower levels not
	assert.NotEqual(t, RuleResultFailed, result.OverallStatus)

	// Four document rules at weight 1 plus the 20 Level 1 preference points
	assert.Equal(t, 24.0, result.TotalScore)
}
