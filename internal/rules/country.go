package rules

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/procureflow/backend/internal/database"
	"github.com/procureflow/backend/internal/utils"
)

// CountryGlobal is the fallback jurisdiction code every tenant can evaluate
// against.
const CountryGlobal = "GLOBAL"

// RequiredDocument is one document type a compliant vendor must hold. Field
// is the attribute key the seeded rule resolves under "documents.".
type RequiredDocument struct {
	Field string `json:"field"`
	Name  string `json:"name"`
}

// PreferentialCategory is one preferential scoring category and its point
// value.
type PreferentialCategory struct {
	Field  string  `json:"field"`
	Name   string  `json:"name"`
	Points float64 `json:"points"`
}

// CountryComplianceConfig is static per-jurisdiction metadata used to seed
// default rule sets and drive UI explainers. Never mutated at runtime.
type CountryComplianceConfig struct {
	Code                   string                 `json:"code"`
	Name                   string                 `json:"name"`
	Currency               string                 `json:"currency"`
	Modules                []string               `json:"modules"`
	ScoringSystems         []string               `json:"scoring_systems"`
	PreferentialCategories []PreferentialCategory `json:"preferential_categories"`
	RequiredDocuments      []RequiredDocument     `json:"required_documents"`
}

// countryConfigs is constructed once at package init and treated as frozen.
var countryConfigs = map[string]CountryComplianceConfig{
	"ZA": {
		Code:           "ZA",
		Name:           "South Africa",
		Currency:       "ZAR",
		Modules:        []string{"tenders", "vendor_registry", "bbbee_verification"},
		ScoringSystems: []string{"80/20", "90/10"},
		PreferentialCategories: []PreferentialCategory{
			{Field: "bbbeeLevel1", Name: "B-BBEE Level 1", Points: 20},
			{Field: "bbbeeLevel2", Name: "B-BBEE Level 2", Points: 18},
			{Field: "bbbeeLevel3", Name: "B-BBEE Level 3", Points: 14},
			{Field: "bbbeeLevel4", Name: "B-BBEE Level 4", Points: 12},
		},
		RequiredDocuments: []RequiredDocument{
			{Field: "taxClearance", Name: "SARS Tax Clearance Certificate"},
			{Field: "bbbeeCertificate", Name: "B-BBEE Certificate"},
			{Field: "csdRegistration", Name: "CSD Registration Report"},
			{Field: "companyRegistration", Name: "CIPC Company Registration"},
		},
	},
	"NG": {
		Code:           "NG",
		Name:           "Nigeria",
		Currency:       "NGN",
		Modules:        []string{"tenders", "vendor_registry"},
		ScoringSystems: []string{"merit_point"},
		PreferentialCategories: []PreferentialCategory{
			{Field: "localContent", Name: "Nigerian Local Content", Points: 10},
		},
		RequiredDocuments: []RequiredDocument{
			{Field: "taxClearance", Name: "FIRS Tax Clearance Certificate"},
			{Field: "cacRegistration", Name: "CAC Certificate of Incorporation"},
			{Field: "pencomCompliance", Name: "PENCOM Compliance Certificate"},
			{Field: "itfCompliance", Name: "ITF Compliance Certificate"},
		},
	},
	"KE": {
		Code:           "KE",
		Name:           "Kenya",
		Currency:       "KES",
		Modules:        []string{"tenders", "vendor_registry", "agpo"},
		ScoringSystems: []string{"merit_point"},
		PreferentialCategories: []PreferentialCategory{
			{Field: "agpoYouth", Name: "AGPO Youth-Owned Enterprise", Points: 10},
			{Field: "agpoWomen", Name: "AGPO Women-Owned Enterprise", Points: 10},
		},
		RequiredDocuments: []RequiredDocument{
			{Field: "taxCompliance", Name: "KRA Tax Compliance Certificate"},
			{Field: "businessRegistration", Name: "Certificate of Incorporation"},
			{Field: "agpoCertificate", Name: "AGPO Certificate"},
		},
	},
	"GH": {
		Code:           "GH",
		Name:           "Ghana",
		Currency:       "GHS",
		Modules:        []string{"tenders", "vendor_registry"},
		ScoringSystems: []string{"merit_point"},
		PreferentialCategories: []PreferentialCategory{
			{Field: "localSupplier", Name: "Ghanaian Local Supplier", Points: 10},
		},
		RequiredDocuments: []RequiredDocument{
			{Field: "taxClearance", Name: "GRA Tax Clearance Certificate"},
			{Field: "ppaRegistration", Name: "PPA Supplier Registration"},
			{Field: "ssnitClearance", Name: "SSNIT Clearance Certificate"},
		},
	},
	CountryGlobal: {
		Code:           CountryGlobal,
		Name:           "Global baseline",
		Currency:       "USD",
		Modules:        []string{"tenders", "vendor_registry"},
		ScoringSystems: []string{"merit_point"},
		RequiredDocuments: []RequiredDocument{
			{Field: "taxClearance", Name: "Tax Clearance Certificate"},
			{Field: "companyRegistration", Name: "Company Registration Certificate"},
		},
	},
}

// GetConfig looks up the compliance configuration for a country code.
// Unknown codes fall over to the GLOBAL entry so every tenant always has an
// evaluable baseline.
func GetConfig(countryCode string) CountryComplianceConfig {
	if cfg, ok := countryConfigs[countryCode]; ok {
		return cfg
	}
	return countryConfigs[CountryGlobal]
}

// ListConfigs returns all known country configurations
func ListConfigs() []CountryComplianceConfig {
	configs := make([]CountryComplianceConfig, 0, len(countryConfigs))
	for _, cfg := range countryConfigs {
		configs = append(configs, cfg)
	}
	return configs
}

// CountryRegistry seeds default rule sets from the static country
// configuration. Seeding is the only place static config becomes live rule
// data; after it runs the registry has no influence over the tenant's rules.
type CountryRegistry struct {
	service *RuleSetService
}

// NewCountryRegistry creates a new country configuration registry
func NewCountryRegistry(service *RuleSetService) *CountryRegistry {
	return &CountryRegistry{service: service}
}

// SeedDefaultRuleSet creates a draft rule set for a tenant from the country
// configuration: one mandatory document_required rule per required document
// and one informational preferential_points rule per preferential category.
func (r *CountryRegistry) SeedDefaultRuleSet(ctx context.Context, countryCode string, tenantID *uuid.UUID) (*database.RuleSet, error) {
	cfg := GetConfig(countryCode)

	ruleSet, err := r.service.CreateRuleSet(ctx, RuleSetInput{
		TenantID:    tenantID,
		Name:        cfg.Name + " default compliance rules",
		Description: fmt.Sprintf("Seeded from the %s country configuration", cfg.Code),
		Country:     cfg.Code,
	}, "system")
	if err != nil {
		return nil, err
	}

	sortOrder := 0
	for _, doc := range cfg.RequiredDocuments {
		sortOrder++
		_, err := r.service.AddDefinition(ctx, ruleSet.ID, DefinitionInput{
			Code:           utils.RuleCode("DOC", doc.Name),
			Name:           doc.Name,
			RuleType:       RuleTypeDocumentRequired,
			Operator:       OperatorExists,
			Field:          "documents." + doc.Field,
			Severity:       SeverityError,
			IsMandatory:    true,
			SortOrder:      sortOrder,
			FailureMessage: doc.Name + " is missing",
			SuccessMessage: doc.Name + " is on file",
		}, "system")
		if err != nil {
			return nil, fmt.Errorf("failed to seed document rule for %s: %w", doc.Name, err)
		}
	}

	for _, category := range cfg.PreferentialCategories {
		sortOrder++
		_, err := r.service.AddDefinition(ctx, ruleSet.ID, DefinitionInput{
			Code:           utils.RuleCode("PREF", category.Name),
			Name:           category.Name,
			RuleType:       RuleTypePreferentialPoints,
			Operator:       OperatorEquals,
			Field:          "preferences." + category.Field,
			Value:          "true",
			Weight:         category.Points,
			Severity:       SeverityInfo,
			SortOrder:      sortOrder,
			SuccessMessage: category.Name + " preference applied",
		}, "system")
		if err != nil {
			return nil, fmt.Errorf("failed to seed preferential rule for %s: %w", category.Name, err)
		}
	}

	return r.service.GetRuleSet(ctx, ruleSet.ID)
}
