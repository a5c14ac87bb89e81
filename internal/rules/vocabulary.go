package rules

// RuleType defines the kind of compliance check a rule definition performs
type RuleType string

const (
	RuleTypeDocumentRequired   RuleType = "document_required"
	RuleTypeDocumentValidity   RuleType = "document_validity"
	RuleTypeScoringCriteria    RuleType = "scoring_criteria"
	RuleTypePreferentialPoints RuleType = "preferential_points"
	RuleTypeBlacklistCheck     RuleType = "blacklist_check"
	RuleTypeThresholdCheck     RuleType = "threshold_check"
	RuleTypeDateValidation     RuleType = "date_validation"
	RuleTypeValueComparison    RuleType = "value_comparison"
	RuleTypeCustom             RuleType = "custom"
)

// Operator defines the comparison applied between the resolved entity field
// and the rule's operand
type Operator string

const (
	OperatorEquals         Operator = "equals"
	OperatorNotEquals      Operator = "not_equals"
	OperatorGreaterThan    Operator = "greater_than"
	OperatorLessThan       Operator = "less_than"
	OperatorGreaterOrEqual Operator = "greater_or_equal"
	OperatorLessOrEqual    Operator = "less_or_equal"
	OperatorContains       Operator = "contains"
	OperatorNotContains    Operator = "not_contains"
	OperatorInList         Operator = "in_list"
	OperatorNotInList      Operator = "not_in_list"
	OperatorIsValid        Operator = "is_valid"
	OperatorIsExpired      Operator = "is_expired"
	OperatorExists         Operator = "exists"
	OperatorNotExists      Operator = "not_exists"
)

// Severity controls whether a failed rule merely annotates the result or
// blocks overall compliance
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a failure at this severity forces the overall
// compliance status to failed
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// RuleResult is the outcome of a single rule evaluation
type RuleResult string

const (
	RuleResultPassed  RuleResult = "passed"
	RuleResultFailed  RuleResult = "failed"
	RuleResultWarning RuleResult = "warning"
)

// EntityType identifies the kind of entity being evaluated
type EntityType string

const (
	EntityTypeVendor     EntityType = "vendor"
	EntityTypeSubmission EntityType = "submission"
	EntityTypeDocument   EntityType = "document"
)

var validRuleTypes = map[RuleType]bool{
	RuleTypeDocumentRequired:   true,
	RuleTypeDocumentValidity:   true,
	RuleTypeScoringCriteria:    true,
	RuleTypePreferentialPoints: true,
	RuleTypeBlacklistCheck:     true,
	RuleTypeThresholdCheck:     true,
	RuleTypeDateValidation:     true,
	RuleTypeValueComparison:    true,
	RuleTypeCustom:             true,
}

var validSeverities = map[Severity]bool{
	SeverityInfo:     true,
	SeverityWarning:  true,
	SeverityError:    true,
	SeverityCritical: true,
}

// Valid reports whether the rule type is part of the supported vocabulary
func (t RuleType) Valid() bool {
	return validRuleTypes[t]
}

// Valid reports whether the severity is part of the supported vocabulary
func (s Severity) Valid() bool {
	return validSeverities[s]
}

// Valid reports whether the operator has a registered evaluation function
func (o Operator) Valid() bool {
	_, ok := operatorFuncs[o]
	return ok
}

// ExistenceCheck reports whether the operator only inspects field presence
// and therefore needs no operand
func (o Operator) ExistenceCheck() bool {
	return o == OperatorExists || o == OperatorNotExists
}

// Numeric reports whether the operator coerces both sides to numbers
func (o Operator) Numeric() bool {
	switch o {
	case OperatorGreaterThan, OperatorLessThan, OperatorGreaterOrEqual, OperatorLessOrEqual:
		return true
	}
	return false
}
