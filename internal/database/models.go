package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RuleSet represents a named, versioned, country-scoped collection of
// compliance rules. A nil TenantID marks a shared/global default set.
type RuleSet struct {
	ID              uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	TenantID        *uuid.UUID     `gorm:"type:uuid;index" json:"tenant_id"`
	Name            string         `gorm:"not null" json:"name"`
	Description     string         `json:"description"`
	Country         string         `gorm:"default:GLOBAL;index" json:"country"` // ISO-like code or GLOBAL
	Version         int            `gorm:"default:1" json:"version"`
	IsActive        bool           `json:"is_active"`
	IsDefault       bool           `gorm:"default:false" json:"is_default"`
	ParentRuleSetID *uuid.UUID     `gorm:"type:uuid" json:"parent_rule_set_id"`
	PublishedAt     *time.Time     `json:"published_at"` // nil = draft
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Definitions []RuleDefinition `gorm:"foreignKey:RuleSetID" json:"definitions,omitempty"`
}

// IsPublished reports whether the rule set has left the draft state.
func (rs *RuleSet) IsPublished() bool {
	return rs.PublishedAt != nil
}

// BeforeCreate generates the ID when the database does not
func (rs *RuleSet) BeforeCreate(tx *gorm.DB) error {
	if rs.ID == uuid.Nil {
		rs.ID = uuid.New()
	}
	return nil
}

// RuleDefinition represents one declarative check within a rule set.
type RuleDefinition struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	RuleSetID      uuid.UUID      `gorm:"type:uuid;not null;index:idx_rule_set_code" json:"rule_set_id"`
	Code           string         `gorm:"not null;index:idx_rule_set_code" json:"code"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	RuleType       string         `gorm:"not null" json:"rule_type"` // document_required, document_validity, scoring_criteria, preferential_points, blacklist_check, threshold_check, date_validation, value_comparison, custom
	Operator       string         `json:"operator"`                  // equals, greater_than, in_list, is_valid, exists, ... (optional for pure existence checks)
	Field          string         `gorm:"not null" json:"field"`     // dotted path into entity attributes
	Value          string         `json:"value"`
	Threshold      *float64       `json:"threshold"`
	Weight         float64        `gorm:"default:1" json:"weight"`
	MaxScore       *float64       `json:"max_score"`
	Severity       string         `gorm:"default:error" json:"severity"` // info, warning, error, critical
	IsMandatory    bool           `gorm:"default:false" json:"is_mandatory"`
	SortOrder      int            `gorm:"default:0" json:"sort_order"`
	// No column default: GORM would skip a false value on insert and the
	// row would come back active.
	IsActive       bool           `json:"is_active"`
	SuccessMessage string         `json:"success_message"`
	FailureMessage string         `json:"failure_message"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate generates the ID when the database does not
func (rd *RuleDefinition) BeforeCreate(tx *gorm.DB) error {
	if rd.ID == uuid.Nil {
		rd.ID = uuid.New()
	}
	return nil
}

// RuleVersionHistory is an append-only snapshot of a rule set at a point in
// time, one row per save. Snapshot holds the serialized rule set metadata
// plus all of its definitions.
type RuleVersionHistory struct {
	ID           uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	RuleSetID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"rule_set_id"`
	Version      int            `gorm:"not null" json:"version"`
	Snapshot     datatypes.JSON `gorm:"not null" json:"snapshot"`
	ChangedBy    string         `json:"changed_by"`
	ChangeReason string         `json:"change_reason"`
	CreatedAt    time.Time      `json:"created_at"`
}

// BeforeCreate generates the ID when the database does not
func (h *RuleVersionHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// RuleExecutionLog is the append-only audit trail: one row per (entity, rule)
// evaluation plus one aggregate row per evaluation pass. A nil
// RuleDefinitionID marks the aggregate row.
type RuleExecutionLog struct {
	ID               uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	TenantID         *uuid.UUID     `gorm:"type:uuid;index" json:"tenant_id"`
	RuleSetID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"rule_set_id"`
	RuleDefinitionID *uuid.UUID     `gorm:"type:uuid" json:"rule_definition_id"`
	EntityType       string         `gorm:"not null;index:idx_execution_entity" json:"entity_type"` // vendor, submission, document
	EntityID         uuid.UUID      `gorm:"type:uuid;not null;index:idx_execution_entity" json:"entity_id"`
	Result           string         `gorm:"not null" json:"result"` // passed, failed, warning
	Score            float64        `json:"score"`
	Details          datatypes.JSON `json:"details"`
	ExecutionTimeMs  int64          `json:"execution_time_ms"`
	CreatedAt        time.Time      `json:"created_at"`
}

// BeforeCreate generates the ID when the database does not
func (l *RuleExecutionLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
