package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/procureflow/backend/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RuleOutcome is the per-rule result within an evaluation pass.
type RuleOutcome struct {
	RuleDefinitionID uuid.UUID              `json:"rule_definition_id"`
	Code             string                 `json:"code"`
	Name             string                 `json:"name"`
	Result           RuleResult             `json:"result"`
	Severity         Severity               `json:"severity"`
	IsMandatory      bool                   `json:"is_mandatory"`
	Score            float64                `json:"score"`
	MaxScore         float64                `json:"max_score"`
	Message          string                 `json:"message"`
	Details          map[string]interface{} `json:"details,omitempty"`
}

// EvaluationResult aggregates all rule outcomes for one entity against one
// rule set. Consumers use TotalScore / MaxPossibleScore for percentage
// scoring.
type EvaluationResult struct {
	RuleSetID        uuid.UUID     `json:"rule_set_id"`
	RuleSetVersion   int           `json:"rule_set_version"`
	EntityType       EntityType    `json:"entity_type"`
	EntityID         uuid.UUID     `json:"entity_id"`
	OverallStatus    RuleResult    `json:"overall_status"`
	TotalScore       float64       `json:"total_score"`
	MaxPossibleScore float64       `json:"max_possible_score"`
	Outcomes         []RuleOutcome `json:"outcomes"`
	EvaluatedAt      time.Time     `json:"evaluated_at"`
	ExecutionTimeMs  int64         `json:"execution_time_ms"`
}

// Evaluator runs the active rule definitions of a rule set against an entity
// snapshot and writes the execution audit trail.
type Evaluator struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewEvaluator creates a new rule evaluator
func NewEvaluator(db *gorm.DB, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{db: db, log: log}
}

// Evaluate loads the active rule set, evaluates every active rule definition
// in priority order against the entity, writes one execution log row per rule
// plus one aggregate row, and returns the structured result.
//
// A per-rule resolution or coercion problem degrades that single rule to
// failed and evaluation continues. Only a missing rule set is fatal, in which
// case no log rows are written.
func (ev *Evaluator) Evaluate(ctx context.Context, entity *Entity, ruleSetID uuid.UUID) (*EvaluationResult, error) {
	start := time.Now()

	var ruleSet database.RuleSet
	err := ev.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", ruleSetID, true).
		First(&ruleSet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleSetNotFound
		}
		return nil, fmt.Errorf("failed to load rule set: %w", err)
	}

	var definitions []database.RuleDefinition
	err = ev.db.WithContext(ctx).
		Where("rule_set_id = ? AND is_active = ?", ruleSet.ID, true).
		Order("sort_order ASC, code ASC").
		Find(&definitions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load rule definitions: %w", err)
	}

	result := &EvaluationResult{
		RuleSetID:      ruleSet.ID,
		RuleSetVersion: ruleSet.Version,
		EntityType:     entity.Type,
		EntityID:       entity.ID,
		OverallStatus:  RuleResultPassed,
		Outcomes:       make([]RuleOutcome, 0, len(definitions)),
		EvaluatedAt:    start,
	}

	for i := range definitions {
		outcome := ev.evaluateDefinition(&definitions[i], entity, start)
		result.Outcomes = append(result.Outcomes, outcome)
		result.TotalScore += outcome.Score
		result.MaxPossibleScore += outcome.MaxScore

		switch outcome.Result {
		case RuleResultFailed:
			result.OverallStatus = RuleResultFailed
		case RuleResultWarning:
			if result.OverallStatus != RuleResultFailed {
				result.OverallStatus = RuleResultWarning
			}
		}
	}

	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	if err := ev.writeExecutionLogs(ctx, &ruleSet, entity, result); err != nil {
		ev.log.Error("failed to write rule execution logs",
			zap.String("rule_set_id", ruleSet.ID.String()),
			zap.String("entity_id", entity.ID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to write execution logs: %w", err)
	}

	ev.log.Info("rule set evaluated",
		zap.String("rule_set_id", ruleSet.ID.String()),
		zap.Int("rule_set_version", ruleSet.Version),
		zap.String("entity_type", string(entity.Type)),
		zap.String("entity_id", entity.ID.String()),
		zap.String("overall_status", string(result.OverallStatus)),
		zap.Float64("total_score", result.TotalScore),
		zap.Int64("execution_time_ms", result.ExecutionTimeMs))

	return result, nil
}

// evaluateDefinition applies a single rule definition to the entity. The
// evaluation timestamp is fixed per pass so every date rule sees the same
// "now".
func (ev *Evaluator) evaluateDefinition(def *database.RuleDefinition, entity *Entity, now time.Time) RuleOutcome {
	outcome := RuleOutcome{
		RuleDefinitionID: def.ID,
		Code:             def.Code,
		Name:             def.Name,
		Severity:         Severity(def.Severity),
		IsMandatory:      def.IsMandatory,
		MaxScore:         maxAttainable(def),
		Details: map[string]interface{}{
			"field": def.Field,
		},
	}

	op := Operator(def.Operator)
	if op == "" {
		// Pure existence checks may omit the operator
		op = OperatorExists
	}

	passed, evalErr := ev.applyOperator(def, entity, op, now)
	if evalErr != nil {
		outcome.Details["error"] = evalErr.Error()
	}

	if passed {
		outcome.Result = RuleResultPassed
		outcome.Score = contributionCap(def)
		outcome.Message = def.SuccessMessage
		if outcome.Message == "" {
			outcome.Message = fmt.Sprintf("rule %s passed", def.Code)
		}
	} else {
		// A failed check only blocks compliance when the rule is mandatory
		// or its severity is error/critical; otherwise it annotates the
		// result as a warning.
		if def.IsMandatory || Severity(def.Severity).Blocking() {
			outcome.Result = RuleResultFailed
		} else {
			outcome.Result = RuleResultWarning
		}
		outcome.Message = def.FailureMessage
		if outcome.Message == "" {
			outcome.Message = fmt.Sprintf("rule %s failed", def.Code)
		}
	}

	return outcome
}

// applyOperator resolves the rule's field and dispatches the operator. All
// errors are fail-closed: they surface as a false result with an explanation,
// never as an aborted pass.
func (ev *Evaluator) applyOperator(def *database.RuleDefinition, entity *Entity, op Operator, now time.Time) (bool, error) {
	resolved, present := entity.Resolve(def.Field)
	if !present {
		// A missing field satisfies not_exists and fails everything else
		return op == OperatorNotExists, nil
	}

	fn, ok := operatorFuncs[op]
	if !ok {
		return false, fmt.Errorf("unknown operator %q", op)
	}

	operand := def.Value
	// Threshold takes precedence over value for numeric operators
	if def.Threshold != nil && op.Numeric() {
		operand = fmt.Sprintf("%g", *def.Threshold)
	}

	passed, err := fn(resolved, operand, now)
	if err != nil {
		return false, err
	}
	return passed, nil
}

// contributionCap is the rule's score contribution when it passes:
// min(weight, maxScore) when a cap is set, otherwise weight.
func contributionCap(def *database.RuleDefinition) float64 {
	if def.MaxScore != nil && *def.MaxScore < def.Weight {
		return *def.MaxScore
	}
	return def.Weight
}

// maxAttainable is the rule's share of the maximum possible score: maxScore
// when set, otherwise weight.
func maxAttainable(def *database.RuleDefinition) float64 {
	if def.MaxScore != nil {
		return *def.MaxScore
	}
	return def.Weight
}

// writeExecutionLogs persists one row per evaluated rule plus the aggregate
// summary row (nil rule_definition_id) in a single batch.
func (ev *Evaluator) writeExecutionLogs(ctx context.Context, ruleSet *database.RuleSet, entity *Entity, result *EvaluationResult) error {
	logs := make([]database.RuleExecutionLog, 0, len(result.Outcomes)+1)

	for i := range result.Outcomes {
		outcome := &result.Outcomes[i]
		details, err := json.Marshal(map[string]interface{}{
			"message": outcome.Message,
			"details": outcome.Details,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal outcome details: %w", err)
		}
		defID := outcome.RuleDefinitionID
		logs = append(logs, database.RuleExecutionLog{
			TenantID:         ruleSet.TenantID,
			RuleSetID:        ruleSet.ID,
			RuleDefinitionID: &defID,
			EntityType:       string(entity.Type),
			EntityID:         entity.ID,
			Result:           string(outcome.Result),
			Score:            outcome.Score,
			Details:          details,
			ExecutionTimeMs:  result.ExecutionTimeMs,
		})
	}

	summary, err := json.Marshal(map[string]interface{}{
		"total_score":        result.TotalScore,
		"max_possible_score": result.MaxPossibleScore,
		"rules_evaluated":    len(result.Outcomes),
		"rule_set_version":   result.RuleSetVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation summary: %w", err)
	}
	logs = append(logs, database.RuleExecutionLog{
		TenantID:        ruleSet.TenantID,
		RuleSetID:       ruleSet.ID,
		EntityType:      string(entity.Type),
		EntityID:        entity.ID,
		Result:          string(result.OverallStatus),
		Score:           result.TotalScore,
		Details:         summary,
		ExecutionTimeMs: result.ExecutionTimeMs,
	})

	return ev.db.WithContext(ctx).Create(&logs).Error
}
