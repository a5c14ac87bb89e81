package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/procureflow/backend/internal/database"
	"gorm.io/gorm"
)

// SnapshotPayload is the serialized full state of a rule set at snapshot time
type SnapshotPayload struct {
	RuleSet     database.RuleSet          `json:"rule_set"`
	Definitions []database.RuleDefinition `json:"definitions"`
}

// HistoryTracker records an immutable full-state snapshot of a rule set on
// every mutation. Snapshots are append-only and never rewritten; rollback is
// implemented as cloning a snapshot into a new draft, not as in-place edits.
type HistoryTracker struct {
	db *gorm.DB
}

// NewHistoryTracker creates a new version history tracker
func NewHistoryTracker(db *gorm.DB) *HistoryTracker {
	return &HistoryTracker{db: db}
}

// Snapshot captures the rule set and all of its definitions inside the
// caller's transaction, so a failed mutation leaves no snapshot behind.
func (h *HistoryTracker) Snapshot(tx *gorm.DB, ruleSetID uuid.UUID, changedBy, changeReason string) error {
	var ruleSet database.RuleSet
	if err := tx.First(&ruleSet, "id = ?", ruleSetID).Error; err != nil {
		return fmt.Errorf("failed to load rule set for snapshot: %w", err)
	}

	var definitions []database.RuleDefinition
	if err := tx.Where("rule_set_id = ?", ruleSet.ID).
		Order("sort_order ASC, code ASC").
		Find(&definitions).Error; err != nil {
		return fmt.Errorf("failed to load definitions for snapshot: %w", err)
	}

	payload, err := json.Marshal(SnapshotPayload{RuleSet: ruleSet, Definitions: definitions})
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	history := database.RuleVersionHistory{
		RuleSetID:    ruleSet.ID,
		Version:      ruleSet.Version,
		Snapshot:     payload,
		ChangedBy:    changedBy,
		ChangeReason: changeReason,
	}
	if err := tx.Create(&history).Error; err != nil {
		return fmt.Errorf("failed to record version history: %w", err)
	}
	return nil
}

// List returns all snapshots for a rule set in version order, oldest first
func (h *HistoryTracker) List(ctx context.Context, ruleSetID uuid.UUID) ([]database.RuleVersionHistory, error) {
	var history []database.RuleVersionHistory
	err := h.db.WithContext(ctx).
		Where("rule_set_id = ?", ruleSetID).
		Order("version ASC, created_at ASC").
		Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list version history: %w", err)
	}
	return history, nil
}
