package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/procureflow/backend/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RuleSetCache caches the resolved active rule set per (tenant, country).
// Implementations must tolerate misses; a nil cache disables caching.
// InvalidateCountry drops every tenant's entry for a country, since a shared
// rule set can be cached as a fallback under any tenant's key.
type RuleSetCache interface {
	GetActive(ctx context.Context, tenantID *uuid.UUID, country string) (*database.RuleSet, error)
	SetActive(ctx context.Context, tenantID *uuid.UUID, country string, ruleSet *database.RuleSet) error
	Invalidate(ctx context.Context, tenantID *uuid.UUID, country string) error
	InvalidateCountry(ctx context.Context, country string) error
}

// RuleSetInput holds the fields for creating a rule set draft
type RuleSetInput struct {
	TenantID    *uuid.UUID `json:"tenant_id"`
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	Country     string     `json:"country"`
}

// DefinitionInput holds the fields for creating or updating a rule definition
type DefinitionInput struct {
	Code           string   `json:"code" binding:"required"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	RuleType       RuleType `json:"rule_type" binding:"required"`
	Operator       Operator `json:"operator"`
	Field          string   `json:"field" binding:"required"`
	Value          string   `json:"value"`
	Threshold      *float64 `json:"threshold"`
	Weight         float64  `json:"weight"`
	MaxScore       *float64 `json:"max_score"`
	Severity       Severity `json:"severity"`
	IsMandatory    bool     `json:"is_mandatory"`
	SortOrder      int      `json:"sort_order"`
	IsActive       *bool    `json:"is_active"` // nil means true on add, unchanged on update
	SuccessMessage string   `json:"success_message"`
	FailureMessage string   `json:"failure_message"`
}

// RuleSetService owns the rule set lifecycle: draft creation, definition
// management, publish, clone, archive and default assignment. Publish and
// clone are serialized per rule set id so concurrent calls cannot produce
// duplicate version numbers.
type RuleSetService struct {
	db      *gorm.DB
	history *HistoryTracker
	cache   RuleSetCache
	log     *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewRuleSetService creates a new rule set lifecycle service. cache may be
// nil.
func NewRuleSetService(db *gorm.DB, cache RuleSetCache, log *zap.Logger) *RuleSetService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RuleSetService{
		db:      db,
		history: NewHistoryTracker(db),
		cache:   cache,
		log:     log,
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

// History exposes the version history tracker
func (s *RuleSetService) History() *HistoryTracker {
	return s.history
}

// ruleSetLock returns the mutex serializing mutations for one rule set id
func (s *RuleSetService) ruleSetLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// CreateRuleSet creates a new rule set in draft state (version 1, unpublished)
func (s *RuleSetService) CreateRuleSet(ctx context.Context, input RuleSetInput, changedBy string) (*database.RuleSet, error) {
	country := input.Country
	if country == "" {
		country = CountryGlobal
	}

	ruleSet := database.RuleSet{
		TenantID:    input.TenantID,
		Name:        input.Name,
		Description: input.Description,
		Country:     country,
		Version:     1,
		IsActive:    true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ruleSet).Error; err != nil {
			return fmt.Errorf("failed to create rule set: %w", err)
		}
		return s.history.Snapshot(tx, ruleSet.ID, changedBy, "created")
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("rule set created",
		zap.String("rule_set_id", ruleSet.ID.String()),
		zap.String("country", ruleSet.Country))
	return &ruleSet, nil
}

// GetRuleSet loads a rule set with its definitions
func (s *RuleSetService) GetRuleSet(ctx context.Context, id uuid.UUID) (*database.RuleSet, error) {
	var ruleSet database.RuleSet
	err := s.db.WithContext(ctx).
		Preload("Definitions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, code ASC")
		}).
		First(&ruleSet, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleSetNotFound
		}
		return nil, fmt.Errorf("failed to load rule set: %w", err)
	}
	return &ruleSet, nil
}

// ListRuleSets lists rule sets for a tenant, newest first. A nil tenant lists
// the shared/global sets.
func (s *RuleSetService) ListRuleSets(ctx context.Context, tenantID *uuid.UUID) ([]database.RuleSet, error) {
	var ruleSets []database.RuleSet
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if tenantID != nil {
		query = query.Where("tenant_id = ?", *tenantID)
	} else {
		query = query.Where("tenant_id IS NULL")
	}
	if err := query.Find(&ruleSets).Error; err != nil {
		return nil, fmt.Errorf("failed to list rule sets: %w", err)
	}
	return ruleSets, nil
}

// AddDefinition adds a rule definition to a draft rule set
func (s *RuleSetService) AddDefinition(ctx context.Context, ruleSetID uuid.UUID, input DefinitionInput, changedBy string) (*database.RuleDefinition, error) {
	if err := validateDefinitionInput(&input); err != nil {
		return nil, err
	}

	var def database.RuleDefinition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ruleSet, err := s.loadForMutation(tx, ruleSetID)
		if err != nil {
			return err
		}
		if err := s.checkCodeAvailable(tx, ruleSet.ID, input.Code, uuid.Nil); err != nil {
			return err
		}

		active := true
		if input.IsActive != nil {
			active = *input.IsActive
		}

		def = database.RuleDefinition{
			RuleSetID:      ruleSet.ID,
			Code:           input.Code,
			Name:           input.Name,
			Description:    input.Description,
			RuleType:       string(input.RuleType),
			Operator:       string(input.Operator),
			Field:          input.Field,
			Value:          input.Value,
			Threshold:      input.Threshold,
			Weight:         input.Weight,
			MaxScore:       input.MaxScore,
			Severity:       string(input.Severity),
			IsMandatory:    input.IsMandatory,
			SortOrder:      input.SortOrder,
			IsActive:       active,
			SuccessMessage: input.SuccessMessage,
			FailureMessage: input.FailureMessage,
		}
		if err := tx.Create(&def).Error; err != nil {
			return fmt.Errorf("failed to create rule definition: %w", err)
		}
		return s.history.Snapshot(tx, ruleSet.ID, changedBy, "definition added: "+def.Code)
	})
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// UpdateDefinition updates a rule definition on a draft rule set
func (s *RuleSetService) UpdateDefinition(ctx context.Context, ruleSetID, definitionID uuid.UUID, input DefinitionInput, changedBy string) (*database.RuleDefinition, error) {
	if err := validateDefinitionInput(&input); err != nil {
		return nil, err
	}

	var def database.RuleDefinition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ruleSet, err := s.loadForMutation(tx, ruleSetID)
		if err != nil {
			return err
		}
		if err := s.checkCodeAvailable(tx, ruleSet.ID, input.Code, definitionID); err != nil {
			return err
		}

		if err := tx.First(&def, "id = ? AND rule_set_id = ?", definitionID, ruleSet.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDefinitionNotFound
			}
			return fmt.Errorf("failed to load rule definition: %w", err)
		}

		def.Code = input.Code
		def.Name = input.Name
		def.Description = input.Description
		def.RuleType = string(input.RuleType)
		def.Operator = string(input.Operator)
		def.Field = input.Field
		def.Value = input.Value
		def.Threshold = input.Threshold
		def.Weight = input.Weight
		def.MaxScore = input.MaxScore
		def.Severity = string(input.Severity)
		def.IsMandatory = input.IsMandatory
		def.SortOrder = input.SortOrder
		if input.IsActive != nil {
			def.IsActive = *input.IsActive
		}
		def.SuccessMessage = input.SuccessMessage
		def.FailureMessage = input.FailureMessage

		if err := tx.Save(&def).Error; err != nil {
			return fmt.Errorf("failed to update rule definition: %w", err)
		}
		return s.history.Snapshot(tx, ruleSet.ID, changedBy, "definition updated: "+def.Code)
	})
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// RemoveDefinition soft-deletes a rule definition from a draft rule set.
// Rows are never hard-deleted so historical execution logs keep resolving.
func (s *RuleSetService) RemoveDefinition(ctx context.Context, ruleSetID, definitionID uuid.UUID, changedBy string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ruleSet, err := s.loadForMutation(tx, ruleSetID)
		if err != nil {
			return err
		}

		var def database.RuleDefinition
		if err := tx.First(&def, "id = ? AND rule_set_id = ?", definitionID, ruleSet.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDefinitionNotFound
			}
			return fmt.Errorf("failed to load rule definition: %w", err)
		}

		if err := tx.Delete(&def).Error; err != nil {
			return fmt.Errorf("failed to remove rule definition: %w", err)
		}
		return s.history.Snapshot(tx, ruleSet.ID, changedBy, "definition removed: "+def.Code)
	})
}

// Publish moves a draft rule set into the published (immutable) state.
// Requires at least one active definition; all-or-nothing, a failed publish
// leaves the rule set in draft.
func (s *RuleSetService) Publish(ctx context.Context, ruleSetID uuid.UUID, changedBy string) (*database.RuleSet, error) {
	lock := s.ruleSetLock(ruleSetID)
	lock.Lock()
	defer lock.Unlock()

	var ruleSet database.RuleSet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ruleSet, "id = ?", ruleSetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRuleSetNotFound
			}
			return fmt.Errorf("failed to load rule set: %w", err)
		}
		if ruleSet.IsPublished() {
			return &PublishValidationError{Reason: "rule set is already published"}
		}

		var definitions []database.RuleDefinition
		if err := tx.Where("rule_set_id = ? AND is_active = ?", ruleSet.ID, true).Find(&definitions).Error; err != nil {
			return fmt.Errorf("failed to load rule definitions: %w", err)
		}
		if len(definitions) == 0 {
			return &PublishValidationError{Reason: "rule set has no active rule definitions"}
		}

		seen := make(map[string]bool, len(definitions))
		for _, def := range definitions {
			if seen[def.Code] {
				return &PublishValidationError{Reason: "duplicate rule code: " + def.Code}
			}
			seen[def.Code] = true
		}

		now := time.Now()
		ruleSet.PublishedAt = &now
		if err := tx.Save(&ruleSet).Error; err != nil {
			return fmt.Errorf("failed to publish rule set: %w", err)
		}
		return s.history.Snapshot(tx, ruleSet.ID, changedBy, "published")
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, &ruleSet)
	s.log.Info("rule set published",
		zap.String("rule_set_id", ruleSet.ID.String()),
		zap.Int("version", ruleSet.Version))
	return &ruleSet, nil
}

// Clone creates a new draft rule set from an existing one, with
// version = parent.version + 1 and deep-copied definitions. The parent is
// left untouched and remains evaluable.
func (s *RuleSetService) Clone(ctx context.Context, ruleSetID uuid.UUID, changedBy string) (*database.RuleSet, error) {
	lock := s.ruleSetLock(ruleSetID)
	lock.Lock()
	defer lock.Unlock()

	var clone database.RuleSet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent database.RuleSet
		if err := tx.First(&parent, "id = ?", ruleSetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRuleSetNotFound
			}
			return fmt.Errorf("failed to load rule set: %w", err)
		}

		// All definitions carry over, inactive ones included, so the soft
		// toggle survives versioning
		var definitions []database.RuleDefinition
		if err := tx.Where("rule_set_id = ?", parent.ID).
			Order("sort_order ASC, code ASC").
			Find(&definitions).Error; err != nil {
			return fmt.Errorf("failed to load rule definitions: %w", err)
		}

		parentID := parent.ID
		clone = database.RuleSet{
			TenantID:        parent.TenantID,
			Name:            parent.Name,
			Description:     parent.Description,
			Country:         parent.Country,
			Version:         parent.Version + 1,
			IsActive:        true,
			ParentRuleSetID: &parentID,
		}
		if err := tx.Create(&clone).Error; err != nil {
			return fmt.Errorf("failed to create cloned rule set: %w", err)
		}

		for _, def := range definitions {
			copied := def
			copied.ID = uuid.Nil
			copied.RuleSetID = clone.ID
			copied.CreatedAt = time.Time{}
			copied.UpdatedAt = time.Time{}
			if err := tx.Create(&copied).Error; err != nil {
				return fmt.Errorf("failed to copy rule definition %s: %w", def.Code, err)
			}
		}

		return s.history.Snapshot(tx, clone.ID, changedBy, fmt.Sprintf("cloned from version %d", parent.Version))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("rule set cloned",
		zap.String("parent_rule_set_id", ruleSetID.String()),
		zap.String("rule_set_id", clone.ID.String()),
		zap.Int("version", clone.Version))
	return &clone, nil
}

// Archive deactivates a rule set without deleting it. Rejected while the
// rule set is the tenant's default.
func (s *RuleSetService) Archive(ctx context.Context, ruleSetID uuid.UUID, changedBy string) error {
	var ruleSet database.RuleSet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ruleSet, "id = ?", ruleSetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRuleSetNotFound
			}
			return fmt.Errorf("failed to load rule set: %w", err)
		}
		if ruleSet.IsDefault {
			return ErrDefaultRuleSet
		}

		ruleSet.IsActive = false
		if err := tx.Save(&ruleSet).Error; err != nil {
			return fmt.Errorf("failed to archive rule set: %w", err)
		}
		return s.history.Snapshot(tx, ruleSet.ID, changedBy, "archived")
	})
	if err != nil {
		return err
	}

	s.invalidateCache(ctx, &ruleSet)
	return nil
}

// SetDefault makes a rule set the fallback for its (tenant, country) pair,
// clearing any previous default so at most one exists at a time.
func (s *RuleSetService) SetDefault(ctx context.Context, ruleSetID uuid.UUID) error {
	var ruleSet database.RuleSet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ruleSet, "id = ? AND is_active = ?", ruleSetID, true).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRuleSetNotFound
			}
			return fmt.Errorf("failed to load rule set: %w", err)
		}

		clear := tx.Model(&database.RuleSet{}).Where("country = ? AND is_default = ?", ruleSet.Country, true)
		if ruleSet.TenantID != nil {
			clear = clear.Where("tenant_id = ?", *ruleSet.TenantID)
		} else {
			clear = clear.Where("tenant_id IS NULL")
		}
		if err := clear.Update("is_default", false).Error; err != nil {
			return fmt.Errorf("failed to clear previous default: %w", err)
		}

		ruleSet.IsDefault = true
		return tx.Save(&ruleSet).Error
	})
	if err != nil {
		return err
	}

	s.invalidateCache(ctx, &ruleSet)
	return nil
}

// GetActiveRuleSet resolves the rule set to evaluate for a tenant: the
// tenant's active default for the country first, then the shared global
// default for that country, then the shared GLOBAL baseline.
func (s *RuleSetService) GetActiveRuleSet(ctx context.Context, tenantID *uuid.UUID, country string) (*database.RuleSet, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetActive(ctx, tenantID, country); err == nil && cached != nil {
			return cached, nil
		}
	}

	candidates := []struct {
		tenantID *uuid.UUID
		country  string
	}{
		{tenantID, country},
		{nil, country},
		{nil, CountryGlobal},
	}

	for _, c := range candidates {
		var ruleSet database.RuleSet
		query := s.db.WithContext(ctx).
			Where("country = ? AND is_default = ? AND is_active = ?", c.country, true, true)
		if c.tenantID != nil {
			query = query.Where("tenant_id = ?", *c.tenantID)
		} else {
			query = query.Where("tenant_id IS NULL")
		}
		err := query.First(&ruleSet).Error
		if err == nil {
			if s.cache != nil {
				if cacheErr := s.cache.SetActive(ctx, tenantID, country, &ruleSet); cacheErr != nil {
					s.log.Warn("failed to cache active rule set", zap.Error(cacheErr))
				}
			}
			return &ruleSet, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to resolve active rule set: %w", err)
		}
	}

	return nil, ErrRuleSetNotFound
}

// RollbackToVersion creates a new draft from a historical snapshot. The
// historical rows themselves are never mutated.
func (s *RuleSetService) RollbackToVersion(ctx context.Context, ruleSetID uuid.UUID, version int, changedBy string) (*database.RuleSet, error) {
	lock := s.ruleSetLock(ruleSetID)
	lock.Lock()
	defer lock.Unlock()

	var restored database.RuleSet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current database.RuleSet
		if err := tx.First(&current, "id = ?", ruleSetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRuleSetNotFound
			}
			return fmt.Errorf("failed to load rule set: %w", err)
		}

		var history database.RuleVersionHistory
		err := tx.Where("rule_set_id = ? AND version = ?", ruleSetID, version).
			Order("created_at DESC").
			First(&history).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("no snapshot for version %d: %w", version, ErrRuleSetNotFound)
			}
			return fmt.Errorf("failed to load snapshot: %w", err)
		}

		var snapshot SnapshotPayload
		if err := json.Unmarshal(history.Snapshot, &snapshot); err != nil {
			return fmt.Errorf("failed to decode snapshot: %w", err)
		}

		currentID := current.ID
		restored = database.RuleSet{
			TenantID:        current.TenantID,
			Name:            snapshot.RuleSet.Name,
			Description:     snapshot.RuleSet.Description,
			Country:         snapshot.RuleSet.Country,
			Version:         current.Version + 1,
			IsActive:        true,
			ParentRuleSetID: &currentID,
		}
		if err := tx.Create(&restored).Error; err != nil {
			return fmt.Errorf("failed to create restored rule set: %w", err)
		}

		for _, def := range snapshot.Definitions {
			copied := def
			copied.ID = uuid.Nil
			copied.RuleSetID = restored.ID
			copied.CreatedAt = time.Time{}
			copied.UpdatedAt = time.Time{}
			if err := tx.Create(&copied).Error; err != nil {
				return fmt.Errorf("failed to restore rule definition %s: %w", def.Code, err)
			}
		}

		return s.history.Snapshot(tx, restored.ID, changedBy, fmt.Sprintf("rolled back to version %d", version))
	})
	if err != nil {
		return nil, err
	}
	return &restored, nil
}

// checkCodeAvailable rejects a code already used by a live definition of the
// rule set. Soft-deleted rows do not count, so a removed code can be reused
// within the same draft.
func (s *RuleSetService) checkCodeAvailable(tx *gorm.DB, ruleSetID uuid.UUID, code string, excludeID uuid.UUID) error {
	query := tx.Model(&database.RuleDefinition{}).
		Where("rule_set_id = ? AND code = ?", ruleSetID, code)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check rule code: %w", err)
	}
	if count > 0 {
		return &ValidationError{Reason: "duplicate rule code: " + code}
	}
	return nil
}

// loadForMutation loads a rule set and rejects the mutation when published
func (s *RuleSetService) loadForMutation(tx *gorm.DB, ruleSetID uuid.UUID) (*database.RuleSet, error) {
	var ruleSet database.RuleSet
	if err := tx.First(&ruleSet, "id = ?", ruleSetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleSetNotFound
		}
		return nil, fmt.Errorf("failed to load rule set: %w", err)
	}
	if ruleSet.IsPublished() {
		return nil, ErrImmutableRuleSet
	}
	return &ruleSet, nil
}

func (s *RuleSetService) invalidateCache(ctx context.Context, ruleSet *database.RuleSet) {
	if s.cache == nil {
		return
	}
	// A shared set can be cached as a fallback under any tenant's key for its
	// country, so its whole country entry space has to go. A tenant-scoped
	// set is only ever cached under its own key.
	var err error
	if ruleSet.TenantID == nil {
		err = s.cache.InvalidateCountry(ctx, ruleSet.Country)
	} else {
		err = s.cache.Invalidate(ctx, ruleSet.TenantID, ruleSet.Country)
	}
	if err != nil {
		s.log.Warn("failed to invalidate rule set cache",
			zap.String("rule_set_id", ruleSet.ID.String()),
			zap.Error(err))
	}
}

func validateDefinitionInput(input *DefinitionInput) error {
	if input.Code == "" {
		return &ValidationError{Reason: "rule code is required"}
	}
	if input.Field == "" {
		return &ValidationError{Reason: "rule field is required"}
	}
	if !input.RuleType.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("unknown rule type %q", input.RuleType)}
	}
	if input.Operator == "" {
		// Only pure existence checks may omit the operator
		if input.RuleType != RuleTypeDocumentRequired {
			return &ValidationError{Reason: "operator is required for rule type " + string(input.RuleType)}
		}
	} else if !input.Operator.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("unknown operator %q", input.Operator)}
	}
	if input.Severity == "" {
		input.Severity = SeverityError
	} else if !input.Severity.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("unknown severity %q", input.Severity)}
	}
	if input.Weight == 0 {
		input.Weight = 1
	}
	return nil
}
