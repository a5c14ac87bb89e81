package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createRuleEngineTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_rule_engine_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS rule_sets (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					tenant_id UUID,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					country VARCHAR(10) NOT NULL DEFAULT 'GLOBAL',
					version INT NOT NULL DEFAULT 1,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					is_default BOOLEAN NOT NULL DEFAULT FALSE,
					parent_rule_set_id UUID,
					published_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				)
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS rule_definitions (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					rule_set_id UUID NOT NULL REFERENCES rule_sets(id),
					code VARCHAR(100) NOT NULL,
					name VARCHAR(255),
					description TEXT,
					rule_type VARCHAR(50) NOT NULL,
					operator VARCHAR(50),
					field VARCHAR(255) NOT NULL,
					value TEXT,
					threshold NUMERIC,
					weight NUMERIC NOT NULL DEFAULT 1,
					max_score NUMERIC,
					severity VARCHAR(20) NOT NULL DEFAULT 'error',
					is_mandatory BOOLEAN NOT NULL DEFAULT FALSE,
					sort_order INT NOT NULL DEFAULT 0,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					success_message TEXT,
					failure_message TEXT,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				)
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS rule_version_histories (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					rule_set_id UUID NOT NULL REFERENCES rule_sets(id),
					version INT NOT NULL,
					snapshot JSONB NOT NULL,
					changed_by VARCHAR(255),
					change_reason VARCHAR(255),
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				)
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS rule_execution_logs (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					tenant_id UUID,
					rule_set_id UUID NOT NULL REFERENCES rule_sets(id),
					rule_definition_id UUID,
					entity_type VARCHAR(50) NOT NULL,
					entity_id UUID NOT NULL,
					result VARCHAR(20) NOT NULL,
					score NUMERIC NOT NULL DEFAULT 0,
					details JSONB,
					execution_time_ms BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				)
			`).Error; err != nil {
				return err
			}

			return tx.Exec(`
				CREATE UNIQUE INDEX IF NOT EXISTS idx_rule_set_code
					ON rule_definitions (rule_set_id, code)
					WHERE deleted_at IS NULL;
				CREATE INDEX IF NOT EXISTS idx_execution_entity
					ON rule_execution_logs (entity_type, entity_id);
				CREATE INDEX IF NOT EXISTS idx_rule_sets_tenant_country
					ON rule_sets (tenant_id, country);
				CREATE INDEX IF NOT EXISTS idx_version_history_rule_set
					ON rule_version_histories (rule_set_id, version)
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`
				DROP TABLE IF EXISTS rule_execution_logs;
				DROP TABLE IF EXISTS rule_version_histories;
				DROP TABLE IF EXISTS rule_definitions;
				DROP TABLE IF EXISTS rule_sets
			`).Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createRuleEngineTablesMigration())
}
