package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleCode(t *testing.T) {
	assert.Equal(t, "DOC_TAX_CLEARANCE_CERTIFICATE", RuleCode("DOC", "Tax Clearance Certificate"))
	assert.Equal(t, "PREF_B_BBEE_LEVEL_1", RuleCode("PREF", "B-BBEE Level 1"))
	assert.Equal(t, "SARS_TAX_CLEARANCE", RuleCode("", "SARS Tax Clearance"))
	assert.Equal(t, "DOC_CIPC_COMPANY_REGISTRATION", RuleCode("DOC", "CIPC Company Registration"))
}
