package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrRuleSetNotFound is returned when evaluation or a lifecycle operation
	// references a rule set that does not exist or is inactive. Callers are
	// expected to fall back to the GLOBAL default.
	ErrRuleSetNotFound = errors.New("rule set not found or inactive")

	// ErrImmutableRuleSet is returned on any mutation attempt against a
	// published rule set. Edits require cloning a new draft version.
	ErrImmutableRuleSet = errors.New("published rule set is immutable, clone a new version to edit")

	// ErrDefaultRuleSet is returned when archiving the tenant's default rule
	// set. A new default must be assigned first.
	ErrDefaultRuleSet = errors.New("cannot archive the default rule set, assign a new default first")

	// ErrDefinitionNotFound is returned when a rule definition id does not
	// belong to the given rule set.
	ErrDefinitionNotFound = errors.New("rule definition not found")
)

// PublishValidationError rejects a publish attempt and names the violated
// precondition (zero active rules, duplicate codes, invalid vocabulary).
type PublishValidationError struct {
	Reason string
}

func (e *PublishValidationError) Error() string {
	return fmt.Sprintf("rule set cannot be published: %s", e.Reason)
}

// ValidationError rejects a malformed rule definition input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule definition: %s", e.Reason)
}
