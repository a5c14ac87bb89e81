package utils

import (
	"strings"

	"github.com/gosimple/slug"
)

// RuleCode derives a stable rule code from a human-readable name, e.g.
// RuleCode("DOC", "Tax Clearance Certificate") -> "DOC_TAX_CLEARANCE_CERTIFICATE".
func RuleCode(prefix, name string) string {
	code := strings.ToUpper(strings.ReplaceAll(slug.Make(name), "-", "_"))
	if prefix == "" {
		return code
	}
	return prefix + "_" + code
}
