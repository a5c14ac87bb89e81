package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// operatorFunc evaluates a resolved entity value against a rule operand.
// The evaluation timestamp is fixed once per evaluation pass and threaded
// through so date operators see a consistent "now".
type operatorFunc func(resolved interface{}, operand string, now time.Time) (bool, error)

// operatorFuncs is the closed dispatch table for the operator vocabulary.
// Existence operators are handled by the evaluator before dispatch, since
// they act on field presence rather than field value.
var operatorFuncs = map[Operator]operatorFunc{
	OperatorEquals: func(resolved interface{}, operand string, _ time.Time) (bool, error) {
		return stringify(resolved) == operand, nil
	},
	OperatorNotEquals: func(resolved interface{}, operand string, _ time.Time) (bool, error) {
		return stringify(resolved) != operand, nil
	},
	OperatorGreaterThan: func(resolved interface{}, operand string, _ time.Time) (bool, error) {
		a, b, err := coerceNumbers(resolved, operand)
		if err != nil {
			return false, err
		}
		return a > b, nil
	},
	OperatorLessThan: func(resolved interface{}, operand string, _ time.Time) (bool, error) {
		a, b, err := coerceNumbers(resolved, operand)
		if err != nil {
			return false, err
		}
		return a < b, nil
	},
	OperatorGreaterOrEqual: func(resolved interface{}, operand string, _ time.Time) (bool, error) {
		a, b, err := coerceNumbers(resolved, operand)
		if err != nil {
			return false, err
		}
		return a >= b, nil
	},
	OperatorLessOrEqual: func(resolved interface{}, operand string, _ time.Time) (bool, error) {
		a, b, err := coerceNumbers(resolved, operand)
		if err != nil {
			return false, err
		}
		return a <= b, nil
	},
	OperatorContains: func(resolved interface{}, operand string, _ time.Time) (bool, error) {
		return strings.Contains(stringify(resolved), operand), nil
	},
	OperatorNotContains: func(resolved interface{}, operand string, _ time.Time) (bool, error) {
		return !strings.Contains(stringify(resolved), operand), nil
	},
	OperatorInList: func(resolved interface{}, operand string, _ time.Time) (bool, error) {
		return inList(resolved, operand), nil
	},
	OperatorNotInList: func(resolved interface{}, operand string, _ time.Time) (bool, error) {
		return !inList(resolved, operand), nil
	},
	OperatorIsValid: func(resolved interface{}, _ string, now time.Time) (bool, error) {
		t, err := coerceTime(resolved)
		if err != nil {
			return false, err
		}
		return t.After(now), nil
	},
	OperatorIsExpired: func(resolved interface{}, _ string, now time.Time) (bool, error) {
		t, err := coerceTime(resolved)
		if err != nil {
			return false, err
		}
		return !t.After(now), nil
	},
	// Presence is decided during field resolution; reaching the table with a
	// resolved value means the field exists.
	OperatorExists: func(_ interface{}, _ string, _ time.Time) (bool, error) {
		return true, nil
	},
	OperatorNotExists: func(_ interface{}, _ string, _ time.Time) (bool, error) {
		return false, nil
	},
}

// stringify renders a resolved value for string comparison
func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// coerceNumbers converts both comparison sides to float64. Failure here is
// reported to the caller, which degrades the rule to failed rather than
// aborting the evaluation pass.
func coerceNumbers(resolved interface{}, operand string) (float64, float64, error) {
	a, err := toFloat(resolved)
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.ParseFloat(strings.TrimSpace(operand), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("operand %q is not numeric", operand)
	}
	return a, b, nil
}

func toFloat(v interface{}) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", val)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("value of type %T is not numeric", v)
	}
}

// coerceTime interprets a resolved value as a date. Accepts time.Time,
// RFC 3339 strings and bare dates.
func coerceTime(v interface{}) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("value %q is not a date", val)
	default:
		return time.Time{}, fmt.Errorf("value of type %T is not a date", v)
	}
}

// inList treats the operand as a comma-separated set
func inList(resolved interface{}, operand string) bool {
	needle := stringify(resolved)
	for _, item := range strings.Split(operand, ",") {
		if strings.TrimSpace(item) == needle {
			return true
		}
	}
	return false
}
