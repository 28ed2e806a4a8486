package alerts

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Operator is the closed set of trigger comparisons.
type Operator int

const (
	OpEquals Operator = iota + 1
	OpNotEquals
	OpContains
	OpNotContains
	OpIn
	OpNotIn
	OpGreater
	OpGreaterOrEqual
	OpLess
	OpLessOrEqual
	OpBetween
)

// operatorNames maps stored identifiers to operators. Several spellings
// exist in stored configurations.
var operatorNames = map[string]Operator{
	"=":            OpEquals,
	"==":           OpEquals,
	"equals":       OpEquals,
	"!=":           OpNotEquals,
	"not_equals":   OpNotEquals,
	"contains":     OpContains,
	"!contains":    OpNotContains,
	"not_contains": OpNotContains,
	"in":           OpIn,
	"!in":          OpNotIn,
	"not_in":       OpNotIn,
	">":            OpGreater,
	">=":           OpGreaterOrEqual,
	"<":            OpLess,
	"<=":           OpLessOrEqual,
	"between":      OpBetween,
}

// ParseOperator resolves a stored operator identifier.
func ParseOperator(s string) (Operator, error) {
	if op, ok := operatorNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

// String returns the canonical identifier.
func (o Operator) String() string {
	switch o {
	case OpEquals:
		return "="
	case OpNotEquals:
		return "!="
	case OpContains:
		return "contains"
	case OpNotContains:
		return "!contains"
	case OpIn:
		return "in"
	case OpNotIn:
		return "!in"
	case OpGreater:
		return ">"
	case OpGreaterOrEqual:
		return ">="
	case OpLess:
		return "<"
	case OpLessOrEqual:
		return "<="
	case OpBetween:
		return "between"
	}
	return "unknown"
}

// IsNumeric reports whether the operator only applies to numbers.
func (o Operator) IsNumeric() bool {
	switch o {
	case OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual, OpBetween:
		return true
	}
	return false
}

// operandCount returns the minimum number of operands the operator needs.
func (o Operator) operandCount() int {
	if o == OpBetween {
		return 2
	}
	return 1
}

// fieldKind decides how a resolved value compares.
type fieldKind int

const (
	// kindText compares case-insensitively; numeric operators do not apply.
	kindText fieldKind = iota
	// kindExact compares case-sensitively (ip).
	kindExact
	// kindNumber always holds an integer.
	kindNumber
	// kindMeta is text, multi-valued, and numeric when it parses as a number.
	kindMeta
)

// value is a field resolved against one record.
type value struct {
	items []string
	kind  fieldKind
}

// apply evaluates the operator. Multi-valued fields match when any item
// matches; negated operators are the complement of their positive form.
func (o Operator) apply(v value, operands []string) (bool, error) {
	switch o {
	case OpEquals:
		return v.any(func(item string) bool { return v.equal(item, operands[0]) }), nil
	case OpNotEquals:
		ok, err := OpEquals.apply(v, operands)
		return !ok, err
	case OpContains:
		if len(v.items) > 1 {
			return v.any(func(item string) bool { return v.equal(item, operands[0]) }), nil
		}
		return v.any(func(item string) bool { return v.contains(item, operands[0]) }), nil
	case OpNotContains:
		ok, err := OpContains.apply(v, operands)
		return !ok, err
	case OpIn:
		return v.any(func(item string) bool {
			for _, operand := range operands {
				if v.equal(item, operand) {
					return true
				}
			}
			return false
		}), nil
	case OpNotIn:
		ok, err := OpIn.apply(v, operands)
		return !ok, err
	}
	return o.compareNumeric(v, operands)
}

// compareNumeric handles the ordering operators.
func (o Operator) compareNumeric(v value, operands []string) (bool, error) {
	if v.kind == kindText || v.kind == kindExact {
		return false, ErrTypeMismatch
	}

	bounds := make([]float64, len(operands))
	for i, operand := range operands {
		n, err := parseOperandNumber(operand)
		if err != nil {
			return false, ErrTypeMismatch
		}
		bounds[i] = n
	}

	// Items that do not parse are skipped; the field is a mismatch only
	// when none of them parse.
	nums := make([]float64, 0, len(v.items))
	for _, item := range v.items {
		n, err := strconv.ParseFloat(strings.TrimSpace(item), 64)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	if len(nums) == 0 {
		return false, ErrTypeMismatch
	}

	for _, n := range nums {
		var ok bool
		switch o {
		case OpGreater:
			ok = n > bounds[0]
		case OpGreaterOrEqual:
			ok = n >= bounds[0]
		case OpLess:
			ok = n < bounds[0]
		case OpLessOrEqual:
			ok = n <= bounds[0]
		case OpBetween:
			ok = n >= bounds[0] && n <= bounds[1]
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (v value) any(match func(string) bool) bool {
	for _, item := range v.items {
		if match(item) {
			return true
		}
	}
	return false
}

func (v value) equal(a, b string) bool {
	switch v.kind {
	case kindExact:
		return a == b
	case kindNumber, kindMeta:
		if x, err := strconv.ParseFloat(a, 64); err == nil {
			if y, err := strconv.ParseFloat(b, 64); err == nil {
				return x == y
			}
		}
	}
	return strings.EqualFold(a, b)
}

func (v value) contains(haystack, needle string) bool {
	if v.kind == kindExact {
		return strings.Contains(haystack, needle)
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// parseOperandNumber accepts a number, or a date for comparisons on created
// (converted to unix seconds).
func parseOperandNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return float64(t.Unix()), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return float64(t.Unix()), nil
	}
	return 0, fmt.Errorf("%q is not a number or date", s)
}
