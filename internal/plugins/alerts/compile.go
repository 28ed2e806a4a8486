package alerts

import (
	"fmt"
	"strconv"
	"strings"
)

// rootIndex is the index of the implicit top-level group.
const rootIndex = 0

// Compile validates a stored rule and builds its evaluation tree.
//
// The root group is index 0 and defaults to AND when the rule does not
// store it. Every other group must name an existing parent, and following
// parents from any group must reach the root. Triggers must reference an
// existing group, a known field, a known operator and enough operands.
func Compile(rule *Rule) (*CompiledRule, error) {
	groups := make(map[int]*Group, len(rule.Groups)+1)
	parents := make(map[int]int, len(rule.Groups))

	for i, gc := range rule.Groups {
		if _, dup := groups[gc.Index]; dup {
			return nil, fmt.Errorf("group %d is defined more than once", gc.Index)
		}
		relation, err := parseRelation(gc.Relation)
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", gc.Index, err)
		}
		switch {
		case gc.Index == rootIndex && gc.Parent != nil:
			return nil, fmt.Errorf("root group cannot have a parent")
		case gc.Index != rootIndex && gc.Parent == nil:
			return nil, fmt.Errorf("group %d (position %d) has no parent", gc.Index, i)
		case gc.Index < 0:
			return nil, fmt.Errorf("group index %d is negative", gc.Index)
		}
		groups[gc.Index] = &Group{Index: gc.Index, Relation: relation}
		if gc.Parent != nil {
			parents[gc.Index] = *gc.Parent
		}
	}
	if _, ok := groups[rootIndex]; !ok {
		groups[rootIndex] = &Group{Index: rootIndex, Relation: RelationAnd}
	}

	// Parent references must exist and lead back to the root.
	for index, parent := range parents {
		if _, ok := groups[parent]; !ok {
			return nil, fmt.Errorf("group %d references missing parent %d", index, parent)
		}
		seen := map[int]bool{index: true}
		for cur := parent; cur != rootIndex; cur = parents[cur] {
			if seen[cur] {
				return nil, fmt.Errorf("group %d is part of a parent cycle", index)
			}
			seen[cur] = true
		}
	}

	for i, tc := range rule.Triggers {
		group, ok := groups[tc.Group]
		if !ok {
			return nil, fmt.Errorf("trigger %d references missing group %d", i, tc.Group)
		}
		trigger, err := compileTrigger(tc)
		if err != nil {
			return nil, fmt.Errorf("trigger %d: %w", i, err)
		}
		group.Triggers = append(group.Triggers, trigger)
	}

	// Attach child groups in stored order.
	for _, gc := range rule.Groups {
		if gc.Parent == nil {
			continue
		}
		parent := groups[*gc.Parent]
		parent.Groups = append(parent.Groups, groups[gc.Index])
	}

	return &CompiledRule{Rule: rule, Root: groups[rootIndex]}, nil
}

func parseRelation(r Relation) (Relation, error) {
	switch Relation(strings.ToLower(string(r))) {
	case "", RelationAnd:
		return RelationAnd, nil
	case RelationOr:
		return RelationOr, nil
	}
	return "", fmt.Errorf("unknown relation %q", r)
}

func compileTrigger(tc TriggerConfig) (Trigger, error) {
	field := strings.TrimSpace(tc.Type)
	if !isKnownField(field) {
		return Trigger{}, fmt.Errorf("unknown field %q", tc.Type)
	}

	op, err := ParseOperator(tc.Operator)
	if err != nil {
		return Trigger{}, err
	}

	values, err := operandValues(tc.Value, op)
	if err != nil {
		return Trigger{}, err
	}
	if len(values) < op.operandCount() {
		return Trigger{}, fmt.Errorf("operator %s needs %d value(s), got %d", op, op.operandCount(), len(values))
	}
	if op.IsNumeric() {
		if kind := fieldKindOf(field); kind == kindText || kind == kindExact {
			return Trigger{}, fmt.Errorf("operator %s does not apply to text field %q", op, field)
		}
		for _, v := range values {
			if _, err := parseOperandNumber(v); err != nil {
				return Trigger{}, err
			}
		}
	}

	return Trigger{Field: field, Operator: op, Values: values}, nil
}

// operandValues normalizes a stored operand to strings. Strings are split on
// commas for list operators.
func operandValues(raw any, op Operator) ([]string, error) {
	listOp := op == OpIn || op == OpNotIn || op == OpBetween

	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("value is required")
	case string:
		if !listOp {
			return []string{v}, nil
		}
		var out []string
		for _, part := range strings.Split(v, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	s, err := scalarString(raw)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}
