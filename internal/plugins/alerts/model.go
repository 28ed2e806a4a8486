// Package alerts evaluates stored alert rules against freshly inserted
// records and dispatches matched rules to delivery adapters (email, push,
// message bus).
//
// Rules are stored in an array-indexed, parent-referencing shape: groups are
// addressed by index and point at their parent group's index, and triggers
// point at the group they belong to. Compile turns that shape into a tree
// once, when a rule is loaded, so unknown operators and broken group
// references are configuration errors rather than evaluation failures.
package alerts

import (
	"errors"
	"fmt"
	"time"
)

// ErrTypeMismatch marks a numeric operator applied to a non-numeric value.
// The evaluator swallows it and treats the trigger as false.
var ErrTypeMismatch = errors.New("alerts: type mismatch")

// AdapterError wraps a delivery failure with the adapter that produced it.
// The dispatcher logs these and moves on to the next action.
type AdapterError struct {
	Adapter string
	Err     error
}

// Error implements the error interface.
func (e *AdapterError) Error() string {
	return fmt.Sprintf("alert adapter %s: %v", e.Adapter, e.Err)
}

// Unwrap returns the underlying error.
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Status controls whether a rule takes part in evaluation.
type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

// Relation is how a group combines its children.
type Relation string

const (
	RelationAnd Relation = "and"
	RelationOr  Relation = "or"
)

// GroupConfig is one stored group. Index 0 is the root; its Parent is nil.
type GroupConfig struct {
	Index    int      `json:"index" yaml:"index"`
	Parent   *int     `json:"parent" yaml:"parent"`
	Relation Relation `json:"relation" yaml:"relation"`
}

// TriggerConfig is one stored condition. Type names the record field
// ("action", "user_role", "meta.post_title") and Value holds the operand:
// a scalar, or a list for in, !in and between.
type TriggerConfig struct {
	Group    int    `json:"group" yaml:"group"`
	Type     string `json:"type" yaml:"type"`
	Operator string `json:"operator" yaml:"operator"`
	Value    any    `json:"value" yaml:"value"`
}

// Action names an adapter and the templated params handed to it.
type Action struct {
	Type   string            `json:"type" yaml:"type"`
	Params map[string]string `json:"params" yaml:"params"`
}

// Rule is an alert rule as stored.
type Rule struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	Status    Status          `json:"status" yaml:"status"`
	Triggers  []TriggerConfig `json:"triggers" yaml:"triggers"`
	Groups    []GroupConfig   `json:"groups" yaml:"groups"`
	Actions   []Action        `json:"actions" yaml:"actions"`
	CreatedAt time.Time       `json:"created_at" yaml:"-"`
	UpdatedAt time.Time       `json:"updated_at" yaml:"-"`
}

// IsEnabled reports whether the rule should be evaluated.
func (r *Rule) IsEnabled() bool {
	return r.Status == StatusEnabled
}

// RuleInput is the writable part of a rule for create and update.
type RuleInput struct {
	Name     string          `json:"name"`
	Status   Status          `json:"status"`
	Triggers []TriggerConfig `json:"triggers"`
	Groups   []GroupConfig   `json:"groups"`
	Actions  []Action        `json:"actions"`
}

// Group is a compiled group: its triggers in stored order, then its child
// groups in stored order.
type Group struct {
	Index    int
	Relation Relation
	Triggers []Trigger
	Groups   []*Group
}

// Trigger is a compiled condition with a parsed operator and normalized operands.
type Trigger struct {
	Field    string
	Operator Operator
	Values   []string
}

// CompiledRule pairs a stored rule with its compiled tree.
type CompiledRule struct {
	Rule *Rule
	Root *Group
}

// Field describes one configuration parameter an adapter accepts.
type Field struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Help     string `json:"help,omitempty"`
}
