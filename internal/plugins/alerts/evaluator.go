package alerts

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/keyxmakerx/stream/internal/plugins/records"
)

// metaPrefix marks a trigger field that reads record metadata.
const metaPrefix = "meta."

// recordFieldKinds lists the record columns triggers may reference.
var recordFieldKinds = map[string]fieldKind{
	records.ColID:        kindNumber,
	records.ColSiteID:    kindNumber,
	records.ColBlogID:    kindNumber,
	records.ColObjectID:  kindNumber,
	records.ColUserID:    kindNumber,
	records.ColCreated:   kindNumber,
	records.ColUserRole:  kindText,
	records.ColSummary:   kindText,
	records.ColConnector: kindText,
	records.ColContext:   kindText,
	records.ColAction:    kindText,
	records.ColIP:        kindExact,
}

func isKnownField(field string) bool {
	if key, ok := strings.CutPrefix(field, metaPrefix); ok {
		return strings.TrimSpace(key) != ""
	}
	_, ok := recordFieldKinds[field]
	return ok
}

func fieldKindOf(field string) fieldKind {
	if strings.HasPrefix(field, metaPrefix) {
		return kindMeta
	}
	return recordFieldKinds[field]
}

// resolver looks a trigger field up on a record. The boolean is false when
// the record has no value for it.
type resolver func(field string, rec *records.Record, meta records.Meta) (value, bool)

// Evaluator walks compiled rule trees. It holds no mutable state and is safe
// for concurrent use.
type Evaluator struct {
	resolve resolver
}

// NewEvaluator creates an evaluator that reads record columns and metadata.
func NewEvaluator() *Evaluator {
	return &Evaluator{resolve: resolveField}
}

// EvaluateGroup combines the group's children left to right: triggers first,
// then nested groups. AND stops at the first false, OR at the first true.
// An empty AND group is true and an empty OR group is false.
func (e *Evaluator) EvaluateGroup(g *Group, rec *records.Record, meta records.Meta) bool {
	if g.Relation == RelationOr {
		for i := range g.Triggers {
			if e.EvaluateTrigger(&g.Triggers[i], rec, meta) {
				return true
			}
		}
		for _, child := range g.Groups {
			if e.EvaluateGroup(child, rec, meta) {
				return true
			}
		}
		return false
	}

	for i := range g.Triggers {
		if !e.EvaluateTrigger(&g.Triggers[i], rec, meta) {
			return false
		}
	}
	for _, child := range g.Groups {
		if !e.EvaluateGroup(child, rec, meta) {
			return false
		}
	}
	return true
}

// EvaluateTrigger applies one condition. A field the record does not carry,
// or a numeric comparison on a non-numeric value, evaluates to false.
func (e *Evaluator) EvaluateTrigger(t *Trigger, rec *records.Record, meta records.Meta) bool {
	v, ok := e.resolve(t.Field, rec, meta)
	if !ok {
		return false
	}

	matched, err := t.Operator.apply(v, t.Values)
	if err != nil {
		if errors.Is(err, ErrTypeMismatch) {
			slog.Debug("trigger type mismatch",
				slog.String("field", t.Field),
				slog.String("operator", t.Operator.String()),
				slog.Int64("record_id", rec.ID),
			)
		}
		return false
	}
	return matched
}

// FindMatchingRules returns the IDs of enabled rules whose root group
// matches, in rule order and without duplicates. Each rule is evaluated in
// isolation: a panic while evaluating one rule counts as no match.
func (e *Evaluator) FindMatchingRules(rec *records.Record, meta records.Meta, rules []*CompiledRule) []string {
	matched := []string{}
	seen := make(map[string]bool, len(rules))
	for _, cr := range rules {
		if cr == nil || cr.Rule == nil || !cr.Rule.IsEnabled() || seen[cr.Rule.ID] {
			continue
		}
		if e.matchRule(cr, rec, meta) {
			seen[cr.Rule.ID] = true
			matched = append(matched, cr.Rule.ID)
		}
	}
	return matched
}

func (e *Evaluator) matchRule(cr *CompiledRule, rec *records.Record, meta records.Meta) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("alert rule evaluation panicked",
				slog.String("rule_id", cr.Rule.ID),
				slog.Any("panic", fmt.Sprint(r)),
			)
			ok = false
		}
	}()
	return e.EvaluateGroup(cr.Root, rec, meta)
}

// resolveField is the default resolver.
func resolveField(field string, rec *records.Record, meta records.Meta) (value, bool) {
	if key, ok := strings.CutPrefix(field, metaPrefix); ok {
		items := meta[key]
		if len(items) == 0 {
			return value{}, false
		}
		return value{items: items, kind: kindMeta}, true
	}

	kind, ok := recordFieldKinds[field]
	if !ok {
		return value{}, false
	}
	switch field {
	case records.ColCreated:
		if rec.Created.IsZero() {
			return value{}, false
		}
		return value{items: []string{strconv.FormatInt(rec.Created.Unix(), 10)}, kind: kind}, true
	case records.ColObjectID:
		if rec.ObjectID == 0 {
			return value{}, false
		}
	case records.ColIP:
		if rec.IP == "" {
			return value{}, false
		}
	}

	s, ok := rec.Column(field)
	if !ok {
		return value{}, false
	}
	return value{items: []string{s}, kind: kind}, true
}
