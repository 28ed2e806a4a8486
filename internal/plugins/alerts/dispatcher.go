package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/keyxmakerx/stream/internal/plugins/records"
)

// Dispatcher delivers one matched rule for one record.
type Dispatcher struct {
	registry *Registry
	users    UserDirectory
}

// NewDispatcher creates a dispatcher over the startup registry.
func NewDispatcher(registry *Registry, users UserDirectory) *Dispatcher {
	return &Dispatcher{registry: registry, users: users}
}

// Dispatch runs the rule's actions in order. Each action's params are
// rendered against the record, then handed to the adapter named by the
// action type. Failures are logged and never stop later actions. It returns
// the number of actions that failed.
func (d *Dispatcher) Dispatch(ctx context.Context, rule *Rule, rec *records.Record) int {
	tags := BuildTags(ctx, rec, d.users)
	failed := 0

	for i, action := range rule.Actions {
		err := d.send(ctx, rule, rec, action, tags)
		if err == nil {
			continue
		}
		failed++

		adapter := action.Type
		var adapterErr *AdapterError
		if errors.As(err, &adapterErr) {
			adapter = adapterErr.Adapter
		}
		slog.Error("alert delivery failed",
			slog.String("rule_id", rule.ID),
			slog.Int("action", i),
			slog.String("adapter", adapter),
			slog.Int64("record_id", rec.ID),
			slog.Any("error", err),
		)
	}
	return failed
}

// send delivers one action, turning adapter panics into errors.
func (d *Dispatcher) send(ctx context.Context, rule *Rule, rec *records.Record, action Action, tags Tags) (err error) {
	adapter, ok := d.registry.Get(action.Type)
	if !ok {
		return &AdapterError{Adapter: action.Type, Err: errors.New("no adapter registered")}
	}

	defer func() {
		if r := recover(); r != nil {
			err = &AdapterError{Adapter: action.Type, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	return adapter.Send(ctx, Alert{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Record:   rec,
		Params:   RenderParams(action.Params, tags),
	})
}

// RuleSource provides the compiled rules to evaluate.
type RuleSource interface {
	EnabledRules(ctx context.Context) ([]*CompiledRule, error)
}

// Notifier connects the record store to alerting. It is registered as a
// records.Listener and runs for every successful insert.
type Notifier struct {
	rules       RuleSource
	evaluator   *Evaluator
	dispatcher  *Dispatcher
	concurrency int
}

// NewNotifier creates a notifier. concurrency bounds how many matched rules
// are delivered at once.
func NewNotifier(rules RuleSource, evaluator *Evaluator, dispatcher *Dispatcher, concurrency int) *Notifier {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Notifier{
		rules:       rules,
		evaluator:   evaluator,
		dispatcher:  dispatcher,
		concurrency: concurrency,
	}
}

// RecordInserted evaluates every enabled rule against the new record and
// dispatches each match exactly once. Matched rules are delivered in
// parallel, so a slow adapter on one rule does not hold up the others.
func (n *Notifier) RecordInserted(ctx context.Context, rec *records.Record, meta records.Meta) {
	// The record is already committed; delivery outlives the ingest request.
	ctx = context.WithoutCancel(ctx)

	rules, err := n.rules.EnabledRules(ctx)
	if err != nil {
		slog.Error("failed to load alert rules",
			slog.Int64("record_id", rec.ID),
			slog.Any("error", err),
		)
		return
	}

	matched := n.evaluator.FindMatchingRules(rec, meta, rules)
	if len(matched) == 0 {
		return
	}

	byID := make(map[string]*Rule, len(rules))
	for _, cr := range rules {
		byID[cr.Rule.ID] = cr.Rule
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.concurrency)
	for _, id := range matched {
		rule := byID[id]
		g.Go(func() error {
			if failed := n.dispatcher.Dispatch(gctx, rule, rec); failed > 0 {
				slog.Warn("alert rule delivered with failures",
					slog.String("rule_id", rule.ID),
					slog.Int("failed_actions", failed),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("alert rules matched",
		slog.Int64("record_id", rec.ID),
		slog.Any("rules", matched),
	)
}
