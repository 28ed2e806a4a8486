package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/stream/internal/apperror"
	"github.com/keyxmakerx/stream/internal/sanitize"
)

// compiledCacheTTL bounds how long compiled rules are reused before the
// store is read again. Writes through this service invalidate immediately;
// the TTL covers writes made by other instances.
const compiledCacheTTL = 30 * time.Second

// RuleService defines the business logic contract for alert rules.
// Handlers call these methods -- they never touch the repository directly.
type RuleService interface {
	List(ctx context.Context) ([]Rule, error)
	Get(ctx context.Context, id string) (*Rule, error)
	Create(ctx context.Context, input RuleInput) (*Rule, error)
	Update(ctx context.Context, id string, input RuleInput) (*Rule, error)
	Delete(ctx context.Context, id string) error

	// Seed upserts rules loaded from a rules file.
	Seed(ctx context.Context, rules []Rule) error

	// EnabledRules returns compiled enabled rules for evaluation.
	EnabledRules(ctx context.Context) ([]*CompiledRule, error)
}

// ruleService implements RuleService.
type ruleService struct {
	repo     RuleRepository
	registry *Registry
	now      func() time.Time

	mu         sync.RWMutex
	compiled   []*CompiledRule
	compiledAt time.Time
	generation uint64 // bumped by invalidate
}

// NewRuleService creates a new rule service. Action types are checked
// against registry.
func NewRuleService(repo RuleRepository, registry *Registry) RuleService {
	return &ruleService{
		repo:     repo,
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// List returns every stored rule.
func (s *ruleService) List(ctx context.Context) ([]Rule, error) {
	rules, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing alert rules: %w", err))
	}
	if rules == nil {
		rules = []Rule{}
	}
	return rules, nil
}

// Get returns one rule.
func (s *ruleService) Get(ctx context.Context, id string) (*Rule, error) {
	rule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapRepoError(err, "finding alert rule")
	}
	return rule, nil
}

// Create validates and stores a new rule with a generated ID.
func (s *ruleService) Create(ctx context.Context, input RuleInput) (*Rule, error) {
	now := s.now()
	rule := &Rule{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.apply(rule, input); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating alert rule: %w", err))
	}
	s.invalidate()

	slog.Info("alert rule created",
		slog.String("rule_id", rule.ID),
		slog.String("name", rule.Name),
	)
	return rule, nil
}

// Update validates and replaces an existing rule.
func (s *ruleService) Update(ctx context.Context, id string, input RuleInput) (*Rule, error) {
	rule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapRepoError(err, "finding alert rule")
	}
	if err := s.apply(rule, input); err != nil {
		return nil, err
	}
	rule.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, wrapRepoError(err, "updating alert rule")
	}
	s.invalidate()

	slog.Info("alert rule updated", slog.String("rule_id", rule.ID))
	return rule, nil
}

// Delete removes a rule.
func (s *ruleService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return wrapRepoError(err, "deleting alert rule")
	}
	s.invalidate()

	slog.Info("alert rule deleted", slog.String("rule_id", id))
	return nil
}

// Seed upserts file rules. Rules that fail validation stop the seed.
func (s *ruleService) Seed(ctx context.Context, rules []Rule) error {
	now := s.now()
	for i := range rules {
		rule := rules[i]
		rule.Name = sanitize.PlainText(rule.Name)
		if err := s.validateActions(rule.Actions); err != nil {
			return fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		rule.CreatedAt, rule.UpdatedAt = now, now
		if err := s.repo.Upsert(ctx, &rule); err != nil {
			return fmt.Errorf("seeding rule %s: %w", rule.ID, err)
		}
	}
	s.invalidate()

	slog.Info("alert rules seeded", slog.Int("count", len(rules)))
	return nil
}

// EnabledRules compiles enabled rules, reusing the last result for a short
// while. Stored rules that no longer compile are skipped and logged.
func (s *ruleService) EnabledRules(ctx context.Context) ([]*CompiledRule, error) {
	s.mu.RLock()
	if s.compiled != nil && s.now().Sub(s.compiledAt) < compiledCacheTTL {
		compiled := s.compiled
		s.mu.RUnlock()
		return compiled, nil
	}
	gen := s.generation
	s.mu.RUnlock()

	rules, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading alert rules: %w", err)
	}

	compiled := make([]*CompiledRule, 0, len(rules))
	for i := range rules {
		if !rules[i].IsEnabled() {
			continue
		}
		cr, err := Compile(&rules[i])
		if err != nil {
			slog.Error("skipping invalid alert rule",
				slog.String("rule_id", rules[i].ID),
				slog.Any("error", err),
			)
			continue
		}
		compiled = append(compiled, cr)
	}

	// A write that landed while List ran makes this snapshot stale; return
	// it to this caller but do not cache it.
	s.mu.Lock()
	if s.generation == gen {
		s.compiled = compiled
		s.compiledAt = s.now()
	}
	s.mu.Unlock()
	return compiled, nil
}

// apply validates input and copies it onto rule.
func (s *ruleService) apply(rule *Rule, input RuleInput) error {
	name := sanitize.PlainText(input.Name)
	if name == "" {
		return apperror.NewValidation("rule name is required")
	}
	if len(name) > 255 {
		return apperror.NewValidation("rule name must be at most 255 characters")
	}

	status := input.Status
	switch status {
	case "":
		status = StatusEnabled
	case StatusEnabled, StatusDisabled:
	default:
		return apperror.NewValidation(fmt.Sprintf("unknown status %q", input.Status))
	}

	if err := s.validateActions(input.Actions); err != nil {
		return apperror.NewValidation(err.Error())
	}

	candidate := *rule
	candidate.Name = name
	candidate.Status = status
	candidate.Triggers = input.Triggers
	candidate.Groups = input.Groups
	candidate.Actions = input.Actions
	if _, err := Compile(&candidate); err != nil {
		return apperror.NewValidation(err.Error())
	}

	*rule = candidate
	return nil
}

func (s *ruleService) validateActions(actions []Action) error {
	if len(actions) == 0 {
		return fmt.Errorf("at least one action is required")
	}
	for i, a := range actions {
		adapter, ok := s.registry.Get(a.Type)
		if !ok {
			return fmt.Errorf("action %d: unknown adapter %q", i, a.Type)
		}
		for _, f := range adapter.Fields() {
			if f.Required && strings.TrimSpace(a.Params[f.Name]) == "" {
				return fmt.Errorf("action %d: %s requires %q", i, a.Type, f.Name)
			}
		}
	}
	return nil
}

func (s *ruleService) invalidate() {
	s.mu.Lock()
	s.compiled = nil
	s.generation++
	s.mu.Unlock()
}

// wrapRepoError passes AppErrors (not found) through and wraps the rest.
func wrapRepoError(err error, op string) error {
	if _, ok := err.(*apperror.AppError); ok {
		return err
	}
	return apperror.NewInternal(fmt.Errorf("%s: %w", op, err))
}
