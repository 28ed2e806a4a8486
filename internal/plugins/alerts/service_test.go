package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keyxmakerx/stream/internal/apperror"
)

// --- Mock Repository ---

// mockRuleRepo implements RuleRepository for testing.
type mockRuleRepo struct {
	listFn     func(ctx context.Context) ([]Rule, error)
	findByIDFn func(ctx context.Context, id string) (*Rule, error)
	createFn   func(ctx context.Context, rule *Rule) error
	updateFn   func(ctx context.Context, rule *Rule) error
	deleteFn   func(ctx context.Context, id string) error
	upsertFn   func(ctx context.Context, rule *Rule) error

	listCalls int
}

func (m *mockRuleRepo) List(ctx context.Context) ([]Rule, error) {
	m.listCalls++
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockRuleRepo) FindByID(ctx context.Context, id string) (*Rule, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("alert rule not found")
}

func (m *mockRuleRepo) Create(ctx context.Context, rule *Rule) error {
	if m.createFn != nil {
		return m.createFn(ctx, rule)
	}
	return nil
}

func (m *mockRuleRepo) Update(ctx context.Context, rule *Rule) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, rule)
	}
	return nil
}

func (m *mockRuleRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockRuleRepo) Upsert(ctx context.Context, rule *Rule) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, rule)
	}
	return nil
}

// --- Test Helpers ---

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

func newTestRuleService(t *testing.T, repo RuleRepository) *ruleService {
	t.Helper()
	registry := mustRegistry(t, NewEmailAdapter(&mockMailer{configured: true}, nil), &mockAdapter{name: "mock"})
	return NewRuleService(repo, registry).(*ruleService)
}

func validInput() RuleInput {
	return RuleInput{
		Name: "Trashed posts",
		Triggers: []TriggerConfig{
			{Type: "action", Operator: "=", Value: "trashed"},
		},
		Actions: []Action{{Type: "mock"}},
	}
}

// --- Create ---

func TestCreate_Success(t *testing.T) {
	var stored *Rule
	repo := &mockRuleRepo{createFn: func(_ context.Context, rule *Rule) error {
		stored = rule
		return nil
	}}
	svc := newTestRuleService(t, repo)

	rule, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.ID == "" || stored == nil || stored.ID != rule.ID {
		t.Fatalf("expected stored rule with generated id, got %+v", stored)
	}
	if rule.Status != StatusEnabled {
		t.Errorf("expected default status enabled, got %q", rule.Status)
	}
	if rule.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := map[string]func(in *RuleInput){
		"empty name":       func(in *RuleInput) { in.Name = "  " },
		"bad status":       func(in *RuleInput) { in.Status = "paused" },
		"no actions":       func(in *RuleInput) { in.Actions = nil },
		"unknown action":   func(in *RuleInput) { in.Actions = []Action{{Type: "pager"}} },
		"unknown operator": func(in *RuleInput) { in.Triggers[0].Operator = "like" },
		"missing group":    func(in *RuleInput) { in.Triggers[0].Group = 4 },
		"missing required param": func(in *RuleInput) {
			in.Actions = []Action{{Type: "email", Params: map[string]string{"message": "m"}}}
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			repo := &mockRuleRepo{createFn: func(context.Context, *Rule) error {
				t.Error("repository should not be called for invalid input")
				return nil
			}}
			svc := newTestRuleService(t, repo)
			in := validInput()
			mutate(&in)

			_, err := svc.Create(context.Background(), in)
			assertAppError(t, err, 422)
		})
	}
}

func TestCreate_StripsMarkupFromName(t *testing.T) {
	svc := newTestRuleService(t, &mockRuleRepo{})
	in := validInput()
	in.Name = "<b>Trashed</b> posts<script>x()</script>"

	rule, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.Name != "Trashed posts" {
		t.Errorf("name = %q", rule.Name)
	}
}

func TestCreate_RepoFailure(t *testing.T) {
	repo := &mockRuleRepo{createFn: func(context.Context, *Rule) error {
		return errors.New("connection reset")
	}}
	_, err := newTestRuleService(t, repo).Create(context.Background(), validInput())
	assertAppError(t, err, 500)
}

// --- Update / Delete ---

func TestUpdate_NotFound(t *testing.T) {
	svc := newTestRuleService(t, &mockRuleRepo{})
	_, err := svc.Update(context.Background(), "missing", validInput())
	assertAppError(t, err, 404)
}

func TestUpdate_KeepsIdentity(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockRuleRepo{findByIDFn: func(_ context.Context, id string) (*Rule, error) {
		return &Rule{ID: id, Name: "old", Status: StatusEnabled, CreatedAt: created}, nil
	}}
	svc := newTestRuleService(t, repo)

	in := validInput()
	in.Status = StatusDisabled
	rule, err := svc.Update(context.Background(), "r1", in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.ID != "r1" || !rule.CreatedAt.Equal(created) || rule.Status != StatusDisabled {
		t.Errorf("unexpected rule %+v", rule)
	}
	if !rule.UpdatedAt.After(created) {
		t.Error("expected UpdatedAt to advance")
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo := &mockRuleRepo{deleteFn: func(context.Context, string) error {
		return apperror.NewNotFound("alert rule not found")
	}}
	err := newTestRuleService(t, repo).Delete(context.Background(), "missing")
	assertAppError(t, err, 404)
}

// --- EnabledRules ---

func TestEnabledRules_SkipsDisabledAndInvalid(t *testing.T) {
	repo := &mockRuleRepo{listFn: func(context.Context) ([]Rule, error) {
		return []Rule{
			{ID: "on", Status: StatusEnabled},
			{ID: "off", Status: StatusDisabled},
			{ID: "broken", Status: StatusEnabled, Triggers: []TriggerConfig{
				{Type: "nope", Operator: "=", Value: "x"},
			}},
		}, nil
	}}
	svc := newTestRuleService(t, repo)

	compiled, err := svc.EnabledRules(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(compiled) != 1 || compiled[0].Rule.ID != "on" {
		t.Errorf("expected only the valid enabled rule, got %d", len(compiled))
	}
}

func TestEnabledRules_CachedUntilWrite(t *testing.T) {
	repo := &mockRuleRepo{listFn: func(context.Context) ([]Rule, error) {
		return []Rule{{ID: "on", Status: StatusEnabled}}, nil
	}}
	svc := newTestRuleService(t, repo)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = svc.EnabledRules(ctx)
	_, _ = svc.EnabledRules(ctx)
	if repo.listCalls != 1 {
		t.Fatalf("expected cached rules on second call, got %d loads", repo.listCalls)
	}

	if _, err := svc.Create(ctx, validInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = svc.EnabledRules(ctx)
	if repo.listCalls != 2 {
		t.Errorf("expected reload after write, got %d loads", repo.listCalls)
	}

	now = now.Add(compiledCacheTTL)
	_, _ = svc.EnabledRules(ctx)
	if repo.listCalls != 3 {
		t.Errorf("expected reload after TTL, got %d loads", repo.listCalls)
	}
}

func TestEnabledRules_WriteDuringLoadIsNotCached(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	repo := &mockRuleRepo{}
	repo.listFn = func(context.Context) ([]Rule, error) {
		if repo.listCalls == 1 {
			close(entered)
			<-release
			return nil, nil
		}
		return []Rule{{ID: "new", Status: StatusEnabled}}, nil
	}
	svc := newTestRuleService(t, repo)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.EnabledRules(ctx)
	}()

	<-entered
	if _, err := svc.Create(ctx, validInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	close(release)
	<-done

	compiled, err := svc.EnabledRules(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(compiled) != 1 || compiled[0].Rule.ID != "new" {
		t.Errorf("expected rule written during load to be visible, got %d rules", len(compiled))
	}
}

// --- Seed ---

func TestSeed_UpsertsEachRule(t *testing.T) {
	var ids []string
	repo := &mockRuleRepo{upsertFn: func(_ context.Context, rule *Rule) error {
		ids = append(ids, rule.ID)
		return nil
	}}
	svc := newTestRuleService(t, repo)

	rules := []Rule{
		{ID: "a", Name: "A", Status: StatusEnabled, Actions: []Action{{Type: "mock"}}},
		{ID: "b", Name: "B", Status: StatusEnabled, Actions: []Action{{Type: "mock"}}},
	}
	if err := svc.Seed(context.Background(), rules); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("upserted %v", ids)
	}

	bad := []Rule{{ID: "c", Actions: []Action{{Type: "pager"}}}}
	if err := svc.Seed(context.Background(), bad); err == nil {
		t.Error("expected error for unknown adapter")
	}
}
