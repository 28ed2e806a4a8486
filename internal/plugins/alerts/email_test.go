package alerts

import (
	"context"
	"errors"
	"testing"
)

// mockMailer implements Mailer for testing.
type mockMailer struct {
	configured bool
	sendFn     func(ctx context.Context, to []string, subject, body string) error
	sent       [][]string
}

func (m *mockMailer) IsConfigured() bool { return m.configured }

func (m *mockMailer) SendMail(ctx context.Context, to []string, subject, body string) error {
	m.sent = append(m.sent, to)
	if m.sendFn != nil {
		return m.sendFn(ctx, to, subject, body)
	}
	return nil
}

func TestEmailAdapter_DedupesRecipients(t *testing.T) {
	mailer := &mockMailer{configured: true}
	users := &mockUserDirectory{emails: map[int64]string{
		1: "Admin@Example.com",
		2: "editor@example.com",
	}}
	a := NewEmailAdapter(mailer, users)

	err := a.Send(context.Background(), Alert{
		RuleID: "r",
		Record: testRecord(),
		Params: map[string]string{
			"users":   "1, 2, 404, nope",
			"emails":  "admin@example.com, ops@example.com,, not-an-address",
			"subject": "s",
			"message": "m",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(mailer.sent))
	}
	got := mailer.sent[0]
	want := []string{"Admin@Example.com", "editor@example.com", "ops@example.com"}
	if len(got) != len(want) {
		t.Fatalf("recipients = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recipient %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEmailAdapter_NotConfigured(t *testing.T) {
	a := NewEmailAdapter(&mockMailer{}, nil)
	err := a.Send(context.Background(), Alert{Params: map[string]string{"emails": "a@example.com"}})

	var adapterErr *AdapterError
	if !errors.As(err, &adapterErr) || adapterErr.Adapter != "email" {
		t.Fatalf("expected email AdapterError, got %v", err)
	}
}

func TestEmailAdapter_NoRecipients(t *testing.T) {
	mailer := &mockMailer{configured: true}
	a := NewEmailAdapter(mailer, &mockUserDirectory{})
	err := a.Send(context.Background(), Alert{Params: map[string]string{"users": "9"}})

	var adapterErr *AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("expected AdapterError, got %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Error("nothing should be sent without recipients")
	}
}

func TestEmailAdapter_TransportFailure(t *testing.T) {
	mailer := &mockMailer{configured: true, sendFn: func(context.Context, []string, string, string) error {
		return errors.New("connection refused")
	}}
	a := NewEmailAdapter(mailer, nil)
	err := a.Send(context.Background(), Alert{Params: map[string]string{"emails": "a@example.com"}})

	var adapterErr *AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("expected AdapterError, got %v", err)
	}
}
