package smtp

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/keyxmakerx/stream/internal/apperror"
)

func TestSendMail_NotConfigured(t *testing.T) {
	svc := NewMailService(Settings{})
	err := svc.SendMail(context.Background(), []string{"a@example.com"}, "s", "b")

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != 400 {
		t.Fatalf("expected 400 AppError, got %v", err)
	}
}

func TestNewMailService_Defaults(t *testing.T) {
	svc := NewMailService(Settings{Host: "mail.example.com", FromAddress: "stream@example.com", Password: "secret"})
	status := svc.Status()
	if !status.Configured {
		t.Error("expected configured")
	}
	if status.Port != 587 || status.Encryption != EncryptionStartTLS {
		t.Errorf("unexpected defaults: %+v", status)
	}
	if !status.HasPassword {
		t.Error("expected has_password")
	}
}

func TestBuildMessage(t *testing.T) {
	s := &smtpService{
		settings: Settings{FromAddress: "stream@example.com", FromName: "Stream"},
		now:      func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	msg := s.buildMessage(
		mail.Address{Name: "Stream", Address: "stream@example.com"},
		Mail{To: []string{"a@example.com", "b@example.com"}, Subject: "Post updated", Body: "line1\nline2"},
	)

	for _, want := range []string{
		"From: \"Stream\" <stream@example.com>\r\n",
		"To: a@example.com, b@example.com\r\n",
		"Subject: Post updated\r\n",
		"Date: Tue, 02 Jan 2024 03:04:05 +0000\r\n",
		"@example.com>\r\n",
		"\r\n\r\nline1\r\nline2",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if !strings.Contains(msg, "Message-ID: <") {
		t.Error("expected Message-ID header")
	}
}

func TestMessageIDHost(t *testing.T) {
	if got := messageIDHost("x@mail.example.com"); got != "mail.example.com" {
		t.Errorf("got %q", got)
	}
	if got := messageIDHost("broken@"); got != "localhost" {
		t.Errorf("got %q", got)
	}
}
