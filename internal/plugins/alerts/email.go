package alerts

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
)

// Mailer sends one message to a recipient list.
type Mailer interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
	IsConfigured() bool
}

// EmailAdapter emails matched alerts to users and raw addresses.
type EmailAdapter struct {
	mailer Mailer
	users  UserDirectory
}

// NewEmailAdapter creates the email adapter.
func NewEmailAdapter(mailer Mailer, users UserDirectory) *EmailAdapter {
	return &EmailAdapter{mailer: mailer, users: users}
}

// Name implements Adapter.
func (a *EmailAdapter) Name() string { return "email" }

// Fields implements Adapter.
func (a *EmailAdapter) Fields() []Field {
	tagHelp := "Supports %%" + strings.Join(TagNames, "%%, %%") + "%%"
	return []Field{
		{Name: "users", Title: "Users", Type: "user_ids", Help: "Comma-separated user IDs"},
		{Name: "emails", Title: "Email addresses", Type: "text", Help: "Comma-separated addresses"},
		{Name: "subject", Title: "Subject", Type: "text", Required: true, Help: tagHelp},
		{Name: "message", Title: "Message", Type: "textarea", Required: true, Help: tagHelp},
	}
}

// Send resolves recipients and sends one message to all of them.
func (a *EmailAdapter) Send(ctx context.Context, alert Alert) error {
	if a.mailer == nil || !a.mailer.IsConfigured() {
		return &AdapterError{Adapter: a.Name(), Err: errors.New("mail transport is not configured")}
	}

	recipients := a.recipients(ctx, alert.Params["users"], alert.Params["emails"])
	if len(recipients) == 0 {
		return &AdapterError{Adapter: a.Name(), Err: errors.New("no valid recipients")}
	}

	if err := a.mailer.SendMail(ctx, recipients, alert.Params["subject"], alert.Params["message"]); err != nil {
		return &AdapterError{Adapter: a.Name(), Err: err}
	}
	return nil
}

// recipients merges user addresses and raw addresses, dropping invalid
// entries and case-insensitive duplicates. First occurrence wins.
func (a *EmailAdapter) recipients(ctx context.Context, userIDs, emails string) []string {
	var candidates []string

	for _, raw := range splitParam(userIDs) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			slog.Warn("email alert: invalid user id", slog.String("user", raw))
			continue
		}
		if a.users == nil {
			continue
		}
		addr, err := a.users.Email(ctx, id)
		if err != nil || addr == "" {
			slog.Warn("email alert: user has no address",
				slog.Int64("user_id", id),
				slog.Any("error", err),
			)
			continue
		}
		candidates = append(candidates, addr)
	}
	candidates = append(candidates, splitParam(emails)...)

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		parsed, err := mail.ParseAddress(c)
		if err != nil {
			slog.Warn("email alert: invalid address", slog.String("address", c))
			continue
		}
		key := strings.ToLower(parsed.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, parsed.Address)
	}
	return out
}

// splitParam splits a comma list param, trimming items and dropping empties.
func splitParam(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var _ Adapter = (*EmailAdapter)(nil)
