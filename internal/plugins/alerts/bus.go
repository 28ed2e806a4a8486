package alerts

import (
	"context"
	"errors"
	"strings"

	"github.com/keyxmakerx/stream/internal/plugins/records"
)

// Publisher publishes a JSON payload on a subject.
type Publisher interface {
	Publish(subject string, payload any) error
}

// busEnvelope is the message published for a matched alert.
type busEnvelope struct {
	RuleID   string          `json:"rule_id"`
	RuleName string          `json:"rule_name"`
	Record   *records.Record `json:"record"`
	Message  string          `json:"message"`
}

// BusAdapter publishes matched alerts to a message bus for downstream
// consumers (chat bridges, SIEM forwarders).
type BusAdapter struct {
	publisher      Publisher
	defaultSubject string
}

// NewBusAdapter creates the bus adapter.
func NewBusAdapter(publisher Publisher, defaultSubject string) *BusAdapter {
	return &BusAdapter{publisher: publisher, defaultSubject: defaultSubject}
}

// Name implements Adapter.
func (a *BusAdapter) Name() string { return "bus" }

// Fields implements Adapter.
func (a *BusAdapter) Fields() []Field {
	return []Field{
		{Name: "subject", Title: "Subject", Type: "text", Help: "Defaults to " + a.defaultSubject},
		{Name: "message", Title: "Message", Type: "textarea"},
	}
}

// Send publishes one envelope.
func (a *BusAdapter) Send(_ context.Context, alert Alert) error {
	if a.publisher == nil {
		return &AdapterError{Adapter: a.Name(), Err: errors.New("message bus is not connected")}
	}
	subject := strings.TrimSpace(alert.Params["subject"])
	if subject == "" {
		subject = a.defaultSubject
	}

	err := a.publisher.Publish(subject, busEnvelope{
		RuleID:   alert.RuleID,
		RuleName: alert.RuleName,
		Record:   alert.Record,
		Message:  alert.Params["message"],
	})
	if err != nil {
		return &AdapterError{Adapter: a.Name(), Err: err}
	}
	return nil
}

var _ Adapter = (*BusAdapter)(nil)
