package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/stream/internal/apperror"
)

// dialTimeout bounds connecting to the mail server.
const dialTimeout = 10 * time.Second

// MailService is the interface other plugins use to send email.
type MailService interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
	IsConfigured() bool

	// Status returns the settings without credentials.
	Status() Status

	// TestConnection verifies connectivity and authentication.
	TestConnection(ctx context.Context) error
}

// smtpService implements MailService over net/smtp.
type smtpService struct {
	settings Settings
	now      func() time.Time
}

// NewMailService creates a mail service. An empty host leaves it
// unconfigured; SendMail then fails without dialing.
func NewMailService(settings Settings) MailService {
	if settings.Port <= 0 {
		settings.Port = 587
	}
	if settings.Encryption == "" {
		settings.Encryption = EncryptionStartTLS
	}
	if settings.FromName == "" {
		settings.FromName = "Stream"
	}
	return &smtpService{settings: settings, now: time.Now}
}

// IsConfigured returns true if a host and sender are set.
func (s *smtpService) IsConfigured() bool {
	return s.settings.Host != "" && s.settings.FromAddress != ""
}

// Status returns the redacted settings.
func (s *smtpService) Status() Status {
	return Status{
		Configured:  s.IsConfigured(),
		Host:        s.settings.Host,
		Port:        s.settings.Port,
		Encryption:  s.settings.Encryption,
		FromAddress: s.settings.FromAddress,
		HasPassword: s.settings.Password != "",
	}
}

// SendMail sends one message to all recipients.
func (s *smtpService) SendMail(ctx context.Context, to []string, subject, body string) error {
	if !s.IsConfigured() {
		return apperror.NewBadRequest("SMTP is not configured")
	}
	if len(to) == 0 {
		return apperror.NewBadRequest("no recipients")
	}

	from := mail.Address{Name: s.settings.FromName, Address: s.settings.FromAddress}
	msg := s.buildMessage(from, Mail{To: to, Subject: subject, Body: body})
	addr := net.JoinHostPort(s.settings.Host, fmt.Sprint(s.settings.Port))

	var err error
	switch s.settings.Encryption {
	case EncryptionSSL:
		err = s.sendSSL(ctx, addr, from.Address, to, msg)
	case EncryptionNone:
		err = s.sendPlain(addr, from.Address, to, msg)
	default:
		err = s.sendStartTLS(ctx, addr, from.Address, to, msg)
	}
	if err != nil {
		return err
	}

	slog.Info("mail sent",
		slog.Int("recipients", len(to)),
		slog.String("host", s.settings.Host),
	)
	return nil
}

// buildMessage renders an RFC 5322 plain-text message.
func (s *smtpService) buildMessage(from mail.Address, m Mail) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from.String()))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(m.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject)))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", s.now().UTC().Format(time.RFC1123Z)))
	msg.WriteString(fmt.Sprintf("Message-ID: <%s@%s>\r\n", uuid.NewString(), messageIDHost(from.Address)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(strings.ReplaceAll(m.Body, "\r\n", "\n"), "\n", "\r\n"))
	return msg.String()
}

func messageIDHost(address string) string {
	if at := strings.LastIndex(address, "@"); at >= 0 && at < len(address)-1 {
		return address[at+1:]
	}
	return "localhost"
}

// sendStartTLS sends email using STARTTLS (port 587 typical).
func (s *smtpService) sendStartTLS(ctx context.Context, addr, from string, to []string, msg string) error {
	client, err := s.dial(ctx, addr, false)
	if err != nil {
		return err
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: s.settings.Host, MinVersion: tls.VersionTLS12}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("starting TLS: %w", err)
	}
	if err := s.auth(client); err != nil {
		return err
	}
	return sendMessage(client, from, to, msg)
}

// sendSSL sends email using implicit SSL/TLS (port 465 typical).
func (s *smtpService) sendSSL(ctx context.Context, addr, from string, to []string, msg string) error {
	client, err := s.dial(ctx, addr, true)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := s.auth(client); err != nil {
		return err
	}
	return sendMessage(client, from, to, msg)
}

// sendPlain sends email without encryption.
func (s *smtpService) sendPlain(addr, from string, to []string, msg string) error {
	var auth gosmtp.Auth
	if s.settings.Username != "" {
		auth = gosmtp.PlainAuth("", s.settings.Username, s.settings.Password, s.settings.Host)
	}
	if err := gosmtp.SendMail(addr, auth, from, to, []byte(msg)); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	return nil
}

// dial connects and performs the SMTP greeting, wrapping the connection in
// TLS first when implicit is set.
func (s *smtpService) dial(ctx context.Context, addr string, implicit bool) (*gosmtp.Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	var err error
	if implicit {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: s.settings.Host, MinVersion: tls.VersionTLS12},
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	client, err := gosmtp.NewClient(conn, s.settings.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}
	return client, nil
}

func (s *smtpService) auth(client *gosmtp.Client) error {
	if s.settings.Username == "" {
		return nil
	}
	auth := gosmtp.PlainAuth("", s.settings.Username, s.settings.Password, s.settings.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	return nil
}

// sendMessage handles MAIL FROM, RCPT TO, DATA for an existing SMTP client.
func sendMessage(client *gosmtp.Client, from string, to []string, msg string) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", recipient, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}

// TestConnection verifies connectivity by performing the handshake and,
// when credentials are set, authenticating.
func (s *smtpService) TestConnection(ctx context.Context) error {
	if s.settings.Host == "" {
		return apperror.NewBadRequest("SMTP host is not configured")
	}
	addr := net.JoinHostPort(s.settings.Host, fmt.Sprint(s.settings.Port))

	client, err := s.dial(ctx, addr, s.settings.Encryption == EncryptionSSL)
	if err != nil {
		return apperror.NewBadRequest(fmt.Sprintf("could not connect to %s: %v", addr, err))
	}
	defer client.Close()

	if s.settings.Encryption == EncryptionStartTLS {
		tlsConfig := &tls.Config{ServerName: s.settings.Host, MinVersion: tls.VersionTLS12}
		if err := client.StartTLS(tlsConfig); err != nil {
			return apperror.NewBadRequest(fmt.Sprintf("STARTTLS failed: %v", err))
		}
	}
	if err := s.auth(client); err != nil {
		return apperror.NewBadRequest(err.Error())
	}
	return client.Quit()
}
