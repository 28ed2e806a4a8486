// Package smtp sends outbound email for the email alert adapter. Settings
// come from the environment at startup; the password is never returned by
// any endpoint.
package smtp

// Encryption modes accepted in Settings.Encryption.
const (
	EncryptionStartTLS = "starttls"
	EncryptionSSL      = "ssl"
	EncryptionNone     = "none"
)

// Settings holds the SMTP configuration.
type Settings struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	Encryption  string // "starttls", "ssl", or "none".
}

// Status is the public view of the mail settings (GET /api/v1/smtp).
type Status struct {
	Configured  bool   `json:"configured"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Encryption  string `json:"encryption"`
	FromAddress string `json:"from_address"`
	HasPassword bool   `json:"has_password"`
}

// Mail represents an email message to be sent.
type Mail struct {
	To      []string
	Subject string
	Body    string
}
