// Package alert emails operators about pipeline failures that need a
// human: exhausted retries, messages the server keeps rejecting.
package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Config holds the SMTP settings for sending alerts.
type Config struct {
	Server   string // host:port
	Username string
	Password string
	From     string
	To       []string
}

// Mailer sends alert mail over SMTP with PLAIN auth. Each send dials a
// fresh connection; alerts are rare enough that keeping one open is not
// worth the reconnect handling.
type Mailer struct {
	cfg Config
}

// NewMailer creates a Mailer. It does not dial until the first send.
func NewMailer(cfg Config) *Mailer {
	return &Mailer{cfg: cfg}
}

// DownloadFailed reports a message that could not be downloaded after all
// retries.
func (m *Mailer) DownloadFailed(user, box string, uid uint32, cause error) error {
	subject := fmt.Sprintf("Mail download failed: %s/%s UID %d", user, box, uid)
	body := fmt.Sprintf("The downloader gave up on %s/%s UID %d at %s.\r\n\r\nLast error:\r\n%v\r\n",
		user, box, uid, time.Now().Format(time.RFC1123), cause)
	return m.send(subject, body)
}

func (m *Mailer) send(subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(m.cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
	err := smtp.SendMail(m.cfg.Server, auth, m.cfg.From, m.cfg.To, strings.NewReader(msg.String()))
	if err != nil {
		return fmt.Errorf("failed to send alert mail: %w", err)
	}
	return nil
}
