package notifications

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/luxtransfer/booking/pkg/config"
	"github.com/luxtransfer/booking/pkg/resilience"
)

// EmailSender delivers an email, optionally with a calendar invite attached.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body, ics string) error
}

// SMTPClient sends mail over authenticated SMTP.
type SMTPClient struct {
	addr    string
	auth    smtp.Auth
	from    string
	breaker *resilience.CircuitBreaker

	// send is swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPClient creates an SMTP email client.
func NewSMTPClient(cfg *config.SMTPConfig) *SMTPClient {
	breaker := resilience.NewCircuitBreaker(
		resilience.DefaultSettings("smtp"),
		resilience.GracefulDegradation("smtp"),
	)
	return &SMTPClient{
		addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth:    smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host),
		from:    cfg.From,
		breaker: breaker,
		send:    smtp.SendMail,
	}
}

// SendEmail implements EmailSender. A non-empty ics string is attached as a
// text/calendar part so mail clients surface the pickup as an event.
func (c *SMTPClient) SendEmail(ctx context.Context, to, subject, body, ics string) error {
	msg := buildMessage(c.from, to, subject, body, ics)

	_, err := c.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, c.send(c.addr, c.auth, c.from, []string{to}, msg)
	})
	if err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", to, err)
	}
	return nil
}

func buildMessage(from, to, subject, body, ics string) []byte {
	var b strings.Builder
	write := func(line string) {
		b.WriteString(line)
		b.WriteString("\r\n")
	}

	write("From: " + from)
	write("To: " + to)
	write("Subject: " + subject)
	write("MIME-Version: 1.0")

	if ics == "" {
		write(`Content-Type: text/plain; charset="UTF-8"`)
		write("")
		write(body)
		return []byte(b.String())
	}

	const boundary = "luxtransfer-mail-boundary"
	write(fmt.Sprintf(`Content-Type: multipart/mixed; boundary="%s"`, boundary))
	write("")
	write("--" + boundary)
	write(`Content-Type: text/plain; charset="UTF-8"`)
	write("")
	write(body)
	write("--" + boundary)
	write(`Content-Type: text/calendar; charset="UTF-8"; method=REQUEST`)
	write("Content-Transfer-Encoding: base64")
	write(`Content-Disposition: attachment; filename="pickup.ics"`)
	write("")
	write(base64.StdEncoding.EncodeToString([]byte(ics)))
	write("--" + boundary + "--")
	return []byte(b.String())
}
