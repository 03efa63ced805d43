// Package notify sends transactional email: negative review alerts and the
// weekly task digest.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-resty/resty/v2"

	"gmbdash/server/internal/config"
)

// Message is one outbound email. HTML is required; Text is the plain
// alternative.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New picks the mailer named by MAIL_PROVIDER.
func New(cfg *config.Config) (Mailer, error) {
	switch cfg.MailProvider {
	case "sendgrid":
		return NewSendGrid(cfg.SendGridAPIKey, cfg.MailFrom, ""), nil
	case "smtp":
		return NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom), nil
	case "none", "":
		return NoopMailer{}, nil
	}
	return nil, errors.Errorf("unknown mail provider %q", cfg.MailProvider)
}

// --- SendGrid ---

const sendGridURL = "https://api.sendgrid.com/v3/mail/send"

type SendGrid struct {
	http *resty.Client
	from string
	url  string
}

// NewSendGrid posts to the v3 mail/send endpoint; endpoint overrides the
// production URL when non-empty.
func NewSendGrid(apiKey, from, endpoint string) *SendGrid {
	if endpoint == "" {
		endpoint = sendGridURL
	}
	return &SendGrid{
		http: resty.New().SetTimeout(15 * time.Second).SetAuthToken(apiKey),
		from: from,
		url:  endpoint,
	}
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	body := sgMail{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: msg.To}}}},
		From:             sgAddress{Email: s.from},
		Subject:          msg.Subject,
	}
	// text/plain must precede text/html.
	if msg.Text != "" {
		body.Content = append(body.Content, sgContent{Type: "text/plain", Value: msg.Text})
	}
	body.Content = append(body.Content, sgContent{Type: "text/html", Value: msg.HTML})

	resp, err := s.http.R().SetContext(ctx).SetBody(body).Post(s.url)
	if err != nil {
		return errors.Wrap(err, "sendgrid request")
	}
	if resp.IsError() {
		return errors.Errorf("sendgrid: status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// --- SMTP ---

type SMTP struct {
	addr string
	auth smtp.Auth
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(host string, port int, username, password, from string) *SMTP {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTP{addr: fmt.Sprintf("%s:%d", host, port), auth: auth, from: from, send: smtp.SendMail}
}

func (s *SMTP) Send(_ context.Context, msg Message) error {
	if err := s.send(s.addr, s.auth, s.from, []string{msg.To}, buildMIME(s.from, msg)); err != nil {
		return errors.Wrap(err, "smtp send")
	}
	return nil
}

const mimeBoundary = "gmbdash-alt-boundary"

// buildMIME renders a multipart/alternative message.
func buildMIME(from string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mimeBoundary)
	if msg.Text != "" {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n", mimeBoundary, msg.Text)
	}
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n", mimeBoundary, msg.HTML)
	fmt.Fprintf(&b, "--%s--\r\n", mimeBoundary)
	return []byte(b.String())
}

// --- No-op ---

// NoopMailer logs instead of sending; used when no provider is configured.
type NoopMailer struct{}

func (NoopMailer) Send(_ context.Context, msg Message) error {
	log.Printf("[notify] mail disabled, dropping %q to %s", msg.Subject, msg.To)
	return nil
}
