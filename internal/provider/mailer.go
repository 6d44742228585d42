package provider

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

type Email struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// SMTPMailer sends plain-text mail through an authenticated SMTP relay.
type SMTPMailer struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(host string, port int, user, password, from string) *SMTPMailer {
	return &SMTPMailer{Host: host, Port: port, User: user, Password: password, From: from, sendMail: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("email has no recipient")
	}
	var auth smtp.Auth
	if m.User != "" {
		auth = smtp.PlainAuth("", m.User, m.Password, m.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	if err := m.sendMail(addr, auth, m.From, []string{msg.To}, buildMessage(m.From, msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func buildMessage(from string, msg Email) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}

// LogMailer prints emails instead of sending them. Used when SMTP is not configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Email) error {
	log.Printf("📧 [mock email] to=%s subject=%q\n%s", msg.To, msg.Subject, msg.Body)
	return nil
}

// NewMailer returns an SMTP mailer, or a LogMailer when host is empty.
func NewMailer(host string, port int, user, password, from string) Mailer {
	if host == "" {
		log.Println("⚠️ SMTP_HOST is empty, emails are logged instead of sent")
		return LogMailer{}
	}
	return NewSMTPMailer(host, port, user, password, from)
}
