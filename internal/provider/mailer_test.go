package provider

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
)

func TestSMTPMailerSend(t *testing.T) {
	m := NewSMTPMailer("smtp.example.com", 587, "user", "pw", "surveys@example.com")
	var gotAddr string
	var gotTo []string
	var gotMsg string
	m.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		if a == nil {
			t.Error("expected auth when user is set")
		}
		return nil
	}

	err := m.Send(context.Background(), Email{To: "a@example.com", Subject: "Hello", Body: "link"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %s", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "a@example.com" {
		t.Errorf("to = %v", gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: Hello\r\n") || !strings.HasSuffix(gotMsg, "\r\n\r\nlink") {
		t.Errorf("unexpected message:\n%s", gotMsg)
	}
}

func TestSMTPMailerRejectsEmptyRecipient(t *testing.T) {
	m := NewSMTPMailer("h", 25, "", "", "f@example.com")
	m.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("should not send")
		return nil
	}
	if err := m.Send(context.Background(), Email{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewMailerFallsBackToLog(t *testing.T) {
	if _, ok := NewMailer("", 587, "", "", "from@example.com").(LogMailer); !ok {
		t.Error("expected LogMailer without SMTP host")
	}
	if _, ok := NewMailer("smtp.example.com", 587, "u", "p", "from@example.com").(*SMTPMailer); !ok {
		t.Error("expected SMTPMailer with SMTP host")
	}
}
