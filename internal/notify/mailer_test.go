package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMailer() *SMTPMailer {
	return NewSMTPMailer(SMTPOptions{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "billing@example.com",
	})
}

func TestSendUnavailableWhenDisabled(t *testing.T) {
	m := NewSMTPMailer(SMTPOptions{})
	res := m.Send(context.Background(), Message{To: "a@example.com"})
	assert.False(t, res.Success)
	assert.True(t, res.Unavailable)

	var nilMailer *SMTPMailer
	assert.False(t, nilMailer.Available())
}

func TestSendBuildsMultipartMessage(t *testing.T) {
	m := testMailer()
	var captured []byte
	var rcpt []string
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "smtp.example.com:587", addr)
		assert.Equal(t, "billing@example.com", from)
		rcpt = to
		captured = msg
		return nil
	}

	res := m.Send(context.Background(), Message{
		To:       "customer@example.com",
		FromName: "Bright Spark Electric",
		Subject:  "Invoice INV-2026-0001",
		Body:     "Please find your invoice attached.",
		Attach:   []Attachment{{Filename: "INV-2026-0001.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.3")}},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"customer@example.com"}, rcpt)
	raw := string(captured)
	assert.Contains(t, raw, "To: customer@example.com")
	assert.Contains(t, raw, "multipart/mixed")
	assert.Contains(t, raw, "Please find your invoice attached.")
	assert.Contains(t, raw, `filename=INV-2026-0001.pdf`)
	assert.Contains(t, raw, "JVBERi0xLjM=")
	assert.True(t, strings.Contains(raw, "\"Bright Spark Electric\" <billing@example.com>"))
}

func TestSendReportsTransportError(t *testing.T) {
	m := testMailer()
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	res := m.Send(context.Background(), Message{To: "customer@example.com", Subject: "x"})
	assert.False(t, res.Success)
	assert.False(t, res.Unavailable)
	assert.Contains(t, res.Error, "connection refused")
}

func TestSendRejectsBadRecipient(t *testing.T) {
	m := testMailer()
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("should not send")
		return nil
	}
	res := m.Send(context.Background(), Message{To: "not-an-address"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid recipient")
}
