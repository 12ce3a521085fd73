package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberandwick/storefront-backend/pkg/config"
)

type capturedSend struct {
	addr string
	from string
	to   []string
	msg  string
	auth smtp.Auth
}

func newTestSender(t *testing.T, sendErr error) (*SMTPSender, *capturedSend) {
	t.Helper()
	sender, err := NewSMTPSender(config.MailConfig{
		Host:      "smtp.example.test",
		Port:      587,
		Username:  "orders",
		Password:  "secret",
		FromEmail: "orders@emberandwick.test",
		FromName:  "Ember & Wick",
	})
	require.NoError(t, err)
	captured := &capturedSend{}
	sender.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		captured.addr = addr
		captured.auth = auth
		captured.from = from
		captured.to = to
		captured.msg = string(msg)
		return sendErr
	}
	sender.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return sender, captured
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	sender, captured := newTestSender(t, nil)

	err := sender.Send(context.Background(), Message{
		To:       []string{" jo@example.com ", ""},
		Subject:  "Your order ABC123",
		HTMLBody: "<p>Thanks</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.test:587", captured.addr)
	assert.Equal(t, "orders@emberandwick.test", captured.from)
	assert.Equal(t, []string{"jo@example.com"}, captured.to)
	assert.NotNil(t, captured.auth)

	headers, body, found := strings.Cut(captured.msg, "\r\n\r\n")
	require.True(t, found)
	assert.Contains(t, headers, "To: jo@example.com")
	assert.Contains(t, headers, "Subject: Your order ABC123")
	assert.Contains(t, headers, "<orders@emberandwick.test>")
	assert.Contains(t, headers, "Date: Sat, 01 Mar 2025 12:00:00 +0000")
	assert.Contains(t, headers, `Content-Type: text/html; charset="utf-8"`)
	assert.Equal(t, "<p>Thanks</p>", body)
}

func TestSMTPSenderErrors(t *testing.T) {
	sender, _ := newTestSender(t, errors.New("421 try later"))

	err := sender.Send(context.Background(), Message{To: []string{"jo@example.com"}})
	require.ErrorContains(t, err, "421 try later")

	err = sender.Send(context.Background(), Message{To: []string{"  "}})
	require.ErrorContains(t, err, "no recipients")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = sender.Send(ctx, Message{To: []string{"jo@example.com"}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewPicksSender(t *testing.T) {
	sender, err := New(config.MailConfig{}, nil)
	require.NoError(t, err)
	_, isLog := sender.(LogSender)
	assert.True(t, isLog)
	require.NoError(t, sender.Send(context.Background(), Message{To: []string{"a@b.test"}}))

	sender, err = New(config.MailConfig{Host: "smtp.example.test", Port: 465, FromEmail: "a@b.test", ImplicitTLS: true}, nil)
	require.NoError(t, err)
	smtpSender, ok := sender.(*SMTPSender)
	require.True(t, ok)
	assert.Nil(t, smtpSender.auth)

	_, err = NewSMTPSender(config.MailConfig{Host: "smtp.example.test"})
	require.Error(t, err)
}
