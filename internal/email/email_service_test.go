package email

import (
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pharmeast/pharmeast-backend/internal/config"
)

func testConfig() config.EmailConfig {
	cfg := config.EmailConfig{
		Enabled:  true,
		From:     "noreply@pharmeast.com",
		FromName: "Pharmeast",
	}
	cfg.SMTP.Host = "smtp.pharmeast.com"
	cfg.SMTP.Port = 587
	return cfg
}

type sentMail struct {
	addr string
	from string
	to   []string
	body string
}

func newCapturingService(t *testing.T) (*Service, *[]sentMail) {
	t.Helper()
	var sent []sentMail
	svc := NewService(testConfig(), WithSendFunc(
		func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			sent = append(sent, sentMail{addr: addr, from: from, to: to, body: string(msg)})
			return nil
		}))
	return svc, &sent
}

func TestSendBuildsHeaders(t *testing.T) {
	svc, sent := newCapturingService(t)

	err := svc.Send(&Message{
		To:      []string{"staff@pharmeast.com"},
		Subject: "New reply",
		Body:    "<p>hi</p>",

		ContentType: "text/html",
	})
	require.NoError(t, err)
	require.Len(t, *sent, 1)

	mail := (*sent)[0]
	require.Equal(t, "smtp.pharmeast.com:587", mail.addr)
	require.Equal(t, "noreply@pharmeast.com", mail.from)
	require.Contains(t, mail.body, "From: Pharmeast <noreply@pharmeast.com>")
	require.Contains(t, mail.body, "Subject: New reply")
	require.Contains(t, mail.body, "Content-Type: text/html; charset=UTF-8")
	require.True(t, strings.HasSuffix(mail.body, "<p>hi</p>"))
}

func TestSendValidations(t *testing.T) {
	svc, _ := newCapturingService(t)
	require.Error(t, svc.Send(&Message{Subject: "no recipients"}))

	disabled := NewService(config.EmailConfig{})
	require.Error(t, disabled.Send(&Message{To: []string{"a@b.c"}}))
}

func TestRenderBuiltinContactTemplate(t *testing.T) {
	svc, _ := newCapturingService(t)
	out, err := svc.Render("contact", map[string]any{
		"sender":  "a@x.com",
		"subject": "Order Q",
		"body":    "where is my order",
	})
	require.NoError(t, err)
	require.Contains(t, out, "a@x.com")
	require.Contains(t, out, "Order Q")
	require.Contains(t, out, "where is my order")
}

func TestSendTemplateHTMLOverride(t *testing.T) {
	svc, sent := newCapturingService(t)

	err := svc.SendTemplate(
		[]string{"staff@pharmeast.com"},
		"contact",
		map[string]any{"subject": "ignored"},
		&SendOptions{Subject: "New inbound reply", HTMLOverride: "<b>custom</b>"},
	)
	require.NoError(t, err)
	require.Len(t, *sent, 1)
	require.Contains(t, (*sent)[0].body, "Subject: New inbound reply")
	require.Contains(t, (*sent)[0].body, "<b>custom</b>")
}

func TestRenderUnknownTemplate(t *testing.T) {
	svc, _ := newCapturingService(t)
	_, err := svc.Render("missing", nil)
	require.Error(t, err)
}
