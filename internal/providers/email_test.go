package providers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/config"
)

type fakeMailbox struct {
	envelopes []Envelope
	err       error
	asked     int
}

func (f *fakeMailbox) Latest(_ context.Context, n int) ([]Envelope, error) {
	f.asked = n
	return f.envelopes, f.err
}

type fakeSender struct {
	sent []Outgoing
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg Outgoing) error {
	f.sent = append(f.sent, msg)
	return f.err
}

var testAccount = config.EmailConfig{Address: "me@example.com", Password: "secret", SMTPServer: "smtp.example.com", SMTPPort: 587}

func TestParseOutgoing(t *testing.T) {
	tests := []struct {
		in   string
		want Outgoing
		ok   bool
	}{
		{
			in:   "send email to bob@example.com subject: Lunch body: See you at noon",
			want: Outgoing{To: "bob@example.com", Subject: "Lunch", Body: "See you at noon"},
			ok:   true,
		},
		{
			in:   "Send an email TO bob@example.com body - hi there",
			want: Outgoing{To: "bob@example.com", Subject: "(No Subject)", Body: "hi there"},
			ok:   true,
		},
		{
			in:   "send email to bob@example.com",
			want: Outgoing{To: "bob@example.com", Subject: "(No Subject)"},
			ok:   true,
		},
		{in: "send email subject: hi body: yo", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseOutgoing(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMailerReadsInbox(t *testing.T) {
	inbox := &fakeMailbox{envelopes: []Envelope{
		{From: "Ann <ann@example.com>", Subject: "Hello"},
		{From: "bob@example.com", Subject: "Re: plans"},
	}}
	m := NewMailerWith(testAccount, inbox, &fakeSender{})

	out, err := m.HandleEmail(context.Background(), "read my emails")
	require.NoError(t, err)
	assert.Equal(t, "From: Ann <ann@example.com> | Subject: Hello\nFrom: bob@example.com | Subject: Re: plans", out)
	assert.Equal(t, inboxSize, inbox.asked)

	out, err = NewMailerWith(testAccount, &fakeMailbox{}, nil).HandleEmail(context.Background(), "check inbox")
	require.NoError(t, err)
	assert.Equal(t, "No emails found.", out)

	_, err = NewMailerWith(testAccount, &fakeMailbox{err: errors.New("auth failed")}, nil).HandleEmail(context.Background(), "inbox")
	assert.ErrorContains(t, err, "auth failed")
}

func TestMailerSends(t *testing.T) {
	sender := &fakeSender{}
	m := NewMailerWith(testAccount, &fakeMailbox{}, sender)

	out, err := m.HandleEmail(context.Background(), "send email to bob@example.com subject: Hi body: Hello Bob")
	require.NoError(t, err)
	assert.Equal(t, "Email sent successfully.", out)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, Outgoing{To: "bob@example.com", Subject: "Hi", Body: "Hello Bob"}, sender.sent[0])

	out, err = m.HandleEmail(context.Background(), "send email please")
	require.NoError(t, err)
	assert.Equal(t, missingTo, out)
	assert.Len(t, sender.sent, 1)
}

func TestMailerUsageAndConfig(t *testing.T) {
	m := NewMailerWith(config.EmailConfig{}, &fakeMailbox{}, &fakeSender{})

	out, err := m.HandleEmail(context.Background(), "email stuff")
	require.NoError(t, err)
	assert.Equal(t, emailUsage, out)

	_, err = m.HandleEmail(context.Background(), "read email")
	assert.ErrorIs(t, err, ErrEmailNotConfigured)

	_, err = m.HandleEmail(context.Background(), "send email to bob@example.com body: hi")
	assert.ErrorIs(t, err, ErrEmailNotConfigured)
}

func TestComposeMessage(t *testing.T) {
	raw := string(composeMessage("me@example.com", Outgoing{To: "bob@example.com", Subject: "Grüße", Body: "line one\nline two"}))

	assert.Contains(t, raw, "From: me@example.com\r\n")
	assert.Contains(t, raw, "To: bob@example.com\r\n")
	assert.Contains(t, raw, "Subject: =?utf-8?q?")
	assert.Contains(t, raw, "Content-Type: text/plain; charset=utf-8\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nline one\r\nline two\r\n"))
}

func TestEnvelopeOf(t *testing.T) {
	env := envelopeOf(&imap.Envelope{
		Subject: "Status",
		From:    []*imap.Address{{PersonalName: "Ann", MailboxName: "ann", HostName: "example.com"}},
	})
	assert.Equal(t, Envelope{From: `"Ann" <ann@example.com>`, Subject: "Status"}, env)

	env = envelopeOf(&imap.Envelope{})
	assert.Equal(t, Envelope{From: "(Unknown)", Subject: "(No Subject)"}, env)
}
