package providers

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/config"
)

// inboxSize is how many of the newest messages are read.
const inboxSize = 5

// ErrEmailNotConfigured is returned when no mailbox credentials are set.
var ErrEmailNotConfigured = errors.New("email not configured: set EMAIL_ADDRESS and EMAIL_PASSWORD")

var (
	recipientPattern = regexp.MustCompile(`(?i)to\s+([^\s]+@[^\s]+)`)
	subjectPattern   = regexp.MustCompile(`(?i)subject\s*[:\-]\s*(.+?)\s*body\s*[:\-]`)
	bodyPattern      = regexp.MustCompile(`(?is)body\s*[:\-]\s*(.+)$`)
)

const (
	emailUsage   = "Email command not understood. Try: 'read emails' or 'send email to ...'"
	missingTo    = "Please specify recipient email like: send email to user@example.com subject: Hello body: Hi"
	noSubject    = "(No Subject)"
	emailTimeout = 30 * time.Second
)

// Envelope is the summary of one inbox message.
type Envelope struct {
	From    string
	Subject string
}

// Outgoing is a message to send.
type Outgoing struct {
	To      string
	Subject string
	Body    string
}

// Mailbox reads the newest messages of an inbox.
type Mailbox interface {
	Latest(ctx context.Context, n int) ([]Envelope, error)
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Outgoing) error
}

// Mailer reads the inbox over IMAP and sends over SMTP.
type Mailer struct {
	cfg    config.EmailConfig
	inbox  Mailbox
	sender Sender
}

// NewMailer creates a mailer for the configured account.
func NewMailer(cfg config.EmailConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		inbox:  &imapMailbox{cfg: cfg},
		sender: &smtpSender{cfg: cfg},
	}
}

// NewMailerWith creates a mailer with explicit transports.
func NewMailerWith(cfg config.EmailConfig, inbox Mailbox, sender Sender) *Mailer {
	return &Mailer{cfg: cfg, inbox: inbox, sender: sender}
}

// HandleEmail reads or sends mail depending on the utterance.
func (m *Mailer) HandleEmail(ctx context.Context, utterance string) (string, error) {
	lower := strings.ToLower(utterance)
	switch {
	case strings.Contains(lower, "read") || strings.Contains(lower, "inbox"):
		return m.readLatest(ctx)
	case strings.Contains(lower, "send"):
		msg, ok := ParseOutgoing(utterance)
		if !ok {
			return missingTo, nil
		}
		if err := m.configured(); err != nil {
			return "", err
		}
		if err := m.sender.Send(ctx, msg); err != nil {
			return "", fmt.Errorf("send email: %w", err)
		}
		return "Email sent successfully.", nil
	}
	return emailUsage, nil
}

func (m *Mailer) configured() error {
	if m.cfg.Address == "" || m.cfg.Password == "" {
		return ErrEmailNotConfigured
	}
	return nil
}

func (m *Mailer) readLatest(ctx context.Context) (string, error) {
	if err := m.configured(); err != nil {
		return "", err
	}
	envelopes, err := m.inbox.Latest(ctx, inboxSize)
	if err != nil {
		return "", fmt.Errorf("read inbox: %w", err)
	}
	if len(envelopes) == 0 {
		return "No emails found.", nil
	}
	lines := make([]string, len(envelopes))
	for i, e := range envelopes {
		lines[i] = fmt.Sprintf("From: %s | Subject: %s", e.From, e.Subject)
	}
	return strings.Join(lines, "\n"), nil
}

// ParseOutgoing extracts "to <addr> subject: <s> body: <b>" from utterance.
// It reports false when no recipient is present.
func ParseOutgoing(utterance string) (Outgoing, bool) {
	to := recipientPattern.FindStringSubmatch(utterance)
	if to == nil {
		return Outgoing{}, false
	}
	msg := Outgoing{To: strings.TrimRight(to[1], ".,;"), Subject: noSubject}
	if s := subjectPattern.FindStringSubmatch(utterance); s != nil {
		msg.Subject = strings.TrimSpace(s[1])
	}
	if b := bodyPattern.FindStringSubmatch(utterance); b != nil {
		msg.Body = strings.TrimSpace(b[1])
	}
	return msg, true
}

type imapMailbox struct {
	cfg config.EmailConfig
}

// Latest returns up to n of the newest INBOX messages, newest first.
func (b *imapMailbox) Latest(ctx context.Context, n int) ([]Envelope, error) {
	addr := b.cfg.IMAPServer
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "993")
	}

	dialer := &net.Dialer{Timeout: emailTimeout}
	c, err := client.DialWithDialerTLS(dialer, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c.Timeout = emailTimeout
	defer c.Logout()

	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()

	if err := c.Login(b.cfg.Address, b.cfg.Password); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	mbox, err := c.Select("INBOX", true)
	if err != nil {
		return nil, fmt.Errorf("select inbox: %w", err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(n) {
		from = mbox.Messages - uint32(n) + 1
	}
	seq := new(imap.SeqSet)
	seq.AddRange(from, mbox.Messages)

	messages := make(chan *imap.Message, n)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seq, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()

	var out []Envelope
	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}
		out = append(out, envelopeOf(msg.Envelope))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func envelopeOf(e *imap.Envelope) Envelope {
	env := Envelope{From: "(Unknown)", Subject: e.Subject}
	if env.Subject == "" {
		env.Subject = noSubject
	}
	if len(e.From) > 0 {
		a := e.From[0]
		addr := a.Address()
		if a.PersonalName != "" {
			env.From = (&mail.Address{Name: a.PersonalName, Address: addr}).String()
		} else if addr != "" {
			env.From = addr
		}
	}
	return env
}

type smtpSender struct {
	cfg config.EmailConfig
}

// Send delivers msg. smtp.SendMail upgrades to TLS when the server offers STARTTLS.
func (s *smtpSender) Send(ctx context.Context, msg Outgoing) error {
	addr := net.JoinHostPort(s.cfg.SMTPServer, strconv.Itoa(s.cfg.SMTPPort))
	auth := smtp.PlainAuth("", s.cfg.Address, s.cfg.Password, s.cfg.SMTPServer)

	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(addr, auth, s.cfg.Address, []string{msg.To}, composeMessage(s.cfg.Address, msg))
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func composeMessage(from string, msg Outgoing) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
