package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"contractor-backend/internal/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrUnavailable is returned when email delivery is not configured
var ErrUnavailable = errors.New("notify: email delivery is not configured")

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To       string
	FromName string
	ReplyTo  string
	Subject  string
	Body     string
	Attach   []Attachment
}

// Result reports a delivery attempt. Unavailable is an expected outcome when
// mail is disabled and callers should degrade rather than fail.
type Result struct {
	Success     bool
	Unavailable bool
	Error       string
}

type SMTPOptions struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPMailer struct {
	opts SMTPOptions
	send sendFunc
	log  zerolog.Logger
}

func NewSMTPMailer(opts SMTPOptions) *SMTPMailer {
	return &SMTPMailer{
		opts: opts,
		send: smtp.SendMail,
		log:  logger.WithComponent("mailer"),
	}
}

func (m *SMTPMailer) Available() bool {
	return m != nil && m.opts.Enabled && m.opts.Host != "" && m.opts.From != ""
}

// Send delivers msg. The context bounds the wait, though net/smtp itself does
// not observe cancellation.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) Result {
	if !m.Available() {
		return Result{Unavailable: true, Error: ErrUnavailable.Error()}
	}
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return Result{Error: fmt.Sprintf("invalid recipient %q", msg.To)}
	}

	raw, err := m.build(msg)
	if err != nil {
		return Result{Error: err.Error()}
	}

	addr := net.JoinHostPort(m.opts.Host, strconv.Itoa(m.opts.Port))
	var auth smtp.Auth
	if m.opts.Username != "" {
		auth = smtp.PlainAuth("", m.opts.Username, m.opts.Password, m.opts.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- m.send(addr, auth, m.opts.From, []string{msg.To}, raw)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		m.log.Warn().Err(err).Str("to", msg.To).Msg("Email delivery failed")
		return Result{Error: err.Error()}
	}

	m.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Int("attachments", len(msg.Attach)).Msg("Email sent")
	return Result{Success: true}
}

func (m *SMTPMailer) build(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	from := mail.Address{Name: msg.FromName, Address: m.opts.From}
	headers := []string{
		"From: " + from.String(),
		"To: " + msg.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + time.Now().Format(time.RFC1123Z),
		"Message-ID: <" + uuid.NewString() + "@" + m.opts.Host + ">",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=" + w.Boundary(),
	}
	if msg.ReplyTo != "" {
		headers = append(headers, "Reply-To: "+msg.ReplyTo)
	}
	head := strings.Join(headers, "\r\n") + "\r\n\r\n"

	body, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=utf-8"},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := body.Write([]byte(msg.Body)); err != nil {
		return nil, err
	}

	for _, a := range msg.Attach {
		part, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {a.ContentType},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename})},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, a.Data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return append([]byte(head), buf.Bytes()...), nil
}

// writeBase64 wraps encoded data at 76 columns
func writeBase64(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 76 {
		if _, err := w.Write([]byte(enc[:76] + "\r\n")); err != nil {
			return err
		}
		enc = enc[76:]
	}
	_, err := w.Write([]byte(enc + "\r\n"))
	return err
}
