package report

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"
)

// Mailer はレポートメールの送信インターフェース。
type Mailer interface {
	Send(subject, body string, attachment []byte, filename string) error
}

// SMTPConfig はSMTP送信の設定を保持する。
type SMTPConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	Recipients []string
}

// SMTPMailer はimplicit TLS（ポート465）でメールを送信する。
// GmailのアプリパスワードによるPLAIN認証を想定している。
type SMTPMailer struct {
	config SMTPConfig
}

// NewSMTPMailer は新しいSMTPMailerを生成する。
func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	return &SMTPMailer{config: config}
}

var _ Mailer = (*SMTPMailer)(nil)

// Send は件名・本文・添付ファイル付きのメールを全宛先に送信する。
func (m *SMTPMailer) Send(subject, body string, attachment []byte, filename string) error {
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)

	// ポート465はセッション開始時点からTLS
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.config.Host})
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	client, err := smtp.NewClient(conn, m.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", m.config.User, m.config.Password, m.config.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err := client.Mail(m.config.User); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range m.config.Recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s failed: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}

	msg, err := buildMessage(m.config.User, m.config.Recipients, subject, body, attachment, filename)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return client.Quit()
}

// buildMessage はMIMEマルチパートのメール本体を組み立てる。
// 本文はtext/plain、添付はbase64エンコードしたtext/plainパート。
func buildMessage(from string, recipients []string, subject, body string, attachment []byte, filename string) ([]byte, error) {
	var buf strings.Builder
	mw := multipart.NewWriter(&buf)

	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\nMIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=%q\r\n\r\n",
		from,
		strings.Join(recipients, ", "),
		subject,
		time.Now().Format(time.RFC1123Z),
		mw.Boundary(),
	)

	// 本文パート
	bodyHeader := textproto.MIMEHeader{}
	bodyHeader.Set("Content-Type", "text/plain; charset=utf-8")
	bodyPart, err := mw.CreatePart(bodyHeader)
	if err != nil {
		return nil, err
	}
	if _, err := bodyPart.Write([]byte(body)); err != nil {
		return nil, err
	}

	// 添付パート
	if len(attachment) > 0 {
		attachHeader := textproto.MIMEHeader{}
		attachHeader.Set("Content-Type", "text/plain; charset=utf-8")
		attachHeader.Set("Content-Transfer-Encoding", "base64")
		attachHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		attachPart, err := mw.CreatePart(attachHeader)
		if err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(attachment)
		if _, err := attachPart.Write([]byte(encoded)); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}

	return []byte(headers + buf.String()), nil
}
