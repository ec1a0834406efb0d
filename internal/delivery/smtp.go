package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"

	"go.uber.org/zap"
)

// SMTPConfig holds the mail transport settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers reports over SMTP
type SMTPMailer struct {
	logger *zap.Logger
	config SMTPConfig
}

// NewSMTPMailer creates a new SMTP mailer
func NewSMTPMailer(logger *zap.Logger, config SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		logger: logger,
		config: config,
	}
}

// Deliver implements Deliverer.Deliver
func (m *SMTPMailer) Deliver(ctx context.Context, req Request) error {
	msg, err := buildMessage(m.config.From, req)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	m.logger.Info("Sending report email",
		zap.String("to", req.To),
		zap.String("subject", req.Subject),
		zap.Int("attachment_bytes", len(req.Attachment)))

	auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, m.config.From, []string{req.To}, msg)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send mail: %w", err)
		}
		return nil
	}
}

// buildMessage assembles a multipart MIME message with an optional
// base64-encoded attachment.
func buildMessage(from string, req Request) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", req.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", req.Subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n", writer.Boundary())
	fmt.Fprintf(&buf, "\r\n")

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=UTF-8")
	textPart, err := writer.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(textPart, "%s\r\n", req.Body)

	if len(req.Attachment) > 0 {
		attachmentHeader := textproto.MIMEHeader{}
		attachmentHeader.Set("Content-Type",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		attachmentHeader.Set("Content-Transfer-Encoding", "base64")
		attachmentHeader.Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", req.AttachmentName))

		attachmentPart, err := writer.CreatePart(attachmentHeader)
		if err != nil {
			return nil, err
		}

		encoder := base64.NewEncoder(base64.StdEncoding, attachmentPart)
		if _, err := encoder.Write(req.Attachment); err != nil {
			return nil, err
		}
		if err := encoder.Close(); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
