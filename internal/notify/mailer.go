// internal/notify/mailer.go
package notify

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"report-worker/internal/common/config"
	"report-worker/internal/common/logger"
	"report-worker/internal/models"
)

// Mailer sends batch mails over plain SMTP. Routing comes from the first
// report in the batch that carries smtp_settings and recipients; the
// configured fallback fills whatever the payloads leave out.
type Mailer struct {
	cfg    config.SMTPConfig
	logger logger.Logger
}

func NewMailer(cfg config.SMTPConfig, log logger.Logger) *Mailer {
	return &Mailer{
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

// SendBatch attaches every report artifact to a single message. A batch with
// no resolvable recipients is skipped, not failed: reports without mail
// routing are still valid reports.
func (m *Mailer) SendBatch(ctx context.Context, reports []CompletedReport) error {
	if len(reports) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before sending batch mail: %w", err)
	}

	settings, recipients := m.resolveRouting(reports)
	if len(recipients) == 0 {
		m.logger.Info("no recipients resolved for batch, skipping mail", map[string]interface{}{
			"reports": len(reports),
		})
		return nil
	}
	if settings.Host == "" {
		return fmt.Errorf("no smtp host configured for batch mail")
	}

	for _, addr := range recipients {
		if !isValidEmail(addr) {
			return fmt.Errorf("invalid recipient address: %s", addr)
		}
	}

	message, err := m.buildMessage(settings, recipients, reports)
	if err != nil {
		return err
	}

	if err := m.send(settings, recipients, message); err != nil {
		return err
	}

	m.logger.Info("batch mail sent", map[string]interface{}{
		"to":      recipients,
		"reports": len(reports),
	})
	return nil
}

// resolveRouting merges the first payload-level smtp_settings found in the
// batch over the configured defaults, and unions every report's recipients.
func (m *Mailer) resolveRouting(reports []CompletedReport) (models.SMTPSettings, []string) {
	settings := models.SMTPSettings{
		Host:     m.cfg.Host,
		Port:     m.cfg.Port,
		Username: m.cfg.Username,
		Password: m.cfg.Password,
		UseTLS:   m.cfg.UseTLS,
		From:     m.cfg.From,
	}

	for _, r := range reports {
		if r.SMTP == nil {
			continue
		}
		if r.SMTP.Host != "" {
			settings.Host = r.SMTP.Host
		}
		if r.SMTP.Port != 0 {
			settings.Port = r.SMTP.Port
		}
		if r.SMTP.Username != "" {
			settings.Username = r.SMTP.Username
			settings.Password = r.SMTP.Password
		}
		if r.SMTP.From != "" {
			settings.From = r.SMTP.From
		}
		settings.UseTLS = r.SMTP.UseTLS
		break
	}

	seen := make(map[string]struct{})
	var recipients []string
	for _, r := range reports {
		for _, addr := range r.MailTo {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			recipients = append(recipients, addr)
		}
	}
	return settings, recipients
}

const mimeBoundary = "report-worker-batch-boundary"

// buildMessage assembles a multipart/mixed message with one base64 PDF
// attachment per report.
func (m *Mailer) buildMessage(settings models.SMTPSettings, recipients []string, reports []CompletedReport) ([]byte, error) {
	var builder strings.Builder

	names := make([]string, 0, len(reports))
	for _, r := range reports {
		names = append(names, r.ReportName)
	}

	builder.WriteString(fmt.Sprintf("From: %s\r\n", settings.From))
	builder.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(recipients, ", ")))
	builder.WriteString(fmt.Sprintf("Subject: Reports ready: %s\r\n", strings.Join(names, ", ")))
	builder.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q\r\n", mimeBoundary))
	builder.WriteString("\r\n")

	builder.WriteString(fmt.Sprintf("--%s\r\n", mimeBoundary))
	builder.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	builder.WriteString(fmt.Sprintf("%d report(s) attached:\r\n", len(reports)))
	for _, name := range names {
		builder.WriteString(fmt.Sprintf("  - %s\r\n", name))
	}
	builder.WriteString("\r\n")

	for _, r := range reports {
		content, err := os.ReadFile(r.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", r.Path, err)
		}
		filename := filepath.Base(r.Path)

		builder.WriteString(fmt.Sprintf("--%s\r\n", mimeBoundary))
		builder.WriteString("Content-Type: application/pdf\r\n")
		builder.WriteString("Content-Transfer-Encoding: base64\r\n")
		builder.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n\r\n", filename))

		encoded := base64.StdEncoding.EncodeToString(content)
		for len(encoded) > 76 {
			builder.WriteString(encoded[:76])
			builder.WriteString("\r\n")
			encoded = encoded[76:]
		}
		builder.WriteString(encoded)
		builder.WriteString("\r\n")
	}
	builder.WriteString(fmt.Sprintf("--%s--\r\n", mimeBoundary))

	return []byte(builder.String()), nil
}

func (m *Mailer) send(settings models.SMTPSettings, recipients []string, message []byte) error {
	addr := fmt.Sprintf("%s:%d", settings.Host, settings.Port)

	var auth smtp.Auth
	if settings.Username != "" && settings.Password != "" {
		auth = smtp.PlainAuth("", settings.Username, settings.Password, settings.Host)
	}

	if settings.UseTLS {
		return m.sendWithTLS(addr, settings.Host, auth, settings.From, recipients, message)
	}
	return smtp.SendMail(addr, auth, settings.From, recipients, message)
}

func (m *Mailer) sendWithTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: host}
	if err = client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range to {
		if err = client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

func isValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	if len(parts[0]) == 0 || len(parts[1]) == 0 {
		return false
	}
	return strings.Contains(parts[1], ".")
}
