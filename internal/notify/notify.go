// Package notify delivers finished report artifacts by email.
package notify

import (
	"context"

	"report-worker/internal/models"
)

// CompletedReport is one rendered artifact ready for delivery, together with
// the routing its payload carried.
type CompletedReport struct {
	ReportName string
	Path       string
	MailTo     []string
	SMTP       *models.SMTPSettings
}

// Notifier sends one message per poller batch with every finished artifact
// attached.
type Notifier interface {
	SendBatch(ctx context.Context, reports []CompletedReport) error
}
