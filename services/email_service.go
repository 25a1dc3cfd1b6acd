package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/pollrelay/pollengine/config"
	"github.com/pollrelay/pollengine/logger"
	"github.com/pollrelay/pollengine/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/resend/resend-go/v2"
)

type EmailMetrics struct {
	sendLatency prometheus.Histogram
	errorCount  prometheus.Counter
	sentCount   prometheus.Counter
}

// EmailService sends the poll engine's two outbound email kinds
// (voter confirmation, expiry reminder) through Resend. Template
// rendering and SMTP itself are the external collaborators named in
// spec.md §1; this is the thin sink the core's Notifier interfaces
// (voteengine.Notifier, scheduler.Notifier) are adapted onto.
type EmailService struct {
	config  *config.EmailConfig
	client  *resend.Client
	metrics *EmailMetrics
}

var _ types.EmailSender = (*EmailService)(nil)

func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return NewEmailServiceWithRegistry(cfg, prometheus.DefaultRegisterer)
}

func NewEmailServiceWithRegistry(cfg *config.EmailConfig, reg prometheus.Registerer) *EmailService {
	logger.GetLogger().Infow("Initializing email service", "from", cfg.FromAddress)
	client := resend.NewClient(cfg.ResendAPIKey)
	metrics := &EmailMetrics{
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pollengine_email_send_duration_seconds",
			Help:    "Time taken to send emails",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		}),
		errorCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pollengine_email_errors_total",
			Help: "Total number of email sending errors",
		}),
		sentCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pollengine_emails_sent_total",
			Help: "Total number of emails sent",
		}),
	}

	reg.MustRegister(metrics.sendLatency)
	reg.MustRegister(metrics.errorCount)
	reg.MustRegister(metrics.sentCount)

	return &EmailService{
		config:  cfg,
		client:  client,
		metrics: metrics,
	}
}

// SendVoterConfirmation delivers the post-vote email (§4.5) carrying
// the voter's edit link.
func (s *EmailService) SendVoterConfirmation(ctx context.Context, to string, data types.VoterConfirmationEmail) error {
	return s.send(ctx, to, fmt.Sprintf("Your vote on %q is recorded", data.PollTitle), voterConfirmationTemplate, map[string]interface{}{
		"PollTitle": data.PollTitle,
		"PublicURL": data.PublicURL,
		"EditURL":   data.EditURL,
		"VoterName": data.VoterName,
	})
}

// SendExpiryReminder delivers the §4.8 pre-expiry reminder.
func (s *EmailService) SendExpiryReminder(ctx context.Context, to string, data types.ExpiryReminderEmail) error {
	return s.send(ctx, to, fmt.Sprintf("%q is closing soon", data.PollTitle), expiryReminderTemplate, map[string]interface{}{
		"PollTitle": data.PollTitle,
		"PublicURL": data.PublicURL,
		"ExpiresAt": data.ExpiresAt,
	})
}

func (s *EmailService) send(ctx context.Context, to, subject, tmplSource string, templateData map[string]interface{}) error {
	startTime := time.Now()
	log := logger.GetLogger()
	defer func() {
		s.metrics.sendLatency.Observe(time.Since(startTime).Seconds())
	}()

	tmpl, err := template.New("email").Parse(tmplSource)
	if err != nil {
		s.metrics.errorCount.Inc()
		return fmt.Errorf("failed to parse template: %w", err)
	}

	var htmlContent bytes.Buffer
	if err := tmpl.Execute(&htmlContent, templateData); err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("failed to execute email template", "error", err)
		return fmt.Errorf("failed to execute template: %w", err)
	}

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromAddress),
		To:      []string{to},
		Subject: subject,
		Html:    htmlContent.String(),
	}

	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("failed to send email", "error", err, "to", to, "subject", subject)
		return fmt.Errorf("email send failed: %w", err)
	}

	s.metrics.sentCount.Inc()
	log.Infow("email sent successfully", "to", to, "subject", subject)
	return nil
}

const voterConfirmationTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"></head>
<body style="font-family: sans-serif; background-color: #f7f7f7; color: #333333; padding: 20px;">
  <div style="max-width: 600px; margin: 20px auto; background: #ffffff; padding: 30px; border-radius: 12px;">
    <h1 style="color: #4a6fa5;">Your vote is recorded</h1>
    <p>Hi {{.VoterName}},</p>
    <p>Your response to "{{.PollTitle}}" has been saved.</p>
    <p><a href="{{.EditURL}}">Edit or withdraw your vote</a></p>
    <p><a href="{{.PublicURL}}">View the poll</a></p>
  </div>
</body>
</html>`

const expiryReminderTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"></head>
<body style="font-family: sans-serif; background-color: #f7f7f7; color: #333333; padding: 20px;">
  <div style="max-width: 600px; margin: 20px auto; background: #ffffff; padding: 30px; border-radius: 12px;">
    <h1 style="color: #d97706;">"{{.PollTitle}}" is closing soon</h1>
    <p>This poll closes at {{.ExpiresAt}}.</p>
    <p><a href="{{.PublicURL}}">View or update your response</a></p>
  </div>
</body>
</html>`
