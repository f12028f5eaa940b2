package services

import (
	"fmt"
	"html/template"
	"log"
	"os"
	"time"

	"conference-submission-api/config"
	"conference-submission-api/models"
	"conference-submission-api/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TemplateKind identifies an outbound participant message.
type TemplateKind string

const (
	TemplateApprovalInvoice    TemplateKind = "approval-invoice"
	TemplateLetterOfAcceptance TemplateKind = "letter-of-acceptance"
)

const (
	channelAPI  = "api"
	channelSMTP = "smtp"
	channelNone = "none"
)

// NotificationDispatcher delivers review-outcome mail to participants. It is
// injected into the review service as a capability: Send never returns an
// error, so a flaky provider can never block or roll back a state transition.
// Delivery order is primary (mail API), then SMTP on a reported failure, then
// one emergency SMTP attempt if anything panics along the way.
type NotificationDispatcher struct {
	db       *gorm.DB
	sendAPI  func(to, subject, html, fromName string) (*config.MailAPIResponse, error)
	sendSMTP func(to []string, subject, html string) error
	fromName string
}

// NewNotificationDispatcher constructs a dispatcher over the default channels.
func NewNotificationDispatcher(db *gorm.DB) *NotificationDispatcher {
	if db == nil {
		db = config.DB
	}
	fromName := os.Getenv("MAIL_FROM_NAME")
	if fromName == "" {
		fromName = "Conference Secretariat"
	}
	return &NotificationDispatcher{
		db:       db,
		sendAPI:  config.SendMailViaAPI,
		sendSMTP: config.SendMail,
		fromName: fromName,
	}
}

// Send renders and delivers the message for kind to the submission's
// participant. All failures are absorbed here: outcomes go to the log and the
// notifications table, never to the caller.
func (d *NotificationDispatcher) Send(kind TemplateKind, sub *models.Submission, amount int64) {
	if sub == nil || sub.User == nil || sub.User.Email == "" {
		log.Printf("notification %s dropped: submission has no participant email", kind)
		return
	}

	refID := uuid.NewString()
	to := sub.User.Email
	channel := channelNone
	delivered := false

	defer func() {
		if r := recover(); r != nil {
			// Emergency path: whatever blew up, still try to get the mail out.
			log.Printf("notification %s for submission %d panicked (ref=%s): %v", kind, sub.SubmissionID, refID, r)
			if err := d.emergencySend(kind, sub, to); err != nil {
				log.Printf("CRITICAL: notification %s for submission %d undeliverable on all channels (ref=%s): %v",
					kind, sub.SubmissionID, refID, err)
			} else {
				channel, delivered = channelSMTP, true
			}
		}
		d.record(kind, sub, channel, delivered, refID)
	}()

	subject, html := renderTemplate(kind, sub, amount)

	resp, err := d.sendAPI(to, subject, html, d.fromName)
	if err == nil && resp != nil && resp.Success {
		channel, delivered = channelAPI, true
		log.Printf("notification %s for submission %d sent via mail api (ref=%s)", kind, sub.SubmissionID, refID)
		return
	}
	if err != nil {
		log.Printf("mail api send failed for submission %d (ref=%s): %v", sub.SubmissionID, refID, err)
	} else if resp != nil {
		log.Printf("mail api rejected send for submission %d (ref=%s): %s", sub.SubmissionID, refID, resp.Message)
	}

	if err := d.sendSMTP([]string{to}, subject, html); err != nil {
		log.Printf("CRITICAL: notification %s for submission %d undeliverable on all channels (ref=%s): %v",
			kind, sub.SubmissionID, refID, err)
		return
	}
	channel, delivered = channelSMTP, true
	log.Printf("notification %s for submission %d sent via smtp fallback (ref=%s)", kind, sub.SubmissionID, refID)
}

// emergencySend is the last delivery attempt. It shields itself against a
// panicking SMTP channel so the never-raises contract holds even here.
func (d *NotificationDispatcher) emergencySend(kind TemplateKind, sub *models.Submission, to string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("emergency smtp attempt panicked: %v", r)
		}
	}()
	subject, html := renderFallbackBody(kind, sub)
	return d.sendSMTP([]string{to}, subject, html)
}

// record appends a row to the dispatch audit trail. Best effort; the table is
// the only in-band place a delivery failure is visible.
func (d *NotificationDispatcher) record(kind TemplateKind, sub *models.Submission, channel string, delivered bool, refID string) {
	if d.db == nil {
		return
	}
	sid := sub.SubmissionID
	n := models.Notification{
		UserID:       sub.UserID,
		SubmissionID: &sid,
		Template:     string(kind),
		Channel:      channel,
		Delivered:    delivered,
		ReferenceID:  refID,
		CreateAt:     time.Now(),
	}
	if err := d.db.Create(&n).Error; err != nil {
		log.Printf("failed to record notification audit row (ref=%s): %v", refID, err)
	}
}

func renderTemplate(kind TemplateKind, sub *models.Submission, amount int64) (string, string) {
	name := template.HTMLEscapeString(sub.User.FullName())
	title := template.HTMLEscapeString(sub.Title)

	switch kind {
	case TemplateApprovalInvoice:
		subject := "Abstract Accepted - Registration Invoice"
		body := fmt.Sprintf(
			`<p>Dear %s,</p>
<p>We are pleased to inform you that your abstract <strong>"%s"</strong> has been accepted for presentation.</p>
<p>To confirm your participation, please settle the registration fee below and upload your proof of payment through the submission portal.</p>
<p style="font-size:18px;"><strong>Amount due: %s</strong></p>
<p>Your registration will be finalized once the payment has been verified.</p>`,
			name, title, utils.FormatAmount(amount))
		return subject, wrapMailBody(subject, body)
	case TemplateLetterOfAcceptance:
		subject := "Letter of Acceptance"
		body := fmt.Sprintf(
			`<p>Dear %s,</p>
<p>Your registration payment for the submission <strong>"%s"</strong> has been verified.</p>
<p>This message serves as your official Letter of Acceptance. We look forward to welcoming you at the conference.</p>`,
			name, title)
		return subject, wrapMailBody(subject, body)
	default:
		subject := "Submission Update"
		body := fmt.Sprintf(`<p>Dear %s,</p><p>There is an update on your submission <strong>"%s"</strong>.</p>`, name, title)
		return subject, wrapMailBody(subject, body)
	}
}

// renderFallbackBody builds a minimal plain message for the emergency path,
// avoiding whatever made the full render blow up.
func renderFallbackBody(kind TemplateKind, sub *models.Submission) (string, string) {
	subject := "Submission Update"
	if kind == TemplateApprovalInvoice {
		subject = "Abstract Accepted - Registration Invoice"
	} else if kind == TemplateLetterOfAcceptance {
		subject = "Letter of Acceptance"
	}
	body := fmt.Sprintf("<p>There is an update on your submission (id %d). Please check the submission portal for details.</p>", sub.SubmissionID)
	return subject, wrapMailBody(subject, body)
}

func wrapMailBody(title, inner string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
</head>
<body style="margin:0;padding:0;background-color:#f9fafb;font-family:'Segoe UI',Tahoma,Arial,sans-serif;">
<div style="max-width:640px;margin:0 auto;padding:24px 20px;">
  <div style="background-color:#ffffff;border:1px solid #e5e7eb;border-radius:12px;padding:24px 24px 28px 24px;">
    %s
  </div>
</div>
</body>
</html>`, template.HTMLEscapeString(title), inner)
}
