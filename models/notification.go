package models

import "time"

// Notification is the dispatch audit trail for outbound participant mail.
// One row per Send outcome; delivery failures are only observable here and
// in the logs, never surfaced to the reviewer who triggered the transition.
type Notification struct {
	NotificationID uint      `gorm:"primaryKey;column:notification_id" json:"notification_id"`
	UserID         int       `gorm:"column:user_id" json:"user_id"`
	SubmissionID   *int      `gorm:"column:submission_id" json:"submission_id,omitempty"`
	Template       string    `gorm:"column:template" json:"template"` // approval-invoice|letter-of-acceptance
	Channel        string    `gorm:"column:channel" json:"channel"`   // api|smtp|none
	Delivered      bool      `gorm:"column:delivered" json:"delivered"`
	ReferenceID    string    `gorm:"column:reference_id" json:"reference_id"`
	CreateAt       time.Time `gorm:"column:create_at" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }
