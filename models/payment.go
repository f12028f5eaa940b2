package models

import "time"

// Payment statuses (registration fee stage).
const (
	PaymentPending  = "pending"
	PaymentApproved = "approved"
	PaymentRejected = "rejected"
)

// Payment represents the payments table. A row is created only when the
// submission's abstract is approved; the amount is fixed at that moment and
// never recomputed, even if contributors change later.
type Payment struct {
	PaymentID    int        `gorm:"primaryKey;column:payment_id" json:"payment_id"`
	SubmissionID int        `gorm:"column:submission_id;unique" json:"submission_id"`
	Amount       int64      `gorm:"column:amount" json:"amount"`
	Status       string     `gorm:"column:status" json:"status"` // pending|approved|rejected
	PaymentProof *string    `gorm:"column:payment_proof" json:"payment_proof,omitempty"`
	ReviewNotes  *string    `gorm:"column:review_notes" json:"review_notes,omitempty"`
	ReviewedAt   *time.Time `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy   *int       `gorm:"column:reviewed_by" json:"reviewed_by,omitempty"`
	CreateAt     time.Time  `gorm:"column:create_at" json:"create_at"`
	UpdateAt     time.Time  `gorm:"column:update_at" json:"update_at"`

	// Relations
	Reviewer *User `gorm:"foreignKey:ReviewedBy;references:UserID" json:"reviewer,omitempty"`
}

func (Payment) TableName() string {
	return "payments"
}
