package models

import "time"

// Submission statuses (abstract review stage).
const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

// Submission represents the submissions table: one abstract submitted by a
// participant, reviewed by an admin in two stages (abstract, then payment).
type Submission struct {
	SubmissionID int        `gorm:"primaryKey;column:submission_id" json:"submission_id"`
	UserID       int        `gorm:"column:user_id" json:"user_id"`
	Title        string     `gorm:"column:title" json:"title"`
	Abstract     string     `gorm:"column:abstract" json:"abstract"`
	Status       string     `gorm:"column:status" json:"status"` // pending|approved|rejected
	ReviewNotes  *string    `gorm:"column:review_notes" json:"review_notes,omitempty"`
	ReviewedAt   *time.Time `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy   *int       `gorm:"column:reviewed_by" json:"reviewed_by,omitempty"`
	SubmittedAt  time.Time  `gorm:"column:submitted_at" json:"submitted_at"`
	CreateAt     time.Time  `gorm:"column:create_at" json:"create_at"`
	UpdateAt     time.Time  `gorm:"column:update_at" json:"update_at"`
	DeleteAt     *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`

	// Relations
	User         *User         `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
	Contributors []Contributor `gorm:"foreignKey:SubmissionID" json:"contributors,omitempty"`
	Payment      *Payment      `gorm:"foreignKey:SubmissionID" json:"payment,omitempty"`
	Reviewer     *User         `gorm:"foreignKey:ReviewedBy;references:UserID" json:"reviewer,omitempty"`
}

// Contributor is a co-author listed on a submission besides the submitting
// participant. The set is replaced wholesale when the submission is edited,
// never merged.
type Contributor struct {
	ContributorID int       `gorm:"primaryKey;column:contributor_id" json:"contributor_id"`
	SubmissionID  int       `gorm:"column:submission_id" json:"submission_id"`
	Name          string    `gorm:"column:name" json:"name"`
	Affiliation   string    `gorm:"column:affiliation" json:"affiliation"`
	Country       string    `gorm:"column:country" json:"country"`
	Email         string    `gorm:"column:email" json:"email"`
	CreateAt      time.Time `gorm:"column:create_at" json:"create_at"`
}

// TableName overrides
func (Submission) TableName() string {
	return "submissions"
}

func (Contributor) TableName() string {
	return "contributors"
}
