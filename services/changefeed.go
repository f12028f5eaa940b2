package services

import (
	"fmt"
	"time"

	"conference-submission-api/config"
	"conference-submission-api/models"

	"gorm.io/gorm"
)

// changeFeedLimit caps each entity list so polling stays cheap regardless of
// how stale the caller's watermark is.
const changeFeedLimit = 200

// ChangeFeedResult is the polling payload: everything that changed after the
// caller's watermark, plus the server clock to use as the next watermark.
type ChangeFeedResult struct {
	Submissions []models.Submission `json:"submissions"`
	Payments    []models.Payment    `json:"payments"`
	ServerTime  time.Time           `json:"server_time"`
}

// ChangeFeedService answers "what changed since T" for polling clients. The
// server keeps no per-client cursor; the caller supplies the watermark.
type ChangeFeedService struct {
	db *gorm.DB
}

// NewChangeFeedService constructs a ChangeFeedService.
func NewChangeFeedService(db *gorm.DB) *ChangeFeedService {
	if db == nil {
		db = config.DB
	}
	return &ChangeFeedService{db: db}
}

// Since returns submissions and payments updated strictly after the given
// time, most recent first. A submission also surfaces when only its payment
// changed and carries a proof reference, so reviewers see "proof uploaded"
// without the submission row itself moving.
func (s *ChangeFeedService) Since(since time.Time) (*ChangeFeedResult, error) {
	result := &ChangeFeedResult{
		Submissions: []models.Submission{},
		Payments:    []models.Payment{},
		ServerTime:  time.Now(),
	}

	proofChanged := s.db.Model(&models.Payment{}).
		Select("submission_id").
		Where("update_at > ? AND payment_proof IS NOT NULL", since)

	if err := s.db.
		Where("delete_at IS NULL").
		Where(s.db.Where("update_at > ?", since).Or("submission_id IN (?)", proofChanged)).
		Order("update_at DESC").
		Limit(changeFeedLimit).
		Find(&result.Submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to load submission changes: %w", err)
	}

	if err := s.db.
		Where("update_at > ?", since).
		Order("update_at DESC").
		Limit(changeFeedLimit).
		Find(&result.Payments).Error; err != nil {
		return nil, fmt.Errorf("failed to load payment changes: %w", err)
	}

	return result, nil
}
