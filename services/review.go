package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"conference-submission-api/config"
	"conference-submission-api/models"

	"gorm.io/gorm"
)

var (
	// ErrInvalidStatus is returned by the admin overrides for a target
	// status outside pending/approved/rejected.
	ErrInvalidStatus = errors.New("invalid status value")

	// ErrIllegalStateCombination marks a submission/payment pair that the
	// guided workflow can never produce (e.g. a payment on a pending
	// abstract). Only the admin overrides can create such rows.
	ErrIllegalStateCombination = errors.New("submission and payment statuses form an illegal combination")
)

// WorkflowState is the single-value view of the two status columns. The
// guided workflow only ever moves along these five states; deriving the
// state makes illegal column combinations detectable instead of silently
// carried around.
type WorkflowState int

const (
	StateUnknown WorkflowState = iota
	StateSubmittedPending
	StateAbstractApprovedPaymentPending
	StateAbstractRejected
	StatePaymentApproved
	StatePaymentRejected
)

func (s WorkflowState) String() string {
	switch s {
	case StateSubmittedPending:
		return "submitted-pending"
	case StateAbstractApprovedPaymentPending:
		return "abstract-approved-payment-pending"
	case StateAbstractRejected:
		return "abstract-rejected"
	case StatePaymentApproved:
		return "payment-approved"
	case StatePaymentRejected:
		return "payment-rejected"
	default:
		return "unknown"
	}
}

// WorkflowStateOf derives the workflow state from a submission and its
// (possibly nil) payment.
func WorkflowStateOf(sub *models.Submission) (WorkflowState, error) {
	if sub == nil {
		return StateUnknown, errors.New("submission is nil")
	}
	switch sub.Status {
	case models.SubmissionPending:
		if sub.Payment != nil {
			return StateUnknown, fmt.Errorf("%w: payment exists while abstract is pending", ErrIllegalStateCombination)
		}
		return StateSubmittedPending, nil
	case models.SubmissionRejected:
		if sub.Payment != nil {
			return StateUnknown, fmt.Errorf("%w: payment exists while abstract is rejected", ErrIllegalStateCombination)
		}
		return StateAbstractRejected, nil
	case models.SubmissionApproved:
		if sub.Payment == nil {
			return StateUnknown, fmt.Errorf("%w: approved abstract has no payment", ErrIllegalStateCombination)
		}
		switch sub.Payment.Status {
		case models.PaymentPending:
			return StateAbstractApprovedPaymentPending, nil
		case models.PaymentApproved:
			return StatePaymentApproved, nil
		case models.PaymentRejected:
			return StatePaymentRejected, nil
		default:
			return StateUnknown, fmt.Errorf("%w: payment status %q", ErrIllegalStateCombination, sub.Payment.Status)
		}
	default:
		return StateUnknown, fmt.Errorf("%w: submission status %q", ErrIllegalStateCombination, sub.Status)
	}
}

// BatchResult summarizes one bulk review operation. Skipped ids are a normal
// outcome (precondition not met, unknown id), not an error.
type BatchResult struct {
	AppliedIDs []int `json:"applied_ids"`
	SkippedIDs []int `json:"skipped_ids"`
}

// ReviewService owns the legal transitions for submissions and payments and
// applies them in bulk. Every transition is a conditional UPDATE whose
// affected-row count decides applied vs skipped, so two racing batches over
// the same ids cannot both apply the same transition (and the LOA mail fires
// at most once). Persistence for a batch is one transaction; mail goes out
// only after commit.
type ReviewService struct {
	db     *gorm.DB
	mailer *NotificationDispatcher
}

// NewReviewService constructs a ReviewService.
func NewReviewService(db *gorm.DB, mailer *NotificationDispatcher) *ReviewService {
	if db == nil {
		db = config.DB
	}
	if mailer == nil {
		mailer = NewNotificationDispatcher(db)
	}
	return &ReviewService{db: db, mailer: mailer}
}

// ApproveAbstract moves every pending submission in ids to approved, creates
// its payment with the fee fixed at this moment, and mails the invoice.
func (s *ReviewService) ApproveAbstract(ids []int, reviewerID int) (*BatchResult, error) {
	ids = dedupeIDs(ids)
	result := &BatchResult{AppliedIDs: []int{}, SkippedIDs: []int{}}
	amounts := make(map[int]int64, len(ids))
	now := time.Now()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			res := tx.Model(&models.Submission{}).
				Where("submission_id = ? AND status = ? AND delete_at IS NULL", id, models.SubmissionPending).
				Updates(map[string]interface{}{
					"status":      models.SubmissionApproved,
					"reviewed_at": now,
					"reviewed_by": reviewerID,
					"update_at":   now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				result.SkippedIDs = append(result.SkippedIDs, id)
				continue
			}

			var contributorCount int64
			if err := tx.Model(&models.Contributor{}).
				Where("submission_id = ?", id).
				Count(&contributorCount).Error; err != nil {
				return err
			}

			payment := models.Payment{
				SubmissionID: id,
				Amount:       CalculateFee(int(contributorCount)),
				Status:       models.PaymentPending,
				CreateAt:     now,
				UpdateAt:     now,
			}
			if err := tx.Create(&payment).Error; err != nil {
				return err
			}

			amounts[id] = payment.Amount
			result.AppliedIDs = append(result.AppliedIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("approve abstract batch failed: %w", err)
	}

	s.notifyApplied(TemplateApprovalInvoice, result.AppliedIDs, amounts)
	return result, nil
}

// RejectAbstract moves every pending submission in ids to rejected. No mail
// goes out on rejection; that matches the announced process, where rejected
// participants are contacted by the committee separately.
func (s *ReviewService) RejectAbstract(ids []int, reviewerID int, notes *string) (*BatchResult, error) {
	ids = dedupeIDs(ids)
	result := &BatchResult{AppliedIDs: []int{}, SkippedIDs: []int{}}
	now := time.Now()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			updates := map[string]interface{}{
				"status":      models.SubmissionRejected,
				"reviewed_at": now,
				"reviewed_by": reviewerID,
				"update_at":   now,
			}
			if notes != nil {
				updates["review_notes"] = *notes
			}
			res := tx.Model(&models.Submission{}).
				Where("submission_id = ? AND status = ? AND delete_at IS NULL", id, models.SubmissionPending).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				result.SkippedIDs = append(result.SkippedIDs, id)
				continue
			}
			result.AppliedIDs = append(result.AppliedIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reject abstract batch failed: %w", err)
	}
	return result, nil
}

// ApprovePayment verifies the pending payment of every approved submission in
// ids and mails the Letter of Acceptance.
func (s *ReviewService) ApprovePayment(ids []int, reviewerID int) (*BatchResult, error) {
	return s.reviewPayment(ids, reviewerID, models.PaymentApproved, nil)
}

// RejectPayment rejects the pending payment of every approved submission in
// ids. Like abstract rejection, no mail goes out. Rejection is terminal in
// the guided workflow; only the payment-status override can reopen it after
// the participant uploads a new proof.
func (s *ReviewService) RejectPayment(ids []int, reviewerID int, notes *string) (*BatchResult, error) {
	return s.reviewPayment(ids, reviewerID, models.PaymentRejected, notes)
}

func (s *ReviewService) reviewPayment(ids []int, reviewerID int, target string, notes *string) (*BatchResult, error) {
	ids = dedupeIDs(ids)
	result := &BatchResult{AppliedIDs: []int{}, SkippedIDs: []int{}}
	now := time.Now()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			// The abstract check is a plain read: once approved, the guided
			// workflow never moves a submission away from approved, so the
			// contended row is the payment and its update below is the guard.
			var approved int64
			if err := tx.Model(&models.Submission{}).
				Where("submission_id = ? AND status = ? AND delete_at IS NULL", id, models.SubmissionApproved).
				Count(&approved).Error; err != nil {
				return err
			}
			if approved == 0 {
				result.SkippedIDs = append(result.SkippedIDs, id)
				continue
			}

			updates := map[string]interface{}{
				"status":      target,
				"reviewed_at": now,
				"reviewed_by": reviewerID,
				"update_at":   now,
			}
			if notes != nil {
				updates["review_notes"] = *notes
			}
			res := tx.Model(&models.Payment{}).
				Where("submission_id = ? AND status = ?", id, models.PaymentPending).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				result.SkippedIDs = append(result.SkippedIDs, id)
				continue
			}
			result.AppliedIDs = append(result.AppliedIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("payment review batch failed: %w", err)
	}

	if target == models.PaymentApproved {
		s.notifyApplied(TemplateLetterOfAcceptance, result.AppliedIDs, nil)
	}
	return result, nil
}

// UpdateStatus is the privileged admin override: free status reassignment on
// a submission, exempt from the workflow preconditions. It creates no payment
// and sends no mail.
func (s *ReviewService) UpdateStatus(id int, status string, notes *string, reviewerID int) (*models.Submission, error) {
	if !validStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var sub models.Submission
	if err := s.db.Where("delete_at IS NULL").First(&sub, "submission_id = ?", id).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	sub.Status = status
	sub.ReviewedAt = &now
	sub.ReviewedBy = &reviewerID
	if notes != nil {
		sub.ReviewNotes = notes
	}
	sub.UpdateAt = now

	if err := s.db.Save(&sub).Error; err != nil {
		return nil, fmt.Errorf("failed to update submission status: %w", err)
	}
	return &sub, nil
}

// UpdatePaymentStatus is the payment counterpart of UpdateStatus. Setting a
// rejected payment back to pending is how an admin reopens review after the
// participant re-uploads proof.
func (s *ReviewService) UpdatePaymentStatus(id int, status string, notes *string, reviewerID int) (*models.Payment, error) {
	if !validStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var payment models.Payment
	if err := s.db.First(&payment, "payment_id = ?", id).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	payment.Status = status
	payment.ReviewedAt = &now
	payment.ReviewedBy = &reviewerID
	if notes != nil {
		payment.ReviewNotes = notes
	}
	payment.UpdateAt = now

	if err := s.db.Save(&payment).Error; err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	return &payment, nil
}

// notifyApplied dispatches one message per applied id, after the batch has
// committed. Load failures only cost the mail, never the transition.
func (s *ReviewService) notifyApplied(kind TemplateKind, ids []int, amounts map[int]int64) {
	for _, id := range ids {
		var sub models.Submission
		if err := s.db.Preload("User").First(&sub, "submission_id = ?", id).Error; err != nil {
			log.Printf("skipping %s mail for submission %d: %v", kind, id, err)
			continue
		}
		s.mailer.Send(kind, &sub, amounts[id])
	}
}

func validStatus(status string) bool {
	switch status {
	case models.SubmissionPending, models.SubmissionApproved, models.SubmissionRejected:
		return true
	}
	return false
}

// dedupeIDs keeps the first occurrence of each id, so a batch naming the same
// submission twice processes it once.
func dedupeIDs(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
