package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"conference-submission-api/config"
	"conference-submission-api/models"
	"conference-submission-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type batchRequest struct {
	IDs   []int   `json:"ids" binding:"required"`
	Notes *string `json:"notes"`
}

func (r *batchRequest) validate() map[string]string {
	fieldErrors := map[string]string{}
	if len(r.IDs) == 0 {
		fieldErrors["ids"] = "at least one submission id is required"
	}
	for i, id := range r.IDs {
		if id <= 0 {
			fieldErrors[fmt.Sprintf("ids[%d]", i)] = "invalid submission id"
		}
	}
	if len(fieldErrors) == 0 {
		return nil
	}
	return fieldErrors
}

type statusUpdateRequest struct {
	Status string  `json:"status" binding:"required"`
	Notes  *string `json:"notes"`
}

// ListSubmissions is the reviewer work queue: all submissions, optionally
// filtered by abstract status, newest first.
func ListSubmissions(c *gin.Context) {
	query := config.DB.
		Preload("User").
		Preload("Contributors").
		Preload("Payment").
		Where("delete_at IS NULL")

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var submissions []models.Submission
	if err := query.Order("submitted_at DESC").Find(&submissions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load submissions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"submissions": submissions})
}

// ApproveAbstract accepts the pending abstracts in the batch, creating their
// registration invoices and mailing the participants.
func ApproveAbstract(c *gin.Context) {
	runBatch(c, func(svc *services.ReviewService, req *batchRequest, reviewerID int) (*services.BatchResult, error) {
		return svc.ApproveAbstract(req.IDs, reviewerID)
	})
}

// RejectAbstract rejects the pending abstracts in the batch.
func RejectAbstract(c *gin.Context) {
	runBatch(c, func(svc *services.ReviewService, req *batchRequest, reviewerID int) (*services.BatchResult, error) {
		return svc.RejectAbstract(req.IDs, reviewerID, req.Notes)
	})
}

// ApprovePayment verifies the pending payments in the batch and issues the
// Letters of Acceptance.
func ApprovePayment(c *gin.Context) {
	runBatch(c, func(svc *services.ReviewService, req *batchRequest, reviewerID int) (*services.BatchResult, error) {
		return svc.ApprovePayment(req.IDs, reviewerID)
	})
}

// RejectPayment rejects the pending payments in the batch.
func RejectPayment(c *gin.Context) {
	runBatch(c, func(svc *services.ReviewService, req *batchRequest, reviewerID int) (*services.BatchResult, error) {
		return svc.RejectPayment(req.IDs, reviewerID, req.Notes)
	})
}

func runBatch(c *gin.Context, apply func(*services.ReviewService, *batchRequest, int) (*services.BatchResult, error)) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if fieldErrors := req.validate(); fieldErrors != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fieldErrors})
		return
	}

	userID, _ := c.Get("userID")
	svc := services.NewReviewService(config.DB, nil)

	result, err := apply(svc, &req, userID.(int))
	if err != nil {
		// The whole batch rolled back; skipped ids alone never error.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Batch update failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"applied_ids": result.AppliedIDs,
		"skipped_ids": result.SkippedIDs,
		"applied":     len(result.AppliedIDs),
		"skipped":     len(result.SkippedIDs),
	})
}

// UpdateSubmissionStatus is the privileged override: set any abstract status
// directly, bypassing the two-stage workflow.
func UpdateSubmissionStatus(c *gin.Context) {
	sid, err := strconv.Atoi(c.Param("id"))
	if err != nil || sid <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission id"})
		return
	}

	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, _ := c.Get("userID")
	svc := services.NewReviewService(config.DB, nil)

	submission, err := svc.UpdateStatus(sid, req.Status, req.Notes, userID.(int))
	if err != nil {
		writeOverrideError(c, err, "submission")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Submission status updated",
		"submission": submission,
	})
}

// UpdatePaymentStatus is the payment counterpart of UpdateSubmissionStatus.
func UpdatePaymentStatus(c *gin.Context) {
	pid, err := strconv.Atoi(c.Param("id"))
	if err != nil || pid <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, _ := c.Get("userID")
	svc := services.NewReviewService(config.DB, nil)

	payment, err := svc.UpdatePaymentStatus(pid, req.Status, req.Notes, userID.(int))
	if err != nil {
		writeOverrideError(c, err, "payment")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment status updated",
		"payment": payment,
	})
}

func writeOverrideError(c *gin.Context, err error, entity string) {
	switch {
	case errors.Is(err, services.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": entity + " not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update " + entity + " status"})
	}
}
