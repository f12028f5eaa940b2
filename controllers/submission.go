package controllers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"conference-submission-api/config"
	"conference-submission-api/middleware"
	"conference-submission-api/models"
	"conference-submission-api/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errSubmissionNotEditable = errors.New("submission is already under review and can no longer be edited")

type contributorPayload struct {
	Name        string `json:"name" binding:"required"`
	Affiliation string `json:"affiliation" binding:"required"`
	Country     string `json:"country" binding:"required"`
	Email       string `json:"email" binding:"required"`
}

type submissionPayload struct {
	Title        string               `json:"title" binding:"required"`
	Abstract     string               `json:"abstract" binding:"required"`
	Contributors []contributorPayload `json:"contributors"`
}

func (p *submissionPayload) validate() map[string]string {
	fieldErrors := map[string]string{}
	if utils.SanitizeInput(p.Title) == "" {
		fieldErrors["title"] = "title is required"
	}
	if utils.SanitizeInput(p.Abstract) == "" {
		fieldErrors["abstract"] = "abstract is required"
	}
	for i, contrib := range p.Contributors {
		if !utils.ValidateEmail(contrib.Email) {
			fieldErrors[fmt.Sprintf("contributors[%d].email", i)] = "invalid email address"
		}
	}
	if len(fieldErrors) == 0 {
		return nil
	}
	return fieldErrors
}

// CreateSubmission registers a new abstract for the current participant.
func CreateSubmission(c *gin.Context) {
	var req submissionPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if fieldErrors := req.validate(); fieldErrors != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fieldErrors})
		return
	}

	userID, _ := c.Get("userID")
	now := time.Now()

	submission := models.Submission{
		UserID:      userID.(int),
		Title:       utils.SanitizeInput(req.Title),
		Abstract:    utils.SanitizeInput(req.Abstract),
		Status:      models.SubmissionPending,
		SubmittedAt: now,
		CreateAt:    now,
		UpdateAt:    now,
	}

	err := config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&submission).Error; err != nil {
			return err
		}
		return createContributors(tx, submission.SubmissionID, req.Contributors, now)
	})
	if err != nil {
		log.Printf("[CreateSubmission] create failed for user %v: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create submission"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "Submission created successfully",
		"submission": submission,
	})
}

// GetSubmissions lists the current participant's submissions.
func GetSubmissions(c *gin.Context) {
	userID, _ := c.Get("userID")

	var submissions []models.Submission
	if err := config.DB.
		Preload("Contributors").
		Preload("Payment").
		Where("user_id = ? AND delete_at IS NULL", userID).
		Order("create_at DESC").
		Find(&submissions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load submissions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"submissions": submissions})
}

// GetSubmission returns one submission. Participants see only their own;
// admins can open any.
func GetSubmission(c *gin.Context) {
	submission, ok := findOwnedSubmission(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": submission})
}

// UpdateSubmission edits a pending submission. The contributor set is
// replaced wholesale, never merged, so a dropped co-author really disappears.
func UpdateSubmission(c *gin.Context) {
	var req submissionPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if fieldErrors := req.validate(); fieldErrors != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fieldErrors})
		return
	}

	submission, ok := findOwnedSubmission(c)
	if !ok {
		return
	}
	if submission.Status != models.SubmissionPending {
		c.JSON(http.StatusConflict, gin.H{"error": errSubmissionNotEditable.Error()})
		return
	}

	now := time.Now()
	err := config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Submission{}).
			Where("submission_id = ?", submission.SubmissionID).
			Updates(map[string]interface{}{
				"title":     utils.SanitizeInput(req.Title),
				"abstract":  utils.SanitizeInput(req.Abstract),
				"update_at": now,
			}).Error; err != nil {
			return err
		}
		if err := tx.Where("submission_id = ?", submission.SubmissionID).
			Delete(&models.Contributor{}).Error; err != nil {
			return err
		}
		return createContributors(tx, submission.SubmissionID, req.Contributors, now)
	})
	if err != nil {
		log.Printf("[UpdateSubmission] update failed for submission %d: %v", submission.SubmissionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update submission"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Submission updated successfully"})
}

// DeleteSubmission withdraws a pending submission. Any payment row goes
// first inside the same transaction, so a payment can never outlive its
// submission.
func DeleteSubmission(c *gin.Context) {
	submission, ok := findOwnedSubmission(c)
	if !ok {
		return
	}
	if submission.Status != models.SubmissionPending {
		c.JSON(http.StatusConflict, gin.H{"error": "only pending submissions can be withdrawn"})
		return
	}

	now := time.Now()
	err := config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("submission_id = ?", submission.SubmissionID).
			Delete(&models.Payment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("submission_id = ?", submission.SubmissionID).
			Delete(&models.Contributor{}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Submission{}).
			Where("submission_id = ?", submission.SubmissionID).
			Updates(map[string]interface{}{"delete_at": now, "update_at": now}).Error
	})
	if err != nil {
		log.Printf("[DeleteSubmission] delete failed for submission %d: %v", submission.SubmissionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to withdraw submission"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Submission withdrawn"})
}

// UploadPaymentProof stores a transfer receipt against the submission's
// payment. Bumping the payment row's update_at is what surfaces the upload
// in the change feed.
func UploadPaymentProof(c *gin.Context) {
	submission, ok := findOwnedSubmission(c)
	if !ok {
		return
	}

	var payment models.Payment
	if err := config.DB.First(&payment, "submission_id = ?", submission.SubmissionID).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "submission has no registration invoice yet"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	uploadPath := os.Getenv("UPLOAD_PATH")
	if uploadPath == "" {
		uploadPath = "./uploads"
	}
	storedName := uuid.NewString() + filepath.Ext(file.Filename)
	storedPath := filepath.Join(uploadPath, storedName)

	if err := c.SaveUploadedFile(file, storedPath); err != nil {
		log.Printf("[UploadPaymentProof] save failed for submission %d: %v", submission.SubmissionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store payment proof"})
		return
	}

	now := time.Now()
	if err := config.DB.Model(&models.Payment{}).
		Where("payment_id = ?", payment.PaymentID).
		Updates(map[string]interface{}{
			"payment_proof": storedName,
			"update_at":     now,
		}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record payment proof"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Payment proof uploaded",
		"payment_proof": storedName,
	})
}

func createContributors(tx *gorm.DB, submissionID int, contributors []contributorPayload, now time.Time) error {
	for _, contrib := range contributors {
		row := models.Contributor{
			SubmissionID: submissionID,
			Name:         utils.SanitizeInput(contrib.Name),
			Affiliation:  utils.SanitizeInput(contrib.Affiliation),
			Country:      utils.SanitizeInput(contrib.Country),
			Email:        utils.SanitizeInput(contrib.Email),
			CreateAt:     now,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// findOwnedSubmission loads the :id submission and enforces ownership for
// non-admin callers. Writes the error response itself when it returns !ok.
func findOwnedSubmission(c *gin.Context) (*models.Submission, bool) {
	sid, err := strconv.Atoi(c.Param("id"))
	if err != nil || sid <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission id"})
		return nil, false
	}

	var submission models.Submission
	if err := config.DB.
		Preload("Contributors").
		Preload("Payment").
		Where("delete_at IS NULL").
		First(&submission, "submission_id = ?", sid).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return nil, false
	}

	userID, _ := c.Get("userID")
	roleID, _ := c.Get("roleID")
	if submission.UserID != userID.(int) && roleID.(int) != middleware.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your submission"})
		return nil, false
	}

	return &submission, true
}
