package routes

import (
	"conference-submission-api/controllers"
	"conference-submission-api/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine) {
	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			public.POST("/login", controllers.Login)

			// Health check
			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "Conference Submission API is running",
				})
			})
		}

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			// User profile
			protected.GET("/profile", controllers.GetProfile)
			protected.PUT("/change-password", controllers.ChangePassword)

			// Participant submissions
			submissions := protected.Group("/submissions")
			{
				submissions.POST("", controllers.CreateSubmission)
				submissions.GET("", controllers.GetSubmissions)
				submissions.GET("/:id", controllers.GetSubmission)
				submissions.PUT("/:id", controllers.UpdateSubmission)
				submissions.DELETE("/:id", controllers.DeleteSubmission)
				submissions.POST("/:id/payment-proof", controllers.UploadPaymentProof)
			}

			// Polling change feed
			protected.GET("/updates", controllers.GetUpdates)

			// Reviewer operations
			admin := protected.Group("/admin")
			admin.Use(middleware.RequireRole(middleware.RoleAdmin))
			{
				admin.GET("/submissions", controllers.ListSubmissions)
				admin.POST("/submissions/approve-abstract", controllers.ApproveAbstract)
				admin.POST("/submissions/reject-abstract", controllers.RejectAbstract)
				admin.POST("/submissions/approve-payment", controllers.ApprovePayment)
				admin.POST("/submissions/reject-payment", controllers.RejectPayment)
				admin.PUT("/submissions/:id/status", controllers.UpdateSubmissionStatus)
				admin.PUT("/payments/:id/status", controllers.UpdatePaymentStatus)
			}
		}
	}
}
