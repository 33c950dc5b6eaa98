package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/m5mds/ahmed-academy2/internal/models"
	"github.com/m5mds/ahmed-academy2/internal/service"
	appErrors "github.com/m5mds/ahmed-academy2/pkg/errors"
	"github.com/m5mds/ahmed-academy2/pkg/response"
)

// ContentHandler serves the student-facing content tree and video access.
type ContentHandler struct {
	content *service.ContentService
	metrics *service.MetricsService
}

// NewContentHandler creates a new handler.
func NewContentHandler(content *service.ContentService, metrics *service.MetricsService) *ContentHandler {
	return &ContentHandler{content: content, metrics: metrics}
}

// Chapters godoc
// @Summary Course content tree
// @Description Chapters grouped by tier with per-lesson lock state for the caller
// @Tags Content
// @Produce json
// @Param courseId query string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /content/chapters [get]
func (h *ContentHandler) Chapters(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	courseID := c.Query("courseId")
	if courseID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "courseId query parameter required"))
		return
	}

	tree, err := h.content.ChapterTree(c.Request.Context(), claims.UserID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, tree, nil)
}

// Video godoc
// @Summary Lesson video access
// @Description Evaluate entitlement and return a signed playback URL
// @Tags Content
// @Produce json
// @Param lessonId path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /content/video/{lessonId} [get]
func (h *ContentHandler) Video(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	lessonID := c.Param("lessonId")
	res, verdict, err := h.content.VideoAccess(c.Request.Context(), claims.UserID, lessonID)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.metrics.ObserveVerdict(verdict)

	if !verdict.Allowed {
		response.Error(c, denyError(verdict.Reason))
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// denyError maps a deny reason to the HTTP error envelope. Clients match on
// the code, never the message.
func denyError(reason models.DenyReason) *appErrors.Error {
	switch reason {
	case models.DenyNotFound:
		return appErrors.New(string(reason), http.StatusNotFound, "lesson not found")
	case models.DenyNotEnrolled:
		return appErrors.New(string(reason), http.StatusForbidden, "not enrolled in this course")
	case models.DenySubscriptionExpired:
		return appErrors.New(string(reason), http.StatusForbidden, "subscription has expired")
	case models.DenyContentLocked:
		return appErrors.New(string(reason), http.StatusForbidden, "content is locked")
	case models.DenyTierMismatch:
		return appErrors.New(string(reason), http.StatusForbidden, "subscription tier does not cover this lesson")
	default:
		return appErrors.New(string(reason), http.StatusForbidden, "access denied")
	}
}
