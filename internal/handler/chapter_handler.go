package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/m5mds/ahmed-academy2/internal/dto"
	"github.com/m5mds/ahmed-academy2/internal/service"
	appErrors "github.com/m5mds/ahmed-academy2/pkg/errors"
	"github.com/m5mds/ahmed-academy2/pkg/response"
)

// ChapterHandler exposes the admin chapter endpoints.
type ChapterHandler struct {
	chapters *service.ChapterService
}

// NewChapterHandler creates a new handler.
func NewChapterHandler(chapters *service.ChapterService) *ChapterHandler {
	return &ChapterHandler{chapters: chapters}
}

// ListByCourse godoc
// @Summary List chapters of a course
// @Tags Catalog
// @Produce json
// @Param courseId query string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/chapters [get]
func (h *ChapterHandler) ListByCourse(c *gin.Context) {
	courseID := c.Query("courseId")
	if courseID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "courseId query parameter required"))
		return
	}
	chapters, err := h.chapters.ListByCourse(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, chapters, nil)
}

// Create godoc
// @Summary Create a chapter
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CreateChapterRequest true "Chapter payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/chapters [post]
func (h *ChapterHandler) Create(c *gin.Context) {
	var req dto.CreateChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid chapter payload"))
		return
	}
	chapter, err := h.chapters.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, chapter)
}

// Update godoc
// @Summary Update a chapter
// @Description Title and tier updates; a tier change cascades to the chapter's lessons
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Chapter ID"
// @Param payload body dto.UpdateChapterRequest true "Chapter payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/chapters/{id} [put]
func (h *ChapterHandler) Update(c *gin.Context) {
	var req dto.UpdateChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid chapter payload"))
		return
	}
	chapter, err := h.chapters.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, chapter, nil)
}

// Reorder godoc
// @Summary Reorder chapters within a course
// @Tags Catalog
// @Accept json
// @Param payload body dto.ReorderChaptersRequest true "Ordering payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/chapters/reorder [post]
func (h *ChapterHandler) Reorder(c *gin.Context) {
	var req dto.ReorderChaptersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reorder payload"))
		return
	}
	if err := h.chapters.Reorder(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete a chapter
// @Tags Catalog
// @Param id path string true "Chapter ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/chapters/{id} [delete]
func (h *ChapterHandler) Delete(c *gin.Context) {
	if err := h.chapters.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
