package handler

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/m5mds/ahmed-academy2/internal/dto"
	"github.com/m5mds/ahmed-academy2/internal/models"
	"github.com/m5mds/ahmed-academy2/internal/service"
	appErrors "github.com/m5mds/ahmed-academy2/pkg/errors"
	"github.com/m5mds/ahmed-academy2/pkg/response"
)

// LockHandler exposes the admin lock registry and its audit trail.
type LockHandler struct {
	locks   *service.LockService
	exports *service.AuditExportService
}

// NewLockHandler creates a new handler. exports may be nil when the export
// feature is disabled.
func NewLockHandler(locks *service.LockService, exports *service.AuditExportService) *LockHandler {
	return &LockHandler{locks: locks, exports: exports}
}

// List godoc
// @Summary List content locks
// @Description List lock rows, newest first, optionally filtered by scope/level
// @Tags Locks
// @Produce json
// @Param scope query string false "GLOBAL or PER_STUDENT"
// @Param level query string false "TIER, CHAPTER or LESSON"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/locks [get]
func (h *LockHandler) List(c *gin.Context) {
	filter := models.LockFilter{
		Scope: models.LockScope(c.Query("scope")),
		Level: models.LockLevel(c.Query("level")),
	}
	locks, err := h.locks.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, locks, nil)
}

// Set godoc
// @Summary Set or clear a content lock
// @Description Upsert the lock row for (scope, level, target, student) and append an audit entry
// @Tags Locks
// @Accept json
// @Produce json
// @Param payload body dto.SetLockRequest true "Lock payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/locks [post]
func (h *LockHandler) Set(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.SetLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lock payload"))
		return
	}

	lock, err := h.locks.SetLock(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lock, nil)
}

// Audits godoc
// @Summary Recent lock audit entries
// @Description Most recent lock/unlock actions, newest first
// @Tags Locks
// @Produce json
// @Param limit query int false "Max entries (default 100)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/locks/audit [get]
func (h *LockHandler) Audits(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	audits, err := h.locks.Audits(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, audits, nil)
}

// EnqueueExport godoc
// @Summary Queue a lock audit export
// @Description Queue an asynchronous CSV or PDF export of the audit trail
// @Tags Locks
// @Accept json
// @Produce json
// @Param payload body dto.ExportAuditRequest true "Export payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/locks/audit/export [post]
func (h *LockHandler) EnqueueExport(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "exports are disabled"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ExportAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}

	job, err := h.exports.Enqueue(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, exportJobResponse(job), nil)
}

// ExportStatus godoc
// @Summary Export job status
// @Description Poll an export job until it is finished or failed
// @Tags Locks
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/locks/audit/export/{id} [get]
func (h *LockHandler) ExportStatus(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "exports are disabled"))
		return
	}
	job, err := h.exports.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exportJobResponse(job), nil)
}

// DownloadExport godoc
// @Summary Download a finished export
// @Description Stream the export file referenced by a signed download token
// @Tags Locks
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /export/{token} [get]
func (h *LockHandler) DownloadExport(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "exports are disabled"))
		return
	}
	file, relPath, err := h.exports.OpenByToken(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.FileAttachment(file.Name(), filepath.Base(relPath))
}

func exportJobResponse(job *models.ExportJob) dto.ExportJobResponse {
	return dto.ExportJobResponse{
		ID:        job.ID,
		Status:    job.Status,
		ResultURL: job.ResultURL,
		Error:     job.ErrorMessage,
	}
}
