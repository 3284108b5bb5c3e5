package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vidyabase/vidya-backend/internal/services"
)

type HydrationHandler struct {
	hydration *services.HydrationService
}

func NewHydrationHandler(hydration *services.HydrationService) *HydrationHandler {
	return &HydrationHandler{hydration: hydration}
}

// POST /api/hydration
func (h *HydrationHandler) Submit(c *gin.Context) {
	var req services.HydrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := h.hydration.Submit(c.Request.Context(), nil, req)
	if err != nil {
		if errors.Is(err, services.ErrSubjectNotFound) {
			RespondError(c, http.StatusNotFound, "subject_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "submit_failed", err)
		return
	}
	RespondOK(c, result)
}

// GET /api/hydration/:id
func (h *HydrationHandler) Status(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	status, err := h.hydration.Status(c.Request.Context(), nil, jobID)
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "status_failed", err)
		return
	}
	RespondOK(c, status)
}

// GET /api/hydration?status=&limit=&offset=
func (h *HydrationHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	jobs, total, err := h.hydration.List(c.Request.Context(), nil, c.Query("status"), limit, offset)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}
