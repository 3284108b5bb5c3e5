package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vidyabase/vidya-backend/internal/repos"
	"github.com/vidyabase/vidya-backend/internal/types"
)

type WorkersHandler struct {
	lifecycle repos.WorkerLifecycleRepo
}

func NewWorkersHandler(lifecycle repos.WorkerLifecycleRepo) *WorkersHandler {
	return &WorkersHandler{lifecycle: lifecycle}
}

type spawnWorkerRequest struct {
	Type string `json:"type" binding:"required"`
}

// POST /api/workers — request a worker spawn. The orchestrator picks the
// STARTING row up on its next poll.
func (h *WorkersHandler) Spawn(c *gin.Context) {
	var req spawnWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	row := &types.WorkerLifecycle{
		ID:     uuid.New(),
		Type:   req.Type,
		Status: types.LifecycleStarting,
	}
	if _, err := h.lifecycle.Create(c.Request.Context(), nil, row); err != nil {
		RespondError(c, http.StatusInternalServerError, "spawn_request_failed", err)
		return
	}
	RespondOK(c, gin.H{"lifecycle_id": row.ID})
}

// POST /api/workers/:id/drain — request graceful shutdown.
func (h *WorkersHandler) Drain(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_lifecycle_id", err)
		return
	}
	row, err := h.lifecycle.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "drain_failed", err)
		return
	}
	if row == nil {
		RespondError(c, http.StatusNotFound, "worker_not_found", fmt.Errorf("no lifecycle row for id %s", id))
		return
	}
	if row.Status != types.LifecycleRunning {
		RespondError(c, http.StatusConflict, "worker_not_running", fmt.Errorf("worker is %s", row.Status))
		return
	}
	if err := h.lifecycle.UpdateFields(c.Request.Context(), nil, id, map[string]interface{}{
		"status": types.LifecycleDraining,
	}); err != nil {
		RespondError(c, http.StatusInternalServerError, "drain_failed", err)
		return
	}
	RespondOK(c, gin.H{"lifecycle_id": id, "status": types.LifecycleDraining})
}
