package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vidyabase/vidya-backend/internal/observability"
	"github.com/vidyabase/vidya-backend/internal/orchestrator"
	"github.com/vidyabase/vidya-backend/internal/repos"
)

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

type HealthHandler struct {
	lifecycle     repos.WorkerLifecycleRepo
	metrics       *observability.Metrics
	heartbeatFile string
}

func NewHealthHandler(lifecycle repos.WorkerLifecycleRepo, metrics *observability.Metrics, heartbeatFile string) *HealthHandler {
	return &HealthHandler{
		lifecycle:     lifecycle,
		metrics:       metrics,
		heartbeatFile: heartbeatFile,
	}
}

// GET /healthz — worker counts by status plus the orchestrator heartbeat.
func (h *HealthHandler) Liveness(c *gin.Context) {
	out := gin.H{"status": "ok"}

	counts, err := h.lifecycle.CountByStatus(c.Request.Context(), nil)
	if err == nil {
		byStatus := map[string]int64{}
		for _, sc := range counts {
			byStatus[sc.Status] = sc.Count
		}
		out["workers"] = byStatus
	}

	if h.heartbeatFile != "" {
		if hb, hbErr := orchestrator.ReadHeartbeatFile(h.heartbeatFile); hbErr == nil {
			out["orchestrator"] = hb
		}
	}

	RespondOK(c, out)
}

// GET /metrics — Prometheus text exposition.
func (h *HealthHandler) Metrics(c *gin.Context) {
	var sb strings.Builder
	if err := h.metrics.WritePrometheus(&sb); err != nil {
		RespondError(c, http.StatusInternalServerError, "metrics_failed", err)
		return
	}
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(sb.String()))
}
