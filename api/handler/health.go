package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/passwordless/api/transport"
	"github.com/fastygo/passwordless/internal/infrastructure/monitor"
	"github.com/fastygo/passwordless/pkg/httpcontext"
)

// StatusReporter is the slice of the monitor the health endpoint reads.
type StatusReporter interface {
	GetStatus() monitor.Status
}

type HealthHandler struct {
	baseHandler
	monitor StatusReporter
}

func NewHealthHandler(mon StatusReporter, adapter *httpcontext.Adapter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		monitor:     mon,
	}
}

// @Summary Health check
// @Tags health
// @Router /health [get]
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	status := h.monitor.GetStatus()
	if status.Healthy {
		h.respondJSON(ctx, http.StatusOK, transport.Envelope{Success: true, Data: status})
		return
	}
	h.respondJSON(ctx, http.StatusServiceUnavailable, transport.Envelope{
		Code:    "DEGRADED",
		Message: "dependencies unhealthy",
		Data:    status,
	})
}
