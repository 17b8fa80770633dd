package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string            `json:"status"`
	Checks      map[string]string `json:"checks"`
	Environment string            `json:"environment"`
}

// Health reports each dependency. Any failing check turns the answer into a
// 503 so load balancers stop routing here.
func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.deps.Checks))
	for name := range h.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names)), Environment: h.cfg.Environment}
	for _, name := range names {
		if err := h.deps.Checks[name](ctx); err != nil {
			resp.Checks[name] = "error"
			resp.Status = "degraded"
			h.log.Error().Err(err).Str("check", name).Msg("health check failed")
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
