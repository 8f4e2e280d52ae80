package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/greengoods/api/internal/connectivity"
	"github.com/greengoods/api/pkg/response"
)

// SyncHandler exposes the manual drain trigger and connectivity state.
type SyncHandler struct {
	monitor *connectivity.Monitor
}

func NewSyncHandler(monitor *connectivity.Monitor) *SyncHandler {
	return &SyncHandler{monitor: monitor}
}

// Sync handles POST /api/sync. The drain runs asynchronously; the caller
// observes results over the WebSocket feed or by polling the job list.
func (h *SyncHandler) Sync(c *fiber.Ctx) error {
	h.monitor.RequestSync()
	return response.Accepted(c, fiber.Map{
		"status": "sync-requested",
		"online": h.monitor.Online(),
	})
}
