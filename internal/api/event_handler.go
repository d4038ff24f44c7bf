package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

// ReceiveEvent принимает событие push/pull_request.
// POST /api/v1/events
//
// Несовпадение с правилами запуска не ошибка: 200 и accepted=false.
// Совпавшее событие уходит в очередь (202), run выполняет orchestrator.
func (h *Handler) ReceiveEvent(w http.ResponseWriter, r *http.Request) error {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("invalid request body")
	}
	if !req.Kind.IsValid() {
		return badRequest("unknown event kind: " + string(req.Kind))
	}
	if req.Branch == "" {
		return badRequest("branch is required")
	}
	if h.listener == nil {
		return unavailable("workflow is not loaded")
	}

	event := req.ToDomain()
	logger := telemetry.FromContextOr(r.Context(), h.logger).With("kind", event.Kind, "branch", event.Branch)
	resp := EventResponse{Kind: event.Kind, Branch: event.Branch}

	accepted := h.listener.Accepts(event)
	h.metrics.EventReceived(string(event.Kind), accepted)
	if !accepted {
		logger.Info("event does not match trigger rules")
		return writeData(w, http.StatusOK, resp)
	}

	if h.publisher == nil {
		return unavailable("event queue is not configured")
	}
	if err := h.publisher.PublishEventReceived(r.Context(), event); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}

	logger.Info("event accepted", "sha", event.SHA)
	resp.Accepted = true
	return writeData(w, http.StatusAccepted, resp)
}
