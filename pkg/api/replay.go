package api

import (
	"errors"
	"net/http"

	"github.com/Mindburn-Labs/relay/pkg/auth"
	"github.com/Mindburn-Labs/relay/pkg/model"
	"github.com/Mindburn-Labs/relay/pkg/queue"
	"github.com/Mindburn-Labs/relay/pkg/store"
)

// handleReplay re-runs delivery for an event the caller owns. The attempt
// counter restarts at 1; an Attempts=0 row marks the manual trigger in the
// audit trail. Events of other tenants are indistinguishable from missing
// ones.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := auth.TenantFrom(ctx)
	if !ok {
		WriteUnauthorized(w, "")
		return
	}

	ev, err := s.Events.ByID(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w)
			return
		}
		WriteInternal(w, err)
		return
	}
	if ev.TenantID != tenant.ID {
		WriteNotFound(w)
		return
	}

	marker := &model.Delivery{
		EventID:   ev.ID,
		Attempts:  0,
		Status:    0,
		Response:  "manual replay",
		CreatedAt: s.now().UTC(),
	}
	if err := s.Deliveries.Append(ctx, marker); err != nil {
		WriteInternal(w, err)
		return
	}
	if err := s.Queue.Enqueue(ctx, queue.Job{EventID: ev.ID, Attempt: 1}, s.now().UTC()); err != nil {
		WriteInternal(w, err)
		return
	}

	s.Logger.Info("event replay queued", "event_id", ev.ID, "tenant_id", tenant.ID)
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":   "queued",
		"event_id": ev.ID,
	})
}
