package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Mindburn-Labs/relay/pkg/queue"
	"github.com/Mindburn-Labs/relay/pkg/ratelimit"
	"github.com/Mindburn-Labs/relay/pkg/signature"
	"github.com/Mindburn-Labs/relay/pkg/store"
)

// handleIngress admits one signed webhook event. Checks run strictly in
// order: size, tenant, non-empty body, signature header, configured secret,
// signature, payload shape. Verification always runs over the exact request
// bytes, never a re-serialization.
//
// Admission responds 200 {"status":"received"} for new and duplicate events
// alike; blob archival and queueing are best-effort and never fail the
// response once the row is persisted.
func (s *Server) handleIngress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := r.PathValue("token")

	if s.Limiter != nil {
		allowed, err := s.Limiter.Allow(ctx, "token:"+token, ratelimit.PerTokenLimit)
		if err != nil {
			s.Logger.Error("rate limiter unavailable, failing open", "error", err)
		} else if !allowed {
			WriteTooManyRequests(w, int(ratelimit.PerTokenLimit.Window.Seconds()))
			return
		}
	}

	tenant, err := s.Tenants.ByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w)
			return
		}
		WriteInternal(w, err)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WritePayloadTooLarge(w)
			return
		}
		WriteBadRequest(w, "Could not read request body")
		return
	}
	if len(raw) == 0 {
		WriteBadRequest(w, "Empty JSON body")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		WriteBadRequest(w, "Missing Stripe signature")
		return
	}
	if tenant.SigningSecret == "" {
		WriteBadRequest(w, "No signing secret configured for tenant")
		return
	}
	if err := signature.Verify(raw, sigHeader, tenant.SigningSecret, signature.DefaultTolerance, s.now()); err != nil {
		WriteBadRequest(w, "Invalid Stripe signature")
		return
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		WriteBadRequest(w, "Invalid JSON payload")
		return
	}
	if msgs := validatePayload(doc); len(msgs) > 0 {
		WriteError(w, http.StatusBadRequest, msgs)
		return
	}

	fp := signature.Fingerprint(raw)
	ev, created, err := s.Events.Insert(ctx, tenant.ID, fp, raw, s.now().UTC())
	if err != nil {
		WriteInternal(w, err)
		return
	}

	if created {
		s.Metrics.EventReceived(ctx)
		if s.Blobs != nil {
			if err := s.Blobs.Put(ctx, ev.BlobKey(), raw, "application/json"); err != nil {
				s.Logger.Error("blob archive failed", "event_id", ev.ID, "error", err)
			}
		}
		if err := s.Queue.Enqueue(ctx, queue.Job{EventID: ev.ID, Attempt: 1}, s.now().UTC()); err != nil {
			s.Logger.Error("enqueue failed", "event_id", ev.ID, "error", err)
		}
		s.Logger.Info("event received",
			"event_id", ev.ID, "tenant_id", tenant.ID, "fingerprint", fp)
	} else {
		s.Metrics.EventDuplicate(ctx)
		s.Logger.Info("duplicate event ignored",
			"event_id", ev.ID, "tenant_id", tenant.ID, "fingerprint", fp)
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
