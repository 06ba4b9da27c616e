package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Mindburn-Labs/relay/pkg/auth"
	"github.com/Mindburn-Labs/relay/pkg/model"
	"github.com/Mindburn-Labs/relay/pkg/store"
)

type signupRequest struct {
	Name string `json:"name"`
}

type signupResponse struct {
	Tenant     *model.Tenant `json:"tenant"`
	APIKey     string        `json:"api_key"`
	IngressURL string        `json:"ingress_url"`
}

// handleSignup provisions a tenant with its ingress token and first API key.
// The raw key appears only in this response.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		WriteBadRequest(w, "name is required")
		return
	}

	tenant, err := s.Tenants.Create(ctx, req.Name)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	rawKey, err := s.Keys.Issue(ctx, tenant.ID)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	s.Logger.Info("tenant created", "tenant_id", tenant.ID, "name", tenant.Name)
	WriteJSON(w, http.StatusOK, signupResponse{
		Tenant:     tenant,
		APIKey:     rawKey,
		IngressURL: s.cfg.FrontendURL + "/in/" + tenant.Token,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	tenant, ok := auth.TenantFrom(r.Context())
	if !ok {
		WriteUnauthorized(w, "")
		return
	}
	WriteJSON(w, http.StatusOK, tenant)
}

type targetRequest struct {
	URL      string            `json:"url"`
	Provider string            `json:"provider"`
	Headers  map[string]string `json:"headers"`
}

// handleUpsertTarget sets the caller's delivery destination. One target per
// tenant and provider; posting again replaces it in place.
func (s *Server) handleUpsertTarget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := auth.TenantFrom(ctx)
	if !ok {
		WriteUnauthorized(w, "")
		return
	}
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		WriteBadRequest(w, "url is required")
		return
	}

	target, err := s.Targets.Upsert(ctx, &model.Target{
		TenantID: tenant.ID,
		URL:      req.URL,
		Provider: req.Provider,
		Headers:  req.Headers,
	})
	if err != nil {
		WriteInternal(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, target)
}

const eventListLimit = 100

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := auth.TenantFrom(ctx)
	if !ok {
		WriteUnauthorized(w, "")
		return
	}
	events, err := s.Events.ListByTenant(ctx, tenant.ID, eventListLimit)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

type signingSecretRequest struct {
	SigningSecret string `json:"signing_secret"`
}

// handleSetSigningSecret rotates the webhook signing secret for one of the
// caller's ingress tokens. A token the caller does not own is a 404.
func (s *Server) handleSetSigningSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := auth.TenantFrom(ctx)
	if !ok {
		WriteUnauthorized(w, "")
		return
	}
	token := r.PathValue("token")
	if token != tenant.Token {
		WriteNotFound(w)
		return
	}
	var req signingSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SigningSecret == "" {
		WriteBadRequest(w, "signing_secret is required")
		return
	}

	if err := s.Tenants.SetSigningSecret(ctx, token, req.SigningSecret); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w)
			return
		}
		WriteInternal(w, err)
		return
	}
	s.Logger.Info("signing secret updated", "tenant_id", tenant.ID)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
