package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/ppah/verify-server-go/internal/errors"
	"github.com/ppah/verify-server-go/internal/service"
	"github.com/ppah/verify-server-go/internal/util"
)

type AuthHandler struct {
	magicLinkService *service.MagicLinkService
	rpID             string
	rpName           string
}

func NewAuthHandler(magicLinkService *service.MagicLinkService, rpID, rpName string) *AuthHandler {
	return &AuthHandler{
		magicLinkService: magicLinkService,
		rpID:             rpID,
		rpName:           rpName,
	}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/config", h.Config)
	r.Post("/magic-link", h.IssueMagicLink)
	r.Get("/magic-link/{token}", h.ConsumeMagicLink)

	return r
}

// GET /api/auth/config
// Relying-party parameters for the WebAuthn client.
func (h *AuthHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"rpId":   h.rpID,
		"rpName": h.rpName,
	})
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

// POST /api/auth/magic-link
func (h *AuthHandler) IssueMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("Invalid request body"))
		return
	}

	if !util.IsValidEmail(req.Email) {
		writeError(w, apperrors.Validation("Invalid email address"))
		return
	}

	// The token itself travels out of band (mail delivery is not this
	// server's job); the response only confirms issuance.
	if _, err := h.magicLinkService.Issue(r.Context(), req.Email); err != nil {
		log.Error().Err(err).Msg("failed to issue magic link")
		writeError(w, apperrors.Internal("Failed to issue magic link"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// GET /api/auth/magic-link/{token}
func (h *AuthHandler) ConsumeMagicLink(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		writeError(w, apperrors.MissingRequired("token"))
		return
	}

	email, err := h.magicLinkService.Consume(r.Context(), token)
	if err != nil {
		if _, ok := apperrors.AsAppError(err); !ok {
			log.Error().Err(err).Msg("failed to consume magic link")
			err = apperrors.Internal("Failed to consume magic link")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "verified",
		"email":  email,
	})
}
