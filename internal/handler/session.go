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

type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/init", h.InitSession)
	r.Get("/{sessionID}/security-report", h.SecurityReport)

	return r
}

type initSessionRequest struct {
	Email                string `json:"email"`
	WebAuthnCredentialID string `json:"webauthn_credential_id"`
}

type verifyHashRequest struct {
	SessionID  string `json:"session_id"`
	SegmentID  int    `json:"segment_id"`
	Hash       string `json:"hash"`
	Signature  string `json:"signature"`
	TrustScore int    `json:"trust_score"`
}

// POST /api/session/init
func (h *SessionHandler) InitSession(w http.ResponseWriter, r *http.Request) {
	var req initSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("Invalid request body"))
		return
	}

	if req.Email == "" {
		writeError(w, apperrors.MissingRequired("email"))
		return
	}
	if !util.IsValidEmail(req.Email) {
		writeError(w, apperrors.Validation("Invalid email address"))
		return
	}

	result, err := h.sessionService.InitSession(r.Context(), req.Email, req.WebAuthnCredentialID)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /api/verify-hash
func (h *SessionHandler) VerifyHash(w http.ResponseWriter, r *http.Request) {
	var req verifyHashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("Invalid request body"))
		return
	}

	if req.SessionID == "" {
		writeError(w, apperrors.MissingRequired("session_id"))
		return
	}
	if req.SegmentID <= 0 {
		writeError(w, apperrors.Validation("segment_id must be positive"))
		return
	}
	if req.Hash == "" {
		writeError(w, apperrors.MissingRequired("hash"))
		return
	}
	if req.TrustScore < 0 || req.TrustScore > 100 {
		writeError(w, apperrors.Validation("trust_score must be between 0 and 100"))
		return
	}

	decision, err := h.sessionService.VerifyAndRecord(
		r.Context(), req.SessionID, req.SegmentID, req.Hash, req.Signature, req.TrustScore,
	)
	if err != nil {
		if _, ok := apperrors.AsAppError(err); !ok {
			log.Error().Err(err).Msg("failed to verify segment")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// GET /api/session/{sessionID}/security-report
func (h *SessionHandler) SecurityReport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, apperrors.MissingRequired("sessionID"))
		return
	}

	report, err := h.sessionService.Report(r.Context(), sessionID)
	if err != nil {
		if _, ok := apperrors.AsAppError(err); !ok {
			log.Error().Err(err).Msg("failed to build security report")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
