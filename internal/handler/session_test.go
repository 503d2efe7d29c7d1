package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppah/verify-server-go/internal/model"
	"github.com/ppah/verify-server-go/internal/repository"
	"github.com/ppah/verify-server-go/internal/service"
	"github.com/ppah/verify-server-go/internal/util"
)

// In-memory repositories backing the handler tests.

type memSessionRepo struct {
	sessions map[string]*model.Session
}

func (r *memSessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *memSessionRepo) Create(_ context.Context, params model.CreateSessionParams) (*model.Session, error) {
	now := time.Now()
	s := &model.Session{
		SessionID:      params.SessionID,
		Email:          params.Email,
		WebAuthnID:     params.WebAuthnID,
		SessionKey:     params.SessionKey,
		Status:         model.SessionStatusActive,
		LastTrustScore: 100,
		CreatedAt:      now,
		LastActivity:   now,
	}
	r.sessions[params.SessionID] = s
	copied := *s
	return &copied, nil
}

func (r *memSessionRepo) Save(_ context.Context, s *model.Session) error {
	copied := *s
	r.sessions[s.SessionID] = &copied
	return nil
}

func (r *memSessionRepo) TerminateStale(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (r *memSessionRepo) DeleteTerminated(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (r *memSessionRepo) WithTx(_ *sqlx.Tx) repository.SessionRepository { return r }

type memCredentialRepo struct{}

func (memCredentialRepo) FindByID(context.Context, string) (*model.Credential, error) {
	return nil, nil
}

func (memCredentialRepo) FindByEmail(context.Context, string) ([]model.Credential, error) {
	return nil, nil
}

func (memCredentialRepo) Upsert(_ context.Context, p model.CreateCredentialParams) (*model.Credential, error) {
	return &model.Credential{ID: p.ID, UserEmail: p.UserEmail}, nil
}

func (memCredentialRepo) UpdateSignCount(context.Context, string, int64) error { return nil }

func newTestRouter() chi.Router {
	repo := &memSessionRepo{sessions: make(map[string]*model.Session)}
	svc := service.NewSessionService(repo, memCredentialRepo{}, time.Hour, "")
	h := NewSessionHandler(svc)

	r := chi.NewRouter()
	r.Route("/api/session", func(r chi.Router) {
		r.Mount("/", h.Routes())
	})
	r.Post("/api/verify-hash", h.VerifyHash)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestInitSessionEndpoint(t *testing.T) {
	router := newTestRouter()

	t.Run("creates a session and returns the key once", func(t *testing.T) {
		rec := postJSON(t, router, "/api/session/init", map[string]any{
			"email":                  "user@example.com",
			"webauthn_credential_id": "cred-1",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode(t, rec)
		assert.Len(t, body["sessionId"], 32)
		assert.Len(t, body["sessionKey"], 64)
		assert.Equal(t, "active", body["status"])
	})

	t.Run("rejects missing email", func(t *testing.T) {
		rec := postJSON(t, router, "/api/session/init", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed email", func(t *testing.T) {
		rec := postJSON(t, router, "/api/session/init", map[string]any{"email": "not-an-email"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestVerifyHashEndpoint(t *testing.T) {
	router := newTestRouter()

	rec := postJSON(t, router, "/api/session/init", map[string]any{
		"email": "user@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	init := decode(t, rec)
	sessionID := init["sessionId"].(string)
	sessionKey := init["sessionKey"].(string)

	submit := func(segmentID int, hash string, score int) map[string]any {
		sig := util.SegmentSignature(sessionKey, sessionID, segmentID, hash, score)
		rec := postJSON(t, router, "/api/verify-hash", map[string]any{
			"session_id":  sessionID,
			"segment_id":  segmentID,
			"hash":        hash,
			"signature":   sig,
			"trust_score": score,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		return decode(t, rec)
	}

	t.Run("walks the freeze and recovery scenario", func(t *testing.T) {
		body := submit(1, "hash-1", 90)
		assert.Equal(t, true, body["valid"])
		assert.Equal(t, "active", body["sessionStatus"])
		assert.Equal(t, float64(1), body["totalSegments"])

		body = submit(2, "hash-2", 20)
		assert.Equal(t, true, body["valid"])
		assert.Equal(t, "frozen", body["sessionStatus"])

		body = submit(3, "hash-3", 85)
		assert.Equal(t, true, body["valid"])
		assert.Equal(t, "active", body["sessionStatus"])
	})

	t.Run("rejects forged signatures", func(t *testing.T) {
		rec := postJSON(t, router, "/api/verify-hash", map[string]any{
			"session_id":  sessionID,
			"segment_id":  4,
			"hash":        "hash-4",
			"signature":   "forged",
			"trust_score": 90,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, false, body["valid"])
		assert.Equal(t, "frozen", body["sessionStatus"])
		assert.Equal(t, "reauth_required", body["action"])
	})

	t.Run("unknown session returns 404", func(t *testing.T) {
		rec := postJSON(t, router, "/api/verify-hash", map[string]any{
			"session_id":  "ffffffffffffffffffffffffffffffff",
			"segment_id":  1,
			"hash":        "hash",
			"signature":   "sig",
			"trust_score": 90,
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("validates the payload", func(t *testing.T) {
		rec := postJSON(t, router, "/api/verify-hash", map[string]any{
			"session_id":  sessionID,
			"segment_id":  0,
			"hash":        "h",
			"trust_score": 90,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = postJSON(t, router, "/api/verify-hash", map[string]any{
			"session_id":  sessionID,
			"segment_id":  1,
			"hash":        "h",
			"trust_score": 101,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSecurityReportEndpoint(t *testing.T) {
	router := newTestRouter()

	rec := postJSON(t, router, "/api/session/init", map[string]any{
		"email": "user@example.com",
	})
	init := decode(t, rec)
	sessionID := init["sessionId"].(string)

	t.Run("returns the report", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/session/"+sessionID+"/security-report", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode(t, rec)
		assert.Equal(t, sessionID, body["sessionId"])
		assert.Equal(t, "active", body["status"])
	})

	t.Run("unknown session returns 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/session/ffffffffffffffffffffffffffffffff/security-report", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
