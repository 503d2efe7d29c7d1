package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ppah/verify-server-go/internal/audit"
	apperrors "github.com/ppah/verify-server-go/internal/errors"
	"github.com/ppah/verify-server-go/internal/integrity"
	"github.com/ppah/verify-server-go/internal/model"
	"github.com/ppah/verify-server-go/internal/repository"
	"github.com/ppah/verify-server-go/internal/util"
)

const (
	ActionReauthRequired = "reauth_required"

	freezeReasonSignature = "Packet signature verification failed - possible spoofing"
	freezeReasonSequence  = "Segment sequence break detected (gap > 1)"
)

type InitSessionResult struct {
	SessionID  string              `json:"sessionId"`
	SessionKey string              `json:"sessionKey"`
	Status     model.SessionStatus `json:"status"`
}

// Decision is the outcome of one segment report. Verification failures are
// recovered into this structure rather than raised; only storage failures
// surface as errors.
type Decision struct {
	Valid         bool                `json:"valid"`
	SegmentID     int                 `json:"segmentId"`
	Status        model.SessionStatus `json:"sessionStatus"`
	TotalSegments int                 `json:"totalSegments"`
	Reason        string              `json:"reason,omitempty"`
	Action        string              `json:"action,omitempty"`
}

type SecurityReport struct {
	SessionID       string              `json:"sessionId"`
	DurationSeconds float64             `json:"durationSeconds"`
	TotalSegments   int                 `json:"totalSegments"`
	Status          model.SessionStatus `json:"status"`
	FreezeReason    *string             `json:"freezeReason,omitempty"`
	LastTrustScore  int                 `json:"lastTrustScore"`
	Anomalies       model.AnomalyLog    `json:"anomalies"`
	SecurityLayers  map[string]any      `json:"securityLayers"`
}

// SessionService is the session integrity engine. It exclusively owns
// mutation of session records: load, verify, apply trust policy, persist.
// Work is serialized per session id; sessions never block each other.
type SessionService struct {
	sessionRepo    repository.SessionRepository
	credentialRepo repository.CredentialRepository
	locks          *keyedLocks
	sessionTimeout time.Duration
	encryptionKey  string
}

func NewSessionService(
	sessionRepo repository.SessionRepository,
	credentialRepo repository.CredentialRepository,
	sessionTimeout time.Duration,
	encryptionKey string,
) *SessionService {
	return &SessionService{
		sessionRepo:    sessionRepo,
		credentialRepo: credentialRepo,
		locks:          newKeyedLocks(),
		sessionTimeout: sessionTimeout,
		encryptionKey:  encryptionKey,
	}
}

// InitSession creates a session for an identity the credential collaborator
// has already proven. The session key is returned exactly once, here.
func (s *SessionService) InitSession(ctx context.Context, email, webauthnID string) (*InitSessionResult, error) {
	sessionID, err := util.GenerateSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	sessionKey, err := util.GenerateSessionKey()
	if err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}

	storedKey := sessionKey
	if s.encryptionKey != "" {
		storedKey, err = util.Encrypt(s.encryptionKey, sessionKey)
		if err != nil {
			return nil, fmt.Errorf("encrypt session key: %w", err)
		}
	}

	if err := s.ensureCredential(ctx, webauthnID, email); err != nil {
		log.Warn().Err(err).Str("email", email).Msg("failed to record credential reference")
	}

	session, err := s.sessionRepo.Create(ctx, model.CreateSessionParams{
		SessionID:  sessionID,
		Email:      email,
		WebAuthnID: webauthnID,
		SessionKey: storedKey,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	audit.Log(audit.Event{
		Type:      audit.EventSessionInit,
		SessionID: session.SessionID,
		Email:     email,
	})
	log.Info().Str("sessionId", shortID(sessionID)).Msg("session initialized")

	return &InitSessionResult{
		SessionID:  sessionID,
		SessionKey: sessionKey,
		Status:     session.Status,
	}, nil
}

// VerifyAndRecord processes one signed segment report: signature check,
// sequencing window, trust-score policy, persist. Every call updates
// last_activity and persists before returning.
func (s *SessionService) VerifyAndRecord(ctx context.Context, sessionID string, segmentID int, hash, signature string, trustScore int) (*Decision, error) {
	release := s.locks.Acquire(sessionID)
	defer release()

	session, err := s.loadLive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session.LastActivity = now

	sessionKey, err := s.sessionKey(session)
	if err != nil {
		return nil, err
	}

	if v := integrity.VerifySignature(sessionKey, session.SessionID, segmentID, hash, signature, trustScore); v != nil {
		s.logAnomaly(session, fmt.Sprintf("Invalid HMAC signature for segment %d", segmentID))
		s.freeze(session, freezeReasonSignature, true)
		audit.Log(audit.Event{
			Type:      audit.EventSignatureFailure,
			SessionID: session.SessionID,
			Details:   map[string]interface{}{"segment_id": segmentID, "detail": v.Detail},
		})
		if err := s.save(ctx, session); err != nil {
			return nil, err
		}
		return s.rejected(session, segmentID), nil
	}

	outcome, violation := integrity.CheckSequence(session.SegmentCount, segmentID)
	if violation != nil {
		s.logAnomaly(session, fmt.Sprintf("Non-sequential segment: %s", violation.Detail))
		s.freeze(session, freezeReasonSequence, true)
		audit.Log(audit.Event{
			Type:      audit.EventSequenceViolation,
			SessionID: session.SessionID,
			Details:   map[string]interface{}{"segment_id": segmentID, "detail": violation.Detail},
		})
		if err := s.save(ctx, session); err != nil {
			return nil, err
		}
		return s.rejected(session, segmentID), nil
	}

	switch outcome {
	case integrity.SequenceStaleIgnored:
		// Duplicate or late segment: idempotent no-op, only last_activity moves.
		if err := s.save(ctx, session); err != nil {
			return nil, err
		}
		return s.accepted(session, segmentID), nil

	case integrity.SequenceGapTolerated:
		s.logAnomaly(session, fmt.Sprintf("Packet loss detected (gap: %d missing)", session.SegmentCount+1))
	}

	session.HashChain = append(session.HashChain, model.HashChainEntry{
		SegmentID: segmentID,
		Hash:      hash,
		Timestamp: now,
	})
	session.SegmentCount = segmentID

	s.applyTrustScore(session, trustScore)

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}

	log.Debug().
		Str("sessionId", shortID(session.SessionID)).
		Int("segmentId", segmentID).
		Str("outcome", outcome.String()).
		Str("status", string(session.Status)).
		Msg("segment verified")

	return s.accepted(session, segmentID), nil
}

// Report returns the security report for a session. Timeout is evaluated
// lazily here too, so a stale session reads as terminated.
func (s *SessionService) Report(ctx context.Context, sessionID string) (*SecurityReport, error) {
	release := s.locks.Acquire(sessionID)
	defer release()

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}

	if session.Status != model.SessionStatusTerminated && s.timedOut(session) {
		s.terminate(ctx, session)
	}

	return &SecurityReport{
		SessionID:       session.SessionID,
		DurationSeconds: time.Since(session.CreatedAt).Seconds(),
		TotalSegments:   session.SegmentCount,
		Status:          session.Status,
		FreezeReason:    session.FreezeReason,
		LastTrustScore:  session.LastTrustScore,
		Anomalies:       session.AnomalyLog,
		SecurityLayers: map[string]any{
			"hashChain":     true,
			"packetSigning": true,
			"trustScoring":  true,
			"persistence":   "postgres",
		},
	}, nil
}

// loadLive loads a session and applies lazy termination. A terminated
// session reads as not found; the first access past the timeout gets the
// terminated error, everything after that behaves as if the session never
// existed.
func (s *SessionService) loadLive(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil || session.Status == model.SessionStatusTerminated {
		return nil, apperrors.NotFound("Session")
	}

	if s.timedOut(session) {
		s.terminate(ctx, session)
		return nil, apperrors.SessionTerminated()
	}

	return session, nil
}

func (s *SessionService) timedOut(session *model.Session) bool {
	return time.Since(session.LastActivity) > s.sessionTimeout
}

func (s *SessionService) terminate(ctx context.Context, session *model.Session) {
	session.Status = model.SessionStatusTerminated
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		log.Error().Err(err).Str("sessionId", shortID(session.SessionID)).Msg("failed to persist termination")
	}
	audit.Log(audit.Event{
		Type:      audit.EventSessionTerminated,
		SessionID: session.SessionID,
		Details:   map[string]interface{}{"reason": "inactivity timeout"},
	})
}

// applyTrustScore runs the score policy. Hard freezes are exempt: a session
// frozen on cryptographic or sequencing evidence stays frozen no matter how
// good later scores are.
func (s *SessionService) applyTrustScore(session *model.Session, score int) {
	session.LastTrustScore = score

	if session.FreezeHard {
		return
	}

	transition := integrity.ApplyTrustScore(session.Status, score)

	if transition.Status == model.SessionStatusFrozen && session.Status != model.SessionStatusFrozen {
		s.logAnomaly(session, transition.FreezeReason)
		s.freeze(session, transition.FreezeReason, false)
		return
	}

	if transition.Recovered {
		session.Status = model.SessionStatusActive
		session.FreezeReason = nil
		audit.Log(audit.Event{
			Type:      audit.EventSessionRecovered,
			SessionID: session.SessionID,
			Details:   map[string]interface{}{"trust_score": score},
		})
		log.Info().Str("sessionId", shortID(session.SessionID)).Int("trustScore", score).Msg("session recovered from score freeze")
		return
	}

	if transition.Status == model.SessionStatusFrozen {
		// Already frozen by score; refresh the reason with the latest value.
		reason := transition.FreezeReason
		if reason != "" {
			session.FreezeReason = &reason
		}
	}
}

func (s *SessionService) freeze(session *model.Session, reason string, hard bool) {
	session.Status = model.SessionStatusFrozen
	session.FreezeReason = &reason
	if hard {
		session.FreezeHard = true
	}
	audit.Log(audit.Event{
		Type:      audit.EventSessionFrozen,
		SessionID: session.SessionID,
		Details:   map[string]interface{}{"reason": reason, "hard": hard},
	})
	log.Warn().Str("sessionId", shortID(session.SessionID)).Str("reason", reason).Bool("hard", hard).Msg("session frozen")
}

func (s *SessionService) logAnomaly(session *model.Session, description string) {
	session.AnomalyLog = append(session.AnomalyLog, model.AnomalyEntry{
		Timestamp:    time.Now(),
		Description:  description,
		SegmentCount: session.SegmentCount,
	})
}

// save persists the record. Persistence failures surface to the caller:
// without durability the engine cannot assert success.
func (s *SessionService) save(ctx context.Context, session *model.Session) error {
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

func (s *SessionService) sessionKey(session *model.Session) (string, error) {
	if s.encryptionKey == "" {
		return session.SessionKey, nil
	}
	key, err := util.Decrypt(s.encryptionKey, session.SessionKey)
	if err != nil {
		return "", apperrors.Internal("failed to recover session key").WithCause(err)
	}
	return key, nil
}

func (s *SessionService) ensureCredential(ctx context.Context, credentialID, email string) error {
	if credentialID == "" {
		return nil
	}
	existing, err := s.credentialRepo.FindByID(ctx, credentialID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = s.credentialRepo.Upsert(ctx, model.CreateCredentialParams{
		ID:        credentialID,
		UserEmail: email,
	})
	return err
}

func (s *SessionService) accepted(session *model.Session, segmentID int) *Decision {
	return &Decision{
		Valid:         true,
		SegmentID:     segmentID,
		Status:        session.Status,
		TotalSegments: session.SegmentCount,
	}
}

func (s *SessionService) rejected(session *model.Session, segmentID int) *Decision {
	reason := ""
	if session.FreezeReason != nil {
		reason = *session.FreezeReason
	}
	return &Decision{
		Valid:         false,
		SegmentID:     segmentID,
		Status:        session.Status,
		TotalSegments: session.SegmentCount,
		Reason:        reason,
		Action:        ActionReauthRequired,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
