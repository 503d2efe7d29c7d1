package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// HashChainEntry is one accepted segment hash in a session's audit trail.
// Entries are appended in arrival order and never rewritten.
type HashChainEntry struct {
	SegmentID int       `json:"segmentId"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
}

type AnomalyEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	Description  string    `json:"description"`
	SegmentCount int       `json:"segmentCount"`
}

type HashChain []HashChainEntry

type AnomalyLog []AnomalyEntry

// Session is the persisted record for one verification session.
// Mutation goes exclusively through service.SessionService.
type Session struct {
	SessionID      string        `db:"session_id" json:"sessionId"`
	Email          string        `db:"email" json:"email"`
	WebAuthnID     string        `db:"webauthn_id" json:"webauthnId"`
	SessionKey     string        `db:"session_key" json:"-"`
	Status         SessionStatus `db:"status" json:"status"`
	FreezeReason   *string       `db:"freeze_reason" json:"freezeReason,omitempty"`
	FreezeHard     bool          `db:"freeze_hard" json:"-"`
	LastTrustScore int           `db:"last_trust_score" json:"lastTrustScore"`
	SegmentCount   int           `db:"segment_count" json:"segmentCount"`
	HashChain      HashChain     `db:"hash_chain" json:"hashChain"`
	AnomalyLog     AnomalyLog    `db:"anomaly_log" json:"anomalyLog"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	LastActivity   time.Time     `db:"last_activity" json:"lastActivity"`
}

type CreateSessionParams struct {
	SessionID  string
	Email      string
	WebAuthnID string
	SessionKey string
}

func (c HashChain) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *HashChain) Scan(src any) error {
	return scanJSON(src, c)
}

func (l AnomalyLog) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *AnomalyLog) Scan(src any) error {
	return scanJSON(src, l)
}

func scanJSON(src, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported scan type %T", src)
	}
}
