package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ppah/verify-server-go/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, sessionID string) (*model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	Save(ctx context.Context, session *model.Session) error
	TerminateStale(ctx context.Context, inactiveSince time.Time) (int64, error)
	DeleteTerminated(ctx context.Context, olderThan time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, sessionID string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE session_id = $1
	`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (
			session_id, email, webauthn_id, session_key, status,
			last_trust_score, segment_count, hash_chain, anomaly_log
		)
		VALUES ($1, $2, $3, $4, 'active', 100, 0, '[]'::jsonb, '[]'::jsonb)
		RETURNING *
	`, params.SessionID, params.Email, params.WebAuthnID, params.SessionKey)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Save writes back every mutable field. The caller serializes saves per
// session id, so a full-row update never races with itself.
func (r *sessionRepo) Save(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = $2,
			freeze_reason = $3,
			freeze_hard = $4,
			last_trust_score = $5,
			segment_count = $6,
			hash_chain = $7,
			anomaly_log = $8,
			last_activity = $9
		WHERE session_id = $1
	`, session.SessionID, session.Status, session.FreezeReason, session.FreezeHard,
		session.LastTrustScore, session.SegmentCount, session.HashChain,
		session.AnomalyLog, session.LastActivity)
	return err
}

// TerminateStale applies the inactivity-timeout transition in bulk. This is
// the same state-machine edge the engine applies lazily on access; the job
// just reaps sessions nobody is touching anymore.
func (r *sessionRepo) TerminateStale(ctx context.Context, inactiveSince time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = 'terminated'
		WHERE status IN ('active', 'frozen') AND last_activity < $1
	`, inactiveSince)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) DeleteTerminated(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE status = 'terminated' AND last_activity < $1
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
