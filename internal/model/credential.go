package model

import "time"

// Credential is a WebAuthn credential record. Challenge-response verification
// happens in the client-facing enrollment flow; the engine only reads these
// to associate an already-proven identity with a new session.
type Credential struct {
	ID        string    `db:"id" json:"id"`
	UserEmail string    `db:"user_email" json:"userEmail"`
	PublicKey []byte    `db:"public_key" json:"-"`
	SignCount int64     `db:"sign_count" json:"signCount"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type CreateCredentialParams struct {
	ID        string
	UserEmail string
	PublicKey []byte
	SignCount int64
}
