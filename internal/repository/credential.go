package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ppah/verify-server-go/internal/model"
)

type CredentialRepository interface {
	FindByID(ctx context.Context, id string) (*model.Credential, error)
	FindByEmail(ctx context.Context, email string) ([]model.Credential, error)
	Upsert(ctx context.Context, params model.CreateCredentialParams) (*model.Credential, error)
	UpdateSignCount(ctx context.Context, id string, signCount int64) error
}

type credentialRepo struct {
	db sessionDB
}

func NewCredentialRepository(db *sqlx.DB) CredentialRepository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) FindByID(ctx context.Context, id string) (*model.Credential, error) {
	var cred model.Credential
	err := r.db.GetContext(ctx, &cred, `
		SELECT * FROM credentials WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepo) FindByEmail(ctx context.Context, email string) ([]model.Credential, error) {
	var creds []model.Credential
	err := r.db.SelectContext(ctx, &creds, `
		SELECT * FROM credentials WHERE user_email = $1 ORDER BY created_at
	`, email)
	if err != nil {
		return nil, err
	}
	return creds, nil
}

func (r *credentialRepo) Upsert(ctx context.Context, params model.CreateCredentialParams) (*model.Credential, error) {
	var cred model.Credential
	err := r.db.GetContext(ctx, &cred, `
		INSERT INTO credentials (id, user_email, public_key, sign_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			public_key = EXCLUDED.public_key,
			sign_count = EXCLUDED.sign_count
		RETURNING *
	`, params.ID, params.UserEmail, params.PublicKey, params.SignCount)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepo) UpdateSignCount(ctx context.Context, id string, signCount int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE credentials SET sign_count = $2 WHERE id = $1
	`, id, signCount)
	return err
}
