// Package identity establishes who is calling. JWT verification lives in
// an upstream collaborator; this package consumes its output and provides
// a local verifier for machine service tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/keyfold/keyfold/internal/shared"
)

// ErrInvalidToken indicates an unknown, malformed or expired token.
var ErrInvalidToken = errors.New("identity: invalid token")

// Verifier turns a bearer token into verified claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (shared.Claims, error)
}

// TokenRecord is a stored service token. The secret is kept only as a
// bcrypt hash.
type TokenRecord struct {
	ID         string
	UserID     string
	OrgID      string
	SecretHash string
	ExpiresAt  time.Time
}

// TokenStore fetches token records by id.
type TokenStore interface {
	Get(ctx context.Context, id string) (TokenRecord, error)
}

// PGTokenStore reads service tokens from PostgreSQL.
type PGTokenStore struct {
	pool *pgxpool.Pool
}

// NewPGTokenStore constructs the store.
func NewPGTokenStore(pool *pgxpool.Pool) *PGTokenStore {
	return &PGTokenStore{pool: pool}
}

// Get fetches a token record.
func (s *PGTokenStore) Get(ctx context.Context, id string) (TokenRecord, error) {
	var rec TokenRecord
	err := s.pool.QueryRow(ctx, `SELECT id, user_id, org_id, secret_hash, expires_at FROM service_tokens WHERE id=$1`, id).
		Scan(&rec.ID, &rec.UserID, &rec.OrgID, &rec.SecretHash, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenRecord{}, ErrInvalidToken
		}
		return TokenRecord{}, fmt.Errorf("identity: get token: %w: %w", err, shared.ErrUnavailable)
	}
	return rec, nil
}

// ServiceTokenVerifier validates tokens of the form "<id>.<secret>".
type ServiceTokenVerifier struct {
	store TokenStore
	now   func() time.Time
}

// NewServiceTokenVerifier constructs the verifier.
func NewServiceTokenVerifier(store TokenStore) *ServiceTokenVerifier {
	return &ServiceTokenVerifier{store: store, now: time.Now}
}

// Verify checks the secret against the stored hash and the expiry.
func (v *ServiceTokenVerifier) Verify(ctx context.Context, token string) (shared.Claims, error) {
	id, secret, ok := strings.Cut(token, ".")
	if !ok || id == "" || secret == "" {
		return shared.Claims{}, ErrInvalidToken
	}
	rec, err := v.store.Get(ctx, id)
	if err != nil {
		return shared.Claims{}, err
	}
	if !rec.ExpiresAt.IsZero() && v.now().After(rec.ExpiresAt) {
		return shared.Claims{}, ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.SecretHash), []byte(secret)); err != nil {
		return shared.Claims{}, ErrInvalidToken
	}
	return shared.Claims{UserID: rec.UserID, OrgID: rec.OrgID}, nil
}

// HashSecret produces the bcrypt hash stored for a new token.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
