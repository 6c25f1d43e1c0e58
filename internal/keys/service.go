package keys

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keyfold/keyfold/internal/audit"
	"github.com/keyfold/keyfold/internal/authz"
	"github.com/keyfold/keyfold/internal/saga"
	"github.com/keyfold/keyfold/internal/shared"
	"github.com/keyfold/keyfold/internal/webhook"
)

// TupleManager is the slice of the authorization checker the key service
// mutates through.
type TupleManager interface {
	Grant(ctx context.Context, tuple authz.Tuple) error
	Revoke(ctx context.Context, tuple authz.Tuple) error
	RevokeAll(ctx context.Context, object authz.Object) ([]authz.Tuple, error)
}

// Service owns the GPG key lifecycle. Every mutation spans the key store,
// the tuple store and the audit log, so each one runs as a saga.
type Service struct {
	repo     RepositoryPort
	tuples   TupleManager
	audit    audit.Notifier
	webhooks webhook.Dispatcher
	sagas    *saga.Orchestrator
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewService constructs the key service.
func NewService(repo RepositoryPort, tuples TupleManager, notifier audit.Notifier, webhooks webhook.Dispatcher, sagas *saga.Orchestrator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if webhooks == nil {
		webhooks = webhook.NopDispatcher{}
	}
	return &Service{
		repo:     repo,
		tuples:   tuples,
		audit:    notifier,
		webhooks: webhooks,
		sagas:    sagas,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Create provisions a key: insert the row, grant the creator an owner
// tuple, record the audit entry. Any failure unwinds the earlier writes
// and the original failure is what the caller sees.
func (s *Service) Create(ctx context.Context, actor shared.Claims, input CreateInput) (Key, error) {
	key := Key{
		ID:                  s.newID(),
		OrgID:               actor.OrgID,
		Name:                input.Name,
		Fingerprint:         input.Fingerprint,
		PublicKey:           input.PublicKey,
		EncryptedPrivateKey: input.EncryptedPrivateKey,
		CreatedBy:           actor.UserID,
		CreatedAt:           s.now(),
	}
	ownerTuple := authz.Tuple{
		Subject:  authz.UserSubject(actor.UserID),
		Relation: authz.RelationOwner,
		Object:   authz.Object{Type: authz.ObjectGPGKey, ID: key.ID},
	}

	steps := []saga.Step{
		{
			Name: "insert_key",
			Run: func(ctx context.Context, sc saga.Context) error {
				if err := s.repo.Insert(ctx, key); err != nil {
					return err
				}
				sc["key_id"] = key.ID
				return nil
			},
			Compensate: func(ctx context.Context, sc saga.Context) error {
				return s.repo.Delete(ctx, key.ID)
			},
		},
		{
			Name: "grant_owner",
			Run: func(ctx context.Context, sc saga.Context) error {
				return s.tuples.Grant(ctx, ownerTuple)
			},
			Compensate: func(ctx context.Context, sc saga.Context) error {
				return s.tuples.Revoke(ctx, ownerTuple)
			},
		},
		{
			Name: "audit_entry",
			Run: func(ctx context.Context, sc saga.Context) error {
				return s.audit.Record(ctx, audit.Entry{
					Action:  "gpg_key.create",
					ActorID: actor.UserID,
					OrgID:   actor.OrgID,
					Message: "created GPG key " + key.Name,
					Details: map[string]any{"key_id": key.ID, "fingerprint": key.Fingerprint},
					At:      s.now(),
				})
			},
		},
	}

	if err := s.sagas.Execute(ctx, "gpg_key.create", nil, steps); err != nil {
		return Key{}, err
	}
	s.notify(ctx, "gpg_key.created", actor, key)
	return key, nil
}

// Delete removes a key, revokes every tuple granted on it and records the
// deletion. Compensation restores both the row and the revoked tuples.
func (s *Service) Delete(ctx context.Context, actor shared.Claims, keyID string) error {
	key, err := s.repo.Get(ctx, keyID)
	if err != nil {
		return err
	}
	object := authz.Object{Type: authz.ObjectGPGKey, ID: key.ID}

	var revoked []authz.Tuple
	steps := []saga.Step{
		{
			Name: "delete_key",
			Run: func(ctx context.Context, sc saga.Context) error {
				return s.repo.Delete(ctx, key.ID)
			},
			Compensate: func(ctx context.Context, sc saga.Context) error {
				return s.repo.Restore(ctx, key)
			},
		},
		{
			Name: "revoke_tuples",
			Run: func(ctx context.Context, sc saga.Context) error {
				var err error
				revoked, err = s.tuples.RevokeAll(ctx, object)
				return err
			},
			Compensate: func(ctx context.Context, sc saga.Context) error {
				for _, tuple := range revoked {
					if err := s.tuples.Grant(ctx, tuple); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Name: "audit_entry",
			Run: func(ctx context.Context, sc saga.Context) error {
				return s.audit.Record(ctx, audit.Entry{
					Action:  "gpg_key.delete",
					ActorID: actor.UserID,
					OrgID:   actor.OrgID,
					Message: "deleted GPG key " + key.Name,
					Details: map[string]any{"key_id": key.ID},
					At:      s.now(),
				})
			},
		},
	}

	if err := s.sagas.Execute(ctx, "gpg_key.delete", nil, steps); err != nil {
		return err
	}
	s.notify(ctx, "gpg_key.deleted", actor, key)
	return nil
}

// List returns the org's keys.
func (s *Service) List(ctx context.Context, orgID string) ([]Key, error) {
	return s.repo.ListByOrg(ctx, orgID)
}

// Get fetches a single key.
func (s *Service) Get(ctx context.Context, id string) (Key, error) {
	return s.repo.Get(ctx, id)
}

// notify is fire-and-forget: the operation already committed, a delivery
// problem is an operator signal only.
func (s *Service) notify(ctx context.Context, eventType string, actor shared.Claims, key Key) {
	err := s.webhooks.Notify(ctx, webhook.Event{
		Type:       eventType,
		OrgID:      key.OrgID,
		ActorID:    actor.UserID,
		ObjectType: string(authz.ObjectGPGKey),
		ObjectID:   key.ID,
		At:         s.now(),
	})
	if err != nil {
		s.logger.Warn("webhook notify", slog.String("event", eventType), slog.Any("error", err))
	}
}
