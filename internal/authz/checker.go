package authz

import (
	"context"
	"log/slog"
)

// maxCheckDepth bounds tuple traversal. Team membership is a single level
// of indirection (user -> team -> object); the visited set below guards
// termination even if nested team tuples ever appear in the store.
const maxCheckDepth = 2

// Checker answers whether a subject holds a relation on an object. Checks
// are pure reads, never retried, and safe for unbounded concurrency.
type Checker struct {
	tuples      TupleStore
	memberships MembershipStore
	logger      *slog.Logger
}

// NewChecker constructs a Checker over the given stores.
func NewChecker(tuples TupleStore, memberships MembershipStore, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{tuples: tuples, memberships: memberships, logger: logger}
}

type visitKey struct {
	subject Subject
	object  Object
}

// Check resolves direct and team-indirect grants. Any single granting path
// yields allow; there is no explicit-deny override.
func (c *Checker) Check(ctx context.Context, subject Subject, relation Relation, object Object) (bool, error) {
	tuple := Tuple{Subject: subject, Relation: relation, Object: object}
	if err := tuple.Validate(); err != nil {
		return false, err
	}
	visited := make(map[visitKey]struct{})
	return c.check(ctx, subject, relation, object, visited, 0)
}

func (c *Checker) check(ctx context.Context, subject Subject, relation Relation, object Object, visited map[visitKey]struct{}, depth int) (bool, error) {
	if depth > maxCheckDepth {
		return false, nil
	}
	key := visitKey{subject: subject, object: object}
	if _, seen := visited[key]; seen {
		return false, nil
	}
	visited[key] = struct{}{}

	ok, err := c.tuples.Exists(ctx, Tuple{Subject: subject, Relation: relation, Object: object})
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	if subject.Type != SubjectUser {
		return false, nil
	}

	teams, err := c.memberships.TeamsOf(ctx, subject.ID)
	if err != nil {
		return false, err
	}
	for _, teamID := range teams {
		granted, err := c.check(ctx, TeamSubject(teamID), relation, object, visited, depth+1)
		if err != nil {
			return false, err
		}
		if granted {
			return true, nil
		}
	}
	return false, nil
}

// Grant inserts the tuple. Granting an existing tuple succeeds without
// effect; uniqueness is enforced by the tuple store.
func (c *Checker) Grant(ctx context.Context, tuple Tuple) error {
	if err := tuple.Validate(); err != nil {
		return err
	}
	if err := c.tuples.Insert(ctx, tuple); err != nil {
		return err
	}
	c.logger.Debug("tuple granted",
		slog.String("subject", tuple.Subject.ID),
		slog.String("relation", string(tuple.Relation)),
		slog.String("object", tuple.Object.ID))
	return nil
}

// Revoke deletes the tuple. Revoking a missing tuple succeeds.
func (c *Checker) Revoke(ctx context.Context, tuple Tuple) error {
	if err := tuple.Validate(); err != nil {
		return err
	}
	if err := c.tuples.Delete(ctx, tuple); err != nil {
		return err
	}
	c.logger.Debug("tuple revoked",
		slog.String("subject", tuple.Subject.ID),
		slog.String("relation", string(tuple.Relation)),
		slog.String("object", tuple.Object.ID))
	return nil
}

// RevokeAll removes every tuple granted on the object, typically when the
// object itself is deleted.
func (c *Checker) RevokeAll(ctx context.Context, object Object) ([]Tuple, error) {
	tuples, err := c.tuples.ByObject(ctx, object)
	if err != nil {
		return nil, err
	}
	for _, t := range tuples {
		if err := c.tuples.Delete(ctx, t); err != nil {
			return nil, err
		}
	}
	return tuples, nil
}
