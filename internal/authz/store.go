package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keyfold/keyfold/internal/shared"
)

// TupleStore provides durable relation facts. Insert and Delete are
// idempotent: inserting an existing tuple and deleting a missing one both
// succeed. Uniqueness of the full tuple key is the store's responsibility,
// which keeps concurrent grants on the same key linearizable without any
// in-process locking.
type TupleStore interface {
	Exists(ctx context.Context, tuple Tuple) (bool, error)
	BySubject(ctx context.Context, subject Subject) ([]Tuple, error)
	ByObject(ctx context.Context, object Object) ([]Tuple, error)
	Insert(ctx context.Context, tuple Tuple) error
	Delete(ctx context.Context, tuple Tuple) error
}

// MembershipStore expands team indirection.
type MembershipStore interface {
	TeamsOf(ctx context.Context, userID string) ([]string, error)
}

const uniqueViolation = "23505"

// Store is the PostgreSQL-backed tuple and membership store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Exists reports whether the exact tuple is present.
func (s *Store) Exists(ctx context.Context, tuple Tuple) (bool, error) {
	if err := tuple.Validate(); err != nil {
		return false, err
	}
	var found bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM relation_tuples
WHERE subject_type=$1 AND subject_id=$2 AND relation=$3 AND object_type=$4 AND object_id=$5)`,
		tuple.Subject.Type, tuple.Subject.ID, tuple.Relation, tuple.Object.Type, tuple.Object.ID).Scan(&found)
	if err != nil {
		return false, unavailable("exists", err)
	}
	return found, nil
}

// BySubject returns every tuple held by the subject.
func (s *Store) BySubject(ctx context.Context, subject Subject) ([]Tuple, error) {
	rows, err := s.pool.Query(ctx, `SELECT subject_type, subject_id, relation, object_type, object_id
FROM relation_tuples WHERE subject_type=$1 AND subject_id=$2`, subject.Type, subject.ID)
	if err != nil {
		return nil, unavailable("by subject", err)
	}
	return scanTuples(rows)
}

// ByObject returns every tuple granted on the object.
func (s *Store) ByObject(ctx context.Context, object Object) ([]Tuple, error) {
	rows, err := s.pool.Query(ctx, `SELECT subject_type, subject_id, relation, object_type, object_id
FROM relation_tuples WHERE object_type=$1 AND object_id=$2`, object.Type, object.ID)
	if err != nil {
		return nil, unavailable("by object", err)
	}
	return scanTuples(rows)
}

// Insert writes the tuple. A duplicate key is treated as success.
func (s *Store) Insert(ctx context.Context, tuple Tuple) error {
	if err := tuple.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO relation_tuples (subject_type, subject_id, relation, object_type, object_id)
VALUES ($1, $2, $3, $4, $5)`,
		tuple.Subject.Type, tuple.Subject.ID, tuple.Relation, tuple.Object.Type, tuple.Object.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil
		}
		return unavailable("insert", err)
	}
	return nil
}

// Delete removes the tuple. A missing tuple is treated as success.
func (s *Store) Delete(ctx context.Context, tuple Tuple) error {
	if err := tuple.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM relation_tuples
WHERE subject_type=$1 AND subject_id=$2 AND relation=$3 AND object_type=$4 AND object_id=$5`,
		tuple.Subject.Type, tuple.Subject.ID, tuple.Relation, tuple.Object.Type, tuple.Object.ID)
	if err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// TeamsOf returns ids of teams the user belongs to.
func (s *Store) TeamsOf(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT team_id FROM team_memberships WHERE user_id=$1`, userID)
	if err != nil {
		return nil, unavailable("teams of", err)
	}
	defer rows.Close()
	var teams []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("teams of", err)
		}
		teams = append(teams, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("teams of", err)
	}
	return teams, nil
}

// AddMember records a team membership. Duplicate pairs are a no-op.
func (s *Store) AddMember(ctx context.Context, teamID, userID string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO team_memberships (team_id, user_id) VALUES ($1, $2)`, teamID, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil
		}
		return unavailable("add member", err)
	}
	return nil
}

// RemoveMember deletes a team membership. A missing pair is a no-op.
func (s *Store) RemoveMember(ctx context.Context, teamID, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM team_memberships WHERE team_id=$1 AND user_id=$2`, teamID, userID)
	if err != nil {
		return unavailable("remove member", err)
	}
	return nil
}

func scanTuples(rows pgx.Rows) ([]Tuple, error) {
	defer rows.Close()
	var tuples []Tuple
	for rows.Next() {
		var t Tuple
		if err := rows.Scan(&t.Subject.Type, &t.Subject.ID, &t.Relation, &t.Object.Type, &t.Object.ID); err != nil {
			return nil, unavailable("scan", err)
		}
		tuples = append(tuples, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("scan", err)
	}
	return tuples, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("authz: %s: %w: %w", op, err, shared.ErrUnavailable)
}
