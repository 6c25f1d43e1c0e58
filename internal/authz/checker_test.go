package authz

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/shared"
)

func TestCheckEmptyStore(t *testing.T) {
	store := NewMemoryStore()
	checker := NewChecker(store, store, nil)

	ok, err := checker.Check(context.Background(), UserSubject("u1"), RelationViewer, Object{Type: ObjectSecret, ID: "s1"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckDirectGrantAndRevokeRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	checker := NewChecker(store, store, nil)
	ctx := context.Background()

	tuple := Tuple{Subject: UserSubject("u1"), Relation: RelationEditor, Object: Object{Type: ObjectProject, ID: "p1"}}
	require.NoError(t, checker.Grant(ctx, tuple))

	ok, err := checker.Check(ctx, tuple.Subject, tuple.Relation, tuple.Object)
	require.NoError(t, err)
	require.True(t, ok)

	// Unrelated relation on the same object stays denied.
	ok, err = checker.Check(ctx, tuple.Subject, RelationOwner, tuple.Object)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, checker.Revoke(ctx, tuple))
	ok, err = checker.Check(ctx, tuple.Subject, tuple.Relation, tuple.Object)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckTeamIndirection(t *testing.T) {
	store := NewMemoryStore()
	checker := NewChecker(store, store, nil)
	ctx := context.Background()

	object := Object{Type: ObjectEnvironment, ID: "env1"}
	teamTuple := Tuple{Subject: TeamSubject("g1"), Relation: RelationViewer, Object: object}
	require.NoError(t, checker.Grant(ctx, teamTuple))
	require.NoError(t, store.AddMember(ctx, "g1", "u1"))

	ok, err := checker.Check(ctx, UserSubject("u1"), RelationViewer, object)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.RemoveMember(ctx, "g1", "u1"))
	ok, err = checker.Check(ctx, UserSubject("u1"), RelationViewer, object)
	require.NoError(t, err)
	require.False(t, ok)

	// The team's own grant is untouched by the membership change.
	ok, err = checker.Check(ctx, TeamSubject("g1"), RelationViewer, object)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGrantIdempotent(t *testing.T) {
	store := NewMemoryStore()
	checker := NewChecker(store, store, nil)
	ctx := context.Background()

	tuple := Tuple{Subject: UserSubject("u1"), Relation: RelationOwner, Object: Object{Type: ObjectGPGKey, ID: "k1"}}
	require.NoError(t, checker.Grant(ctx, tuple))
	require.NoError(t, checker.Grant(ctx, tuple))

	tuples, err := store.BySubject(ctx, tuple.Subject)
	require.NoError(t, err)
	require.Len(t, tuples, 1)

	// A single revoke undoes the double grant entirely.
	require.NoError(t, checker.Revoke(ctx, tuple))
	ok, err := checker.Check(ctx, tuple.Subject, tuple.Relation, tuple.Object)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRevokeMissingTupleSucceeds(t *testing.T) {
	store := NewMemoryStore()
	checker := NewChecker(store, store, nil)

	tuple := Tuple{Subject: UserSubject("u1"), Relation: RelationViewer, Object: Object{Type: ObjectSecret, ID: "absent"}}
	require.NoError(t, checker.Revoke(context.Background(), tuple))
}

func TestCheckInvalidInput(t *testing.T) {
	store := NewMemoryStore()
	checker := NewChecker(store, store, nil)
	ctx := context.Background()

	_, err := checker.Check(ctx, Subject{Type: "robot", ID: "r1"}, RelationViewer, Object{Type: ObjectSecret, ID: "s1"})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = checker.Check(ctx, UserSubject(""), RelationViewer, Object{Type: ObjectSecret, ID: "s1"})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = checker.Check(ctx, UserSubject("u1"), Relation("fly"), Object{Type: ObjectSecret, ID: "s1"})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

type countingTupleStore struct {
	*MemoryStore
	existsCalls map[Subject]int
}

func (s *countingTupleStore) Exists(ctx context.Context, tuple Tuple) (bool, error) {
	s.existsCalls[tuple.Subject]++
	return s.MemoryStore.Exists(ctx, tuple)
}

type staticMemberships struct {
	teams map[string][]string
}

func (m staticMemberships) TeamsOf(ctx context.Context, userID string) ([]string, error) {
	return m.teams[userID], nil
}

func TestCheckVisitedSetPrunesRepeatedTeams(t *testing.T) {
	store := &countingTupleStore{MemoryStore: NewMemoryStore(), existsCalls: make(map[Subject]int)}
	memberships := staticMemberships{teams: map[string][]string{"u1": {"g1", "g1", "g1"}}}
	checker := NewChecker(store, memberships, nil)

	ok, err := checker.Check(context.Background(), UserSubject("u1"), RelationViewer, Object{Type: ObjectOrg, ID: "o1"})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, store.existsCalls[TeamSubject("g1")])
}

type failingTupleStore struct {
	*MemoryStore
}

func (s failingTupleStore) Exists(ctx context.Context, tuple Tuple) (bool, error) {
	return false, fmt.Errorf("authz: exists: connection refused: %w", shared.ErrUnavailable)
}

func TestCheckSurfacesStoreFailure(t *testing.T) {
	store := failingTupleStore{MemoryStore: NewMemoryStore()}
	checker := NewChecker(store, store, nil)

	_, err := checker.Check(context.Background(), UserSubject("u1"), RelationViewer, Object{Type: ObjectSecret, ID: "s1"})
	require.Error(t, err)
	require.True(t, errors.Is(err, shared.ErrUnavailable))
	require.True(t, shared.Retryable(err))
}

func TestRevokeAllClearsObjectGrants(t *testing.T) {
	store := NewMemoryStore()
	checker := NewChecker(store, store, nil)
	ctx := context.Background()

	object := Object{Type: ObjectGPGKey, ID: "k1"}
	first := Tuple{Subject: UserSubject("u1"), Relation: RelationOwner, Object: object}
	second := Tuple{Subject: TeamSubject("g1"), Relation: RelationViewer, Object: object}
	require.NoError(t, checker.Grant(ctx, first))
	require.NoError(t, checker.Grant(ctx, second))

	removed, err := checker.RevokeAll(ctx, object)
	require.NoError(t, err)
	require.Len(t, removed, 2)

	ok, err := checker.Check(ctx, first.Subject, first.Relation, object)
	require.NoError(t, err)
	require.False(t, ok)
}
