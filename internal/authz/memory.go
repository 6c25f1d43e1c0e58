package authz

import (
	"context"
	"sync"
)

// MemoryStore is an in-process TupleStore and MembershipStore. It backs
// tests and single-node development setups; production deployments use the
// PostgreSQL Store.
type MemoryStore struct {
	mu      sync.RWMutex
	tuples  map[Tuple]struct{}
	members map[Membership]struct{}
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tuples:  make(map[Tuple]struct{}),
		members: make(map[Membership]struct{}),
	}
}

// Exists reports whether the exact tuple is present.
func (s *MemoryStore) Exists(ctx context.Context, tuple Tuple) (bool, error) {
	if err := tuple.Validate(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tuples[tuple]
	return ok, nil
}

// BySubject returns every tuple held by the subject.
func (s *MemoryStore) BySubject(ctx context.Context, subject Subject) ([]Tuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Tuple
	for t := range s.tuples {
		if t.Subject == subject {
			out = append(out, t)
		}
	}
	return out, nil
}

// ByObject returns every tuple granted on the object.
func (s *MemoryStore) ByObject(ctx context.Context, object Object) ([]Tuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Tuple
	for t := range s.tuples {
		if t.Object == object {
			out = append(out, t)
		}
	}
	return out, nil
}

// Insert writes the tuple; duplicates are a no-op.
func (s *MemoryStore) Insert(ctx context.Context, tuple Tuple) error {
	if err := tuple.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tuples[tuple] = struct{}{}
	return nil
}

// Delete removes the tuple; a missing tuple is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, tuple Tuple) error {
	if err := tuple.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tuples, tuple)
	return nil
}

// TeamsOf returns ids of teams the user belongs to.
func (s *MemoryStore) TeamsOf(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var teams []string
	for m := range s.members {
		if m.UserID == userID {
			teams = append(teams, m.TeamID)
		}
	}
	return teams, nil
}

// AddMember records a team membership; duplicates are a no-op.
func (s *MemoryStore) AddMember(ctx context.Context, teamID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[Membership{TeamID: teamID, UserID: userID}] = struct{}{}
	return nil
}

// RemoveMember deletes a team membership; a missing pair is a no-op.
func (s *MemoryStore) RemoveMember(ctx context.Context, teamID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, Membership{TeamID: teamID, UserID: userID})
	return nil
}
