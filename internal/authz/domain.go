package authz

import (
	"fmt"

	"github.com/keyfold/keyfold/internal/shared"
)

// SubjectType identifies the kind of actor a tuple grants to.
type SubjectType string

const (
	// SubjectUser is an individual user.
	SubjectUser SubjectType = "user"
	// SubjectTeam is a team whose members inherit the grant.
	SubjectTeam SubjectType = "team"
)

// ObjectType identifies the kind of resource a tuple grants on.
type ObjectType string

const (
	// ObjectOrg is an organization.
	ObjectOrg ObjectType = "org"
	// ObjectProject is a project within an org.
	ObjectProject ObjectType = "project"
	// ObjectEnvironment is an environment within a project.
	ObjectEnvironment ObjectType = "environment"
	// ObjectSecret is a single secret.
	ObjectSecret ObjectType = "secret"
	// ObjectGPGKey is a GPG key pair.
	ObjectGPGKey ObjectType = "gpg_key"
)

// Relation names what a subject may do with an object.
type Relation string

const (
	// RelationOwner grants full control including deletion.
	RelationOwner Relation = "owner"
	// RelationAdmin grants management of members and settings.
	RelationAdmin Relation = "admin"
	// RelationEditor grants write access.
	RelationEditor Relation = "editor"
	// RelationViewer grants read access.
	RelationViewer Relation = "viewer"
	// RelationMember grants baseline org membership.
	RelationMember Relation = "member"
)

// ParseSubjectType validates a raw subject type string.
func ParseSubjectType(raw string) (SubjectType, error) {
	switch SubjectType(raw) {
	case SubjectUser, SubjectTeam:
		return SubjectType(raw), nil
	}
	return "", fmt.Errorf("authz: subject type %q: %w", raw, shared.ErrInvalidArgument)
}

// ParseObjectType validates a raw object type string.
func ParseObjectType(raw string) (ObjectType, error) {
	switch ObjectType(raw) {
	case ObjectOrg, ObjectProject, ObjectEnvironment, ObjectSecret, ObjectGPGKey:
		return ObjectType(raw), nil
	}
	return "", fmt.Errorf("authz: object type %q: %w", raw, shared.ErrInvalidArgument)
}

// ParseRelation validates a raw relation string.
func ParseRelation(raw string) (Relation, error) {
	switch Relation(raw) {
	case RelationOwner, RelationAdmin, RelationEditor, RelationViewer, RelationMember:
		return Relation(raw), nil
	}
	return "", fmt.Errorf("authz: relation %q: %w", raw, shared.ErrInvalidArgument)
}

// Subject is the actor side of a tuple.
type Subject struct {
	Type SubjectType
	ID   string
}

// UserSubject builds a user subject.
func UserSubject(id string) Subject {
	return Subject{Type: SubjectUser, ID: id}
}

// TeamSubject builds a team subject.
func TeamSubject(id string) Subject {
	return Subject{Type: SubjectTeam, ID: id}
}

// Object is the resource side of a tuple.
type Object struct {
	Type ObjectType
	ID   string
}

// Tuple is a single relationship fact: subject holds relation on object.
// Tuples are unique per full key; granting an existing tuple is a no-op.
type Tuple struct {
	Subject  Subject
	Relation Relation
	Object   Object
}

// Validate checks the tuple's enums and ids.
func (t Tuple) Validate() error {
	if _, err := ParseSubjectType(string(t.Subject.Type)); err != nil {
		return err
	}
	if _, err := ParseObjectType(string(t.Object.Type)); err != nil {
		return err
	}
	if _, err := ParseRelation(string(t.Relation)); err != nil {
		return err
	}
	if t.Subject.ID == "" {
		return fmt.Errorf("authz: subject id required: %w", shared.ErrInvalidArgument)
	}
	if t.Object.ID == "" {
		return fmt.Errorf("authz: object id required: %w", shared.ErrInvalidArgument)
	}
	return nil
}

// Membership links a user to a team. It only widens tuple expansion; a
// membership never carries a relation by itself.
type Membership struct {
	TeamID string
	UserID string
}
