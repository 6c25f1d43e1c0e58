package rbac

import (
	"time"

	"github.com/keyfold/keyfold/internal/authz"
)

// Capability is a named boolean permission inside an org.
type Capability string

const (
	// CapSecretsRead allows reading secret values.
	CapSecretsRead Capability = "secrets.read"
	// CapSecretsWrite allows creating and updating secrets.
	CapSecretsWrite Capability = "secrets.write"
	// CapKeysManage allows creating and deleting GPG keys.
	CapKeysManage Capability = "keys.manage"
	// CapMembersManage allows inviting and removing org members.
	CapMembersManage Capability = "members.manage"
	// CapWebhooksManage allows configuring webhooks.
	CapWebhooksManage Capability = "webhooks.manage"
	// CapAuditView allows reading the audit timeline.
	CapAuditView Capability = "audit.view"
)

// Capabilities lists every known capability.
func Capabilities() []Capability {
	return []Capability{
		CapSecretsRead,
		CapSecretsWrite,
		CapKeysManage,
		CapMembersManage,
		CapWebhooksManage,
		CapAuditView,
	}
}

// Role is a named set of capability flags, unique per org by name. Each org
// membership carries exactly one role.
type Role struct {
	ID           string
	OrgID        string
	Name         string
	Capabilities map[Capability]bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EffectivePermissions is the flattened snapshot of what a (user, org) pair
// may do, combining the membership role with org-scoped tuple grants. It is
// always replaced wholesale, never patched in place.
type EffectivePermissions struct {
	Capabilities map[Capability]bool `json:"capabilities"`
	ComputedAt   time.Time           `json:"computed_at"`
}

// Has reports whether the snapshot grants the capability.
func (p EffectivePermissions) Has(cap Capability) bool {
	return p.Capabilities[cap]
}

// relationGrants maps an org-scoped tuple relation to the capabilities it
// implies. OR semantics: a capability is on if the role grants it or any
// tuple relation implies it.
var relationGrants = map[authz.Relation][]Capability{
	authz.RelationOwner:  Capabilities(),
	authz.RelationAdmin:  {CapSecretsRead, CapSecretsWrite, CapKeysManage, CapMembersManage, CapWebhooksManage, CapAuditView},
	authz.RelationEditor: {CapSecretsRead, CapSecretsWrite, CapKeysManage},
	authz.RelationViewer: {CapSecretsRead},
	authz.RelationMember: {CapSecretsRead},
}
