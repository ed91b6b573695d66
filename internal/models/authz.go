package models

import "time"

// Role is the global user classification. Roles form a strict hierarchy:
// administrator > supervisor > doctor > user.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleSupervisor    Role = "supervisor"
	RoleDoctor        Role = "doctor"
	RoleUser          Role = "user"
)

// TeamRole is the authority a user holds within one team, distinct from the
// global Role. Ordered owner > admin > member.
type TeamRole string

const (
	TeamRoleOwner  TeamRole = "owner"
	TeamRoleAdmin  TeamRole = "admin"
	TeamRoleMember TeamRole = "member"
)

// TeamKind distinguishes per-facility teams from the single global-admin team.
type TeamKind string

const (
	TeamKindFacility    TeamKind = "facility"
	TeamKindGlobalAdmin TeamKind = "global_admin"
)

// RuleScope controls whether a permission applies everywhere or only within
// the caller's own facility.
type RuleScope string

const (
	ScopeFacilityOnly  RuleScope = "facility_only"
	ScopeAllFacilities RuleScope = "all_facilities"
)

// Team is the authorization grouping corresponding 1:1 to a facility, or the
// distinguished global-admin grouping (which carries no facility id).
type Team struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Kind         TeamKind   `json:"kind"`
	FacilityID   string     `json:"facilityId,omitempty"`
	DefaultRoles []TeamRole `json:"defaultRoles"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Membership is the (team, user, team-role) association. A user holds at most
// one membership per team. FacilityID is denormalized from the team so that
// membership listings can be scoped without a team lookup per row.
type Membership struct {
	TeamID     string    `json:"teamId"`
	UserID     string    `json:"userId"`
	Role       TeamRole  `json:"role"`
	FacilityID string    `json:"facilityId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UserProfile is the identity record held by the external directory. The
// legacy fields carry pre-team facility associations consumed only by the
// migration utility.
type UserProfile struct {
	ID                string   `json:"id"`
	Email             string   `json:"email"`
	FullName          string   `json:"fullName"`
	Role              Role     `json:"role"`
	Status            string   `json:"status"`
	LegacyFacilityIDs []string `json:"legacyFacilityIds,omitempty"`
}

// TeamSummary is one entry of a user's resolved team list.
type TeamSummary struct {
	TeamID            string     `json:"teamId"`
	FacilityID        string     `json:"facilityId,omitempty"`
	Roles             []TeamRole `json:"roles"`
	IsFacilityTeam    bool       `json:"isFacilityTeam"`
	IsGlobalAdminTeam bool       `json:"isGlobalAdminTeam"`
}

// TeamMember is one entry of a facility team's member list. PrimaryRole is the
// highest team-role the member holds in that team.
type TeamMember struct {
	UserID      string   `json:"userId"`
	PrimaryRole TeamRole `json:"primaryRole"`
	Email       string   `json:"email,omitempty"`
	FullName    string   `json:"fullName,omitempty"`
}

// UserContext is the derived per-user view the evaluator works from. It is
// built on demand from the directory and cached with a TTL; it is never
// persisted.
type UserContext struct {
	UserID          string        `json:"userId"`
	Roles           []Role        `json:"roles"`
	FacilityID      string        `json:"facilityId,omitempty"`
	TeamMemberships []TeamSummary `json:"teamMemberships"`
	IsGlobalAdmin   bool          `json:"isGlobalAdmin"`
	ResolvedAt      time.Time     `json:"resolvedAt"`
}

// FacilityMembership returns the user's team summary for the given facility,
// or nil if the user holds no membership there.
func (u *UserContext) FacilityMembership(facilityID string) *TeamSummary {
	for i := range u.TeamMemberships {
		m := &u.TeamMemberships[i]
		if m.IsFacilityTeam && m.FacilityID == facilityID {
			return m
		}
	}
	return nil
}

// Decision is the structured allow/deny result returned by the evaluator.
// Error is set only when evaluation itself failed; such decisions are always
// denials (fail-closed).
type Decision struct {
	Allowed bool                   `json:"allowed"`
	Reason  string                 `json:"reason,omitempty"`
	Scope   RuleScope              `json:"scope,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// PermissionRule is one entry of the permission matrix. RoleScopes records the
// per-role scope from the configuration documents; Scope is the conservative
// aggregate (all_facilities only when every allowed role has it).
type PermissionRule struct {
	Resource     string             `json:"resource"`
	Operation    string             `json:"operation"`
	AllowedRoles []Role             `json:"allowedRoles"`
	Scope        RuleScope          `json:"scope"`
	RoleScopes   map[Role]RuleScope `json:"roleScopes,omitempty"`
}

// ScopeFor returns the scope applying to a specific allowed role.
func (r *PermissionRule) ScopeFor(role Role) RuleScope {
	if s, ok := r.RoleScopes[role]; ok {
		return s
	}
	return r.Scope
}

// AllowsRole reports whether the rule admits the given role.
func (r *PermissionRule) AllowsRole(role Role) bool {
	for _, allowed := range r.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}

// AssignmentResult reports the outcome of a single team assignment.
// Updated=false with Success=true means the call was an idempotent no-op.
type AssignmentResult struct {
	Success bool   `json:"success"`
	Created bool   `json:"created"`
	Updated bool   `json:"updated"`
	Message string `json:"message,omitempty"`
}

// RemovalResult reports the outcome of a membership removal.
type RemovalResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// FacilityAssignment is the per-facility outcome within a batch assignment.
type FacilityAssignment struct {
	FacilityID string `json:"facilityId"`
	Success    bool   `json:"success"`
	Created    bool   `json:"created"`
	Error      string `json:"error,omitempty"`
}

// BatchAssignmentResult aggregates a multi-facility assignment. A failed
// limit pre-check yields no entries at all: the batch is atomic with respect
// to the team-count limit.
type BatchAssignmentResult struct {
	Success      bool                 `json:"success"`
	Results      []FacilityAssignment `json:"results"`
	SuccessCount int                  `json:"successCount"`
	ErrorCount   int                  `json:"errorCount"`
}

// EffectivePermissions is the resolved, role-and-scope-filtered subset of the
// permission matrix for a specific user and facility.
type EffectivePermissions struct {
	Success     bool                `json:"success"`
	AccessType  string              `json:"accessType,omitempty"`
	TeamRole    TeamRole            `json:"teamRole,omitempty"`
	Permissions map[string][]string `json:"permissions,omitempty"`
	Reason      string              `json:"reason,omitempty"`
}

// ResourceValidation is the result of validating access to a concrete
// resource document.
type ResourceValidation struct {
	Valid   bool                   `json:"valid"`
	Reason  string                 `json:"reason,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// AuditRecord is emitted for permission checks and membership mutations.
// Storage is delegated to the external document store.
type AuditRecord struct {
	UserID        string    `json:"userId"`
	Role          Role      `json:"role,omitempty"`
	Resource      string    `json:"resource"`
	DocumentID    string    `json:"documentId,omitempty"`
	Operation     string    `json:"operation"`
	Granted       bool      `json:"granted"`
	Timestamp     time.Time `json:"timestamp"`
	Reason        string    `json:"reason,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Source        string    `json:"source,omitempty"`
}
