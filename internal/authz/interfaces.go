package authz

import (
	"context"
	"time"

	"github.com/KenIjiwoye/immune-me-sub004/internal/models"
)

// DirectoryRepository is the boundary to the external identity/document
// store holding user records, teams, memberships, and audit documents. The
// engine consumes it; it never implements storage itself. Failures are
// tagged with numeric status codes via StatusError: 404 is "does not exist
// yet", everything else is an operational failure.
type DirectoryRepository interface {
	// User operations
	GetUser(ctx context.Context, userID string) (*models.UserProfile, error)
	ListUsers(ctx context.Context, filters UserFilters) ([]*models.UserProfile, error)

	// Team operations
	CreateTeam(ctx context.Context, team *models.Team) error
	GetTeam(ctx context.Context, teamID string) (*models.Team, error)
	GetTeamByName(ctx context.Context, name string) (*models.Team, error)
	ListTeams(ctx context.Context, filters TeamFilters) ([]*models.Team, error)

	// Membership operations
	CreateMembership(ctx context.Context, membership *models.Membership) error
	UpdateMembership(ctx context.Context, membership *models.Membership) error
	DeleteMembership(ctx context.Context, teamID, userID string) error
	ListUserMemberships(ctx context.Context, userID string) ([]*models.Membership, error)
	ListTeamMemberships(ctx context.Context, teamID string) ([]*models.Membership, error)

	// Audit logging (storage delegated to the document store)
	LogAuditRecord(ctx context.Context, record *models.AuditRecord) error
}

// UserFilters defines filters for directory user queries.
type UserFilters struct {
	Role                *models.Role
	Status              *string
	HasLegacyFacilities *bool
	Limit               int
	Offset              int
}

// TeamFilters defines filters for directory team queries.
type TeamFilters struct {
	Kind       *models.TeamKind
	FacilityID *string
	Limit      int
	Offset     int
}

// ConfigStore is the boundary to the external configuration store holding
// the permission matrix and related JSON documents, keyed by document name.
type ConfigStore interface {
	GetDocument(ctx context.Context, name string) ([]byte, error)
}

// CacheRepository defines the TTL caching operations used by the team
// manager and the evaluator. Entries are invalidated eagerly on any write
// affecting the same user, in addition to passive expiry.
type CacheRepository interface {
	// User context cache
	SetUserContext(ctx context.Context, uc *models.UserContext, ttl time.Duration) error
	GetUserContext(ctx context.Context, userID string) (*models.UserContext, error)
	InvalidateUserContext(ctx context.Context, userID string) error

	// User teams cache
	SetUserTeams(ctx context.Context, userID string, teams []models.TeamSummary, ttl time.Duration) error
	GetUserTeams(ctx context.Context, userID string) ([]models.TeamSummary, error)
	InvalidateUserTeams(ctx context.Context, userID string) error

	// Team-by-name cache
	SetTeam(ctx context.Context, team *models.Team, ttl time.Duration) error
	GetTeamByName(ctx context.Context, name string) (*models.Team, error)
	InvalidateTeam(ctx context.Context, name string) error

	// Decision cache, keyed (user, resource, operation, facility)
	SetDecision(ctx context.Context, userID, resource, operation, facilityID string, decision *models.Decision, ttl time.Duration) error
	GetDecision(ctx context.Context, userID, resource, operation, facilityID string) (*models.Decision, error)
	InvalidateUserDecisions(ctx context.Context, userID string) error
}
