package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/KenIjiwoye/immune-me-sub004/internal/models"
	"github.com/KenIjiwoye/immune-me-sub004/internal/monitoring"
	"github.com/KenIjiwoye/immune-me-sub004/pkg/logger"
)

// Team management operations recognized by CheckTeamManagementPermission.
const (
	TeamOpAddMember        = "addMember"
	TeamOpRemoveMember     = "removeMember"
	TeamOpUpdateMemberRole = "updateMemberRole"
)

// RequestContext carries the optional request-scoped inputs of a permission
// check: the facility the operation targets, the concrete document, and for
// team-management checks the affected user and role. When FacilityID is empty
// the evaluator falls back to the facilityId embedded in ResourceData, so a
// caller already holding the document does not need a second lookup.
type RequestContext struct {
	FacilityID   string
	DocumentID   string
	TargetUserID string
	NewRole      models.TeamRole
	ResourceData map[string]interface{}
}

// Evaluator answers permission questions from the permission matrix, the
// caller's team memberships, and facility scoping rules. It is fail-closed:
// CheckPermission never returns an error and never panics outward; any
// internal failure yields a denial carrying the failure in Decision.Error.
type Evaluator struct {
	teams     *TeamService
	directory DirectoryRepository
	cache     CacheRepository
	matrix    *MatrixLoader
	audit     *AuditService
	logger    logger.Logger

	contextTTL  time.Duration
	decisionTTL time.Duration
}

// EvaluatorOptions tunes the evaluator's cache windows. Zero values select
// defaults.
type EvaluatorOptions struct {
	UserContextTTL time.Duration
	DecisionTTL    time.Duration
}

func NewEvaluator(teams *TeamService, directory DirectoryRepository, cacheRepo CacheRepository, matrix *MatrixLoader, audit *AuditService, log logger.Logger, opts EvaluatorOptions) *Evaluator {
	if opts.UserContextTTL <= 0 {
		opts.UserContextTTL = time.Minute
	}
	if opts.DecisionTTL <= 0 {
		opts.DecisionTTL = 30 * time.Second
	}
	return &Evaluator{
		teams:       teams,
		directory:   directory,
		cache:       cacheRepo,
		matrix:      matrix,
		audit:       audit,
		logger:      log,
		contextTTL:  opts.UserContextTTL,
		decisionTTL: opts.DecisionTTL,
	}
}

// CheckPermission decides whether a user may perform an operation on a
// resource, optionally within a facility. It always returns a decision:
// failures during evaluation deny with the failure recorded on the decision
// rather than propagating.
func (e *Evaluator) CheckPermission(ctx context.Context, userID, resource, operation string, req RequestContext) (decision *models.Decision) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic during permission evaluation", "userId", userID, "resource", resource, "panic", r)
			decision = &models.Decision{
				Allowed: false,
				Reason:  "Permission evaluation error",
				Error:   fmt.Sprintf("panic: %v", r),
			}
		}
		monitoring.RecordAPIOperation("check_permission", resource, time.Since(start), decision.Error == "")
		monitoring.RecordDecision(resource, operation, decision.Allowed)
	}()

	if userID == "" || resource == "" || operation == "" {
		return &models.Decision{Allowed: false, Reason: "User ID, resource, and operation are required"}
	}

	facilityID := req.FacilityID
	if facilityID == "" {
		facilityID = stringField(req.ResourceData, "facilityId")
	}

	if cached, err := e.cache.GetDecision(ctx, userID, resource, operation, facilityID); err == nil {
		return cached
	}

	uc, err := e.resolveUserContext(ctx, userID)
	if err != nil {
		return e.finish(ctx, userID, "", resource, operation, facilityID, req.DocumentID, &models.Decision{
			Allowed: false,
			Reason:  "Invalid user context",
			Error:   err.Error(),
		})
	}

	role := highestRole(uc.Roles)

	if uc.IsGlobalAdmin {
		return e.finish(ctx, userID, role, resource, operation, facilityID, req.DocumentID, &models.Decision{
			Allowed: true,
			Reason:  "Global admin access",
			Scope:   models.ScopeAllFacilities,
			Details: map[string]interface{}{"accessType": "global_admin"},
		})
	}

	if len(uc.TeamMemberships) == 0 {
		return e.finish(ctx, userID, role, resource, operation, facilityID, req.DocumentID, &models.Decision{
			Allowed: false,
			Reason:  "User has no team memberships",
		})
	}

	rule, ok := e.matrix.Rule(resource, operation)
	if !ok {
		return e.finish(ctx, userID, role, resource, operation, facilityID, req.DocumentID, &models.Decision{
			Allowed: false,
			Reason:  "No matching permission found",
		})
	}

	if !rule.AllowsRole(role) {
		return e.finish(ctx, userID, role, resource, operation, facilityID, req.DocumentID, &models.Decision{
			Allowed: false,
			Reason:  "Operation not allowed for role",
		})
	}

	scope := rule.ScopeFor(role)
	if scope == models.ScopeFacilityOnly {
		if mapped, ok := e.matrix.FacilityScope(facilityID); ok {
			scope = mapped
		}
	}

	details := map[string]interface{}{"accessType": "facility_member"}

	if scope == models.ScopeFacilityOnly {
		if facilityID == "" {
			return e.finish(ctx, userID, role, resource, operation, facilityID, req.DocumentID, &models.Decision{
				Allowed: false,
				Reason:  "Facility context is required for facility-scoped operations",
			})
		}
		membership := uc.FacilityMembership(facilityID)
		if membership == nil {
			return e.finish(ctx, userID, role, resource, operation, facilityID, req.DocumentID, &models.Decision{
				Allowed: false,
				Reason:  "Access denied: cross-facility access is not permitted",
			})
		}
		details["teamRole"] = string(HighestTeamRole(membership.Roles))
	}

	return e.finish(ctx, userID, role, resource, operation, facilityID, req.DocumentID, &models.Decision{
		Allowed: true,
		Reason:  fmt.Sprintf("Role %s allows %s on %s", role, operation, resource),
		Scope:   scope,
		Details: details,
	})
}

// finish caches and audits a fresh decision before returning it. Errored
// decisions are not cached so a transient failure does not pin a denial for
// the full TTL.
func (e *Evaluator) finish(ctx context.Context, userID string, role models.Role, resource, operation, facilityID, documentID string, decision *models.Decision) *models.Decision {
	if decision.Error == "" {
		if err := e.cache.SetDecision(ctx, userID, resource, operation, facilityID, decision, e.decisionTTL); err != nil {
			e.logger.Warn("failed to cache decision", "userId", userID, "error", err)
		}
	}
	auditFailure(e.audit.LogPermissionCheck(ctx, userID, role, resource, operation, documentID, decision.Allowed, decision.Reason, generateCorrelationID()))
	return decision
}

// CheckFacilityAccess decides whether a user may act within a facility at
// all, independent of any particular resource.
func (e *Evaluator) CheckFacilityAccess(ctx context.Context, userID, facilityID string) (decision *models.Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic during facility access check", "userId", userID, "panic", r)
			decision = &models.Decision{Allowed: false, Reason: "Permission evaluation error", Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	if userID == "" || facilityID == "" {
		return &models.Decision{Allowed: false, Reason: "User ID and facility ID are required"}
	}

	uc, err := e.resolveUserContext(ctx, userID)
	if err != nil {
		return &models.Decision{Allowed: false, Reason: "Invalid user context", Error: err.Error()}
	}

	if uc.IsGlobalAdmin {
		return &models.Decision{
			Allowed: true,
			Reason:  "Global admin access",
			Scope:   models.ScopeAllFacilities,
			Details: map[string]interface{}{"accessType": "global_admin"},
		}
	}

	membership := uc.FacilityMembership(facilityID)
	if membership == nil {
		return &models.Decision{Allowed: false, Reason: "User does not belong to facility team"}
	}

	return &models.Decision{
		Allowed: true,
		Reason:  "Facility team member",
		Scope:   models.ScopeFacilityOnly,
		Details: map[string]interface{}{
			"accessType": "facility_member",
			"teamRole":   string(HighestTeamRole(membership.Roles)),
		},
	}
}

// CheckTeamManagementPermission decides whether an actor may manage a
// facility team's membership. Global admins may perform any operation;
// facility owners may add, remove, and change roles except promoting anyone
// to owner, which stays a global-admin action.
func (e *Evaluator) CheckTeamManagementPermission(ctx context.Context, actorID, operation, facilityID string, req RequestContext) (decision *models.Decision) {
	var actorRole models.Role
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic during team management check", "userId", actorID, "panic", r)
			decision = &models.Decision{Allowed: false, Reason: "Permission evaluation error", Error: fmt.Sprintf("panic: %v", r)}
		}
		if decision != nil {
			auditFailure(e.audit.LogTeamManagementCheck(ctx, actorID, actorRole, operation, facilityID, decision.Allowed, decision.Reason, generateCorrelationID()))
		}
	}()

	if actorID == "" || facilityID == "" {
		return &models.Decision{Allowed: false, Reason: "User ID and facility ID are required"}
	}

	switch operation {
	case TeamOpAddMember, TeamOpRemoveMember, TeamOpUpdateMemberRole:
	default:
		return &models.Decision{Allowed: false, Reason: "Unknown team management operation"}
	}

	uc, err := e.resolveUserContext(ctx, actorID)
	if err != nil {
		return &models.Decision{Allowed: false, Reason: "Invalid user context", Error: err.Error()}
	}
	actorRole = highestRole(uc.Roles)

	if uc.IsGlobalAdmin {
		return &models.Decision{
			Allowed: true,
			Reason:  "Global admin access",
			Scope:   models.ScopeAllFacilities,
			Details: map[string]interface{}{"accessType": "global_admin"},
		}
	}

	membership := uc.FacilityMembership(facilityID)
	if membership == nil || HighestTeamRole(membership.Roles) != models.TeamRoleOwner {
		return &models.Decision{Allowed: false, Reason: "Insufficient permissions for team management operation"}
	}

	promoting := req.NewRole == models.TeamRoleOwner &&
		(operation == TeamOpAddMember || operation == TeamOpUpdateMemberRole)
	if promoting {
		return &models.Decision{Allowed: false, Reason: "Facility owners cannot promote users to owner role"}
	}

	return &models.Decision{
		Allowed: true,
		Reason:  "Facility owner access",
		Scope:   models.ScopeFacilityOnly,
		Details: map[string]interface{}{"accessType": "facility_owner"},
	}
}

// ValidateResourceAccess validates access to a concrete resource document by
// reading its facility association from the provided resource data and
// delegating to the facility access check. Missing facility information
// fails closed.
func (e *Evaluator) ValidateResourceAccess(ctx context.Context, userID, resourceType, resourceID string, resourceData map[string]interface{}) (result *models.ResourceValidation) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic during resource validation", "userId", userID, "panic", r)
			result = &models.ResourceValidation{Valid: false, Reason: "Permission evaluation error"}
		}
	}()

	facilityID := stringField(resourceData, "facilityId")
	if facilityID == "" {
		return &models.ResourceValidation{Valid: false, Reason: "Resource does not have facility information"}
	}

	decision := e.CheckFacilityAccess(ctx, userID, facilityID)
	details := map[string]interface{}{
		"resourceType": resourceType,
		"resourceId":   resourceID,
		"facilityId":   facilityID,
	}
	for k, v := range decision.Details {
		details[k] = v
	}
	return &models.ResourceValidation{
		Valid:   decision.Allowed,
		Reason:  decision.Reason,
		Details: details,
	}
}

// GetUserEffectivePermissions resolves the resource/operation map the user
// holds within a facility: the full matrix for global admins, the role- and
// scope-filtered subset for facility members, nothing for outsiders.
func (e *Evaluator) GetUserEffectivePermissions(ctx context.Context, userID, facilityID string) (perms *models.EffectivePermissions) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic resolving effective permissions", "userId", userID, "panic", r)
			perms = &models.EffectivePermissions{Success: false, Reason: "Permission evaluation error"}
		}
	}()

	if userID == "" || facilityID == "" {
		return &models.EffectivePermissions{Success: false, Reason: "User ID and facility ID are required"}
	}

	uc, err := e.resolveUserContext(ctx, userID)
	if err != nil {
		return &models.EffectivePermissions{Success: false, Reason: "Invalid user context"}
	}

	if uc.IsGlobalAdmin {
		return &models.EffectivePermissions{
			Success:     true,
			AccessType:  "global_admin",
			Permissions: e.matrix.AllPermissions(),
		}
	}

	membership := uc.FacilityMembership(facilityID)
	if membership == nil {
		return &models.EffectivePermissions{Success: false, Reason: "User is not a member of the facility team"}
	}

	role := highestRole(uc.Roles)
	return &models.EffectivePermissions{
		Success:     true,
		AccessType:  "facility_member",
		TeamRole:    HighestTeamRole(membership.Roles),
		Permissions: e.matrix.RulesForRole(role),
	}
}

// resolveUserContext builds (or fetches from cache) the derived per-user
// view: global role, team memberships, and the global-admin bit. A user is a
// global admin when their directory role is administrator or they belong to
// the global-admin team.
func (e *Evaluator) resolveUserContext(ctx context.Context, userID string) (*models.UserContext, error) {
	if uc, err := e.cache.GetUserContext(ctx, userID); err == nil {
		return uc, nil
	}

	dirStart := time.Now()
	user, err := e.directory.GetUser(ctx, userID)
	recordDirectoryCall("get_user", dirStart, err)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	teams, err := e.teams.GetUserTeams(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load teams for user %s: %w", userID, err)
	}

	uc := &models.UserContext{
		UserID:          userID,
		Roles:           []models.Role{user.Role},
		TeamMemberships: teams,
		IsGlobalAdmin:   user.Role == models.RoleAdministrator,
		ResolvedAt:      time.Now(),
	}
	for _, t := range teams {
		if t.IsGlobalAdminTeam {
			uc.IsGlobalAdmin = true
		}
		if t.IsFacilityTeam && uc.FacilityID == "" {
			uc.FacilityID = t.FacilityID
		}
	}

	if err := e.cache.SetUserContext(ctx, uc, e.contextTTL); err != nil {
		e.logger.Warn("failed to cache user context", "userId", userID, "error", err)
	}
	return uc, nil
}

// highestRole returns the strongest role among the user's roles, defaulting
// to the weakest when none parse.
func highestRole(roles []models.Role) models.Role {
	best := models.RoleUser
	bestLevel := 0
	for _, r := range roles {
		if level, err := RoleLevel(r); err == nil && level > bestLevel {
			best = r
			bestLevel = level
		}
	}
	return best
}

func stringField(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
