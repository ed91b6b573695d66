package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/KenIjiwoye/immune-me-sub004/internal/models"
	"github.com/KenIjiwoye/immune-me-sub004/internal/monitoring"
	"github.com/KenIjiwoye/immune-me-sub004/pkg/logger"
)

// DefaultTeamLimit caps the facility-team memberships of a non-administrator
// user. Global-admin-team membership does not count against it.
const DefaultTeamLimit = 5

// TeamService owns the lifecycle of per-facility teams and the distinguished
// global-admin team: lazy creation, membership assignment and removal, and
// TTL-cached lookups. Mutations invalidate the affected user's cached
// context, teams, and decisions.
type TeamService struct {
	directory DirectoryRepository
	cache     CacheRepository
	matrix    *MatrixLoader
	audit     *AuditService
	logger    logger.Logger

	teamLimit int
	teamsTTL  time.Duration
}

// TeamServiceOptions tunes limits and staleness windows. Zero values select
// defaults.
type TeamServiceOptions struct {
	TeamLimit int
	TeamsTTL  time.Duration
}

func NewTeamService(directory DirectoryRepository, cacheRepo CacheRepository, matrix *MatrixLoader, audit *AuditService, log logger.Logger, opts TeamServiceOptions) *TeamService {
	if opts.TeamLimit <= 0 {
		opts.TeamLimit = DefaultTeamLimit
	}
	if opts.TeamsTTL <= 0 {
		opts.TeamsTTL = time.Minute
	}
	return &TeamService{
		directory: directory,
		cache:     cacheRepo,
		matrix:    matrix,
		audit:     audit,
		logger:    log,
		teamLimit: opts.TeamLimit,
		teamsTTL:  opts.TeamsTTL,
	}
}

// GetOrCreateFacilityTeam returns the team for a facility, creating it
// lazily on first use. The team name is derived deterministically from the
// facility id, so concurrent callers racing to create the same team resolve
// to one team: a duplicate-creation conflict is converted into a lookup of
// the winner.
func (s *TeamService) GetOrCreateFacilityTeam(ctx context.Context, facilityID string) (*models.Team, error) {
	start := time.Now()
	defer func() { monitoring.RecordAPIOperation("get_or_create_team", "authz.team", time.Since(start), true) }()

	if facilityID == "" {
		return nil, ValidationError{Field: "facilityId", Message: "facility ID is required"}
	}

	name := s.matrix.FacilityTeamName(facilityID)
	if team, err := s.cache.GetTeamByName(ctx, name); err == nil {
		return team, nil
	}

	dirStart := time.Now()
	team, err := s.directory.GetTeamByName(ctx, name)
	recordDirectoryCall("get_team_by_name", dirStart, err)
	if err == nil {
		s.cacheTeam(ctx, team)
		return team, nil
	}
	if !IsNotFound(err) {
		return nil, TeamOperationError{Operation: "get_team", Err: err}
	}

	structure := s.matrix.TeamStructure()
	team = &models.Team{
		ID:           uuid.NewString(),
		Name:         name,
		Kind:         models.TeamKindFacility,
		FacilityID:   facilityID,
		DefaultRoles: defaultTeamRoles(structure),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	createStart := time.Now()
	err = s.directory.CreateTeam(ctx, team)
	recordDirectoryCall("create_team", createStart, err)
	if err != nil {
		if IsConflict(err) {
			// Lost the creation race; the existing team wins.
			existing, getErr := s.directory.GetTeamByName(ctx, name)
			if getErr != nil {
				return nil, TeamOperationError{Operation: "get_team", Err: getErr}
			}
			s.cacheTeam(ctx, existing)
			return existing, nil
		}
		return nil, TeamOperationError{Operation: "create_team", Err: err}
	}

	s.cacheTeam(ctx, team)
	auditFailure(s.audit.LogTeamCreated(ctx, team, generateCorrelationID()))
	s.logger.Info("facility team created", "facilityId", facilityID, "teamId", team.ID)
	return team, nil
}

// GetOrCreateGlobalAdminTeam returns the single global-admin team, creating
// it on first use. The deterministic name keeps it unique process-wide.
func (s *TeamService) GetOrCreateGlobalAdminTeam(ctx context.Context) (*models.Team, error) {
	name := s.matrix.TeamStructure().GlobalAdminTeamName
	if team, err := s.cache.GetTeamByName(ctx, name); err == nil {
		return team, nil
	}

	team, err := s.directory.GetTeamByName(ctx, name)
	if err == nil {
		s.cacheTeam(ctx, team)
		return team, nil
	}
	if !IsNotFound(err) {
		return nil, TeamOperationError{Operation: "get_team", Err: err}
	}

	team = &models.Team{
		ID:           uuid.NewString(),
		Name:         name,
		Kind:         models.TeamKindGlobalAdmin,
		DefaultRoles: defaultTeamRoles(s.matrix.TeamStructure()),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.directory.CreateTeam(ctx, team); err != nil {
		if IsConflict(err) {
			existing, getErr := s.directory.GetTeamByName(ctx, name)
			if getErr != nil {
				return nil, TeamOperationError{Operation: "get_team", Err: getErr}
			}
			s.cacheTeam(ctx, existing)
			return existing, nil
		}
		return nil, TeamOperationError{Operation: "create_team", Err: err}
	}

	s.cacheTeam(ctx, team)
	auditFailure(s.audit.LogTeamCreated(ctx, team, generateCorrelationID()))
	return team, nil
}

// AssignUserToTeam assigns or updates a user's membership in a facility
// team. Re-assigning the role the user already holds is an idempotent no-op
// (updated=false, no mutation). A new membership is checked against the
// team-count limit first; exceeding it fails with LimitExceededError and
// performs no mutation.
func (s *TeamService) AssignUserToTeam(ctx context.Context, userID, facilityID string, teamRole models.TeamRole) (*models.AssignmentResult, error) {
	start := time.Now()
	defer func() { monitoring.RecordAPIOperation("assign_user_to_team", "authz.membership", time.Since(start), true) }()

	if userID == "" {
		return nil, ValidationError{Field: "userId", Message: "user ID is required"}
	}
	if facilityID == "" {
		return nil, ValidationError{Field: "facilityId", Message: "facility ID is required"}
	}
	if teamRole == "" {
		teamRole = models.TeamRoleMember
	}
	if _, err := TeamRoleLevel(teamRole); err != nil {
		return nil, err
	}

	team, err := s.GetOrCreateFacilityTeam(ctx, facilityID)
	if err != nil {
		return nil, err
	}

	dirStart := time.Now()
	memberships, err := s.directory.ListUserMemberships(ctx, userID)
	recordDirectoryCall("list_memberships", dirStart, err)
	if err != nil {
		return nil, TeamOperationError{Operation: "list_memberships", Err: err}
	}

	correlationID := generateCorrelationID()

	for _, m := range memberships {
		if m.TeamID != team.ID {
			continue
		}
		if m.Role == teamRole {
			// Idempotent no-op: same team, same role.
			return &models.AssignmentResult{
				Success: true,
				Updated: false,
				Message: fmt.Sprintf("user already holds role %s in facility team", teamRole),
			}, nil
		}

		updated := *m
		updated.Role = teamRole
		updated.UpdatedAt = time.Now()
		updStart := time.Now()
		err := s.directory.UpdateMembership(ctx, &updated)
		recordDirectoryCall("update_membership", updStart, err)
		if err != nil {
			return nil, TeamOperationError{Operation: "update_membership", Err: err}
		}
		s.invalidateUserCaches(ctx, userID)
		auditFailure(s.audit.LogMembershipChange(ctx, userID, facilityID, "update_role", teamRole, correlationID))
		return &models.AssignmentResult{Success: true, Updated: true}, nil
	}

	// New membership: enforce the team limit before mutating anything.
	if err := s.checkTeamLimit(ctx, userID, memberships, 1); err != nil {
		return nil, err
	}

	membership := &models.Membership{
		TeamID:     team.ID,
		UserID:     userID,
		Role:       teamRole,
		FacilityID: facilityID,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	createStart := time.Now()
	err = s.directory.CreateMembership(ctx, membership)
	recordDirectoryCall("create_membership", createStart, err)
	if err != nil {
		if IsConflict(err) {
			// Another writer added the membership between our list and
			// create; treat as already-member.
			return &models.AssignmentResult{Success: true, Updated: false, Message: "user is already a member of the facility team"}, nil
		}
		return nil, TeamOperationError{Operation: "create_membership", Err: err}
	}

	s.invalidateUserCaches(ctx, userID)
	auditFailure(s.audit.LogMembershipChange(ctx, userID, facilityID, "assign", teamRole, correlationID))
	return &models.AssignmentResult{Success: true, Created: true}, nil
}

// RemoveUserFromTeam removes a user's membership in a facility team.
// Removing a user who was never a member is a no-op success.
func (s *TeamService) RemoveUserFromTeam(ctx context.Context, userID, facilityID string) (*models.RemovalResult, error) {
	start := time.Now()
	defer func() { monitoring.RecordAPIOperation("remove_user_from_team", "authz.membership", time.Since(start), true) }()

	if userID == "" {
		return nil, ValidationError{Field: "userId", Message: "user ID is required"}
	}
	if facilityID == "" {
		return nil, ValidationError{Field: "facilityId", Message: "facility ID is required"}
	}

	name := s.matrix.FacilityTeamName(facilityID)
	team, err := s.directory.GetTeamByName(ctx, name)
	if err != nil {
		if IsNotFound(err) {
			s.dropCachedTeam(ctx, name)
			return &models.RemovalResult{Success: true, Message: "user was not a member of the facility team"}, nil
		}
		return nil, TeamOperationError{Operation: "get_team", Err: err}
	}

	dirStart := time.Now()
	memberships, err := s.directory.ListUserMemberships(ctx, userID)
	recordDirectoryCall("list_memberships", dirStart, err)
	if err != nil {
		return nil, TeamOperationError{Operation: "list_memberships", Err: err}
	}

	var existing *models.Membership
	for _, m := range memberships {
		if m.TeamID == team.ID {
			existing = m
			break
		}
	}
	if existing == nil {
		return &models.RemovalResult{Success: true, Message: "user was not a member of the facility team"}, nil
	}

	delStart := time.Now()
	err = s.directory.DeleteMembership(ctx, team.ID, userID)
	recordDirectoryCall("delete_membership", delStart, err)
	if err != nil {
		return nil, TeamOperationError{Operation: "delete_membership", Err: err}
	}

	s.invalidateUserCaches(ctx, userID)
	auditFailure(s.audit.LogMembershipChange(ctx, userID, facilityID, "remove", existing.Role, generateCorrelationID()))
	return &models.RemovalResult{Success: true, Message: "membership removed"}, nil
}

// GetUserTeams resolves all of a user's team memberships, cached with TTL.
// Any assign/remove for the user invalidates the cached entry.
func (s *TeamService) GetUserTeams(ctx context.Context, userID string) ([]models.TeamSummary, error) {
	start := time.Now()
	defer func() { monitoring.RecordAPIOperation("get_user_teams", "authz.membership", time.Since(start), true) }()

	if userID == "" {
		return nil, ValidationError{Field: "userId", Message: "user ID is required"}
	}

	if teams, err := s.cache.GetUserTeams(ctx, userID); err == nil {
		return teams, nil
	}

	dirStart := time.Now()
	memberships, err := s.directory.ListUserMemberships(ctx, userID)
	recordDirectoryCall("list_memberships", dirStart, err)
	if err != nil {
		return nil, TeamOperationError{Operation: "list_memberships", Err: err}
	}

	summaries := make([]models.TeamSummary, 0, len(memberships))
	for _, m := range memberships {
		team, err := s.directory.GetTeam(ctx, m.TeamID)
		if err != nil {
			if IsNotFound(err) {
				s.logger.Warn("membership references missing team", "teamId", m.TeamID, "userId", userID)
				continue
			}
			return nil, TeamOperationError{Operation: "get_team", Err: err}
		}
		summaries = append(summaries, models.TeamSummary{
			TeamID:            team.ID,
			FacilityID:        team.FacilityID,
			Roles:             []models.TeamRole{m.Role},
			IsFacilityTeam:    team.Kind == models.TeamKindFacility,
			IsGlobalAdminTeam: team.Kind == models.TeamKindGlobalAdmin,
		})
	}

	if err := s.cache.SetUserTeams(ctx, userID, summaries, s.teamsTTL); err != nil {
		s.logger.Warn("failed to cache user teams", "userId", userID, "error", err)
	}
	return summaries, nil
}

// GetFacilityTeamMembers lists the members of a facility's team with their
// primary (highest) team-role and directory profile fields. A facility whose
// team does not exist yet has no members.
func (s *TeamService) GetFacilityTeamMembers(ctx context.Context, facilityID string) ([]models.TeamMember, error) {
	start := time.Now()
	defer func() { monitoring.RecordAPIOperation("get_team_members", "authz.membership", time.Since(start), true) }()

	if facilityID == "" {
		return nil, ValidationError{Field: "facilityId", Message: "facility ID is required"}
	}

	name := s.matrix.FacilityTeamName(facilityID)
	team, err := s.directory.GetTeamByName(ctx, name)
	if err != nil {
		if IsNotFound(err) {
			s.dropCachedTeam(ctx, name)
			return []models.TeamMember{}, nil
		}
		return nil, TeamOperationError{Operation: "get_team", Err: err}
	}

	dirStart := time.Now()
	memberships, err := s.directory.ListTeamMemberships(ctx, team.ID)
	recordDirectoryCall("list_team_memberships", dirStart, err)
	if err != nil {
		return nil, TeamOperationError{Operation: "list_memberships", Err: err}
	}

	// A user holds at most one membership per team, but the store is not
	// trusted to guarantee it; collapse duplicates onto the highest role.
	rolesByUser := make(map[string][]models.TeamRole)
	order := make([]string, 0, len(memberships))
	for _, m := range memberships {
		if _, seen := rolesByUser[m.UserID]; !seen {
			order = append(order, m.UserID)
		}
		rolesByUser[m.UserID] = append(rolesByUser[m.UserID], m.Role)
	}

	members := make([]models.TeamMember, 0, len(order))
	for _, userID := range order {
		member := models.TeamMember{
			UserID:      userID,
			PrimaryRole: HighestTeamRole(rolesByUser[userID]),
		}
		profile, err := s.directory.GetUser(ctx, userID)
		if err != nil {
			s.logger.Warn("failed to resolve member profile", "userId", userID, "error", err)
		} else {
			member.Email = profile.Email
			member.FullName = profile.FullName
		}
		members = append(members, member)
	}
	return members, nil
}

// ListFacilityTeams lists facility teams known to the directory, for
// administrative lookups. A non-empty facilityID narrows the result to that
// facility's team.
func (s *TeamService) ListFacilityTeams(ctx context.Context, facilityID string, limit, offset int) ([]*models.Team, error) {
	start := time.Now()
	defer func() { monitoring.RecordAPIOperation("list_facility_teams", "authz.team", time.Since(start), true) }()

	kind := models.TeamKindFacility
	filters := TeamFilters{Kind: &kind, Limit: limit, Offset: offset}
	if facilityID != "" {
		filters.FacilityID = &facilityID
	}

	dirStart := time.Now()
	teams, err := s.directory.ListTeams(ctx, filters)
	recordDirectoryCall("list_teams", dirStart, err)
	if err != nil {
		return nil, TeamOperationError{Operation: "list_teams", Err: err}
	}
	return teams, nil
}

// AssignUserToMultipleFacilities assigns a user to several facility teams.
// The combined team count (existing plus requested) is validated against the
// limit before any assignment; a limit violation fails the whole batch with
// zero assignments made. Individual store failures after the pre-check are
// reported per facility so callers can retry the missing half.
func (s *TeamService) AssignUserToMultipleFacilities(ctx context.Context, userID string, facilityIDs []string, defaultRole models.TeamRole) (*models.BatchAssignmentResult, error) {
	start := time.Now()
	defer func() {
		monitoring.RecordAPIOperation("assign_multiple_facilities", "authz.membership", time.Since(start), true)
	}()

	if userID == "" {
		return nil, ValidationError{Field: "userId", Message: "user ID is required"}
	}
	if len(facilityIDs) == 0 {
		return nil, ValidationError{Field: "facilityIds", Message: "at least one facility ID is required"}
	}
	if defaultRole == "" {
		defaultRole = models.TeamRoleMember
	}
	if _, err := TeamRoleLevel(defaultRole); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(facilityIDs))
	unique := make([]string, 0, len(facilityIDs))
	for _, id := range facilityIDs {
		if id == "" {
			return nil, ValidationError{Field: "facilityIds", Message: "facility ID is required"}
		}
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	memberships, err := s.directory.ListUserMemberships(ctx, userID)
	if err != nil {
		return nil, TeamOperationError{Operation: "list_memberships", Err: err}
	}

	existingFacilities := make(map[string]bool)
	for _, m := range memberships {
		if m.FacilityID != "" {
			existingFacilities[m.FacilityID] = true
		}
	}
	newCount := 0
	for _, id := range unique {
		if !existingFacilities[id] {
			newCount++
		}
	}
	if err := s.checkTeamLimit(ctx, userID, memberships, newCount); err != nil {
		return nil, err
	}

	result := &models.BatchAssignmentResult{Success: true}
	for _, facilityID := range unique {
		outcome := models.FacilityAssignment{FacilityID: facilityID}
		assignment, err := s.AssignUserToTeam(ctx, userID, facilityID, defaultRole)
		if err != nil {
			outcome.Error = err.Error()
			result.ErrorCount++
			result.Success = false
		} else {
			outcome.Success = true
			outcome.Created = assignment.Created
			result.SuccessCount++
		}
		result.Results = append(result.Results, outcome)
	}
	return result, nil
}

// checkTeamLimit enforces the facility-team count limit for the user,
// assuming additional new memberships are about to be created.
// Administrators are exempt; global-admin-team membership never counts.
func (s *TeamService) checkTeamLimit(ctx context.Context, userID string, memberships []*models.Membership, additional int) error {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return TeamOperationError{Operation: "get_user", Err: err}
	}
	if user.Role == models.RoleAdministrator {
		return nil
	}

	facilityCount := 0
	for _, m := range memberships {
		if m.FacilityID != "" {
			facilityCount++
		}
	}
	if facilityCount+additional > s.teamLimit {
		return LimitExceededError{UserID: userID, Limit: s.teamLimit}
	}
	return nil
}

// recordDirectoryCall records a directory store call. Not-found and conflict
// are normal outcomes, not store failures.
func recordDirectoryCall(operation string, start time.Time, err error) {
	monitoring.RecordDirectoryOperation(operation, time.Since(start), err == nil || IsNotFound(err) || IsConflict(err))
}

func (s *TeamService) cacheTeam(ctx context.Context, team *models.Team) {
	if err := s.cache.SetTeam(ctx, team, s.teamsTTL); err != nil {
		s.logger.Warn("failed to cache team", "team", team.Name, "error", err)
	}
}

// dropCachedTeam drops a team-by-name cache entry after the directory
// reported the team gone, so the stale copy does not outlive its TTL.
func (s *TeamService) dropCachedTeam(ctx context.Context, name string) {
	if err := s.cache.InvalidateTeam(ctx, name); err != nil {
		s.logger.Warn("failed to invalidate cached team", "team", name, "error", err)
	}
}

// invalidateUserCaches eagerly drops everything cached for a user after a
// membership mutation: team list, derived context, and decisions.
func (s *TeamService) invalidateUserCaches(ctx context.Context, userID string) {
	for name, invalidate := range map[string]func(context.Context, string) error{
		"teams":     s.cache.InvalidateUserTeams,
		"context":   s.cache.InvalidateUserContext,
		"decisions": s.cache.InvalidateUserDecisions,
	} {
		if err := invalidate(ctx, userID); err != nil {
			s.logger.Warn("cache invalidation failed", "shape", name, "userId", userID, "error", err)
		}
	}
}

func defaultTeamRoles(structure models.TeamStructureDocument) []models.TeamRole {
	roles := make([]models.TeamRole, 0, len(structure.DefaultTeamRoles))
	for _, name := range structure.DefaultTeamRoles {
		role, err := ParseTeamRole(name)
		if err != nil {
			continue
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		roles = []models.TeamRole{models.TeamRoleOwner, models.TeamRoleAdmin, models.TeamRoleMember}
	}
	return roles
}
