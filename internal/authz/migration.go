package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KenIjiwoye/immune-me-sub004/internal/models"
	"github.com/KenIjiwoye/immune-me-sub004/internal/monitoring"
	"github.com/KenIjiwoye/immune-me-sub004/pkg/logger"
)

const migrationPageSize = 200

// MigrationService converts legacy per-user facility assignments into team
// memberships. It is a one-shot administrative utility: it pages through
// users carrying legacy facility ids, assigns each to the matching facility
// teams, and enrolls administrators in the global-admin team.
type MigrationService struct {
	directory DirectoryRepository
	teams     *TeamService
	audit     *AuditService
	logger    logger.Logger
}

func NewMigrationService(directory DirectoryRepository, teams *TeamService, audit *AuditService, log logger.Logger) *MigrationService {
	return &MigrationService{directory: directory, teams: teams, audit: audit, logger: log}
}

// MigrationFailure records one user/facility pair that could not be migrated.
type MigrationFailure struct {
	UserID     string `json:"userId"`
	FacilityID string `json:"facilityId,omitempty"`
	Reason     string `json:"reason"`
}

// MigrationReport aggregates the outcome of a migration run.
type MigrationReport struct {
	UsersScanned       int                `json:"usersScanned"`
	MembershipsCreated int                `json:"membershipsCreated"`
	Skipped            int                `json:"skipped"`
	Failed             int                `json:"failed"`
	Failures           []MigrationFailure `json:"failures,omitempty"`
}

// Summary renders a one-line account of the run for logs and audit records.
func (r *MigrationReport) Summary() string {
	return fmt.Sprintf("scanned %d users, created %d memberships, skipped %d, failed %d",
		r.UsersScanned, r.MembershipsCreated, r.Skipped, r.Failed)
}

// MigrateLegacyAssignments walks every user with legacy facility ids and
// recreates their access as team memberships. Supervisors become team
// admins, everyone else becomes a member; administrators are additionally
// enrolled in the global-admin team. Per-user failures are recorded and the
// run continues; only a directory paging failure aborts.
func (s *MigrationService) MigrateLegacyAssignments(ctx context.Context) (*MigrationReport, error) {
	start := time.Now()
	report := &MigrationReport{}
	defer func() {
		monitoring.RecordAPIOperation("migrate_legacy_assignments", "authz.migration", time.Since(start), report.Failed == 0)
	}()

	hasLegacy := true
	offset := 0
	for {
		users, err := s.directory.ListUsers(ctx, UserFilters{
			HasLegacyFacilities: &hasLegacy,
			Limit:               migrationPageSize,
			Offset:              offset,
		})
		if err != nil {
			return report, fmt.Errorf("failed to list users for migration: %w", err)
		}
		if len(users) == 0 {
			break
		}

		for _, user := range users {
			report.UsersScanned++
			s.migrateUser(ctx, user, report)
		}

		if len(users) < migrationPageSize {
			break
		}
		offset += len(users)
	}

	auditFailure(s.audit.LogMigrationCompleted(ctx, report, generateCorrelationID()))
	s.logger.Info("legacy assignment migration finished", "summary", report.Summary())
	return report, nil
}

func (s *MigrationService) migrateUser(ctx context.Context, user *models.UserProfile, report *MigrationReport) {
	teamRole := models.TeamRoleMember
	if user.Role == models.RoleSupervisor {
		teamRole = models.TeamRoleAdmin
	}

	for _, facilityID := range user.LegacyFacilityIDs {
		result, err := s.teams.AssignUserToTeam(ctx, user.ID, facilityID, teamRole)
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, MigrationFailure{
				UserID:     user.ID,
				FacilityID: facilityID,
				Reason:     err.Error(),
			})
			var limitErr LimitExceededError
			if errors.As(err, &limitErr) {
				s.logger.Warn("user over team limit during migration", "userId", user.ID, "facilityId", facilityID)
			}
			continue
		}
		if result.Created {
			report.MembershipsCreated++
		} else {
			report.Skipped++
		}
	}

	if user.Role == models.RoleAdministrator {
		created, err := s.enrollGlobalAdmin(ctx, user.ID)
		switch {
		case err != nil:
			report.Failed++
			report.Failures = append(report.Failures, MigrationFailure{
				UserID: user.ID,
				Reason: err.Error(),
			})
		case created:
			report.MembershipsCreated++
		default:
			report.Skipped++
		}
	}
}

// enrollGlobalAdmin adds a user to the global-admin team directly; the
// global-admin team is not a facility team, so the facility assignment path
// does not apply.
func (s *MigrationService) enrollGlobalAdmin(ctx context.Context, userID string) (bool, error) {
	team, err := s.teams.GetOrCreateGlobalAdminTeam(ctx)
	if err != nil {
		return false, err
	}

	memberships, err := s.directory.ListUserMemberships(ctx, userID)
	if err != nil {
		return false, TeamOperationError{Operation: "list_memberships", Err: err}
	}
	for _, m := range memberships {
		if m.TeamID == team.ID {
			return false, nil
		}
	}

	membership := &models.Membership{
		TeamID:    team.ID,
		UserID:    userID,
		Role:      models.TeamRoleAdmin,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.directory.CreateMembership(ctx, membership); err != nil {
		if IsConflict(err) {
			return false, nil
		}
		return false, TeamOperationError{Operation: "create_membership", Err: err}
	}
	s.teams.invalidateUserCaches(ctx, userID)
	return true, nil
}
