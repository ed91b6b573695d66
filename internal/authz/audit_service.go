package authz

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/KenIjiwoye/immune-me-sub004/internal/models"
	"github.com/KenIjiwoye/immune-me-sub004/internal/monitoring"
)

// AuditService emits access and role-change audit records. Storage is
// delegated to the external document store; a failed emission never fails
// the operation being audited, callers log and count it instead.
type AuditService struct {
	directory DirectoryRepository
}

func NewAuditService(directory DirectoryRepository) *AuditService {
	return &AuditService{directory: directory}
}

// LogPermissionCheck records the outcome of a permission evaluation. The role
// is the resolved role the user acted under, empty when the check failed
// before the user context could be resolved.
func (s *AuditService) LogPermissionCheck(ctx context.Context, userID string, role models.Role, resource, operation, documentID string, granted bool, reason, correlationID string) error {
	return s.directory.LogAuditRecord(ctx, &models.AuditRecord{
		UserID:        userID,
		Role:          role,
		Resource:      resource,
		DocumentID:    documentID,
		Operation:     operation,
		Granted:       granted,
		Timestamp:     time.Now(),
		Reason:        reason,
		CorrelationID: correlationID,
		Source:        "permission_evaluator",
	})
}

// LogTeamManagementCheck records the outcome of a team-management
// permission check. Mandatory for membership mutations.
func (s *AuditService) LogTeamManagementCheck(ctx context.Context, userID string, role models.Role, operation, facilityID string, granted bool, reason, correlationID string) error {
	return s.directory.LogAuditRecord(ctx, &models.AuditRecord{
		UserID:        userID,
		Role:          role,
		Resource:      "team_management",
		DocumentID:    facilityID,
		Operation:     operation,
		Granted:       granted,
		Timestamp:     time.Now(),
		Reason:        reason,
		CorrelationID: correlationID,
		Source:        "permission_evaluator",
	})
}

// LogMembershipChange records an assign/remove/update of a membership.
func (s *AuditService) LogMembershipChange(ctx context.Context, targetUserID, facilityID, operation string, teamRole models.TeamRole, correlationID string) error {
	return s.directory.LogAuditRecord(ctx, &models.AuditRecord{
		UserID:        targetUserID,
		Resource:      "team_membership",
		DocumentID:    facilityID,
		Operation:     operation,
		Granted:       true,
		Timestamp:     time.Now(),
		Reason:        "team role: " + string(teamRole),
		CorrelationID: correlationID,
		Source:        "team_manager",
	})
}

// LogTeamCreated records lazy creation of a facility or global-admin team.
func (s *AuditService) LogTeamCreated(ctx context.Context, team *models.Team, correlationID string) error {
	return s.directory.LogAuditRecord(ctx, &models.AuditRecord{
		UserID:        "system",
		Resource:      "team",
		DocumentID:    team.ID,
		Operation:     "create",
		Granted:       true,
		Timestamp:     time.Now(),
		Reason:        "team " + team.Name + " created",
		CorrelationID: correlationID,
		Source:        "team_manager",
	})
}

// LogMigrationCompleted records the summary of a legacy migration run.
func (s *AuditService) LogMigrationCompleted(ctx context.Context, report *MigrationReport, correlationID string) error {
	return s.directory.LogAuditRecord(ctx, &models.AuditRecord{
		UserID:        "system",
		Resource:      "team_membership",
		Operation:     "migrate",
		Granted:       true,
		Timestamp:     time.Now(),
		Reason:        report.Summary(),
		CorrelationID: correlationID,
		Source:        "migration",
	})
}

// auditFailure counts an audit emission failure without failing the caller.
func auditFailure(err error) {
	if err != nil {
		monitoring.RecordAPIOperation("audit_log_failure", "authz.audit", 0, false)
	}
}

// generateCorrelationID generates a unique correlation ID for audit logging.
func generateCorrelationID() string {
	return "authz-" + uuid.NewString()
}
