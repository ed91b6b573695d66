package authz

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/KenIjiwoye/immune-me-sub004/internal/models"
	"github.com/KenIjiwoye/immune-me-sub004/pkg/cache"
	"github.com/KenIjiwoye/immune-me-sub004/pkg/logger"
)

// MockDirectoryRepository is a testify mock of the directory store boundary.
type MockDirectoryRepository struct {
	mock.Mock
}

func (m *MockDirectoryRepository) GetUser(ctx context.Context, userID string) (*models.UserProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserProfile), args.Error(1)
}

func (m *MockDirectoryRepository) ListUsers(ctx context.Context, filters UserFilters) ([]*models.UserProfile, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UserProfile), args.Error(1)
}

func (m *MockDirectoryRepository) CreateTeam(ctx context.Context, team *models.Team) error {
	args := m.Called(ctx, team)
	return args.Error(0)
}

func (m *MockDirectoryRepository) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Team), args.Error(1)
}

func (m *MockDirectoryRepository) GetTeamByName(ctx context.Context, name string) (*models.Team, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Team), args.Error(1)
}

func (m *MockDirectoryRepository) ListTeams(ctx context.Context, filters TeamFilters) ([]*models.Team, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Team), args.Error(1)
}

func (m *MockDirectoryRepository) CreateMembership(ctx context.Context, membership *models.Membership) error {
	args := m.Called(ctx, membership)
	return args.Error(0)
}

func (m *MockDirectoryRepository) UpdateMembership(ctx context.Context, membership *models.Membership) error {
	args := m.Called(ctx, membership)
	return args.Error(0)
}

func (m *MockDirectoryRepository) DeleteMembership(ctx context.Context, teamID, userID string) error {
	args := m.Called(ctx, teamID, userID)
	return args.Error(0)
}

func (m *MockDirectoryRepository) ListUserMemberships(ctx context.Context, userID string) ([]*models.Membership, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Membership), args.Error(1)
}

func (m *MockDirectoryRepository) ListTeamMemberships(ctx context.Context, teamID string) ([]*models.Membership, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Membership), args.Error(1)
}

func (m *MockDirectoryRepository) LogAuditRecord(ctx context.Context, record *models.AuditRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// mapConfigStore serves configuration documents from memory.
type mapConfigStore struct {
	docs map[string][]byte
}

func (s *mapConfigStore) GetDocument(ctx context.Context, name string) ([]byte, error) {
	data, ok := s.docs[name]
	if !ok {
		return nil, &StatusError{Code: 404, Message: "document " + name + " not found"}
	}
	return data, nil
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// testDocuments builds a valid configuration document set covering all four
// roles, both scopes, and a facility scope override.
func testDocuments(t *testing.T) map[string][]byte {
	t.Helper()
	matrix := models.PermissionMatrixDocument{
		RolePermissions: map[string]models.RoleCollections{
			"administrator": {Collections: map[string]models.CollectionRule{
				"patients":             {Operations: []string{"create", "read", "update", "delete"}, Scope: "all_facilities"},
				"immunization_records": {Operations: []string{"create", "read", "update", "delete"}, Scope: "all_facilities"},
				"reports":              {Operations: []string{"create", "read", "delete"}, Scope: "all_facilities"},
			}},
			"supervisor": {Collections: map[string]models.CollectionRule{
				"patients":             {Operations: []string{"create", "read", "update"}, Scope: "facility_only"},
				"immunization_records": {Operations: []string{"create", "read", "update"}, Scope: "facility_only"},
				"reports":              {Operations: []string{"read"}, Scope: "all_facilities"},
			}},
			"doctor": {Collections: map[string]models.CollectionRule{
				"patients":             {Operations: []string{"read", "update"}, Scope: "facility_only"},
				"immunization_records": {Operations: []string{"create", "read"}, Scope: "facility_only"},
			}},
			"user": {Collections: map[string]models.CollectionRule{
				"patients": {Operations: []string{"read"}, Scope: "facility_only"},
			}},
		},
	}
	hierarchy := models.RoleHierarchyDocument{Levels: map[string]int{
		"administrator": 4, "supervisor": 3, "doctor": 2, "user": 1,
	}}
	structure := models.TeamStructureDocument{
		FacilityTeamPrefix:  "facility-team-",
		GlobalAdminTeamName: "global-admin-team",
		DefaultTeamRoles:    []string{"owner", "admin", "member"},
	}
	mappings := models.FacilityMappingDocument{FacilityScopes: map[string]string{
		"central-lab": "all_facilities",
	}}

	return map[string][]byte{
		DocPermissionMatrix: mustJSON(t, matrix),
		DocRoleHierarchy:    mustJSON(t, hierarchy),
		DocTeamStructure:    mustJSON(t, structure),
		DocFacilityMappings: mustJSON(t, mappings),
	}
}

func newTestMatrix(t *testing.T) *MatrixLoader {
	t.Helper()
	loader := NewMatrixLoader(&mapConfigStore{docs: testDocuments(t)}, logger.NewNop())
	require.NoError(t, loader.Initialize(context.Background()))
	return loader
}

func newTestCacheRepo() *CacheRepo {
	return NewCacheRepository(cache.NewMemory(256, time.Minute))
}

func notFoundErr() error {
	return &StatusError{Code: 404, Message: "not found"}
}

func conflictErr() error {
	return &StatusError{Code: 409, Message: "already exists"}
}
