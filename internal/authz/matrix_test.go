package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KenIjiwoye/immune-me-sub004/internal/models"
	"github.com/KenIjiwoye/immune-me-sub004/pkg/logger"
)

func TestMatrixInitialize(t *testing.T) {
	loader := newTestMatrix(t)

	rule, ok := loader.Rule("patients", "read")
	require.True(t, ok)
	assert.Equal(t, "patients", rule.Resource)
	assert.Equal(t, "read", rule.Operation)
	// All four roles read patients; ordering is by hierarchy level.
	assert.Equal(t, []models.Role{
		models.RoleAdministrator, models.RoleSupervisor, models.RoleDoctor, models.RoleUser,
	}, rule.AllowedRoles)
	// Doctor reads facility_only, administrator all_facilities; the
	// aggregate is the conservative one.
	assert.Equal(t, models.ScopeFacilityOnly, rule.Scope)
	assert.Equal(t, models.ScopeAllFacilities, rule.ScopeFor(models.RoleAdministrator))
	assert.Equal(t, models.ScopeFacilityOnly, rule.ScopeFor(models.RoleDoctor))

	del, ok := loader.Rule("patients", "delete")
	require.True(t, ok)
	assert.Equal(t, []models.Role{models.RoleAdministrator}, del.AllowedRoles)
	assert.Equal(t, models.ScopeAllFacilities, del.Scope)

	_, ok = loader.Rule("patients", "archive")
	assert.False(t, ok)
	_, ok = loader.Rule("unknown_collection", "read")
	assert.False(t, ok)

	assert.Equal(t, []string{"immunization_records", "patients", "reports"}, loader.Resources())

	scope, ok := loader.FacilityScope("central-lab")
	require.True(t, ok)
	assert.Equal(t, models.ScopeAllFacilities, scope)
	_, ok = loader.FacilityScope("facility-1")
	assert.False(t, ok)

	assert.Equal(t, "facility-team-facility-1", loader.FacilityTeamName("facility-1"))
}

func TestMatrixInitializeMissingDocument(t *testing.T) {
	docs := testDocuments(t)
	delete(docs, DocTeamStructure)
	loader := NewMatrixLoader(&mapConfigStore{docs: docs}, logger.NewNop())

	err := loader.Initialize(context.Background())
	require.Error(t, err)
	var cerr ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, DocTeamStructure, cerr.Document)
}

func TestMatrixInitializeMalformedJSON(t *testing.T) {
	docs := testDocuments(t)
	docs[DocPermissionMatrix] = []byte("{not json")
	loader := NewMatrixLoader(&mapConfigStore{docs: docs}, logger.NewNop())

	err := loader.Initialize(context.Background())
	var cerr ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, DocPermissionMatrix, cerr.Document)
}

func TestMatrixInitializeUnknownRole(t *testing.T) {
	docs := testDocuments(t)
	docs[DocPermissionMatrix] = []byte(`{"rolePermissions":{"superuser":{"collections":{"patients":{"operations":["read"],"scope":"facility_only"}}}}}`)
	loader := NewMatrixLoader(&mapConfigStore{docs: docs}, logger.NewNop())

	err := loader.Initialize(context.Background())
	var cerr ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Message, "superuser")
}

func TestMatrixInitializeUnknownOperation(t *testing.T) {
	docs := testDocuments(t)
	docs[DocPermissionMatrix] = []byte(`{"rolePermissions":{"doctor":{"collections":{"patients":{"operations":["browse"],"scope":"facility_only"}}}}}`)
	loader := NewMatrixLoader(&mapConfigStore{docs: docs}, logger.NewNop())

	err := loader.Initialize(context.Background())
	var cerr ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Message, "browse")
}

func TestMatrixInitializeHierarchyOrderViolation(t *testing.T) {
	docs := testDocuments(t)
	docs[DocRoleHierarchy] = []byte(`{"levels":{"administrator":1,"supervisor":3,"doctor":2,"user":4}}`)
	loader := NewMatrixLoader(&mapConfigStore{docs: docs}, logger.NewNop())

	err := loader.Initialize(context.Background())
	var cerr ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, DocRoleHierarchy, cerr.Document)
}

func TestMatrixReloadDocument(t *testing.T) {
	store := &mapConfigStore{docs: testDocuments(t)}
	loader := NewMatrixLoader(store, logger.NewNop())
	require.NoError(t, loader.Initialize(context.Background()))

	// Grant supervisors delete on patients and reload just that document.
	store.docs[DocPermissionMatrix] = []byte(`{"rolePermissions":{
		"administrator":{"collections":{"patients":{"operations":["create","read","update","delete"],"scope":"all_facilities"}}},
		"supervisor":{"collections":{"patients":{"operations":["delete"],"scope":"facility_only"}}},
		"doctor":{"collections":{"patients":{"operations":["read"],"scope":"facility_only"}}},
		"user":{"collections":{"patients":{"operations":["read"],"scope":"facility_only"}}}}}`)
	require.NoError(t, loader.ReloadDocument(context.Background(), DocPermissionMatrix))

	rule, ok := loader.Rule("patients", "delete")
	require.True(t, ok)
	assert.True(t, rule.AllowsRole(models.RoleSupervisor))

	// Untouched documents survive the swap.
	assert.Equal(t, "facility-team-f9", loader.FacilityTeamName("f9"))
}

func TestMatrixReloadInvalidKeepsPreviousTables(t *testing.T) {
	store := &mapConfigStore{docs: testDocuments(t)}
	loader := NewMatrixLoader(store, logger.NewNop())
	require.NoError(t, loader.Initialize(context.Background()))

	store.docs[DocPermissionMatrix] = []byte("{broken")
	err := loader.ReloadDocument(context.Background(), DocPermissionMatrix)
	require.Error(t, err)

	// The previous matrix stays active.
	rule, ok := loader.Rule("patients", "read")
	require.True(t, ok)
	assert.True(t, rule.AllowsRole(models.RoleDoctor))
}

func TestMatrixReloadUnknownDocument(t *testing.T) {
	loader := newTestMatrix(t)
	err := loader.ReloadDocument(context.Background(), "billing_rules")
	var cerr ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Message, "unknown")
}

func TestMatrixReloadBeforeInitialize(t *testing.T) {
	loader := NewMatrixLoader(&mapConfigStore{docs: testDocuments(t)}, logger.NewNop())
	err := loader.ReloadDocument(context.Background(), DocPermissionMatrix)
	require.Error(t, err)
}

func TestRulesForRole(t *testing.T) {
	loader := newTestMatrix(t)

	doctor := loader.RulesForRole(models.RoleDoctor)
	assert.Equal(t, []string{"read", "update"}, doctor["patients"])
	assert.Equal(t, []string{"create", "read"}, doctor["immunization_records"])
	assert.NotContains(t, doctor, "reports")

	admin := loader.AllPermissions()
	assert.Equal(t, []string{"create", "delete", "read", "update"}, admin["patients"])
}
