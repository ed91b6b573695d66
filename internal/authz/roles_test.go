package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KenIjiwoye/immune-me-sub004/internal/models"
)

func TestRoleHierarchyOrdering(t *testing.T) {
	cases := []struct {
		a, b models.Role
		want int
	}{
		{models.RoleAdministrator, models.RoleSupervisor, 1},
		{models.RoleSupervisor, models.RoleDoctor, 1},
		{models.RoleDoctor, models.RoleUser, 1},
		{models.RoleUser, models.RoleAdministrator, -1},
		{models.RoleDoctor, models.RoleDoctor, 0},
	}
	for _, tc := range cases {
		got, err := CompareRoles(tc.a, tc.b)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s vs %s", tc.a, tc.b)
	}
}

func TestCompareRolesUnknownRole(t *testing.T) {
	_, err := CompareRoles("superuser", models.RoleDoctor)
	require.Error(t, err)
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "role", verr.Field)
}

func TestRoleAtLeast(t *testing.T) {
	ok, err := RoleAtLeast(models.RoleSupervisor, models.RoleDoctor)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = RoleAtLeast(models.RoleUser, models.RoleDoctor)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = RoleAtLeast(models.RoleDoctor, models.RoleDoctor)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("doctor")
	require.NoError(t, err)
	assert.Equal(t, models.RoleDoctor, role)

	_, err = ParseRole("Doctor")
	assert.Error(t, err, "role names are case sensitive")

	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestParseTeamRole(t *testing.T) {
	role, err := ParseTeamRole("owner")
	require.NoError(t, err)
	assert.Equal(t, models.TeamRoleOwner, role)

	_, err = ParseTeamRole("chief")
	assert.Error(t, err)
}

func TestHighestTeamRole(t *testing.T) {
	assert.Equal(t, models.TeamRoleOwner,
		HighestTeamRole([]models.TeamRole{models.TeamRoleMember, models.TeamRoleOwner, models.TeamRoleAdmin}))
	assert.Equal(t, models.TeamRoleAdmin,
		HighestTeamRole([]models.TeamRole{models.TeamRoleAdmin, models.TeamRoleMember}))
	assert.Equal(t, models.TeamRoleMember, HighestTeamRole(nil))
	assert.Equal(t, models.TeamRoleMember,
		HighestTeamRole([]models.TeamRole{"chief"}), "unknown entries are ignored")
}
