package authz

import "github.com/KenIjiwoye/immune-me-sub004/internal/models"

// The role hierarchy is fixed: administrator > supervisor > doctor > user.
// The role_hierarchy configuration document is validated against these
// levels at load time; the closed enum is authoritative.
var roleLevels = map[models.Role]int{
	models.RoleAdministrator: 4,
	models.RoleSupervisor:    3,
	models.RoleDoctor:        2,
	models.RoleUser:          1,
}

var teamRoleLevels = map[models.TeamRole]int{
	models.TeamRoleOwner:  3,
	models.TeamRoleAdmin:  2,
	models.TeamRoleMember: 1,
}

// RoleLevel returns the integer hierarchy level of a role.
func RoleLevel(role models.Role) (int, error) {
	level, ok := roleLevels[role]
	if !ok {
		return 0, ValidationError{Field: "role", Message: "unknown role: " + string(role)}
	}
	return level, nil
}

// CompareRoles returns 1 if a outranks b, -1 if b outranks a, and 0 when
// they are equal.
func CompareRoles(a, b models.Role) (int, error) {
	la, err := RoleLevel(a)
	if err != nil {
		return 0, err
	}
	lb, err := RoleLevel(b)
	if err != nil {
		return 0, err
	}
	switch {
	case la > lb:
		return 1, nil
	case la < lb:
		return -1, nil
	default:
		return 0, nil
	}
}

// RoleAtLeast reports whether role meets or exceeds minimum.
func RoleAtLeast(role, minimum models.Role) (bool, error) {
	cmp, err := CompareRoles(role, minimum)
	if err != nil {
		return false, err
	}
	return cmp >= 0, nil
}

// ParseRole converts a configuration string into the closed role enum.
func ParseRole(s string) (models.Role, error) {
	role := models.Role(s)
	if _, ok := roleLevels[role]; !ok {
		return "", ValidationError{Field: "role", Message: "unknown role: " + s}
	}
	return role, nil
}

// ParseTeamRole converts a string into the closed team-role enum.
func ParseTeamRole(s string) (models.TeamRole, error) {
	role := models.TeamRole(s)
	if _, ok := teamRoleLevels[role]; !ok {
		return "", ValidationError{Field: "teamRole", Message: "unknown team role: " + s}
	}
	return role, nil
}

// TeamRoleLevel returns the integer level of a team-role.
func TeamRoleLevel(role models.TeamRole) (int, error) {
	level, ok := teamRoleLevels[role]
	if !ok {
		return 0, ValidationError{Field: "teamRole", Message: "unknown team role: " + string(role)}
	}
	return level, nil
}

// HighestTeamRole returns the highest-ranked role in the list, or member
// when the list is empty. Unknown entries are ignored.
func HighestTeamRole(roles []models.TeamRole) models.TeamRole {
	best := models.TeamRoleMember
	bestLevel := 0
	for _, r := range roles {
		if level, ok := teamRoleLevels[r]; ok && level > bestLevel {
			best = r
			bestLevel = level
		}
	}
	return best
}
