package models

// Configuration store document schemas. Three to four JSON documents are
// loaded at boot and may be reloaded individually by name.

// PermissionMatrixDocument is the role -> collection -> operations/scope
// permission matrix.
type PermissionMatrixDocument struct {
	RolePermissions map[string]RoleCollections `json:"rolePermissions"`
}

// RoleCollections holds the per-collection rules granted to one role.
type RoleCollections struct {
	Collections map[string]CollectionRule `json:"collections"`
}

// CollectionRule lists the operations a role may perform on one collection
// and the scope they apply at.
type CollectionRule struct {
	Operations []string `json:"operations"`
	Scope      string   `json:"scope"`
}

// RoleHierarchyDocument maps role names to integer hierarchy levels.
type RoleHierarchyDocument struct {
	Levels map[string]int `json:"levels"`
}

// TeamStructureDocument is the team naming and structure policy.
type TeamStructureDocument struct {
	FacilityTeamPrefix  string   `json:"facilityTeamPrefix"`
	GlobalAdminTeamName string   `json:"globalAdminTeamName"`
	DefaultTeamRoles    []string `json:"defaultTeamRoles"`
}

// FacilityMappingDocument overrides the default scope for specific
// facilities (for example, a central reference facility whose records are
// readable platform-wide).
type FacilityMappingDocument struct {
	FacilityScopes map[string]string `json:"facilityScopes"`
}
