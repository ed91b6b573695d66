package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/KenIjiwoye/immune-me-sub004/internal/models"
	"github.com/KenIjiwoye/immune-me-sub004/pkg/logger"
)

// Configuration document names, as keyed in the configuration store.
const (
	DocPermissionMatrix = "permission_matrix"
	DocRoleHierarchy    = "role_hierarchy"
	DocTeamStructure    = "team_structure"
	DocFacilityMappings = "facility_mappings"
)

var matrixDocuments = []string{
	DocPermissionMatrix,
	DocRoleHierarchy,
	DocTeamStructure,
	DocFacilityMappings,
}

var validOperations = map[string]bool{
	"create": true,
	"read":   true,
	"update": true,
	"delete": true,
}

// MatrixLoader loads the declarative permission matrix and derived lookup
// structures from the configuration store. Initialize is fatal on any
// malformed or missing document; ReloadDocument re-parses one document and
// atomically swaps the full derived table set, so readers never observe a
// half-updated matrix.
type MatrixLoader struct {
	store  ConfigStore
	logger logger.Logger

	mu     sync.Mutex // serializes Initialize/ReloadDocument
	tables atomic.Pointer[lookupTables]
}

// lookupTables is the immutable derived view swapped in as one unit.
type lookupTables struct {
	documents      map[string]json.RawMessage
	rules          map[string]map[string]*models.PermissionRule // resource -> operation
	roleHierarchy  map[models.Role]int
	teamStructure  models.TeamStructureDocument
	facilityScopes map[string]models.RuleScope
}

func NewMatrixLoader(store ConfigStore, log logger.Logger) *MatrixLoader {
	return &MatrixLoader{store: store, logger: log}
}

// Initialize loads and validates all configuration documents. This is the
// one place a returned error should halt the calling process: there is no
// safe default permission matrix to fall back to.
func (l *MatrixLoader) Initialize(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	documents := make(map[string]json.RawMessage, len(matrixDocuments))
	for _, name := range matrixDocuments {
		data, err := l.store.GetDocument(ctx, name)
		if err != nil {
			return ConfigurationError{Document: name, Message: "document unavailable", Err: err}
		}
		documents[name] = json.RawMessage(data)
	}

	tables, err := buildTables(documents)
	if err != nil {
		return err
	}

	l.tables.Store(tables)
	l.logger.Info("permission matrix initialized",
		"resources", len(tables.rules),
		"roles", len(tables.roleHierarchy),
	)
	return nil
}

// ReloadDocument re-parses a single document and swaps the active table set
// atomically. An invalid replacement leaves the previous tables in place.
func (l *MatrixLoader) ReloadDocument(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.tables.Load()
	if current == nil {
		return ConfigurationError{Document: name, Message: "loader not initialized"}
	}

	known := false
	for _, doc := range matrixDocuments {
		if doc == name {
			known = true
			break
		}
	}
	if !known {
		return ConfigurationError{Document: name, Message: "unknown configuration document"}
	}

	data, err := l.store.GetDocument(ctx, name)
	if err != nil {
		return ConfigurationError{Document: name, Message: "document unavailable", Err: err}
	}

	documents := make(map[string]json.RawMessage, len(current.documents))
	for k, v := range current.documents {
		documents[k] = v
	}
	documents[name] = json.RawMessage(data)

	tables, err := buildTables(documents)
	if err != nil {
		return err
	}

	l.tables.Store(tables)
	l.logger.Info("configuration document reloaded", "document", name)
	return nil
}

// Rule returns the permission rule for a (resource, operation) pair.
func (l *MatrixLoader) Rule(resource, operation string) (*models.PermissionRule, bool) {
	tables := l.tables.Load()
	if tables == nil {
		return nil, false
	}
	ops, ok := tables.rules[resource]
	if !ok {
		return nil, false
	}
	rule, ok := ops[operation]
	return rule, ok
}

// Resources returns all resources carrying at least one rule, sorted.
func (l *MatrixLoader) Resources() []string {
	tables := l.tables.Load()
	if tables == nil {
		return nil
	}
	out := make([]string, 0, len(tables.rules))
	for resource := range tables.rules {
		out = append(out, resource)
	}
	sort.Strings(out)
	return out
}

// RulesForRole returns the operations each resource grants to the role.
func (l *MatrixLoader) RulesForRole(role models.Role) map[string][]string {
	tables := l.tables.Load()
	if tables == nil {
		return nil
	}
	out := make(map[string][]string)
	for resource, ops := range tables.rules {
		for operation, rule := range ops {
			if rule.AllowsRole(role) {
				out[resource] = append(out[resource], operation)
			}
		}
	}
	for resource := range out {
		sort.Strings(out[resource])
	}
	return out
}

// AllPermissions returns the full resource -> operations map, used for the
// global-admin effective permission view.
func (l *MatrixLoader) AllPermissions() map[string][]string {
	tables := l.tables.Load()
	if tables == nil {
		return nil
	}
	out := make(map[string][]string)
	for resource, ops := range tables.rules {
		for operation := range ops {
			out[resource] = append(out[resource], operation)
		}
	}
	for resource := range out {
		sort.Strings(out[resource])
	}
	return out
}

// RoleHierarchy returns the configured role -> level table.
func (l *MatrixLoader) RoleHierarchy() map[models.Role]int {
	tables := l.tables.Load()
	if tables == nil {
		return nil
	}
	return tables.roleHierarchy
}

// TeamStructure returns the team naming and structure policy.
func (l *MatrixLoader) TeamStructure() models.TeamStructureDocument {
	tables := l.tables.Load()
	if tables == nil {
		return models.TeamStructureDocument{}
	}
	return tables.teamStructure
}

// FacilityScope returns the scope override for a facility, if any.
func (l *MatrixLoader) FacilityScope(facilityID string) (models.RuleScope, bool) {
	tables := l.tables.Load()
	if tables == nil {
		return "", false
	}
	scope, ok := tables.facilityScopes[facilityID]
	return scope, ok
}

// FacilityTeamName derives the deterministic team name for a facility.
func (l *MatrixLoader) FacilityTeamName(facilityID string) string {
	return l.TeamStructure().FacilityTeamPrefix + facilityID
}

func buildTables(documents map[string]json.RawMessage) (*lookupTables, error) {
	tables := &lookupTables{
		documents:      documents,
		rules:          make(map[string]map[string]*models.PermissionRule),
		facilityScopes: make(map[string]models.RuleScope),
	}

	if err := tables.loadPermissionMatrix(documents[DocPermissionMatrix]); err != nil {
		return nil, err
	}
	if err := tables.loadRoleHierarchy(documents[DocRoleHierarchy]); err != nil {
		return nil, err
	}
	if err := tables.loadTeamStructure(documents[DocTeamStructure]); err != nil {
		return nil, err
	}
	if err := tables.loadFacilityMappings(documents[DocFacilityMappings]); err != nil {
		return nil, err
	}

	return tables, nil
}

func (t *lookupTables) loadPermissionMatrix(data json.RawMessage) error {
	var doc models.PermissionMatrixDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return ConfigurationError{Document: DocPermissionMatrix, Message: "invalid JSON", Err: err}
	}
	if len(doc.RolePermissions) == 0 {
		return ConfigurationError{Document: DocPermissionMatrix, Message: "rolePermissions is empty or missing"}
	}

	for roleName, roleEntry := range doc.RolePermissions {
		role, err := ParseRole(roleName)
		if err != nil {
			return ConfigurationError{Document: DocPermissionMatrix, Message: fmt.Sprintf("unknown role %q", roleName)}
		}
		if len(roleEntry.Collections) == 0 {
			return ConfigurationError{Document: DocPermissionMatrix, Message: fmt.Sprintf("role %q has no collections", roleName)}
		}

		for resource, collection := range roleEntry.Collections {
			scope, err := parseScope(collection.Scope)
			if err != nil {
				return ConfigurationError{
					Document: DocPermissionMatrix,
					Message:  fmt.Sprintf("role %q collection %q: %v", roleName, resource, err),
				}
			}
			if len(collection.Operations) == 0 {
				return ConfigurationError{
					Document: DocPermissionMatrix,
					Message:  fmt.Sprintf("role %q collection %q lists no operations", roleName, resource),
				}
			}

			for _, operation := range collection.Operations {
				if !validOperations[operation] {
					return ConfigurationError{
						Document: DocPermissionMatrix,
						Message:  fmt.Sprintf("role %q collection %q: unknown operation %q", roleName, resource, operation),
					}
				}
				t.addRule(resource, operation, role, scope)
			}
		}
	}

	// Deterministic AllowedRoles ordering keeps the derived tables stable
	// across reloads of unrelated documents.
	for _, ops := range t.rules {
		for _, rule := range ops {
			sortRolesByLevel(rule.AllowedRoles)
		}
	}

	return nil
}

func (t *lookupTables) addRule(resource, operation string, role models.Role, scope models.RuleScope) {
	ops, ok := t.rules[resource]
	if !ok {
		ops = make(map[string]*models.PermissionRule)
		t.rules[resource] = ops
	}
	rule, ok := ops[operation]
	if !ok {
		rule = &models.PermissionRule{
			Resource:   resource,
			Operation:  operation,
			Scope:      models.ScopeAllFacilities,
			RoleScopes: make(map[models.Role]models.RuleScope),
		}
		ops[operation] = rule
	}
	if !rule.AllowsRole(role) {
		rule.AllowedRoles = append(rule.AllowedRoles, role)
	}
	rule.RoleScopes[role] = scope
	// Aggregate scope stays all_facilities only while every role has it.
	if scope == models.ScopeFacilityOnly {
		rule.Scope = models.ScopeFacilityOnly
	}
}

func (t *lookupTables) loadRoleHierarchy(data json.RawMessage) error {
	var doc models.RoleHierarchyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return ConfigurationError{Document: DocRoleHierarchy, Message: "invalid JSON", Err: err}
	}
	if len(doc.Levels) == 0 {
		return ConfigurationError{Document: DocRoleHierarchy, Message: "levels is empty or missing"}
	}

	hierarchy := make(map[models.Role]int, len(doc.Levels))
	for roleName, level := range doc.Levels {
		role, err := ParseRole(roleName)
		if err != nil {
			return ConfigurationError{Document: DocRoleHierarchy, Message: fmt.Sprintf("unknown role %q", roleName)}
		}
		hierarchy[role] = level
	}

	// Every role must be present and the document must preserve the fixed
	// strict ordering; a typo here would silently reorder privileges.
	for role := range roleLevels {
		if _, ok := hierarchy[role]; !ok {
			return ConfigurationError{Document: DocRoleHierarchy, Message: fmt.Sprintf("missing role %q", role)}
		}
	}
	ordered := []models.Role{models.RoleAdministrator, models.RoleSupervisor, models.RoleDoctor, models.RoleUser}
	for i := 1; i < len(ordered); i++ {
		if hierarchy[ordered[i-1]] <= hierarchy[ordered[i]] {
			return ConfigurationError{
				Document: DocRoleHierarchy,
				Message:  fmt.Sprintf("role %q must rank strictly above %q", ordered[i-1], ordered[i]),
			}
		}
	}

	t.roleHierarchy = hierarchy
	return nil
}

func (t *lookupTables) loadTeamStructure(data json.RawMessage) error {
	var doc models.TeamStructureDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return ConfigurationError{Document: DocTeamStructure, Message: "invalid JSON", Err: err}
	}
	if doc.FacilityTeamPrefix == "" {
		return ConfigurationError{Document: DocTeamStructure, Message: "facilityTeamPrefix is required"}
	}
	if doc.GlobalAdminTeamName == "" {
		return ConfigurationError{Document: DocTeamStructure, Message: "globalAdminTeamName is required"}
	}
	if len(doc.DefaultTeamRoles) == 0 {
		return ConfigurationError{Document: DocTeamStructure, Message: "defaultTeamRoles is required"}
	}
	for _, roleName := range doc.DefaultTeamRoles {
		if _, err := ParseTeamRole(roleName); err != nil {
			return ConfigurationError{Document: DocTeamStructure, Message: fmt.Sprintf("unknown team role %q", roleName)}
		}
	}

	t.teamStructure = doc
	return nil
}

func (t *lookupTables) loadFacilityMappings(data json.RawMessage) error {
	var doc models.FacilityMappingDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return ConfigurationError{Document: DocFacilityMappings, Message: "invalid JSON", Err: err}
	}

	for facilityID, scopeName := range doc.FacilityScopes {
		scope, err := parseScope(scopeName)
		if err != nil {
			return ConfigurationError{
				Document: DocFacilityMappings,
				Message:  fmt.Sprintf("facility %q: %v", facilityID, err),
			}
		}
		t.facilityScopes[facilityID] = scope
	}

	return nil
}

func parseScope(s string) (models.RuleScope, error) {
	switch models.RuleScope(s) {
	case models.ScopeFacilityOnly:
		return models.ScopeFacilityOnly, nil
	case models.ScopeAllFacilities:
		return models.ScopeAllFacilities, nil
	default:
		return "", fmt.Errorf("unknown scope %q", s)
	}
}

func sortRolesByLevel(roles []models.Role) {
	sort.Slice(roles, func(i, j int) bool {
		return roleLevels[roles[i]] > roleLevels[roles[j]]
	})
}
