package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KenIjiwoye/immune-me-sub004/internal/models"
	"github.com/KenIjiwoye/immune-me-sub004/internal/monitoring"
	"github.com/KenIjiwoye/immune-me-sub004/pkg/cache"
)

// CacheRepo implements CacheRepository on top of a pkg/cache backend. Cached
// decisions for a user are tracked in a per-user key index so membership
// mutations can drop all of them eagerly, in addition to passive TTL expiry.
type CacheRepo struct {
	cache cache.Cache
}

func NewCacheRepository(c cache.Cache) *CacheRepo {
	return &CacheRepo{cache: c}
}

func contextKey(userID string) string {
	return "authz:ctx:" + userID
}

func teamsKey(userID string) string {
	return "authz:teams:" + userID
}

func teamKey(name string) string {
	return "authz:team:" + name
}

func decisionKey(userID, resource, operation, facilityID string) string {
	return fmt.Sprintf("authz:decision:%s:%s:%s:%s", userID, resource, operation, facilityID)
}

func decisionIndexKey(userID string) string {
	return "authz:decision_index:" + userID
}

// SetUserContext caches a resolved user context with TTL.
func (r *CacheRepo) SetUserContext(ctx context.Context, uc *models.UserContext, ttl time.Duration) error {
	if err := r.cache.Set(ctx, contextKey(uc.UserID), uc, ttl); err != nil {
		monitoring.RecordCacheOperation("cache_user_context", "error")
		return fmt.Errorf("failed to cache user context for %s: %w", uc.UserID, err)
	}
	monitoring.RecordCacheOperation("cache_user_context", "success")
	return nil
}

// GetUserContext retrieves a cached user context.
func (r *CacheRepo) GetUserContext(ctx context.Context, userID string) (*models.UserContext, error) {
	data, err := r.cache.Get(ctx, contextKey(userID))
	if err != nil {
		monitoring.RecordCacheOperation("get_user_context", "miss")
		return nil, err
	}
	monitoring.RecordCacheOperation("get_user_context", "hit")

	var uc models.UserContext
	if err := json.Unmarshal(data, &uc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached user context: %w", err)
	}
	return &uc, nil
}

func (r *CacheRepo) InvalidateUserContext(ctx context.Context, userID string) error {
	if err := r.cache.Delete(ctx, contextKey(userID)); err != nil {
		monitoring.RecordCacheOperation("invalidate_user_context", "error")
		return err
	}
	monitoring.RecordCacheOperation("invalidate_user_context", "success")
	return nil
}

// SetUserTeams caches a user's resolved team list with TTL.
func (r *CacheRepo) SetUserTeams(ctx context.Context, userID string, teams []models.TeamSummary, ttl time.Duration) error {
	if err := r.cache.Set(ctx, teamsKey(userID), teams, ttl); err != nil {
		monitoring.RecordCacheOperation("cache_user_teams", "error")
		return fmt.Errorf("failed to cache teams for %s: %w", userID, err)
	}
	monitoring.RecordCacheOperation("cache_user_teams", "success")
	return nil
}

func (r *CacheRepo) GetUserTeams(ctx context.Context, userID string) ([]models.TeamSummary, error) {
	data, err := r.cache.Get(ctx, teamsKey(userID))
	if err != nil {
		monitoring.RecordCacheOperation("get_user_teams", "miss")
		return nil, err
	}
	monitoring.RecordCacheOperation("get_user_teams", "hit")

	var teams []models.TeamSummary
	if err := json.Unmarshal(data, &teams); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached teams: %w", err)
	}
	return teams, nil
}

func (r *CacheRepo) InvalidateUserTeams(ctx context.Context, userID string) error {
	if err := r.cache.Delete(ctx, teamsKey(userID)); err != nil {
		monitoring.RecordCacheOperation("invalidate_user_teams", "error")
		return err
	}
	monitoring.RecordCacheOperation("invalidate_user_teams", "success")
	return nil
}

// SetTeam caches a team under its deterministic name.
func (r *CacheRepo) SetTeam(ctx context.Context, team *models.Team, ttl time.Duration) error {
	if err := r.cache.Set(ctx, teamKey(team.Name), team, ttl); err != nil {
		monitoring.RecordCacheOperation("cache_team", "error")
		return fmt.Errorf("failed to cache team %s: %w", team.Name, err)
	}
	monitoring.RecordCacheOperation("cache_team", "success")
	return nil
}

func (r *CacheRepo) GetTeamByName(ctx context.Context, name string) (*models.Team, error) {
	data, err := r.cache.Get(ctx, teamKey(name))
	if err != nil {
		monitoring.RecordCacheOperation("get_team", "miss")
		return nil, err
	}
	monitoring.RecordCacheOperation("get_team", "hit")

	var team models.Team
	if err := json.Unmarshal(data, &team); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached team: %w", err)
	}
	return &team, nil
}

func (r *CacheRepo) InvalidateTeam(ctx context.Context, name string) error {
	if err := r.cache.Delete(ctx, teamKey(name)); err != nil {
		monitoring.RecordCacheOperation("invalidate_team", "error")
		return err
	}
	monitoring.RecordCacheOperation("invalidate_team", "success")
	return nil
}

// SetDecision caches a decision and records its key in the user's index.
func (r *CacheRepo) SetDecision(ctx context.Context, userID, resource, operation, facilityID string, decision *models.Decision, ttl time.Duration) error {
	key := decisionKey(userID, resource, operation, facilityID)
	if err := r.cache.Set(ctx, key, decision, ttl); err != nil {
		monitoring.RecordCacheOperation("cache_decision", "error")
		return fmt.Errorf("failed to cache decision: %w", err)
	}
	if err := r.indexDecisionKey(ctx, userID, key, ttl); err != nil {
		monitoring.RecordCacheOperation("cache_decision", "error")
		return err
	}
	monitoring.RecordCacheOperation("cache_decision", "success")
	return nil
}

func (r *CacheRepo) GetDecision(ctx context.Context, userID, resource, operation, facilityID string) (*models.Decision, error) {
	data, err := r.cache.Get(ctx, decisionKey(userID, resource, operation, facilityID))
	if err != nil {
		monitoring.RecordCacheOperation("get_decision", "miss")
		return nil, err
	}
	monitoring.RecordCacheOperation("get_decision", "hit")

	var decision models.Decision
	if err := json.Unmarshal(data, &decision); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached decision: %w", err)
	}
	return &decision, nil
}

// InvalidateUserDecisions drops every cached decision recorded for the user.
func (r *CacheRepo) InvalidateUserDecisions(ctx context.Context, userID string) error {
	indexKey := decisionIndexKey(userID)
	data, err := r.cache.Get(ctx, indexKey)
	if err != nil {
		// No index means no live decisions to drop.
		return nil
	}

	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("failed to unmarshal decision index: %w", err)
	}

	keys = append(keys, indexKey)
	if err := r.cache.Delete(ctx, keys...); err != nil {
		monitoring.RecordCacheOperation("invalidate_decisions", "error")
		return err
	}
	monitoring.RecordCacheOperation("invalidate_decisions", "success")
	return nil
}

// indexDecisionKey appends a decision key to the user's index. The index
// lives at least as long as the decisions it tracks; the read-modify-write
// is unsynchronized, which is acceptable for an instance-local cache where
// a lost index entry only delays invalidation until TTL expiry.
func (r *CacheRepo) indexDecisionKey(ctx context.Context, userID, key string, ttl time.Duration) error {
	indexKey := decisionIndexKey(userID)

	var keys []string
	if data, err := r.cache.Get(ctx, indexKey); err == nil {
		if err := json.Unmarshal(data, &keys); err != nil {
			keys = nil
		}
	}
	for _, existing := range keys {
		if existing == key {
			return r.cache.Set(ctx, indexKey, keys, 2*ttl)
		}
	}
	keys = append(keys, key)
	return r.cache.Set(ctx, indexKey, keys, 2*ttl)
}

// NoOpCacheRepository disables caching entirely; every lookup is a miss.
type NoOpCacheRepository struct{}

func NewNoOpCacheRepository() *NoOpCacheRepository {
	return &NoOpCacheRepository{}
}

func (r *NoOpCacheRepository) SetUserContext(ctx context.Context, uc *models.UserContext, ttl time.Duration) error {
	return nil
}

func (r *NoOpCacheRepository) GetUserContext(ctx context.Context, userID string) (*models.UserContext, error) {
	return nil, cache.ErrNotFound
}

func (r *NoOpCacheRepository) InvalidateUserContext(ctx context.Context, userID string) error {
	return nil
}

func (r *NoOpCacheRepository) SetUserTeams(ctx context.Context, userID string, teams []models.TeamSummary, ttl time.Duration) error {
	return nil
}

func (r *NoOpCacheRepository) GetUserTeams(ctx context.Context, userID string) ([]models.TeamSummary, error) {
	return nil, cache.ErrNotFound
}

func (r *NoOpCacheRepository) InvalidateUserTeams(ctx context.Context, userID string) error {
	return nil
}

func (r *NoOpCacheRepository) SetTeam(ctx context.Context, team *models.Team, ttl time.Duration) error {
	return nil
}

func (r *NoOpCacheRepository) GetTeamByName(ctx context.Context, name string) (*models.Team, error) {
	return nil, cache.ErrNotFound
}

func (r *NoOpCacheRepository) InvalidateTeam(ctx context.Context, name string) error {
	return nil
}

func (r *NoOpCacheRepository) SetDecision(ctx context.Context, userID, resource, operation, facilityID string, decision *models.Decision, ttl time.Duration) error {
	return nil
}

func (r *NoOpCacheRepository) GetDecision(ctx context.Context, userID, resource, operation, facilityID string) (*models.Decision, error) {
	return nil, cache.ErrNotFound
}

func (r *NoOpCacheRepository) InvalidateUserDecisions(ctx context.Context, userID string) error {
	return nil
}
