package service

import (
	"context"
	"fmt"
	"time"

	"graceway-go/internal/config"
	"graceway-go/pkg/database"
	"graceway-go/pkg/entitlement"
	"graceway-go/pkg/log"
)

// EntitlementService checks whether a paid feature is unlocked for a user.
// Results are cached in Redis so paywall checks stay cheap.
type EntitlementService interface {
	IsUnlocked(ctx context.Context, userID uint, entitlementID string) (bool, error)
}

type entitlementService struct {
	client   entitlement.Client
	cacheTTL time.Duration
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(client entitlement.Client, cfg config.EntitlementConfig) EntitlementService {
	ttl := time.Duration(cfg.CacheTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &entitlementService{client: client, cacheTTL: ttl}
}

// IsUnlocked consults the cache, then the entitlement service. Cache
// failures fall through to a live check.
func (s *entitlementService) IsUnlocked(ctx context.Context, userID uint, entitlementID string) (bool, error) {
	cacheKey := fmt.Sprintf("entitlement:%d:%s", userID, entitlementID)
	if cached, err := database.RDB.Get(ctx, cacheKey).Result(); err == nil {
		return cached == "true", nil
	}

	unlocked, err := s.client.Check(ctx, userID, entitlementID)
	if err != nil {
		return false, err
	}

	value := "false"
	if unlocked {
		value = "true"
	}
	if err := database.RDB.Set(ctx, cacheKey, value, s.cacheTTL).Err(); err != nil {
		log.Warnf("failed to cache entitlement result for user %d: %v", userID, err)
	}
	return unlocked, nil
}
