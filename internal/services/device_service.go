// Package services – DeviceService
//
// Push endpoint registry. Registration is an upsert keyed by the endpoint
// value: a token re-registered by another user transfers ownership, because a
// device that logs in as a new user must stop receiving the previous user's
// notifications. Each (user, category) pair keeps at most the configured
// number of most recent tokens.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/ordwell/go-fulfillment-backend/internal/config"
	"github.com/ordwell/go-fulfillment-backend/internal/domain"
	"github.com/ordwell/go-fulfillment-backend/internal/metrics"
	"github.com/ordwell/go-fulfillment-backend/internal/repo"
)

// tokenPattern matches FCM-shaped endpoint values: URL-safe characters plus
// the colon separator, bounded in length (10 to 4096 characters; the repeat
// is split into chunks because Go's regexp caps a single repeat count at 1000).
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9:_\-]{10,1000}[A-Za-z0-9:_\-]{0,1000}[A-Za-z0-9:_\-]{0,1000}[A-Za-z0-9:_\-]{0,1000}[A-Za-z0-9:_\-]{0,96}$`)

// CleanupResult reports what one registry cleanup pass removed.
type CleanupResult struct {
	// Expired counts tokens removed because their expiry passed.
	Expired int64
	// Stale counts deactivated tokens removed after the grace period.
	Stale int64
}

// DeviceService manages the push endpoint registry.
type DeviceService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cfg supplies the retention cap, grace period, and token TTL.
	Cfg config.Config
}

// NewDeviceService constructs a DeviceService.
func NewDeviceService(db *gorm.DB, cfg config.Config) *DeviceService {
	return &DeviceService{DB: db, Cfg: cfg}
}

// Register upserts a push endpoint for a user. An endpoint already registered
// to another user is transferred; metadata from the new registration is
// merged over the existing metadata. Registration refreshes the activity and
// expiry timestamps and trims the (user, category) pair down to the retention
// cap, oldest first.
func (s *DeviceService) Register(ctx context.Context, userID, token, category string, metadata map[string]string) (*domain.DeviceToken, error) {
	tr := otel.Tracer("services/DeviceService")
	ctx, span := tr.Start(ctx, "Register",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("token.category", category),
		),
	)
	defer span.End()

	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !tokenPattern.MatchString(token) {
		return nil, ErrInvalidToken
	}
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = "web"
	}

	now := time.Now().UTC()
	var out *domain.DeviceToken
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := repo.GetTokenByValue(ctx, tx, token)
		switch {
		case err == nil:
			existing.UserID = userID
			existing.Category = category
			existing.Active = true
			existing.Metadata = mergeMetadata(existing.Metadata, metadata)
			existing.LastUsedAt = now
			existing.ExpiresAt = now.Add(s.Cfg.DeviceTokenTTL)
			if err := repo.SaveToken(ctx, tx, existing); err != nil {
				return err
			}
			out = existing
		case errors.Is(err, repo.ErrNotFound):
			t := &domain.DeviceToken{
				ID:         uuid.NewString(),
				UserID:     userID,
				Token:      token,
				Category:   category,
				Active:     true,
				Metadata:   mergeMetadata("", metadata),
				LastUsedAt: now,
				ExpiresAt:  now.Add(s.Cfg.DeviceTokenTTL),
			}
			if err := repo.CreateToken(ctx, tx, t); err != nil {
				return err
			}
			out = t
		default:
			return err
		}

		_, err = repo.TrimTokensBeyondCap(ctx, tx, userID, category, s.Cfg.DeviceRetentionCap)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Deactivate turns off the given endpoints after the gateway reported them
// permanently invalid. The rows survive until Cleanup purges them, so the
// deactivation is observable.
func (s *DeviceService) Deactivate(ctx context.Context, tokens []string) (int64, error) {
	n, err := repo.DeactivateTokens(ctx, s.DB, tokens)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.EndpointsDeactivated(int(n))
	}
	return n, nil
}

// Remove deletes one endpoint of a user. It reports whether the endpoint
// existed.
func (s *DeviceService) Remove(ctx context.Context, userID, token string) (bool, error) {
	if userID == "" || token == "" {
		return false, fmt.Errorf("%w: user id and token are required", ErrInvalidInput)
	}
	return repo.DeleteToken(ctx, s.DB, userID, token)
}

// RemoveAll deletes every endpoint of a user, e.g. on account deletion.
func (s *DeviceService) RemoveAll(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return repo.DeleteTokensForUser(ctx, s.DB, userID)
}

// ActiveFor returns the user's active, unexpired endpoints, newest first.
// An empty category matches all categories.
func (s *DeviceService) ActiveFor(ctx context.Context, userID, category string) ([]domain.DeviceToken, error) {
	return repo.ActiveTokens(ctx, s.DB, userID, category, time.Now().UTC())
}

// ActiveForMany returns the active, unexpired endpoints of a user set,
// grouped by user id.
func (s *DeviceService) ActiveForMany(ctx context.Context, userIDs []string, category string) (map[string][]domain.DeviceToken, error) {
	return repo.ActiveTokensForUsers(ctx, s.DB, userIDs, category, time.Now().UTC())
}

// Cleanup purges expired endpoints and deactivated endpoints whose last use
// is older than the grace period.
func (s *DeviceService) Cleanup(ctx context.Context) (CleanupResult, error) {
	now := time.Now().UTC()
	expired, err := repo.DeleteExpiredTokens(ctx, s.DB, now)
	if err != nil {
		return CleanupResult{}, err
	}
	stale, err := repo.DeleteInactiveTokensBefore(ctx, s.DB, now.Add(-s.Cfg.DeviceGracePeriod))
	if err != nil {
		return CleanupResult{Expired: expired}, err
	}
	return CleanupResult{Expired: expired, Stale: stale}, nil
}

// mergeMetadata overlays new key/value pairs on the stored metadata JSON.
// Unparseable stored metadata is replaced rather than propagated.
func mergeMetadata(stored string, update map[string]string) string {
	merged := map[string]string{}
	if stored != "" {
		_ = json.Unmarshal([]byte(stored), &merged)
	}
	for k, v := range update {
		merged[k] = v
	}
	if len(merged) == 0 {
		return ""
	}
	b, err := json.Marshal(merged)
	if err != nil {
		return stored
	}
	return string(b)
}
