// Package services – NotificationService
//
// Push notification dispatcher. One logical notification to one user becomes
// one NotificationRecord row plus a set of gateway batches covering the
// user's active endpoints. The record doubles as the durable outbox entry:
// the original payload is serialized into its metadata so the retry sweeper
// can reconstruct and re-attempt a failed delivery.
//
// When the gateway is disabled (kill switch off or no credentials) deliveries
// take the simulate path: the record is written as SENT and no gateway call
// is made. This keeps the surrounding flows testable in environments without
// FCM access.
//
// Endpoints the gateway reports as permanently invalid are deactivated
// immediately, so they stop inflating target counts on the next delivery.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/ordwell/go-fulfillment-backend/internal/config"
	"github.com/ordwell/go-fulfillment-backend/internal/domain"
	"github.com/ordwell/go-fulfillment-backend/internal/metrics"
	"github.com/ordwell/go-fulfillment-backend/internal/push"
	"github.com/ordwell/go-fulfillment-backend/internal/repo"
	"github.com/ordwell/go-fulfillment-backend/internal/utils"
)

// Payload is the provider-neutral content of one notification.
type Payload struct {
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Priority    string            `json:"priority,omitempty"` // LOW..URGENT, default NORMAL
	Data        map[string]string `json:"data,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	ClickAction string            `json:"click_action,omitempty"`
	// TTL overrides the priority-derived expiry when positive.
	TTL time.Duration `json:"ttl,omitempty"`
}

// DeliveryResult reports one logical per-user delivery.
type DeliveryResult struct {
	UserID    string
	RecordID  string
	Targets   int
	Sent      int
	Failed    int
	Simulated bool
	Errors    []string
}

// FanoutResult aggregates a multi-user delivery.
type FanoutResult struct {
	TotalUsers  int
	TotalSent   int
	TotalFailed int
	Success     bool
	Results     []DeliveryResult
}

// recordMeta is the JSON document stored in NotificationRecord.Metadata.
type recordMeta struct {
	Payload   Payload  `json:"payload"`
	Errors    []string `json:"errors,omitempty"`
	Simulated bool     `json:"simulated,omitempty"`
}

// NotificationService dispatches push notifications to registered endpoints.
type NotificationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cfg supplies batch size, timeouts, TTLs, and the push kill switch.
	Cfg config.Config
	// Gateway is the push delivery port; nil or disabled means simulate mode.
	Gateway push.Gateway
	// Devices resolves and deactivates endpoints.
	Devices *DeviceService
	// Limiter paces gateway calls across all concurrent deliveries.
	Limiter *rate.Limiter
}

// NewNotificationService constructs a NotificationService with a shared
// gateway rate limiter from the push configuration.
func NewNotificationService(db *gorm.DB, cfg config.Config, gw push.Gateway, devices *DeviceService) *NotificationService {
	return &NotificationService{
		DB:      db,
		Cfg:     cfg,
		Gateway: gw,
		Devices: devices,
		Limiter: rate.NewLimiter(rate.Limit(cfg.Push.RatePerSecond), cfg.Push.RateBurst),
	}
}

// SendToUser delivers one notification to every active endpoint of a user.
//
// A user without active endpoints is a vacuous success: no record is written
// and the result carries zero targets. Otherwise a record is persisted before
// the first gateway call. The returned error is ErrDeliveryFailed when no
// endpoint could be reached and ErrPartialDelivery when only some could; the
// result carries the exact counts in both cases.
func (s *NotificationService) SendToUser(ctx context.Context, userID string, p Payload) (*DeliveryResult, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "SendToUser",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if userID == "" || p.Title == "" {
		return nil, fmt.Errorf("%w: user id and title are required", ErrInvalidInput)
	}

	tokens, err := s.Devices.ActiveFor(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return &DeliveryResult{UserID: userID}, nil
	}

	now := time.Now().UTC()
	rec := &domain.NotificationRecord{
		UserID:      userID,
		Title:       p.Title,
		Body:        p.Body,
		Priority:    priorityLabel(p.Priority),
		ScheduledAt: now,
		ExpiresAt:   now.Add(s.ttlFor(p)),
		Metadata:    encodeMeta(recordMeta{Payload: p}),
	}

	if !s.gatewayReady() {
		rec.Status = domain.NotificationSent
		rec.TargetCount = 1
		rec.SentCount = 1
		rec.Metadata = encodeMeta(recordMeta{Payload: p, Simulated: true})
		if err := repo.CreateNotification(ctx, s.DB, rec); err != nil {
			return nil, err
		}
		return &DeliveryResult{UserID: userID, RecordID: rec.ID, Targets: 1, Sent: 1, Simulated: true}, nil
	}

	if err := repo.CreateNotification(ctx, s.DB, rec); err != nil {
		return nil, err
	}
	return s.deliver(ctx, rec, tokens, p)
}

// SendToUsers delivers one notification to the active subset of an explicit
// user list, one goroutine per user.
func (s *NotificationService) SendToUsers(ctx context.Context, userIDs []string, p Payload) (*FanoutResult, error) {
	active, err := repo.ActiveUserIDsIn(ctx, s.DB, dedupe(userIDs))
	if err != nil {
		return nil, err
	}
	return s.fanout(ctx, active, p)
}

// SendToRole delivers one notification to every active member of a role set.
func (s *NotificationService) SendToRole(ctx context.Context, roles []string, p Payload) (*FanoutResult, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "SendToRole",
		trace.WithAttributes(attribute.StringSlice("roles", roles)),
	)
	defer span.End()

	ids, err := repo.ActiveUserIDsByRole(ctx, s.DB, roles)
	if err != nil {
		return nil, err
	}
	return s.fanout(ctx, ids, p)
}

// fanout runs the per-user deliveries concurrently and aggregates the
// results. Per-user delivery errors are folded into the aggregate; the
// returned error is ErrPartialDelivery iff any endpoint failed.
func (s *NotificationService) fanout(ctx context.Context, userIDs []string, p Payload) (*FanoutResult, error) {
	out := &FanoutResult{TotalUsers: len(userIDs), Success: true}
	if len(userIDs) == 0 {
		return out, nil
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, id := range userIDs {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			res, err := s.SendToUser(ctx, userID, p)
			mu.Lock()
			defer mu.Unlock()
			if res == nil {
				res = &DeliveryResult{UserID: userID}
			}
			if err != nil && len(res.Errors) == 0 {
				res.Errors = append(res.Errors, err.Error())
			}
			if err != nil && res.Targets == 0 {
				// Infrastructure failure before any delivery was attempted.
				out.Success = false
			}
			out.Results = append(out.Results, *res)
			out.TotalSent += res.Sent
			out.TotalFailed += res.Failed
		}(id)
	}
	wg.Wait()

	if out.TotalFailed > 0 {
		out.Success = false
	}
	if !out.Success {
		return out, ErrPartialDelivery
	}
	return out, nil
}

// deliver pushes one record to a resolved token set in gateway-sized batches
// and persists the outcome. Shared by the first delivery and the sweeper's
// re-delivery.
func (s *NotificationService) deliver(ctx context.Context, rec *domain.NotificationRecord, tokens []domain.DeviceToken, p Payload) (*DeliveryResult, error) {
	start := time.Now()
	urgency, _ := s.deliveryHint(p)

	values := make([]string, len(tokens))
	for i, t := range tokens {
		values[i] = t.Token
	}

	var (
		sent    int
		failed  int
		errs    []string
		invalid []string
	)
	for _, batch := range utils.Chunk(values, s.Cfg.Push.BatchSize) {
		if err := s.Limiter.Wait(ctx); err != nil {
			failed += len(batch)
			errs = append(errs, err.Error())
			break
		}
		bctx, cancel := context.WithTimeout(ctx, s.Cfg.Push.Timeout)
		res, err := s.Gateway.Send(bctx, &push.BatchMessage{
			Tokens:      batch,
			Title:       p.Title,
			Body:        p.Body,
			ImageURL:    p.ImageURL,
			ClickAction: p.ClickAction,
			Data:        p.Data,
			Urgency:     urgency,
			TTL:         s.ttlFor(p),
		})
		cancel()
		if err != nil {
			failed += len(batch)
			errs = append(errs, err.Error())
			continue
		}
		sent += res.SuccessCount
		failed += res.FailureCount
		for _, o := range res.Responses {
			if o.Err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", shortToken(o.Token), o.Err))
			}
			if o.Unregistered {
				invalid = append(invalid, o.Token)
			}
		}
	}

	if len(invalid) > 0 {
		if _, err := s.Devices.Deactivate(ctx, invalid); err != nil {
			log.Warn().Err(err).Int("tokens", len(invalid)).Msg("deactivating invalid endpoints failed")
		}
	}

	rec.TargetCount = len(tokens)
	rec.SentCount = sent
	rec.FailedCount = failed
	if sent > 0 {
		rec.Status = domain.NotificationSent
	} else {
		rec.Status = domain.NotificationFailed
	}
	rec.Metadata = encodeMeta(recordMeta{Payload: p, Errors: errs})
	if err := repo.SaveNotification(ctx, s.DB, rec); err != nil {
		return nil, err
	}

	metrics.DeliveryOutcome(sent, failed)
	metrics.ObserveDelivery(time.Since(start))

	result := &DeliveryResult{
		UserID:   rec.UserID,
		RecordID: rec.ID,
		Targets:  len(tokens),
		Sent:     sent,
		Failed:   failed,
		Errors:   errs,
	}
	switch {
	case sent == 0:
		return result, ErrDeliveryFailed
	case failed > 0:
		return result, ErrPartialDelivery
	default:
		return result, nil
	}
}

// redeliver re-attempts a FAILED record from its stored payload. Called by
// the retry sweeper. A record whose user no longer has active endpoints is
// expired instead of retried.
func (s *NotificationService) redeliver(ctx context.Context, rec *domain.NotificationRecord) (*DeliveryResult, error) {
	var meta recordMeta
	if err := json.Unmarshal([]byte(rec.Metadata), &meta); err != nil {
		return nil, fmt.Errorf("notification %s has unreadable metadata: %w", rec.ID, err)
	}

	now := time.Now().UTC()
	rec.RetryCount++
	rec.LastRetryAt = &now

	tokens, err := s.Devices.ActiveFor(ctx, rec.UserID, "")
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		rec.Status = domain.NotificationExpired
		if err := repo.SaveNotification(ctx, s.DB, rec); err != nil {
			return nil, err
		}
		return &DeliveryResult{UserID: rec.UserID, RecordID: rec.ID}, nil
	}

	if !s.gatewayReady() {
		rec.Status = domain.NotificationSent
		rec.SentCount = rec.TargetCount
		rec.FailedCount = 0
		if err := repo.SaveNotification(ctx, s.DB, rec); err != nil {
			return nil, err
		}
		return &DeliveryResult{UserID: rec.UserID, RecordID: rec.ID, Targets: 1, Sent: 1, Simulated: true}, nil
	}

	return s.deliver(ctx, rec, tokens, meta.Payload)
}

// gatewayReady reports whether real gateway delivery is possible.
func (s *NotificationService) gatewayReady() bool {
	return s.Cfg.Push.Enabled && s.Gateway != nil && s.Gateway.Enabled()
}

// deliveryHint maps the logical priority onto the gateway urgency and the
// notification TTL class.
func (s *NotificationService) deliveryHint(p Payload) (push.Urgency, time.Duration) {
	switch p.Priority {
	case string(domain.PriorityUrgent):
		return push.UrgencyHigh, s.Cfg.TTLUrgent
	case string(domain.PriorityLow):
		return push.UrgencyNormal, s.Cfg.TTLLow
	default:
		return push.UrgencyNormal, s.Cfg.TTLNormal
	}
}

// ttlFor resolves the effective expiry horizon of a payload.
func (s *NotificationService) ttlFor(p Payload) time.Duration {
	if p.TTL > 0 {
		return p.TTL
	}
	_, ttl := s.deliveryHint(p)
	return ttl
}

// priorityLabel normalizes the stored priority column value.
func priorityLabel(p string) string {
	if p == "" {
		return "NORMAL"
	}
	return p
}

// encodeMeta serializes the record metadata document; serialization of these
// plain types cannot fail.
func encodeMeta(m recordMeta) string {
	b, _ := json.Marshal(m)
	return string(b)
}

// shortToken truncates an endpoint value for error messages and logs.
func shortToken(t string) string {
	if len(t) > 12 {
		return t[:12] + "..."
	}
	return t
}

// dedupe removes duplicate ids preserving order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
