package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/bookcatalog/internal/domain/audit"
	"github.com/cassiomorais/bookcatalog/internal/infrastructure/observability"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// FallbackStream receives audit entries whose primary write failed, for
// later reconciliation back into the audit_log table.
const FallbackStream = "audit:fallback"

// AuditFallback is the secondary audit channel: a Redis stream behind a
// circuit breaker, so a dead Redis cannot stall the rollback path that
// produces these writes.
type AuditFallback struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker[string]
	metrics *observability.Metrics
}

func NewAuditFallback(client *redis.Client, metrics *observability.Metrics) *AuditFallback {
	settings := gobreaker.Settings{
		Name:    "audit-fallback",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &AuditFallback{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[string](settings),
		metrics: metrics,
	}
}

func (f *AuditFallback) Write(ctx context.Context, e *audit.Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	_, err = f.breaker.Execute(func() (string, error) {
		return f.client.XAdd(ctx, &redis.XAddArgs{
			Stream: FallbackStream,
			Values: map[string]any{
				"entry_id":  e.ID.String(),
				"action":    e.Action,
				"resource":  e.ResourceType,
				"payload":   string(payload),
				"timestamp": e.CreatedAt.Unix(),
			},
		}).Result()
	})
	if err != nil {
		return fmt.Errorf("publish audit fallback entry: %w", err)
	}

	if f.metrics != nil {
		f.metrics.AuditFallbackTotal.Inc()
	}
	return nil
}
