package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cassiomorais/bookcatalog/internal/domain/audit"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository persists audit entries to the audit_log table. Writes
// go through ConnFromCtx, so an entry written with a transaction-bearing
// context commits or rolls back together with the caller's mutation.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *AuditRepository) Write(ctx context.Context, e *audit.Entry) error {
	before, err := marshalSnapshot(e.Before)
	if err != nil {
		return fmt.Errorf("marshal audit before-state: %w", err)
	}
	after, err := marshalSnapshot(e.After)
	if err != nil {
		return fmt.Errorf("marshal audit after-state: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO audit_log (id, actor_id, action, resource_type, resource_id,
		     before_state, after_state, ip_address, user_agent, description, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)`,
		e.ID, e.ActorID, e.Action, e.ResourceType, e.ResourceID,
		before, after, e.IPAddress, e.UserAgent, e.Description, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func marshalSnapshot(snap map[string]any) ([]byte, error) {
	if snap == nil {
		return nil, nil
	}
	return json.Marshal(snap)
}
