package audit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// WriteEvent inserts e, falling back to the spool when the database refuses
// it. A spooled entry counts as written.
func (s *Service) WriteEvent(ctx context.Context, e Entry) error {
	// Idempotency: If EventID is empty, generate it.
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	if err := s.insert(ctx, e); err != nil {
		if s.Spool == nil {
			return fmt.Errorf("audit write: %w", err)
		}
		log.Printf("Audit DB Write Failed: %v. Spooling event %s", err, e.EventID)
		if spoolErr := s.Spool.Append(e); spoolErr != nil {
			log.Printf("CRITICAL: Audit Spool FAILED for event %s: %v", e.EventID, spoolErr)
			return fmt.Errorf("audit critical failure: %w", spoolErr)
		}
		return nil // Swallow DB error if spooled successfully
	}
	return nil
}

// insert writes e to audit_logs and publishes it on success.
func (s *Service) insert(ctx context.Context, e Entry) error {
	metadata := []byte(e.Metadata)
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}

	query := `
		INSERT INTO audit_logs (
			event_id, brand_id, action, actor, entity_type, entity_id, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err := s.DB.ExecContext(ctx, query,
		e.EventID, e.BrandID, e.Action, e.Actor, e.EntityType, e.EntityID, metadata, e.CreatedAt,
	)
	if err != nil {
		return err
	}

	if s.Publisher != nil {
		if err := s.Publisher.Publish(e); err != nil {
			log.Printf("Audit publish failed for event %s: %v", e.EventID, err)
		}
	}
	return nil
}
