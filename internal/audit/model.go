package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the licensing core.
const (
	ActionLicenseKeyCreated     = "license_key.created"
	ActionLicenseCreated        = "license.created"
	ActionLicenseUpdated        = "license.updated"
	ActionLicensesListedByEmail = "licenses.listed_by_email"
	ActionActivationCreated     = "activation.created"
	ActionActivationReused      = "activation.reused"
	ActionActivationDeactivated = "activation.deactivated"
)

// Entity types.
const (
	EntityBrand      = "brand"
	EntityLicenseKey = "license_key"
	EntityLicense    = "license"
	EntityActivation = "activation"
)

// Entry is a single audit log record. Entries are append-only.
type Entry struct {
	EventID    uuid.UUID       `json:"event_id"` // Idempotency Key
	BrandID    *uuid.UUID      `json:"brand_id,omitempty"`
	Action     string          `json:"action"`
	Actor      string          `json:"actor"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// FailoverEntry wrapper for JSONL spooling
type FailoverEntry struct {
	EventID   string    `json:"event_id"`
	Payload   Entry     `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder accepts fire-and-forget audit entries. Record must not block on
// the audit store and never reports failure to the caller.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}

// BrandActor and KeyActor build the actor strings stored with each entry.
func BrandActor(slug string) string { return "brand:" + slug }

func KeyActor(key string) string { return "license_key:" + key }

// Publisher fans written entries out to a message bus.
type Publisher interface {
	Publish(e Entry) error
}

// Service writes entries to the audit_logs table, spooling to disk when the
// database is unavailable.
type Service struct {
	DB        *sql.DB
	Spool     *Spool
	Publisher Publisher
}

func NewService(db *sql.DB, spool *Spool) *Service {
	return &Service{DB: db, Spool: spool}
}
