package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome values recorded on engine-produced entries.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Context carries the caller identity propagated into every entry
// produced during an engine call.
type Context struct {
	UserID    *string
	IPAddress string
	UserAgent string
}

// Descriptor names the operation an engine call performs. The coordinator
// and batch orchestrator derive entries from it at state transitions.
type Descriptor struct {
	Action       string
	ResourceType string
	ResourceID   string
	Description  string
	Actor        Context
}

// Entry is an immutable record of a state-changing action. It is
// constructed once, handed to a Sink, and never updated afterward.
type Entry struct {
	ID           uuid.UUID
	ActorID      *string
	Action       string
	ResourceType string
	ResourceID   string
	Before       map[string]any
	After        map[string]any
	IPAddress    string
	UserAgent    string
	Description  string
	CreatedAt    time.Time
}

// NewEntry builds an entry from a descriptor. The outcome is folded into
// the action ("<action>.<outcome>") so completed and failed runs of the
// same operation stay distinguishable in the trail.
func NewEntry(d Descriptor, outcome, detail string) *Entry {
	action := d.Action
	if outcome != "" {
		action = d.Action + "." + outcome
	}
	desc := d.Description
	if detail != "" {
		desc = detail
	}
	return &Entry{
		ID:           uuid.New(),
		ActorID:      d.Actor.UserID,
		Action:       action,
		ResourceType: d.ResourceType,
		ResourceID:   d.ResourceID,
		IPAddress:    d.Actor.IPAddress,
		UserAgent:    d.Actor.UserAgent,
		Description:  desc,
		CreatedAt:    time.Now(),
	}
}

// Sink durably persists audit entries. When the context carries an open
// transaction the write must participate in it; otherwise the write is
// standalone.
type Sink interface {
	Write(ctx context.Context, e *Entry) error
}
