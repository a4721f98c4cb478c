package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeUserRegistered    Type = "user.registered"
	TypeUserRoleChanged   Type = "user.role_changed"
	TypeProjectCreated    Type = "project.created"
	TypeProjectClosed     Type = "project.closed"
	TypeProposalSubmitted Type = "proposal.submitted"
	TypeProposalAccepted  Type = "proposal.accepted"
	TypeEscrowFunded      Type = "escrow.funded"
	TypeEscrowReleased    Type = "escrow.released"
	TypeEscrowRefunded    Type = "escrow.refunded"
)

type Event struct {
	ID         string      `json:"id"`
	Type       Type        `json:"type"`
	Payload    interface{} `json:"payload"`
	Timestamp  string      `json:"timestamp"`
	ActorID    string      `json:"actor_id,omitempty"`   // Who triggered the event
	Recipients []string    `json:"recipients,omitempty"` // Who should be notified
}

func New(typ Type, actorID string, payload interface{}, recipients ...string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Payload:    payload,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		ActorID:    actorID,
		Recipients: recipients,
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
