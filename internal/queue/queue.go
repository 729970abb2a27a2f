// Package queue carries outbound provider work: mirror deletions that must
// reach external calendars after the canonical row is already gone. Messages
// are fire-and-forget from the actor's point of view; a provider worker
// consumes them with its own retry policy.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageType discriminates outbound messages.
type MessageType string

const (
	// TypeDeleteMirror asks the provider worker to delete one mirror copy.
	TypeDeleteMirror MessageType = "DELETE_MIRROR"

	// TypeDeleteUserMirrors asks the provider worker to sweep every mirror
	// a user's account ever wrote, used by the erasure cascade.
	TypeDeleteUserMirrors MessageType = "DELETE_USER_MIRRORS"
)

// DeleteMirror identifies one mirror copy to remove from a provider calendar.
type DeleteMirror struct {
	CanonicalEventID string `json:"canonical_event_id"`
	TargetAccountID  string `json:"target_account_id"`
	TargetCalendarID string `json:"target_calendar_id"`
	ProviderEventID  string `json:"provider_event_id,omitempty"`
}

// DeleteUserMirrors sweeps all provider-side data of one account.
type DeleteUserMirrors struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`
	Provider  string `json:"provider"`
}

// Message is the outbound envelope.
type Message struct {
	ID                string             `json:"message_id"`
	Type              MessageType        `json:"type"`
	DeleteMirror      *DeleteMirror      `json:"delete_mirror,omitempty"`
	DeleteUserMirrors *DeleteUserMirrors `json:"delete_user_mirrors,omitempty"`
	EnqueuedAt        time.Time          `json:"enqueued_at"`
}

// Validate checks the envelope carries exactly the payload its type names.
func (m *Message) Validate() error {
	switch m.Type {
	case TypeDeleteMirror:
		if m.DeleteMirror == nil {
			return fmt.Errorf("%s message missing delete_mirror payload", m.Type)
		}
	case TypeDeleteUserMirrors:
		if m.DeleteUserMirrors == nil {
			return fmt.Errorf("%s message missing delete_user_mirrors payload", m.Type)
		}
	default:
		return fmt.Errorf("invalid message type %q", m.Type)
	}
	return nil
}

func (m *Message) stamp() {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = time.Now().UTC()
	}
}

// Queue publishes outbound messages.
type Queue interface {
	Publish(ctx context.Context, msg *Message) error
	Close() error
}

// Memory is an in-process queue, used by tests and single-node deployments
// without a broker.
type Memory struct {
	mu       sync.Mutex
	messages []*Message
}

var _ Queue = (*Memory)(nil)

// NewMemory creates an in-process queue.
func NewMemory() *Memory {
	return &Memory{}
}

func (q *Memory) Publish(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	msg.stamp()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

func (q *Memory) Close() error { return nil }

// Messages returns a snapshot of everything published so far.
func (q *Memory) Messages() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Message, len(q.messages))
	copy(out, q.messages)
	return out
}

// MessagesOfType filters the snapshot by type.
func (q *Memory) MessagesOfType(t MessageType) []*Message {
	var out []*Message
	for _, m := range q.Messages() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}
