// Package queue defines the auth events exchanged over the message broker
// and the consumer that records them in the audit log.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// AuthEventsQueue is the durable queue events are published to.
const AuthEventsQueue = "auth.events"

// Event types.
const (
	EventUserRegistered = "user.registered"
	EventUserLoggedIn   = "user.logged_in"
	EventUserLoggedOut  = "user.logged_out"
	EventTokenRefreshed = "token.refreshed"
)

// AuthEvent is published whenever a session starts, ends or is renewed.
// It never carries credentials or token material.
type AuthEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     uint64    `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	Role       string    `json:"role,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewAuthEvent stamps a new event with a random id and the current time.
func NewAuthEvent(typ string, userID uint64, email, role string) AuthEvent {
	return AuthEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		UserID:     userID,
		Email:      email,
		Role:       role,
		OccurredAt: time.Now().UTC(),
	}
}
