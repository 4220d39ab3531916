package domain

import "time"

// Tipos de eventos emitidos por el contexto de identidad.
const (
	EventUserRegistered      = "user.registered"
	EventUserEmailVerified   = "user.email_verified"
	EventUserLoggedIn        = "user.logged_in"
	EventUserPasswordChanged = "user.password_changed"
)

// Event describe una transición de estado ya persistida.
type Event struct {
	Type        string    `json:"type"`
	AggregateID string    `json:"aggregate_id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name,omitempty"`
	IPAddress   string    `json:"ip_address,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
