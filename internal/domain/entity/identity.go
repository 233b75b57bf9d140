package entity

import "time"

type SessionState string

const (
	SessionAnonymous           SessionState = "anonymous"
	SessionPendingVerification SessionState = "pending_verification"
	SessionAuthenticated       SessionState = "authenticated"
)

// Identity is the current actor. Persisted under the {app}-user key.
type Identity struct {
	ID    string `json:"uid"`
	Role  Role   `json:"type"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type Session struct {
	State       SessionState `json:"state"`
	Identity    *Identity    `json:"identity,omitempty"`
	PendingFor  string       `json:"pendingFor,omitempty"`
	PendingRole Role         `json:"pendingRole,omitempty"`
	Since       time.Time    `json:"since"`
}
