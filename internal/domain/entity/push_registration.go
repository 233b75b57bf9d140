package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type PushRegistration struct {
	ID        string    `json:"id" firestore:"id"`
	UserID    string    `json:"userId" firestore:"userId"`
	Token     string    `json:"token" firestore:"token"`
	Platform  string    `json:"platform" firestore:"platform"`
	UserAgent string    `json:"userAgent,omitempty" firestore:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// PushRegistrationID derives the document ID from the token so a token exists at most once.
func PushRegistrationID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
