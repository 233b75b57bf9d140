package entity

import "time"

type Workshop struct {
	ID        string    `json:"id" firestore:"id"`
	Name      string    `json:"name" firestore:"name" validate:"notblank"`
	Address   string    `json:"address" firestore:"address" validate:"notblank"`
	Phone     string    `json:"phone" firestore:"phone" validate:"notblank"`
	Email     string    `json:"email,omitempty" firestore:"email,omitempty" validate:"omitempty,email"`
	ZipPrefix string    `json:"zipPrefix,omitempty" firestore:"zipPrefix,omitempty" validate:"omitempty,max=5"`
	Active    bool      `json:"active" firestore:"active"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
}

type AnalyticsEvent struct {
	Event      string    `json:"event" firestore:"event"`
	RequestID  string    `json:"requestId" firestore:"requestId"`
	Zip        string    `json:"zip,omitempty" firestore:"zip,omitempty"`
	DamageType string    `json:"damageType,omitempty" firestore:"damageType,omitempty"`
	Timestamp  time.Time `json:"timestamp" firestore:"timestamp"`
}
