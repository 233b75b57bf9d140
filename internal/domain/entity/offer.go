package entity

import "time"

type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "pending"
	OfferStatusAccepted OfferStatus = "accepted"
)

type Offer struct {
	ID           string      `json:"id" firestore:"id"`
	RequestID    string      `json:"requestId" firestore:"requestId"`
	WorkshopID   string      `json:"workshopId" firestore:"workshopId"`
	WorkshopName string      `json:"workshopName,omitempty" firestore:"workshopName,omitempty"`
	Price        int         `json:"price" firestore:"price"`
	Duration     int         `json:"duration" firestore:"duration"`
	Note         string      `json:"note,omitempty" firestore:"note,omitempty"`
	Status       OfferStatus `json:"status" firestore:"status"`
	CreatedAt    time.Time   `json:"createdAt" firestore:"createdAt"`
	AcceptedAt   *time.Time  `json:"acceptedAt,omitempty" firestore:"acceptedAt,omitempty"`
}

type OfferInput struct {
	Price        int    `json:"price" validate:"gt=0"`
	Duration     int    `json:"duration" validate:"gt=0"`
	Note         string `json:"note"`
	WorkshopName string `json:"workshopName"`
}
