package entity

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleWorkshop Role = "workshop"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleWorkshop
}

type Message struct {
	ID         string    `json:"id" firestore:"id"`
	RequestID  string    `json:"requestId" firestore:"requestId"`
	OfferID    string    `json:"offerId,omitempty" firestore:"offerId,omitempty"`
	SenderID   string    `json:"senderId" firestore:"senderId"`
	SenderType Role      `json:"senderType" firestore:"senderType"`
	Text       string    `json:"text" firestore:"text"`
	Read       bool      `json:"read" firestore:"read"`
	CreatedAt  time.Time `json:"createdAt" firestore:"createdAt"`
}
