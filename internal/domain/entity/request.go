package entity

import "time"

type RequestStatus string

const (
	RequestStatusNew            RequestStatus = "new"
	RequestStatusOffersReceived RequestStatus = "offers_received"
	RequestStatusAccepted       RequestStatus = "accepted"
	RequestStatusInProgress     RequestStatus = "in_progress"
	RequestStatusCompleted      RequestStatus = "completed"
	RequestStatusCancelled      RequestStatus = "cancelled"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusNew:            {RequestStatusOffersReceived, RequestStatusAccepted, RequestStatusCancelled},
	RequestStatusOffersReceived: {RequestStatusAccepted, RequestStatusCancelled},
	RequestStatusAccepted:       {RequestStatusInProgress, RequestStatusCancelled},
	RequestStatusInProgress:     {RequestStatusCompleted},
}

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusNew, RequestStatusOffersReceived, RequestStatusAccepted,
		RequestStatusInProgress, RequestStatusCompleted, RequestStatusCancelled:
		return true
	}
	return false
}

func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusCancelled
}

// AcceptsOffers is true while workshops may still quote on the request.
func (s RequestStatus) AcceptsOffers() bool {
	return s == RequestStatusNew || s == RequestStatusOffersReceived
}

func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StatusesFrom lists every status that may move to next.
func StatusesFrom(next RequestStatus) []string {
	var from []string
	for _, s := range []RequestStatus{
		RequestStatusNew, RequestStatusOffersReceived, RequestStatusAccepted,
		RequestStatusInProgress, RequestStatusCompleted, RequestStatusCancelled,
	} {
		if s.CanTransitionTo(next) {
			from = append(from, string(s))
		}
	}
	return from
}

func OpenStatuses() []string {
	return []string{string(RequestStatusNew), string(RequestStatusOffersReceived)}
}

func TerminalStatuses() []string {
	return []string{string(RequestStatusCompleted), string(RequestStatusCancelled)}
}

// NotAcceptableStatuses are the states in which accepting an offer must fail.
func NotAcceptableStatuses() []string {
	return []string{
		string(RequestStatusAccepted),
		string(RequestStatusInProgress),
		string(RequestStatusCancelled),
		string(RequestStatusCompleted),
	}
}

type Damage struct {
	Type        string `json:"type" firestore:"type"`
	Location    string `json:"location" firestore:"location"`
	Description string `json:"description" firestore:"description"`
}

type Vehicle struct {
	Plate string `json:"plate" firestore:"plate"`
	Brand string `json:"brand" firestore:"brand"`
	Model string `json:"model" firestore:"model"`
	Year  string `json:"year" firestore:"year"`
	Color string `json:"color" firestore:"color"`
}

type Location struct {
	Lat    float64 `json:"lat" firestore:"lat"`
	Lng    float64 `json:"lng" firestore:"lng"`
	Zip    string  `json:"zip" firestore:"zip"`
	Radius int     `json:"radius" firestore:"radius"`
}

type Contact struct {
	Name  string `json:"name" firestore:"name" validate:"notblank"`
	Phone string `json:"phone" firestore:"phone" validate:"notblank"`
	Email string `json:"email,omitempty" firestore:"email,omitempty"`
}

type Request struct {
	ID                 string        `json:"id" firestore:"id"`
	CustomerID         string        `json:"customerId,omitempty" firestore:"customerId,omitempty"`
	Status             RequestStatus `json:"status" firestore:"status"`
	Damage             Damage        `json:"damage" firestore:"damage"`
	Vehicle            Vehicle       `json:"vehicle" firestore:"vehicle"`
	Location           Location      `json:"location" firestore:"location"`
	Contact            Contact       `json:"contact" firestore:"contact"`
	Photos             []string      `json:"photos" firestore:"photos"`
	OffersCount        int           `json:"offersCount" firestore:"offersCount"`
	AcceptedOfferID    string        `json:"acceptedOfferId,omitempty" firestore:"acceptedOfferId,omitempty"`
	AcceptedWorkshopID string        `json:"acceptedWorkshopId,omitempty" firestore:"acceptedWorkshopId,omitempty"`
	AcceptedAt         *time.Time    `json:"acceptedAt,omitempty" firestore:"acceptedAt,omitempty"`
	SyncedAt           *time.Time    `json:"syncedAt,omitempty" firestore:"syncedAt,omitempty"`
	CreatedAt          time.Time     `json:"createdAt" firestore:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt" firestore:"updatedAt"`

	// Offers is only populated on local copies; remotely offers live in a sub-collection.
	Offers []Offer `json:"offers,omitempty" firestore:"-"`
}

// Fields returns the persisted top-level fields keyed by their stored name.
func (r *Request) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"id":          r.ID,
		"status":      string(r.Status),
		"damage":      r.Damage,
		"vehicle":     r.Vehicle,
		"location":    r.Location,
		"contact":     r.Contact,
		"photos":      r.Photos,
		"offersCount": r.OffersCount,
		"createdAt":   r.CreatedAt,
		"updatedAt":   r.UpdatedAt,
	}
	if r.CustomerID != "" {
		fields["customerId"] = r.CustomerID
	}
	if r.AcceptedOfferID != "" {
		fields["acceptedOfferId"] = r.AcceptedOfferID
	}
	if r.AcceptedWorkshopID != "" {
		fields["acceptedWorkshopId"] = r.AcceptedWorkshopID
	}
	if r.AcceptedAt != nil {
		fields["acceptedAt"] = *r.AcceptedAt
	}
	if r.SyncedAt != nil {
		fields["syncedAt"] = *r.SyncedAt
	}
	return fields
}

// PhotoInput is one photo as captured by the client, usually a data URL.
type PhotoInput struct {
	Data string `json:"data" validate:"required"`
}

type RequestInput struct {
	DamageType     string   `json:"damageType"`
	DamageLocation string   `json:"damageLocation"`
	Description    string   `json:"description"`
	Vehicle        Vehicle  `json:"vehicle"`
	Location       Location `json:"location"`
	Contact        Contact  `json:"contact"`
}
