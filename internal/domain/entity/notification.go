package entity

type NotificationType string

const (
	NotificationNewRequest    NotificationType = "new_request"
	NotificationNewOffer      NotificationType = "new_offer"
	NotificationNewMessage    NotificationType = "new_message"
	NotificationOfferAccepted NotificationType = "offer_accepted"
)

// PushPayload is one outbound push notification. Data always carries type and requestId.
type PushPayload struct {
	Title              string            `json:"title"`
	Body               string            `json:"body"`
	Icon               string            `json:"icon"`
	Badge              string            `json:"badge"`
	Tag                string            `json:"tag"`
	RequireInteraction bool              `json:"requireInteraction"`
	Data               map[string]string `json:"data"`
}

// SendResult reports the outcome for one delivery token.
type SendResult struct {
	Token   string
	Success bool
	// Invalid is set when the delivery service reports the token as permanently gone.
	Invalid bool
	Err     error
}
