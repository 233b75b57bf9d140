package localstore

// Keys builds the persistence keys for one app name, e.g. "schadens-chat-requests".
type Keys struct {
	App string
}

func (k Keys) Requests() string {
	return k.App + "-requests"
}

// Messages is keyed per offer conversation; offerID may be empty before an offer exists.
func (k Keys) Messages(requestID, offerID string) string {
	if offerID == "" {
		return k.App + "-messages-" + requestID
	}
	return k.App + "-messages-" + requestID + "-" + offerID
}

func (k Keys) User() string {
	return k.App + "-user"
}

func (k Keys) Workshop() string {
	return k.App + "-workshop"
}

func (k Keys) Subscription(workshopID string) string {
	return k.App + "-subscription-" + workshopID
}
