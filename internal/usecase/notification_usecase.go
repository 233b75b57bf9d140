package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/domain/repository"
	"schadenschat/pkg/logger"
)

const messagePreviewRunes = 100

// NotificationUseCase turns store events into push notifications for the
// counterparty and prunes tokens the delivery service rejects.
type NotificationUseCase struct {
	requests    RequestReader
	workshops   repository.WorkshopRepository
	tokens      repository.PushRegistrationRepository
	analytics   repository.AnalyticsRepository
	sender      PushSender
	baseURL     string
	nearbyLimit int
	now         func() time.Time
	log         logger.Component
}

func NewNotificationUseCase(
	requests RequestReader,
	workshops repository.WorkshopRepository,
	tokens repository.PushRegistrationRepository,
	analytics repository.AnalyticsRepository,
	sender PushSender,
	baseURL string,
	nearbyLimit int,
) *NotificationUseCase {
	if nearbyLimit <= 0 {
		nearbyLimit = 50
	}
	return &NotificationUseCase{
		requests:    requests,
		workshops:   workshops,
		tokens:      tokens,
		analytics:   analytics,
		sender:      sender,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		nearbyLimit: nearbyLimit,
		now:         func() time.Time { return time.Now().UTC() },
		log:         logger.For("dispatch"),
	}
}

// DispatchResult counts what one event caused.
type DispatchResult struct {
	Recipients int
	Sent       int
	Failed     int
	Pruned     int
}

// OnRequestCreated alerts active workshops sharing the request's two-digit zip prefix.
func (uc *NotificationUseCase) OnRequestCreated(ctx context.Context, request *entity.Request) (DispatchResult, error) {
	prefix := zipPrefix(request.Location.Zip)
	workshops, err := uc.workshops.ListActive(ctx, prefix, uc.nearbyLimit)
	if err != nil {
		return DispatchResult{}, err
	}

	recipients := make([]string, 0, len(workshops))
	for _, w := range workshops {
		recipients = append(recipients, w.ID)
	}

	payload := uc.payload(entity.NotificationNewRequest, request.ID,
		"Neue Schadens-Anfrage",
		vehicleLabel(request.Vehicle)+" - "+orDefault(request.Damage.Type, "Schaden"),
		"new-request-"+request.ID,
		uc.baseURL+"/werkstatt.html#request-"+request.ID,
	)
	payload.RequireInteraction = true

	result := uc.notify(ctx, recipients, payload)

	if err := uc.analytics.Record(ctx, &entity.AnalyticsEvent{
		Event:      "request_created",
		RequestID:  request.ID,
		Zip:        request.Location.Zip,
		DamageType: request.Damage.Type,
		Timestamp:  uc.now(),
	}); err != nil {
		uc.log.Warn("Analytics for request %s not recorded: %v", request.ID, err)
	}

	uc.log.Info("New request %s: notified %d workshops near %q", request.ID, result.Recipients, prefix)
	return result, nil
}

// OnOfferCreated alerts the customer who owns the request.
func (uc *NotificationUseCase) OnOfferCreated(ctx context.Context, offer *entity.Offer) (DispatchResult, error) {
	request, err := uc.requests.GetRequest(ctx, offer.RequestID)
	if err != nil {
		return DispatchResult{}, err
	}

	payload := uc.payload(entity.NotificationNewOffer, request.ID,
		"Neues Angebot erhalten!",
		fmt.Sprintf("%s: %d€", orDefault(offer.WorkshopName, "Werkstatt"), offer.Price),
		"new-offer-"+offer.ID,
		uc.baseURL+"/#offers-"+request.ID,
	)
	payload.Data["offerId"] = offer.ID

	return uc.notify(ctx, customerRecipients(request), payload), nil
}

// OnMessageCreated alerts whichever party did not send the message.
func (uc *NotificationUseCase) OnMessageCreated(ctx context.Context, message *entity.Message) (DispatchResult, error) {
	request, err := uc.requests.GetRequest(ctx, message.RequestID)
	if err != nil {
		return DispatchResult{}, err
	}

	var recipients []string
	var title, link string
	switch message.SenderType {
	case entity.RoleCustomer:
		if request.AcceptedWorkshopID != "" {
			recipients = []string{request.AcceptedWorkshopID}
		}
		title = orDefault(request.Contact.Name, "Kunde")
		link = uc.baseURL + "/werkstatt.html#chat-" + request.ID
	case entity.RoleWorkshop:
		recipients = customerRecipients(request)
		title = "Werkstatt"
		if w, err := uc.workshops.GetByID(ctx, message.SenderID); err == nil && w.Name != "" {
			title = w.Name
		}
		link = uc.baseURL + "/#chat-" + request.ID
	default:
		title = "Neue Nachricht"
		link = uc.baseURL + "/#chat-" + request.ID
	}

	payload := uc.payload(entity.NotificationNewMessage, request.ID,
		title,
		preview(message.Text),
		"chat-"+request.ID,
		link,
	)
	payload.Data["messageId"] = message.ID

	return uc.notify(ctx, recipients, payload), nil
}

// OnOfferAccepted alerts the workshop whose offer won.
func (uc *NotificationUseCase) OnOfferAccepted(ctx context.Context, offer *entity.Offer) (DispatchResult, error) {
	request, err := uc.requests.GetRequest(ctx, offer.RequestID)
	if err != nil {
		return DispatchResult{}, err
	}

	payload := uc.payload(entity.NotificationOfferAccepted, request.ID,
		"Angebot angenommen!",
		orDefault(request.Contact.Name, "Kunde")+" - "+vehicleLabel(request.Vehicle),
		"accepted-"+offer.ID,
		uc.baseURL+"/werkstatt.html#request-"+request.ID,
	)
	payload.RequireInteraction = true
	payload.Data["offerId"] = offer.ID

	return uc.notify(ctx, []string{offer.WorkshopID}, payload), nil
}

// notify sends payload to every registered device of every recipient. A
// failing recipient does not stop the others.
func (uc *NotificationUseCase) notify(ctx context.Context, recipients []string, payload entity.PushPayload) DispatchResult {
	result := DispatchResult{Recipients: len(recipients)}

	for _, userID := range recipients {
		registrations, err := uc.tokens.ListByUser(ctx, userID)
		if err != nil {
			uc.log.Error("Loading push tokens of %s failed: %v", userID, err)
			continue
		}
		if len(registrations) == 0 {
			uc.log.Debug("No push tokens for %s", userID)
			continue
		}

		tokens := make([]string, 0, len(registrations))
		for _, r := range registrations {
			tokens = append(tokens, r.Token)
		}

		sent, err := uc.sender.SendMulticast(ctx, tokens, payload)
		if err != nil {
			uc.log.Error("Push to %s failed: %v", userID, err)
		}

		var invalid []string
		for _, r := range sent {
			switch {
			case r.Success:
				result.Sent++
			case r.Invalid:
				result.Failed++
				invalid = append(invalid, r.Token)
			default:
				result.Failed++
				uc.log.Warn("Push to a device of %s failed: %v", userID, r.Err)
			}
		}

		if len(invalid) > 0 {
			if err := uc.tokens.DeleteTokens(ctx, invalid); err != nil {
				uc.log.Error("Pruning %d invalid tokens of %s failed: %v", len(invalid), userID, err)
				continue
			}
			result.Pruned += len(invalid)
			uc.log.Info("Pruned %d invalid tokens of %s", len(invalid), userID)
		}
	}
	return result
}

func (uc *NotificationUseCase) payload(kind entity.NotificationType, requestID, title, body, tag, url string) entity.PushPayload {
	return entity.PushPayload{
		Title: title,
		Body:  body,
		Icon:  uc.baseURL + "/img/icon-192.png",
		Badge: uc.baseURL + "/img/badge-72.png",
		Tag:   tag,
		Data: map[string]string{
			"type":      string(kind),
			"requestId": requestID,
			"url":       url,
		},
	}
}

// customerRecipients is the owner, or the contact phone for requests created before sign-in.
func customerRecipients(request *entity.Request) []string {
	if request.CustomerID != "" {
		return []string{request.CustomerID}
	}
	if request.Contact.Phone != "" {
		return []string{request.Contact.Phone}
	}
	return nil
}

func zipPrefix(zip string) string {
	zip = strings.TrimSpace(zip)
	if len(zip) < 2 {
		return ""
	}
	return zip[:2]
}

func vehicleLabel(v entity.Vehicle) string {
	return orDefault(strings.TrimSpace(v.Brand+" "+v.Model), "Fahrzeug")
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= messagePreviewRunes {
		return text
	}
	return string(runes[:messagePreviewRunes]) + "..."
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
