package usecase

import (
	"context"
	"strings"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/domain/repository"
	"schadenschat/pkg/errors"
	"schadenschat/pkg/utils"
)

// Channel names understood by Subscribe.
const (
	ChannelMyRequests   = "requests:mine"
	ChannelOpenRequests = "requests:open"
	channelOffers       = "offers:"
	channelMessages     = "messages:"
)

// RealtimeUseCase maps channel names to shared live subscriptions.
type RealtimeUseCase struct {
	identity IdentityProvider
	requests *Hub[[]*entity.Request]
	offers   *Hub[[]*entity.Offer]
	messages *Hub[[]*entity.Message]
}

func NewRealtimeUseCase(identity IdentityProvider, requestUC *RequestUseCase, offerUC *OfferUseCase, messageUC *MessageUseCase) *RealtimeUseCase {
	return &RealtimeUseCase{
		identity: identity,
		requests: NewHub[[]*entity.Request](func(ctx context.Context, topic string, emit func([]*entity.Request)) (repository.Unsubscribe, error) {
			if strings.HasPrefix(topic, ChannelOpenRequests) {
				return requestUC.SubscribeOpenRequests(ctx, utils.DefaultLimit, emit)
			}
			return requestUC.SubscribeMyRequests(ctx, emit), nil
		}),
		offers: NewHub[[]*entity.Offer](func(ctx context.Context, topic string, emit func([]*entity.Offer)) (repository.Unsubscribe, error) {
			return offerUC.SubscribeOffers(ctx, strings.TrimPrefix(topic, channelOffers), emit), nil
		}),
		messages: NewHub[[]*entity.Message](func(ctx context.Context, topic string, emit func([]*entity.Message)) (repository.Unsubscribe, error) {
			requestID, offerID, _ := strings.Cut(strings.TrimPrefix(topic, channelMessages), ":")
			return messageUC.SubscribeMessages(ctx, requestID, offerID, emit), nil
		}),
	}
}

// Subscribe attaches callback to channel: requests:mine, requests:open,
// offers:{requestId} or messages:{requestId}[:{offerId}].
func (uc *RealtimeUseCase) Subscribe(channel string, callback func(data interface{})) (repository.Unsubscribe, error) {
	switch {
	case channel == ChannelMyRequests:
		// Keyed per identity so a sign-in does not reuse the anonymous stream.
		owner := "anonymous"
		if identity := uc.identity.GetCurrentIdentity(); identity != nil {
			owner = identity.ID
		}
		return uc.requests.Subscribe(ChannelMyRequests+":"+owner, func(v []*entity.Request) { callback(v) })
	case channel == ChannelOpenRequests:
		return uc.requests.Subscribe(ChannelOpenRequests, func(v []*entity.Request) { callback(v) })
	case strings.HasPrefix(channel, channelOffers) && len(channel) > len(channelOffers):
		return uc.offers.Subscribe(channel, func(v []*entity.Offer) { callback(v) })
	case strings.HasPrefix(channel, channelMessages) && len(channel) > len(channelMessages):
		return uc.messages.Subscribe(channel, func(v []*entity.Message) { callback(v) })
	}
	return nil, errors.Validation("unknown channel " + channel)
}

// LiveSubscriptions reports the number of upstream subscriptions held open.
func (uc *RealtimeUseCase) LiveSubscriptions() int {
	return uc.requests.Topics() + uc.offers.Topics() + uc.messages.Topics()
}
