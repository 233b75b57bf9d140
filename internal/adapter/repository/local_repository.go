package repository

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/domain/repository"
	"schadenschat/internal/infrastructure/localstore"
	"schadenschat/pkg/errors"
)

// LocalRepository keeps requests with their embedded offers in the device-local
// store. Everything it holds belongs to this device, so customer filters do not apply.
type LocalRepository struct {
	store *localstore.Store
	keys  localstore.Keys
}

func NewLocalRepository(store *localstore.Store, keys localstore.Keys) *LocalRepository {
	return &LocalRepository{
		store: store,
		keys:  keys,
	}
}

func (r *LocalRepository) Name() string {
	return "local"
}

func (r *LocalRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *LocalRepository) CreateRequest(ctx context.Context, request *entity.Request) error {
	return localstore.UpdateOf(r.store, r.keys.Requests(), func(requests []entity.Request) ([]entity.Request, error) {
		for _, existing := range requests {
			if existing.ID == request.ID {
				return nil, errors.Conflict("Request " + request.ID + " already exists")
			}
		}
		// Newest first, as the list views show them.
		return append([]entity.Request{*request}, requests...), nil
	})
}

func (r *LocalRepository) GetRequest(ctx context.Context, requestID string) (*entity.Request, error) {
	requests, err := localstore.ListOf[entity.Request](r.store, r.keys.Requests())
	if err != nil {
		return nil, err
	}
	for i := range requests {
		if requests[i].ID == requestID {
			return &requests[i], nil
		}
	}
	return nil, errors.NotFound("Request", nil)
}

func (r *LocalRepository) ListRequestsByCustomer(ctx context.Context, customerID string) ([]*entity.Request, error) {
	return r.requests(nil, 0)
}

func (r *LocalRepository) ListOpenRequests(ctx context.Context, limit int) ([]*entity.Request, error) {
	return r.requests(func(req *entity.Request) bool { return req.Status.AcceptsOffers() }, limit)
}

// SubscribeRequestsByCustomer reads once; the local store has no change stream.
func (r *LocalRepository) SubscribeRequestsByCustomer(ctx context.Context, customerID string, onChange func([]*entity.Request), onError func(error)) repository.Unsubscribe {
	requests, err := r.ListRequestsByCustomer(ctx, customerID)
	if err != nil {
		onError(err)
		return func() {}
	}
	onChange(requests)
	return func() {}
}

func (r *LocalRepository) SubscribeOpenRequests(ctx context.Context, limit int, onChange func([]*entity.Request), onError func(error)) repository.Unsubscribe {
	requests, err := r.ListOpenRequests(ctx, limit)
	if err != nil {
		onError(err)
		return func() {}
	}
	onChange(requests)
	return func() {}
}

func (r *LocalRepository) AcceptOffer(ctx context.Context, requestID, offerID, workshopID string, at time.Time) error {
	return r.updateRequest(requestID, func(req *entity.Request) error {
		for _, s := range entity.NotAcceptableStatuses() {
			if string(req.Status) == s {
				return errors.Conflict("Request " + requestID + " is already " + s)
			}
		}

		offer := findOffer(req, offerID)
		if offer == nil {
			return errors.NotFound("Offer", nil)
		}
		if offer.Status != entity.OfferStatusPending {
			return errors.Conflict("Offer " + offerID + " is no longer pending")
		}

		accepted := at
		offer.Status = entity.OfferStatusAccepted
		offer.AcceptedAt = &accepted
		req.Status = entity.RequestStatusAccepted
		req.AcceptedOfferID = offerID
		req.AcceptedWorkshopID = workshopID
		req.AcceptedAt = &accepted
		req.UpdatedAt = at
		return nil
	})
}

func (r *LocalRepository) TransitionRequest(ctx context.Context, requestID string, status entity.RequestStatus, at time.Time) error {
	return r.updateRequest(requestID, func(req *entity.Request) error {
		if !req.Status.CanTransitionTo(status) {
			return errors.Conflict("Request " + requestID + " cannot move from " + string(req.Status) + " to " + string(status))
		}
		req.Status = status
		req.UpdatedAt = at
		return nil
	})
}

func (r *LocalRepository) CreateOffer(ctx context.Context, offer *entity.Offer) error {
	return r.updateRequest(offer.RequestID, func(req *entity.Request) error {
		if findOffer(req, offer.ID) != nil {
			return errors.Conflict("Offer " + offer.ID + " already exists")
		}
		req.Offers = append(req.Offers, *offer)
		return nil
	})
}

func (r *LocalRepository) GetOffer(ctx context.Context, requestID, offerID string) (*entity.Offer, error) {
	req, err := r.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	offer := findOffer(req, offerID)
	if offer == nil {
		return nil, errors.NotFound("Offer", nil)
	}
	offer.RequestID = requestID
	return offer, nil
}

func (r *LocalRepository) ListOffers(ctx context.Context, requestID string) ([]*entity.Offer, error) {
	req, err := r.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return []*entity.Offer{}, nil
		}
		return nil, err
	}

	offers := make([]*entity.Offer, 0, len(req.Offers))
	for i := range req.Offers {
		offer := req.Offers[i]
		offer.RequestID = requestID
		offers = append(offers, &offer)
	}
	sort.SliceStable(offers, func(i, j int) bool { return offers[i].CreatedAt.After(offers[j].CreatedAt) })
	return offers, nil
}

func (r *LocalRepository) SubscribeOffers(ctx context.Context, requestID string, onChange func([]*entity.Offer), onError func(error)) repository.Unsubscribe {
	offers, err := r.ListOffers(ctx, requestID)
	if err != nil {
		onError(err)
		return func() {}
	}
	onChange(offers)
	return func() {}
}

func (r *LocalRepository) MarkOffersReceived(ctx context.Context, requestID string, at time.Time) error {
	return r.updateRequest(requestID, func(req *entity.Request) error {
		if req.Status.AcceptsOffers() {
			req.Status = entity.RequestStatusOffersReceived
			req.UpdatedAt = at
		}
		req.OffersCount++
		return nil
	})
}

func (r *LocalRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	return r.store.Append(r.keys.Messages(message.RequestID, message.OfferID), message)
}

func (r *LocalRepository) ListMessages(ctx context.Context, requestID, offerID string) ([]*entity.Message, error) {
	stored, err := localstore.ListOf[entity.Message](r.store, r.keys.Messages(requestID, offerID))
	if err != nil {
		return nil, err
	}

	messages := make([]*entity.Message, 0, len(stored))
	for i := range stored {
		messages = append(messages, &stored[i])
	}
	sort.SliceStable(messages, func(i, j int) bool { return messages[i].CreatedAt.Before(messages[j].CreatedAt) })
	return messages, nil
}

func (r *LocalRepository) SubscribeMessages(ctx context.Context, requestID, offerID string, onChange func([]*entity.Message), onError func(error)) repository.Unsubscribe {
	messages, err := r.ListMessages(ctx, requestID, offerID)
	if err != nil {
		onError(err)
		return func() {}
	}
	onChange(messages)
	return func() {}
}

func (r *LocalRepository) MarkMessageRead(ctx context.Context, requestID, offerID, messageID string) error {
	found := false
	err := localstore.UpdateOf(r.store, r.keys.Messages(requestID, offerID), func(messages []entity.Message) ([]entity.Message, error) {
		for i := range messages {
			if messages[i].ID == messageID {
				messages[i].Read = true
				found = true
			}
		}
		return messages, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return errors.NotFound("Message", nil)
	}
	return nil
}

func (r *LocalRepository) PendingRequests(ctx context.Context) ([]*entity.Request, error) {
	return r.requests(nil, 0)
}

func (r *LocalRepository) ForgetRequests(ctx context.Context, requestIDs []string) error {
	forget := make(map[string]bool, len(requestIDs))
	for _, id := range requestIDs {
		forget[id] = true
	}
	_, err := r.store.Remove(r.keys.Requests(), func(raw json.RawMessage) bool {
		var record struct {
			ID string `json:"id"`
		}
		return json.Unmarshal(raw, &record) == nil && forget[record.ID]
	})
	return err
}

func (r *LocalRepository) Clear(ctx context.Context) error {
	return r.store.Delete(r.keys.Requests())
}

func (r *LocalRepository) requests(keep func(*entity.Request) bool, limit int) ([]*entity.Request, error) {
	stored, err := localstore.ListOf[entity.Request](r.store, r.keys.Requests())
	if err != nil {
		return nil, err
	}

	requests := make([]*entity.Request, 0, len(stored))
	for i := range stored {
		if keep != nil && !keep(&stored[i]) {
			continue
		}
		requests = append(requests, &stored[i])
	}
	sort.SliceStable(requests, func(i, j int) bool { return requests[i].CreatedAt.After(requests[j].CreatedAt) })
	if limit > 0 && len(requests) > limit {
		requests = requests[:limit]
	}
	return requests, nil
}

// updateRequest applies fn to one stored request inside a single read-modify-write.
func (r *LocalRepository) updateRequest(requestID string, fn func(*entity.Request) error) error {
	found := false
	err := localstore.UpdateOf(r.store, r.keys.Requests(), func(requests []entity.Request) ([]entity.Request, error) {
		for i := range requests {
			if requests[i].ID != requestID {
				continue
			}
			found = true
			if err := fn(&requests[i]); err != nil {
				return nil, err
			}
			break
		}
		return requests, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return errors.NotFound("Request", nil)
	}
	return nil
}

func findOffer(req *entity.Request, offerID string) *entity.Offer {
	for i := range req.Offers {
		if req.Offers[i].ID == offerID {
			return &req.Offers[i]
		}
	}
	return nil
}
