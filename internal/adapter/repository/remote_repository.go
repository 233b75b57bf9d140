package repository

import (
	"context"
	"sort"
	"time"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/domain/repository"
	"schadenschat/internal/infrastructure/docstore"
	"schadenschat/pkg/errors"
	"schadenschat/pkg/logger"
)

const (
	CollectionRequests          = "requests"
	CollectionOffers            = "offers"
	CollectionMessages          = "messages"
	CollectionWorkshops         = "workshops"
	CollectionPushTokens        = "fcmTokens"
	CollectionPushSubscriptions = "pushSubscriptions"
	CollectionAnalytics         = "analytics"

	// Firestore caps a transaction at 500 writes.
	maxBatchWrites = 500
)

type RemoteRepository struct {
	store docstore.Store
	log   logger.Component
}

func NewRemoteRepository(store docstore.Store) *RemoteRepository {
	return &RemoteRepository{
		store: store,
		log:   logger.For("remote-repository"),
	}
}

func offersPath(requestID string) string {
	return docstore.Sub(CollectionRequests, requestID, CollectionOffers)
}

func messagesPath(requestID string) string {
	return docstore.Sub(CollectionRequests, requestID, CollectionMessages)
}

func (r *RemoteRepository) Name() string {
	return "remote"
}

func (r *RemoteRepository) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func (r *RemoteRepository) CreateRequest(ctx context.Context, request *entity.Request) error {
	_, err := r.store.Create(ctx, CollectionRequests, request.ID, request)
	return err
}

func (r *RemoteRepository) GetRequest(ctx context.Context, requestID string) (*entity.Request, error) {
	doc, err := r.store.Get(ctx, CollectionRequests, requestID)
	if err != nil {
		return nil, err
	}
	if !doc.Exists {
		return nil, errors.NotFound("Request", nil)
	}
	return decodeRequest(doc)
}

func (r *RemoteRepository) ListRequestsByCustomer(ctx context.Context, customerID string) ([]*entity.Request, error) {
	docs, err := docstore.All(r.store.Query(ctx, customerRequestsQuery(customerID)))
	if err != nil {
		return nil, err
	}
	return r.decodeRequests(docs), nil
}

func (r *RemoteRepository) ListOpenRequests(ctx context.Context, limit int) ([]*entity.Request, error) {
	docs, err := docstore.All(r.store.Query(ctx, openRequestsQuery(limit)))
	if err != nil {
		return nil, err
	}
	return r.decodeRequests(docs), nil
}

func (r *RemoteRepository) SubscribeRequestsByCustomer(ctx context.Context, customerID string, onChange func([]*entity.Request), onError func(error)) repository.Unsubscribe {
	return r.store.Subscribe(ctx, customerRequestsQuery(customerID), func(s docstore.Snapshot) {
		onChange(r.decodeRequests(s.Docs))
	}, onError)
}

func (r *RemoteRepository) SubscribeOpenRequests(ctx context.Context, limit int, onChange func([]*entity.Request), onError func(error)) repository.Unsubscribe {
	return r.store.Subscribe(ctx, openRequestsQuery(limit), func(s docstore.Snapshot) {
		onChange(r.decodeRequests(s.Docs))
	}, onError)
}

func (r *RemoteRepository) AcceptOffer(ctx context.Context, requestID, offerID, workshopID string, at time.Time) error {
	return r.store.BatchWrite(ctx, []docstore.Op{
		{
			Kind:       docstore.OpUpdate,
			Collection: offersPath(requestID),
			ID:         offerID,
			Updates: []docstore.Update{
				{Path: "status", Value: string(entity.OfferStatusAccepted)},
				{Path: "acceptedAt", Value: at},
			},
			Precondition: &docstore.Precondition{Field: "status", In: []string{string(entity.OfferStatusPending)}},
		},
		{
			Kind:       docstore.OpUpdate,
			Collection: CollectionRequests,
			ID:         requestID,
			Updates: []docstore.Update{
				{Path: "status", Value: string(entity.RequestStatusAccepted)},
				{Path: "acceptedOfferId", Value: offerID},
				{Path: "acceptedWorkshopId", Value: workshopID},
				{Path: "acceptedAt", Value: at},
				{Path: "updatedAt", Value: at},
			},
			Precondition: &docstore.Precondition{Field: "status", NotIn: entity.NotAcceptableStatuses()},
		},
	})
}

func (r *RemoteRepository) TransitionRequest(ctx context.Context, requestID string, status entity.RequestStatus, at time.Time) error {
	return r.store.BatchWrite(ctx, []docstore.Op{{
		Kind:       docstore.OpUpdate,
		Collection: CollectionRequests,
		ID:         requestID,
		Updates: []docstore.Update{
			{Path: "status", Value: string(status)},
			{Path: "updatedAt", Value: at},
		},
		Precondition: &docstore.Precondition{Field: "status", In: entity.StatusesFrom(status)},
	}})
}

func (r *RemoteRepository) CreateOffer(ctx context.Context, offer *entity.Offer) error {
	_, err := r.store.Create(ctx, offersPath(offer.RequestID), offer.ID, offer)
	return err
}

func (r *RemoteRepository) GetOffer(ctx context.Context, requestID, offerID string) (*entity.Offer, error) {
	doc, err := r.store.Get(ctx, offersPath(requestID), offerID)
	if err != nil {
		return nil, err
	}
	if !doc.Exists {
		return nil, errors.NotFound("Offer", nil)
	}

	var offer entity.Offer
	if err := doc.DataTo(&offer); err != nil {
		return nil, errors.Internal("Failed to parse offer data", err)
	}
	offer.ID = doc.ID
	offer.RequestID = requestID
	return &offer, nil
}

func (r *RemoteRepository) ListOffers(ctx context.Context, requestID string) ([]*entity.Offer, error) {
	docs, err := docstore.All(r.store.Query(ctx, offersQuery(requestID)))
	if err != nil {
		return nil, err
	}
	return r.decodeOffers(docs), nil
}

func (r *RemoteRepository) SubscribeOffers(ctx context.Context, requestID string, onChange func([]*entity.Offer), onError func(error)) repository.Unsubscribe {
	return r.store.Subscribe(ctx, offersQuery(requestID), func(s docstore.Snapshot) {
		onChange(r.decodeOffers(s.Docs))
	}, onError)
}

func (r *RemoteRepository) MarkOffersReceived(ctx context.Context, requestID string, at time.Time) error {
	err := r.store.BatchWrite(ctx, []docstore.Op{{
		Kind:       docstore.OpUpdate,
		Collection: CollectionRequests,
		ID:         requestID,
		Updates: []docstore.Update{
			{Path: "status", Value: string(entity.RequestStatusOffersReceived)},
			{Path: "offersCount", Value: docstore.Increment(1)},
			{Path: "updatedAt", Value: at},
		},
		Precondition: &docstore.Precondition{Field: "status", In: entity.OpenStatuses()},
	}})
	if errors.Is(err, errors.CodeConflict) {
		// The request moved past the open states meanwhile; only count the offer.
		return r.store.Update(ctx, CollectionRequests, requestID, []docstore.Update{
			{Path: "offersCount", Value: docstore.Increment(1)},
		})
	}
	return err
}

func (r *RemoteRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	_, err := r.store.Create(ctx, messagesPath(message.RequestID), message.ID, message)
	return err
}

// ListMessages returns the whole request conversation; offerID only scopes local storage.
func (r *RemoteRepository) ListMessages(ctx context.Context, requestID, offerID string) ([]*entity.Message, error) {
	docs, err := docstore.All(r.store.Query(ctx, messagesQuery(requestID)))
	if err != nil {
		return nil, err
	}
	return r.decodeMessages(docs), nil
}

func (r *RemoteRepository) SubscribeMessages(ctx context.Context, requestID, offerID string, onChange func([]*entity.Message), onError func(error)) repository.Unsubscribe {
	return r.store.Subscribe(ctx, messagesQuery(requestID), func(s docstore.Snapshot) {
		onChange(r.decodeMessages(s.Docs))
	}, onError)
}

func (r *RemoteRepository) MarkMessageRead(ctx context.Context, requestID, offerID, messageID string) error {
	return r.store.Update(ctx, messagesPath(requestID), messageID, []docstore.Update{
		{Path: "read", Value: true},
	})
}

// MergeRequest creates the request, or fills in only the fields the remote copy lacks.
func (r *RemoteRepository) MergeRequest(ctx context.Context, request *entity.Request) error {
	doc, err := r.store.Get(ctx, CollectionRequests, request.ID)
	if err != nil {
		return err
	}

	if !doc.Exists {
		_, err := r.store.Create(ctx, CollectionRequests, request.ID, request)
		if !errors.Is(err, errors.CodeConflict) {
			return err
		}
		// Someone created it between our read and write; merge into theirs.
		if doc, err = r.store.Get(ctx, CollectionRequests, request.ID); err != nil {
			return err
		}
	}

	existing := doc.Data()
	if owner := doc.String("customerId"); owner != "" && owner != request.CustomerID {
		return errors.WriteRejected("Request "+request.ID+" belongs to another customer", nil)
	}

	var updates []docstore.Update
	for field, value := range request.Fields() {
		if _, present := existing[field]; !present {
			updates = append(updates, docstore.Update{Path: field, Value: value})
		}
	}
	if len(updates) == 0 {
		return nil
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].Path < updates[j].Path })
	return r.store.Update(ctx, CollectionRequests, request.ID, updates)
}

func (r *RemoteRepository) ListExpiredRequests(ctx context.Context, before time.Time, limit int) ([]*entity.Request, error) {
	q := docstore.Collection(CollectionRequests).
		Where("status", docstore.OpIn, entity.TerminalStatuses()).
		Where("updatedAt", docstore.OpLess, before).
		WithLimit(limit)

	docs, err := docstore.All(r.store.Query(ctx, q))
	if err != nil {
		return nil, err
	}
	return r.decodeRequests(docs), nil
}

// PurgeRequest deletes a terminal request together with its offers and
// messages and returns how many documents went.
func (r *RemoteRepository) PurgeRequest(ctx context.Context, requestID string) (int, error) {
	var children []docstore.Op
	for _, sub := range []string{offersPath(requestID), messagesPath(requestID)} {
		docs, err := docstore.All(r.store.Query(ctx, docstore.Collection(sub)))
		if err != nil {
			return 0, err
		}
		for _, doc := range docs {
			children = append(children, docstore.Op{Kind: docstore.OpDelete, Collection: sub, ID: doc.ID})
		}
	}

	parent := docstore.Op{
		Kind:         docstore.OpDelete,
		Collection:   CollectionRequests,
		ID:           requestID,
		Precondition: &docstore.Precondition{Field: "status", In: entity.TerminalStatuses()},
	}

	// Very long conversations do not fit one transaction; their oldest children go first.
	purged := 0
	for len(children) >= maxBatchWrites {
		if err := r.store.BatchWrite(ctx, children[:maxBatchWrites-1]); err != nil {
			return purged, err
		}
		purged += maxBatchWrites - 1
		r.log.Info("Purged %d children of request %s ahead of the final batch", purged, requestID)
		children = children[maxBatchWrites-1:]
	}

	if err := r.store.BatchWrite(ctx, append(children, parent)); err != nil {
		return purged, err
	}
	return purged + len(children) + 1, nil
}

func customerRequestsQuery(customerID string) docstore.Query {
	return docstore.Collection(CollectionRequests).
		Where("customerId", docstore.OpEqual, customerID).
		OrderBy("createdAt", true)
}

func openRequestsQuery(limit int) docstore.Query {
	return docstore.Collection(CollectionRequests).
		Where("status", docstore.OpIn, entity.OpenStatuses()).
		OrderBy("createdAt", true).
		WithLimit(limit)
}

func offersQuery(requestID string) docstore.Query {
	return docstore.Collection(offersPath(requestID)).OrderBy("createdAt", true)
}

func messagesQuery(requestID string) docstore.Query {
	return docstore.Collection(messagesPath(requestID)).OrderBy("createdAt", false)
}

func decodeRequest(doc *docstore.Document) (*entity.Request, error) {
	var request entity.Request
	if err := doc.DataTo(&request); err != nil {
		return nil, errors.Internal("Failed to parse request data", err)
	}
	request.ID = doc.ID
	return &request, nil
}

func (r *RemoteRepository) decodeRequests(docs []*docstore.Document) []*entity.Request {
	requests := make([]*entity.Request, 0, len(docs))
	for _, doc := range docs {
		request, err := decodeRequest(doc)
		if err != nil {
			r.log.Warn("Skipping unreadable request %s: %v", doc.ID, err)
			continue
		}
		requests = append(requests, request)
	}
	return requests
}

func (r *RemoteRepository) decodeOffers(docs []*docstore.Document) []*entity.Offer {
	offers := make([]*entity.Offer, 0, len(docs))
	for _, doc := range docs {
		var offer entity.Offer
		if err := doc.DataTo(&offer); err != nil {
			r.log.Warn("Skipping unreadable offer %s: %v", doc.ID, err)
			continue
		}
		offer.ID = doc.ID
		offer.RequestID = doc.ParentID()
		offers = append(offers, &offer)
	}
	return offers
}

func (r *RemoteRepository) decodeMessages(docs []*docstore.Document) []*entity.Message {
	messages := make([]*entity.Message, 0, len(docs))
	for _, doc := range docs {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			r.log.Warn("Skipping unreadable message %s: %v", doc.ID, err)
			continue
		}
		message.ID = doc.ID
		message.RequestID = doc.ParentID()
		messages = append(messages, &message)
	}
	return messages
}
