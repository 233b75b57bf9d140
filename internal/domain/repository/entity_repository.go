package repository

import (
	"context"
	"time"

	"schadenschat/internal/domain/entity"
)

// Unsubscribe stops a live subscription. Calling it more than once is safe.
type Unsubscribe func()

// EntityRepository stores requests with their offers and messages. There is a
// remote and a local implementation; which one is primary is decided once at
// startup.
type EntityRepository interface {
	Name() string
	Ping(ctx context.Context) error

	CreateRequest(ctx context.Context, request *entity.Request) error
	GetRequest(ctx context.Context, requestID string) (*entity.Request, error)
	ListRequestsByCustomer(ctx context.Context, customerID string) ([]*entity.Request, error)
	ListOpenRequests(ctx context.Context, limit int) ([]*entity.Request, error)
	SubscribeRequestsByCustomer(ctx context.Context, customerID string, onChange func([]*entity.Request), onError func(error)) Unsubscribe
	SubscribeOpenRequests(ctx context.Context, limit int, onChange func([]*entity.Request), onError func(error)) Unsubscribe
	// AcceptOffer flips the offer and its request to accepted in one atomic
	// write, failing with CONFLICT if either is no longer eligible.
	AcceptOffer(ctx context.Context, requestID, offerID, workshopID string, at time.Time) error
	// TransitionRequest moves a request to status if its current status allows it.
	TransitionRequest(ctx context.Context, requestID string, status entity.RequestStatus, at time.Time) error

	CreateOffer(ctx context.Context, offer *entity.Offer) error
	GetOffer(ctx context.Context, requestID, offerID string) (*entity.Offer, error)
	ListOffers(ctx context.Context, requestID string) ([]*entity.Offer, error)
	SubscribeOffers(ctx context.Context, requestID string, onChange func([]*entity.Offer), onError func(error)) Unsubscribe
	// MarkOffersReceived bumps the offer counter and moves an open request to offers_received.
	MarkOffersReceived(ctx context.Context, requestID string, at time.Time) error

	CreateMessage(ctx context.Context, message *entity.Message) error
	ListMessages(ctx context.Context, requestID, offerID string) ([]*entity.Message, error)
	SubscribeMessages(ctx context.Context, requestID, offerID string, onChange func([]*entity.Message), onError func(error)) Unsubscribe
	MarkMessageRead(ctx context.Context, requestID, offerID, messageID string) error
}

// PendingSync is the local side of reconciliation: requests written while
// the remote store or an identity was missing.
type PendingSync interface {
	PendingRequests(ctx context.Context) ([]*entity.Request, error)
	// ForgetRequests drops the given requests in one read-modify-write, so
	// records written meanwhile survive.
	ForgetRequests(ctx context.Context, requestIDs []string) error
	Clear(ctx context.Context) error
}

// RequestMerger writes a request without overwriting fields the remote copy already has.
type RequestMerger interface {
	MergeRequest(ctx context.Context, request *entity.Request) error
}

// RetentionRepository finds and purges requests past their retention age.
type RetentionRepository interface {
	ListExpiredRequests(ctx context.Context, before time.Time, limit int) ([]*entity.Request, error)
	PurgeRequest(ctx context.Context, requestID string) (int, error)
}
