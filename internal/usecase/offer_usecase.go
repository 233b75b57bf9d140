package usecase

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/domain/repository"
	"schadenschat/pkg/errors"
	"schadenschat/pkg/logger"
	"schadenschat/pkg/utils"
)

type OfferUseCase struct {
	strategy *Strategy
	identity IdentityProvider
	validate *validator.Validate
	now      func() time.Time
	log      logger.Component
}

func NewOfferUseCase(strategy *Strategy, identity IdentityProvider) *OfferUseCase {
	return &OfferUseCase{
		strategy: strategy,
		identity: identity,
		validate: utils.NewValidator(),
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.For("offers"),
	}
}

// SendOffer quotes on a request as the current workshop. A workshop has at
// most one offer per request; its ID is the workshop ID.
func (uc *OfferUseCase) SendOffer(ctx context.Context, requestID string, input entity.OfferInput) (*entity.Offer, error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, utils.ValidationError(err)
	}

	identity, err := uc.identity.RequireIdentity()
	if err != nil {
		return nil, err
	}
	if identity.Role != entity.RoleWorkshop {
		return nil, errors.WriteRejected("Only workshops can send offers", nil)
	}

	request, _, err := withFallback(uc.strategy, "get request", func(repo repository.EntityRepository) (*entity.Request, error) {
		return repo.GetRequest(ctx, requestID)
	})
	if err != nil {
		return nil, err
	}
	if !request.Status.AcceptsOffers() {
		return nil, errors.Conflict("Request is no longer accepting offers")
	}

	now := uc.now()
	offer := &entity.Offer{
		ID:           identity.ID,
		RequestID:    requestID,
		WorkshopID:   identity.ID,
		WorkshopName: input.WorkshopName,
		Price:        input.Price,
		Duration:     input.Duration,
		Note:         input.Note,
		Status:       entity.OfferStatusPending,
		CreatedAt:    now,
	}

	source, err := writeWithFallback(uc.strategy, "create offer", func(repo repository.EntityRepository) error {
		return repo.CreateOffer(ctx, offer)
	})
	if errors.Is(err, errors.CodeConflict) {
		return nil, errors.Conflict("This workshop already sent an offer for the request")
	}
	if err != nil {
		return nil, err
	}

	// The counter is cosmetic; a missed update must not fail the offer.
	if _, err := writeWithFallback(uc.strategy, "mark offers received", func(repo repository.EntityRepository) error {
		return repo.MarkOffersReceived(ctx, requestID, now)
	}); err != nil {
		uc.log.Warn("Offer %s stored but request %s was not updated: %v", offer.ID, requestID, err)
	}

	uc.log.Info("Workshop %s sent offer on request %s (%s store)", identity.ID, requestID, source)
	return offer, nil
}

func (uc *OfferUseCase) GetOffers(ctx context.Context, requestID string) ([]*entity.Offer, string, error) {
	return withFallback(uc.strategy, "get offers", func(repo repository.EntityRepository) ([]*entity.Offer, error) {
		return repo.ListOffers(ctx, requestID)
	})
}

func (uc *OfferUseCase) SubscribeOffers(ctx context.Context, requestID string, callback func([]*entity.Offer)) repository.Unsubscribe {
	return subscribeWithFallback(uc.strategy, "subscribe offers", callback,
		func(repo repository.EntityRepository, onChange func([]*entity.Offer), onError func(error)) repository.Unsubscribe {
			return repo.SubscribeOffers(ctx, requestID, onChange, onError)
		})
}
