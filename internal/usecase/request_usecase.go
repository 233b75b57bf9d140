package usecase

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/domain/repository"
	"schadenschat/internal/infrastructure/storage"
	"schadenschat/pkg/errors"
	"schadenschat/pkg/logger"
	"schadenschat/pkg/utils"
)

type RequestUseCase struct {
	strategy          *Strategy
	identity          IdentityProvider
	photos            PhotoStore
	uploadConcurrency int
	validate          *validator.Validate
	now               func() time.Time
	log               logger.Component
}

// NewRequestUseCase wires the request operations. photos may be nil, in which
// case inline photo data is stored as is.
func NewRequestUseCase(strategy *Strategy, identity IdentityProvider, photos PhotoStore, uploadConcurrency int) *RequestUseCase {
	if uploadConcurrency <= 0 {
		uploadConcurrency = 4
	}
	return &RequestUseCase{
		strategy:          strategy,
		identity:          identity,
		photos:            photos,
		uploadConcurrency: uploadConcurrency,
		validate:          utils.NewValidator(),
		now:               func() time.Time { return time.Now().UTC() },
		log:               logger.For("requests"),
	}
}

type createRequestCommand struct {
	Input  entity.RequestInput
	Photos []entity.PhotoInput `validate:"min=1,dive"`
}

type SyncResult struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

func (uc *RequestUseCase) CreateRequest(ctx context.Context, input entity.RequestInput, photos []entity.PhotoInput) (*entity.Request, error) {
	cmd := createRequestCommand{Input: input, Photos: photos}
	if err := uc.validate.Struct(cmd); err != nil {
		return nil, utils.ValidationError(err)
	}

	now := uc.now()
	request := &entity.Request{
		ID:     uuid.New().String(),
		Status: entity.RequestStatusNew,
		Damage: entity.Damage{
			Type:        input.DamageType,
			Location:    input.DamageLocation,
			Description: input.Description,
		},
		Vehicle:     input.Vehicle,
		Location:    input.Location,
		Contact:     input.Contact,
		OffersCount: 0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	raw := make([]string, 0, len(photos))
	for _, p := range photos {
		raw = append(raw, p.Data)
	}

	identity := uc.identity.GetCurrentIdentity()
	if identity == nil {
		// Without an owner the request waits locally until sign-in triggers a sync.
		request.Photos = raw
		if err := uc.strategy.Local.CreateRequest(ctx, request); err != nil {
			return nil, err
		}
		uc.log.Info("Stored request %s locally pending sign-in", request.ID)
		return request, nil
	}

	request.CustomerID = identity.ID
	request.Photos = raw
	if uc.strategy.Remote() {
		request.Photos = uc.uploadPhotos(ctx, request.ID, raw)
	}

	source, err := writeWithFallback(uc.strategy, "create request", func(repo repository.EntityRepository) error {
		return repo.CreateRequest(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info("Created request %s in %s store", request.ID, source)
	return request, nil
}

// uploadPhotos moves inline photos to blob storage concurrently. A photo whose
// upload fails keeps its inline data.
func (uc *RequestUseCase) uploadPhotos(ctx context.Context, requestID string, photos []string) []string {
	out := make([]string, len(photos))
	copy(out, photos)
	if uc.photos == nil {
		return out
	}

	var g errgroup.Group
	g.SetLimit(uc.uploadConcurrency)
	for i, photo := range photos {
		if !storage.IsInline(photo) {
			continue
		}
		i, photo := i, photo
		g.Go(func() error {
			data, contentType, err := storage.DecodeDataURL(photo)
			if err != nil {
				uc.log.Warn("Photo %d of request %s is not a valid data URL, keeping it inline: %v", i, requestID, err)
				return nil
			}
			url, err := uc.photos.Upload(ctx, storage.PhotoObjectName(requestID, i, contentType, uc.now()), data, contentType)
			if err != nil {
				uc.log.Warn("Upload of photo %d of request %s failed, keeping it inline: %v", i, requestID, err)
				return nil
			}
			out[i] = url
			return nil
		})
	}
	g.Wait()
	return out
}

func (uc *RequestUseCase) GetRequest(ctx context.Context, requestID string) (*entity.Request, error) {
	request, _, err := withFallback(uc.strategy, "get request", func(repo repository.EntityRepository) (*entity.Request, error) {
		return repo.GetRequest(ctx, requestID)
	})
	return request, err
}

// ListMyRequests reads remote requests of the current customer, or the local
// store when there is no identity or no reachable remote. The two are never merged.
func (uc *RequestUseCase) ListMyRequests(ctx context.Context) ([]*entity.Request, string, error) {
	identity := uc.identity.GetCurrentIdentity()
	if identity == nil {
		requests, err := uc.strategy.Local.ListRequestsByCustomer(ctx, "")
		return requests, uc.strategy.Local.Name(), err
	}

	return withFallback(uc.strategy, "list my requests", func(repo repository.EntityRepository) ([]*entity.Request, error) {
		return repo.ListRequestsByCustomer(ctx, identity.ID)
	})
}

func (uc *RequestUseCase) SubscribeMyRequests(ctx context.Context, callback func([]*entity.Request)) repository.Unsubscribe {
	identity := uc.identity.GetCurrentIdentity()
	if identity == nil {
		return uc.strategy.Local.SubscribeRequestsByCustomer(ctx, "", callback, func(err error) {
			uc.log.Error("Local read of my requests failed: %v", err)
		})
	}

	return subscribeWithFallback(uc.strategy, "subscribe my requests", callback,
		func(repo repository.EntityRepository, onChange func([]*entity.Request), onError func(error)) repository.Unsubscribe {
			return repo.SubscribeRequestsByCustomer(ctx, identity.ID, onChange, onError)
		})
}

// ListOpenRequests is the workshop view of requests still taking offers.
func (uc *RequestUseCase) ListOpenRequests(ctx context.Context, limit int) ([]*entity.Request, string, error) {
	if _, err := uc.requireWorkshop(); err != nil {
		return nil, "", err
	}
	return withFallback(uc.strategy, "list open requests", func(repo repository.EntityRepository) ([]*entity.Request, error) {
		return repo.ListOpenRequests(ctx, limit)
	})
}

func (uc *RequestUseCase) SubscribeOpenRequests(ctx context.Context, limit int, callback func([]*entity.Request)) (repository.Unsubscribe, error) {
	if _, err := uc.requireWorkshop(); err != nil {
		return nil, err
	}
	return subscribeWithFallback(uc.strategy, "subscribe open requests", callback,
		func(repo repository.EntityRepository, onChange func([]*entity.Request), onError func(error)) repository.Unsubscribe {
			return repo.SubscribeOpenRequests(ctx, limit, onChange, onError)
		}), nil
}

// AcceptOffer lets the owning customer accept one offer. Offer and request
// flip together; a request that is no longer acceptable yields CONFLICT.
func (uc *RequestUseCase) AcceptOffer(ctx context.Context, requestID, offerID string) (*entity.Request, error) {
	identity, err := uc.identity.RequireIdentity()
	if err != nil {
		return nil, err
	}

	request, err := uc.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(request, identity); err != nil {
		return nil, err
	}

	offer, _, err := withFallback(uc.strategy, "get offer", func(repo repository.EntityRepository) (*entity.Offer, error) {
		return repo.GetOffer(ctx, requestID, offerID)
	})
	if err != nil {
		return nil, err
	}

	at := uc.now()
	if _, err := writeWithFallback(uc.strategy, "accept offer", func(repo repository.EntityRepository) error {
		return repo.AcceptOffer(ctx, requestID, offerID, offer.WorkshopID, at)
	}); err != nil {
		return nil, err
	}

	uc.log.Info("Offer %s accepted on request %s", offerID, requestID)
	return uc.GetRequest(ctx, requestID)
}

func (uc *RequestUseCase) CancelRequest(ctx context.Context, requestID string) (*entity.Request, error) {
	identity, err := uc.identity.RequireIdentity()
	if err != nil {
		return nil, err
	}

	request, err := uc.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(request, identity); err != nil {
		return nil, err
	}

	return uc.transition(ctx, requestID, entity.RequestStatusCancelled)
}

// AdvanceStatus moves an accepted request through in_progress to completed.
// Only the workshop whose offer was accepted may do this.
func (uc *RequestUseCase) AdvanceStatus(ctx context.Context, requestID string, to entity.RequestStatus) (*entity.Request, error) {
	if to != entity.RequestStatusInProgress && to != entity.RequestStatusCompleted {
		return nil, errors.Validation("Status can only be advanced to in_progress or completed")
	}

	identity, err := uc.requireWorkshop()
	if err != nil {
		return nil, err
	}

	request, err := uc.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.AcceptedWorkshopID != identity.ID {
		return nil, errors.WriteRejected("Only the accepted workshop can advance this request", nil)
	}

	return uc.transition(ctx, requestID, to)
}

func (uc *RequestUseCase) transition(ctx context.Context, requestID string, to entity.RequestStatus) (*entity.Request, error) {
	at := uc.now()
	if _, err := writeWithFallback(uc.strategy, "transition request", func(repo repository.EntityRepository) error {
		return repo.TransitionRequest(ctx, requestID, to, at)
	}); err != nil {
		return nil, err
	}
	return uc.GetRequest(ctx, requestID)
}

// SyncLocalToRemote merges locally stored requests of the current identity
// into the remote store. Only confirmed records leave the local store.
func (uc *RequestUseCase) SyncLocalToRemote(ctx context.Context) (SyncResult, error) {
	var result SyncResult

	identity, err := uc.identity.RequireIdentity()
	if err != nil {
		return result, err
	}
	if !uc.strategy.Remote() {
		return result, errors.StoreUnavailable("Remote store is not in use, nothing can be synced", nil)
	}

	pending, err := uc.strategy.Local.PendingRequests(ctx)
	if err != nil {
		return result, err
	}

	var confirmed []string
	for _, local := range pending {
		if local.CustomerID != "" && local.CustomerID != identity.ID {
			continue
		}

		record := *local
		record.CustomerID = identity.ID
		record.Offers = nil
		record.Photos = uc.uploadPhotos(ctx, record.ID, local.Photos)
		syncedAt := uc.now()
		record.SyncedAt = &syncedAt

		if err := uc.strategy.Merger.MergeRequest(ctx, &record); err != nil {
			uc.log.Warn("Sync of request %s failed, keeping it locally: %v", record.ID, err)
			result.Failed++
			continue
		}
		confirmed = append(confirmed, record.ID)
		result.Synced++
	}

	if len(confirmed) > 0 {
		if err := uc.strategy.Local.ForgetRequests(ctx, confirmed); err != nil {
			return result, err
		}
	}

	uc.log.Info("Synced %d local requests for %s, %d failed", result.Synced, identity.ID, result.Failed)
	return result, nil
}

func (uc *RequestUseCase) requireWorkshop() (*entity.Identity, error) {
	identity, err := uc.identity.RequireIdentity()
	if err != nil {
		return nil, err
	}
	if identity.Role != entity.RoleWorkshop {
		return nil, errors.WriteRejected("Only workshops can do this", nil)
	}
	return identity, nil
}

// checkOwner allows unowned requests; those only exist locally on this device.
func checkOwner(request *entity.Request, identity *entity.Identity) error {
	if request.CustomerID != "" && request.CustomerID != identity.ID {
		return errors.WriteRejected("Request belongs to another customer", nil)
	}
	return nil
}
