package repository

import (
	"context"
	"time"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/domain/repository"
	"schadenschat/internal/infrastructure/docstore"
	"schadenschat/pkg/errors"
)

type pushRegistrationRepository struct {
	store docstore.Store
}

func NewPushRegistrationRepository(store docstore.Store) repository.PushRegistrationRepository {
	return &pushRegistrationRepository{
		store: store,
	}
}

func (r *pushRegistrationRepository) Register(ctx context.Context, registration *entity.PushRegistration) error {
	registration.ID = entity.PushRegistrationID(registration.Token)
	if registration.Platform == "" {
		registration.Platform = "web"
	}

	now := time.Now().UTC()
	registration.CreatedAt = now
	registration.UpdatedAt = now

	_, err := r.store.Create(ctx, CollectionPushTokens, registration.ID, registration)
	if !errors.Is(err, errors.CodeConflict) {
		return err
	}

	// Known token: hand it to the new owner instead of duplicating it.
	updates := []docstore.Update{
		{Path: "userId", Value: registration.UserID},
		{Path: "platform", Value: registration.Platform},
		{Path: "updatedAt", Value: now},
	}
	if registration.UserAgent != "" {
		updates = append(updates, docstore.Update{Path: "userAgent", Value: registration.UserAgent})
	}
	return r.store.Update(ctx, CollectionPushTokens, registration.ID, updates)
}

func (r *pushRegistrationRepository) DeleteByToken(ctx context.Context, token string) error {
	return r.store.Delete(ctx, CollectionPushTokens, entity.PushRegistrationID(token))
}

func (r *pushRegistrationRepository) DeleteTokens(ctx context.Context, tokens []string) error {
	for start := 0; start < len(tokens); start += maxBatchWrites {
		end := start + maxBatchWrites
		if end > len(tokens) {
			end = len(tokens)
		}

		ops := make([]docstore.Op, 0, end-start)
		for _, token := range tokens[start:end] {
			ops = append(ops, docstore.Op{
				Kind:       docstore.OpDelete,
				Collection: CollectionPushTokens,
				ID:         entity.PushRegistrationID(token),
			})
		}
		if err := r.store.BatchWrite(ctx, ops); err != nil {
			return err
		}
	}
	return nil
}

func (r *pushRegistrationRepository) ListByUser(ctx context.Context, userID string) ([]*entity.PushRegistration, error) {
	q := docstore.Collection(CollectionPushTokens).Where("userId", docstore.OpEqual, userID)
	return r.list(ctx, q)
}

func (r *pushRegistrationRepository) ListAll(ctx context.Context) ([]*entity.PushRegistration, error) {
	return r.list(ctx, docstore.Collection(CollectionPushTokens))
}

func (r *pushRegistrationRepository) SaveWebPushSubscription(ctx context.Context, userID string, subscription map[string]interface{}, userAgent string) error {
	if userAgent == "" {
		userAgent = "unknown"
	}
	_, err := r.store.Create(ctx, CollectionPushSubscriptions, "", map[string]interface{}{
		"userId":       userID,
		"subscription": subscription,
		"createdAt":    time.Now().UTC(),
		"userAgent":    userAgent,
	})
	return err
}

func (r *pushRegistrationRepository) list(ctx context.Context, q docstore.Query) ([]*entity.PushRegistration, error) {
	docs, err := docstore.All(r.store.Query(ctx, q))
	if err != nil {
		return nil, err
	}

	registrations := make([]*entity.PushRegistration, 0, len(docs))
	for _, doc := range docs {
		var registration entity.PushRegistration
		if err := doc.DataTo(&registration); err != nil {
			return nil, errors.Internal("Failed to parse push registration", err)
		}
		registration.ID = doc.ID
		registrations = append(registrations, &registration)
	}
	return registrations, nil
}
