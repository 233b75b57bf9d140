package repository

import (
	"context"

	"schadenschat/internal/domain/entity"
)

type PushRegistrationRepository interface {
	// Register stores the token, moving it to the new owner if it already exists.
	Register(ctx context.Context, registration *entity.PushRegistration) error
	DeleteByToken(ctx context.Context, token string) error
	DeleteTokens(ctx context.Context, tokens []string) error
	ListByUser(ctx context.Context, userID string) ([]*entity.PushRegistration, error)
	ListAll(ctx context.Context) ([]*entity.PushRegistration, error)
	SaveWebPushSubscription(ctx context.Context, userID string, subscription map[string]interface{}, userAgent string) error
}
