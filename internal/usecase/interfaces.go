package usecase

import (
	"context"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/domain/repository"
	"schadenschat/internal/infrastructure/firebase"
)

type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*firebase.VerifiedToken, error)
}

type PushSender interface {
	SendMulticast(ctx context.Context, tokens []string, payload entity.PushPayload) ([]entity.SendResult, error)
	// Validate reports whether the delivery service still accepts token.
	Validate(ctx context.Context, token string) (bool, error)
}

type PhotoStore interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

// PhotoCleaner removes uploaded photos once their request is purged.
type PhotoCleaner interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// IdentityProvider answers who the current actor is.
type IdentityProvider interface {
	GetCurrentIdentity() *entity.Identity
	RequireIdentity() (*entity.Identity, error)
}

type RemoteEntityRepository interface {
	repository.EntityRepository
	repository.RequestMerger
}

type LocalEntityRepository interface {
	repository.EntityRepository
	repository.PendingSync
}

type RequestReader interface {
	GetRequest(ctx context.Context, requestID string) (*entity.Request, error)
}
