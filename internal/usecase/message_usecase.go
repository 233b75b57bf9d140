package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/domain/repository"
	"schadenschat/pkg/errors"
	"schadenschat/pkg/logger"
)

type MessageUseCase struct {
	strategy *Strategy
	identity IdentityProvider
	now      func() time.Time
	log      logger.Component
}

func NewMessageUseCase(strategy *Strategy, identity IdentityProvider) *MessageUseCase {
	return &MessageUseCase{
		strategy: strategy,
		identity: identity,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.For("messages"),
	}
}

// SendMessage appends a chat message from the current actor. The parent
// request is not touched.
func (uc *MessageUseCase) SendMessage(ctx context.Context, requestID, offerID, text string) (*entity.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.Validation("text must not be blank")
	}

	identity, err := uc.identity.RequireIdentity()
	if err != nil {
		return nil, err
	}
	if !identity.Role.Valid() {
		return nil, errors.Validation("sender role must be customer or workshop")
	}

	message := &entity.Message{
		ID:         uuid.New().String(),
		RequestID:  requestID,
		OfferID:    offerID,
		SenderID:   identity.ID,
		SenderType: identity.Role,
		Text:       text,
		Read:       false,
		CreatedAt:  uc.now(),
	}

	if _, err := writeWithFallback(uc.strategy, "send message", func(repo repository.EntityRepository) error {
		return repo.CreateMessage(ctx, message)
	}); err != nil {
		return nil, err
	}

	uc.log.Debug("Message %s on request %s from %s", message.ID, requestID, identity.ID)
	return message, nil
}

func (uc *MessageUseCase) GetMessages(ctx context.Context, requestID, offerID string) ([]*entity.Message, string, error) {
	return withFallback(uc.strategy, "get messages", func(repo repository.EntityRepository) ([]*entity.Message, error) {
		return repo.ListMessages(ctx, requestID, offerID)
	})
}

func (uc *MessageUseCase) SubscribeMessages(ctx context.Context, requestID, offerID string, callback func([]*entity.Message)) repository.Unsubscribe {
	return subscribeWithFallback(uc.strategy, "subscribe messages", callback,
		func(repo repository.EntityRepository, onChange func([]*entity.Message), onError func(error)) repository.Unsubscribe {
			return repo.SubscribeMessages(ctx, requestID, offerID, onChange, onError)
		})
}

func (uc *MessageUseCase) MarkMessageRead(ctx context.Context, requestID, offerID, messageID string) error {
	if _, err := uc.identity.RequireIdentity(); err != nil {
		return err
	}
	_, err := writeWithFallback(uc.strategy, "mark message read", func(repo repository.EntityRepository) error {
		return repo.MarkMessageRead(ctx, requestID, offerID, messageID)
	})
	return err
}
