package usecase

import (
	"context"
	"strings"
	"time"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/domain/repository"
	"schadenschat/pkg/errors"
	"schadenschat/pkg/logger"
)

// PushUseCase manages push registrations and sweeps out dead tokens.
type PushUseCase struct {
	tokens repository.PushRegistrationRepository
	sender PushSender
	log    logger.Component
}

func NewPushUseCase(tokens repository.PushRegistrationRepository, sender PushSender) *PushUseCase {
	return &PushUseCase{
		tokens: tokens,
		sender: sender,
		log:    logger.For("push"),
	}
}

type RegisterPushTokenInput struct {
	UserID    string `json:"userId"`
	Token     string `json:"token"`
	Platform  string `json:"platform"`
	UserAgent string `json:"userAgent"`
}

func (uc *PushUseCase) RegisterToken(ctx context.Context, input RegisterPushTokenInput) error {
	if strings.TrimSpace(input.UserID) == "" || strings.TrimSpace(input.Token) == "" {
		return errors.Validation("userId and token are required")
	}

	platform := input.Platform
	if platform == "" {
		platform = "web"
	}

	if err := uc.tokens.Register(ctx, &entity.PushRegistration{
		UserID:    input.UserID,
		Token:     input.Token,
		Platform:  platform,
		UserAgent: input.UserAgent,
	}); err != nil {
		return err
	}

	uc.log.Info("Registered %s push token for %s", platform, input.UserID)
	return nil
}

func (uc *PushUseCase) DeleteToken(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.Validation("token is required")
	}
	return uc.tokens.DeleteByToken(ctx, token)
}

// RegisterSubscription stores a raw Web Push subscription for clients without FCM tokens.
func (uc *PushUseCase) RegisterSubscription(ctx context.Context, userID string, subscription map[string]interface{}, userAgent string) error {
	if strings.TrimSpace(userID) == "" || len(subscription) == 0 {
		return errors.Validation("userId and subscription are required")
	}
	return uc.tokens.SaveWebPushSubscription(ctx, userID, subscription, userAgent)
}

// SweepInvalid dry-runs every registered token and deletes the ones the
// delivery service no longer accepts.
func (uc *PushUseCase) SweepInvalid(ctx context.Context) (int, error) {
	registrations, err := uc.tokens.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	var invalid []string
	for _, r := range registrations {
		valid, err := uc.sender.Validate(ctx, r.Token)
		if err != nil {
			uc.log.Warn("Could not validate a token of %s: %v", r.UserID, err)
			continue
		}
		if !valid {
			invalid = append(invalid, r.Token)
		}
	}

	if len(invalid) == 0 {
		return 0, nil
	}
	if err := uc.tokens.DeleteTokens(ctx, invalid); err != nil {
		return 0, err
	}
	uc.log.Info("Token sweep removed %d of %d tokens", len(invalid), len(registrations))
	return len(invalid), nil
}

func (uc *PushUseCase) StartSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				if _, err := uc.SweepInvalid(ctx); err != nil {
					uc.log.Error("Token sweep error: %v", err)
				}
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()

	uc.log.Info("Token sweep started (every %s)", interval)
}
