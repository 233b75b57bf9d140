package usecase

import (
	"context"
	"time"

	"schadenschat/internal/domain/repository"
	"schadenschat/internal/infrastructure/storage"
	"schadenschat/pkg/logger"
)

// RetentionUseCase deletes requests that stayed completed or cancelled longer
// than the retention age, together with their offers, messages and uploaded photos.
type RetentionUseCase struct {
	repo   repository.RetentionRepository
	photos PhotoCleaner
	age    time.Duration
	batch  int
	now    func() time.Time
	log    logger.Component
}

// NewRetentionUseCase wires the purge sweep. photos may be nil when no photo
// backend is configured.
func NewRetentionUseCase(repo repository.RetentionRepository, photos PhotoCleaner, age time.Duration, batch int) *RetentionUseCase {
	if batch <= 0 {
		batch = 100
	}
	return &RetentionUseCase{
		repo:   repo,
		photos: photos,
		age:    age,
		batch:  batch,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.For("retention"),
	}
}

type RetentionResult struct {
	Requests  int
	Documents int
	Photos    int
	Failed    int
}

// RunOnce purges at most one batch of expired requests.
func (uc *RetentionUseCase) RunOnce(ctx context.Context) (RetentionResult, error) {
	var result RetentionResult
	cutoff := uc.now().Add(-uc.age)

	expired, err := uc.repo.ListExpiredRequests(ctx, cutoff, uc.batch)
	if err != nil {
		return result, err
	}

	for _, request := range expired {
		if uc.photos != nil {
			deleted, err := uc.photos.DeletePrefix(ctx, storage.RequestPrefix(request.ID))
			result.Photos += deleted
			if err != nil {
				// The request stays so the next sweep retries its photos.
				uc.log.Warn("Deleting photos of request %s failed: %v", request.ID, err)
				result.Failed++
				continue
			}
		}

		purged, err := uc.repo.PurgeRequest(ctx, request.ID)
		result.Documents += purged
		if err != nil {
			uc.log.Warn("Purging request %s failed: %v", request.ID, err)
			result.Failed++
			continue
		}
		result.Requests++
	}

	if len(expired) > 0 {
		uc.log.Info("Purged %d requests (%d documents, %d photos) last updated before %s", result.Requests, result.Documents, result.Photos, cutoff.Format(time.RFC3339))
	}
	return result, nil
}

// Start runs the sweep every interval until ctx ends.
func (uc *RetentionUseCase) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				if _, err := uc.RunOnce(ctx); err != nil {
					uc.log.Error("Retention sweep error: %v", err)
				}
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()

	uc.log.Info("Retention sweep started (every %s, age %s)", interval, uc.age)
}
