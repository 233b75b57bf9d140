package repository

import (
	"context"

	"schadenschat/internal/domain/entity"
)

type WorkshopRepository interface {
	Save(ctx context.Context, workshop *entity.Workshop) error
	GetByID(ctx context.Context, id string) (*entity.Workshop, error)
	// ListActive returns active workshops, restricted to zipPrefix when it is not empty.
	ListActive(ctx context.Context, zipPrefix string, limit int) ([]*entity.Workshop, error)
}

type AnalyticsRepository interface {
	Record(ctx context.Context, event *entity.AnalyticsEvent) error
}
