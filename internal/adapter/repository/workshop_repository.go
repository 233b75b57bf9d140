package repository

import (
	"context"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/domain/repository"
	"schadenschat/internal/infrastructure/docstore"
	"schadenschat/pkg/errors"
)

type workshopRepository struct {
	store docstore.Store
}

func NewWorkshopRepository(store docstore.Store) repository.WorkshopRepository {
	return &workshopRepository{
		store: store,
	}
}

func (r *workshopRepository) Save(ctx context.Context, workshop *entity.Workshop) error {
	return r.store.Set(ctx, CollectionWorkshops, workshop.ID, workshop)
}

func (r *workshopRepository) GetByID(ctx context.Context, id string) (*entity.Workshop, error) {
	doc, err := r.store.Get(ctx, CollectionWorkshops, id)
	if err != nil {
		return nil, err
	}
	if !doc.Exists {
		return nil, errors.NotFound("Workshop", nil)
	}

	var workshop entity.Workshop
	if err := doc.DataTo(&workshop); err != nil {
		return nil, errors.Internal("Failed to parse workshop data", err)
	}
	workshop.ID = doc.ID
	return &workshop, nil
}

func (r *workshopRepository) ListActive(ctx context.Context, zipPrefix string, limit int) ([]*entity.Workshop, error) {
	q := docstore.Collection(CollectionWorkshops).Where("active", docstore.OpEqual, true)
	if zipPrefix != "" {
		q = q.Where("zipPrefix", docstore.OpEqual, zipPrefix)
	}
	q = q.WithLimit(limit)

	docs, err := docstore.All(r.store.Query(ctx, q))
	if err != nil {
		return nil, err
	}

	workshops := make([]*entity.Workshop, 0, len(docs))
	for _, doc := range docs {
		var workshop entity.Workshop
		if err := doc.DataTo(&workshop); err != nil {
			return nil, errors.Internal("Failed to parse workshop data", err)
		}
		workshop.ID = doc.ID
		workshops = append(workshops, &workshop)
	}
	return workshops, nil
}

type analyticsRepository struct {
	store docstore.Store
}

func NewAnalyticsRepository(store docstore.Store) repository.AnalyticsRepository {
	return &analyticsRepository{
		store: store,
	}
}

func (r *analyticsRepository) Record(ctx context.Context, event *entity.AnalyticsEvent) error {
	_, err := r.store.Create(ctx, CollectionAnalytics, "", event)
	return err
}
