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

type WorkshopUseCase struct {
	workshops repository.WorkshopRepository
	validate  *validator.Validate
	now       func() time.Time
	log       logger.Component
}

func NewWorkshopUseCase(workshops repository.WorkshopRepository) *WorkshopUseCase {
	return &WorkshopUseCase{
		workshops: workshops,
		validate:  utils.NewValidator(),
		now:       func() time.Time { return time.Now().UTC() },
		log:       logger.For("workshops"),
	}
}

type RegisterWorkshopInput struct {
	Name      string `json:"name" validate:"notblank"`
	Address   string `json:"address" validate:"notblank"`
	Phone     string `json:"phone" validate:"notblank"`
	Email     string `json:"email" validate:"omitempty,email"`
	ZipPrefix string `json:"zipPrefix" validate:"omitempty,max=5"`
}

// RegisterWorkshop stores the profile of the authenticated workshop account
// under its user ID and marks it active. Registering again overwrites it.
func (uc *WorkshopUseCase) RegisterWorkshop(ctx context.Context, uid string, input RegisterWorkshopInput) (*entity.Workshop, error) {
	if uid == "" {
		return nil, errors.Unauthenticated("Must be logged in")
	}
	if err := uc.validate.Struct(input); err != nil {
		return nil, utils.ValidationError(err)
	}

	now := uc.now()
	workshop := &entity.Workshop{
		ID:        uid,
		Name:      input.Name,
		Address:   input.Address,
		Phone:     input.Phone,
		Email:     input.Email,
		ZipPrefix: input.ZipPrefix,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, err := uc.workshops.GetByID(ctx, uid); err == nil {
		workshop.CreatedAt = existing.CreatedAt
	}

	if err := uc.workshops.Save(ctx, workshop); err != nil {
		return nil, err
	}

	uc.log.Info("Workshop registered: %s (%s)", uid, workshop.Name)
	return workshop, nil
}
