package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/wms_backend/config"
	"bitbucket.org/mmdatafocus/wms_backend/utils"
)

type Category struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:64;not null" json:"name" binding:"required"`
	ParentId  int64     `gorm:"not null;default:0;index" json:"parent_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCategory struct {
	Name     string `json:"name" binding:"required"`
	ParentId int64  `json:"parent_id"`
}

func (input *NewCategory) validate(ctx context.Context, id int64) error {
	if err := utils.ValidateUnique[Category](ctx, "name", input.Name, id); err != nil {
		return validationErrorf("%s", err.Error())
	}
	if input.ParentId != 0 {
		if err := utils.ValidateResourceId[Category](ctx, input.ParentId); err != nil {
			return validationErrorf("parent category not found")
		}
	}
	return nil
}

func CreateCategory(ctx context.Context, input *NewCategory) (*Category, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}
	category := Category{Name: input.Name, ParentId: input.ParentId}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&category).Error
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func UpdateCategory(ctx context.Context, id int64, input *NewCategory) (*Category, error) {
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}
	category, err := utils.FetchModel[Category](ctx, id)
	if err != nil {
		return nil, err
	}
	category.Name = input.Name
	category.ParentId = input.ParentId

	db := config.GetDB()
	err = db.WithContext(ctx).Save(category).Error
	if err != nil {
		return nil, err
	}
	return category, nil
}

func GetCategory(ctx context.Context, id int64) (*Category, error) {
	return utils.FetchModel[Category](ctx, id)
}

func ListCategories(ctx context.Context) ([]*Category, error) {
	return utils.FetchAllModels[Category](ctx)
}
