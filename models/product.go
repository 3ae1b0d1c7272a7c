package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/wms_backend/config"
	"bitbucket.org/mmdatafocus/wms_backend/utils"
	"github.com/shopspring/decimal"
)

// Product is a catalog reference record: the core owns none of its
// semantics beyond the id/code and the low-stock alert threshold, but
// queries join names and units off it.
type Product struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryId     int64           `gorm:"index;not null" json:"category_id"`
	SkuCode        string          `gorm:"size:64;uniqueIndex;not null" json:"sku_code" binding:"required"`
	Name           string          `gorm:"size:128;index;not null" json:"name" binding:"required"`
	Specification  string          `gorm:"size:128" json:"specification"`
	Unit           string          `gorm:"size:20;not null" json:"unit" binding:"required"`
	AlertThreshold decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"alert_threshold"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	CategoryId     int64           `json:"category_id" binding:"required"`
	SkuCode        string          `json:"sku_code" binding:"required"`
	Name           string          `json:"name" binding:"required"`
	Specification  string          `json:"specification"`
	Unit           string          `json:"unit" binding:"required"`
	AlertThreshold decimal.Decimal `json:"alert_threshold"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewProduct) validate(ctx context.Context, id int64) error {
	if err := utils.ValidateUnique[Product](ctx, "sku_code", input.SkuCode, id); err != nil {
		return validationErrorf("%s", err.Error())
	}
	if err := utils.ValidateResourceId[Category](ctx, input.CategoryId); err != nil {
		return validationErrorf("category not found")
	}
	if input.AlertThreshold.IsNegative() {
		return validationErrorf("alert threshold cannot be negative")
	}
	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	product := Product{
		CategoryId:     input.CategoryId,
		SkuCode:        input.SkuCode,
		Name:           input.Name,
		Specification:  input.Specification,
		Unit:           input.Unit,
		AlertThreshold: input.AlertThreshold,
		IsActive:       utils.NewTrue(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func UpdateProduct(ctx context.Context, id int64, input *NewProduct) (*Product, error) {
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}

	product.CategoryId = input.CategoryId
	product.SkuCode = input.SkuCode
	product.Name = input.Name
	product.Specification = input.Specification
	product.Unit = input.Unit
	product.AlertThreshold = input.AlertThreshold

	db := config.GetDB()
	err = db.WithContext(ctx).Save(product).Error
	if err != nil {
		return nil, err
	}
	return product, nil
}

func GetProduct(ctx context.Context, id int64) (*Product, error) {
	return utils.FetchModel[Product](ctx, id)
}

func ListProducts(ctx context.Context, name *string, page, pageSize int) (*Page[Product], error) {
	page, pageSize = utils.NormalizePage(page, pageSize)

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Product{})
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ? OR sku_code LIKE ?", "%"+*name+"%", "%"+*name+"%")
	}

	var total int64
	if err := dbCtx.Count(&total).Error; err != nil {
		return nil, err
	}
	var results []*Product
	err := dbCtx.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return &Page[Product]{Items: results, Total: total}, nil
}

func ToggleActiveProduct(ctx context.Context, id int64, isActive bool) (*Product, error) {
	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	err = db.WithContext(ctx).Model(product).Update("is_active", isActive).Error
	if err != nil {
		return nil, err
	}
	return product, nil
}

// validateProductIds checks that all referenced products exist; line
// validation for every order kind funnels through this.
func validateProductIds(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return validationErrorf("at least one line is required")
	}
	if err := utils.ValidateResourcesId[Product](ctx, ids); err != nil {
		return validationErrorf("product not found")
	}
	return nil
}
