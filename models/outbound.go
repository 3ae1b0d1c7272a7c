package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/wms_backend/config"
	"bitbucket.org/mmdatafocus/wms_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Outbound is a goods-issue request. Approval does not touch stock;
// moving into Picking places reservations, and posting consumes them.
type Outbound struct {
	ID           int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo      string           `gorm:"size:32;uniqueIndex;not null" json:"order_no"`
	ApplicantId  int64            `gorm:"not null" json:"applicant_id"`
	DeptId       int64            `gorm:"not null;default:0" json:"dept_id"`
	Purpose      string           `gorm:"type:text" json:"purpose"`
	WarehouseId  int64            `gorm:"index;not null" json:"warehouse_id"`
	Status       OrderStatus      `gorm:"size:20;index;not null" json:"status"`
	ApproverId   *int64           `json:"approver_id"`
	ReviewTime   *time.Time       `json:"review_time"`
	OutboundDate *time.Time       `json:"outbound_date"`
	CreatedAt    time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	Details      []OutboundDetail `gorm:"foreignKey:OutboundId" json:"details"`
}

type OutboundDetail struct {
	ID         int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	OutboundId int64            `gorm:"index;not null" json:"outbound_id"`
	ProductId  int64            `gorm:"index;not null" json:"product_id"`
	ApplyQty   decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"apply_qty"`
	PickedQty  *decimal.Decimal `gorm:"type:decimal(20,4)" json:"picked_qty"`
}

type NewOutbound struct {
	DeptId      int64               `json:"dept_id"`
	Purpose     string              `json:"purpose"`
	WarehouseId int64               `json:"warehouse_id" binding:"required"`
	Details     []NewOutboundDetail `json:"details" binding:"required,dive"`
}

type NewOutboundDetail struct {
	ProductId int64           `json:"product_id" binding:"required"`
	ApplyQty  decimal.Decimal `json:"apply_qty" binding:"required"`
}

func (input *NewOutbound) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Warehouse](ctx, input.WarehouseId); err != nil {
		return validationErrorf("warehouse not found")
	}
	productIds := make([]int64, 0, len(input.Details))
	for i, detail := range input.Details {
		if !detail.ApplyQty.IsPositive() {
			return validationErrorf("line %d: apply quantity must be positive", i+1)
		}
		productIds = append(productIds, detail.ProductId)
	}
	return validateProductIds(ctx, utils.UniqueSlice(productIds))
}

func (input *NewOutbound) buildDetails() []OutboundDetail {
	details := make([]OutboundDetail, 0, len(input.Details))
	for _, d := range input.Details {
		details = append(details, OutboundDetail{
			ProductId: d.ProductId,
			ApplyQty:  d.ApplyQty,
		})
	}
	return details
}

func CreateOutbound(ctx context.Context, input *NewOutbound, actorId int64) (*Outbound, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	outbound := Outbound{
		ApplicantId: actorId,
		DeptId:      input.DeptId,
		Purpose:     input.Purpose,
		WarehouseId: input.WarehouseId,
		Status:      InitialOrderStatus,
		Details:     input.buildDetails(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orderNo, err := NextOrderNumber(tx, ctx, OrderKindOutbound)
		if err != nil {
			return err
		}
		outbound.OrderNo = orderNo
		return tx.Create(&outbound).Error
	})
	if err != nil {
		return nil, err
	}
	return &outbound, nil
}

func UpdateOutbound(ctx context.Context, id int64, input *NewOutbound) (*Outbound, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var outbound *Outbound
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		outbound, err = fetchOrderForUpdate[Outbound](tx, ctx, id)
		if err != nil {
			return err
		}
		if outbound.Status != OrderStatusDraft {
			return invalidTransitionErrorf("%s order %s is not editable", OrderKindOutbound, outbound.OrderNo)
		}

		if err := tx.Where("outbound_id = ?", id).Delete(&OutboundDetail{}).Error; err != nil {
			return err
		}
		details := input.buildDetails()
		for i := range details {
			details[i].OutboundId = id
		}
		if err := tx.Create(&details).Error; err != nil {
			return err
		}

		outbound.DeptId = input.DeptId
		outbound.Purpose = input.Purpose
		outbound.WarehouseId = input.WarehouseId
		outbound.Details = details
		return tx.Omit("Details").Save(outbound).Error
	})
	if err != nil {
		return nil, err
	}
	return outbound, nil
}

func DeleteOutbound(ctx context.Context, id int64) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		outbound, err := fetchOrderForUpdate[Outbound](tx, ctx, id)
		if err != nil {
			return err
		}
		if outbound.Status != OrderStatusDraft && outbound.Status != OrderStatusCancelled {
			return invalidTransitionErrorf("%s order %s cannot be deleted in status %s",
				OrderKindOutbound, outbound.OrderNo, outbound.Status)
		}
		if err := tx.Where("outbound_id = ?", id).Delete(&OutboundDetail{}).Error; err != nil {
			return err
		}
		return tx.Delete(outbound).Error
	})
}

func GetOutbound(ctx context.Context, id int64) (*Outbound, error) {
	return utils.FetchModel[Outbound](ctx, id, "Details")
}

func ListOutbounds(ctx context.Context, filter OrderListFilter) (*Page[Outbound], error) {
	return listOrders[Outbound](ctx, filter)
}
