package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/wms_backend/config"
	"bitbucket.org/mmdatafocus/wms_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Inbound is a goods-receipt order. Posting it is what actually adds
// quantity to the stock ledger. SourceId optionally points at the
// procurement the goods were bought under; the reference is loose and
// over-receipt against the source lines is allowed.
type Inbound struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo       string          `gorm:"size:32;uniqueIndex;not null" json:"order_no"`
	SourceId      *int64          `gorm:"index" json:"source_id"`
	IsTemporary   *bool           `gorm:"not null;default:false" json:"is_temporary"`
	WarehouseId   int64           `gorm:"index;not null" json:"warehouse_id"`
	OperatorId    int64           `gorm:"not null" json:"operator_id"`
	ApproverId    *int64          `json:"approver_id"`
	Status        OrderStatus     `gorm:"size:20;index;not null" json:"status"`
	InboundDate   *time.Time      `json:"inbound_date"`
	Remark        string          `gorm:"type:text" json:"remark"`
	TotalQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_quantity"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Details       []InboundDetail `gorm:"foreignKey:InboundId" json:"details"`
}

type InboundDetail struct {
	ID             int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	InboundId      int64            `gorm:"index;not null" json:"inbound_id"`
	ProductId      int64            `gorm:"index;not null" json:"product_id"`
	ActualQty      decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"actual_qty"`
	Location       string           `gorm:"size:64;not null;default:''" json:"location"`
	BatchNo        string           `gorm:"size:64;not null;default:''" json:"batch_no"`
	ProductionDate *time.Time       `json:"production_date"`
	ExpirationDate *time.Time       `json:"expiration_date"`
	UnitCost       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"unit_cost"`
}

type NewInbound struct {
	SourceId    *int64             `json:"source_id"`
	IsTemporary bool               `json:"is_temporary"`
	WarehouseId int64              `json:"warehouse_id" binding:"required"`
	Remark      string             `json:"remark"`
	Details     []NewInboundDetail `json:"details" binding:"required,dive"`
}

type NewInboundDetail struct {
	ProductId      int64            `json:"product_id" binding:"required"`
	ActualQty      decimal.Decimal  `json:"actual_qty" binding:"required"`
	Location       string           `json:"location"`
	BatchNo        string           `json:"batch_no"`
	ProductionDate *time.Time       `json:"production_date"`
	ExpirationDate *time.Time       `json:"expiration_date"`
	UnitCost       *decimal.Decimal `json:"unit_cost"`
}

func (input *NewInbound) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Warehouse](ctx, input.WarehouseId); err != nil {
		return validationErrorf("warehouse not found")
	}
	productIds := make([]int64, 0, len(input.Details))
	for i, detail := range input.Details {
		if !detail.ActualQty.IsPositive() {
			return validationErrorf("line %d: actual quantity must be positive", i+1)
		}
		if detail.UnitCost != nil && detail.UnitCost.IsNegative() {
			return validationErrorf("line %d: unit cost cannot be negative", i+1)
		}
		productIds = append(productIds, detail.ProductId)
	}
	return validateProductIds(ctx, utils.UniqueSlice(productIds))
}

func (input *NewInbound) buildDetails() ([]InboundDetail, decimal.Decimal) {
	details := make([]InboundDetail, 0, len(input.Details))
	total := decimal.Zero
	for _, d := range input.Details {
		total = total.Add(d.ActualQty)
		details = append(details, InboundDetail{
			ProductId:      d.ProductId,
			ActualQty:      d.ActualQty,
			Location:       d.Location,
			BatchNo:        d.BatchNo,
			ProductionDate: d.ProductionDate,
			ExpirationDate: d.ExpirationDate,
			UnitCost:       d.UnitCost,
		})
	}
	return details, total
}

func CreateInbound(ctx context.Context, input *NewInbound, actorId int64) (*Inbound, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	details, total := input.buildDetails()
	isTemporary := utils.NewFalse()
	if input.IsTemporary {
		isTemporary = utils.NewTrue()
	}
	inbound := Inbound{
		SourceId:      input.SourceId,
		IsTemporary:   isTemporary,
		WarehouseId:   input.WarehouseId,
		OperatorId:    actorId,
		Status:        InitialOrderStatus,
		Remark:        input.Remark,
		TotalQuantity: total,
		Details:       details,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orderNo, err := NextOrderNumber(tx, ctx, OrderKindInbound)
		if err != nil {
			return err
		}
		inbound.OrderNo = orderNo
		return tx.Create(&inbound).Error
	})
	if err != nil {
		return nil, err
	}
	return &inbound, nil
}

// PrefillInboundFromProcurement builds an inbound input from a
// procurement's lines. The procurement must already be approved; the
// caller may still edit quantities before creating, and receiving more
// than planned is allowed.
func PrefillInboundFromProcurement(ctx context.Context, procurementId int64, warehouseId int64) (*NewInbound, error) {
	procurement, err := GetProcurement(ctx, procurementId)
	if err != nil {
		return nil, err
	}
	switch procurement.Status {
	case OrderStatusApproved, OrderStatusOrdered, OrderStatusCompleted:
	default:
		return nil, invalidTransitionErrorf("%s order %s is not approved yet",
			OrderKindProcurement, procurement.OrderNo)
	}

	input := NewInbound{
		SourceId:    &procurement.ID,
		WarehouseId: warehouseId,
		Details:     make([]NewInboundDetail, 0, len(procurement.Details)),
	}
	for _, d := range procurement.Details {
		unitCost := d.UnitPrice
		input.Details = append(input.Details, NewInboundDetail{
			ProductId: d.ProductId,
			ActualQty: d.PlanQty,
			UnitCost:  &unitCost,
		})
	}
	return &input, nil
}

func UpdateInbound(ctx context.Context, id int64, input *NewInbound) (*Inbound, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var inbound *Inbound
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inbound, err = fetchOrderForUpdate[Inbound](tx, ctx, id)
		if err != nil {
			return err
		}
		if inbound.Status != OrderStatusDraft {
			return invalidTransitionErrorf("%s order %s is not editable", OrderKindInbound, inbound.OrderNo)
		}

		if err := tx.Where("inbound_id = ?", id).Delete(&InboundDetail{}).Error; err != nil {
			return err
		}
		details, total := input.buildDetails()
		for i := range details {
			details[i].InboundId = id
		}
		if err := tx.Create(&details).Error; err != nil {
			return err
		}

		inbound.SourceId = input.SourceId
		if input.IsTemporary {
			inbound.IsTemporary = utils.NewTrue()
		} else {
			inbound.IsTemporary = utils.NewFalse()
		}
		inbound.WarehouseId = input.WarehouseId
		inbound.Remark = input.Remark
		inbound.TotalQuantity = total
		inbound.Details = details
		return tx.Omit("Details").Save(inbound).Error
	})
	if err != nil {
		return nil, err
	}
	return inbound, nil
}

func DeleteInbound(ctx context.Context, id int64) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inbound, err := fetchOrderForUpdate[Inbound](tx, ctx, id)
		if err != nil {
			return err
		}
		if inbound.Status != OrderStatusDraft && inbound.Status != OrderStatusCancelled {
			return invalidTransitionErrorf("%s order %s cannot be deleted in status %s",
				OrderKindInbound, inbound.OrderNo, inbound.Status)
		}
		if err := tx.Where("inbound_id = ?", id).Delete(&InboundDetail{}).Error; err != nil {
			return err
		}
		return tx.Delete(inbound).Error
	})
}

func GetInbound(ctx context.Context, id int64) (*Inbound, error) {
	return utils.FetchModel[Inbound](ctx, id, "Details")
}

func ListInbounds(ctx context.Context, filter OrderListFilter) (*Page[Inbound], error) {
	return listOrders[Inbound](ctx, filter)
}
