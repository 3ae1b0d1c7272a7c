package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/wms_backend/config"
	"bitbucket.org/mmdatafocus/wms_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryCheck is a stocktake over one warehouse. Moving it into
// Checking snapshots the system quantity per stock line; completion
// posts the counted differences as CHECK adjustments.
type InventoryCheck struct {
	ID          int64                  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo     string                 `gorm:"size:32;uniqueIndex;not null" json:"order_no"`
	WarehouseId int64                  `gorm:"index;not null" json:"warehouse_id"`
	OperatorId  int64                  `gorm:"not null" json:"operator_id"`
	Status      OrderStatus            `gorm:"size:20;index;not null" json:"status"`
	CheckDate   *time.Time             `json:"check_date"`
	Remark      string                 `gorm:"type:text" json:"remark"`
	CreatedAt   time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
	Details     []InventoryCheckDetail `gorm:"foreignKey:CheckId" json:"details"`
}

type InventoryCheckDetail struct {
	ID            int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	CheckId       int64            `gorm:"index;not null" json:"check_id"`
	ProductId     int64            `gorm:"index;not null" json:"product_id"`
	Location      string           `gorm:"size:64;not null;default:''" json:"location"`
	BatchNo       string           `gorm:"size:64;not null;default:''" json:"batch_no"`
	SystemQty     decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"system_qty"`
	ActualQty     *decimal.Decimal `gorm:"type:decimal(20,4)" json:"actual_qty"`
	DifferenceQty decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:0" json:"difference_qty"`
	Remark        string           `gorm:"size:255" json:"remark"`
}

type NewInventoryCheck struct {
	WarehouseId int64  `json:"warehouse_id" binding:"required"`
	Remark      string `json:"remark"`
}

func (input *NewInventoryCheck) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Warehouse](ctx, input.WarehouseId); err != nil {
		return validationErrorf("warehouse not found")
	}
	return nil
}

func CreateInventoryCheck(ctx context.Context, input *NewInventoryCheck, actorId int64) (*InventoryCheck, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	check := InventoryCheck{
		WarehouseId: input.WarehouseId,
		OperatorId:  actorId,
		Status:      InitialOrderStatus,
		Remark:      input.Remark,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orderNo, err := NextOrderNumber(tx, ctx, OrderKindInventoryCheck)
		if err != nil {
			return err
		}
		check.OrderNo = orderNo
		return tx.Create(&check).Error
	})
	if err != nil {
		return nil, err
	}
	return &check, nil
}

// CheckCount carries one counted figure for a snapshot line.
type CheckCount struct {
	DetailId  int64           `json:"detail_id" binding:"required"`
	ActualQty decimal.Decimal `json:"actual_qty"`
	Remark    string          `json:"remark"`
}

// RecordCheckCounts writes counted quantities onto snapshot lines.
// Only legal while the stocktake is in Checking; counts may be
// recorded in several batches and re-recorded until completion.
func RecordCheckCounts(ctx context.Context, id int64, counts []CheckCount) (*InventoryCheck, error) {
	if len(counts) == 0 {
		return nil, validationErrorf("at least one count is required")
	}
	for i, c := range counts {
		if c.ActualQty.IsNegative() {
			return nil, validationErrorf("count %d: actual quantity cannot be negative", i+1)
		}
	}

	db := config.GetDB()
	var check *InventoryCheck
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		check, err = fetchOrderForUpdate[InventoryCheck](tx, ctx, id)
		if err != nil {
			return err
		}
		if check.Status != OrderStatusChecking {
			return invalidTransitionErrorf("stocktake %s is not in counting", check.OrderNo)
		}

		for _, c := range counts {
			var detail InventoryCheckDetail
			err := tx.WithContext(ctx).
				Where("id = ? AND check_id = ?", c.DetailId, id).
				First(&detail).Error
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return validationErrorf("count line %d does not belong to stocktake %s", c.DetailId, check.OrderNo)
				}
				return err
			}
			actual := c.ActualQty
			detail.ActualQty = &actual
			detail.DifferenceQty = actual.Sub(detail.SystemQty)
			detail.Remark = c.Remark
			if err := tx.Save(&detail).Error; err != nil {
				return err
			}
		}
		return tx.WithContext(ctx).Where("check_id = ?", id).
			Order("id").Find(&check.Details).Error
	})
	if err != nil {
		return nil, err
	}
	return check, nil
}

func DeleteInventoryCheck(ctx context.Context, id int64) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		check, err := fetchOrderForUpdate[InventoryCheck](tx, ctx, id)
		if err != nil {
			return err
		}
		if check.Status != OrderStatusDraft && check.Status != OrderStatusCancelled {
			return invalidTransitionErrorf("stocktake %s cannot be deleted in status %s",
				check.OrderNo, check.Status)
		}
		if err := tx.Where("check_id = ?", id).Delete(&InventoryCheckDetail{}).Error; err != nil {
			return err
		}
		return tx.Delete(check).Error
	})
}

func GetInventoryCheck(ctx context.Context, id int64) (*InventoryCheck, error) {
	return utils.FetchModel[InventoryCheck](ctx, id, "Details")
}

func ListInventoryChecks(ctx context.Context, filter OrderListFilter) (*Page[InventoryCheck], error) {
	return listOrders[InventoryCheck](ctx, filter)
}
