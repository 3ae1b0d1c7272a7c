package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/wms_backend/config"
	"bitbucket.org/mmdatafocus/wms_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Procurement is a purchase order against a supplier. It never touches
// the stock ledger directly; goods enter stock through an inbound order
// that may reference it as source.
type Procurement struct {
	ID           int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo      string              `gorm:"size:32;uniqueIndex;not null" json:"order_no"`
	SupplierId   int64               `gorm:"index;not null" json:"supplier_id"`
	ApplicantId  int64               `gorm:"not null" json:"applicant_id"`
	ApproverId   *int64              `json:"approver_id"`
	Status       OrderStatus         `gorm:"size:20;index;not null" json:"status"`
	Reason       string              `gorm:"type:text" json:"reason"`
	ExpectedDate *time.Time          `json:"expected_date"`
	TotalAmount  decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"total_amount"`
	ApprovedAt   *time.Time          `json:"approved_at"`
	CreatedAt    time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
	Details      []ProcurementDetail `gorm:"foreignKey:ProcurementId" json:"details"`
}

type ProcurementDetail struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProcurementId int64           `gorm:"index;not null" json:"procurement_id"`
	ProductId     int64           `gorm:"index;not null" json:"product_id"`
	PlanQty       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"plan_qty"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
}

type NewProcurement struct {
	SupplierId   int64                  `json:"supplier_id" binding:"required"`
	Reason       string                 `json:"reason"`
	ExpectedDate *time.Time             `json:"expected_date"`
	Details      []NewProcurementDetail `json:"details" binding:"required,dive"`
}

type NewProcurementDetail struct {
	ProductId int64           `json:"product_id" binding:"required"`
	PlanQty   decimal.Decimal `json:"plan_qty" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (input *NewProcurement) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
		return validationErrorf("supplier not found")
	}
	productIds := make([]int64, 0, len(input.Details))
	for i, detail := range input.Details {
		if !detail.PlanQty.IsPositive() {
			return validationErrorf("line %d: plan quantity must be positive", i+1)
		}
		if detail.UnitPrice.IsNegative() {
			return validationErrorf("line %d: unit price cannot be negative", i+1)
		}
		productIds = append(productIds, detail.ProductId)
	}
	return validateProductIds(ctx, utils.UniqueSlice(productIds))
}

func (input *NewProcurement) buildDetails() ([]ProcurementDetail, decimal.Decimal) {
	details := make([]ProcurementDetail, 0, len(input.Details))
	total := decimal.Zero
	for _, d := range input.Details {
		amount := d.PlanQty.Mul(d.UnitPrice)
		total = total.Add(amount)
		details = append(details, ProcurementDetail{
			ProductId: d.ProductId,
			PlanQty:   d.PlanQty,
			UnitPrice: d.UnitPrice,
			Amount:    amount,
		})
	}
	return details, total
}

func CreateProcurement(ctx context.Context, input *NewProcurement, actorId int64) (*Procurement, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	details, total := input.buildDetails()
	procurement := Procurement{
		SupplierId:   input.SupplierId,
		ApplicantId:  actorId,
		Status:       InitialOrderStatus,
		Reason:       input.Reason,
		ExpectedDate: input.ExpectedDate,
		TotalAmount:  total,
		Details:      details,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orderNo, err := NextOrderNumber(tx, ctx, OrderKindProcurement)
		if err != nil {
			return err
		}
		procurement.OrderNo = orderNo
		return tx.Create(&procurement).Error
	})
	if err != nil {
		return nil, err
	}
	return &procurement, nil
}

// UpdateProcurement replaces the header fields and lines. Only Draft
// orders are editable.
func UpdateProcurement(ctx context.Context, id int64, input *NewProcurement) (*Procurement, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var procurement *Procurement
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		procurement, err = fetchOrderForUpdate[Procurement](tx, ctx, id)
		if err != nil {
			return err
		}
		if procurement.Status != OrderStatusDraft {
			return invalidTransitionErrorf("%s order %s is not editable", OrderKindProcurement, procurement.OrderNo)
		}

		if err := tx.Where("procurement_id = ?", id).Delete(&ProcurementDetail{}).Error; err != nil {
			return err
		}
		details, total := input.buildDetails()
		for i := range details {
			details[i].ProcurementId = id
		}
		if err := tx.Create(&details).Error; err != nil {
			return err
		}

		procurement.SupplierId = input.SupplierId
		procurement.Reason = input.Reason
		procurement.ExpectedDate = input.ExpectedDate
		procurement.TotalAmount = total
		procurement.Details = details
		return tx.Omit("Details").Save(procurement).Error
	})
	if err != nil {
		return nil, err
	}
	return procurement, nil
}

// DeleteProcurement removes an order that never took effect. Allowed
// only for Draft and Cancelled orders.
func DeleteProcurement(ctx context.Context, id int64) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		procurement, err := fetchOrderForUpdate[Procurement](tx, ctx, id)
		if err != nil {
			return err
		}
		if procurement.Status != OrderStatusDraft && procurement.Status != OrderStatusCancelled {
			return invalidTransitionErrorf("%s order %s cannot be deleted in status %s",
				OrderKindProcurement, procurement.OrderNo, procurement.Status)
		}
		if err := tx.Where("procurement_id = ?", id).Delete(&ProcurementDetail{}).Error; err != nil {
			return err
		}
		return tx.Delete(procurement).Error
	})
}

func GetProcurement(ctx context.Context, id int64) (*Procurement, error) {
	return utils.FetchModel[Procurement](ctx, id, "Details")
}

func ListProcurements(ctx context.Context, filter OrderListFilter) (*Page[Procurement], error) {
	return listOrders[Procurement](ctx, filter)
}

// fetchOrderForUpdate loads an order row under a write lock so that
// concurrent transitions on the same order serialize.
func fetchOrderForUpdate[T any](tx *gorm.DB, ctx context.Context, id int64) (*T, error) {
	var order T
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &order, nil
}
