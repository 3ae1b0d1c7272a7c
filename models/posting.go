package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/wms_backend/config"
	"bitbucket.org/mmdatafocus/wms_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const moduleNamePosting = "models.posting"

// Transition functions move one order through its lifecycle and apply
// the stock side effects of the edge inside a single transaction.
// Either the status change and every ledger write commit together, or
// none of them do.

func TransitionProcurement(ctx context.Context, id int64, target OrderStatus, actorId int64) (*Procurement, error) {
	db := config.GetDB()
	var procurement *Procurement
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		procurement, err = fetchOrderForUpdate[Procurement](tx, ctx, id)
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Where("procurement_id = ?", id).
			Order("id").Find(&procurement.Details).Error; err != nil {
			return err
		}
		if err := validateTransition(OrderKindProcurement, procurement.Status, target); err != nil {
			return err
		}

		switch {
		case procurement.Status == OrderStatusDraft && target == OrderStatusPending:
			if err := requireLines(len(procurement.Details)); err != nil {
				return err
			}
		case procurement.Status == OrderStatusPending && target == OrderStatusApproved:
			if err := requireApprover(actorId); err != nil {
				return err
			}
			if procurement.SupplierId <= 0 {
				return validationErrorf("supplier is required for approval")
			}
			now := time.Now()
			procurement.ApproverId = &actorId
			procurement.ApprovedAt = &now
			total := decimal.Zero
			for _, d := range procurement.Details {
				total = total.Add(d.PlanQty.Mul(d.UnitPrice))
			}
			procurement.TotalAmount = total
		}

		procurement.Status = target
		return tx.Omit("Details").Save(procurement).Error
	})
	if err != nil {
		return nil, err
	}
	return procurement, nil
}

func TransitionInbound(ctx context.Context, id int64, target OrderStatus, actorId int64) (*Inbound, error) {
	db := config.GetDB()
	var inbound *Inbound

	// peek at the warehouse first so the posting edge can take the
	// per-warehouse lock before opening the transaction
	peek, err := utils.FetchModel[Inbound](ctx, id)
	if err != nil {
		return nil, err
	}
	if target == OrderStatusPosted {
		release, err := utils.WarehouseLock(ctx, peek.WarehouseId, moduleNamePosting, "TransitionInbound")
		if err != nil {
			return nil, err
		}
		defer release()
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inbound, err = fetchOrderForUpdate[Inbound](tx, ctx, id)
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Where("inbound_id = ?", id).
			Order("id").Find(&inbound.Details).Error; err != nil {
			return err
		}
		if err := validateTransition(OrderKindInbound, inbound.Status, target); err != nil {
			return err
		}

		switch {
		case inbound.Status == OrderStatusDraft && target == OrderStatusPending:
			if err := requireLines(len(inbound.Details)); err != nil {
				return err
			}
		case inbound.Status == OrderStatusPending && target == OrderStatusApproved:
			if err := requireApprover(actorId); err != nil {
				return err
			}
			inbound.ApproverId = &actorId
		case inbound.Status == OrderStatusApproved && target == OrderStatusPosted:
			total := decimal.Zero
			for _, d := range inbound.Details {
				if err := ReceiveStock(tx, ctx, ReceiveRequest{
					ProductId:      d.ProductId,
					WarehouseId:    inbound.WarehouseId,
					Location:       d.Location,
					BatchNo:        d.BatchNo,
					Quantity:       d.ActualQty,
					UnitCost:       d.UnitCost,
					ProductionDate: d.ProductionDate,
					ExpirationDate: d.ExpirationDate,
					RelatedNo:      inbound.OrderNo,
					OperatorId:     &actorId,
				}); err != nil {
					return err
				}
				total = total.Add(d.ActualQty)
			}
			now := time.Now()
			inbound.InboundDate = &now
			inbound.TotalQuantity = total
		}

		inbound.Status = target
		return tx.Omit("Details").Save(inbound).Error
	})
	if err != nil {
		return nil, err
	}
	return inbound, nil
}

// PickedQuantity overrides how much of one line actually leaves stock
// at posting. Lines without an override issue their full applied
// quantity.
type PickedQuantity struct {
	DetailId int64           `json:"detail_id" binding:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

func TransitionOutbound(ctx context.Context, id int64, target OrderStatus, actorId int64, picks []PickedQuantity) (*Outbound, error) {
	db := config.GetDB()
	var outbound *Outbound

	peek, err := utils.FetchModel[Outbound](ctx, id)
	if err != nil {
		return nil, err
	}
	if target == OrderStatusPicking || target == OrderStatusPosted || target == OrderStatusCancelled {
		release, err := utils.WarehouseLock(ctx, peek.WarehouseId, moduleNamePosting, "TransitionOutbound")
		if err != nil {
			return nil, err
		}
		defer release()
	}

	pickByDetail := make(map[int64]decimal.Decimal, len(picks))
	for _, p := range picks {
		if p.Quantity.IsNegative() {
			return nil, validationErrorf("picked quantity cannot be negative")
		}
		pickByDetail[p.DetailId] = p.Quantity
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		outbound, err = fetchOrderForUpdate[Outbound](tx, ctx, id)
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Where("outbound_id = ?", id).
			Order("id").Find(&outbound.Details).Error; err != nil {
			return err
		}
		if err := validateTransition(OrderKindOutbound, outbound.Status, target); err != nil {
			return err
		}

		switch {
		case outbound.Status == OrderStatusDraft && target == OrderStatusPending:
			if err := requireLines(len(outbound.Details)); err != nil {
				return err
			}
		case outbound.Status == OrderStatusPending && target == OrderStatusApproved:
			if err := requireApprover(actorId); err != nil {
				return err
			}
			now := time.Now()
			outbound.ApproverId = &actorId
			outbound.ReviewTime = &now
		case outbound.Status == OrderStatusApproved && target == OrderStatusPicking:
			// place holds for every line; the transaction makes the
			// whole order all-or-nothing
			for _, d := range outbound.Details {
				if _, err := ReserveStock(tx, ctx, ReserveRequest{
					OrderKind:   OrderKindOutbound,
					OrderId:     outbound.ID,
					OrderLineId: d.ID,
					ProductId:   d.ProductId,
					WarehouseId: outbound.WarehouseId,
					Quantity:    d.ApplyQty,
				}); err != nil {
					return err
				}
			}
		case outbound.Status == OrderStatusPicking && target == OrderStatusPosted:
			for i := range outbound.Details {
				d := &outbound.Details[i]
				pickedQty := d.ApplyQty
				if qty, ok := pickByDetail[d.ID]; ok {
					pickedQty = qty
				}
				if pickedQty.GreaterThan(d.ApplyQty) {
					return validationErrorf("picked quantity %s exceeds applied %s", pickedQty, d.ApplyQty)
				}
				if pickedQty.IsPositive() {
					if err := IssueReserved(tx, ctx, IssueRequest{
						OrderKind:   OrderKindOutbound,
						OrderId:     outbound.ID,
						OrderLineId: d.ID,
						ProductId:   d.ProductId,
						WarehouseId: outbound.WarehouseId,
						Quantity:    pickedQty,
						RelatedNo:   outbound.OrderNo,
						OperatorId:  &actorId,
					}); err != nil {
						return err
					}
				}
				d.PickedQty = &pickedQty
				if err := tx.WithContext(ctx).Model(&OutboundDetail{}).
					Where("id = ?", d.ID).
					Update("picked_qty", pickedQty).Error; err != nil {
					return err
				}
			}
			// unissued remainder of every hold goes back to available
			if err := ReleaseOrderReservations(tx, ctx, OrderKindOutbound, outbound.ID); err != nil {
				return err
			}
			now := time.Now()
			outbound.OutboundDate = &now
		case target == OrderStatusCancelled:
			if err := ReleaseOrderReservations(tx, ctx, OrderKindOutbound, outbound.ID); err != nil {
				return err
			}
		}

		outbound.Status = target
		return tx.Omit("Details").Save(outbound).Error
	})
	if err != nil {
		return nil, err
	}
	return outbound, nil
}

func TransitionInventoryCheck(ctx context.Context, id int64, target OrderStatus, actorId int64) (*InventoryCheck, error) {
	db := config.GetDB()
	var check *InventoryCheck

	peek, err := utils.FetchModel[InventoryCheck](ctx, id)
	if err != nil {
		return nil, err
	}
	if target == OrderStatusChecking || target == OrderStatusCompleted {
		release, err := utils.WarehouseLock(ctx, peek.WarehouseId, moduleNamePosting, "TransitionInventoryCheck")
		if err != nil {
			return nil, err
		}
		defer release()
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		check, err = fetchOrderForUpdate[InventoryCheck](tx, ctx, id)
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Where("check_id = ?", id).
			Order("id").Find(&check.Details).Error; err != nil {
			return err
		}
		if err := validateTransition(OrderKindInventoryCheck, check.Status, target); err != nil {
			return err
		}

		switch {
		case check.Status == OrderStatusDraft && target == OrderStatusChecking:
			if err := snapshotCheckLines(tx, ctx, check); err != nil {
				return err
			}
		case check.Status == OrderStatusChecking && target == OrderStatusCompleted:
			if err := requireApprover(actorId); err != nil {
				return err
			}
			if err := postCheckDifferences(tx, ctx, check, actorId); err != nil {
				return err
			}
			now := time.Now()
			check.CheckDate = &now
		}

		check.Status = target
		return tx.Omit("Details").Save(check).Error
	})
	if err != nil {
		return nil, err
	}
	return check, nil
}

// snapshotCheckLines freezes the warehouse's current per-line on-hand
// quantities into the stocktake.
func snapshotCheckLines(tx *gorm.DB, ctx context.Context, check *InventoryCheck) error {
	var lines []StockLine
	err := tx.WithContext(ctx).
		Where("warehouse_id = ?", check.WarehouseId).
		Order("id").
		Find(&lines).Error
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return validationErrorf("warehouse %d has no stock to count", check.WarehouseId)
	}

	details := make([]InventoryCheckDetail, 0, len(lines))
	for _, line := range lines {
		details = append(details, InventoryCheckDetail{
			CheckId:   check.ID,
			ProductId: line.ProductId,
			Location:  line.Location,
			BatchNo:   line.BatchNo,
			SystemQty: line.OnHandQty,
		})
	}
	if err := tx.WithContext(ctx).Create(&details).Error; err != nil {
		return err
	}
	check.Details = details
	return nil
}

// postCheckDifferences turns counted differences into CHECK
// adjustments. Every line must carry a count, and the line's on-hand
// must still match the snapshot; stock that moved since the snapshot
// surfaces as ErrConcurrentModification so the stocktake can be
// redone rather than silently posting a stale difference.
func postCheckDifferences(tx *gorm.DB, ctx context.Context, check *InventoryCheck, actorId int64) error {
	for i, d := range check.Details {
		if d.ActualQty == nil {
			return validationErrorf("line %d has no counted quantity", i+1)
		}
	}
	for _, d := range check.Details {
		line, err := lockStockLineByKey(tx, ctx, d.ProductId, check.WarehouseId, d.Location, d.BatchNo)
		if err != nil {
			return err
		}
		currentQty := decimal.Zero
		if line != nil {
			currentQty = line.OnHandQty
		}
		if !currentQty.Equal(d.SystemQty) {
			return ErrConcurrentModification
		}
		if d.DifferenceQty.IsZero() {
			continue
		}
		if err := AdjustStock(tx, ctx, AdjustRequest{
			ProductId:   d.ProductId,
			WarehouseId: check.WarehouseId,
			Location:    d.Location,
			BatchNo:     d.BatchNo,
			Delta:       d.DifferenceQty,
			RelatedNo:   check.OrderNo,
			OperatorId:  &actorId,
		}); err != nil {
			return err
		}
	}
	return nil
}

func requireLines(count int) error {
	if count == 0 {
		return validationErrorf("at least one line is required")
	}
	return nil
}

func requireApprover(actorId int64) error {
	if actorId <= 0 {
		return validationErrorf("approver identity is required")
	}
	return nil
}
