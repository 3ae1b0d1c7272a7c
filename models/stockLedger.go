package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/wms_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockLine is the smallest addressable stock bucket:
// product x warehouse x location x batch. Reserved quantity is a soft
// hold pending issue or release; available = on-hand - reserved is
// always derived, never stored. Lines that reach zero are kept as zero
// records (pruning would race concurrent reservations on the same key
// and would drop batch metadata still referenced by movements).
type StockLine struct {
	ID             int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductId      int64            `gorm:"uniqueIndex:idx_stock_key,priority:1;not null" json:"product_id"`
	WarehouseId    int64            `gorm:"uniqueIndex:idx_stock_key,priority:2;not null" json:"warehouse_id"`
	Location       string           `gorm:"uniqueIndex:idx_stock_key,priority:3;size:64;not null;default:''" json:"location"`
	BatchNo        string           `gorm:"uniqueIndex:idx_stock_key,priority:4;size:100;not null;default:''" json:"batch_no"`
	OnHandQty      decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:0" json:"on_hand_qty"`
	ReservedQty    decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:0" json:"reserved_qty"`
	ProductionDate *time.Time       `gorm:"default:null" json:"production_date"`
	ExpirationDate *time.Time       `gorm:"default:null" json:"expiration_date"`
	CostPrice      *decimal.Decimal `gorm:"type:decimal(20,4);default:null" json:"cost_price"`
	Version        int64            `gorm:"not null;default:0" json:"version"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s StockLine) AvailableQty() decimal.Decimal {
	return s.OnHandQty.Sub(s.ReservedQty)
}

// invariant: 0 <= reserved <= onHand
func (s StockLine) checkInvariant() error {
	if s.OnHandQty.IsNegative() {
		return ErrNegativeStock
	}
	if s.ReservedQty.IsNegative() || s.ReservedQty.GreaterThan(s.OnHandQty) {
		return ErrReservationMismatch
	}
	return nil
}

// Reservation is a persisted soft hold against one stock line, owned by
// one order line. Persisting it (rather than keeping it in memory) lets
// holds survive process restarts and makes release idempotent.
type Reservation struct {
	ID          string            `gorm:"size:36;primaryKey" json:"id"` // uuid
	OrderKind   OrderKind         `gorm:"type:enum('Procurement','Inbound','Outbound','InventoryCheck');index:idx_res_order,priority:1;not null" json:"order_kind"`
	OrderId     int64             `gorm:"index:idx_res_order,priority:2;not null" json:"order_id"`
	OrderLineId int64             `gorm:"index;not null" json:"order_line_id"`
	StockLineId int64             `gorm:"index;not null" json:"stock_line_id"`
	Quantity    decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Status      ReservationStatus `gorm:"type:enum('Active','Released','Consumed');not null;default:'Active'" json:"status"`
	ExpiresAt   *time.Time        `gorm:"default:null" json:"expires_at"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockMovement is the append-only journal of on-hand changes. Reserving
// and releasing never write here: conservation means on-hand moves only
// through receive, issue and adjust.
type StockMovement struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductId     int64           `gorm:"index:idx_move_product_date,priority:1;not null" json:"product_id"`
	WarehouseId   int64           `gorm:"index;not null" json:"warehouse_id"`
	StockLineId   int64           `gorm:"index;not null" json:"stock_line_id"`
	Type          MovementType    `gorm:"type:enum('IN','OUT','CHECK');not null" json:"type"`
	ChangeQty     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"change_qty"`
	SnapshotQty   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"snapshot_qty"` // line on-hand after the change
	RelatedNo     string          `gorm:"size:64;index;not null" json:"related_no"`
	OperatorId    *int64          `gorm:"index" json:"operator_id"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index:idx_move_product_date,priority:2" json:"created_at"`
}

type ReserveRequest struct {
	OrderKind   OrderKind
	OrderId     int64
	OrderLineId int64
	ProductId   int64
	WarehouseId int64
	Quantity    decimal.Decimal
	Policy      AllocationPolicy
	ExpiresAt   *time.Time
}

type ReservationResult struct {
	ReservationIds []string
	Allocations    []Allocation
}

type ReceiveRequest struct {
	ProductId      int64
	WarehouseId    int64
	Location       string
	BatchNo        string
	Quantity       decimal.Decimal
	UnitCost       *decimal.Decimal
	ProductionDate *time.Time
	ExpirationDate *time.Time
	RelatedNo      string
	OperatorId     *int64
}

type IssueRequest struct {
	OrderKind   OrderKind
	OrderId     int64
	OrderLineId int64
	ProductId   int64
	WarehouseId int64
	Quantity    decimal.Decimal
	RelatedNo   string
	OperatorId  *int64
}

type AdjustRequest struct {
	ProductId   int64
	WarehouseId int64
	Location    string
	BatchNo     string
	Delta       decimal.Decimal
	RelatedNo   string
	OperatorId  *int64
}

// GetAvailable sums available quantity over matching stock lines.
// Location and batchNo narrow the key when non-nil. Never negative.
func GetAvailable(ctx context.Context, db *gorm.DB, productId, warehouseId int64, location, batchNo *string) (decimal.Decimal, error) {
	dbCtx := db.WithContext(ctx).Model(&StockLine{}).
		Where("product_id = ? AND warehouse_id = ?", productId, warehouseId)
	if location != nil {
		dbCtx = dbCtx.Where("location = ?", *location)
	}
	if batchNo != nil {
		dbCtx = dbCtx.Where("batch_no = ?", *batchNo)
	}
	var total decimal.Decimal
	err := dbCtx.Select("COALESCE(SUM(on_hand_qty - reserved_qty), 0)").Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if total.IsNegative() {
		// reserved > onHand on some line would be an invariant breach
		return decimal.Zero, ErrReservationMismatch
	}
	return total, nil
}

// lockStockLines loads every line for the product/warehouse pair with a
// row lock, serializing concurrent postings that touch the same key.
func lockStockLines(tx *gorm.DB, ctx context.Context, productId, warehouseId int64) ([]StockLine, error) {
	var lines []StockLine
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND warehouse_id = ?", productId, warehouseId).
		Order("id").
		Find(&lines).Error
	return lines, err
}

func lockStockLineByKey(tx *gorm.DB, ctx context.Context, productId, warehouseId int64, location, batchNo string) (*StockLine, error) {
	var line StockLine
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND warehouse_id = ? AND location = ? AND batch_no = ?",
			productId, warehouseId, location, batchNo).
		First(&line).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// saveStockLine persists a mutated line with an optimistic version
// check. The caller already holds a row lock, so a failed check means
// something interleaved outside the locking discipline; surfacing
// ErrConcurrentModification keeps the mutation atomic either way.
func saveStockLine(tx *gorm.DB, ctx context.Context, line *StockLine, prevVersion int64) error {
	if err := line.checkInvariant(); err != nil {
		return err
	}
	line.Version = prevVersion + 1
	res := tx.WithContext(ctx).Model(&StockLine{}).
		Where("id = ? AND version = ?", line.ID, prevVersion).
		Updates(map[string]interface{}{
			"on_hand_qty":  line.OnHandQty,
			"reserved_qty": line.ReservedQty,
			"version":      line.Version,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func recordMovement(tx *gorm.DB, ctx context.Context, line *StockLine, movementType MovementType, changeQty decimal.Decimal, relatedNo string, operatorId *int64) error {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	if correlationId == "" {
		correlationId = uuid.NewString()
	}
	movement := StockMovement{
		ProductId:     line.ProductId,
		WarehouseId:   line.WarehouseId,
		StockLineId:   line.ID,
		Type:          movementType,
		ChangeQty:     changeQty,
		SnapshotQty:   line.OnHandQty,
		RelatedNo:     relatedNo,
		OperatorId:    operatorId,
		CorrelationId: correlationId,
	}
	return tx.WithContext(ctx).Create(&movement).Error
}

// ReserveStock places a soft hold of req.Quantity across the product's
// stock lines, selected by the allocation policy (default FEFO). The
// call is all-or-nothing: on ErrInsufficientStock no line is touched.
// Must run inside the caller's transaction.
func ReserveStock(tx *gorm.DB, ctx context.Context, req ReserveRequest) (*ReservationResult, error) {
	policy := req.Policy
	if policy == "" {
		policy = AllocationPolicyFEFO
	}

	lines, err := lockStockLines(tx, ctx, req.ProductId, req.WarehouseId)
	if err != nil {
		return nil, err
	}

	plan, err := planAllocation(lines, req.Quantity, policy)
	if err != nil {
		return nil, err
	}

	byId := make(map[int64]*StockLine, len(lines))
	for i := range lines {
		byId[lines[i].ID] = &lines[i]
	}

	result := &ReservationResult{Allocations: plan}
	for _, alloc := range plan {
		line := byId[alloc.StockLineId]
		prevVersion := line.Version
		line.ReservedQty = line.ReservedQty.Add(alloc.Quantity)
		if err := saveStockLine(tx, ctx, line, prevVersion); err != nil {
			return nil, err
		}
		reservation := Reservation{
			ID:          uuid.NewString(),
			OrderKind:   req.OrderKind,
			OrderId:     req.OrderId,
			OrderLineId: req.OrderLineId,
			StockLineId: line.ID,
			Quantity:    alloc.Quantity,
			Status:      ReservationStatusActive,
			ExpiresAt:   req.ExpiresAt,
		}
		if err := tx.WithContext(ctx).Create(&reservation).Error; err != nil {
			return nil, err
		}
		result.ReservationIds = append(result.ReservationIds, reservation.ID)
	}
	return result, nil
}

// ReleaseReservation reverses one reservation's hold. Idempotent:
// releasing a reservation that is already released or consumed is a
// no-op.
func ReleaseReservation(tx *gorm.DB, ctx context.Context, reservationId string) error {
	var reservation Reservation
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", reservationId).
		First(&reservation).Error
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if reservation.Status != ReservationStatusActive {
		return nil
	}
	return releaseLocked(tx, ctx, &reservation)
}

func releaseLocked(tx *gorm.DB, ctx context.Context, reservation *Reservation) error {
	var line StockLine
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&line, reservation.StockLineId).Error
	if err != nil {
		return err
	}
	prevVersion := line.Version
	line.ReservedQty = line.ReservedQty.Sub(reservation.Quantity)
	if err := saveStockLine(tx, ctx, &line, prevVersion); err != nil {
		return err
	}
	return tx.WithContext(ctx).Model(&Reservation{}).
		Where("id = ?", reservation.ID).
		Update("status", ReservationStatusReleased).Error
}

// ReleaseOrderReservations releases every active hold owned by an order.
// Used by cancellation and by posting to drop the unissued remainder.
func ReleaseOrderReservations(tx *gorm.DB, ctx context.Context, kind OrderKind, orderId int64) error {
	var reservations []Reservation
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_kind = ? AND order_id = ? AND status = ?", kind, orderId, ReservationStatusActive).
		Order("id").
		Find(&reservations).Error
	if err != nil {
		return err
	}
	for i := range reservations {
		if err := releaseLocked(tx, ctx, &reservations[i]); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveStock increases on-hand on the addressed line, creating it on
// first receipt for a new key. Batch metadata on the request updates the
// line when provided.
func ReceiveStock(tx *gorm.DB, ctx context.Context, req ReceiveRequest) error {
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return validationErrorf("receive quantity must be positive, got %s", req.Quantity)
	}

	line, err := lockStockLineByKey(tx, ctx, req.ProductId, req.WarehouseId, req.Location, req.BatchNo)
	if err != nil {
		return err
	}
	if line == nil {
		created := StockLine{
			ProductId:      req.ProductId,
			WarehouseId:    req.WarehouseId,
			Location:       req.Location,
			BatchNo:        req.BatchNo,
			OnHandQty:      req.Quantity,
			ReservedQty:    decimal.Zero,
			ProductionDate: req.ProductionDate,
			ExpirationDate: req.ExpirationDate,
			CostPrice:      req.UnitCost,
		}
		if err := tx.WithContext(ctx).Create(&created).Error; err != nil {
			return err
		}
		return recordMovement(tx, ctx, &created, MovementTypeIn, req.Quantity, req.RelatedNo, req.OperatorId)
	}

	prevVersion := line.Version
	line.OnHandQty = line.OnHandQty.Add(req.Quantity)
	if err := saveStockLine(tx, ctx, line, prevVersion); err != nil {
		return err
	}
	meta := map[string]interface{}{}
	if req.ProductionDate != nil {
		meta["production_date"] = req.ProductionDate
	}
	if req.ExpirationDate != nil {
		meta["expiration_date"] = req.ExpirationDate
	}
	if req.UnitCost != nil {
		meta["cost_price"] = req.UnitCost
	}
	if len(meta) > 0 {
		if err := tx.WithContext(ctx).Model(&StockLine{}).Where("id = ?", line.ID).Updates(meta).Error; err != nil {
			return err
		}
	}
	return recordMovement(tx, ctx, line, MovementTypeIn, req.Quantity, req.RelatedNo, req.OperatorId)
}

// IssueReserved decreases on-hand and reserved together for quantity
// previously held by the order line. Fails with ErrReservationMismatch
// when the issue quantity exceeds what is still held; any remainder of a
// partially consumed hold stays Active until the caller releases it.
func IssueReserved(tx *gorm.DB, ctx context.Context, req IssueRequest) error {
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return validationErrorf("issue quantity must be positive, got %s", req.Quantity)
	}

	var reservations []Reservation
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_kind = ? AND order_id = ? AND order_line_id = ? AND status = ?",
			req.OrderKind, req.OrderId, req.OrderLineId, ReservationStatusActive).
		Order("id").
		Find(&reservations).Error
	if err != nil {
		return err
	}

	held := decimal.Zero
	for _, r := range reservations {
		held = held.Add(r.Quantity)
	}
	if req.Quantity.GreaterThan(held) {
		return ErrReservationMismatch
	}

	remaining := req.Quantity
	for i := range reservations {
		if remaining.IsZero() {
			break
		}
		reservation := &reservations[i]
		take := decimal.Min(reservation.Quantity, remaining)

		var line StockLine
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&line, reservation.StockLineId).Error; err != nil {
			return err
		}
		prevVersion := line.Version
		line.OnHandQty = line.OnHandQty.Sub(take)
		line.ReservedQty = line.ReservedQty.Sub(take)
		if err := saveStockLine(tx, ctx, &line, prevVersion); err != nil {
			return err
		}
		if err := recordMovement(tx, ctx, &line, MovementTypeOut, take.Neg(), req.RelatedNo, req.OperatorId); err != nil {
			return err
		}

		if take.Equal(reservation.Quantity) {
			err = tx.WithContext(ctx).Model(&Reservation{}).
				Where("id = ?", reservation.ID).
				Update("status", ReservationStatusConsumed).Error
		} else {
			// partial consumption: shrink the hold, keep it Active
			err = tx.WithContext(ctx).Model(&Reservation{}).
				Where("id = ?", reservation.ID).
				Update("quantity", reservation.Quantity.Sub(take)).Error
		}
		if err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}
	return nil
}

// AdjustStock applies a signed correction to one line (inventory check
// posting). Fails with ErrNegativeStock when on-hand would go below
// zero, and ErrReservationMismatch when it would fall below the
// reserved quantity.
func AdjustStock(tx *gorm.DB, ctx context.Context, req AdjustRequest) error {
	if req.Delta.IsZero() {
		return nil
	}

	line, err := lockStockLineByKey(tx, ctx, req.ProductId, req.WarehouseId, req.Location, req.BatchNo)
	if err != nil {
		return err
	}
	if line == nil {
		if req.Delta.IsNegative() {
			return ErrNegativeStock
		}
		created := StockLine{
			ProductId:   req.ProductId,
			WarehouseId: req.WarehouseId,
			Location:    req.Location,
			BatchNo:     req.BatchNo,
			OnHandQty:   req.Delta,
			ReservedQty: decimal.Zero,
		}
		if err := tx.WithContext(ctx).Create(&created).Error; err != nil {
			return err
		}
		return recordMovement(tx, ctx, &created, MovementTypeCheck, req.Delta, req.RelatedNo, req.OperatorId)
	}

	prevVersion := line.Version
	line.OnHandQty = line.OnHandQty.Add(req.Delta)
	if err := saveStockLine(tx, ctx, line, prevVersion); err != nil {
		return err
	}
	return recordMovement(tx, ctx, line, MovementTypeCheck, req.Delta, req.RelatedNo, req.OperatorId)
}
