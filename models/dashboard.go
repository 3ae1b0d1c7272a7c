package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/wms_backend/config"
	"bitbucket.org/mmdatafocus/wms_backend/utils"
	"github.com/shopspring/decimal"
)

const overviewStatsCacheKey = "dashboard:overview"

// StockView is one ledger line joined with its product for listings.
type StockView struct {
	ID             int64            `json:"id"`
	ProductId      int64            `json:"product_id"`
	ProductName    string           `json:"product_name"`
	SkuCode        string           `json:"sku_code"`
	Unit           string           `json:"unit"`
	WarehouseId    int64            `json:"warehouse_id"`
	Location       string           `json:"location"`
	BatchNo        string           `json:"batch_no"`
	OnHandQty      decimal.Decimal  `json:"on_hand_qty"`
	ReservedQty    decimal.Decimal  `json:"reserved_qty"`
	AvailableQty   decimal.Decimal  `json:"available_qty"`
	AlertThreshold decimal.Decimal  `json:"alert_threshold"`
	ExpirationDate *time.Time       `json:"expiration_date"`
	CostPrice      *decimal.Decimal `json:"cost_price"`
}

type StockListFilter struct {
	ProductName string
	WarehouseId int64
	LowStock    bool
	Page        int
	PageSize    int
}

// ListStock pages over stock lines joined with products. LowStock
// filters to lines whose available quantity sits under the product's
// alert threshold.
func ListStock(ctx context.Context, filter StockListFilter) (*Page[StockView], error) {
	page, pageSize := utils.NormalizePage(filter.Page, filter.PageSize)

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&StockLine{}).
		Joins("JOIN products ON products.id = stock_lines.product_id")
	if filter.ProductName != "" {
		dbCtx = dbCtx.Where("products.name LIKE ? OR products.sku_code LIKE ?",
			"%"+filter.ProductName+"%", "%"+filter.ProductName+"%")
	}
	if filter.WarehouseId > 0 {
		dbCtx = dbCtx.Where("stock_lines.warehouse_id = ?", filter.WarehouseId)
	}
	if filter.LowStock {
		dbCtx = dbCtx.Where("stock_lines.on_hand_qty - stock_lines.reserved_qty < products.alert_threshold")
	}

	var total int64
	if err := dbCtx.Count(&total).Error; err != nil {
		return nil, err
	}
	var results []*StockView
	err := dbCtx.Select(`stock_lines.id, stock_lines.product_id, products.name AS product_name,
		products.sku_code, products.unit, stock_lines.warehouse_id, stock_lines.location,
		stock_lines.batch_no, stock_lines.on_hand_qty, stock_lines.reserved_qty,
		stock_lines.on_hand_qty - stock_lines.reserved_qty AS available_qty,
		products.alert_threshold, stock_lines.expiration_date, stock_lines.cost_price`).
		Order("stock_lines.id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return &Page[StockView]{Items: results, Total: total}, nil
}

func GetStockLine(ctx context.Context, id int64) (*StockLine, error) {
	return utils.FetchModel[StockLine](ctx, id)
}

type MovementListFilter struct {
	ProductId int64
	Type      MovementType
	RelatedNo string
	StartDate string
	EndDate   string
	Page      int
	PageSize  int
}

// ListStockMovements pages over the movement journal, newest first.
func ListStockMovements(ctx context.Context, filter MovementListFilter) (*Page[StockMovement], error) {
	page, pageSize := utils.NormalizePage(filter.Page, filter.PageSize)

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&StockMovement{})
	if filter.ProductId > 0 {
		dbCtx = dbCtx.Where("product_id = ?", filter.ProductId)
	}
	if filter.Type != "" {
		dbCtx = dbCtx.Where("type = ?", filter.Type)
	}
	if filter.RelatedNo != "" {
		dbCtx = dbCtx.Where("related_no = ?", filter.RelatedNo)
	}
	if filter.StartDate != "" {
		dbCtx = dbCtx.Where("created_at >= ?", filter.StartDate)
	}
	if filter.EndDate != "" {
		dbCtx = dbCtx.Where("created_at <= ?", filter.EndDate+" 23:59:59")
	}

	var total int64
	if err := dbCtx.Count(&total).Error; err != nil {
		return nil, err
	}
	var results []*StockMovement
	err := dbCtx.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return &Page[StockMovement]{Items: results, Total: total}, nil
}

// OverviewStats is the dashboard headline block.
type OverviewStats struct {
	ProductCount    int64           `json:"product_count"`
	TotalOnHand     decimal.Decimal `json:"total_on_hand"`
	LowStockCount   int64           `json:"low_stock_count"`
	PendingInbound  int64           `json:"pending_inbound"`
	PendingOutbound int64           `json:"pending_outbound"`
	OpenProcurement int64           `json:"open_procurement"`
	TodayInQty      decimal.Decimal `json:"today_in_qty"`
	TodayOutQty     decimal.Decimal `json:"today_out_qty"`
}

// GetOverviewStats computes the dashboard headline numbers. Cached in
// redis for a short window; the numbers are informational, staleness
// within the TTL is acceptable.
func GetOverviewStats(ctx context.Context) (*OverviewStats, error) {
	var cached OverviewStats
	found, err := config.GetRedisObject(overviewStatsCacheKey, &cached)
	if err == nil && found {
		return &cached, nil
	}

	db := config.GetDB()
	var stats OverviewStats

	err = db.WithContext(ctx).Model(&Product{}).Where("is_active = ?", true).Count(&stats.ProductCount).Error
	if err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).Model(&StockLine{}).
		Select("COALESCE(SUM(on_hand_qty), 0)").Scan(&stats.TotalOnHand).Error
	if err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).Model(&StockLine{}).
		Joins("JOIN products ON products.id = stock_lines.product_id").
		Where("stock_lines.on_hand_qty - stock_lines.reserved_qty < products.alert_threshold").
		Count(&stats.LowStockCount).Error
	if err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).Model(&Inbound{}).
		Where("status IN ?", []OrderStatus{OrderStatusPending, OrderStatusApproved}).
		Count(&stats.PendingInbound).Error
	if err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).Model(&Outbound{}).
		Where("status IN ?", []OrderStatus{OrderStatusPending, OrderStatusApproved, OrderStatusPicking}).
		Count(&stats.PendingOutbound).Error
	if err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).Model(&Procurement{}).
		Where("status IN ?", []OrderStatus{OrderStatusPending, OrderStatusApproved, OrderStatusOrdered}).
		Count(&stats.OpenProcurement).Error
	if err != nil {
		return nil, err
	}

	today := time.Now().Format("2006-01-02")
	err = db.WithContext(ctx).Model(&StockMovement{}).
		Where("type = ? AND created_at >= ?", MovementTypeIn, today).
		Select("COALESCE(SUM(change_qty), 0)").Scan(&stats.TodayInQty).Error
	if err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).Model(&StockMovement{}).
		Where("type = ? AND created_at >= ?", MovementTypeOut, today).
		Select("COALESCE(SUM(ABS(change_qty)), 0)").Scan(&stats.TodayOutQty).Error
	if err != nil {
		return nil, err
	}

	_ = config.SetRedisObject(overviewStatsCacheKey, &stats, 30*time.Second)
	return &stats, nil
}

// TrendPoint is one day of in/out totals for the dashboard trend chart.
type TrendPoint struct {
	Date   string          `json:"date"`
	InQty  decimal.Decimal `json:"in_qty"`
	OutQty decimal.Decimal `json:"out_qty"`
}

// GetStockTrend aggregates movement totals per day over the trailing
// window (7 days when days <= 0). Days with no movement appear with
// zero totals.
func GetStockTrend(ctx context.Context, days int) ([]TrendPoint, error) {
	if days <= 0 {
		days = 7
	}
	start := time.Now().AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	type row struct {
		Day    string
		InQty  decimal.Decimal
		OutQty decimal.Decimal
	}
	db := config.GetDB()
	var rows []row
	err := db.WithContext(ctx).Model(&StockMovement{}).
		Select(`DATE_FORMAT(created_at, '%Y-%m-%d') AS day,
			COALESCE(SUM(CASE WHEN type = 'IN' THEN change_qty ELSE 0 END), 0) AS in_qty,
			COALESCE(SUM(CASE WHEN type = 'OUT' THEN ABS(change_qty) ELSE 0 END), 0) AS out_qty`).
		Where("created_at >= ?", start).
		Group("day").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]row, len(rows))
	for _, r := range rows {
		byDay[r.Day] = r
	}
	points := make([]TrendPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := time.Now().AddDate(0, 0, -i).Format("2006-01-02")
		point := TrendPoint{Date: day, InQty: decimal.Zero, OutQty: decimal.Zero}
		if r, ok := byDay[day]; ok {
			point.InQty = r.InQty
			point.OutQty = r.OutQty
		}
		points = append(points, point)
	}
	return points, nil
}

// CategoryStock is total on-hand rolled up by product category.
type CategoryStock struct {
	CategoryId   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
	TotalQty     decimal.Decimal `json:"total_qty"`
}

func GetCategoryStock(ctx context.Context) ([]CategoryStock, error) {
	db := config.GetDB()
	var results []CategoryStock
	err := db.WithContext(ctx).Model(&StockLine{}).
		Select(`categories.id AS category_id, categories.name AS category_name,
			COALESCE(SUM(stock_lines.on_hand_qty), 0) AS total_qty`).
		Joins("JOIN products ON products.id = stock_lines.product_id").
		Joins("JOIN categories ON categories.id = products.category_id").
		Group("categories.id, categories.name").
		Order("total_qty DESC").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
