package models

import (
	"context"

	"bitbucket.org/mmdatafocus/wms_backend/config"
	"bitbucket.org/mmdatafocus/wms_backend/utils"
)

// The four order kinds share one lifecycle shape with kind-specific
// transitions and guards. Terminal states (Posted/Completed/Cancelled)
// have no outgoing edges.

var orderTransitions = map[OrderKind]map[OrderStatus][]OrderStatus{
	OrderKindProcurement: {
		OrderStatusDraft:    {OrderStatusPending, OrderStatusCancelled},
		OrderStatusPending:  {OrderStatusApproved, OrderStatusCancelled},
		OrderStatusApproved: {OrderStatusOrdered, OrderStatusCompleted, OrderStatusCancelled},
		OrderStatusOrdered:  {OrderStatusCompleted, OrderStatusCancelled},
	},
	OrderKindInbound: {
		OrderStatusDraft:    {OrderStatusPending, OrderStatusCancelled},
		OrderStatusPending:  {OrderStatusApproved, OrderStatusCancelled},
		OrderStatusApproved: {OrderStatusPosted, OrderStatusCancelled},
	},
	OrderKindOutbound: {
		OrderStatusDraft:    {OrderStatusPending, OrderStatusCancelled},
		OrderStatusPending:  {OrderStatusApproved, OrderStatusCancelled},
		OrderStatusApproved: {OrderStatusPicking, OrderStatusCancelled},
		OrderStatusPicking:  {OrderStatusPosted, OrderStatusCancelled},
	},
	OrderKindInventoryCheck: {
		OrderStatusDraft:    {OrderStatusChecking, OrderStatusCancelled},
		OrderStatusChecking: {OrderStatusCompleted, OrderStatusCancelled},
	},
}

func CanTransition(kind OrderKind, from, to OrderStatus) bool {
	targets, ok := orderTransitions[kind][from]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

func IsTerminalStatus(kind OrderKind, status OrderStatus) bool {
	_, hasEdges := orderTransitions[kind][status]
	return !hasEdges
}

func validateTransition(kind OrderKind, from, to OrderStatus) error {
	if !CanTransition(kind, from, to) {
		return invalidTransitionErrorf("%s cannot move from %s to %s", kind, from, to)
	}
	return nil
}

// InitialOrderStatus is where every freshly created order starts.
const InitialOrderStatus = OrderStatusDraft

// OrderListFilter is the shared shape of the order list queries:
// number substring, exact status, created-at date range (inclusive,
// YYYY-MM-DD), offset pagination.
type OrderListFilter struct {
	OrderNo   string
	Status    OrderStatus
	StartDate string
	EndDate   string
	Page      int
	PageSize  int
}

type Page[T any] struct {
	Items []*T  `json:"items"`
	Total int64 `json:"total"`
}

// listOrders runs the shared list query shape against one aggregate
// table. Reads committed state without locks: a listing racing a
// posting may observe the pre-posting snapshot.
func listOrders[T any](ctx context.Context, filter OrderListFilter) (*Page[T], error) {
	page, pageSize := utils.NormalizePage(filter.Page, filter.PageSize)

	db := config.GetDB()
	var m T
	dbCtx := db.WithContext(ctx).Model(&m)
	if filter.OrderNo != "" {
		dbCtx = dbCtx.Where("order_no LIKE ?", "%"+filter.OrderNo+"%")
	}
	if filter.Status != "" {
		dbCtx = dbCtx.Where("status = ?", filter.Status)
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
	var results []*T
	err := dbCtx.Preload("Details").
		Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return &Page[T]{Items: results, Total: total}, nil
}
