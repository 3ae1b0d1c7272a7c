package models

import (
	"database/sql/driver"
	"errors"
)

type OrderKind string

const (
	OrderKindProcurement    OrderKind = "Procurement"
	OrderKindInbound        OrderKind = "Inbound"
	OrderKindOutbound       OrderKind = "Outbound"
	OrderKindInventoryCheck OrderKind = "InventoryCheck"
)

// Prefix returns the document number prefix used when no override is
// configured in document_prefixes.
func (k OrderKind) Prefix() string {
	switch k {
	case OrderKindProcurement:
		return "PO"
	case OrderKindInbound:
		return "IN"
	case OrderKindOutbound:
		return "OUT"
	case OrderKindInventoryCheck:
		return "CHK"
	}
	return ""
}

func (k OrderKind) Valid() bool {
	switch k {
	case OrderKindProcurement, OrderKindInbound, OrderKindOutbound, OrderKindInventoryCheck:
		return true
	}
	return false
}

func (k OrderKind) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, errors.New("invalid order kind")
	}
	return string(k), nil
}

type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "Draft"
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusApproved  OrderStatus = "Approved"
	OrderStatusOrdered   OrderStatus = "Ordered"
	OrderStatusPicking   OrderStatus = "Picking"
	OrderStatusPosted    OrderStatus = "Posted"
	OrderStatusChecking  OrderStatus = "Checking"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderStatusDraft, OrderStatusPending, OrderStatusApproved, OrderStatusOrdered,
		OrderStatusPicking, OrderStatusPosted, OrderStatusChecking, OrderStatusCompleted,
		OrderStatusCancelled:
		return OrderStatus(s), nil
	}
	return "", validationErrorf("unknown order status %q", s)
}

type MovementType string

const (
	MovementTypeIn    MovementType = "IN"
	MovementTypeOut   MovementType = "OUT"
	MovementTypeCheck MovementType = "CHECK"
)

type AllocationPolicy string

const (
	// AllocationPolicyFEFO picks lines with the earliest expiration date
	// first; lines without an expiration date come last. Ties fall back
	// to AllocationPolicyLowestBatch ordering.
	AllocationPolicyFEFO AllocationPolicy = "FEFO"
	// AllocationPolicyLowestBatch orders by batch number, then location,
	// then line id. Deterministic regardless of batch metadata.
	AllocationPolicyLowestBatch AllocationPolicy = "LowestBatch"
)

type ReservationStatus string

const (
	ReservationStatusActive   ReservationStatus = "Active"
	ReservationStatusReleased ReservationStatus = "Released"
	ReservationStatusConsumed ReservationStatus = "Consumed"
)
