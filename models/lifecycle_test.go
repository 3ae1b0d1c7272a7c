package models

import (
	"errors"
	"testing"
)

func TestOrderTransitionTable(t *testing.T) {
	cases := []struct {
		kind    OrderKind
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderKindProcurement, OrderStatusDraft, OrderStatusPending, true},
		{OrderKindProcurement, OrderStatusDraft, OrderStatusApproved, false},
		{OrderKindProcurement, OrderStatusPending, OrderStatusApproved, true},
		{OrderKindProcurement, OrderStatusApproved, OrderStatusOrdered, true},
		{OrderKindProcurement, OrderStatusApproved, OrderStatusCompleted, true},
		{OrderKindProcurement, OrderStatusOrdered, OrderStatusCompleted, true},
		{OrderKindProcurement, OrderStatusCompleted, OrderStatusCancelled, false},

		{OrderKindInbound, OrderStatusApproved, OrderStatusPosted, true},
		{OrderKindInbound, OrderStatusApproved, OrderStatusPicking, false},
		{OrderKindInbound, OrderStatusPosted, OrderStatusCancelled, false},
		{OrderKindInbound, OrderStatusDraft, OrderStatusPosted, false},

		{OrderKindOutbound, OrderStatusApproved, OrderStatusPicking, true},
		{OrderKindOutbound, OrderStatusPicking, OrderStatusPosted, true},
		{OrderKindOutbound, OrderStatusPicking, OrderStatusCancelled, true},
		{OrderKindOutbound, OrderStatusApproved, OrderStatusPosted, false},
		{OrderKindOutbound, OrderStatusPosted, OrderStatusPicking, false},

		{OrderKindInventoryCheck, OrderStatusDraft, OrderStatusChecking, true},
		{OrderKindInventoryCheck, OrderStatusChecking, OrderStatusCompleted, true},
		{OrderKindInventoryCheck, OrderStatusDraft, OrderStatusCompleted, false},
		{OrderKindInventoryCheck, OrderStatusChecking, OrderStatusCancelled, true},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.kind, tc.from, tc.to); got != tc.allowed {
			t.Errorf("%s %s -> %s: got %v, want %v", tc.kind, tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	terminals := map[OrderKind][]OrderStatus{
		OrderKindProcurement:    {OrderStatusCompleted, OrderStatusCancelled},
		OrderKindInbound:        {OrderStatusPosted, OrderStatusCancelled},
		OrderKindOutbound:       {OrderStatusPosted, OrderStatusCancelled},
		OrderKindInventoryCheck: {OrderStatusCompleted, OrderStatusCancelled},
	}
	allStatuses := []OrderStatus{
		OrderStatusDraft, OrderStatusPending, OrderStatusApproved, OrderStatusOrdered,
		OrderStatusPicking, OrderStatusPosted, OrderStatusChecking, OrderStatusCompleted,
		OrderStatusCancelled,
	}

	for kind, statuses := range terminals {
		for _, s := range statuses {
			if !IsTerminalStatus(kind, s) {
				t.Errorf("%s %s should be terminal", kind, s)
			}
			for _, target := range allStatuses {
				if CanTransition(kind, s, target) {
					t.Errorf("%s: terminal %s has edge to %s", kind, s, target)
				}
			}
		}
	}
}

func TestValidateTransitionError(t *testing.T) {
	err := validateTransition(OrderKindOutbound, OrderStatusPosted, OrderStatusPicking)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := validateTransition(OrderKindOutbound, OrderStatusDraft, OrderStatusPending); err != nil {
		t.Fatalf("legal edge should validate, got %v", err)
	}
}

func TestCancellableFromEveryNonTerminalStatus(t *testing.T) {
	for kind, edges := range orderTransitions {
		for from := range edges {
			if !CanTransition(kind, from, OrderStatusCancelled) {
				t.Errorf("%s: %s should be cancellable", kind, from)
			}
		}
	}
}
