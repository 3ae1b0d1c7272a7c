package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dateP(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func line(id int64, batch string, onHand, reserved int64, exp *time.Time) StockLine {
	return StockLine{
		ID:             id,
		BatchNo:        batch,
		OnHandQty:      decimal.NewFromInt(onHand),
		ReservedQty:    decimal.NewFromInt(reserved),
		ExpirationDate: exp,
	}
}

func TestPlanAllocationFefoOrdering(t *testing.T) {
	candidates := []StockLine{
		line(1, "B3", 10, 0, dateP(2026, 12, 1)),
		line(2, "B1", 10, 0, dateP(2026, 10, 1)),
		line(3, "B2", 10, 0, nil), // no expiry sorts last
	}

	plan, err := planAllocation(candidates, decimal.NewFromInt(15), AllocationPolicyFEFO)
	if err != nil {
		t.Fatalf("planAllocation: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(plan))
	}
	if plan[0].StockLineId != 2 || !plan[0].Quantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("first allocation should drain earliest expiry fully, got %+v", plan[0])
	}
	if plan[1].StockLineId != 1 || !plan[1].Quantity.Equal(decimal.NewFromInt(5)) {
		t.Errorf("second allocation should take remainder from next expiry, got %+v", plan[1])
	}
}

func TestPlanAllocationSkipsFullyReservedLines(t *testing.T) {
	candidates := []StockLine{
		line(1, "B1", 10, 10, dateP(2026, 10, 1)), // zero available
		line(2, "B2", 10, 4, dateP(2026, 11, 1)),
	}

	plan, err := planAllocation(candidates, decimal.NewFromInt(6), AllocationPolicyFEFO)
	if err != nil {
		t.Fatalf("planAllocation: %v", err)
	}
	if len(plan) != 1 || plan[0].StockLineId != 2 {
		t.Fatalf("expected single allocation on line 2, got %+v", plan)
	}
	if !plan[0].Quantity.Equal(decimal.NewFromInt(6)) {
		t.Errorf("expected quantity 6, got %s", plan[0].Quantity)
	}
}

func TestPlanAllocationInsufficientLeavesNoPlan(t *testing.T) {
	candidates := []StockLine{
		line(1, "B1", 10, 3, dateP(2026, 10, 1)),
		line(2, "B2", 5, 0, dateP(2026, 11, 1)),
	}

	// available = 7 + 5 = 12 < 13
	plan, err := planAllocation(candidates, decimal.NewFromInt(13), AllocationPolicyFEFO)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if plan != nil {
		t.Errorf("failed plan must be empty, got %+v", plan)
	}
}

func TestPlanAllocationDeterministicTieBreak(t *testing.T) {
	sameDay := dateP(2026, 10, 1)
	candidates := []StockLine{
		line(7, "B2", 10, 0, sameDay),
		line(3, "B1", 10, 0, sameDay),
	}

	first, err := planAllocation(candidates, decimal.NewFromInt(12), AllocationPolicyFEFO)
	if err != nil {
		t.Fatalf("planAllocation: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := planAllocation(candidates, decimal.NewFromInt(12), AllocationPolicyFEFO)
		if err != nil {
			t.Fatalf("planAllocation: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("plan length changed between runs")
		}
		for j := range again {
			if again[j].StockLineId != first[j].StockLineId || !again[j].Quantity.Equal(first[j].Quantity) {
				t.Fatalf("plan differs between runs: %+v vs %+v", again, first)
			}
		}
	}
	// same expiration date: batch number breaks the tie
	if first[0].StockLineId != 3 {
		t.Errorf("expected batch B1 (line 3) first, got line %d", first[0].StockLineId)
	}
}

func TestStockLineInvariant(t *testing.T) {
	ok := line(1, "B1", 10, 10, nil)
	if err := ok.checkInvariant(); err != nil {
		t.Errorf("reserved == onHand is legal, got %v", err)
	}

	negative := line(2, "B1", -1, 0, nil)
	if err := negative.checkInvariant(); !errors.Is(err, ErrNegativeStock) {
		t.Errorf("expected ErrNegativeStock, got %v", err)
	}

	overReserved := line(3, "B1", 5, 6, nil)
	if err := overReserved.checkInvariant(); !errors.Is(err, ErrReservationMismatch) {
		t.Errorf("expected ErrReservationMismatch, got %v", err)
	}

	if !line(4, "B1", 8, 3, nil).AvailableQty().Equal(decimal.NewFromInt(5)) {
		t.Errorf("available should be onHand - reserved")
	}
}
