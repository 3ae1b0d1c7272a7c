package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Allocation is one slice of a reservation plan: take Quantity from the
// stock line with StockLineId.
type Allocation struct {
	StockLineId int64
	Quantity    decimal.Decimal
}

// planAllocation distributes qty across candidate lines according to
// policy. Pure function: candidates are not mutated, and on
// ErrInsufficientStock no partial plan is returned (the all-or-nothing
// half of the reservation contract; the transactional half lives in
// ReserveStock).
func planAllocation(candidates []StockLine, qty decimal.Decimal, policy AllocationPolicy) ([]Allocation, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, validationErrorf("reserve quantity must be positive, got %s", qty)
	}

	ordered := make([]StockLine, len(candidates))
	copy(ordered, candidates)
	sortCandidates(ordered, policy)

	remaining := qty
	var plan []Allocation
	for _, line := range ordered {
		if remaining.IsZero() {
			break
		}
		available := line.AvailableQty()
		if available.LessThanOrEqual(decimal.Zero) {
			continue
		}
		take := decimal.Min(available, remaining)
		plan = append(plan, Allocation{StockLineId: line.ID, Quantity: take})
		remaining = remaining.Sub(take)
	}
	if remaining.GreaterThan(decimal.Zero) {
		return nil, ErrInsufficientStock
	}
	return plan, nil
}

func sortCandidates(lines []StockLine, policy AllocationPolicy) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if policy == AllocationPolicyFEFO {
			switch {
			case a.ExpirationDate != nil && b.ExpirationDate == nil:
				return true
			case a.ExpirationDate == nil && b.ExpirationDate != nil:
				return false
			case a.ExpirationDate != nil && b.ExpirationDate != nil:
				if !a.ExpirationDate.Equal(*b.ExpirationDate) {
					return a.ExpirationDate.Before(*b.ExpirationDate)
				}
			}
		}
		if a.BatchNo != b.BatchNo {
			return a.BatchNo < b.BatchNo
		}
		if a.Location != b.Location {
			return a.Location < b.Location
		}
		return a.ID < b.ID
	})
}
