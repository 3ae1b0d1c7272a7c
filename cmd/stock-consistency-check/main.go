package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/wms_backend/config"
	"bitbucket.org/mmdatafocus/wms_backend/models"
	"github.com/shopspring/decimal"
)

// stock-consistency-check audits the stock ledger:
//
//  1. per-line invariant: 0 <= reserved_qty <= on_hand_qty
//  2. reserved_qty equals the sum of Active reservations on the line
//  3. conservation: the movement journal sums to the line's on_hand_qty
//
// Read-only. Exits non-zero when any line fails, printing one row per
// discrepancy.
//
// Example:
//
//	go run ./cmd/stock-consistency-check/ -warehouse-id=3
func main() {
	warehouseID := flag.Int64("warehouse-id", 0, "Limit the audit to one warehouse (0 = all)")
	productID := flag.Int64("product-id", 0, "Limit the audit to one product (0 = all)")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	dbCtx := db.Model(&models.StockLine{})
	if *warehouseID > 0 {
		dbCtx = dbCtx.Where("warehouse_id = ?", *warehouseID)
	}
	if *productID > 0 {
		dbCtx = dbCtx.Where("product_id = ?", *productID)
	}

	var lines []models.StockLine
	if err := dbCtx.Order("id").Find(&lines).Error; err != nil {
		fmt.Fprintf(os.Stderr, "load stock lines: %v\n", err)
		os.Exit(1)
	}

	bad := 0
	for _, line := range lines {
		key := fmt.Sprintf("line=%d product=%d warehouse=%d location=%q batch=%q",
			line.ID, line.ProductId, line.WarehouseId, line.Location, line.BatchNo)

		if line.OnHandQty.IsNegative() {
			fmt.Printf("NEGATIVE ON-HAND %s on_hand=%s\n", key, line.OnHandQty)
			bad++
		}
		if line.ReservedQty.IsNegative() || line.ReservedQty.GreaterThan(line.OnHandQty) {
			fmt.Printf("RESERVED OUT OF RANGE %s on_hand=%s reserved=%s\n",
				key, line.OnHandQty, line.ReservedQty)
			bad++
		}

		var activeHeld decimal.Decimal
		err := db.Model(&models.Reservation{}).
			Where("stock_line_id = ? AND status = ?", line.ID, models.ReservationStatusActive).
			Select("COALESCE(SUM(quantity), 0)").Scan(&activeHeld).Error
		if err != nil {
			fmt.Fprintf(os.Stderr, "sum reservations for %s: %v\n", key, err)
			os.Exit(1)
		}
		if !activeHeld.Equal(line.ReservedQty) {
			fmt.Printf("RESERVATION DRIFT %s reserved=%s active_holds=%s\n",
				key, line.ReservedQty, activeHeld)
			bad++
		}

		var journalSum decimal.Decimal
		err = db.Model(&models.StockMovement{}).
			Where("stock_line_id = ?", line.ID).
			Select("COALESCE(SUM(change_qty), 0)").Scan(&journalSum).Error
		if err != nil {
			fmt.Fprintf(os.Stderr, "sum movements for %s: %v\n", key, err)
			os.Exit(1)
		}
		if !journalSum.Equal(line.OnHandQty) {
			fmt.Printf("JOURNAL DRIFT %s on_hand=%s journal_sum=%s\n",
				key, line.OnHandQty, journalSum)
			bad++
		}
	}

	fmt.Printf("checked %d stock lines, %d discrepancies\n", len(lines), bad)
	if bad > 0 {
		os.Exit(1)
	}
}
