package models

import (
	"log"

	"bitbucket.org/mmdatafocus/wms_backend/config"
)

func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Category{},
		&Product{},
		&Supplier{},
		&Warehouse{},
		&StockLine{},
		&Reservation{},
		&StockMovement{},
		&DocumentPrefix{},
		&DocumentNumberSeries{},
		&Procurement{},
		&ProcurementDetail{},
		&Inbound{},
		&InboundDetail{},
		&Outbound{},
		&OutboundDetail{},
		&InventoryCheck{},
		&InventoryCheckDetail{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
