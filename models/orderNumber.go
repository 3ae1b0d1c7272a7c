package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/wms_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentPrefix lets operators override the number prefix per order
// kind (defaults come from OrderKind.Prefix). The map is cached in
// redis; cache misses fall through to the table.
type DocumentPrefix struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderKind OrderKind `gorm:"type:enum('Procurement','Inbound','Outbound','InventoryCheck');uniqueIndex;not null" json:"order_kind"`
	Prefix    string    `gorm:"size:10;not null" json:"prefix"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DocumentNumberSeries hands out per-kind, per-day sequence numbers.
type DocumentNumberSeries struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderKind OrderKind `gorm:"type:enum('Procurement','Inbound','Outbound','InventoryCheck');uniqueIndex:idx_series_kind_date,priority:1;not null" json:"order_kind"`
	DateKey   string    `gorm:"size:8;uniqueIndex:idx_series_kind_date,priority:2;not null" json:"date_key"`
	NextSeq   int64     `gorm:"not null;default:1" json:"next_seq"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const documentPrefixCacheKey = "docPrefixMap"

// get number prefix for an order kind, redis or db
func getDocumentPrefix(ctx context.Context, db *gorm.DB, kind OrderKind) (string, error) {
	prefixes := make(map[OrderKind]string)
	exists, err := config.GetRedisObject(documentPrefixCacheKey, &prefixes)
	if err != nil {
		return "", err
	}
	if !exists {
		var rows []DocumentPrefix
		if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
			return "", err
		}
		for _, row := range rows {
			prefixes[row.OrderKind] = row.Prefix
		}
		if err := config.SetRedisObject(documentPrefixCacheKey, &prefixes, 0); err != nil {
			return "", err
		}
	}

	prefix, ok := prefixes[kind]
	if !ok || prefix == "" {
		return kind.Prefix(), nil
	}
	return prefix, nil
}

// NextOrderNumber returns the next document number for an order kind,
// e.g. PO20260901-0001. Must run inside the transaction that creates
// the order so a rolled-back create does not burn a visible number gap
// into committed state.
func NextOrderNumber(tx *gorm.DB, ctx context.Context, kind OrderKind) (string, error) {
	prefix, err := getDocumentPrefix(ctx, tx, kind)
	if err != nil {
		return "", err
	}
	dateKey := time.Now().Format("20060102")

	// upsert the series row, then lock and bump it
	series := DocumentNumberSeries{OrderKind: kind, DateKey: dateKey, NextSeq: 1}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&series).Error; err != nil {
		return "", err
	}
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_kind = ? AND date_key = ?", kind, dateKey).
		First(&series).Error; err != nil {
		return "", err
	}
	seq := series.NextSeq
	if err := tx.WithContext(ctx).Model(&DocumentNumberSeries{}).
		Where("id = ?", series.ID).
		Update("next_seq", seq+1).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%s-%04d", prefix, dateKey, seq), nil
}
