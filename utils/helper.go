package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/wms_backend/config"
	"github.com/bsm/redislock"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func DereferencePtr[T any](ptr *T) T {
	var zero T
	if ptr == nil {
		return zero
	}
	return *ptr
}

func UniqueSlice[T comparable](s []T) []T {
	seen := make(map[T]struct{}, len(s))
	result := make([]T, 0, len(s))
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// NormalizePage clamps page/pageSize the way the list endpoints expect.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// WarehouseLock obtains a best-effort redis lock for a warehouse and
// returns a release func. Postings also take row locks inside their DB
// transaction; this lock only reduces InnoDB contention when many
// postings hit the same warehouse, so a missing redis client is not an
// error.
func WarehouseLock(ctx context.Context, warehouseId int64, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}
	lockKey := fmt.Sprintf("stockLock:%d", warehouseId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for warehouse", warehouseId, err)
		return nil, errors.New("could not obtain lock for warehouse")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for warehouse", warehouseId, err)
		return nil, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}
