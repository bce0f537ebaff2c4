package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/cache"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/database"
)

const (
	succeededKey = "billing:counters:succeeded"
	failedKey    = "billing:counters:failed"
	refundedKey  = "billing:counters:refunded"
)

func dayField(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// AddPaymentSucceeded increments the pending succeeded counter for today in Redis
func AddPaymentSucceeded() error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, succeededKey, dayField(time.Now()), 1).Err()
}

// AddPaymentFailed increments the pending failed counter for today in Redis
func AddPaymentFailed() error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, failedKey, dayField(time.Now()), 1).Err()
}

// AddPaymentRefunded increments the pending refunded counter for today in Redis
func AddPaymentRefunded() error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, refundedKey, dayField(time.Now()), 1).Err()
}

// FlushAll flushes all pending billing counters to the database
func FlushAll() error {
	if err := flushHashToColumn(succeededKey, "succeeded_count"); err != nil {
		return err
	}
	if err := flushHashToColumn(failedKey, "failed_count"); err != nil {
		return err
	}
	return flushHashToColumn(refundedKey, "refunded_count")
}

// flushHashToColumn drains a Redis hash atomically and applies batched
// increments to billing_daily_stats. Uses RENAME to a temporary key for
// atomic drain without losing in-flight increments.
func flushHashToColumn(redisKey, column string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") || err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		rdb.Del(ctx, tmpKey)
		return nil
	}

	applied, err := upsertDayCounts(database.GetDB(), column, data)
	if err != nil {
		// Put whatever never reached the database back on the live hash so
		// the next flush retries it instead of dropping the counts.
		for field, inc := range unappliedCounts(data, applied) {
			rdb.HIncrBy(ctx, redisKey, field, inc)
		}
		rdb.Del(ctx, tmpKey)
		return err
	}

	// The temp key is only dropped once every increment is in the database.
	rdb.Del(ctx, tmpKey)
	return nil
}

// upsertDayCounts applies per-day increments to billing_daily_stats and
// reports which hash fields made it in. Unparseable fields count as applied;
// there is nothing to retry for them.
func upsertDayCounts(db *gorm.DB, column string, data map[string]string) (map[string]bool, error) {
	applied := make(map[string]bool, len(data))
	for field, v := range data {
		day, perr := time.ParseInLocation("2006-01-02", field, time.UTC)
		if perr != nil {
			applied[field] = true
			continue
		}
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			applied[field] = true
			continue
		}

		stat := &models.BillingDailyStat{Day: day}
		switch column {
		case "succeeded_count":
			stat.SucceededCount = inc
		case "failed_count":
			stat.FailedCount = inc
		case "refunded_count":
			stat.RefundedCount = inc
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "day"}},
			DoUpdates: clause.Assignments(map[string]interface{}{column: gorm.Expr(column+" + ?", inc)}),
		}).Create(stat).Error; err != nil {
			return applied, err
		}
		applied[field] = true
	}
	return applied, nil
}

// unappliedCounts returns the increments a failed flush still owes the live
// counter hash.
func unappliedCounts(data map[string]string, applied map[string]bool) map[string]int64 {
	left := map[string]int64{}
	for field, v := range data {
		if applied[field] {
			continue
		}
		inc, err := strconv.ParseInt(v, 10, 64)
		if err != nil || inc == 0 {
			continue
		}
		left[field] = inc
	}
	return left
}
