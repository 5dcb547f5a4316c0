package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserOrderTracking holds the per-user rolling counters read by the guard layer.
// Window columns hold the start of the hour, day and month each counter belongs to.
type UserOrderTracking struct {
	UserID              uuid.UUID       `gorm:"column:user_id;type:uuid;primaryKey"`
	OrdersThisHour      int             `gorm:"column:orders_this_hour;not null;default:0"`
	HourWindowStart     time.Time       `gorm:"column:hour_window_start;not null"`
	OrdersToday         int             `gorm:"column:orders_today;not null;default:0"`
	DayWindowStart      time.Time       `gorm:"column:day_window_start;not null"`
	DailySpend          decimal.Decimal `gorm:"column:daily_spend;type:numeric(12,2);not null;default:0"`
	MonthlySpend        decimal.Decimal `gorm:"column:monthly_spend;type:numeric(12,2);not null;default:0"`
	MonthWindowStart    time.Time       `gorm:"column:month_window_start;not null"`
	ConsecutiveFailures int             `gorm:"column:consecutive_failures;not null;default:0"`
	LastOrderAt         *time.Time      `gorm:"column:last_order_at"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
