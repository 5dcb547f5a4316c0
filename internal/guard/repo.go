package guard

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/giftflow-backend/internal/repo"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
)

// Repository persists the per-user guard state.
type Repository interface {
	FindTracking(ctx context.Context, userID uuid.UUID) (*models.UserOrderTracking, error)
	RecordSuccess(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, now time.Time) error
	RecordFailure(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)
	CountFingerprints(ctx context.Context, userID uuid.UUID, fingerprint string, since time.Time, excludeOrderID uuid.UUID) (int64, error)
	SaveFingerprint(ctx context.Context, fp *models.OrderFingerprint) error
	RecentOrders(ctx context.Context, userID uuid.UUID, since time.Time) ([]RecentOrder, error)
	InsertEvents(ctx context.Context, events []models.SecurityEvent) error
}

// RecentOrder is the slice of an order the behavior check looks at.
type RecentOrder struct {
	ID          uuid.UUID
	TotalAmount decimal.Decimal
	CreatedAt   time.Time
}

type repository struct {
	repo.Scope
}

// NewRepository wires guard persistence.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Scope: repo.Bind(db)}
}

// Windows returns the UTC starts of the hour, day and month containing now.
func Windows(now time.Time) (hour, day, month time.Time) {
	now = now.UTC()
	hour = now.Truncate(time.Hour)
	day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	month = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return hour, day, month
}

func (r *repository) FindTracking(ctx context.Context, userID uuid.UUID) (*models.UserOrderTracking, error) {
	var tracking models.UserOrderTracking
	err := r.Query(ctx).Where("user_id = ?", userID).First(&tracking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tracking, nil
}

// RecordSuccess adds the realized spend and resets the failure streak. Counters whose
// window has rolled over restart from this order.
func (r *repository) RecordSuccess(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, now time.Time) error {
	hour, day, month := Windows(now)
	row := models.UserOrderTracking{
		UserID:           userID,
		OrdersThisHour:   1,
		HourWindowStart:  hour,
		OrdersToday:      1,
		DayWindowStart:   day,
		DailySpend:       amount,
		MonthlySpend:     amount,
		MonthWindowStart: month,
		LastOrderAt:      &now,
		UpdatedAt:        now,
	}
	const t = "user_order_trackings."
	return r.Query(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"orders_this_hour":     gorm.Expr("CASE WHEN "+t+"hour_window_start < ? THEN 1 ELSE "+t+"orders_this_hour + 1 END", hour),
			"hour_window_start":    hour,
			"orders_today":         gorm.Expr("CASE WHEN "+t+"day_window_start < ? THEN 1 ELSE "+t+"orders_today + 1 END", day),
			"daily_spend":          gorm.Expr("CASE WHEN "+t+"day_window_start < ? THEN ? ELSE "+t+"daily_spend + ? END", day, amount, amount),
			"day_window_start":     day,
			"monthly_spend":        gorm.Expr("CASE WHEN "+t+"month_window_start < ? THEN ? ELSE "+t+"monthly_spend + ? END", month, amount, amount),
			"month_window_start":   month,
			"consecutive_failures": 0,
			"last_order_at":        now,
			"updated_at":           now,
		}),
	}).Create(&row).Error
}

// RecordFailure increments the failure streak and returns its new value.
func (r *repository) RecordFailure(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	hour, day, month := Windows(now)
	var count int
	err := r.Query(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.UserOrderTracking{
			UserID:              userID,
			HourWindowStart:     hour,
			DayWindowStart:      day,
			MonthWindowStart:    month,
			ConsecutiveFailures: 1,
			UpdatedAt:           now,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"consecutive_failures": gorm.Expr("user_order_trackings.consecutive_failures + 1"),
				"updated_at":           now,
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.UserOrderTracking{}).
			Select("consecutive_failures").
			Where("user_id = ?", userID).
			Scan(&count).Error
	})
	return count, err
}

func (r *repository) CountFingerprints(ctx context.Context, userID uuid.UUID, fingerprint string, since time.Time, excludeOrderID uuid.UUID) (int64, error) {
	var count int64
	err := r.Query(ctx).
		Model(&models.OrderFingerprint{}).
		Where("user_id = ? AND fingerprint = ? AND created_at >= ? AND order_id <> ?", userID, fingerprint, since, excludeOrderID).
		Count(&count).Error
	return count, err
}

// SaveFingerprint stores the hash for an order, replacing any earlier hash for it.
func (r *repository) SaveFingerprint(ctx context.Context, fp *models.OrderFingerprint) error {
	return r.Query(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"fingerprint"}),
	}).Create(fp).Error
}

func (r *repository) RecentOrders(ctx context.Context, userID uuid.UUID, since time.Time) ([]RecentOrder, error) {
	var rows []RecentOrder
	err := r.Query(ctx).
		Model(&models.Order{}).
		Select("id, total_amount, created_at").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) InsertEvents(ctx context.Context, events []models.SecurityEvent) error {
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		if events[i].ID == uuid.Nil {
			events[i].ID = uuid.New()
		}
	}
	return r.Query(ctx).Create(&events).Error
}

