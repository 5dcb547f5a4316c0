package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/giftflow-backend/internal/repo"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/pagination"
	"github.com/angelmondragon/giftflow-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MarketplaceStatusSubmitting marks an order whose submission is in flight.
const MarketplaceStatusSubmitting = "submitting"

// SystemAuthor is the author recorded on notes written by the backend.
const SystemAuthor = "system"

var submittableStatuses = []enums.OrderStatus{
	enums.OrderStatusPending,
	enums.OrderStatusProcessing,
	enums.OrderStatusFailed,
}

type repository struct {
	repo.Scope
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Scope: repo.Bind(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Scope: r.Scope.Within(tx)}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order required")
	}
	if !order.TotalsBalanced() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf(
			"order total %s does not equal subtotal, shipping, tax and gifting fee (%s)",
			order.TotalAmount.StringFixed(2), order.ComponentsTotal().StringFixed(2),
		))
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
		order.Items[i].Position = i
	}
	return r.Query(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *repository) FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	return r.findOne(ctx, "checkout_session_id = ?", strings.TrimSpace(sessionID))
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	return r.findOne(ctx, "payment_intent_id = ?", strings.TrimSpace(paymentIntentID))
}

func (r *repository) findOne(ctx context.Context, where string, arg any) (*models.Order, error) {
	var order models.Order
	err := r.Query(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where(where, arg).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, sessionID string, paymentIntentID *string) (bool, error) {
	updates := map[string]any{
		"payment_status":      enums.PaymentStatusSucceeded,
		"status":              enums.OrderStatusProcessing,
		"checkout_session_id": sessionID,
		"updated_at":          time.Now().UTC(),
	}
	if paymentIntentID != nil && *paymentIntentID != "" {
		updates["payment_intent_id"] = *paymentIntentID
	}
	return r.conditionalUpdate(ctx, updates, "id = ? AND status = ?", id, enums.OrderStatusPending)
}

func (r *repository) MarkPaymentFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	updates := map[string]any{
		"payment_status": enums.PaymentStatusFailed,
		"updated_at":     time.Now().UTC(),
	}
	return r.conditionalUpdate(ctx, updates, "id = ? AND status = ? AND payment_status = ?", id, enums.OrderStatusPending, enums.PaymentStatusPending)
}

func (r *repository) MarkScheduled(ctx context.Context, id uuid.UUID, deliveryDate time.Time, groups types.DeliveryGroups) (bool, error) {
	updates := map[string]any{
		"status":                  enums.OrderStatusScheduled,
		"scheduled_delivery_date": types.TruncateDay(deliveryDate),
		"delivery_groups":         groups,
		"updated_at":              time.Now().UTC(),
	}
	return r.conditionalUpdate(ctx, updates,
		"id = ? AND status = ? AND marketplace_order_id IS NULL",
		id, enums.OrderStatusProcessing)
}

func (r *repository) ReleaseScheduled(ctx context.Context, id uuid.UUID) (bool, error) {
	updates := map[string]any{
		"status":     enums.OrderStatusProcessing,
		"updated_at": time.Now().UTC(),
	}
	return r.conditionalUpdate(ctx, updates,
		"id = ? AND status = ? AND marketplace_order_id IS NULL",
		id, enums.OrderStatusScheduled)
}

func (r *repository) IncrementRetryCount(ctx context.Context, id uuid.UUID) (int, error) {
	res := r.Query(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	var count int
	err := r.Query(ctx).
		Model(&models.Order{}).
		Select("retry_count").
		Where("id = ?", id).
		Scan(&count).Error
	return count, err
}

// ClaimSubmission takes the single in-flight slot for an order. A claim older than staleBefore
// is treated as abandoned so a crashed submitter cannot wedge the order forever.
func (r *repository) ClaimSubmission(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (bool, error) {
	updates := map[string]any{
		"marketplace_status":    MarketplaceStatusSubmitting,
		"submission_started_at": now.UTC(),
		"updated_at":            now.UTC(),
	}
	return r.conditionalUpdate(ctx, updates,
		"id = ? AND marketplace_order_id IS NULL AND status IN ? AND payment_status = ? AND (submission_started_at IS NULL OR submission_started_at < ?)",
		id, submittableStatuses, enums.PaymentStatusSucceeded, staleBefore.UTC())
}

func (r *repository) RecordSubmissionSuccess(ctx context.Context, id uuid.UUID, marketplaceOrderID, marketplaceStatus string) (bool, error) {
	updates := map[string]any{
		"marketplace_order_id":  marketplaceOrderID,
		"marketplace_status":    marketplaceStatus,
		"status":                enums.OrderStatusProcessing,
		"submission_started_at": nil,
		"updated_at":            time.Now().UTC(),
	}
	return r.conditionalUpdate(ctx, updates, "id = ? AND marketplace_order_id IS NULL", id)
}

func (r *repository) RecordSubmissionFailure(ctx context.Context, id uuid.UUID, marketplaceStatus string) (bool, error) {
	updates := map[string]any{
		"status":                enums.OrderStatusFailed,
		"marketplace_status":    marketplaceStatus,
		"submission_started_at": nil,
		"updated_at":            time.Now().UTC(),
	}
	return r.conditionalUpdate(ctx, updates, "id = ? AND marketplace_order_id IS NULL", id)
}

func (r *repository) ReleaseSubmissionClaim(ctx context.Context, id uuid.UUID, marketplaceStatus string) error {
	updates := map[string]any{
		"submission_started_at": nil,
		"updated_at":            time.Now().UTC(),
	}
	if marketplaceStatus != "" {
		updates["marketplace_status"] = marketplaceStatus
	}
	return r.Query(ctx).
		Model(&models.Order{}).
		Where("id = ? AND marketplace_order_id IS NULL", id).
		Updates(updates).Error
}

func (r *repository) AppendNote(ctx context.Context, orderID uuid.UUID, body string) error {
	note := models.OrderNote{
		ID:      uuid.New(),
		OrderID: orderID,
		Author:  SystemAuthor,
		Body:    body,
	}
	return r.Query(ctx).Create(&note).Error
}

func (r *repository) ListNotes(ctx context.Context, orderID uuid.UUID) ([]models.OrderNote, error) {
	var notes []models.OrderNote
	err := r.Query(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&notes).Error
	return notes, err
}

func (r *repository) ListStuck(ctx context.Context, query StuckQuery) ([]models.Order, *pagination.Cursor, error) {
	q := r.Query(ctx).
		Model(&models.Order{}).
		Where("payment_status = ?", enums.PaymentStatusSucceeded).
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusProcessing}).
		Where("marketplace_order_id IS NULL").
		Where("created_at >= ?", query.CreatedAfter.UTC())
	if query.CreatedBefore != nil {
		q = q.Where("created_at <= ?", query.CreatedBefore.UTC())
	}

	var rows []models.Order
	if err := pagination.After(q, query.Cursor, query.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	rows, next := pagination.Page(rows, query.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return rows, next, nil
}

func (r *repository) ListScheduled(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Order
	err := r.Query(ctx).
		Where("status = ? AND payment_status = ? AND marketplace_order_id IS NULL", enums.OrderStatusScheduled, enums.PaymentStatusSucceeded).
		Order("scheduled_delivery_date ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) conditionalUpdate(ctx context.Context, updates map[string]any, where string, args ...any) (bool, error) {
	res := r.Query(ctx).
		Model(&models.Order{}).
		Where(where, args...).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
