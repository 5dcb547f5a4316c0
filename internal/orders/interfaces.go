package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/pagination"
	"github.com/angelmondragon/giftflow-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for the orders table and its children.
// Every state transition is a conditional update; the bool result reports whether this caller won it.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Order, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, sessionID string, paymentIntentID *string) (bool, error)
	MarkPaymentFailed(ctx context.Context, id uuid.UUID) (bool, error)
	MarkScheduled(ctx context.Context, id uuid.UUID, deliveryDate time.Time, groups types.DeliveryGroups) (bool, error)
	ReleaseScheduled(ctx context.Context, id uuid.UUID) (bool, error)
	IncrementRetryCount(ctx context.Context, id uuid.UUID) (int, error)
	ClaimSubmission(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (bool, error)
	RecordSubmissionSuccess(ctx context.Context, id uuid.UUID, marketplaceOrderID, marketplaceStatus string) (bool, error)
	RecordSubmissionFailure(ctx context.Context, id uuid.UUID, marketplaceStatus string) (bool, error)
	ReleaseSubmissionClaim(ctx context.Context, id uuid.UUID, marketplaceStatus string) error
	AppendNote(ctx context.Context, orderID uuid.UUID, body string) error
	ListNotes(ctx context.Context, orderID uuid.UUID) ([]models.OrderNote, error)
	ListStuck(ctx context.Context, query StuckQuery) ([]models.Order, *pagination.Cursor, error)
	ListScheduled(ctx context.Context, limit int) ([]models.Order, error)
}

// StuckQuery selects paid orders that never reached the marketplace.
type StuckQuery struct {
	CreatedAfter  time.Time
	CreatedBefore *time.Time
	Limit         int
	Cursor        *pagination.Cursor
}
