package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/giftflow-backend/pkg/types"
)

// BusinessPaymentMethod is the company card the marketplace order is charged to.
type BusinessPaymentMethod struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CardholderName string                 `gorm:"column:cardholder_name;not null"`
	SealedCard     string                 `gorm:"column:sealed_card;not null"`
	ExpMonth       int                    `gorm:"column:exp_month;not null"`
	ExpYear        int                    `gorm:"column:exp_year;not null"`
	BillingAddress *types.ShippingAddress `gorm:"column:billing_address;type:jsonb"`
	IsDefault      bool                   `gorm:"column:is_default;not null;default:false"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
