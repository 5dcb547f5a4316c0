package models

import (
	"time"

	"github.com/google/uuid"
)

// MarketplaceAccount holds the sealed credentials used to place marketplace orders.
type MarketplaceAccount struct {
	ID                    uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Retailer              string    `gorm:"column:retailer;not null"`
	AccountEmail          string    `gorm:"column:account_email;not null"`
	SealedClientToken     string    `gorm:"column:sealed_client_token;not null"`
	SealedRetailerSecrets string    `gorm:"column:sealed_retailer_secrets;not null"`
	IsActive              bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
