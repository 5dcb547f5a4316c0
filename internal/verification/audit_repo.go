package verification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/giftflow-backend/internal/repo"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditRepository persists verification audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *models.VerificationAudit) error
	Finalize(ctx context.Context, id uuid.UUID, update AuditFinalization) error
	CountForSession(ctx context.Context, sessionID string) (int64, error)
	ListForSession(ctx context.Context, sessionID string) ([]models.VerificationAudit, error)
}

// AuditFinalization is the one-time terminal update applied to an attempt.
type AuditFinalization struct {
	Status   enums.VerificationStatus
	Method   enums.VerificationMethod
	OrderID  *uuid.UUID
	Metadata map[string]any
}

type auditRepository struct {
	repo.Scope
}

// NewAuditRepository builds the audit repository.
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{Scope: repo.Bind(db)}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.VerificationAudit) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.Query(ctx).Create(entry).Error
}

// Finalize only touches rows that were never finalized, keeping the trail append-only.
func (r *auditRepository) Finalize(ctx context.Context, id uuid.UUID, update AuditFinalization) error {
	updates := map[string]any{
		"status":       update.Status,
		"method":       update.Method,
		"finalized_at": time.Now().UTC(),
	}
	if update.OrderID != nil {
		updates["order_id"] = *update.OrderID
	}
	if len(update.Metadata) > 0 {
		raw, err := json.Marshal(update.Metadata)
		if err != nil {
			return err
		}
		updates["metadata"] = json.RawMessage(raw)
	}
	return r.Query(ctx).
		Model(&models.VerificationAudit{}).
		Where("id = ? AND finalized_at IS NULL", id).
		Updates(updates).Error
}

func (r *auditRepository) CountForSession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.Query(ctx).
		Model(&models.VerificationAudit{}).
		Where("checkout_session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

func (r *auditRepository) ListForSession(ctx context.Context, sessionID string) ([]models.VerificationAudit, error) {
	var rows []models.VerificationAudit
	err := r.Query(ctx).
		Where("checkout_session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}
