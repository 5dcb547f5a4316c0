package outbox

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/giftflow-backend/pkg/logger"
)

// Writer appends order events to outbox_events for the relay to publish.
type Writer struct {
	store *Repository
	logg  *logger.Logger
	clock func() time.Time
}

func NewWriter(store *Repository, logg *logger.Logger) *Writer {
	return &Writer{store: store, logg: logg, clock: time.Now}
}

// Emit must run on the caller's transaction: the event exists only if the
// state change it describes commits.
func (w *Writer) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	row, env, err := event.toRow(w.clock())
	if err != nil {
		return err
	}
	if err := w.store.Insert(tx, row); err != nil {
		return err
	}
	if w.logg != nil {
		w.logg.Debug(w.logg.WithFields(ctx, map[string]any{
			"outbox_id": row.ID.String(),
			"event_id":  env.EventID,
			"type":      row.EventType,
			"order_id":  row.AggregateID.String(),
		}), "order event staged")
	}
	return nil
}
