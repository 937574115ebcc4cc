package core

import (
	"context"
	"time"

	"example.com/fdms/services/admin/internal/infrastructure"
	"github.com/sirupsen/logrus"
)

// AuditRecorder appends the immutable audit trail. Record must run inside
// the same transaction as the entity change it describes: the store handle
// passed in is the tx-scoped one, so either both rows commit or neither
// does. Export is a separate, best-effort feed to a downstream queue and
// never participates in the transaction.
type AuditRecorder struct {
	messaging *infrastructure.Messaging
	logger    *logrus.Logger
}

func NewAuditRecorder(messaging *infrastructure.Messaging, logger *logrus.Logger) *AuditRecorder {
	return &AuditRecorder{
		messaging: messaging,
		logger:    logger,
	}
}

// Record appends one audit entry through the given (transactional) store.
func (r *AuditRecorder) Record(ctx context.Context, store DataStore, entry *AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return store.AppendAuditLog(ctx, entry)
}

// Export publishes a committed audit entry to the service bus, when one is
// configured. Failures are logged, not surfaced: the durable trail is the
// database row, the queue is a feed.
func (r *AuditRecorder) Export(entry *AuditLog) {
	if r.messaging == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := r.messaging.Publish(ctx, "audit", entry); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"entity_type": entry.EntityType,
				"action":      entry.Action,
			}).Error("Failed to export audit entry")
		}
	}()
}

func entityID(id uint) *int64 {
	v := int64(id)
	return &v
}

func deviceRef(deviceID int64) *int64 {
	return &deviceID
}
