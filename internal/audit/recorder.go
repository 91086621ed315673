// Package audit persists one LogEntry per upload attempt.
package audit

import (
	"context"
	"time"

	"github.com/sdko-org/logrelay/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultWriteTimeout = 5 * time.Second

type Recorder struct {
	db      *gorm.DB
	log     *logrus.Entry
	timeout time.Duration
}

func NewRecorder(logger *logrus.Logger, db *gorm.DB) *Recorder {
	return &Recorder{
		db:      db,
		log:     logger.WithField("component", "audit"),
		timeout: defaultWriteTimeout,
	}
}

// Record writes entry and never reports failure to the caller. The write is
// detached from ctx cancellation so a client hanging up after the relay does
// not lose the record.
func (r *Recorder) Record(ctx context.Context, entry *models.LogEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	log := r.log.WithFields(logrus.Fields{
		"request_id": entry.RequestID,
		"chat_id":    entry.ChatID,
		"status":     entry.Status,
	})

	if err := r.db.WithContext(writeCtx).Create(entry).Error; err != nil {
		log.WithError(err).Error("Failed to persist log entry")
		return
	}
	log.WithField("id", entry.ID).Debug("Log entry recorded")
}
