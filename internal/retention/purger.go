// Package retention removes audit records (and their archived payloads) past
// the configured age.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sdko-org/logrelay/internal/models"
	"github.com/sdko-org/logrelay/internal/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const batchSize = 500

type Purger struct {
	db       *gorm.DB
	archive  storage.Archive
	maxAge   time.Duration
	schedule string
	now      func() time.Time
	log      *logrus.Entry
}

// NewPurger returns a purger for entries older than maxAge. archive may be nil.
func NewPurger(logger *logrus.Logger, db *gorm.DB, archive storage.Archive, maxAge time.Duration, schedule string) *Purger {
	return &Purger{
		db:       db,
		archive:  archive,
		maxAge:   maxAge,
		schedule: schedule,
		now:      time.Now,
		log:      logger.WithField("component", "retention_purger"),
	}
}

// Start runs PurgeExpired on the cron schedule until ctx is canceled.
func (p *Purger) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(p.schedule, func() {
		if _, err := p.PurgeExpired(ctx); err != nil {
			p.log.WithError(err).Error("Retention purge failed")
		}
	})
	if err != nil {
		return err
	}

	p.log.WithFields(logrus.Fields{"schedule": p.schedule, "max_age": p.maxAge.String()}).Info("Starting retention purger")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	p.log.Info("Stopping retention purger")
	return nil
}

// PurgeExpired deletes entries created before now-maxAge and returns how many
// rows were removed. Archived objects are removed first; a failed object
// delete keeps its row so the next run retries it.
func (p *Purger) PurgeExpired(ctx context.Context) (int, error) {
	cutoff := p.now().Add(-p.maxAge)
	log := p.log.WithFields(logrus.Fields{"operation": "purge", "cutoff": cutoff.Format(time.RFC3339)})

	total := 0
	var lastID uint
	for {
		var entries []models.LogEntry
		err := p.db.WithContext(ctx).
			Select("id", "archive_key").
			Where("created_at < ? AND id > ?", cutoff, lastID).
			Order("id").
			Limit(batchSize).
			Find(&entries).Error
		if err != nil {
			return total, err
		}
		if len(entries) == 0 {
			break
		}
		lastID = entries[len(entries)-1].ID

		ids := make([]uint, 0, len(entries))
		for _, entry := range entries {
			if entry.ArchiveKey != nil && p.archive != nil {
				if err := p.archive.Delete(ctx, *entry.ArchiveKey); err != nil {
					log.WithFields(logrus.Fields{"key": *entry.ArchiveKey, "error": err}).Error("Failed to delete archived upload")
					continue
				}
			}
			ids = append(ids, entry.ID)
		}

		if len(ids) > 0 {
			res := p.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.LogEntry{})
			if res.Error != nil {
				return total, res.Error
			}
			total += int(res.RowsAffected)
		}

		if len(entries) < batchSize {
			break
		}
	}

	log.WithField("count", total).Info("Purged expired log entries")
	return total, nil
}
