// Package access exposes the read side of the IP block list and panic-mode flag.
package access

import (
	"context"
	"errors"
	"strings"

	"github.com/sdko-org/logrelay/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Policy is consulted before any request content is parsed.
type Policy interface {
	IsBlocked(ctx context.Context, ip string) bool
	IsPanicked(ctx context.Context) bool
}

// Store reads the policy fresh from the database on every call. Lookup errors
// are logged and treated as "not blocked" and "not panicked".
type Store struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewStore(logger *logrus.Logger, db *gorm.DB) *Store {
	return &Store{
		db:  db,
		log: logger.WithField("component", "access_policy"),
	}
}

func (s *Store) IsBlocked(ctx context.Context, ip string) bool {
	if ip == "" {
		return false
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.BlockedIP{}).
		Where("ip = ?", ip).
		Count(&count).Error
	if err != nil {
		s.log.WithFields(logrus.Fields{"ip": ip, "error": err}).Error("Blocked IP lookup failed")
		return false
	}
	return count > 0
}

func (s *Store) IsPanicked(ctx context.Context) bool {
	var setting models.Setting
	err := s.db.WithContext(ctx).
		Where("key = ?", models.SettingPanicMode).
		First(&setting).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.WithError(err).Error("Panic mode lookup failed")
		}
		return false
	}
	return strings.EqualFold(strings.TrimSpace(setting.Value), "true")
}
