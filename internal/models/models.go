package models

import (
	"time"
)

const (
	ContentTypeFile = "file"
	ContentTypeText = "text"

	StatusSuccess = "success"
	StatusFailed  = "failed"

	// SettingPanicMode holds "true" while all uploads are rejected.
	SettingPanicMode = "panic_mode"
)

// LogEntry is the audit record written once per upload attempt.
type LogEntry struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID    string    `gorm:"type:varchar(36);not null;index" json:"requestId"`
	ChatID       string    `gorm:"type:varchar(64);not null;index" json:"chatId"`
	Filename     string    `gorm:"type:varchar(255);not null" json:"filename"`
	ContentType  string    `gorm:"type:varchar(10);not null;index" json:"contentType"`
	ContentSize  int64     `gorm:"not null;default:0" json:"contentSize"`
	Caption      *string   `gorm:"type:text" json:"caption,omitempty"`
	IP           string    `gorm:"type:varchar(45);not null;index" json:"ip"`
	Country      *string   `gorm:"type:varchar(100)" json:"country,omitempty"`
	CountryCode  *string   `gorm:"type:varchar(10)" json:"countryCode,omitempty"`
	City         *string   `gorm:"type:varchar(100)" json:"city,omitempty"`
	Lat          *float64  `json:"lat,omitempty"`
	Lon          *float64  `json:"lon,omitempty"`
	UserAgent    *string   `gorm:"type:text" json:"userAgent,omitempty"`
	Status       string    `gorm:"type:varchar(10);not null;index" json:"status"`
	ErrorMessage *string   `gorm:"type:text" json:"errorMessage,omitempty"`
	ArchiveKey   *string   `gorm:"type:varchar(512)" json:"archiveKey,omitempty"`
	CreatedAt    time.Time `gorm:"index;not null" json:"createdAt"`
}

type BlockedIP struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	IP        string    `gorm:"type:varchar(45);uniqueIndex;not null"`
	Reason    string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index;not null"`
}

type Setting struct {
	Key       string `gorm:"primaryKey;type:varchar(64);not null"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (LogEntry) TableName() string {
	return "log_entries"
}

func (BlockedIP) TableName() string {
	return "blocked_ips"
}

func (Setting) TableName() string {
	return "settings"
}

// All lists every model managed by AutoMigrate.
func All() []interface{} {
	return []interface{}{&LogEntry{}, &BlockedIP{}, &Setting{}}
}
