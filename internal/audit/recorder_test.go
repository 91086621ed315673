package audit

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sdko-org/logrelay/internal/models"
	"github.com/sdko-org/logrelay/internal/testutil"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func entriesFor(t *testing.T, db *gorm.DB, chatID string) []models.LogEntry {
	t.Helper()
	var entries []models.LogEntry
	if err := db.Where("chat_id = ?", chatID).Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		t.Fatalf("query log entries: %v", err)
	}
	return entries
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRecorder_Record(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := NewRecorder(quietLogger(), db)

	country := "Local Network"
	rec.Record(context.Background(), &models.LogEntry{
		RequestID:   "req-1",
		ChatID:      "-1001",
		Filename:    "logs.txt",
		ContentType: models.ContentTypeText,
		ContentSize: 5,
		IP:          "127.0.0.1",
		Country:     &country,
		Status:      models.StatusSuccess,
	})

	entries := entriesFor(t, db, "-1001")
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.Status != models.StatusSuccess || got.ContentType != models.ContentTypeText {
		t.Errorf("status/content type = %s/%s", got.Status, got.ContentType)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if got.Country == nil || *got.Country != "Local Network" {
		t.Errorf("Country = %v", got.Country)
	}
}

func TestRecorder_CanceledContextStillWrites(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := NewRecorder(quietLogger(), db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := "relay failed"
	rec.Record(ctx, &models.LogEntry{
		RequestID:    "req-2",
		ChatID:       "7",
		Filename:     "a.log",
		ContentType:  models.ContentTypeFile,
		IP:           "203.0.113.1",
		Status:       models.StatusFailed,
		ErrorMessage: &msg,
		CreatedAt:    time.Now(),
	})

	var count int64
	db.Model(&models.LogEntry{}).Where("chat_id = ?", "7").Count(&count)
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestRecorder_SwallowsErrors(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := NewRecorder(quietLogger(), db)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	sqlDB.Close()

	// Must not panic or block.
	rec.Record(context.Background(), &models.LogEntry{ChatID: "1", Status: models.StatusFailed})
}
