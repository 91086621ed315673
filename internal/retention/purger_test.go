package retention

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sdko-org/logrelay/internal/models"
	"github.com/sdko-org/logrelay/internal/testutil"
	"github.com/sirupsen/logrus"
)

type fakeArchive struct {
	mu      sync.Mutex
	deleted []string
	fail    map[string]bool
}

func (a *fakeArchive) Put(context.Context, string, []byte, string) error { return nil }

func (a *fakeArchive) Delete(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail[key] {
		return errors.New("delete refused")
	}
	a.deleted = append(a.deleted, key)
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func seed(t *testing.T, p *Purger, chatID string, age time.Duration, key string) {
	t.Helper()
	entry := models.LogEntry{
		RequestID:   chatID,
		ChatID:      chatID,
		Filename:    "logs.txt",
		ContentType: models.ContentTypeText,
		IP:          "127.0.0.1",
		Status:      models.StatusSuccess,
		CreatedAt:   p.now().Add(-age),
	}
	if key != "" {
		entry.ArchiveKey = &key
	}
	if err := p.db.Create(&entry).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	archive := &fakeArchive{fail: map[string]bool{"stuck": true}}
	p := NewPurger(quietLogger(), db, archive, 7*24*time.Hour, "@daily")
	now := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	seed(t, p, "fresh", time.Hour, "")
	seed(t, p, "old", 8*24*time.Hour, "")
	seed(t, p, "old-archived", 30*24*time.Hour, "k1")
	seed(t, p, "old-stuck", 9*24*time.Hour, "stuck")

	n, err := p.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 2 {
		t.Errorf("purged = %d, want 2", n)
	}

	var remaining []models.LogEntry
	db.Order("chat_id").Find(&remaining)
	if len(remaining) != 2 || remaining[0].ChatID != "fresh" || remaining[1].ChatID != "old-stuck" {
		t.Errorf("remaining = %+v", remaining)
	}
	if len(archive.deleted) != 1 || archive.deleted[0] != "k1" {
		t.Errorf("deleted objects = %v, want [k1]", archive.deleted)
	}
}

func TestPurgeExpired_NoArchive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	p := NewPurger(quietLogger(), db, nil, time.Hour, "@hourly")

	seed(t, p, "old", 2*time.Hour, "orphan")

	n, err := p.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	p := NewPurger(quietLogger(), nil, nil, time.Hour, "every now and then")
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	p := NewPurger(quietLogger(), nil, nil, time.Hour, "@yearly")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
