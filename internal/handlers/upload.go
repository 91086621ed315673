package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sdko-org/logrelay/internal/geo"
	"github.com/sdko-org/logrelay/internal/metrics"
	"github.com/sdko-org/logrelay/internal/models"
	"github.com/sdko-org/logrelay/internal/storage"
	"github.com/sdko-org/logrelay/internal/telegram"
	"github.com/sdko-org/logrelay/internal/upload"
	"github.com/sirupsen/logrus"
)

const (
	msgSent          = "Logs sent successfully to Telegram"
	msgInvalid       = "Invalid request"
	msgRelayFailed   = "Failed to send logs to Telegram"
	msgConfigError   = "Server configuration error"
	msgInternalError = "Internal server error"

	archiveTimeout = 30 * time.Second
)

type Relay interface {
	SendLogs(ctx context.Context, chatID string, doc telegram.Document) (string, error)
}

type Locator interface {
	Resolve(ctx context.Context, ip string) geo.Location
}

type Recorder interface {
	Record(ctx context.Context, entry *models.LogEntry)
}

// UploadHandler runs the part of the pipeline after rate limiting and access
// checks: parse, relay, archive and record.
type UploadHandler struct {
	parser   *upload.Parser
	relay    Relay
	locator  Locator
	recorder Recorder
	archive  storage.Archive
	newID    func() string
	now      func() time.Time
	log      *logrus.Entry
	pending  sync.WaitGroup
}

// NewUploadHandler wires the pipeline. archive may be nil.
func NewUploadHandler(logger *logrus.Logger, parser *upload.Parser, relay Relay, locator Locator, recorder Recorder, archive storage.Archive) *UploadHandler {
	return &UploadHandler{
		parser:   parser,
		relay:    relay,
		locator:  locator,
		recorder: recorder,
		archive:  archive,
		newID:    uuid.NewString,
		now:      time.Now,
		log:      logger.WithField("component", "upload_handler"),
	}
}

// attempt carries what is known about one upload for its audit record.
type attempt struct {
	entry    *models.LogEntry
	geo      <-chan geo.Location
	archive  <-chan string
	recorded bool
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := strings.TrimSpace(mux.Vars(r)["chat_id"])
	ip := getClientIP(r)

	log := h.log.WithFields(logrus.Fields{"chat_id": chatID, "client_ip": ip})

	if chatID == "" {
		writeError(w, http.StatusBadRequest, msgInvalid, "Chat ID is required")
		return
	}

	a := &attempt{entry: &models.LogEntry{
		RequestID:   h.newID(),
		ChatID:      chatID,
		Filename:    upload.DefaultFilename,
		ContentType: models.ContentTypeText,
		IP:          ip,
		UserAgent:   optional(r.UserAgent()),
	}}
	log = log.WithField("request_id", a.entry.RequestID)

	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Errorf("Upload handler panicked\n%s", debug.Stack())
			if a.recorded {
				return
			}
			writeError(w, http.StatusInternalServerError, msgInternalError, "An unexpected error occurred")
			h.complete(ctx, a, fmt.Sprint(rec))
		}
	}()

	geoCh := make(chan geo.Location, 1)
	a.geo = geoCh
	go func() {
		geoCh <- h.locator.Resolve(context.WithoutCancel(ctx), ip)
	}()

	payload, err := h.parser.Parse(w, r)
	if err != nil {
		if upload.IsValidationError(err) {
			log.WithError(err).Info("Rejected invalid upload")
			writeError(w, http.StatusBadRequest, msgInvalid, err.Error())
			return
		}
		log.WithError(err).Error("Failed to read upload")
		writeError(w, http.StatusInternalServerError, msgInternalError, err.Error())
		h.complete(ctx, a, err.Error())
		return
	}

	a.entry.Filename = payload.Filename
	a.entry.ContentType = payload.Kind
	a.entry.ContentSize = payload.Size
	a.entry.Caption = optional(payload.Caption)

	if h.archive != nil {
		a.archive = h.startArchive(ctx, log, a.entry, payload)
	}

	method, err := h.relay.SendLogs(ctx, chatID, telegram.Document{
		Content:  payload.Content,
		Filename: payload.Filename,
		Caption:  payload.Caption,
		Textual:  payload.Textual(),
	})

	var apiErr *telegram.APIError
	switch {
	case err == nil:
		log.WithFields(logrus.Fields{"method": method, "size": payload.Size}).Info("Logs relayed")
		writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: msgSent})
		h.complete(ctx, a, "")

	case errors.Is(err, telegram.ErrNotConfigured):
		log.Error("Telegram bot token is not configured")
		writeError(w, http.StatusInternalServerError, msgConfigError, "Telegram bot token is not configured")
		h.complete(ctx, a, "Telegram bot token is not configured")

	case errors.As(err, &apiErr):
		log.WithError(err).Warn("Relay rejected upload")
		writeError(w, http.StatusBadGateway, msgRelayFailed, apiErr.Description)
		h.complete(ctx, a, apiErr.Description)

	default:
		log.WithError(err).Warn("Relay failed")
		writeError(w, http.StatusBadGateway, msgRelayFailed, err.Error())
		h.complete(ctx, a, err.Error())
	}
}

func (h *UploadHandler) startArchive(ctx context.Context, log *logrus.Entry, entry *models.LogEntry, payload *upload.Payload) <-chan string {
	ch := make(chan string, 1)
	key := storage.ArchiveKey(entry.ChatID, entry.RequestID, payload.Filename, h.now())
	contentType := "application/octet-stream"
	if payload.Textual() {
		contentType = "text/plain; charset=utf-8"
	}

	go func() {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()

		if err := h.archive.Put(actx, key, payload.Content, contentType); err != nil {
			log.WithFields(logrus.Fields{"key": key, "error": err}).Error("Failed to archive upload")
			ch <- ""
			return
		}
		ch <- key
	}()
	return ch
}

// complete records the attempt in the background so the response is not held
// back by geolocation, archiving or the database. An empty failure marks it
// successful.
func (h *UploadHandler) complete(ctx context.Context, a *attempt, failure string) {
	a.recorded = true
	ctx = context.WithoutCancel(ctx)

	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		defer func() {
			if rec := recover(); rec != nil {
				h.log.WithFields(logrus.Fields{"request_id": a.entry.RequestID, "panic": rec}).Error("Recording upload panicked")
			}
		}()
		h.finish(ctx, a, failure)
	}()
}

// Wait blocks until every background record started so far is written.
func (h *UploadHandler) Wait() {
	h.pending.Wait()
}

// finish waits for geolocation and the archive copy, then persists the attempt.
func (h *UploadHandler) finish(ctx context.Context, a *attempt, failure string) {
	entry := a.entry
	entry.Status = models.StatusSuccess
	if failure != "" {
		entry.Status = models.StatusFailed
		entry.ErrorMessage = &failure
	}

	if a.geo != nil {
		loc := <-a.geo
		entry.Country = loc.Country
		entry.CountryCode = loc.CountryCode
		entry.City = loc.City
		entry.Lat = loc.Lat
		entry.Lon = loc.Lon
	}
	if a.archive != nil {
		if key := <-a.archive; key != "" {
			entry.ArchiveKey = &key
		}
	}

	metrics.UploadsTotal.WithLabelValues(entry.ContentType, entry.Status).Inc()
	h.recorder.Record(ctx, entry)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
