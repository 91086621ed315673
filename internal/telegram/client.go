// Package telegram relays log content to the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sdko-org/logrelay/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// MaxMessageChars is the largest text sent inline. The API caps messages
	// at 4096 characters counted after entity parsing, so escapes and tags do
	// not count; the margin covers the caption.
	MaxMessageChars = 4000
	MaxCaptionChars = 1024

	MethodSendMessage  = "sendMessage"
	MethodSendDocument = "sendDocument"

	maxResponseBytes = 1 << 20
)

var ErrNotConfigured = errors.New("telegram: bot token is not configured")

// APIError is a rejected or failed Bot API call.
type APIError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (status %d): %s", e.Method, e.StatusCode, e.Description)
}

// Response mirrors the Bot API envelope.
type Response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// Document is one validated upload ready to relay.
type Document struct {
	Content  []byte
	Filename string
	Caption  string
	// Textual content may be sent inline; anything else is always attached.
	Textual bool
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Rate    float64
	Burst   int
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	timeout    time.Duration
	limiter    *rate.Limiter
	log        *logrus.Entry
}

func NewClient(logger *logrus.Logger, httpClient *http.Client, cfg Config) *Client {
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		timeout:    cfg.Timeout,
		limiter:    rate.NewLimiter(limit, burst),
		log:        logger.WithField("component", "telegram_client"),
	}
}

func (c *Client) Configured() bool {
	return c.token != ""
}

// ChooseMethod picks inline delivery for short text and attachment otherwise.
func ChooseMethod(doc Document) string {
	if doc.Textual && utf8.RuneCount(doc.Content) <= MaxMessageChars {
		return MethodSendMessage
	}
	return MethodSendDocument
}

// SendLogs relays doc to chatID and returns the Bot API method used.
// Failures are not retried.
func (c *Client) SendLogs(ctx context.Context, chatID string, doc Document) (string, error) {
	method := ChooseMethod(doc)
	if !c.Configured() {
		return method, ErrNotConfigured
	}

	var err error
	if method == MethodSendMessage {
		_, err = c.SendMessage(ctx, chatID, FormatMessage(doc.Caption, string(doc.Content)), "HTML")
	} else {
		_, err = c.SendDocument(ctx, chatID, doc.Filename, doc.Content, TruncateCaption(doc.Caption))
	}
	return method, err
}

func (c *Client) SendMessage(ctx context.Context, chatID, text, parseMode string) (*Response, error) {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return c.call(ctx, MethodSendMessage, "application/json", bytes.NewReader(body))
}

func (c *Client) SendDocument(ctx context.Context, chatID, filename string, content []byte, caption string) (*Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("chat_id", chatID); err != nil {
		return nil, fmt.Errorf("failed to build document form: %w", err)
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return nil, fmt.Errorf("failed to build document form: %w", err)
		}
	}
	part, err := mw.CreateFormFile("document", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build document form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to build document form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build document form: %w", err)
	}

	return c.call(ctx, MethodSendDocument, mw.FormDataContentType(), &buf)
}

func (c *Client) call(ctx context.Context, method, contentType string, body io.Reader) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("telegram %s: waiting for send slot: %w", method, err)
	}

	start := time.Now()
	defer func() {
		metrics.RelayDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithFields(logrus.Fields{"method": method, "error": err}).Error("Telegram request failed")
		return nil, &APIError{Method: method, Description: "request failed: " + stripToken(err.Error(), c.token)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &APIError{Method: method, StatusCode: resp.StatusCode, Description: "failed to read response"}
	}

	var result Response
	if err := json.Unmarshal(raw, &result); err != nil {
		result = Response{Description: http.StatusText(resp.StatusCode)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !result.OK {
		desc := result.Description
		if desc == "" {
			desc = fmt.Sprintf("unexpected response status %d", resp.StatusCode)
		}
		c.log.WithFields(logrus.Fields{
			"method":      method,
			"status_code": resp.StatusCode,
			"error_code":  result.ErrorCode,
			"description": desc,
		}).Warn("Telegram rejected request")
		return &result, &APIError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			ErrorCode:   result.ErrorCode,
			Description: desc,
		}
	}

	c.log.WithFields(logrus.Fields{
		"method":   method,
		"duration": time.Since(start),
	}).Debug("Telegram request succeeded")
	return &result, nil
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// FormatMessage renders the caption in bold above the body in a monospace block.
func FormatMessage(caption, body string) string {
	var b strings.Builder
	if caption != "" {
		b.WriteString("<b>")
		b.WriteString(EscapeHTML(caption))
		b.WriteString("</b>\n\n")
	}
	b.WriteString("<pre>")
	b.WriteString(EscapeHTML(body))
	b.WriteString("</pre>")
	return b.String()
}

func TruncateCaption(caption string) string {
	if utf8.RuneCountInString(caption) <= MaxCaptionChars {
		return caption
	}
	runes := []rune(caption)
	return string(runes[:MaxCaptionChars-1]) + "…"
}

func stripToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<redacted>")
}
