// Package upload turns an upload request body into a validated Payload.
package upload

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/sdko-org/logrelay/internal/models"
	"github.com/sdko-org/logrelay/internal/sanitize"
)

const (
	DefaultFilename = "logs.txt"
	// DefaultMaxFileSize is the largest accepted file in bytes.
	DefaultMaxFileSize int64 = 18 * 1024 * 1024

	multipartOverhead  int64 = 1 << 20
	multipartMaxMemory int64 = 8 << 20
)

// AllowedExtensions are compared case-insensitively.
var AllowedExtensions = []string{".log", ".txt", ".zip"}

// Format is the body encoding selected from the Content-Type header.
type Format string

const (
	FormatMultipart Format = "multipart/form-data"
	FormatJSON      Format = "application/json"
	FormatPlain     Format = "text/plain"
)

// ValidationError is a client input problem, reported with status 400.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Payload is validated, sanitized content ready to relay.
type Payload struct {
	Kind     string
	Content  []byte
	Filename string
	Caption  string
	Size     int64
}

func (p *Payload) Textual() bool {
	return p.Kind == models.ContentTypeText
}

type parseFunc func(p *Parser, w http.ResponseWriter, r *http.Request) (*Payload, string, error)

var parsers = map[Format]parseFunc{
	FormatMultipart: parseMultipart,
	FormatJSON:      parseJSON,
	FormatPlain:     parsePlain,
}

// Negotiate resolves the declared Content-Type to a Format. No sniffing.
func Negotiate(contentType string) (Format, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", invalid("Missing Content-Type header")
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", invalid("Unsupported content type")
	}
	format := Format(strings.ToLower(mediaType))
	if _, ok := parsers[format]; !ok {
		return "", invalid("Unsupported content type: %s", mediaType)
	}
	return format, nil
}

type Parser struct {
	MaxFileSize int64
	Now         func() time.Time
}

func NewParser(maxFileSize int64) *Parser {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Parser{MaxFileSize: maxFileSize, Now: time.Now}
}

// Parse validates the request body. Errors of type *ValidationError map to 400;
// any other error is unexpected.
func (p *Parser) Parse(w http.ResponseWriter, r *http.Request) (*Payload, error) {
	format, err := Negotiate(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	payload, caption, err := parsers[format](p, w, r)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(caption) == "" {
		caption = DefaultCaption(p.Now())
	}
	payload.Caption = sanitize.Text(caption)
	return payload, nil
}

// DefaultCaption is used when the client supplies none.
func DefaultCaption(now time.Time) string {
	return "Log received at " + now.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// ValidateExtension accepts names whose suffix after the last dot is allowed.
func ValidateExtension(filename string) error {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return invalid("Invalid file type. Allowed extensions: %s", strings.Join(AllowedExtensions, ", "))
	}
	ext := strings.ToLower(filename[idx:])
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return invalid("Invalid file type. Allowed extensions: %s", strings.Join(AllowedExtensions, ", "))
}

// ValidateSize rejects files larger than max bytes.
func ValidateSize(size, max int64) error {
	if size > max {
		return invalid("File too large. Maximum size is %dMB", max/(1024*1024))
	}
	return nil
}

// cleanFilename drops any client-supplied directory components.
func cleanFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

func textPayload(text, filename string) *Payload {
	content := []byte(sanitize.Text(text))
	if filename = cleanFilename(filename); filename == "" {
		filename = DefaultFilename
	}
	return &Payload{
		Kind:     models.ContentTypeText,
		Content:  content,
		Filename: filename,
		Size:     int64(len(content)),
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
