package upload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sdko-org/logrelay/internal/models"
)

func parseMultipart(p *Parser, w http.ResponseWriter, r *http.Request) (*Payload, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, p.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMaxMemory); err != nil {
		if isTooLarge(err) {
			return nil, "", ValidateSize(p.MaxFileSize+1, p.MaxFileSize)
		}
		return nil, "", invalid("Invalid multipart form data")
	}
	defer r.MultipartForm.RemoveAll()

	caption := r.FormValue("caption")
	customName := r.FormValue("filename")

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		if header.Size > 0 {
			payload, err := readFilePart(p, file, header.Size, header.Filename, customName)
			return payload, caption, err
		}
	case !errors.Is(err, http.ErrMissingFile):
		return nil, "", invalid("Invalid file field")
	}

	texts, hasText := r.MultipartForm.Value["text"]
	if !hasText || len(texts) == 0 {
		return nil, "", invalid("No file or text content provided")
	}
	if strings.TrimSpace(texts[0]) == "" {
		return nil, "", invalid("Text content cannot be empty")
	}
	return textPayload(texts[0], customName), caption, nil
}

func readFilePart(p *Parser, file io.Reader, size int64, original, custom string) (*Payload, error) {
	if err := ValidateSize(size, p.MaxFileSize); err != nil {
		return nil, err
	}

	filename := cleanFilename(custom)
	if filename == "" {
		filename = cleanFilename(original)
	}
	if filename == "" {
		filename = DefaultFilename
	}
	if err := ValidateExtension(filename); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(io.LimitReader(file, p.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	if err := ValidateSize(int64(len(content)), p.MaxFileSize); err != nil {
		return nil, err
	}

	return &Payload{
		Kind:     models.ContentTypeFile,
		Content:  content,
		Filename: filename,
		Size:     int64(len(content)),
	}, nil
}

type jsonBody struct {
	Text     *string `json:"text"`
	Caption  *string `json:"caption"`
	Filename *string `json:"filename"`
}

func parseJSON(p *Parser, w http.ResponseWriter, r *http.Request) (*Payload, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, p.MaxFileSize)

	var body jsonBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if isTooLarge(err) {
			return nil, "", ValidateSize(p.MaxFileSize+1, p.MaxFileSize)
		}
		return nil, "", invalid("Invalid JSON body")
	}
	if body.Text == nil || strings.TrimSpace(*body.Text) == "" {
		return nil, "", invalid("Text content is required")
	}

	return textPayload(*body.Text, deref(body.Filename)), deref(body.Caption), nil
}

// parsePlain takes the whole body as content; caption and filename may be
// passed as query parameters.
func parsePlain(p *Parser, w http.ResponseWriter, r *http.Request) (*Payload, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, p.MaxFileSize)

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		if isTooLarge(err) {
			return nil, "", ValidateSize(p.MaxFileSize+1, p.MaxFileSize)
		}
		return nil, "", invalid("Failed to read request body")
	}

	query := r.URL.Query()
	payload := textPayload(string(raw), query.Get("filename"))
	if strings.TrimSpace(string(payload.Content)) == "" {
		return nil, "", invalid("Text content cannot be empty")
	}
	return payload, query.Get("caption"), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
