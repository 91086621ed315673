package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sdko-org/logrelay/internal/telegram"
	"github.com/sdko-org/logrelay/internal/upload"
)

type usageField struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

type usageFormat struct {
	ContentType string       `json:"contentType"`
	Fields      []usageField `json:"fields"`
	Example     string       `json:"example"`
}

type usageDoc struct {
	Endpoint          string        `json:"endpoint"`
	Method            string        `json:"method"`
	Formats           []usageFormat `json:"formats"`
	MaxFileSize       int64         `json:"maxFileSize"`
	AllowedExtensions []string      `json:"allowedExtensions"`
	RateLimit         string        `json:"rateLimit"`
	Notes             []string      `json:"notes"`
}

// UsageHandler serves the GET side of the upload route. It has no side effects.
func UsageHandler(maxFileSize int64, rateLimit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoint := fmt.Sprintf("/api/%s/upload", mux.Vars(r)["chat_id"])

		writeJSON(w, http.StatusOK, usageDoc{
			Endpoint: endpoint,
			Method:   http.MethodPost,
			Formats: []usageFormat{
				{
					ContentType: "multipart/form-data",
					Fields: []usageField{
						{"file", false, "Log file (.log, .txt or .zip). Takes priority over text."},
						{"text", false, "Log text, used when no file is sent."},
						{"caption", false, "Message caption."},
						{"filename", false, "Overrides the uploaded file name."},
					},
					Example: fmt.Sprintf("curl -F file=@app.log %s", endpoint),
				},
				{
					ContentType: "application/json",
					Fields: []usageField{
						{"text", true, "Log text."},
						{"caption", false, "Message caption."},
						{"filename", false, "Name used when the text is sent as a document."},
					},
					Example: fmt.Sprintf(`curl -H 'Content-Type: application/json' -d '{"text":"hello"}' %s`, endpoint),
				},
				{
					ContentType: "text/plain",
					Fields: []usageField{
						{"body", true, "The whole request body is the log text."},
						{"caption", false, "Query parameter."},
						{"filename", false, "Query parameter."},
					},
					Example: fmt.Sprintf("curl -H 'Content-Type: text/plain' --data-binary @app.log %s", endpoint),
				},
			},
			MaxFileSize:       maxFileSize,
			AllowedExtensions: upload.AllowedExtensions,
			RateLimit:         rateLimit,
			Notes: []string{
				"Links and @mentions in text and captions are replaced before sending.",
				fmt.Sprintf("Text up to %d characters is sent as a message, longer text as %s.", telegram.MaxMessageChars, upload.DefaultFilename),
			},
		})
	}
}
