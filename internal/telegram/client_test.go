package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type recordedCall struct {
	path     string
	json     map[string]interface{}
	chatID   string
	caption  string
	filename string
	content  string
}

func newTestServer(t *testing.T, status int, reply string) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := recordedCall{path: r.URL.Path}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			if err := json.NewDecoder(r.Body).Decode(&call.json); err != nil {
				t.Errorf("decode json body: %v", err)
			}
		} else {
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				t.Errorf("parse multipart body: %v", err)
			}
			call.chatID = r.FormValue("chat_id")
			call.caption = r.FormValue("caption")
			file, header, err := r.FormFile("document")
			if err != nil {
				t.Errorf("document part missing: %v", err)
			} else {
				data, _ := io.ReadAll(file)
				file.Close()
				call.filename = header.Filename
				call.content = string(data)
			}
		}
		calls = append(calls, call)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(srv *httptest.Server, token string) *Client {
	return NewClient(quietLogger(), srv.Client(), Config{
		BaseURL: srv.URL,
		Token:   token,
		Timeout: 2 * time.Second,
		Rate:    1000,
		Burst:   10,
	})
}

func TestChooseMethod(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want string
	}{
		{"short text", Document{Content: []byte("hello"), Textual: true}, MethodSendMessage},
		{"exactly limit", Document{Content: []byte(strings.Repeat("a", MaxMessageChars)), Textual: true}, MethodSendMessage},
		{"over limit", Document{Content: []byte(strings.Repeat("a", MaxMessageChars+1)), Textual: true}, MethodSendDocument},
		{"escaped markup at limit", Document{Content: []byte(strings.Repeat("<", MaxMessageChars)), Textual: true}, MethodSendMessage},
		{"multibyte at limit", Document{Content: []byte(strings.Repeat("é", MaxMessageChars)), Textual: true}, MethodSendMessage},
		{"small file", Document{Content: []byte("tiny"), Textual: false}, MethodSendDocument},
		{"empty file", Document{Textual: false}, MethodSendDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChooseMethod(tt.doc); got != tt.want {
				t.Errorf("ChooseMethod() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFormatMessage(t *testing.T) {
	got := FormatMessage("Build <42> & co", "if a < b && c > d")
	want := "<b>Build &lt;42&gt; &amp; co</b>\n\n<pre>if a &lt; b &amp;&amp; c &gt; d</pre>"
	if got != want {
		t.Errorf("FormatMessage() = %q, want %q", got, want)
	}

	if got := FormatMessage("", "x"); got != "<pre>x</pre>" {
		t.Errorf("FormatMessage without caption = %q", got)
	}
}

func TestTruncateCaption(t *testing.T) {
	short := "fine"
	if got := TruncateCaption(short); got != short {
		t.Errorf("TruncateCaption(%q) = %q", short, got)
	}

	long := strings.Repeat("ж", MaxCaptionChars+10)
	got := TruncateCaption(long)
	if n := utf8.RuneCountInString(got); n != MaxCaptionChars {
		t.Errorf("truncated caption has %d runes, want %d", n, MaxCaptionChars)
	}
}

func TestSendLogs_Message(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"ok":true,"result":{"message_id":1}}`)
	client := newTestClient(srv, "123:ABC")

	method, err := client.SendLogs(context.Background(), "-100500", Document{
		Content: []byte("<error> at line 1"),
		Caption: "nightly",
		Textual: true,
	})
	if err != nil {
		t.Fatalf("SendLogs() error = %v", err)
	}
	if method != MethodSendMessage {
		t.Errorf("method = %s, want %s", method, MethodSendMessage)
	}
	if len(*calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(*calls))
	}

	call := (*calls)[0]
	if call.path != "/bot123:ABC/sendMessage" {
		t.Errorf("path = %q", call.path)
	}
	if call.json["chat_id"] != "-100500" {
		t.Errorf("chat_id = %v", call.json["chat_id"])
	}
	if call.json["parse_mode"] != "HTML" {
		t.Errorf("parse_mode = %v", call.json["parse_mode"])
	}
	if call.json["text"] != "<b>nightly</b>\n\n<pre>&lt;error&gt; at line 1</pre>" {
		t.Errorf("text = %v", call.json["text"])
	}
}

func TestSendLogs_DocumentForLongText(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"ok":true}`)
	client := newTestClient(srv, "tok")

	content := strings.Repeat("x", MaxMessageChars+1)
	method, err := client.SendLogs(context.Background(), "42", Document{
		Content:  []byte(content),
		Filename: "logs.txt",
		Caption:  "big one",
		Textual:  true,
	})
	if err != nil {
		t.Fatalf("SendLogs() error = %v", err)
	}
	if method != MethodSendDocument {
		t.Fatalf("method = %s, want %s", method, MethodSendDocument)
	}

	call := (*calls)[0]
	if call.path != "/bottok/sendDocument" {
		t.Errorf("path = %q", call.path)
	}
	if call.chatID != "42" || call.caption != "big one" || call.filename != "logs.txt" {
		t.Errorf("unexpected form: %+v", call)
	}
	if call.content != content {
		t.Errorf("document content length = %d, want %d", len(call.content), len(content))
	}
}

func TestSendLogs_FileAlwaysDocument(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"ok":true}`)
	client := newTestClient(srv, "tok")

	method, err := client.SendLogs(context.Background(), "42", Document{
		Content:  []byte("short"),
		Filename: "app.log",
	})
	if err != nil {
		t.Fatalf("SendLogs() error = %v", err)
	}
	if method != MethodSendDocument || (*calls)[0].filename != "app.log" {
		t.Errorf("method = %s, filename = %q", method, (*calls)[0].filename)
	}
}

func TestSendLogs_APIRejection(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	client := newTestClient(srv, "tok")

	_, err := client.SendLogs(context.Background(), "1", Document{Content: []byte("hi"), Textual: true})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Description != "Bad Request: chat not found" {
		t.Errorf("Description = %q", apiErr.Description)
	}
	if apiErr.ErrorCode != 400 || apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("codes = %d/%d", apiErr.ErrorCode, apiErr.StatusCode)
	}
}

func TestSendLogs_OkFalseWith200(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"ok":false,"description":"Forbidden: bot was blocked by the user"}`)
	client := newTestClient(srv, "tok")

	_, err := client.SendLogs(context.Background(), "1", Document{Content: []byte("hi"), Textual: true})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Description != "Forbidden: bot was blocked by the user" {
		t.Fatalf("error = %v", err)
	}
}

func TestSendLogs_NonJSONError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusBadGateway, `<html>bad gateway</html>`)
	client := newTestClient(srv, "tok")

	_, err := client.SendLogs(context.Background(), "1", Document{Content: []byte("hi"), Textual: true})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Description == "" {
		t.Error("description should not be empty")
	}
}

func TestSendLogs_NotConfigured(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"ok":true}`)
	client := newTestClient(srv, "")

	_, err := client.SendLogs(context.Background(), "1", Document{Content: []byte("hi"), Textual: true})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("error = %v, want ErrNotConfigured", err)
	}
	if len(*calls) != 0 {
		t.Error("no request should be made without a token")
	}
}

func TestSendLogs_NetworkErrorHidesToken(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"ok":true}`)
	client := newTestClient(srv, "secret-token")
	srv.Close()

	_, err := client.SendLogs(context.Background(), "1", Document{Content: []byte("hi"), Textual: true})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if strings.Contains(apiErr.Description, "secret-token") {
		t.Errorf("description leaks token: %q", apiErr.Description)
	}
}
