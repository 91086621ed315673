package outbound

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestRedactURL(t *testing.T) {
	got := RedactURL("https://api.telegram.org/bot123:ABC/sendMessage")
	want := "https://api.telegram.org/bot<redacted>/sendMessage"
	if got != want {
		t.Errorf("RedactURL() = %q, want %q", got, want)
	}

	plain := "http://ip-api.com/json/8.8.8.8"
	if got := RedactURL(plain); got != plain {
		t.Errorf("RedactURL(%q) = %q", plain, got)
	}
}

func TestNewClient_SetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client := NewClient(logger, "test", time.Second)

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if gotUA != UserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, UserAgent)
	}
}
