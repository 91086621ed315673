// Package outbound builds the HTTP clients used for third-party APIs.
package outbound

import (
	"net/http"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
)

const UserAgent = "LogRelay/1.0"

// botTokenPath matches the credential segment of messaging API URLs.
var botTokenPath = regexp.MustCompile(`/bot[^/]+/`)

type loggingTransport struct {
	base http.RoundTripper
	log  *logrus.Entry
}

// NewClient returns an http.Client whose requests are logged under component.
// Callers bound individual calls with a context deadline; timeout is a backstop.
func NewClient(logger *logrus.Logger, component string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &loggingTransport{
			base: http.DefaultTransport,
			log:  logger.WithField("component", component+"_transport"),
		},
	}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}

	log := t.log.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    RedactURL(req.URL.String()),
	})

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		log.WithError(err).Error("HTTP request failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("HTTP request completed")
	return resp, nil
}

// RedactURL hides bot credentials embedded in the URL path.
func RedactURL(u string) string {
	return botTokenPath.ReplaceAllString(u, "/bot<redacted>/")
}
