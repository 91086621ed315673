package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sdko-org/logrelay/internal/access"
	"github.com/sdko-org/logrelay/internal/ratelimit"
	"github.com/sirupsen/logrus"
)

// uploadPath also matches an empty chat id so the handler can reject it.
const uploadPath = "/api/{chat_id:[^/]*}/upload"

type RouteConfig struct {
	Limiter     *ratelimit.Limiter
	Policy      access.Policy
	Upload      *UploadHandler
	MaxFileSize int64
	RateWindow  string
}

// NewRouter builds the full HTTP surface. Uploads pass the rate limiter, then
// the block list, then the panic switch.
func NewRouter(logger *logrus.Logger, rc RouteConfig) *mux.Router {
	r := mux.NewRouter().SkipClean(true)
	r.Use(LoggingMiddleware(logger), MetricsMiddleware())

	r.HandleFunc("/healthz", HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	var upload http.Handler = rc.Upload
	upload = AccessMiddleware(rc.Policy)(upload)
	upload = RateLimitMiddleware(rc.Limiter)(upload)
	r.Handle(uploadPath, upload).Methods(http.MethodPost)

	rate := fmt.Sprintf("%d requests per %s per client", rc.Limiter.Limit(), rc.RateWindow)
	r.HandleFunc(uploadPath, UsageHandler(rc.MaxFileSize, rate)).Methods(http.MethodGet)

	return r
}
